package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/objectstore"
)

var errInjected = errors.New("injected failure")

// faultyStore wraps the in-memory store and fails selected calls.
type faultyStore struct {
	*objectstore.Memory

	mu         sync.Mutex
	failPut    func(key string) bool
	failCopy   func(src string) bool
	failDelete func(key string) bool
	failGet    func(key string) bool
	copies     int
	deletes    int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Memory: objectstore.NewMemory("http://localhost/blob", nil)}
}

func (f *faultyStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if f.failPut != nil && f.failPut(key) {
		return errorsWrap(key)
	}
	return f.Memory.Put(ctx, key, body, size, contentType)
}

func (f *faultyStore) Copy(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	f.copies++
	f.mu.Unlock()
	if f.failCopy != nil && f.failCopy(src) {
		return errorsWrap(src)
	}
	return f.Memory.Copy(ctx, src, dst)
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	if f.failDelete != nil && f.failDelete(key) {
		return errorsWrap(key)
	}
	return f.Memory.Delete(ctx, key)
}

func (f *faultyStore) DeleteMany(ctx context.Context, keys []string) ([]objectstore.DeleteResult, error) {
	f.mu.Lock()
	f.deletes++
	f.mu.Unlock()

	var ok []string
	results := make([]objectstore.DeleteResult, 0, len(keys))
	for _, k := range keys {
		if f.failDelete != nil && f.failDelete(k) {
			results = append(results, objectstore.DeleteResult{Key: k, Err: errorsWrap(k)})
			continue
		}
		ok = append(ok, k)
	}
	done, err := f.Memory.DeleteMany(ctx, ok)
	return append(results, done...), err
}

func (f *faultyStore) GetStream(ctx context.Context, key string) (*objectstore.Object, error) {
	if f.failGet != nil && f.failGet(key) {
		obj, err := f.Memory.GetStream(ctx, key)
		if err != nil {
			return nil, err
		}
		obj.Body = failingBody{}
		return obj, nil
	}
	return f.Memory.GetStream(ctx, key)
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errInjected }
func (failingBody) Close() error             { return nil }

func errorsWrap(key string) error {
	return fmt.Errorf("store refused %s: %w: %w", key, common.ErrStoreUnavailable, errInjected)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.OperationTimeout = time.Minute
	return cfg
}

func newFileService(store objectstore.Client, mutate ...func(*config.Config)) *FileService {
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	return NewFileService(store, cfg, logging.Nop{})
}

func putFile(t *testing.T, store objectstore.Client, key, body string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), "text/plain"))
}

func readAll(t *testing.T, store objectstore.Client, key string) string {
	t.Helper()
	obj, err := store.GetStream(context.Background(), key)
	require.NoError(t, err)
	defer obj.Body.Close()
	b, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	return string(b)
}

func exists(store objectstore.Client, key string) bool {
	obj, err := store.GetStream(context.Background(), key)
	if err != nil {
		return false
	}
	obj.Body.Close()
	return true
}

// seekable wraps in-memory data as an upload body.
type seekable struct{ *bytes.Reader }

func (seekable) Close() error { return nil }

func openBytes(data []byte) func() (io.ReadSeekCloser, error) {
	return func() (io.ReadSeekCloser, error) { return seekable{bytes.NewReader(data)}, nil }
}
