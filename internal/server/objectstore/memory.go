package objectstore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// MinPartSize is the smallest size allowed for any multipart part except
// the last one.
const MinPartSize = 5 << 20

type memObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
	etag         string
}

type memUpload struct {
	key         string
	contentType string
	parts       map[int32]*memObject
}

// Memory is an in-process Client. It follows S3 listing, copy and multipart
// semantics closely enough for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*memObject
	uploads map[string]*memUpload

	// BaseURL is used to build PresignGet links.
	BaseURL string
	// MinPartSize overrides the non-final part size limit when positive.
	MinPartSize int64

	now     func() time.Time
	metrics Metrics
	secret  []byte
}

// NewMemory returns an empty store. Presigned links point at baseURL, where
// the Memory itself must be mounted as an http.Handler.
func NewMemory(baseURL string, m Metrics) *Memory {
	if m == nil {
		m = noopMetrics{}
	}
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	return &Memory{
		objects: make(map[string]*memObject),
		uploads: make(map[string]*memUpload),
		BaseURL: baseURL,
		now:     time.Now,
		metrics: m,
		secret:  secret,
	}
}

func (m *Memory) sign(key, expires string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(key + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (m *Memory) minPartSize() int64 {
	if m.MinPartSize > 0 {
		return m.MinPartSize
	}
	return MinPartSize
}

// Put stores a copy of body under key, replacing any previous object.
func (m *Memory) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		err = fmt.Errorf("put %s: %w: %w", key, common.ErrStoreUnavailable, err)
		m.metrics.ObserveOperation("PutObject", time.Since(start), err)
		return err
	}

	m.mu.Lock()
	m.objects[key] = &memObject{data: data, contentType: contentType, lastModified: m.now(), etag: etagOf(data)}
	m.mu.Unlock()

	m.metrics.ObserveOperation("PutObject", time.Since(start), nil)
	m.metrics.RecordBytes("PutObject", int64(len(data)))
	return nil
}

// GetStream opens key for reading. A missing key yields common.ErrNotFound.
func (m *Memory) GetStream(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, common.ErrNotFound)
	}

	return &Object{
		Body: &metricsReadCloser{
			ReadCloser: io.NopCloser(bytes.NewReader(obj.data)),
			metrics:    m.metrics,
			operation:  "GetObject",
		},
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// DeleteMany removes keys and reports a result per key.
func (m *Memory) DeleteMany(ctx context.Context, keys []string) ([]DeleteResult, error) {
	results := make([]DeleteResult, len(keys))
	if err := ctx.Err(); err != nil {
		for i, k := range keys {
			results[i] = DeleteResult{Key: k, Err: err}
		}
		return results, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range keys {
		delete(m.objects, k)
		results[i] = DeleteResult{Key: k}
	}
	return results, nil
}

// Copy duplicates src to dst within the store.
func (m *Memory) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[src]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, common.ErrNotFound)
	}
	data := append([]byte(nil), obj.data...)
	m.objects[dst] = &memObject{data: data, contentType: obj.contentType, lastModified: m.now(), etag: obj.etag}
	return nil
}

// List treats the continuation token as a start-after marker: the last key
// or common prefix returned by the previous page.
func (m *Memory) List(ctx context.Context, in ListInput) (*ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxKeys := in.MaxKeys
	if maxKeys <= 0 || maxKeys > DefaultPageSize {
		maxKeys = DefaultPageSize
	}

	m.mu.RLock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, in.Prefix) {
			keys = append(keys, k)
		}
	}
	snapshot := make(map[string]*memObject, len(keys))
	for _, k := range keys {
		snapshot[k] = m.objects[k]
	}
	m.mu.RUnlock()

	sort.Strings(keys)

	page := &ListPage{}
	var (
		count int32
		last  string
		seen  = make(map[string]struct{})
	)

	for _, k := range keys {
		item := k
		isPrefix := false
		if in.Delimiter != "" {
			rest := k[len(in.Prefix):]
			if i := strings.Index(rest, in.Delimiter); i >= 0 {
				item = in.Prefix + rest[:i+len(in.Delimiter)]
				isPrefix = true
			}
		}

		if in.ContinuationToken != "" && item <= in.ContinuationToken {
			continue
		}
		if isPrefix {
			if _, ok := seen[item]; ok {
				continue
			}
		}

		if count == maxKeys {
			page.IsTruncated = true
			page.NextContinuationToken = last
			break
		}

		if isPrefix {
			seen[item] = struct{}{}
			page.CommonPrefixes = append(page.CommonPrefixes, item)
		} else {
			obj := snapshot[k]
			page.Objects = append(page.Objects, ObjectInfo{
				Key:          k,
				Size:         int64(len(obj.data)),
				LastModified: obj.lastModified,
				ETag:         obj.etag,
			})
		}
		count++
		last = item
	}

	return page, nil
}

// CreateMultipartUpload starts a session for key and returns its id.
func (m *Memory) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()

	m.mu.Lock()
	m.uploads[id] = &memUpload{key: key, contentType: contentType, parts: make(map[int32]*memObject)}
	m.mu.Unlock()

	m.metrics.RecordMultipart("created")
	return id, nil
}

// UploadPart buffers one part and returns its ETag.
func (m *Memory) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if partNumber < 1 || partNumber > MaxPartNumber {
		return "", fmt.Errorf("upload part %d: %w: part number out of range", partNumber, common.ErrInvalidPartSet)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("upload part %d: %w: %w", partNumber, common.ErrStoreUnavailable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return "", fmt.Errorf("upload part %d: %w: no such upload", partNumber, common.ErrInvalidPartSet)
	}

	part := &memObject{data: data, etag: etagOf(data), lastModified: m.now()}
	up.parts[partNumber] = part

	m.metrics.RecordBytes("UploadPart", int64(len(data)))
	return part.etag, nil
}

// CompleteMultipartUpload assembles the listed parts into key. Unknown part
// numbers or mismatched ETags fail with common.ErrInvalidPartSet.
func (m *Memory) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateParts(parts); err != nil {
		m.metrics.RecordMultipart("rejected")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		m.metrics.RecordMultipart("rejected")
		return fmt.Errorf("complete %s: %w: no such upload", key, common.ErrInvalidPartSet)
	}

	var buf bytes.Buffer
	for i, p := range parts {
		stored, ok := up.parts[p.PartNumber]
		if !ok || stored.etag != p.ETag {
			m.metrics.RecordMultipart("rejected")
			return fmt.Errorf("complete %s: %w: part %d not found or ETag mismatch", key, common.ErrInvalidPartSet, p.PartNumber)
		}
		if i < len(parts)-1 && int64(len(stored.data)) < m.minPartSize() {
			m.metrics.RecordMultipart("rejected")
			return fmt.Errorf("complete %s: %w: part %d is smaller than the minimum part size", key, common.ErrInvalidPartSet, p.PartNumber)
		}
		buf.Write(stored.data)
	}

	data := buf.Bytes()
	m.objects[key] = &memObject{data: data, contentType: up.contentType, lastModified: m.now(), etag: etagOf(data)}
	delete(m.uploads, uploadID)

	m.metrics.RecordMultipart("completed")
	return nil
}

// AbortMultipartUpload discards the session and its buffered parts.
func (m *Memory) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.uploads, uploadID)
	m.mu.Unlock()

	m.metrics.RecordMultipart("aborted")
	return nil
}

// PresignGet returns an HMAC-signed link to key valid for ttl.
func (m *Memory) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("presign %s: %w", key, common.ErrNotFound)
	}

	expires := m.now().Add(ttl).UTC().Format(time.RFC3339)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", m.sign(key, expires))
	return strings.TrimSuffix(m.BaseURL, "/") + "/" + url.PathEscape(key) + "?" + q.Encode(), nil
}

// ServeHTTP serves links produced by PresignGet; the signature only verifies
// within the same Memory value. It expects to be mounted
// with the BaseURL path prefix stripped.
func (m *Memory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	key, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	if !hmac.Equal([]byte(q.Get("signature")), []byte(m.sign(key, q.Get("expires")))) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	expires, err := time.Parse(time.RFC3339, q.Get("expires"))
	if err != nil || m.now().After(expires) {
		http.Error(w, "link expired", http.StatusForbidden)
		return
	}

	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.Header().Set("ETag", obj.etag)
	http.ServeContent(w, r, path.Base(key), obj.lastModified, bytes.NewReader(obj.data))
}

// pendingUploads reports open multipart sessions; used by tests.
func (m *Memory) pendingUploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}
