package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/keys"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/objectstore"
)

// UploadFile is one file of a simple (non-chunked) batch upload.
type UploadFile struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadSeekCloser, error)
}

// Dispatcher stores a batch of files concurrently, one task per file. Each
// task reports its own outcome: a failing file never cancels the others.
type Dispatcher struct {
	store            objectstore.Client
	log              logging.Logger
	concurrency      int
	operationTimeout time.Duration
	postProcessor    PostProcessor
}

// NewDispatcher constructs a Dispatcher running at most
// cfg.UploadConcurrency uploads at a time. pp may be nil.
func NewDispatcher(store objectstore.Client, cfg *config.Config, log logging.Logger, pp PostProcessor) *Dispatcher {
	return &Dispatcher{
		store:            store,
		log:              log.With("module", "dispatcher"),
		concurrency:      cfg.UploadConcurrency,
		operationTimeout: cfg.OperationTimeout,
		postProcessor:    pp,
	}
}

// Dispatch uploads files into folder and returns one result per file, in
// input order, after every task has finished.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, folder string, files []UploadFile) []models.UploadResult {
	results := make([]models.UploadResult, len(files))

	ctx, cancel := detach(ctx, d.operationTimeout)
	defer cancel()

	g := new(errgroup.Group)
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}

	for i, f := range files {
		g.Go(func() error {
			vp, err := d.putOne(ctx, userID, folder, f)
			if err != nil {
				d.log.Warn(ctx, "upload failed", "user", userID, "file", f.Name, "error", err)
				msg, ok := keys.Redact(userID, err.Error())
				if !ok {
					msg = "upload failed"
				}
				results[i] = models.UploadResult{Success: false, Error: msg}
				return nil
			}
			results[i] = models.UploadResult{Success: true, Key: vp}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) putOne(ctx context.Context, userID, folder string, f UploadFile) (string, error) {
	name, err := cleanFileName(f.Name)
	if err != nil {
		return "", err
	}
	vp, err := keys.Clean(keys.Join(folder, name))
	if err != nil {
		return "", err
	}
	key, err := keys.ToObjectKey(userID, vp, false)
	if err != nil {
		return "", err
	}

	body, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer body.Close()

	contentType := f.ContentType
	if needsSniffing(contentType) {
		if contentType, err = sniffContentType(body); err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
	}

	if err := d.store.Put(ctx, key, body, f.Size, contentType); err != nil {
		return "", err
	}

	runPostProcessor(ctx, d.postProcessor, d.log, userID, vp, contentType)
	return vp, nil
}
