// Package uploader drives the chunked upload protocol from the client side.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/gophdrive/internal/client/api"
	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// ErrEmptyFile is returned for zero-length sources; those go through the
// simple upload route instead.
var ErrEmptyFile = errors.New("empty file cannot be uploaded in chunks")

// API is the part of the server API the uploader needs.
type API interface {
	InitiateUpload(ctx context.Context, fileName, contentType, folder string) (*api.UploadSession, error)
	UploadChunk(ctx context.Context, s *api.UploadSession, partNumber int32, chunk []byte) (api.Part, error)
	CompleteUpload(ctx context.Context, s *api.UploadSession, parts []api.Part) error
	AbortUpload(ctx context.Context, s *api.UploadSession) error
}

// Progress receives the bytes confirmed by the server so far.
type Progress func(loaded, total int64)

// Uploader slices a source into fixed-size chunks, every one but the last
// exactly ChunkSize bytes, and uploads them sequentially.
type Uploader struct {
	api       API
	chunkSize int64
}

func New(a API, chunkSize int64) *Uploader {
	return &Uploader{api: a, chunkSize: chunkSize}
}

// UploadFile uploads a local file into folder and returns its virtual path.
func (u *Uploader) UploadFile(ctx context.Context, path, folder string, progress Progress) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	return u.Upload(ctx, f, st.Size(), filepath.Base(path), folder, progress)
}

// Upload runs initiate, one call per chunk, then complete. Once a session
// exists, any failure aborts it; the caller restarts from scratch.
func (u *Uploader) Upload(ctx context.Context, r io.ReaderAt, size int64, name, folder string, progress Progress) (string, error) {
	if size <= 0 {
		return "", ErrEmptyFile
	}
	if progress == nil {
		progress = func(int64, int64) {}
	}

	contentType := ""
	if mt, err := mimetype.DetectReader(io.NewSectionReader(r, 0, size)); err == nil {
		contentType = mt.String()
	}

	session, err := u.api.InitiateUpload(ctx, name, contentType, folder)
	if err != nil {
		return "", fmt.Errorf("initiate: %w", err)
	}

	if err := u.sendParts(ctx, session, r, size, progress); err != nil {
		u.abort(ctx, session)
		return "", err
	}
	return session.Key, nil
}

func (u *Uploader) sendParts(ctx context.Context, s *api.UploadSession, r io.ReaderAt, size int64, progress Progress) error {
	buf := make([]byte, min(u.chunkSize, size))
	parts := make([]api.Part, 0, (size+u.chunkSize-1)/u.chunkSize)

	var loaded int64
	for partNumber := int32(1); loaded < size; partNumber++ {
		n := min(u.chunkSize, size-loaded)
		chunk := buf[:n]
		if _, err := r.ReadAt(chunk, loaded); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read part %d: %w", partNumber, err)
		}

		part, err := u.api.UploadChunk(ctx, s, partNumber, chunk)
		if err != nil {
			return fmt.Errorf("upload part %d: %w", partNumber, err)
		}
		parts = append(parts, api.Part{PartNumber: partNumber, ETag: part.ETag})

		loaded += n
		progress(loaded, size)
	}

	if err := u.api.CompleteUpload(ctx, s, parts); err != nil {
		if errors.Is(err, common.ErrInvalidPartSet) {
			return fmt.Errorf("server rejected the parts, upload must be restarted: %w", err)
		}
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}

func (u *Uploader) abort(ctx context.Context, s *api.UploadSession) {
	_ = u.api.AbortUpload(context.WithoutCancel(ctx), s)
}

// BatchProgress tracks several uploads. Overall progress is the plain mean
// of per-file percentages, not weighted by size.
type BatchProgress struct {
	mu      sync.Mutex
	percent []float64
}

func NewBatchProgress(files int) *BatchProgress {
	return &BatchProgress{percent: make([]float64, files)}
}

// Track returns the Progress callback for file i.
func (b *BatchProgress) Track(i int, onUpdate func(file, overall float64)) Progress {
	return func(loaded, total int64) {
		p := 100.0
		if total > 0 {
			p = float64(loaded) * 100 / float64(total)
		}
		b.mu.Lock()
		b.percent[i] = p
		overall := b.meanLocked()
		b.mu.Unlock()
		if onUpdate != nil {
			onUpdate(p, overall)
		}
	}
}

// Mean returns the overall percentage.
func (b *BatchProgress) Mean() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.meanLocked()
}

func (b *BatchProgress) meanLocked() float64 {
	if len(b.percent) == 0 {
		return 0
	}
	var sum float64
	for _, p := range b.percent {
		sum += p
	}
	return sum / float64(len(b.percent))
}
