package services

import (
	"context"
	"errors"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
)

// sniffLen is how many leading bytes are inspected to detect a content type.
const sniffLen = 3072

// PostProcessor is invoked after a file has been stored, e.g. to generate a
// thumbnail. Its failures are logged and never fail the upload.
type PostProcessor interface {
	Process(ctx context.Context, userID, virtualPath, contentType string) error
}

// PostProcessorFunc adapts a function to PostProcessor.
type PostProcessorFunc func(ctx context.Context, userID, virtualPath, contentType string) error

func (f PostProcessorFunc) Process(ctx context.Context, userID, virtualPath, contentType string) error {
	return f(ctx, userID, virtualPath, contentType)
}

func runPostProcessor(ctx context.Context, p PostProcessor, log logging.Logger, userID, virtualPath, contentType string) {
	if p == nil {
		return
	}
	if err := p.Process(ctx, userID, virtualPath, contentType); err != nil {
		log.Warn(ctx, "post-processing failed", "user", userID, "path", virtualPath, "error", err)
	}
}

// needsSniffing reports whether a client-declared content type carries no
// information.
func needsSniffing(contentType string) bool {
	return contentType == "" || contentType == defaultMimeType
}

// sniffContentType detects the type of r from its first bytes and rewinds r.
func sniffContentType(r io.ReadSeeker) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mimetype.Detect(head[:n]).String(), nil
}
