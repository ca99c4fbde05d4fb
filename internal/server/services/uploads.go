package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/keys"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/objectstore"
)

// UploadService coordinates chunked uploads on top of store multipart
// sessions.
//
// The server keeps no session state between calls: the upload id and the
// virtual path identify the session, and the client tracks part ETags and
// hands them back on completion. Re-uploading a part number replaces the
// earlier part.
type UploadService struct {
	store            objectstore.Client
	log              logging.Logger
	maxChunkSize     int64
	operationTimeout time.Duration
	postProcessor    PostProcessor
}

// NewUploadService constructs an UploadService. pp may be nil.
func NewUploadService(store objectstore.Client, cfg *config.Config, log logging.Logger, pp PostProcessor) *UploadService {
	return &UploadService{
		store:            store,
		log:              log.With("module", "uploads"),
		maxChunkSize:     cfg.MaxChunkSize,
		operationTimeout: cfg.OperationTimeout,
		postProcessor:    pp,
	}
}

// Initiate opens a multipart session for fileName inside folder.
func (s *UploadService) Initiate(ctx context.Context, userID, fileName, contentType, folder string) (*models.UploadSession, error) {
	name, err := cleanFileName(fileName)
	if err != nil {
		return nil, err
	}

	vp, err := keys.Clean(keys.Join(folder, name))
	if err != nil {
		return nil, err
	}
	key, err := keys.ToObjectKey(userID, vp, false)
	if err != nil {
		return nil, err
	}

	// No bytes exist yet, so an uninformative declared type is guessed from
	// the extension. Complete sniffs the assembled object if that guess is
	// still generic.
	if needsSniffing(contentType) {
		contentType = mimeTypeOf(name)
	}

	uploadID, err := s.store.CreateMultipartUpload(ctx, key, contentType)
	if err != nil {
		return nil, err
	}

	s.log.Debug(ctx, "upload initiated", "user", userID, "upload_id", uploadID)
	return &models.UploadSession{UploadID: uploadID, Key: vp}, nil
}

// UploadChunk stores one part and returns its ETag.
func (s *UploadService) UploadChunk(ctx context.Context, userID, uploadID, virtualPath string, partNumber int32, chunk io.Reader, size int64) (string, error) {
	if uploadID == "" {
		return "", fmt.Errorf("%w: upload id is required", common.ErrValidation)
	}
	if partNumber < 1 || partNumber > objectstore.MaxPartNumber {
		return "", fmt.Errorf("%w: part number must be between 1 and %d", common.ErrValidation, objectstore.MaxPartNumber)
	}
	if size <= 0 {
		return "", fmt.Errorf("%w: empty chunk", common.ErrValidation)
	}
	if s.maxChunkSize > 0 && size > s.maxChunkSize {
		return "", fmt.Errorf("%w: chunk of %d bytes exceeds limit of %d", common.ErrValidation, size, s.maxChunkSize)
	}

	key, err := keys.ToObjectKey(userID, virtualPath, false)
	if err != nil {
		return "", err
	}

	ctx, cancel := detach(ctx, s.operationTimeout)
	defer cancel()

	return s.store.UploadPart(ctx, key, uploadID, partNumber, chunk, size)
}

// Complete assembles the uploaded parts. parts must be ascending and
// contiguous from 1; otherwise, or if the store rejects an ETag, the result
// is common.ErrInvalidPartSet and the session must be restarted.
func (s *UploadService) Complete(ctx context.Context, userID, uploadID, virtualPath string, parts []objectstore.CompletedPart) error {
	if uploadID == "" {
		return fmt.Errorf("%w: upload id is required", common.ErrValidation)
	}
	key, err := keys.ToObjectKey(userID, virtualPath, false)
	if err != nil {
		return err
	}
	if err := objectstore.ValidateParts(parts); err != nil {
		return err
	}

	ctx, cancel := detach(ctx, s.operationTimeout)
	defer cancel()

	if err := s.store.CompleteMultipartUpload(ctx, key, uploadID, parts); err != nil {
		return err
	}

	vp, _ := keys.ToVirtualPath(userID, key)
	s.log.Info(ctx, "chunked upload completed", "user", userID, "parts", len(parts))
	if s.postProcessor != nil {
		runPostProcessor(ctx, s.postProcessor, s.log, userID, vp, s.storedContentType(ctx, key))
	}
	return nil
}

// storedContentType returns the type recorded for key at Initiate, or the
// type sniffed from the object's first bytes when that one is generic.
func (s *UploadService) storedContentType(ctx context.Context, key string) string {
	obj, err := s.store.GetStream(ctx, key)
	if err != nil {
		s.log.Warn(ctx, "content type lookup failed", "error", err)
		return defaultMimeType
	}
	defer obj.Body.Close()

	if !needsSniffing(obj.ContentType) {
		return obj.ContentType
	}
	mt, err := mimetype.DetectReader(io.LimitReader(obj.Body, sniffLen))
	if err != nil {
		return defaultMimeType
	}
	return mt.String()
}

// Abort releases a multipart session. Aborting an unknown session succeeds.
func (s *UploadService) Abort(ctx context.Context, userID, uploadID, virtualPath string) error {
	if uploadID == "" {
		return fmt.Errorf("%w: upload id is required", common.ErrValidation)
	}
	key, err := keys.ToObjectKey(userID, virtualPath, false)
	if err != nil {
		return err
	}

	ctx, cancel := detach(ctx, s.operationTimeout)
	defer cancel()

	return s.store.AbortMultipartUpload(ctx, key, uploadID)
}

// cleanFileName reduces a client-supplied file name to its last segment.
func cleanFileName(fileName string) (string, error) {
	name := keys.Base(strings.ReplaceAll(fileName, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid file name %q", common.ErrValidation, fileName)
	}
	return name, nil
}
