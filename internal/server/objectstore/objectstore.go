// Package objectstore is a thin adapter over object-storage primitives.
// It knows nothing about folders or users: keys are opaque strings and every
// method maps to a single store call (or a single page of one).
//
// Two implementations are provided: S3Client (AWS or any S3-compatible
// endpoint) and Memory, an in-process store with the same semantics.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// DefaultPageSize is the store's own upper bound for one listing page.
const DefaultPageSize int32 = 1000

// MaxPartNumber is the largest part number a multipart upload accepts.
const MaxPartNumber int32 = 10000

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// ListInput selects one page of a prefix listing.
type ListInput struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int32
}

// ListPage is a single page of a listing. With a delimiter, keys sharing a
// prefix up to the next delimiter collapse into one entry of CommonPrefixes.
type ListPage struct {
	CommonPrefixes        []string
	Objects               []ObjectInfo
	IsTruncated           bool
	NextContinuationToken string
}

// Object is an open object body. Body must be closed by the caller.
type Object struct {
	Body         io.ReadCloser
	Size         int64
	ContentType  string
	LastModified time.Time
}

// CompletedPart identifies one uploaded part of a multipart session.
type CompletedPart struct {
	PartNumber int32  `json:"PartNumber" validate:"min=1,max=10000"`
	ETag       string `json:"ETag" validate:"required"`
}

// DeleteResult is the outcome for one key of a batch delete. Err is nil on
// success.
type DeleteResult struct {
	Key string
	Err error
}

// Client is the set of store primitives the rest of the server relies on.
//
// Implementations return errors matching common.ErrNotFound,
// common.ErrInvalidPartSet or common.ErrStoreUnavailable.
type Client interface {
	// Put writes body under key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// GetStream opens key for reading. Fails with ErrNotFound if absent.
	GetStream(ctx context.Context, key string) (*Object, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteMany removes keys in batches and reports a result per key
	// instead of failing atomically.
	DeleteMany(ctx context.Context, keys []string) ([]DeleteResult, error)
	// Copy duplicates src to dst, silently overwriting dst.
	Copy(ctx context.Context, src, dst string) error
	// List returns one page of objects under in.Prefix.
	List(ctx context.Context, in ListInput) (*ListPage, error)

	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error)
	// CompleteMultipartUpload fails with ErrInvalidPartSet if parts is empty,
	// not contiguous from 1, or any ETag does not match the stored part.
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) error
	// AbortMultipartUpload is idempotent.
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error

	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Walk calls fn for every page of the listing described by in, following
// continuation tokens until the store reports no more pages. fn may mutate
// the store (e.g. delete the page it was given).
func Walk(ctx context.Context, c Client, in ListInput, fn func(page *ListPage) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := c.List(ctx, in)
		if err != nil {
			return err
		}

		if err := fn(page); err != nil {
			return err
		}

		if !page.IsTruncated {
			return nil
		}
		if page.NextContinuationToken == "" {
			return fmt.Errorf("list %q: truncated page without continuation token: %w", in.Prefix, common.ErrStoreUnavailable)
		}
		in.ContinuationToken = page.NextContinuationToken
	}
}

// ListAll merges every page of a listing into one.
func ListAll(ctx context.Context, c Client, prefix, delimiter string, pageSize int32) (*ListPage, error) {
	all := &ListPage{}
	err := Walk(ctx, c, ListInput{Prefix: prefix, Delimiter: delimiter, MaxKeys: pageSize}, func(page *ListPage) error {
		all.CommonPrefixes = append(all.CommonPrefixes, page.CommonPrefixes...)
		all.Objects = append(all.Objects, page.Objects...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// ValidateParts checks that parts is non-empty, ascending and contiguous
// from 1. ETag matching is left to the store.
func ValidateParts(parts []CompletedPart) error {
	if len(parts) == 0 {
		return fmt.Errorf("%w: no parts", common.ErrInvalidPartSet)
	}
	for i, p := range parts {
		want := int32(i + 1)
		if p.PartNumber != want {
			return fmt.Errorf("%w: expected part %d at position %d, got %d", common.ErrInvalidPartSet, want, i, p.PartNumber)
		}
		if p.ETag == "" {
			return fmt.Errorf("%w: part %d has no ETag", common.ErrInvalidPartSet, p.PartNumber)
		}
	}
	return nil
}
