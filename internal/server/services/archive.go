package services

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/keys"
	"github.com/dmitrijs2005/gophdrive/internal/server/objectstore"
)

// ArchiveService streams folders as zip archives.
type ArchiveService struct {
	store    objectstore.Client
	log      logging.Logger
	pageSize int32
}

// NewArchiveService constructs an ArchiveService over store.
func NewArchiveService(store objectstore.Client, cfg *config.Config, log logging.Logger) *ArchiveService {
	return &ArchiveService{store: store, log: log.With("module", "archive"), pageSize: cfg.ListPageSize}
}

// Archive is a folder snapshot ready to be written. It is prepared before
// any response bytes are sent so that a missing folder can still be
// reported as an error.
type Archive struct {
	Name string

	store   objectstore.Client
	log     logging.Logger
	prefix  string
	objects []objectstore.ObjectInfo
}

// Prepare lists everything below the folder. A folder without objects
// fails with common.ErrEmptyOrMissingFolder.
func (s *ArchiveService) Prepare(ctx context.Context, userID, virtualPath string) (*Archive, error) {
	prefix, err := keys.ToObjectKey(userID, virtualPath, true)
	if err != nil {
		return nil, err
	}

	all, err := objectstore.ListAll(ctx, s.store, prefix, "", s.pageSize)
	if err != nil {
		return nil, err
	}
	if len(all.Objects) == 0 {
		return nil, fmt.Errorf("folder %q: %w", virtualPath, common.ErrEmptyOrMissingFolder)
	}

	name := keys.Base(prefix[len(keys.RootPrefix):])
	if vp, _ := keys.Clean(virtualPath); vp == "" {
		name = "files"
	}

	return &Archive{
		Name:    name + ".zip",
		store:   s.store,
		log:     s.log,
		prefix:  prefix,
		objects: all.Objects,
	}, nil
}

// WriteTo streams the archive to w. Entries are named by their path relative
// to the archived folder, so same-named files in different subfolders stay
// distinct. Folder markers are skipped.
//
// On a read or write failure the archive is left unfinished (no central
// directory) and the error is returned; the output is then not a valid zip.
func (a *Archive) WriteTo(ctx context.Context, w io.Writer) (int, error) {
	zw := zip.NewWriter(w)

	written := 0
	for _, obj := range a.objects {
		if keys.IsFolderKey(obj.Key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := a.appendObject(ctx, zw, obj); err != nil {
			a.log.Error(ctx, "archive aborted", "entries", written, "error", err)
			return written, err
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("finalize archive: %w", err)
	}
	return written, nil
}

func (a *Archive) appendObject(ctx context.Context, zw *zip.Writer, obj objectstore.ObjectInfo) error {
	src, err := a.store.GetStream(ctx, obj.Key)
	if err != nil {
		return err
	}
	defer src.Body.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     obj.Key[len(a.prefix):],
		Method:   zip.Deflate,
		Modified: obj.LastModified,
	})
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}

	if _, err := io.Copy(fw, src.Body); err != nil {
		return fmt.Errorf("copy %s into archive: %w", obj.Key[len(a.prefix):], err)
	}
	return nil
}
