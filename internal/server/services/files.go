package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/keys"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/objectstore"
)

const defaultMimeType = "application/octet-stream"

// FileService implements folder semantics over the flat key space of the
// object store. Every path it accepts or returns is a virtual path relative
// to the caller's namespace.
//
// Folder operations are not transactional. Move and rename copy every
// object before deleting any, so a failure leaves the source intact and the
// operation can be re-run.
type FileService struct {
	store            objectstore.Client
	log              logging.Logger
	pageSize         int32
	copyConcurrency  int
	signedURLTTL     time.Duration
	operationTimeout time.Duration
}

// NewFileService constructs a FileService over store using the listing,
// copy and timeout settings from cfg.
func NewFileService(store objectstore.Client, cfg *config.Config, log logging.Logger) *FileService {
	return &FileService{
		store:            store,
		log:              log.With("module", "files"),
		pageSize:         cfg.ListPageSize,
		copyConcurrency:  cfg.CopyConcurrency,
		signedURLTTL:     cfg.SignedURLTTL,
		operationTimeout: cfg.OperationTimeout,
	}
}

// List returns the folders and files directly under virtualPrefix.
//
// Folder sizes require a second, recursive listing over every descendant,
// so the cost is linear in the number of objects below the prefix.
func (s *FileService) List(ctx context.Context, userID, virtualPrefix string) (*models.Listing, error) {
	prefix, err := keys.ToObjectKey(userID, virtualPrefix, true)
	if err != nil {
		return nil, err
	}

	level, err := objectstore.ListAll(ctx, s.store, prefix, keys.Separator, s.pageSize)
	if err != nil {
		return nil, err
	}
	listing := &models.Listing{
		Folders: make([]models.FolderEntry, 0, len(level.CommonPrefixes)),
		Files:   make([]models.FileEntry, 0, len(level.Objects)),
	}

	if len(level.CommonPrefixes) > 0 {
		folders, err := s.aggregateFolders(ctx, userID, prefix, level.CommonPrefixes)
		if err != nil {
			return nil, err
		}
		listing.Folders = folders
	}

	for _, obj := range level.Objects {
		if obj.Key == prefix {
			continue
		}
		vp, err := keys.ToVirtualPath(userID, obj.Key)
		if err != nil {
			return nil, err
		}
		name := keys.Base(vp)
		listing.Files = append(listing.Files, models.FileEntry{
			Key:          vp,
			Name:         name,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			MimeType:     mimeTypeOf(name),
		})
	}

	sort.Slice(listing.Files, func(i, j int) bool { return listing.Files[i].Name < listing.Files[j].Name })
	return listing, nil
}

func (s *FileService) aggregateFolders(ctx context.Context, userID, prefix string, commonPrefixes []string) ([]models.FolderEntry, error) {
	byKey := make(map[string]*models.FolderEntry, len(commonPrefixes))
	folders := make([]*models.FolderEntry, 0, len(commonPrefixes))
	for _, cp := range commonPrefixes {
		vp, err := keys.ToVirtualPath(userID, cp)
		if err != nil {
			return nil, err
		}
		f := &models.FolderEntry{Key: vp, Name: keys.Base(vp)}
		byKey[cp] = f
		folders = append(folders, f)
	}

	err := objectstore.Walk(ctx, s.store, objectstore.ListInput{Prefix: prefix, MaxKeys: s.pageSize}, func(page *objectstore.ListPage) error {
		for _, obj := range page.Objects {
			rest := obj.Key[len(prefix):]
			i := strings.Index(rest, keys.Separator)
			if i < 0 {
				continue
			}
			f, ok := byKey[prefix+rest[:i+1]]
			if !ok {
				continue
			}
			f.Size += obj.Size
			if obj.LastModified.After(f.LastModified) {
				f.LastModified = obj.LastModified
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.FolderEntry, len(folders))
	for i, f := range folders {
		out[i] = *f
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateFolder writes an empty marker for currentFolder/folderPath and
// returns its virtual path. Creating an existing folder is a no-op.
func (s *FileService) CreateFolder(ctx context.Context, userID, folderPath, currentFolder string) (string, error) {
	vp, err := keys.Clean(keys.Join(currentFolder, folderPath))
	if err != nil {
		return "", err
	}
	if vp == "" {
		return "", fmt.Errorf("%w: folder name is required", common.ErrValidation)
	}

	key, err := keys.ToObjectKey(userID, vp, true)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	if err := s.store.Put(ctx, key, bytes.NewReader(nil), 0, ""); err != nil {
		return "", err
	}
	return vp + keys.Separator, nil
}

// Delete removes a file, or a folder with everything below it.
//
// A folder is deleted page by page until the listing is exhausted. Keys the
// store refuses to delete are reported in a *common.PartialFailureError.
func (s *FileService) Delete(ctx context.Context, userID, virtualPath string, isFolder bool) error {
	key, err := s.mutableKey(userID, virtualPath, isFolder)
	if err != nil {
		return err
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	if !isFolder {
		return s.store.Delete(ctx, key)
	}

	var (
		total  int
		failed []string
		cause  error
	)
	err = objectstore.Walk(ctx, s.store, objectstore.ListInput{Prefix: key, MaxKeys: s.pageSize}, func(page *objectstore.ListPage) error {
		if len(page.Objects) == 0 {
			return nil
		}
		batch := make([]string, len(page.Objects))
		for i, obj := range page.Objects {
			batch[i] = obj.Key
		}
		total += len(batch)

		results, err := s.store.DeleteMany(ctx, batch)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Err == nil {
				continue
			}
			if cause == nil {
				cause = r.Err
			}
			failed = append(failed, s.virtual(userID, r.Key))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if total == 0 {
		return fmt.Errorf("folder %q: %w", virtualPath, common.ErrNotFound)
	}
	if len(failed) > 0 {
		s.log.Warn(ctx, "folder delete incomplete", "user", userID, "failed", len(failed), "total", total)
		return &common.PartialFailureError{Op: "delete", Failed: failed, Err: cause}
	}

	s.log.Info(ctx, "folder deleted", "user", userID, "objects", total)
	return nil
}

// Rename gives the file or folder at virtualPath a new name in the same
// parent folder and returns the new virtual path.
func (s *FileService) Rename(ctx context.Context, userID, virtualPath, newName string, isFolder bool) (string, error) {
	if newName == "" || strings.ContainsAny(newName, "/\\") {
		return "", fmt.Errorf("%w: new name must be a single path segment", common.ErrValidation)
	}
	name, err := keys.Clean(newName)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("%w: new name must be a single path segment", common.ErrValidation)
	}

	src, err := keys.Clean(virtualPath)
	if err != nil {
		return "", err
	}
	dst := keys.Join(keys.Parent(src), name)

	ctx, cancel := s.detach(ctx)
	defer cancel()

	if err := s.transfer(ctx, userID, src, dst, isFolder, true); err != nil {
		return "", err
	}
	return withSlash(dst, isFolder), nil
}

// Move moves every path into targetFolder, keeping base names. Paths ending
// with "/" are folders. Processing stops at the first failure.
func (s *FileService) Move(ctx context.Context, userID string, paths []string, targetFolder string) ([]string, error) {
	return s.relocate(ctx, userID, paths, targetFolder, true)
}

// Copy is Move without removing the sources.
func (s *FileService) Copy(ctx context.Context, userID string, paths []string, targetFolder string) ([]string, error) {
	return s.relocate(ctx, userID, paths, targetFolder, false)
}

func (s *FileService) relocate(ctx context.Context, userID string, paths []string, targetFolder string, removeSource bool) ([]string, error) {
	target, err := keys.Clean(targetFolder)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		isFolder := keys.IsFolderKey(p)
		src, err := keys.Clean(p)
		if err != nil {
			return out, err
		}
		dst := keys.Join(target, keys.Base(src))
		if err := s.transfer(ctx, userID, src, dst, isFolder, removeSource); err != nil {
			return out, fmt.Errorf("%s: %w", withSlash(src, isFolder), err)
		}
		out = append(out, withSlash(dst, isFolder))
	}
	return out, nil
}

// transfer copies src to dst and, if removeSource is set, deletes src once
// every copy has succeeded.
func (s *FileService) transfer(ctx context.Context, userID, src, dst string, isFolder, removeSource bool) error {
	srcKey, err := s.mutableKey(userID, src, isFolder)
	if err != nil {
		return err
	}
	dstKey, err := s.mutableKey(userID, dst, isFolder)
	if err != nil {
		return err
	}
	if srcKey == dstKey {
		return nil
	}

	if !isFolder {
		if err := s.store.Copy(ctx, srcKey, dstKey); err != nil {
			return err
		}
		if !removeSource {
			return nil
		}
		if err := s.store.Delete(ctx, srcKey); err != nil {
			return &common.DanglingSourceError{Sources: []string{src}, Err: err}
		}
		return nil
	}

	if keys.IsWithin(dstKey, srcKey) {
		return fmt.Errorf("%w: cannot move a folder into itself", common.ErrInvalidPath)
	}

	all, err := objectstore.ListAll(ctx, s.store, srcKey, "", s.pageSize)
	if err != nil {
		return err
	}
	if len(all.Objects) == 0 {
		return fmt.Errorf("folder %q: %w", src, common.ErrNotFound)
	}

	if err := s.copyAll(ctx, userID, srcKey, dstKey, all.Objects); err != nil {
		return err
	}
	if !removeSource {
		s.log.Info(ctx, "folder copied", "user", userID, "objects", len(all.Objects))
		return nil
	}

	sources := make([]string, len(all.Objects))
	for i, obj := range all.Objects {
		sources[i] = obj.Key
	}
	results, err := s.store.DeleteMany(ctx, sources)
	if err != nil {
		return &common.DanglingSourceError{Sources: s.virtualAll(userID, sources), Err: err}
	}

	var (
		dangling []string
		cause    error
	)
	for _, r := range results {
		if r.Err != nil {
			if cause == nil {
				cause = r.Err
			}
			dangling = append(dangling, s.virtual(userID, r.Key))
		}
	}
	if len(dangling) > 0 {
		s.log.Warn(ctx, "folder moved with dangling sources", "user", userID, "dangling", len(dangling))
		return &common.DanglingSourceError{Sources: dangling, Err: cause}
	}

	s.log.Info(ctx, "folder moved", "user", userID, "objects", len(all.Objects))
	return nil
}

// copyAll copies every object from srcPrefix to dstPrefix by literal prefix
// substitution. All copies are attempted; failures are collected.
func (s *FileService) copyAll(ctx context.Context, userID, srcPrefix, dstPrefix string, objects []objectstore.ObjectInfo) error {
	var (
		mu     sync.Mutex
		failed []string
		cause  error
	)

	g := new(errgroup.Group)
	if s.copyConcurrency > 0 {
		g.SetLimit(s.copyConcurrency)
	}

	for _, obj := range objects {
		src := obj.Key
		dst := dstPrefix + src[len(srcPrefix):]
		g.Go(func() error {
			var err error
			if keys.IsFolderKey(src) {
				err = s.store.Put(ctx, dst, bytes.NewReader(nil), 0, "")
			} else {
				err = s.store.Copy(ctx, src, dst)
			}
			if err != nil {
				mu.Lock()
				if cause == nil {
					cause = err
				}
				failed = append(failed, s.virtual(userID, src))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		s.log.Warn(ctx, "folder copy incomplete", "user", userID, "failed", len(failed), "total", len(objects))
		return &common.PartialFailureError{Op: "copy", Failed: failed, Err: cause}
	}
	return nil
}

// SignedURL returns a time-limited download link for a file.
func (s *FileService) SignedURL(ctx context.Context, userID, virtualPath string) (string, error) {
	key, err := keys.ToObjectKey(userID, virtualPath, false)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, key, s.signedURLTTL)
}

// OpenFile opens a file for download. The caller closes the body.
func (s *FileService) OpenFile(ctx context.Context, userID, virtualPath string) (*objectstore.Object, string, error) {
	key, err := keys.ToObjectKey(userID, virtualPath, false)
	if err != nil {
		return nil, "", err
	}
	obj, err := s.store.GetStream(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, "", fmt.Errorf("file %q: %w", virtualPath, common.ErrNotFound)
	}
	if err != nil {
		return nil, "", err
	}
	name := keys.Base(key)
	if obj.ContentType == "" {
		obj.ContentType = mimeTypeOf(name)
	}
	return obj, name, nil
}

// mutableKey resolves a path that is about to be written or removed. The
// namespace root itself is never a valid target.
func (s *FileService) mutableKey(userID, virtualPath string, isFolder bool) (string, error) {
	key, err := keys.ToObjectKey(userID, virtualPath, isFolder)
	if err != nil {
		return "", err
	}
	if root, _ := keys.UserPrefix(userID); key == root {
		return "", fmt.Errorf("%w: the root folder cannot be modified", common.ErrInvalidPath)
	}
	return key, nil
}

// detach keeps mutating operations running after the client goes away.
func (s *FileService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return detach(ctx, s.operationTimeout)
}

func (s *FileService) virtual(userID, key string) string {
	vp, err := keys.ToVirtualPath(userID, key)
	if err != nil {
		return ""
	}
	return vp
}

func (s *FileService) virtualAll(userID string, ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = s.virtual(userID, k)
	}
	return out
}

func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func withSlash(p string, isFolder bool) string {
	if isFolder && p != "" {
		return p + keys.Separator
	}
	return p
}

func mimeTypeOf(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return defaultMimeType
}
