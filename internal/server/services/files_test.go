package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

func folderNames(l *models.Listing) []string {
	var out []string
	for _, f := range l.Folders {
		out = append(out, f.Name)
	}
	return out
}

func fileNames(l *models.Listing) []string {
	var out []string
	for _, f := range l.Files {
		out = append(out, f.Name)
	}
	return out
}

func TestFileService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)
	d := NewDispatcher(store, testConfig(), svc.log, nil)

	key, err := svc.CreateFolder(ctx, "u1", "docs", "")
	require.NoError(t, err)
	assert.Equal(t, "docs/", key)

	res := d.Dispatch(ctx, "u1", "docs", []UploadFile{{Name: "a.txt", Size: 5, ContentType: "text/plain", Open: openBytes([]byte("hello"))}})
	require.Len(t, res, 1)
	require.True(t, res[0].Success, res[0].Error)
	assert.Equal(t, "docs/a.txt", res[0].Key)

	root, err := svc.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, folderNames(root))
	assert.Empty(t, root.Files)

	docs, err := svc.List(ctx, "u1", "docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, fileNames(docs))
	assert.Equal(t, "docs/a.txt", docs.Files[0].Key)

	newPath, err := svc.Rename(ctx, "u1", "docs", "archive", true)
	require.NoError(t, err)
	assert.Equal(t, "archive/", newPath)

	root, err = svc.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"archive"}, folderNames(root))

	archive, err := svc.List(ctx, "u1", "archive")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, fileNames(archive))

	require.NoError(t, svc.Delete(ctx, "u1", "archive", true))

	root, err = svc.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, root.Folders)
	assert.Empty(t, root.Files)
}

func TestFileService_ListAggregatesFolders(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store, func(c *config.Config) { c.ListPageSize = 2 })

	putFile(t, store, "users/u1/report.pdf", "12345")
	putFile(t, store, "users/u1/docs/", "")
	putFile(t, store, "users/u1/docs/a.pdf", "abc")
	putFile(t, store, "users/u1/docs/deep/b.pdf", "abcdef")
	putFile(t, store, "users/u1/img/c.png", "x")
	putFile(t, store, "users/u10/docs/secret.txt", "nope")

	l, err := svc.List(ctx, "u1", "")
	require.NoError(t, err)

	require.Len(t, l.Folders, 2)
	assert.Equal(t, "docs/", l.Folders[0].Key)
	assert.Equal(t, int64(9), l.Folders[0].Size)
	assert.False(t, l.Folders[0].LastModified.IsZero())
	assert.Equal(t, "img", l.Folders[1].Name)
	assert.Equal(t, int64(1), l.Folders[1].Size)

	require.Len(t, l.Files, 1)
	assert.Equal(t, "report.pdf", l.Files[0].Key)
	assert.Equal(t, int64(5), l.Files[0].Size)
	assert.Equal(t, "application/pdf", l.Files[0].MimeType)

	docs, err := svc.List(ctx, "u1", "docs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"deep"}, folderNames(docs))
	assert.Equal(t, []string{"a.pdf"}, fileNames(docs), "the folder marker is not a file")
}

func TestFileService_ListEmptyPrefix(t *testing.T) {
	svc := newFileService(newFaultyStore())

	for _, p := range []string{"nothing", ""} {
		l, err := svc.List(context.Background(), "u1", p)
		require.NoError(t, err, "an empty prefix %q is not an error", p)
		assert.NotNil(t, l.Folders)
		assert.Empty(t, l.Folders)
		assert.Empty(t, l.Files)
	}
}

func TestFileService_ListRejectsEscapes(t *testing.T) {
	svc := newFileService(newFaultyStore())

	for _, p := range []string{"../u2", "docs/../../u2", "a\\b"} {
		_, err := svc.List(context.Background(), "u1", p)
		assert.ErrorIs(t, err, common.ErrInvalidPath, p)
	}
}

func TestFileService_CreateFolderIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newFileService(newFaultyStore())

	_, err := svc.CreateFolder(ctx, "u1", "photos", "")
	require.NoError(t, err)
	_, err = svc.CreateFolder(ctx, "u1", "/photos/", "")
	require.NoError(t, err)

	l, err := svc.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"photos"}, folderNames(l))

	key, err := svc.CreateFolder(ctx, "u1", "2024", "photos")
	require.NoError(t, err)
	assert.Equal(t, "photos/2024/", key)

	_, err = svc.CreateFolder(ctx, "u1", "", "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestFileService_CreateFolderSurvivesCancel(t *testing.T) {
	store := newFaultyStore()
	svc := newFileService(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateFolder(ctx, "u1", "late", "")
	require.NoError(t, err)
	assert.True(t, exists(store, "users/u1/late/"))
}

func TestFileService_DeleteFolderAcrossPages(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store, func(c *config.Config) { c.ListPageSize = 7 })

	for i := 0; i < 30; i++ {
		putFile(t, store, fmt.Sprintf("users/u1/big/f%02d.txt", i), "x")
	}
	putFile(t, store, "users/u1/big/sub/g.txt", "y")
	putFile(t, store, "users/u1/keep.txt", "z")

	require.NoError(t, svc.Delete(ctx, "u1", "big", true))
	assert.GreaterOrEqual(t, store.deletes, 5)

	after, err := svc.List(ctx, "u1", "big")
	require.NoError(t, err)
	assert.Empty(t, after.Files)
	assert.Empty(t, after.Folders)
	assert.True(t, exists(store, "users/u1/keep.txt"))
}

func TestFileService_DeletePartialFailure(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)

	putFile(t, store, "users/u1/d/a", "1")
	putFile(t, store, "users/u1/d/b", "2")
	putFile(t, store, "users/u1/d/c", "3")
	store.failDelete = func(k string) bool { return k == "users/u1/d/b" }

	err := svc.Delete(ctx, "u1", "d", true)
	require.Error(t, err)

	var pf *common.PartialFailureError
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, "delete", pf.Op)
	assert.Equal(t, []string{"d/b"}, pf.Failed)
	assert.ErrorIs(t, err, common.ErrPartialFailure)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)

	assert.False(t, exists(store, "users/u1/d/a"))
	assert.True(t, exists(store, "users/u1/d/b"))
}

func TestFileService_DeleteEdgeCases(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)

	assert.ErrorIs(t, svc.Delete(ctx, "u1", "ghost", true), common.ErrNotFound)
	assert.NoError(t, svc.Delete(ctx, "u1", "ghost.txt", false), "file delete is idempotent")
	assert.ErrorIs(t, svc.Delete(ctx, "u1", "", true), common.ErrInvalidPath)
	assert.ErrorIs(t, svc.Delete(ctx, "u1", "/", true), common.ErrInvalidPath)

	putFile(t, store, "users/u1/f.txt", "x")
	require.NoError(t, svc.Delete(ctx, "u1", "f.txt", false))
	assert.False(t, exists(store, "users/u1/f.txt"))
}

func TestFileService_RenameFolderCopyFailureKeepsSource(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store, func(c *config.Config) { c.CopyConcurrency = 1 })

	names := []string{"a", "b", "c", "d", "e"}
	for _, n := range names {
		putFile(t, store, "users/u1/src/"+n, n)
	}
	store.failCopy = func(src string) bool { return src == "users/u1/src/c" }

	_, err := svc.Rename(ctx, "u1", "src", "dst", true)
	require.Error(t, err)

	var pf *common.PartialFailureError
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, "copy", pf.Op)
	assert.Equal(t, []string{"src/c"}, pf.Failed)

	old, err := svc.List(ctx, "u1", "src")
	require.NoError(t, err)
	assert.Equal(t, names, fileNames(old), "no source object may be deleted")

	moved, err := svc.List(ctx, "u1", "dst")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d", "e"}, fileNames(moved))

	// The copy failure is transient; re-running completes the move.
	store.failCopy = nil
	_, err = svc.Rename(ctx, "u1", "src", "dst", true)
	require.NoError(t, err)
	old, err = svc.List(ctx, "u1", "src")
	require.NoError(t, err)
	assert.Empty(t, old.Files)
}

func TestFileService_RenameFileDanglingSource(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)

	putFile(t, store, "users/u1/a.txt", "data")
	store.failDelete = func(k string) bool { return k == "users/u1/a.txt" }

	_, err := svc.Rename(ctx, "u1", "a.txt", "b.txt", false)
	require.Error(t, err)

	var ds *common.DanglingSourceError
	require.True(t, errors.As(err, &ds))
	assert.Equal(t, []string{"a.txt"}, ds.Sources)
	assert.ErrorIs(t, err, common.ErrDanglingSource)

	assert.True(t, exists(store, "users/u1/a.txt"))
	assert.Equal(t, "data", readAll(t, store, "users/u1/b.txt"))
}

func TestFileService_RenameFolderDanglingSources(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)

	putFile(t, store, "users/u1/p/x", "1")
	putFile(t, store, "users/u1/p/y", "2")
	store.failDelete = func(k string) bool { return k == "users/u1/p/y" }

	_, err := svc.Rename(ctx, "u1", "p", "q", true)
	var ds *common.DanglingSourceError
	require.True(t, errors.As(err, &ds))
	assert.Equal(t, []string{"p/y"}, ds.Sources)
	assert.True(t, exists(store, "users/u1/q/x"))
	assert.True(t, exists(store, "users/u1/q/y"))
}

func TestFileService_RenameMarkerOnlyFolder(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)

	_, err := svc.CreateFolder(ctx, "u1", "empty", "")
	require.NoError(t, err)

	_, err = svc.Rename(ctx, "u1", "empty", "still-empty", true)
	require.NoError(t, err)

	l, err := svc.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"still-empty"}, folderNames(l))
}

func TestFileService_RenameValidation(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)
	putFile(t, store, "users/u1/docs/a.txt", "x")

	for _, name := range []string{"", "x/y", "..", ".", "a\\b"} {
		_, err := svc.Rename(ctx, "u1", "docs/a.txt", name, false)
		assert.Error(t, err, name)
	}

	_, err := svc.Rename(ctx, "u1", "docs/missing.txt", "b.txt", false)
	assert.ErrorIs(t, err, common.ErrNotFound)

	p, err := svc.Rename(ctx, "u1", "docs/a.txt", "a.txt", false)
	require.NoError(t, err, "renaming onto itself is a no-op")
	assert.Equal(t, "docs/a.txt", p)
	assert.True(t, exists(store, "users/u1/docs/a.txt"))
}

func TestFileService_MoveAndCopy(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)

	putFile(t, store, "users/u1/a.txt", "a")
	putFile(t, store, "users/u1/pics/p1.png", "p")
	_, err := svc.CreateFolder(ctx, "u1", "target", "")
	require.NoError(t, err)

	moved, err := svc.Move(ctx, "u1", []string{"a.txt", "pics/"}, "target")
	require.NoError(t, err)
	assert.Equal(t, []string{"target/a.txt", "target/pics/"}, moved)
	assert.False(t, exists(store, "users/u1/a.txt"))
	assert.True(t, exists(store, "users/u1/target/pics/p1.png"))

	copied, err := svc.Copy(ctx, "u1", []string{"target/a.txt"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, copied)
	assert.True(t, exists(store, "users/u1/a.txt"))
	assert.True(t, exists(store, "users/u1/target/a.txt"))
}

func TestFileService_MoveFolderIntoItself(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)

	putFile(t, store, "users/u1/a/b/c.txt", "x")

	_, err := svc.Move(ctx, "u1", []string{"a/"}, "a/b")
	assert.ErrorIs(t, err, common.ErrInvalidPath)
	assert.Zero(t, store.copies)

	out, err := svc.Move(ctx, "u1", []string{"a/b/"}, "a")
	require.NoError(t, err, "moving onto the identical path is a no-op")
	assert.Equal(t, []string{"a/b/"}, out)
	assert.True(t, exists(store, "users/u1/a/b/c.txt"))
}

func TestFileService_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)

	putFile(t, store, "users/u2/private/secret.txt", "s")

	other, err := svc.List(ctx, "u1", "private")
	require.NoError(t, err)
	assert.Empty(t, other.Files, "another user's folder reads as empty")

	_, err = svc.Rename(ctx, "u1", "../u2/private/secret.txt", "x", false)
	assert.ErrorIs(t, err, common.ErrInvalidPath)

	_, _, err = svc.OpenFile(ctx, "u1", "private/secret.txt")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, `file "private/secret.txt": not found`, err.Error())

	assert.True(t, exists(store, "users/u2/private/secret.txt"))
}

func TestFileService_SignedURLAndOpen(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newFileService(store)
	putFile(t, store, "users/u1/r.txt", "report")

	u, err := svc.SignedURL(ctx, "u1", "r.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost/blob/"))

	obj, name, err := svc.OpenFile(ctx, "u1", "r.txt")
	require.NoError(t, err)
	defer obj.Body.Close()
	assert.Equal(t, "r.txt", name)
	assert.Equal(t, int64(6), obj.Size)
}
