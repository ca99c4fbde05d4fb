package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophdrive/internal/client/api"
	"github.com/dmitrijs2005/gophdrive/internal/common"
)

func TestList_PrintsFoldersThenFiles(t *testing.T) {
	a, drive, out := newTestApp(t, "")
	a.cwd = "docs/"
	drive.listings = map[string]*api.Listing{
		"docs/": {
			Folders: []api.FolderEntry{{Key: "docs/2024/", Name: "2024", Size: 2048}},
			Files:   []api.FileEntry{{Key: "docs/a.pdf", Name: "a.pdf", Size: 12, MimeType: "application/pdf"}},
		},
	}

	require.NoError(t, a.List(context.Background(), nil))
	require.Equal(t, []string{"docs/"}, drive.listed)
	require.Regexp(t, `(?s)2024/\s+2\.0 KiB.*a\.pdf\s+12 B.*application/pdf`, out.String())

	out.Reset()
	require.NoError(t, a.List(context.Background(), []string{"/empty"}))
	require.Equal(t, "empty/", drive.listed[1])
	require.Equal(t, "(empty)\n", out.String())
}

func TestCd(t *testing.T) {
	a, drive, _ := newTestApp(t, "")
	drive.listings = map[string]*api.Listing{
		"":      {Folders: []api.FolderEntry{{Key: "docs/", Name: "docs"}}},
		"docs/": {Folders: []api.FolderEntry{{Key: "docs/empty/", Name: "empty"}}},
	}

	require.NoError(t, a.Cd(context.Background(), []string{"docs"}))
	require.Equal(t, "docs/", a.cwd)

	require.NoError(t, a.Cd(context.Background(), []string{"empty"}))
	require.Equal(t, "docs/empty/", a.cwd)

	require.NoError(t, a.Cd(context.Background(), []string{"/"}))
	require.Equal(t, "", a.cwd)
	require.Equal(t, []string{"", "docs/"}, drive.listed, "root needs no check")

	err := a.Cd(context.Background(), []string{"missing"})
	require.ErrorIs(t, err, common.ErrNotFound)
	require.Equal(t, "", a.cwd)

	drive.listErr = &api.Error{Status: 503, Message: "store unavailable"}
	require.Error(t, a.Cd(context.Background(), []string{"docs"}))
	require.Equal(t, "", a.cwd)
}

func TestMkdir_SendsResolvedPath(t *testing.T) {
	a, drive, out := newTestApp(t, "")
	a.cwd = "docs/2024/"

	require.NoError(t, a.Mkdir(context.Background(), []string{"../archive"}))
	require.Equal(t, []string{"|docs/archive"}, drive.created)
	require.Contains(t, out.String(), "Created /docs/archive/")

	require.ErrorIs(t, a.Mkdir(context.Background(), nil), errUsage)
}

func TestRemove(t *testing.T) {
	a, drive, _ := newTestApp(t, "")
	a.cwd = "docs/"

	require.NoError(t, a.Remove(context.Background(), []string{"a.txt"}))
	require.Equal(t, []string{"docs/a.txt"}, drive.deleted)

	require.ErrorIs(t, a.Remove(context.Background(), []string{"folder/"}), errUsage)
	require.ErrorIs(t, a.Remove(context.Background(), []string{"/"}), errUsage)
}

func TestRemoveDir_Confirmation(t *testing.T) {
	a, drive, _ := newTestApp(t, "n\ny\n")
	a.cwd = "docs/old/"

	require.NoError(t, a.RemoveDir(context.Background(), []string{"/docs/old"}))
	require.Empty(t, drive.deleted, "declined")

	require.NoError(t, a.RemoveDir(context.Background(), []string{"/docs/old"}))
	require.Equal(t, []string{"docs/old/(dir)"}, drive.deleted)
	require.Equal(t, "docs/", a.cwd, "moved out of the deleted folder")

	require.ErrorIs(t, a.RemoveDir(context.Background(), []string{"/"}), common.ErrInvalidPath)
}

func TestRename_DetectsFolders(t *testing.T) {
	a, drive, out := newTestApp(t, "")
	a.cwd = "docs/"
	drive.listings = map[string]*api.Listing{
		"docs/": {Folders: []api.FolderEntry{{Key: "docs/2024/", Name: "2024"}}},
	}

	require.NoError(t, a.Rename(context.Background(), []string{"a.txt", "b.txt"}))
	require.Equal(t, []string{"docs/a.txt", "b.txt"}, drive.renamed)
	require.Contains(t, out.String(), "Renamed to /docs/b.txt")

	a.cwd = "docs/2024/x/"
	drive.renamed = nil
	require.NoError(t, a.Rename(context.Background(), []string{"/docs/2024", "y2024"}))
	require.Equal(t, []string{"docs/2024", "y2024"}, drive.renamed)
	require.Equal(t, "docs/y2024/x/", a.cwd, "cwd follows the renamed folder")

	require.ErrorIs(t, a.Rename(context.Background(), []string{"/", "x"}), common.ErrInvalidPath)
	require.ErrorIs(t, a.Rename(context.Background(), []string{"x"}), errUsage)
}

func TestMoveCopy(t *testing.T) {
	a, drive, out := newTestApp(t, "")
	drive.listings = map[string]*api.Listing{
		"": {Folders: []api.FolderEntry{{Key: "pics/", Name: "pics"}}},
	}

	require.NoError(t, a.Move(context.Background(), []string{"a.txt", "pics", "b/", "archive"}))
	require.Equal(t, []string{"a.txt", "pics/", "b/"}, drive.relocated)
	require.Equal(t, "archive/", drive.relocTarget)
	require.Contains(t, out.String(), "-> /pics/")

	require.NoError(t, a.Copy(context.Background(), []string{"a.txt", "/"}))
	require.Equal(t, "", drive.relocTarget)

	require.ErrorIs(t, a.Copy(context.Background(), []string{"a.txt"}), errUsage)
}

func TestURL(t *testing.T) {
	a, drive, out := newTestApp(t, "")
	a.cwd = "docs/"
	drive.signedURL = "http://store/blob/x?sig=1"

	require.NoError(t, a.URL(context.Background(), []string{"a.pdf"}))
	require.Equal(t, "docs/a.pdf", drive.signedFor)
	require.Equal(t, "http://store/blob/x?sig=1\n", out.String())
}

func TestHumanSize(t *testing.T) {
	require.Equal(t, "0 B", humanSize(0))
	require.Equal(t, "1023 B", humanSize(1023))
	require.Equal(t, "1.0 KiB", humanSize(1024))
	require.Equal(t, "5.5 MiB", humanSize(5<<20+512<<10))
	require.Equal(t, "2.0 GiB", humanSize(2<<30))
}
