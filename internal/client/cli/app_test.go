package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophdrive/internal/client/api"
	"github.com/dmitrijs2005/gophdrive/internal/client/config"
	"github.com/dmitrijs2005/gophdrive/internal/client/uploader"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
)

type fakeDrive struct {
	tokens api.Tokens

	signupUser, signupPass string
	loginUser, loginPass   string
	loginErr               error

	listings map[string]*api.Listing
	listErr  error
	listed   []string

	created     []string
	deleted     []string
	renamed     []string
	relocated   []string
	relocTarget string
	signedFor   string
	signedURL   string
	folderZip   string
	uploads     [][]string
	uploadRes   []api.UploadResult
}

func (f *fakeDrive) Signup(_ context.Context, u, p string) error {
	f.signupUser, f.signupPass = u, p
	return nil
}
func (f *fakeDrive) Login(_ context.Context, u, p string) error {
	f.loginUser, f.loginPass = u, p
	if f.loginErr != nil {
		return f.loginErr
	}
	f.tokens = api.Tokens{AccessToken: "at", RefreshToken: "rt"}
	return nil
}
func (f *fakeDrive) LoggedIn() bool         { return f.tokens.AccessToken != "" }
func (f *fakeDrive) SetTokens(t api.Tokens) { f.tokens = t }
func (f *fakeDrive) List(_ context.Context, prefix string) (*api.Listing, error) {
	f.listed = append(f.listed, prefix)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if l, ok := f.listings[prefix]; ok {
		return l, nil
	}
	return &api.Listing{}, nil
}
func (f *fakeDrive) CreateFolder(_ context.Context, folderPath, current string) (string, error) {
	f.created = append(f.created, current+"|"+folderPath)
	return strings.TrimSuffix(folderPath, "/") + "/", nil
}
func (f *fakeDrive) Delete(_ context.Context, key string, isFolder bool) error {
	if isFolder {
		key += "(dir)"
	}
	f.deleted = append(f.deleted, key)
	return nil
}
func (f *fakeDrive) Rename(_ context.Context, key, newName string, isFolder bool) (string, error) {
	f.renamed = append(f.renamed, key, newName)
	out := parentOf(key) + newName
	if isFolder {
		out += "/"
	}
	return out, nil
}
func (f *fakeDrive) Move(_ context.Context, keys []string, target string) ([]string, error) {
	f.relocated, f.relocTarget = keys, target
	return keys, nil
}
func (f *fakeDrive) Copy(ctx context.Context, keys []string, target string) ([]string, error) {
	return f.Move(ctx, keys, target)
}
func (f *fakeDrive) SignedURL(_ context.Context, key string) (string, error) {
	f.signedFor = key
	return f.signedURL, nil
}
func (f *fakeDrive) DownloadFolder(_ context.Context, folder string, w io.Writer) (int64, error) {
	f.folderZip = folder
	n, err := io.WriteString(w, "PK-zip")
	return int64(n), err
}
func (f *fakeDrive) Upload(_ context.Context, folder string, paths []string) ([]api.UploadResult, error) {
	f.uploads = append(f.uploads, append([]string{folder}, paths...))
	return f.uploadRes, nil
}

type fakeUploader struct {
	calls []string
	errs  map[string]error
}

func (u *fakeUploader) UploadFile(_ context.Context, path, folder string, progress uploader.Progress) (string, error) {
	u.calls = append(u.calls, path+"->"+folder)
	if err := u.errs[filepath.Base(path)]; err != nil {
		return "", err
	}
	progress(5, 10)
	progress(10, 10)
	return folder + filepath.Base(path), nil
}

func newTestApp(t *testing.T, input string) (*App, *fakeDrive, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	drive := &fakeDrive{}
	out := &bytes.Buffer{}
	return &App{
		config: &config.Config{
			RequestTimeout: time.Second,
			TokenFile:      filepath.Join(dir, "session"),
			DownloadDir:    filepath.Join(dir, "downloads"),
		},
		api:      drive,
		uploader: &fakeUploader{},
		logger:   logging.Nop{},
		reader:   bufio.NewReader(strings.NewReader(input)),
		out:      out,
	}, drive, out
}

func TestResolve(t *testing.T) {
	a := &App{cwd: "docs/2024/"}

	tests := []struct {
		in, file, folder string
	}{
		{in: "a.txt", file: "docs/2024/a.txt", folder: "docs/2024/a.txt/"},
		{in: "/a.txt", file: "a.txt", folder: "a.txt/"},
		{in: "../b", file: "docs/b", folder: "docs/b/"},
		{in: "../../..", file: "", folder: ""},
		{in: "sub/", file: "docs/2024/sub/", folder: "docs/2024/sub/"},
		{in: "./x//y", file: "docs/2024/x/y", folder: "docs/2024/x/y/"},
		{in: "/", file: "", folder: ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.file, a.resolve(tc.in), tc.in)
		require.Equal(t, tc.folder, a.resolveFolder(tc.in), tc.in)
	}
}

func TestParentOf(t *testing.T) {
	require.Equal(t, "", parentOf("a.txt"))
	require.Equal(t, "", parentOf("docs/"))
	require.Equal(t, "docs/", parentOf("docs/a.txt"))
	require.Equal(t, "docs/x/", parentOf("docs/x/y/"))
}

func TestSession_SaveLoadClear(t *testing.T) {
	file := filepath.Join(t.TempDir(), "session")

	s, err := loadSession(file)
	require.NoError(t, err)
	require.Nil(t, s)

	require.NoError(t, saveSession(file, session{Username: "alice", Tokens: api.Tokens{AccessToken: "a", RefreshToken: "r"}}))
	fi, err := os.Stat(file)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	s, err = loadSession(file)
	require.NoError(t, err)
	require.Equal(t, "alice", s.Username)
	require.Equal(t, "r", s.RefreshToken)

	require.NoError(t, clearSession(file))
	require.NoError(t, clearSession(file))
	s, err = loadSession(file)
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestSession_Corrupt(t *testing.T) {
	file := filepath.Join(t.TempDir(), "session")
	require.NoError(t, os.WriteFile(file, []byte("{"), 0o600))
	_, err := loadSession(file)
	require.Error(t, err)
}

func TestNewApp_ResumesAndPersistsSession(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		ServerURL: "http://127.0.0.1:1",
		ChunkSize: config.MinChunkSize,
		TokenFile: filepath.Join(dir, "session"),
	}
	require.NoError(t, saveSession(cfg.TokenFile, session{Username: "bob", Tokens: api.Tokens{AccessToken: "a1", RefreshToken: "r1"}}))

	a, err := NewApp(cfg, logging.Nop{})
	require.NoError(t, err)
	require.True(t, a.isLoggedIn())
	require.Equal(t, "bob:/", a.prompt())

	a.api.SetTokens(api.Tokens{AccessToken: "a2", RefreshToken: "r2"})
	s, err := loadSession(cfg.TokenFile)
	require.NoError(t, err)
	require.Equal(t, "r2", s.RefreshToken)
	require.Equal(t, "bob", s.Username)
}
