package cli

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/client/api"
	"github.com/dmitrijs2005/gophdrive/internal/client/config"
	"github.com/dmitrijs2005/gophdrive/internal/client/uploader"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
)

// driveAPI is the part of api.Client the commands use.
type driveAPI interface {
	Signup(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
	LoggedIn() bool
	SetTokens(t api.Tokens)
	List(ctx context.Context, prefix string) (*api.Listing, error)
	CreateFolder(ctx context.Context, folderPath, currentFolder string) (string, error)
	Delete(ctx context.Context, key string, isFolder bool) error
	Rename(ctx context.Context, key, newName string, isFolder bool) (string, error)
	Move(ctx context.Context, keys []string, targetFolder string) ([]string, error)
	Copy(ctx context.Context, keys []string, targetFolder string) ([]string, error)
	SignedURL(ctx context.Context, key string) (string, error)
	DownloadFolder(ctx context.Context, folder string, w io.Writer) (int64, error)
	Upload(ctx context.Context, folder string, paths []string) ([]api.UploadResult, error)
}

type fileUploader interface {
	UploadFile(ctx context.Context, path, folder string, progress uploader.Progress) (string, error)
}

type App struct {
	config   *config.Config
	api      driveAPI
	uploader fileUploader
	// transfers carries signed-URL downloads; it has no overall timeout.
	transfers *http.Client
	logger    logging.Logger
	reader    *bufio.Reader
	out       io.Writer

	userName string
	// cwd is the current virtual folder: "" for the root, otherwise "a/b/".
	cwd string
}

func NewApp(c *config.Config, logger logging.Logger) (*App, error) {
	client := api.New(c.ServerURL, &http.Client{})

	a := &App{
		config:    c,
		api:       client,
		uploader:  uploader.New(client, c.ChunkSize),
		transfers: &http.Client{},
		logger:    logger,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}

	if s, err := loadSession(c.TokenFile); err != nil {
		logger.Warn(context.Background(), "cannot read saved session", "file", c.TokenFile, "error", err)
	} else if s != nil {
		a.userName = s.Username
		client.SetTokens(s.Tokens)
	}

	client.OnTokens = func(t api.Tokens) {
		if t.AccessToken == "" {
			return
		}
		if err := saveSession(c.TokenFile, session{Username: a.userName, Tokens: t}); err != nil {
			logger.Warn(context.Background(), "cannot save session", "file", c.TokenFile, "error", err)
		}
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.api.LoggedIn()
}

// call bounds an ordinary API call by the configured request timeout.
func (a *App) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config == nil || a.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

// resolve turns a user-typed path into a virtual path. Paths starting with
// "/" are taken from the root, anything else from the current folder.
// A trailing "/" is kept.
func (a *App) resolve(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = a.cwd + p
	}
	trailing := strings.HasSuffix(p, "/")
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p != "" && trailing {
		p += "/"
	}
	return p
}

// resolveFolder is resolve with a guaranteed trailing "/" (except for the root).
func (a *App) resolveFolder(p string) string {
	p = a.resolve(p)
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func (a *App) prompt() string {
	s := "/" + a.cwd
	if a.userName != "" && a.isLoggedIn() {
		s = a.userName + ":" + s
	}
	return s
}
