// Package httpapi exposes the file services over HTTP/JSON.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/metrics"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/services"
)

const shutdownTimeout = 30 * time.Second

// Users is the identity collaborator. Every file route resolves the caller
// through UserIDFromAccessToken.
type Users interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	UserIDFromAccessToken(token string) (string, error)
}

// Deps are the services the API serves.
type Deps struct {
	Users      Users
	Files      *services.FileService
	Archives   *services.ArchiveService
	Uploads    *services.UploadService
	Dispatcher *services.Dispatcher

	// Metrics is optional; nil disables /metrics and request metrics.
	Metrics *metrics.Registry
	// Blob, when set, is mounted at /blob to serve signed links of the
	// in-memory store.
	Blob http.Handler
}

type Server struct {
	address       string
	deps          Deps
	logger        logging.Logger
	validate      *validator.Validate
	maxFormMemory int64
	router        chi.Router
}

// NewServer wires the routes for deps. Multipart forms keep up to
// maxFormMemory bytes in memory before spilling to disk.
func NewServer(address string, l logging.Logger, deps Deps, maxFormMemory int64) *Server {
	s := &Server{
		address:       address,
		deps:          deps,
		logger:        l.With("module", "http_server"),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		maxFormMemory: maxFormMemory,
	}
	s.validate.RegisterTagNameFunc(jsonFieldName)
	s.router = s.routes()
	return s
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, s.echoRequestID, s.logRequests, s.recoverer)

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}
	if s.deps.Blob != nil {
		r.Mount("/blob", http.StripPrefix("/blob", s.deps.Blob))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.signup)
		r.Post("/login", s.login)
		r.Post("/refresh", s.refresh)
	})

	r.Route("/files", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/list", s.list)
		r.Post("/folder", s.createFolder)
		r.Post("/delete", s.delete)
		r.Post("/rename", s.rename)
		r.Post("/move", s.move)
		r.Post("/copy", s.copy)
		r.Get("/signed-url", s.signedURL)
		r.Get("/download-file", s.downloadFile)
		r.Get("/download/*", s.downloadFolder)

		r.Post("/upload", s.upload)
		r.Post("/upload/initiate", s.initiateUpload)
		r.Post("/upload/chunk", s.uploadChunk)
		r.Post("/upload/complete", s.completeUpload)
		r.Post("/upload/abort", s.abortUpload)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *Server) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}
