package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

type ctxKey string

const userIDKey ctxKey = "userID"

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func requestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// echoRequestID returns the id assigned by middleware.RequestID to the client.
func (s *Server) echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(common.RequestIDHeaderName, requestIDFromContext(r.Context()))
		next.ServeHTTP(w, r)
	})
}

// recoverer turns handler panics into JSON 500s logged through s.logger;
// middleware.Recoverer answers with an empty body and prints to stderr.
// http.ErrAbortHandler is re-raised so the server drops the connection,
// which is how a broken zip stream is signalled to the client.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			s.logger.Error(r.Context(), "panic in handler", "request_id", requestIDFromContext(r.Context()), "panic", rvr)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// logRequests logs one line per request and feeds the request metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var observe func(string, string, int)
		if s.deps.Metrics != nil {
			observe = s.deps.Metrics.HTTP.Started()
		}

		// The user id is only known after authenticate has run further down
		// the chain, so it is reported back through this holder.
		holder := new(string)
		r = r.WithContext(context.WithValue(r.Context(), userHolderKey, holder))

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			if observe != nil {
				observe(r.Method, route, status)
			}
			args := []any{
				"request_id", requestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			}
			if *holder != "" {
				args = append(args, "user", *holder)
			}
			s.logger.Info(r.Context(), "request", args...)
		}()

		next.ServeHTTP(ww, r)
	})
}

const userHolderKey ctxKey = "userHolder"

// authenticate resolves the caller from "Authorization: Bearer <token>" or
// the token query parameter.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing token"})
			return
		}

		userID, err := s.deps.Users.UserIDFromAccessToken(token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if holder, ok := r.Context().Value(userHolderKey).(*string); ok {
			*holder = userID
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get(common.AuthorizationHeaderName); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(common.AccessTokenQueryParam)
}
