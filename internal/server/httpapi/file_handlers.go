package httpapi

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

type messageResponse struct {
	Message string `json:"message"`
}

type keyResponse struct {
	Message string `json:"message,omitempty"`
	Key     string `json:"key"`
}

type keysResponse struct {
	Message string   `json:"message"`
	Keys    []string `json:"keys"`
}

type urlResponse struct {
	URL string `json:"url"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	listing, err := s.deps.Files.List(r.Context(), userIDFromContext(r.Context()), r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	key, err := s.deps.Files.CreateFolder(r.Context(), userIDFromContext(r.Context()), req.FolderPath, req.CurrentFolder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, keyResponse{Key: key})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Files.Delete(r.Context(), userIDFromContext(r.Context()), req.Key, req.IsFolder); err != nil {
		s.writeError(w, r, err)
		return
	}

	what := "file"
	if req.IsFolder {
		what = "folder"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: what + " deleted"})
}

func (s *Server) rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	key, err := s.deps.Files.Rename(r.Context(), userIDFromContext(r.Context()), req.Key, req.NewName, req.IsFolder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keyResponse{Message: "renamed", Key: key})
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	s.relocate(w, r, true)
}

func (s *Server) copy(w http.ResponseWriter, r *http.Request) {
	s.relocate(w, r, false)
}

func (s *Server) relocate(w http.ResponseWriter, r *http.Request, removeSource bool) {
	var req relocateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	paths := req.Keys
	if req.IsFolder {
		paths = make([]string, len(req.Keys))
		for i, k := range req.Keys {
			paths[i] = strings.TrimSuffix(k, "/") + "/"
		}
	}

	userID := userIDFromContext(r.Context())
	var (
		done []string
		err  error
		verb string
	)
	if removeSource {
		done, err = s.deps.Files.Move(r.Context(), userID, paths, req.TargetFolder)
		verb = "moved"
	} else {
		done, err = s.deps.Files.Copy(r.Context(), userID, paths, req.TargetFolder)
		verb = "copied"
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keysResponse{Message: fmt.Sprintf("%d item(s) %s", len(done), verb), Keys: done})
}

func (s *Server) signedURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeError(w, r, fmt.Errorf("%w: key is required", common.ErrValidation))
		return
	}

	link, err := s.deps.Files.SignedURL(r.Context(), userIDFromContext(r.Context()), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: link})
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeError(w, r, fmt.Errorf("%w: key is required", common.ErrValidation))
		return
	}

	obj, name, err := s.deps.Files.OpenFile(r.Context(), userIDFromContext(r.Context()), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Disposition", attachment(name))
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	if !obj.LastModified.IsZero() {
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		s.logger.Warn(r.Context(), "download interrupted", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

// downloadFolder streams a folder as a zip. Errors found before the first
// byte are reported normally; a failure mid-stream aborts the connection so
// the client cannot mistake a truncated archive for a complete one.
func (s *Server) downloadFolder(w http.ResponseWriter, r *http.Request) {
	// chi routes on the decoded path unless the request carries a RawPath
	// (an escaped "/"), so only the latter still needs unescaping.
	folder := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(folder)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: malformed escape", common.ErrInvalidPath))
			return
		}
		folder = unescaped
	}

	archive, err := s.deps.Archives.Prepare(r.Context(), userIDFromContext(r.Context()), folder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachment(archive.Name))
	w.WriteHeader(http.StatusOK)
	_ = http.NewResponseController(w).Flush()

	if _, err := archive.WriteTo(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), "zip stream aborted", "request_id", requestIDFromContext(r.Context()), "error", err)
		panic(http.ErrAbortHandler)
	}
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
