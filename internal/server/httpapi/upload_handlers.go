package httpapi

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/services"
)

type uploadResultsResponse struct {
	Results []models.UploadResult `json:"results"`
}

type chunkResponse struct {
	ETag       string `json:"ETag"`
	PartNumber int32  `json:"PartNumber"`
}

// parseForm parses a multipart body. Parts beyond maxFormMemory spill to
// temporary files, which the returned cleanup removes.
func (s *Server) parseForm(r *http.Request) (func(), error) {
	if err := r.ParseMultipartForm(s.maxFormMemory); err != nil {
		return func() {}, fmt.Errorf("%w: multipart form expected: %v", common.ErrValidation, err)
	}
	return func() { _ = r.MultipartForm.RemoveAll() }, nil
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	cleanup, err := s.parseForm(r)
	defer cleanup()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	headers := r.MultipartForm.File["files"]
	headers = append(headers, r.MultipartForm.File["files[]"]...)
	if len(headers) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: no files in request", common.ErrValidation))
		return
	}

	files := make([]services.UploadFile, len(headers))
	for i, fh := range headers {
		files[i] = services.UploadFile{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Open:        openPart(fh),
		}
	}

	results := s.deps.Dispatcher.Dispatch(r.Context(), userIDFromContext(r.Context()), r.FormValue("folder"), files)
	writeJSON(w, http.StatusOK, uploadResultsResponse{Results: results})
}

func openPart(fh *multipart.FileHeader) func() (io.ReadSeekCloser, error) {
	return func() (io.ReadSeekCloser, error) {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func (s *Server) initiateUpload(w http.ResponseWriter, r *http.Request) {
	var req initiateUploadRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.deps.Uploads.Initiate(r.Context(), userIDFromContext(r.Context()), req.FileName, req.ContentType, req.Folder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) uploadChunk(w http.ResponseWriter, r *http.Request) {
	cleanup, err := s.parseForm(r)
	defer cleanup()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	partNumber, err := strconv.ParseInt(r.FormValue("partNumber"), 10, 32)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: partNumber must be an integer", common.ErrValidation))
		return
	}

	chunk, header, err := r.FormFile("chunk")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: chunk is required", common.ErrValidation))
		return
	}
	defer chunk.Close()

	etag, err := s.deps.Uploads.UploadChunk(r.Context(), userIDFromContext(r.Context()),
		r.FormValue("uploadId"), r.FormValue("key"), int32(partNumber), chunk, header.Size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunkResponse{ETag: etag, PartNumber: int32(partNumber)})
}

func (s *Server) completeUpload(w http.ResponseWriter, r *http.Request) {
	var req completeUploadRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Uploads.Complete(r.Context(), userIDFromContext(r.Context()), req.UploadID, req.Key, req.Parts); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "upload completed"})
}

func (s *Server) abortUpload(w http.ResponseWriter, r *http.Request) {
	var req abortUploadRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Uploads.Abort(r.Context(), userIDFromContext(r.Context()), req.UploadID, req.Key); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "upload aborted"})
}
