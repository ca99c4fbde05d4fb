package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/objectstore"
)

const maxJSONBody = 1 << 20

type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type createFolderRequest struct {
	FolderPath    string `json:"folderPath" validate:"required"`
	CurrentFolder string `json:"currentFolder"`
}

type deleteRequest struct {
	Key      string `json:"key" validate:"required"`
	IsFolder bool   `json:"isFolder"`
}

type renameRequest struct {
	Key      string `json:"key" validate:"required"`
	NewName  string `json:"newName" validate:"required"`
	IsFolder bool   `json:"isFolder"`
}

// relocateRequest serves both move and copy. Keys ending with "/" are
// folders; IsFolder marks every key as a folder.
type relocateRequest struct {
	Keys         []string `json:"keys" validate:"required,min=1,dive,required"`
	TargetFolder string   `json:"targetFolder"`
	IsFolder     bool     `json:"isFolder"`
}

type initiateUploadRequest struct {
	FileName    string `json:"fileName" validate:"required"`
	ContentType string `json:"contentType"`
	Folder      string `json:"folder"`
}

type completeUploadRequest struct {
	UploadID string                      `json:"uploadId" validate:"required"`
	Key      string                      `json:"key" validate:"required"`
	Parts    []objectstore.CompletedPart `json:"parts" validate:"dive"`
}

type abortUploadRequest struct {
	UploadID string `json:"uploadId" validate:"required"`
	Key      string `json:"key" validate:"required"`
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", common.ErrValidation)
		}
		return fmt.Errorf("%w: malformed JSON: %v", common.ErrValidation, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(msgs, "; "))
}
