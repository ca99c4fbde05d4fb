// Package common defines shared constants and sentinel errors used across
// client and server layers of GophDrive. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation error")

	// Namespace errors.
	ErrForeignKey           = errors.New("key outside of caller namespace")
	ErrInvalidPath          = errors.New("invalid path")
	ErrEmptyOrMissingFolder = errors.New("folder is empty or does not exist")

	// Object store errors.
	ErrInvalidPartSet   = errors.New("invalid multipart part set")
	ErrStoreUnavailable = errors.New("object store unavailable")

	// Bulk operation outcomes, see PartialFailureError and DanglingSourceError.
	ErrPartialFailure = errors.New("partial failure")
	ErrDanglingSource = errors.New("source left behind after copy")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
