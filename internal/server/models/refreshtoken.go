package models

import "time"

// RefreshToken is a server-stored refresh token. Only the SHA-256 digest of
// the token is persisted.
type RefreshToken struct {
	UserID    string
	TokenHash string
	Expires   time.Time
}
