package models

import "time"

// User is an account owning one namespace in the object store.
type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	CreatedAt    time.Time
}
