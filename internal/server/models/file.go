// Package models defines server-side data models: database records and the
// derived namespace views returned by listings.
package models

import "time"

// FolderEntry is a folder derived from key prefixes. Size and LastModified
// aggregate every object below it.
type FolderEntry struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// FileEntry is one stored object seen through its owner's namespace.
type FileEntry struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	MimeType     string    `json:"mimeType"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
}

// Listing is the content of one folder level.
type Listing struct {
	Folders []FolderEntry `json:"folders"`
	Files   []FileEntry   `json:"files"`
}

// UploadResult is the outcome of one file of a batch upload.
type UploadResult struct {
	Success bool   `json:"success"`
	Key     string `json:"key,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UploadSession identifies an open chunked upload.
type UploadSession struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}
