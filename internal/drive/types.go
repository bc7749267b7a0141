package drive

import (
	"errors"
	"fmt"
	"time"
)

// FolderMimeType marks a Drive file as a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

// Result is what every gateway operation returns. Provider failures are
// captured in Error instead of being returned as Go errors.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// Err keeps the typed cause for callers that want errors.Is/As.
	Err error `json:"-"`
}

func ok[T any](v T) Result[T] {
	return Result[T]{Success: true, Data: v}
}

func fail[T any](err error) Result[T] {
	return Result[T]{Success: false, Error: err.Error(), Err: err}
}

// File is the subset of Drive file metadata commshub uses.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Parents      []string  `json:"parents,omitempty"`
	WebViewLink  string    `json:"webViewLink,omitempty"`
	Size         int64     `json:"size,string,omitempty"`
	CreatedTime  time.Time `json:"createdTime,omitempty"`
	ModifiedTime time.Time `json:"modifiedTime,omitempty"`
}

// IsFolder reports whether f is a folder.
func (f *File) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// FileList is one page of files.
type FileList struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// ShareLink is the public link produced by sharing a file or folder.
type ShareLink struct {
	FileID string `json:"fileId"`
	Role   string `json:"role"`
	URL    string `json:"url"`
}

// Empty is the payload of operations that return nothing.
type Empty struct{}

// APIError is a non-2xx answer from the Drive API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Drive API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// ErrInvalidArgument is returned for requests rejected before any network call.
var ErrInvalidArgument = errors.New("invalid argument")

// Share roles accepted by ShareFolder.
const (
	RoleReader    = "reader"
	RoleCommenter = "commenter"
	RoleWriter    = "writer"
)

func validRole(role string) bool {
	switch role {
	case RoleReader, RoleCommenter, RoleWriter:
		return true
	}
	return false
}
