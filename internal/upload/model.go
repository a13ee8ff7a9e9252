// Package upload stores user files on local disk or S3-compatible storage.
package upload

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("upload not found")
	ErrForbidden       = errors.New("access denied")
	ErrFileTooLarge    = errors.New("file too large")
	ErrTooManyFiles    = errors.New("too many files")
	ErrUnexpectedField = errors.New("unexpected file field")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoFiles         = errors.New("no files uploaded")
)

// limitError carries the client facing message for a rejected upload.
type limitError struct {
	kind error
	msg  string
}

func (e *limitError) Error() string { return e.msg }
func (e *limitError) Unwrap() error { return e.kind }

func tooLarge(max int64) error {
	return &limitError{ErrFileTooLarge, fmt.Sprintf("File too large. Maximum size is %dMB.", max>>20)}
}

func tooMany(max int) error {
	return &limitError{ErrTooManyFiles, fmt.Sprintf("Too many files. Maximum is %d files.", max)}
}

func unexpectedField(field string) error {
	return &limitError{ErrUnexpectedField, fmt.Sprintf("Unexpected file field %q.", field)}
}

func unsupported(mime string) error {
	return &limitError{ErrUnsupportedType, fmt.Sprintf("File type %s is not allowed.", mime)}
}

type File struct {
	Key          string    `json:"key"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	OwnerID      string    `json:"ownerId"`
	CreatedAt    time.Time `json:"createdAt"`
}
