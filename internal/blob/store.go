package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"time"
)

// MaxUploadBytes caps accepted image uploads at 5 MiB.
const MaxUploadBytes = 5 << 20

var (
	// ErrTooLarge indicates the upload exceeds MaxUploadBytes.
	ErrTooLarge = errors.New("file size must be 5MB or less")
	// ErrUnsupportedMedia indicates a content type outside the image allowlist.
	ErrUnsupportedMedia = errors.New("only JPEG, PNG and GIF images are supported")
)

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

var unsafeNameCharacters = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Upload describes an inbound image payload.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Store persists image payloads and returns the absolute URL under which the
// stored object is reachable.
type Store interface {
	Put(ctx context.Context, ownerID string, upload Upload) (string, error)
}

// Validate applies the upload policy without consuming the payload, so
// callers can reject a request before performing other work.
func Validate(upload Upload) error {
	if upload.Size > MaxUploadBytes {
		return ErrTooLarge
	}
	if _, ok := allowedContentTypes[upload.ContentType]; !ok {
		return ErrUnsupportedMedia
	}
	return nil
}

// objectKey builds a per-owner key of the form images/<owner>/<unix>_<name>,
// with the client-supplied filename reduced to a safe character set.
func objectKey(ownerID string, upload Upload, now time.Time) string {
	name := unsafeNameCharacters.ReplaceAllString(path.Base(upload.Name), "_")
	if name == "" || name == "." || name == ".." {
		name = "upload"
	}
	return fmt.Sprintf("images/%s/%d_%s", ownerID, now.Unix(), name)
}
