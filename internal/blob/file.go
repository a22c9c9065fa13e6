package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var errMissingDirectory = errors.New("upload directory is required")

// FileStore writes uploads to a local directory. Stored objects are expected
// to be served back under <baseURL>/uploads/.
type FileStore struct {
	dir     string
	baseURL string
	clock   func() time.Time
}

// NewFileStore constructs a FileStore rooted at dir, creating it when absent.
func NewFileStore(dir, baseURL string, clock func() time.Time) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errMissingDirectory
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create upload directory: %w", err)
	}
	if clock == nil {
		clock = time.Now
	}
	return &FileStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
	}, nil
}

// Put stores the upload and returns its absolute URL.
func (s *FileStore) Put(_ context.Context, ownerID string, upload Upload) (string, error) {
	if err := Validate(upload); err != nil {
		return "", err
	}

	key := objectKey(ownerID, upload, s.clock())
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("blob: create object directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("blob: create object file: %w", err)
	}

	// The declared size is not trusted: copy one byte past the limit so an
	// oversized stream is detected.
	written, err := io.Copy(file, io.LimitReader(upload.Reader, MaxUploadBytes+1))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("blob: write object: %w", err)
	}
	if written > MaxUploadBytes {
		_ = os.Remove(target)
		return "", ErrTooLarge
	}

	return s.baseURL + "/uploads/" + key, nil
}
