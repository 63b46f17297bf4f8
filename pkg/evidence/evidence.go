// Package evidence describes files attached to a session, such as a
// screenshot of the error being worked on, with SHA256 hashing.
package evidence

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxSize is the largest attachment accepted.
const MaxSize = 20 << 20

// ErrTooLarge is returned for files over MaxSize.
var ErrTooLarge = errors.New("attachment too large")

// Attachment is a file the user supplied as evidence of the problem.
type Attachment struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	MediaType string    `json:"mediaType"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	AddedAt   time.Time `json:"addedAt"`
}

// IsImage reports whether the attachment sniffed as an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MediaType, "image/")
}

// NewAttachment hashes the file at path and sniffs its media type.
func NewAttachment(path string, now time.Time) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("attachment %s is a directory", path)
	}
	if info.Size() > MaxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, path, info.Size(), MaxSize)
	}
	hash, size, mediaType, err := HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash attachment: %w", err)
	}
	return &Attachment{
		Path:      path,
		Name:      filepath.Base(path),
		MediaType: mediaType,
		SHA256:    hash,
		Size:      size,
		AddedAt:   now,
	}, nil
}

// HashFile computes the SHA256 hash, size and sniffed media type of a file.
func HashFile(path string) (string, int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", 0, "", err
	}
	head = head[:n]

	h := sha256.New()
	h.Write(head)
	rest, err := io.Copy(h, f)
	if err != nil {
		return "", 0, "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), int64(n) + rest, http.DetectContentType(head), nil
}
