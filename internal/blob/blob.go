// Package blob stores menu item images in an object storage bucket.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var ErrUpstream = errors.New("storage upstream failure")

type Storage interface {
	// Upload stores the object and returns its public URL.
	Upload(ctx context.Context, name string, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, name string) error
}

// ObjectName builds a collision-free object name that keeps the extension of
// the uploaded file.
func ObjectName(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return uuid.NewString() + ext
}

// NameFromURL accepts either a bare object name or a public URL and returns
// the object name.
func NameFromURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return path.Base(ref)
}
