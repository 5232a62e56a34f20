package blob

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

// SupabaseStorage keeps images in a public Supabase Storage bucket.
type SupabaseStorage struct {
	client *storage.Client
	bucket string
}

func NewSupabaseStorage(baseURL string, key string, bucket string) *SupabaseStorage {
	endpoint := strings.TrimRight(baseURL, "/") + "/storage/v1"
	return &SupabaseStorage{
		client: storage.NewClient(endpoint, key, map[string]string{"apikey": key}),
		bucket: bucket,
	}
}

func (s *SupabaseStorage) PublicURL(name string) string {
	return s.client.GetPublicUrl(s.bucket, name).SignedURL
}

// Upload never overwrites: object names are generated per upload.
func (s *SupabaseStorage) Upload(ctx context.Context, name string, contentType string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upsert := false
	opts := storage.FileOptions{Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := s.client.UploadFile(s.bucket, name, body, opts); err != nil {
		return "", s.upstream("upload", name, err)
	}
	return s.PublicURL(name), nil
}

func (s *SupabaseStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{name}); err != nil {
		return s.upstream("delete", name, err)
	}
	return nil
}

func (s *SupabaseStorage) upstream(op string, name string, err error) error {
	log.Printf("[blob] WARN: %s %s/%s failed: %v", op, s.bucket, name, err)
	return fmt.Errorf("%s %s/%s: %w: %w", op, s.bucket, name, ErrUpstream, err)
}
