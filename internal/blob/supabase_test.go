package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupabaseUploadAndDelete(t *testing.T) {
	var gotPath, gotAuth, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodDelete {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `{"Key":"menu-items/abc.png"}`)
	}))
	defer srv.Close()

	storage := NewSupabaseStorage(srv.URL+"/", "secret-key", "menu-items")
	url, err := storage.Upload(context.Background(), "abc.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/storage/v1/object/public/menu-items/abc.png", url)
	require.Equal(t, "POST /storage/v1/object/menu-items/abc.png", gotPath)
	require.Equal(t, "Bearer secret-key", gotAuth)
	require.Equal(t, "secret-key", gotKey)
	require.Equal(t, "png-bytes", gotBody)

	require.NoError(t, storage.Delete(context.Background(), NameFromURL(url)))
	require.Equal(t, "DELETE /storage/v1/object/menu-items", gotPath)
	require.Contains(t, gotBody, "abc.png")
}

func TestSupabaseFailureIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer srv.Close()

	storage := NewSupabaseStorage(srv.URL, "k", "missing")
	_, err := storage.Upload(context.Background(), "x.jpg", "image/jpeg", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrUpstream)
}

func TestSupabaseTransportErrorKeepsCause(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	storage := NewSupabaseStorage(base, "k", "menu-items")
	_, err := storage.Upload(context.Background(), "x.jpg", "image/jpeg", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrUpstream)
	require.Contains(t, err.Error(), "connect")
}

func TestSupabaseHonoursCancelledContext(t *testing.T) {
	storage := NewSupabaseStorage("http://127.0.0.1:1", "k", "menu-items")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.Upload(ctx, "x.jpg", "image/jpeg", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, storage.Delete(ctx, "x.jpg"), context.Canceled)
}

func TestObjectNameAndNameFromURL(t *testing.T) {
	name := ObjectName("Latte Photo.JPG")
	require.True(t, strings.HasSuffix(name, ".jpg"))
	require.Len(t, name, 36+4)

	require.Equal(t, "abc.png", NameFromURL("https://x.supabase.co/storage/v1/object/public/menu-items/abc.png?v=1"))
	require.Equal(t, "abc.png", NameFromURL("abc.png"))
}
