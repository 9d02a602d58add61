package playback

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeVideo(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "result.mp4")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func TestServeVideo_FullClip(t *testing.T) {
	path := writeVideo(t, "0123456789")
	srv := NewServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	rec := httptest.NewRecorder()

	if err := srv.ServeVideo(rec, req, path); err != nil {
		t.Fatalf("ServeVideo() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q, want bytes", got)
	}
	if rec.Body.String() != "0123456789" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeVideo_PartialContent(t *testing.T) {
	path := writeVideo(t, "0123456789")
	srv := NewServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()

	if err := srv.ServeVideo(rec, req, path); err != nil {
		t.Fatalf("ServeVideo() error = %v", err)
	}

	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("Content-Range = %q", got)
	}
	if rec.Body.String() != "2345" {
		t.Errorf("body = %q, want 2345", rec.Body.String())
	}
}

func TestServeVideo_UnsatisfiableRange(t *testing.T) {
	path := writeVideo(t, "0123456789")
	srv := NewServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	req.Header.Set("Range", "bytes=100-")
	rec := httptest.NewRecorder()

	if err := srv.ServeVideo(rec, req, path); err != nil {
		t.Fatalf("ServeVideo() error = %v", err)
	}

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("Content-Range = %q, want bytes */10", got)
	}
}

func TestServeVideo_MalformedRangeFallsBack(t *testing.T) {
	path := writeVideo(t, "0123456789")
	srv := NewServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	req.Header.Set("Range", "pages=1-2")
	rec := httptest.NewRecorder()

	if err := srv.ServeVideo(rec, req, path); err != nil {
		t.Fatalf("ServeVideo() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 full-clip fallback", rec.Code)
	}
	if rec.Body.String() != "0123456789" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeVideo_Missing(t *testing.T) {
	srv := NewServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	rec := httptest.NewRecorder()

	if err := srv.ServeVideo(rec, req, filepath.Join(t.TempDir(), "missing.mp4")); err != nil {
		t.Fatalf("ServeVideo() error = %v", err)
	}

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
