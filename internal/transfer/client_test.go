package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.mp4")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestDownload_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method: %s", r.Method)
		}
		w.Write([]byte("clip bytes"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	client := NewClient(1024, testLogger())

	if err := client.Download(context.Background(), server.URL, dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "clip bytes" {
		t.Errorf("downloaded content = %q, want %q", data, "clip bytes")
	}
}

func TestDownload_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such clip"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	err := NewClient(1024, testLogger()).Download(context.Background(), server.URL, dest)
	if err == nil {
		t.Fatal("Download() error = nil for 404")
	}

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TransferError", err)
	}
	if te.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", te.StatusCode)
	}
	if te.IsRetryable() {
		t.Error("404 reported as retryable")
	}
}

func TestDownload_EnforcesByteCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked response: no Content-Length, cap must bite on the body.
		w.Header().Set("Transfer-Encoding", "chunked")
		io.Copy(w, strings.NewReader(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "clip.mp4")
	err := NewClient(50, testLogger()).Download(context.Background(), server.URL, dest)
	if err == nil {
		t.Fatal("Download() error = nil for oversized body")
	}

	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("oversized download left a file at dest")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("download dir has %d leftover entries, want 0", len(entries))
	}
}

func TestDownload_RejectsDeclaredOversize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	err := NewClient(50, testLogger()).Download(context.Background(), server.URL, dest)
	if err == nil {
		t.Fatal("Download() error = nil for oversized Content-Length")
	}
}

func TestUpload_Success(t *testing.T) {
	var gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeTemp(t, "annotated video")
	if err := NewClient(0, testLogger()).Upload(context.Background(), server.URL, path); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotBody != "annotated video" {
		t.Errorf("body = %q, want %q", gotBody, "annotated video")
	}
}

func TestUpload_RetriesServerErrorOnce(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeTemp(t, "annotated video")
	if err := NewClient(0, testLogger()).Upload(context.Background(), server.URL, path); err != nil {
		t.Fatalf("Upload() error = %v after retry", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestUpload_GivesUpAfterSecondFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("still broken"))
	}))
	defer server.Close()

	path := writeTemp(t, "annotated video")
	err := NewClient(0, testLogger()).Upload(context.Background(), server.URL, path)
	if err == nil {
		t.Fatal("Upload() error = nil for persistent 500")
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestUpload_ClientErrorIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("signature expired"))
	}))
	defer server.Close()

	path := writeTemp(t, "annotated video")
	err := NewClient(0, testLogger()).Upload(context.Background(), server.URL, path)
	if err == nil {
		t.Fatal("Upload() error = nil for 403")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 4xx)", got)
	}

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TransferError", err)
	}
	if !strings.Contains(te.Body, "signature expired") {
		t.Errorf("body = %q, want to contain signature expired", te.Body)
	}
}

func TestUpload_MissingSourceFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached")
	}))
	defer server.Close()

	err := NewClient(0, testLogger()).Upload(context.Background(), server.URL, filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Fatal("Upload() error = nil for missing source file")
	}
}
