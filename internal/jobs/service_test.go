package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

// fakeStore is an in-memory ObjectStore for service tests.
type fakeStore struct {
	objects map[string]bool
}

func (s *fakeStore) ObjectPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return "", errors.New("invalid object name")
	}
	return filepath.Join("/data/objects", name), nil
}

func (s *fakeStore) ResultPath(name string) (string, error) {
	return filepath.Join("/data/results", name), nil
}

func (s *fakeStore) WorkPath(name string) string {
	return filepath.Join("/data/work", name)
}

func (s *fakeStore) Exists(name string) bool {
	return s.objects[name]
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := &fakeStore{objects: map[string]bool{"clip.mp4": true}}
	return NewService(newTestRepo(t), store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubmit_RejectsBadParams(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params SubmitParams
	}{
		{"no source", SubmitParams{}},
		{"both sources", SubmitParams{VideoURL: "https://example.com/a.mp4", UploadObject: "clip.mp4"}},
		{"ftp scheme", SubmitParams{VideoURL: "ftp://example.com/a.mp4"}},
		{"no host", SubmitParams{VideoURL: "https:///a.mp4"}},
		{"bad output url", SubmitParams{UploadObject: "clip.mp4", OutputURL: "not a url at all\x7f"}},
		{"output url scheme", SubmitParams{UploadObject: "clip.mp4", OutputURL: "file:///etc/passwd"}},
		{"unknown object", SubmitParams{UploadObject: "missing.mp4"}},
		{"traversal object", SubmitParams{UploadObject: "../clip.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.params)
			if err == nil {
				t.Fatal("Submit() error = nil")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Submit() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSubmit_WithUploadObject(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	job, err := svc.Submit(ctx, SubmitParams{
		UploadObject: "clip.mp4",
		Sport:        " Tennis ",
		Options:      Options{MaxTips: intPtr(2)},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if job.Status != StatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if job.Sport != "tennis" {
		t.Errorf("Sport = %q, want normalized tennis", job.Sport)
	}
	if job.SourcePath != filepath.Join("/data/objects", "clip.mp4") {
		t.Errorf("SourcePath = %q", job.SourcePath)
	}
	if !strings.Contains(job.Options, `"max_tips":2`) {
		t.Errorf("Options = %q, want stored max_tips override", job.Options)
	}

	// The job must be readable back through the repository.
	got, err := svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("Get() = %+v", got)
	}
}

func TestSubmit_WithVideoURL(t *testing.T) {
	svc := newTestService(t)

	job, err := svc.Submit(context.Background(), SubmitParams{
		VideoURL:  "https://example.com/serve.mp4",
		OutputURL: "https://example.com/annotated.mp4",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if job.SourcePath != "" {
		t.Errorf("SourcePath = %q, want empty for remote source", job.SourcePath)
	}
	if job.VideoURL != "https://example.com/serve.mp4" {
		t.Errorf("VideoURL = %q", job.VideoURL)
	}
	if job.OutputURL != "https://example.com/annotated.mp4" {
		t.Errorf("OutputURL = %q", job.OutputURL)
	}
}

func TestList_ReturnsSubmittedJobs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Submit(ctx, SubmitParams{UploadObject: "clip.mp4"}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	jobs, err := svc.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("len(jobs) = %d, want 3", len(jobs))
	}
}
