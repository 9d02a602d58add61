package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// ErrInvalid marks submissions the API should reject as client errors.
var ErrInvalid = errors.New("invalid job submission")

// ObjectStore is the slice of the storage layer the jobs package needs.
type ObjectStore interface {
	ObjectPath(name string) (string, error)
	ResultPath(name string) (string, error)
	WorkPath(name string) string
	Exists(name string) bool
}

// SubmitParams is a job submission after JSON decoding.
type SubmitParams struct {
	VideoURL     string
	UploadObject string
	OutputURL    string
	Sport        string
	Options      Options
}

type Service struct {
	repo   Repository
	store  ObjectStore
	logger *slog.Logger
}

func NewService(repo Repository, store ObjectStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, store: store, logger: logger}
}

// Submit validates a submission and enqueues it for the runner. Exactly one
// of VideoURL and UploadObject must be set; an upload object must already be
// in the store.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*Job, error) {
	if (p.VideoURL == "") == (p.UploadObject == "") {
		return nil, fmt.Errorf("%w: exactly one of video_url and upload_object is required", ErrInvalid)
	}
	if p.VideoURL != "" {
		if err := checkURL(p.VideoURL); err != nil {
			return nil, fmt.Errorf("%w: video_url: %v", ErrInvalid, err)
		}
	}
	if p.OutputURL != "" {
		if err := checkURL(p.OutputURL); err != nil {
			return nil, fmt.Errorf("%w: output_url: %v", ErrInvalid, err)
		}
	}

	var sourcePath string
	if p.UploadObject != "" {
		path, err := s.store.ObjectPath(p.UploadObject)
		if err != nil {
			return nil, fmt.Errorf("%w: upload_object: %v", ErrInvalid, err)
		}
		if !s.store.Exists(p.UploadObject) {
			return nil, fmt.Errorf("%w: upload_object %q not found", ErrInvalid, p.UploadObject)
		}
		sourcePath = path
	}

	opts, err := json.Marshal(p.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:         NewID(),
		Status:     StatusPending,
		Sport:      strings.ToLower(strings.TrimSpace(p.Sport)),
		VideoURL:   p.VideoURL,
		OutputURL:  p.OutputURL,
		SourcePath: sourcePath,
		Options:    string(opts),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("job submitted",
		"job_id", job.ID, "sport", job.Sport, "remote", job.VideoURL != "")
	return job, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
