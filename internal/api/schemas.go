package api

import (
	"time"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/jobs"
)

type HealthResponse struct {
	Status       string               `json:"status"`
	Version      string               `json:"version"`
	UptimeS      int64                `json:"uptime_s"`
	Capabilities CapabilitiesResponse `json:"capabilities"`
}

// CapabilitiesResponse tells clients which optional server features are live.
type CapabilitiesResponse struct {
	Sports         []string `json:"sports"`
	SignedURLs     bool     `json:"signed_urls"`
	SportDetection bool     `json:"sport_detection"`
}

type SubmitJobRequest struct {
	VideoURL     string        `json:"video_url,omitempty"`
	UploadObject string        `json:"upload_object,omitempty"`
	OutputURL    string        `json:"output_url,omitempty"`
	Sport        string        `json:"sport,omitempty"`
	Options      *jobs.Options `json:"options,omitempty"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Sport     string `json:"sport,omitempty"`
	VideoURL  string `json:"video_url,omitempty"`
	OutputURL string `json:"output_url,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// JobDetailResponse is a job row plus its result document once one exists.
type JobDetailResponse struct {
	JobResponse
	Result *jobs.ResultDoc `json:"result,omitempty"`
}

type SignURLRequest struct {
	Object     string `json:"object"`
	TTLSeconds int    `json:"ttl_s,omitempty"`
}

// SignURLResponse is a matched pair of transfer URLs for one object: the PUT
// target for the clip and the GET link that serves it (or the annotated
// result stored under the same name) afterwards.
type SignURLResponse struct {
	Object            string `json:"object"`
	UploadURL         string `json:"upload_url"`
	UploadExpiresAt   string `json:"upload_expires_at"`
	DownloadURL       string `json:"download_url"`
	DownloadExpiresAt string `json:"download_expires_at"`
}

type UploadResponse struct {
	Object string `json:"object"`
	Bytes  int64  `json:"bytes"`
}

type DetectSportRequest struct {
	JobID        string `json:"job_id,omitempty"`
	UploadObject string `json:"upload_object,omitempty"`
}

type DetectSportResponse struct {
	Sport      string  `json:"sport"`
	Confidence float64 `json:"confidence"`
}

type RecommendationsResponse struct {
	Sport  string           `json:"sport"`
	Focus  string           `json:"focus"`
	Drills []analysis.Drill `json:"drills"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Status:    j.Status,
		Sport:     j.Sport,
		VideoURL:  j.VideoURL,
		OutputURL: j.OutputURL,
		Progress:  j.Progress,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}
