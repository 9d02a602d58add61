package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/jobs"
	"github.com/formsight/formsight-server/internal/pipeline"
	"github.com/formsight/formsight-server/internal/storage"
)

// maxSignedTTL caps client-requested signed URL lifetimes.
const maxSignedTTL = 24 * time.Hour

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/healthz", healthHandler(cfg))

	r.Route("/v1", func(r chi.Router) {
		// Transfer routes authenticate through their URL signature.
		r.Put("/uploads/{object}", uploadHandler(cfg))
		r.Get("/files/{object}", downloadHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.AuthToken, cfg.Logger))

			r.Post("/jobs", submitJobHandler(cfg))
			r.Get("/jobs", listJobsHandler(cfg))
			r.Get("/jobs/{id}", getJobHandler(cfg))
			r.Get("/jobs/{id}/video", jobVideoHandler(cfg))
			r.Get("/jobs/{id}/report", reportHandler(cfg))
			r.Post("/signed-urls", signURLHandler(cfg))
			r.Post("/detect-sport", detectSportHandler(cfg))
			r.Get("/recommendations", recommendationsHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
			Capabilities: CapabilitiesResponse{
				Sports:         []string{analysis.SportTennis},
				SignedURLs:     cfg.Signer != nil && cfg.Signer.Enabled(),
				SportDetection: cfg.Detector != nil,
			},
		})
	}
}

func submitJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		p := jobs.SubmitParams{
			VideoURL:     req.VideoURL,
			UploadObject: req.UploadObject,
			OutputURL:    req.OutputURL,
			Sport:        req.Sport,
		}
		if req.Options != nil {
			p.Options = *req.Options
		}

		job, err := cfg.Jobs.Submit(r.Context(), p)
		if errors.Is(err, jobs.ErrInvalid) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to create job", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if q := r.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "limit must be an integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		list, err := cfg.Jobs.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}

		doc, err := job.ParseResult()
		if err != nil {
			cfg.Logger.Error("stored result document is unreadable", "error", err, "job_id", job.ID)
			WriteError(w, http.StatusInternalServerError, "failed to load result", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, JobDetailResponse{JobResponse: JobToResponse(job), Result: doc})
	}
}

func jobVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}
		if job.ResultPath == "" {
			WriteError(w, http.StatusNotFound, "job has no annotated video", "NO_VIDEO")
			return
		}

		if err := cfg.Playback.ServeVideo(w, r, job.ResultPath); err != nil {
			cfg.Logger.Error("video playback error", "error", err, "job_id", job.ID)
		}
	}
}

func signURLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Signer == nil || !cfg.Signer.Enabled() {
			WriteError(w, http.StatusServiceUnavailable, "signed urls are not configured", "SIGNING_DISABLED")
			return
		}

		var req SignURLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if !storage.ValidName(req.Object) {
			WriteError(w, http.StatusBadRequest, "invalid object name", "BAD_REQUEST")
			return
		}

		uploadTTL, downloadTTL := storage.DefaultUploadTTL, storage.DefaultDownloadTTL
		if req.TTLSeconds > 0 {
			ttl := min(time.Duration(req.TTLSeconds)*time.Second, maxSignedTTL)
			uploadTTL, downloadTTL = ttl, ttl
		}

		uploadURL, uploadExp := cfg.Signer.SignedURL(http.MethodPut, "/v1/uploads", req.Object, uploadTTL)
		downloadURL, downloadExp := cfg.Signer.SignedURL(http.MethodGet, "/v1/files", req.Object, downloadTTL)

		WriteJSON(w, http.StatusOK, SignURLResponse{
			Object:            req.Object,
			UploadURL:         uploadURL,
			UploadExpiresAt:   uploadExp.UTC().Format(time.RFC3339),
			DownloadURL:       downloadURL,
			DownloadExpiresAt: downloadExp.UTC().Format(time.RFC3339),
		})
	}
}

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		object, ok := verifySigned(w, r, cfg, http.MethodPut)
		if !ok {
			return
		}

		n, err := cfg.Store.SaveObject(object, r.Body, cfg.MaxUpload)
		if errors.Is(err, storage.ErrTooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, err.Error(), "TOO_LARGE")
			return
		}
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusCreated, UploadResponse{Object: object, Bytes: n})
	}
}

func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		object, ok := verifySigned(w, r, cfg, http.MethodGet)
		if !ok {
			return
		}

		// Annotated results shadow uploads of the same name; sharing the
		// output is the common case for a download link.
		var path string
		switch {
		case cfg.Store.ResultExists(object):
			path, _ = cfg.Store.ResultPath(object)
		case cfg.Store.Exists(object):
			path, _ = cfg.Store.ObjectPath(object)
		default:
			WriteError(w, http.StatusNotFound, "object not found", "NOT_FOUND")
			return
		}

		if err := cfg.Playback.ServeVideo(w, r, path); err != nil {
			cfg.Logger.Error("file playback error", "error", err, "object", object)
		}
	}
}

// verifySigned authenticates a transfer request from its query signature and
// returns the object name. Failures are already written to the response.
func verifySigned(w http.ResponseWriter, r *http.Request, cfg ServerConfig, method string) (string, bool) {
	if cfg.Signer == nil || !cfg.Signer.Enabled() {
		WriteError(w, http.StatusServiceUnavailable, "signed urls are not configured", "SIGNING_DISABLED")
		return "", false
	}

	object := chi.URLParam(r, "object")
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusForbidden, "bad or expired signature", "FORBIDDEN")
		return "", false
	}
	if err := cfg.Signer.Verify(method, object, expires, r.URL.Query().Get("sig")); err != nil {
		WriteError(w, http.StatusForbidden, "bad or expired signature", "FORBIDDEN")
		return "", false
	}
	return object, true
}

func detectSportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DetectSportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if (req.JobID == "") == (req.UploadObject == "") {
			WriteError(w, http.StatusBadRequest, "exactly one of job_id and upload_object is required", "BAD_REQUEST")
			return
		}

		if req.JobID != "" {
			detectFromJob(w, r, cfg, req.JobID)
			return
		}
		detectFromUpload(w, r, cfg, req.UploadObject)
	}
}

// detectFromJob answers from the stored result document; the run already
// classified the clip.
func detectFromJob(w http.ResponseWriter, r *http.Request, cfg ServerConfig, jobID string) {
	job, err := cfg.Jobs.Get(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load job", "INTERNAL_ERROR")
		return
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
		return
	}

	doc, err := job.ParseResult()
	if err != nil {
		cfg.Logger.Error("stored result document is unreadable", "error", err, "job_id", job.ID)
		WriteError(w, http.StatusInternalServerError, "failed to load result", "INTERNAL_ERROR")
		return
	}
	if doc == nil {
		WriteError(w, http.StatusConflict, "job has no result yet", "NOT_READY")
		return
	}

	WriteJSON(w, http.StatusOK, DetectSportResponse{Sport: doc.Sport, Confidence: doc.SportConfidence})
}

// detectFromUpload runs the bounded classification pass over a stored clip.
func detectFromUpload(w http.ResponseWriter, r *http.Request, cfg ServerConfig, object string) {
	if cfg.Detector == nil {
		WriteError(w, http.StatusServiceUnavailable, "sport detection is not available", "DETECTION_UNAVAILABLE")
		return
	}

	path, err := cfg.Store.ObjectPath(object)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return
	}
	if !cfg.Store.Exists(object) {
		WriteError(w, http.StatusNotFound, "upload_object not found", "NOT_FOUND")
		return
	}

	g, err := cfg.Detector.DetectSport(r.Context(), path)
	if err != nil {
		var ie *pipeline.InputError
		if errors.As(err, &ie) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		cfg.Logger.Error("sport detection failed", "error", err, "object", object)
		WriteError(w, http.StatusInternalServerError, "sport detection failed", "INTERNAL_ERROR")
		return
	}

	WriteJSON(w, http.StatusOK, DetectSportResponse{Sport: g.Sport, Confidence: g.Confidence})
}

func recommendationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sport := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("sport")))
		focus := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("focus")))

		limit := 0
		if q := r.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "limit must be an integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		WriteJSON(w, http.StatusOK, RecommendationsResponse{
			Sport:  sport,
			Focus:  focus,
			Drills: analysis.Recommend(sport, focus, limit),
		})
	}
}

// lookupJob resolves the {id} route param to a job, writing the error
// response on failure.
func lookupJob(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*jobs.Job, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
		return nil, false
	}

	job, err := cfg.Jobs.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load job", "INTERNAL_ERROR")
		return nil, false
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
		return nil, false
	}
	return job, true
}
