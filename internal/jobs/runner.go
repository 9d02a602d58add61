package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/emit"
	"github.com/formsight/formsight-server/internal/logging"
	"github.com/formsight/formsight-server/internal/pipeline"
)

// clipPipeline is the slice of the pipeline the runner needs; tests swap in
// a scripted one.
type clipPipeline interface {
	Run(ctx context.Context, inputPath, outPath string, opts pipeline.Options, progress pipeline.Progress) (*pipeline.Result, error)
}

// Transfer moves clips to and from remote URLs.
type Transfer interface {
	Download(ctx context.Context, url, dest string) error
	Upload(ctx context.Context, url, path string) error
}

// Runner polls for pending jobs and executes them one at a time. The loop is
// synchronous: cancellation stops scheduling, and an in-flight job fails
// through the pipeline's own context handling before Start returns.
type Runner struct {
	repo         Repository
	store        ObjectStore
	pipe         clipPipeline
	transfer     Transfer
	pub          emit.Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
}

func NewRunner(repo Repository, store ObjectStore, pipe *pipeline.Pipeline, transfer Transfer, pub emit.Publisher, pollInterval time.Duration, logger *slog.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Runner{
		repo:         repo,
		store:        store,
		pipe:         pipe,
		transfer:     transfer,
		pub:          pub,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			r.processNextJob(ctx)
		}
	}
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}
	r.runJob(ctx, jobs[0])
}

func (r *Runner) runJob(ctx context.Context, job *Job) {
	log := logging.WithJobID(r.logger, job.ID)
	log.Info("processing job", "sport", job.Sport)

	if err := r.repo.UpdateJobStatus(ctx, job.ID, StatusRunning, ""); err != nil {
		log.Error("failed to claim job", "error", err)
		return
	}

	inputPath, cleanup, err := r.resolveInput(ctx, job)
	if err != nil {
		r.finishFailed(ctx, log, job, fmt.Sprintf("resolve input: %v", err))
		return
	}
	defer cleanup()

	resultName := job.ID + ".mp4"
	outPath, err := r.store.ResultPath(resultName)
	if err != nil {
		r.finishFailed(ctx, log, job, fmt.Sprintf("resolve output: %v", err))
		return
	}

	overrides, err := ParseOptions(job.Options)
	if err != nil {
		r.finishFailed(ctx, log, job, err.Error())
		return
	}

	res, runErr := r.pipe.Run(ctx, inputPath, outPath, overrides.Resolve(job.Sport), r.progressFunc(ctx, log, job.ID))

	videoObject, videoURL := "", ""
	var uploadNote string
	if res.VideoPath != "" {
		videoObject = resultName
		job.ResultPath = res.VideoPath
		if job.OutputURL != "" && runErr == nil {
			if err := r.transfer.Upload(ctx, job.OutputURL, res.VideoPath); err != nil {
				// Push is best-effort: the local copy stays downloadable.
				log.Warn("result upload failed, keeping local copy", "error", err)
				uploadNote = fmt.Sprintf("result upload failed: %v", err)
			} else {
				videoURL = job.OutputURL
			}
		}
	}

	doc := BuildResult(job.ID, res, videoObject, videoURL)
	if uploadNote != "" {
		doc.Diagnostics = append(doc.Diagnostics, uploadNote)
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		r.finishFailed(ctx, log, job, fmt.Sprintf("encode result document: %v", err))
		return
	}

	if res.Sport != "" && res.Sport != analysis.SportUnknown {
		job.Sport = res.Sport
	}
	job.Result = string(payload)
	job.CompletedAt = time.Now().UTC()
	if runErr != nil {
		job.Status = StatusFailed
		job.Error = runErr.Error()
	} else {
		job.Status = StatusCompleted
		job.Error = ""
		job.Progress = 100
	}

	if err := r.repo.SetJobResult(ctx, job); err != nil {
		log.Error("failed to persist job result", "error", err)
		return
	}

	if r.pub != nil {
		if err := r.pub.Publish(ctx, job.ID, payload); err != nil {
			log.Warn("result publish failed", "error", err)
		}
	}

	log.Info("job finished", "status", job.Status, "duration_ms", res.DurationMS)
}

// resolveInput returns a local path for the job's source clip, downloading it
// first when the job references a remote URL. The cleanup removes any file
// this call created.
func (r *Runner) resolveInput(ctx context.Context, job *Job) (string, func(), error) {
	noop := func() {}
	if job.SourcePath != "" {
		return job.SourcePath, noop, nil
	}
	if job.VideoURL == "" {
		return "", noop, errors.New("job has no source")
	}
	if r.transfer == nil {
		return "", noop, errors.New("no transfer client configured")
	}

	dest := r.store.WorkPath(job.ID + ".input.mp4")
	if err := r.transfer.Download(ctx, job.VideoURL, dest); err != nil {
		return "", noop, err
	}
	return dest, func() { os.Remove(dest) }, nil
}

func (r *Runner) finishFailed(ctx context.Context, log *slog.Logger, job *Job, msg string) {
	job.Status = StatusFailed
	job.Error = msg
	job.CompletedAt = time.Now().UTC()
	if err := r.repo.SetJobResult(ctx, job); err != nil {
		log.Error("failed to persist job failure", "error", err)
	}
	log.Error("job failed", "error", msg)
}

// progressFunc maps pipeline progress onto the job's progress column:
// decoding covers 5-60, rendering 60-95, finalizing parks at 97, and the
// terminal write sets 100. Writes are throttled to value changes.
func (r *Runner) progressFunc(ctx context.Context, log *slog.Logger, jobID string) pipeline.Progress {
	last := -1
	return func(state pipeline.State, done, total int) {
		var pct int
		switch state {
		case pipeline.StateStarted:
			pct = 0
		case pipeline.StateDecoding:
			pct = 5
			if total > 0 {
				pct = 5 + 55*done/total
			}
		case pipeline.StateAnalyzing:
			pct = 60
		case pipeline.StateRendering:
			pct = 60
			if total > 0 {
				pct = 60 + 35*done/total
			}
		case pipeline.StateFinalizing:
			pct = 97
		default:
			// Terminal states are persisted with the result.
			return
		}
		if pct == last {
			return
		}
		last = pct
		if err := r.repo.UpdateJobProgress(ctx, jobID, pct); err != nil {
			log.Warn("failed to update job progress", "error", err)
		}
	}
}
