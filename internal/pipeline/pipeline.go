// Package pipeline orchestrates a full clip run: gate the input, decode
// frames and estimate poses, assemble the landmark track, then analyze and
// render concurrently before finalizing the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/formsight/formsight-server/internal/analysis"
	"github.com/formsight/formsight-server/internal/config"
	"github.com/formsight/formsight-server/internal/media"
	"github.com/formsight/formsight-server/internal/overlay"
	"github.com/formsight/formsight-server/internal/pose"
	"github.com/formsight/formsight-server/internal/track"
)

// Progress is invoked as a run advances. done and total are frame counts for
// the active stage, zero on plain state changes. Callbacks run on the
// orchestrator goroutine and must be fast.
type Progress func(state State, done, total int)

// frameSource yields decoded frames in index order.
type frameSource interface {
	Next(ctx context.Context) (*media.Frame, error)
	Produced() int
	Close() error
}

// posePool estimates poses for a stream of frames.
type posePool interface {
	Run(ctx context.Context, in <-chan *media.Frame, minVisibility float64) (<-chan pose.FrameResult, <-chan error)
	Size() int
}

// prober reads container metadata.
type prober interface {
	Probe(ctx context.Context, path string) (*media.VideoMeta, error)
}

// skeletonRenderer runs the overlay pass.
type skeletonRenderer interface {
	Render(ctx context.Context, src overlay.FrameReader, meta *media.VideoMeta, tr *track.Track, outPath string) (int, error)
}

// Pipeline runs clips end to end. It is safe for sequential reuse; the job
// runner executes one run at a time so the pose workers stay warm between
// jobs.
type Pipeline struct {
	cfg    config.Config
	rules  *analysis.RuleSet
	pool   posePool
	logger *slog.Logger

	// Replaced by tests to run without ffmpeg or pose workers.
	prober     prober
	renderer   skeletonRenderer
	openSource func(ctx context.Context, path string, meta *media.VideoMeta) (frameSource, error)
}

func New(cfg config.Config, rules *analysis.RuleSet, pool *pose.Pool, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		rules:  rules,
		pool:   pool,
		logger: logger,
		prober: media.NewProber(cfg.FFprobePath(), logger),
	}
	p.renderer = overlay.NewRenderer(cfg.FFmpegPath(), pool.Size(), overlay.DefaultStyle(), logger)
	p.openSource = func(ctx context.Context, path string, meta *media.VideoMeta) (frameSource, error) {
		return media.OpenSource(ctx, cfg.FFmpegPath(), path, meta, logger)
	}
	return p
}

// run carries the mutable state of one invocation.
type run struct {
	p        *Pipeline
	state    State
	result   *Result
	progress Progress
	started  time.Time
}

func (r *run) setState(to State) {
	if !CanTransition(r.state, to) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", r.state, to))
	}
	r.state = to
	r.result.State = to
	r.p.logger.Info("pipeline state", "state", to)
	if r.progress != nil {
		r.progress(to, 0, 0)
	}
}

func (r *run) diag(format string, args ...any) {
	r.result.Diagnostics = append(r.result.Diagnostics, fmt.Sprintf(format, args...))
}

// fail moves the run to its failed terminal state and returns the result so
// far alongside the fatal error.
func (r *run) fail(err error) (*Result, error) {
	r.diag("fatal: %v", err)
	r.setState(StateFailed)
	r.result.DurationMS = time.Since(r.started).Milliseconds()
	r.p.logger.Error("pipeline run failed", "error", err)
	return r.result, err
}

// Run executes the pipeline for one clip, writing the annotated video to
// outPath. The returned Result is non-nil even on failure; err is non-nil
// exactly when Result.State is StateFailed.
func (p *Pipeline) Run(ctx context.Context, inputPath, outPath string, opts Options, progress Progress) (*Result, error) {
	r := &run{
		p:        p,
		state:    StateStarted,
		started:  time.Now(),
		progress: progress,
		result: &Result{
			State: StateStarted,
			Sport: analysis.SportUnknown,
			Stages: Stages{
				Decode:   Stage{Status: StageSkipped},
				Analyze:  Stage{Status: StageSkipped},
				Render:   Stage{Status: StageSkipped},
				Finalize: Stage{Status: StageSkipped},
			},
		},
	}
	p.logger.Info("pipeline run", "input", inputPath, "output", outPath)

	// Gate the input before spending any decode work on it.
	meta, err := p.gate(ctx, inputPath, opts)
	if err != nil {
		var de *media.DecodeError
		if errors.As(err, &de) {
			r.result.Stages.Decode = Stage{Status: StageFailed, Error: err.Error()}
		}
		return r.fail(err)
	}

	r.setState(StateDecoding)
	results, trunc, err := p.decodePass(ctx, inputPath, meta, opts, func(done int) {
		if progress != nil {
			progress(StateDecoding, done, meta.FrameCount())
		}
	})
	if err != nil {
		r.result.Stages.Decode = Stage{Status: StageFailed, Error: err.Error()}
		return r.fail(err)
	}

	tr, err := track.Build(results, meta.Timestamps[:len(results)])
	if err != nil {
		r.result.Stages.Decode = Stage{Status: StageFailed, Error: err.Error()}
		return r.fail(fmt.Errorf("assemble track: %w", err))
	}
	tr = track.FillGaps(tr, opts.MaxGap)
	tr = track.Smooth(tr, opts.SmoothWindow)

	if trunc != nil {
		r.result.Stages.Decode = Stage{Status: StagePartial, Error: trunc.Error()}
		r.diag("decode: stream truncated, %d of %d frames decoded", len(results), meta.FrameCount())
	} else {
		r.result.Stages.Decode = Stage{Status: StageSuccess}
	}
	r.result.Frames = FrameCounts{
		Decoded:      len(results),
		Undetected:   tr.Undetected,
		Interpolated: tr.InterpolatedFrames(),
	}

	// The track is immutable from here; analysis reads it while the overlay
	// pass re-decodes the clip.
	r.setState(StateAnalyzing)
	reports := make(chan *analysis.Report, 1)
	go func() {
		an := analysis.NewAnalyzer(p.rules, analysis.Options{
			MinViolation: opts.MinViolation,
			MaxTips:      opts.MaxTips,
		}, p.logger)
		reports <- an.Analyze(tr)
	}()

	r.setState(StateRendering)
	written, renderErr := p.renderPass(ctx, inputPath, outPath, meta, tr)
	rep := <-reports

	if ctx.Err() != nil {
		r.result.Stages.Render = Stage{Status: StageFailed, Error: ctx.Err().Error()}
		return r.fail(ctx.Err())
	}

	var renderTrunc *media.TruncatedStreamError
	switch {
	case renderErr == nil:
		r.result.Stages.Render = Stage{Status: StageSuccess}
		r.result.VideoPath = outPath
	case errors.As(renderErr, &renderTrunc):
		// Partial overlay output is still worth keeping.
		r.result.Stages.Render = Stage{Status: StagePartial, Error: renderErr.Error()}
		r.result.VideoPath = outPath
		r.diag("render: %v", renderErr)
	default:
		// Encode or reopen failure loses the video but not the tips.
		r.result.Stages.Render = Stage{Status: StageFailed, Error: renderErr.Error()}
		r.diag("render: %v", renderErr)
	}
	if renderErr == nil && progress != nil {
		progress(StateRendering, written, tr.Len())
	}

	r.result.Tips = rep.Tips
	if r.result.Tips == nil {
		r.result.Tips = []analysis.Tip{}
	}
	r.result.Stats = rep.Stats
	if len(rep.Skipped) > 0 {
		r.result.Stages.Analyze = Stage{Status: StagePartial}
		for _, cat := range rep.Skipped {
			r.diag("analysis: category %s skipped, landmarks unavailable", cat)
		}
	} else {
		r.result.Stages.Analyze = Stage{Status: StageSuccess}
	}

	if opts.Sport != "" {
		r.result.Sport = opts.Sport
		r.result.SportConfidence = 1
	} else {
		g := analysis.GuessSport(tr)
		r.result.Sport = g.Sport
		r.result.SportConfidence = g.Confidence
	}

	r.setState(StateFinalizing)
	if r.result.VideoPath != "" {
		if fi, err := os.Stat(r.result.VideoPath); err != nil || fi.Size() == 0 {
			r.diag("finalize: annotated output missing: %v", err)
			r.result.VideoPath = ""
			r.result.Stages.Finalize = Stage{Status: StagePartial, Error: "annotated output missing"}
		} else {
			r.result.Stages.Finalize = Stage{Status: StageSuccess}
		}
	} else {
		r.result.Stages.Finalize = Stage{Status: StageSuccess}
	}

	r.setState(StateCompleted)
	r.result.DurationMS = time.Since(r.started).Milliseconds()
	p.logger.Info("pipeline run completed",
		"frames", r.result.Frames.Decoded,
		"tips", len(r.result.Tips),
		"sport", r.result.Sport,
		"video", r.result.VideoPath != "",
		"duration_ms", r.result.DurationMS)
	return r.result, nil
}

// maxDetectFrames bounds the sport-detection pass. Arm posture over the
// first few seconds of footage is enough to classify the clip.
const maxDetectFrames = 120

// DetectSport classifies the sport from a bounded decode-and-pose pass over
// the head of the clip. It shares the run gates, so an unreadable or
// oversized clip is rejected the same way a full run would reject it.
func (p *Pipeline) DetectSport(ctx context.Context, path string) (analysis.SportGuess, error) {
	unknown := analysis.SportGuess{Sport: analysis.SportUnknown}

	opts := DefaultOptions()
	meta, err := p.gate(ctx, path, opts)
	if err != nil {
		return unknown, err
	}

	dctx, cancel := context.WithTimeout(ctx, p.cfg.TimeoutDecode())
	defer cancel()

	src, err := p.openWithRetry(dctx, path, meta)
	if err != nil {
		return unknown, err
	}
	defer src.Close()

	frames := make(chan *media.Frame, p.pool.Size())
	results, poolErrs := p.pool.Run(dctx, frames, opts.MinVisibility)

	// Truncation mid-head is fine here; whatever decoded is classified.
	budget := min(maxDetectFrames, meta.FrameCount())
	go func() {
		defer close(frames)
		for sent := 0; sent < budget; sent++ {
			f, err := src.Next(dctx)
			if err != nil {
				return
			}
			select {
			case frames <- f:
			case <-dctx.Done():
				return
			}
		}
	}()

	out := make([]pose.FrameResult, 0, budget)
	for res := range results {
		out = append(out, res)
	}
	select {
	case err := <-poolErrs:
		return unknown, fmt.Errorf("pose estimation: %w", err)
	default:
	}
	if len(out) == 0 {
		return unknown, fmt.Errorf("sport detection: no frames decoded from %s", path)
	}

	tr, err := track.Build(out, meta.Timestamps[:len(out)])
	if err != nil {
		return unknown, fmt.Errorf("assemble track: %w", err)
	}
	tr = track.FillGaps(tr, opts.MaxGap)
	tr = track.Smooth(tr, opts.SmoothWindow)

	g := analysis.GuessSport(tr)
	p.logger.Info("sport detection", "input", path, "frames", len(out),
		"sport", g.Sport, "confidence", g.Confidence)
	return g, nil
}

// gate validates the clip before any decode work: the file must exist and be
// non-empty, fit the size and duration caps, and carry a video stream at or
// above the minimum geometry.
func (p *Pipeline) gate(ctx context.Context, path string, opts Options) (*media.VideoMeta, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &InputError{Path: path, Reason: fmt.Sprintf("not readable: %v", err)}
	}
	if fi.Size() == 0 {
		return nil, &InputError{Path: path, Reason: "file is empty"}
	}
	if limit := p.cfg.MaxClipBytes(); limit > 0 && fi.Size() > limit {
		return nil, &InputError{Path: path, Reason: fmt.Sprintf("file is %d bytes, cap is %d", fi.Size(), limit)}
	}

	pctx, cancel := context.WithTimeout(ctx, p.cfg.TimeoutProbe())
	defer cancel()
	meta, err := p.prober.Probe(pctx, path)
	if err != nil {
		return nil, err
	}

	if opts.MaxClip > 0 && meta.Duration > opts.MaxClip {
		return nil, &InputError{Path: path, Reason: fmt.Sprintf("clip runs %s, cap is %s",
			meta.Duration.Round(time.Millisecond), opts.MaxClip)}
	}
	if edge := min(meta.Width, meta.Height); edge < p.cfg.MinFrameEdge() {
		return nil, &InputError{Path: path, Reason: fmt.Sprintf("frame edge %dpx below %dpx minimum",
			edge, p.cfg.MinFrameEdge())}
	}
	return meta, nil
}

// openWithRetry opens the decode stream, retrying once. Container open is
// the only operation in a run that gets a retry.
func (p *Pipeline) openWithRetry(ctx context.Context, path string, meta *media.VideoMeta) (frameSource, error) {
	src, err := p.openSource(ctx, path, meta)
	if err == nil {
		return src, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	p.logger.Warn("container open failed, retrying once", "path", path, "error", err)
	return p.openSource(ctx, path, meta)
}

// decodePass feeds decoded frames to the pose pool and collects results in
// frame order. Truncation is survivable and returned for the caller to
// record; a zero-frame stream, an estimator failure, or a second person in
// the shot is fatal.
func (p *Pipeline) decodePass(ctx context.Context, path string, meta *media.VideoMeta, opts Options, onFrame func(done int)) ([]pose.FrameResult, *media.TruncatedStreamError, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.TimeoutDecode())
	defer cancel()

	src, err := p.openWithRetry(dctx, path, meta)
	if err != nil {
		return nil, nil, err
	}
	defer src.Close()

	// The channel capacity bounds how many frames are in flight.
	frames := make(chan *media.Frame, p.pool.Size())
	results, poolErrs := p.pool.Run(dctx, frames, opts.MinVisibility)

	var srcErr error
	go func() {
		defer close(frames)
		for {
			f, err := src.Next(dctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					srcErr = err
				}
				return
			}
			select {
			case frames <- f:
			case <-dctx.Done():
				srcErr = dctx.Err()
				return
			}
		}
	}()

	out := make([]pose.FrameResult, 0, meta.FrameCount())
	var inputErr error
	for res := range results {
		if res.Res.Persons > 1 && inputErr == nil {
			inputErr = &InputError{Path: path, Reason: fmt.Sprintf("%d people in frame %d, a single subject is required",
				res.Res.Persons, res.Index)}
			cancel()
			continue
		}
		out = append(out, res)
		if onFrame != nil {
			onFrame(len(out))
		}
	}

	if inputErr != nil {
		return nil, nil, inputErr
	}
	select {
	case err := <-poolErrs:
		return nil, nil, fmt.Errorf("pose estimation: %w", err)
	default:
	}

	// The results channel closes strictly after the feeder returns, so
	// srcErr is visible here.
	if srcErr != nil {
		var trunc *media.TruncatedStreamError
		if errors.As(srcErr, &trunc) {
			return out, trunc, nil
		}
		return nil, nil, srcErr
	}
	return out, nil, nil
}

// renderPass re-decodes the clip and writes the annotated copy.
func (p *Pipeline) renderPass(ctx context.Context, path, outPath string, meta *media.VideoMeta, tr *track.Track) (int, error) {
	rctx, cancel := context.WithTimeout(ctx, p.cfg.TimeoutRender())
	defer cancel()

	src, err := p.openWithRetry(rctx, path, meta)
	if err != nil {
		return 0, fmt.Errorf("reopen for overlay: %w", err)
	}
	defer src.Close()

	return p.renderer.Render(rctx, src, meta, tr, outPath)
}
