package overlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/formsight/formsight-server/internal/media"
	"github.com/formsight/formsight-server/internal/track"
)

// FrameReader is the slice of media.FrameSource the renderer needs.
type FrameReader interface {
	Next(ctx context.Context) (*media.Frame, error)
}

// frameWriter matches media.VideoWriter.
type frameWriter interface {
	WriteFrame(*media.Frame) error
	Close() error
	Abort()
	Written() int
}

// Renderer draws the skeleton onto every frame of a second decode pass
// and encodes the annotated sequence. Frames are painted concurrently;
// the encode is serialized in frame-index order.
type Renderer struct {
	workers int
	style   Style
	logger  *slog.Logger

	newWriter func(ctx context.Context, outPath string, meta *media.VideoMeta) (frameWriter, error)
}

func NewRenderer(ffmpegPath string, workers int, style Style, logger *slog.Logger) *Renderer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers > 4 {
			workers = 4
		}
	}
	r := &Renderer{workers: workers, style: style, logger: logger}
	r.newWriter = func(ctx context.Context, outPath string, meta *media.VideoMeta) (frameWriter, error) {
		return media.NewVideoWriter(ctx, ffmpegPath, outPath, meta.Width, meta.Height, meta.FrameRate, logger)
	}
	return r
}

// Render annotates up to track-length frames from src and encodes them to
// outPath at the container's reported rate. It returns the number of
// frames written. On encode failure or cancellation no output file is
// left behind; a truncated source finalizes the frames that were written
// and reports the truncation.
func (r *Renderer) Render(ctx context.Context, src FrameReader, meta *media.VideoMeta, tr *track.Track, outPath string) (int, error) {
	w, err := r.newWriter(ctx, outPath, meta)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type job struct {
		idx   int
		frame *media.Frame
	}
	jobs := make(chan job, r.workers)
	painted := make(chan job, r.workers)

	var srcErr error
	go func() {
		defer close(jobs)
		for i := 0; i < tr.Len(); i++ {
			f, err := src.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					srcErr = err
				}
				return
			}
			select {
			case jobs <- job{idx: i, frame: f}:
			case <-ctx.Done():
				srcErr = ctx.Err()
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for n := 0; n < r.workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			painter := NewPainter(r.style)
			for j := range jobs {
				painter.Paint(j.frame, tr, j.idx)
				select {
				case painted <- j:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(painted)
	}()

	// Reassemble into index order before encoding.
	pending := make(map[int]*media.Frame, r.workers)
	next := 0
	for j := range painted {
		pending[j.idx] = j.frame
		for {
			f, ok := pending[next]
			if !ok {
				break
			}
			if err := w.WriteFrame(f); err != nil {
				cancel()
				for range painted {
				}
				w.Abort()
				return next, fmt.Errorf("annotate frame %d: %w", next, err)
			}
			delete(pending, next)
			next++
		}
	}

	if srcErr != nil && (errors.Is(srcErr, context.Canceled) || errors.Is(srcErr, context.DeadlineExceeded)) {
		w.Abort()
		return next, srcErr
	}
	if err := w.Close(); err != nil {
		return next, err
	}
	if srcErr != nil {
		return next, fmt.Errorf("annotated %d of %d frames: %w", next, tr.Len(), srcErr)
	}
	if r.logger != nil {
		r.logger.Debug("overlay render complete", "frames", next, "output", outPath)
	}
	return next, nil
}
