package pose

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/formsight/formsight-server/internal/media"
)

// Pool fans frames out to a fixed set of estimators and reassembles results
// into frame-index order. Estimation is order-insensitive; everything
// downstream is order-sensitive, so reordering happens here. The caller
// bounds memory by feeding frames through a channel with capacity no larger
// than the pool size.
type Pool struct {
	estimators []Estimator
	logger     *slog.Logger
}

func NewPool(estimators []Estimator, logger *slog.Logger) *Pool {
	return &Pool{estimators: estimators, logger: logger}
}

// StartWorkers spawns n worker subprocesses and pools them. When a later
// worker fails to start, every worker already running is closed before the
// error returns.
func StartWorkers(ctx context.Context, n int, cfg WorkerConfig) (*Pool, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if n < 1 {
		n = 1
	}

	estimators := make([]Estimator, 0, n)
	for i := 0; i < n; i++ {
		est, err := NewStdioEstimator(ctx, cfg)
		if err != nil {
			for _, started := range estimators {
				started.Close()
			}
			return nil, fmt.Errorf("start worker %d of %d: %w", i+1, n, err)
		}
		estimators = append(estimators, est)
	}
	return NewPool(estimators, logger), nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.estimators)
}

// Run consumes frames until in closes and emits one FrameResult per frame in
// strict index order. The visibility floor is applied to every result before
// it is emitted. The error channel delivers at most one error, the first
// estimator failure, after which the pool cancels outstanding work and the
// result channel closes early.
func (p *Pool) Run(ctx context.Context, in <-chan *media.Frame, minVisibility float64) (<-chan FrameResult, <-chan error) {
	out := make(chan FrameResult, len(p.estimators))
	errCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	raw := make(chan FrameResult, len(p.estimators))

	var once sync.Once
	fail := func(err error) {
		once.Do(func() {
			errCh <- err
			cancel()
		})
	}

	var wg sync.WaitGroup
	for i, est := range p.estimators {
		wg.Add(1)
		go func(worker int, est Estimator) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-in:
					if !ok {
						return
					}
					res, err := est.EstimateFrame(ctx, f)
					if err != nil {
						if ctx.Err() == nil {
							p.logger.Error("pose estimation failed", "worker", worker, "frame", f.Index, "error", err)
						}
						fail(fmt.Errorf("estimate frame %d: %w", f.Index, err))
						return
					}
					res = ApplyVisibilityFloor(res, minVisibility)
					select {
					case raw <- FrameResult{Index: f.Index, Res: res}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(i, est)
	}

	go func() {
		wg.Wait()
		close(raw)
	}()

	// Reassemble into index order. Out-of-order distance is bounded by the
	// number of frames in flight, so pending stays small.
	go func() {
		defer close(out)
		defer cancel()

		next := 0
		pending := make(map[int]FrameResult)
		for r := range raw {
			pending[r.Index] = r
			for {
				v, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
				next++
			}
		}
	}()

	return out, errCh
}

// Close shuts down every worker.
func (p *Pool) Close() {
	for _, est := range p.estimators {
		if err := est.Close(); err != nil {
			p.logger.Warn("closing estimator", "error", err)
		}
	}
}
