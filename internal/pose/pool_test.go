package pose

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/formsight/formsight-server/internal/media"
)

type fakeEstimator struct {
	estimateFn func(ctx context.Context, f *media.Frame) (Result, error)
}

func (f *fakeEstimator) EstimateFrame(ctx context.Context, fr *media.Frame) (Result, error) {
	return f.estimateFn(ctx, fr)
}

func (f *fakeEstimator) Close() error { return nil }

func detectedAt(x float64) Result {
	lms := make([]Landmark, len(Names))
	for i, n := range Names {
		lms[i] = Landmark{Name: n, X: x, Y: 0.5, Visibility: 0.9}
	}
	return Result{Detected: true, Persons: 1, Landmarks: lms}
}

func feedFrames(n int) <-chan *media.Frame {
	in := make(chan *media.Frame, 4)
	go func() {
		defer close(in)
		for i := 0; i < n; i++ {
			in <- &media.Frame{Index: i, Width: 2, Height: 2, Pix: make([]byte, 16)}
		}
	}()
	return in
}

func newTestPool(workers int, fn func(ctx context.Context, f *media.Frame) (Result, error)) *Pool {
	ests := make([]Estimator, workers)
	for i := range ests {
		ests[i] = &fakeEstimator{estimateFn: fn}
	}
	return NewPool(ests, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPool_OrdersResults(t *testing.T) {
	// Earlier frames take longer, so raw results arrive out of order.
	pool := newTestPool(4, func(ctx context.Context, f *media.Frame) (Result, error) {
		delay := time.Duration(8-f.Index%8) * time.Millisecond
		time.Sleep(delay)
		return detectedAt(float64(f.Index) / 100), nil
	})

	out, errCh := pool.Run(context.Background(), feedFrames(24), 0.5)

	var indices []int
	for r := range out {
		indices = append(indices, r.Index)
	}
	select {
	case err := <-errCh:
		t.Fatalf("unexpected pool error: %v", err)
	default:
	}

	if len(indices) != 24 {
		t.Fatalf("got %d results, want 24", len(indices))
	}
	for i, idx := range indices {
		if idx != i {
			t.Fatalf("result %d has index %d, want %d", i, idx, i)
		}
	}
}

func TestPool_AppliesVisibilityFloor(t *testing.T) {
	pool := newTestPool(2, func(ctx context.Context, f *media.Frame) (Result, error) {
		lms := make([]Landmark, len(Names))
		for i, n := range Names {
			lms[i] = Landmark{Name: n, X: 0.5, Y: 0.5, Visibility: 0.1}
		}
		return Result{Detected: true, Persons: 1, Landmarks: lms}, nil
	})

	out, _ := pool.Run(context.Background(), feedFrames(4), 0.5)

	for r := range out {
		if r.Res.Detected {
			t.Fatalf("frame %d: all landmarks below floor should yield undetected", r.Index)
		}
	}
}

func TestPool_PropagatesError(t *testing.T) {
	pool := newTestPool(2, func(ctx context.Context, f *media.Frame) (Result, error) {
		if f.Index == 3 {
			return Undetected, fmt.Errorf("worker crashed")
		}
		return detectedAt(0.5), nil
	})

	out, errCh := pool.Run(context.Background(), feedFrames(16), 0.5)

	for range out {
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("nil error delivered")
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered after failure")
	}
}

func TestStartWorkers_MissingPython(t *testing.T) {
	pool, err := StartWorkers(context.Background(), 2, WorkerConfig{
		PythonPath: "/nonexistent/python-binary",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err == nil {
		pool.Close()
		t.Fatal("expected an error for an unresolvable python binary")
	}
}

func TestPool_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := newTestPool(2, func(ctx context.Context, f *media.Frame) (Result, error) {
		time.Sleep(5 * time.Millisecond)
		return detectedAt(0.5), nil
	})

	in := make(chan *media.Frame)
	go func() {
		defer close(in)
		for i := 0; ; i++ {
			select {
			case in <- &media.Frame{Index: i, Width: 2, Height: 2, Pix: make([]byte, 16)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	out, _ := pool.Run(ctx, in, 0.5)

	got := 0
	for range out {
		got++
		if got == 4 {
			cancel()
		}
	}
	// The channel must close promptly after cancellation; reaching here is
	// the assertion.
}
