package pose

import (
	"context"
	"testing"
	"time"
)

type fakeDoctor struct {
	doctorFn func(ctx context.Context) (*Capabilities, error)
}

func (f *fakeDoctor) RunDoctor(ctx context.Context) (*Capabilities, error) {
	return f.doctorFn(ctx)
}

func TestCachedDoctor_TTL(t *testing.T) {
	calls := 0
	fake := &fakeDoctor{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{
				HasPose:  true,
				ProbedAt: time.Now(),
				Summary:  SummaryInfo{Available: 3, Total: 4},
			}, nil
		},
	}

	doc := NewCachedDoctor(fake, nil)
	doc.ttl = 100 * time.Millisecond
	ctx := context.Background()

	caps1, err := doc.Get(ctx)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if !caps1.HasPose {
		t.Error("expected HasPose=true")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}

	caps2, err := doc.Get(ctx)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if caps2.ProbedAt != caps1.ProbedAt {
		t.Error("expected cached result on second call")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (cached), got %d", calls)
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := doc.Get(ctx); err != nil {
		t.Fatalf("third Get (after TTL): %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls after TTL expiry, got %d", calls)
	}
}

func TestCachedDoctor_Invalidate(t *testing.T) {
	calls := 0
	fake := &fakeDoctor{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{ProbedAt: time.Now()}, nil
		},
	}

	doc := NewCachedDoctor(fake, nil)
	ctx := context.Background()

	doc.Get(ctx)
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}

	doc.Invalidate()
	doc.Get(ctx)
	if calls != 2 {
		t.Errorf("expected 2 calls after Invalidate, got %d", calls)
	}
}

func TestIsAvailable(t *testing.T) {
	deps := map[string]DepInfo{
		"mediapipe":   {Available: true, Version: "0.10"},
		"onnxruntime": {Available: false, Error: "not installed"},
	}

	if !isAvailable(deps, "mediapipe") {
		t.Error("mediapipe should be available")
	}
	if isAvailable(deps, "onnxruntime") {
		t.Error("onnxruntime should not be available")
	}
	if isAvailable(deps, "nonexistent") {
		t.Error("nonexistent should not be available")
	}
}
