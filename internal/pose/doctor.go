package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const doctorCacheTTL = 5 * time.Minute

// Capabilities represents what the installed pose worker environment can do,
// as reported by the `doctor --json` command.
type Capabilities struct {
	PackageVersion string             `json:"package_version"`
	Python         PythonInfo         `json:"python"`
	ModelVersion   string             `json:"model_version"`
	Dependencies   map[string]DepInfo `json:"dependencies"`
	Summary        SummaryInfo        `json:"summary"`

	HasPose  bool      `json:"-"`
	ProbedAt time.Time `json:"-"`
}

// PythonInfo holds Python runtime information.
type PythonInfo struct {
	Version    string `json:"version"`
	Executable string `json:"executable"`
}

// DepInfo represents the availability status of a single dependency.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SummaryInfo summarises overall dependency status.
type SummaryInfo struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// DoctorRunner probes the pose worker environment.
type DoctorRunner interface {
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// SubprocessDoctor runs `python -m <module> doctor --json` once per probe.
type SubprocessDoctor struct {
	PythonPath string
	ModuleName string
	Timeout    time.Duration
	Logger     *slog.Logger
}

func (d *SubprocessDoctor) RunDoctor(ctx context.Context) (*Capabilities, error) {
	python, err := resolvePython(d.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate python: %w", err)
	}
	module := d.ModuleName
	if module == "" {
		module = "formsight_pose_worker"
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, python, "-m", module, "doctor", "--json")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("doctor failed: %s: %w", stderr.String(), err)
	}

	var caps Capabilities
	if err := json.Unmarshal(stdout.Bytes(), &caps); err != nil {
		return nil, fmt.Errorf("cannot parse doctor JSON: %w", err)
	}

	// Derive capability flags
	caps.HasPose = isAvailable(caps.Dependencies, "mediapipe") ||
		isAvailable(caps.Dependencies, "onnxruntime")
	caps.ProbedAt = time.Now()

	if d.Logger != nil {
		d.Logger.Info("doctor probe complete",
			"pose", caps.HasPose,
			"model", caps.ModelVersion,
			"deps_available", caps.Summary.Available,
			"deps_total", caps.Summary.Total,
		)
	}
	return &caps, nil
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}

// CachedDoctor wraps a DoctorRunner to cache probe results with a TTL so the
// probe subprocess does not run on every job.
type CachedDoctor struct {
	runner DoctorRunner
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around doctor probes.
func NewCachedDoctor(runner DoctorRunner, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		runner: runner,
		ttl:    doctorCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new doctor probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.runner.RunDoctor(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("doctor probe failed", "error", err)
		}
		// Return stale cache if available
		if d.cached != nil {
			if d.logger != nil {
				d.logger.Info("returning stale capabilities cache")
			}
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
