package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/formsight/formsight-server/internal/media"
)

const (
	maxMessageBytes  = 64 * 1024 * 1024 // refuse absurd worker payloads
	stdinWriteLimit  = 2 * time.Second
	shutdownDeadline = 3 * time.Second
)

// Estimator turns one frame into one Result. Implementations hold no
// cross-frame state; the same frame always yields the same result.
type Estimator interface {
	EstimateFrame(ctx context.Context, frame *media.Frame) (Result, error)
	Close() error
}

// WorkerConfig configures a pose worker subprocess.
type WorkerConfig struct {
	PythonPath string // path to python binary; empty = auto-detect
	ModuleName string // default "formsight_pose_worker"
	Logger     *slog.Logger
}

// StdioEstimator drives one Python pose worker over stdin/stdout. Frames go
// down as MessagePack payloads with 4-byte big-endian length-prefix framing;
// results come back the same way. One in-flight request at a time per
// worker; concurrency comes from running several workers (see Pool).
type StdioEstimator struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	closed bool
}

type frameRequest struct {
	ID     uint64 `msgpack:"id"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Format string `msgpack:"format"`
	Data   []byte `msgpack:"data"`
}

type landmarkWire struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
	V float64 `msgpack:"v"`
}

type frameResponse struct {
	ID        uint64         `msgpack:"id"`
	Detected  bool           `msgpack:"detected"`
	Persons   int            `msgpack:"persons"`
	Landmarks []landmarkWire `msgpack:"landmarks"`
	Error     string         `msgpack:"error"`
}

// NewStdioEstimator spawns one worker process running
// `python -m <module> serve`. The context governs the worker's lifetime.
func NewStdioEstimator(ctx context.Context, cfg WorkerConfig) (*StdioEstimator, error) {
	python, err := resolvePython(cfg.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate python: %w", err)
	}
	module := cfg.ModuleName
	if module == "" {
		module = "formsight_pose_worker"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, python, "-m", module, "serve", "--format", "rgba")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pose worker: %w", err)
	}

	e := &StdioEstimator{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 1<<16),
		logger: logger,
	}
	go e.logStderr(stderr)

	logger.Info("pose worker started", "python", python, "module", module, "pid", cmd.Process.Pid)
	return e, nil
}

// EstimateFrame sends one frame to the worker and blocks for its result.
func (e *StdioEstimator) EstimateFrame(ctx context.Context, frame *media.Frame) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Undetected, fmt.Errorf("pose worker is closed")
	}

	e.nextID++
	req := frameRequest{
		ID:     e.nextID,
		Width:  frame.Width,
		Height: frame.Height,
		Format: "rgba",
		Data:   frame.Pix,
	}

	if err := e.writeMessage(ctx, req); err != nil {
		return Undetected, fmt.Errorf("send frame %d: %w", frame.Index, err)
	}

	for {
		resp, err := e.readMessage()
		if err != nil {
			return Undetected, fmt.Errorf("read result for frame %d: %w", frame.Index, err)
		}
		if resp.ID < req.ID {
			// Stale response from a request abandoned on cancellation.
			continue
		}
		if resp.ID != req.ID {
			return Undetected, fmt.Errorf("worker answered request %d, want %d", resp.ID, req.ID)
		}
		return decodeResponse(resp)
	}
}

func decodeResponse(resp frameResponse) (Result, error) {
	if resp.Error != "" {
		return Undetected, fmt.Errorf("worker: %s", resp.Error)
	}
	if !resp.Detected {
		return Result{Persons: resp.Persons}, nil
	}
	if len(resp.Landmarks) != len(Names) {
		return Undetected, fmt.Errorf("worker returned %d landmarks, want %d", len(resp.Landmarks), len(Names))
	}

	out := Result{Detected: true, Persons: resp.Persons, Landmarks: make([]Landmark, len(Names))}
	for i, lw := range resp.Landmarks {
		out.Landmarks[i] = Landmark{
			Name:       Names[i],
			X:          lw.X,
			Y:          lw.Y,
			Z:          lw.Z,
			Visibility: lw.V,
		}
	}
	return out, nil
}

// writeMessage frames and writes one request, bounded by both the context
// and a write timeout so a hung worker cannot stall the pool.
func (e *StdioEstimator) writeMessage(ctx context.Context, req frameRequest) error {
	payload, err := msgpack.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		prefix := make([]byte, 4)
		binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
		if _, err := e.stdin.Write(prefix); err != nil {
			done <- fmt.Errorf("write length prefix: %w", err)
			return
		}
		if _, err := e.stdin.Write(payload); err != nil {
			done <- fmt.Errorf("write payload: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(stdinWriteLimit):
		return fmt.Errorf("stdin write timeout (worker may be hung)")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *StdioEstimator) readMessage() (frameResponse, error) {
	var resp frameResponse

	prefix := make([]byte, 4)
	if _, err := io.ReadFull(e.stdout, prefix); err != nil {
		return resp, fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix)
	if n == 0 || n > maxMessageBytes {
		return resp, fmt.Errorf("invalid message length %d", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(e.stdout, payload); err != nil {
		return resp, fmt.Errorf("read payload: %w", err)
	}
	if err := msgpack.Unmarshal(payload, &resp); err != nil {
		return resp, fmt.Errorf("unmarshal result: %w", err)
	}
	return resp, nil
}

// Close shuts the worker down: stdin close signals EOF, then a bounded wait
// before a hard kill.
func (e *StdioEstimator) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(shutdownDeadline):
		e.logger.Warn("pose worker did not exit, killing", "pid", e.cmd.Process.Pid)
		e.cmd.Process.Kill()
		<-done
	}
	return nil
}

// logStderr maps worker log lines onto slog levels.
func (e *StdioEstimator) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case containsAny(line, "[ERROR]", "[CRITICAL]"):
			e.logger.Error("pose worker", "log", line)
		case containsAny(line, "[WARNING]", "[WARN]"):
			e.logger.Warn("pose worker", "log", line)
		default:
			e.logger.Debug("pose worker", "log", line)
		}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// resolvePython finds a usable python binary.
func resolvePython(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured python %q not found", preferred)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no python binary found on PATH (tried python3, python)")
}
