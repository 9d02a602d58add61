package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// VideoWriter encodes raw RGBA frames into an H.264 MP4. Frames must be
// written in presentation order; the writer is the single serialization
// point after any parallel rendering. Output goes to a temp file in the
// destination directory and is renamed into place on Close, so a failed
// encode never leaves a partial file at the final path.
type VideoWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	logger *slog.Logger

	finalPath string
	tmpPath   string
	frameLen  int
	wrote     int
	failed    bool
	closed    bool
}

// NewVideoWriter starts the encode subprocess. The output frame rate is the
// container-reported rate of the source, so the annotated clip plays at the
// original speed.
func NewVideoWriter(ctx context.Context, ffmpegPath, outPath string, width, height int, fps float64, logger *slog.Logger) (*VideoWriter, error) {
	if fps <= 0 {
		fps = 30.0
	}

	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &EncodeError{Path: outPath, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*")
	if err != nil {
		return nil, &EncodeError{Path: outPath, Err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()

	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%.6f", fps),
		"-i", "-",
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmpPath,
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	stderr := newTailBuffer(maxStderrBytes)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(tmpPath)
		return nil, &EncodeError{Path: outPath, Err: err}
	}

	if err := cmd.Start(); err != nil {
		os.Remove(tmpPath)
		return nil, &EncodeError{Path: outPath, Err: err}
	}

	logger.Debug("encode started", "path", outPath, "size", fmt.Sprintf("%dx%d", width, height), "fps", fps)

	return &VideoWriter{
		cmd:       cmd,
		stdin:     stdin,
		stderr:    stderr,
		logger:    logger,
		finalPath: outPath,
		tmpPath:   tmpPath,
		frameLen:  width * height * 4,
	}, nil
}

// WriteFrame feeds one frame to the encoder.
func (w *VideoWriter) WriteFrame(f *Frame) error {
	if w.failed || w.closed {
		return &EncodeError{Path: w.finalPath, Err: fmt.Errorf("writer is closed")}
	}
	if len(f.Pix) != w.frameLen {
		w.fail()
		return &EncodeError{Path: w.finalPath, Err: fmt.Errorf("frame %d has %d bytes, want %d", f.Index, len(f.Pix), w.frameLen)}
	}

	if _, err := w.stdin.Write(f.Pix); err != nil {
		w.fail()
		return &EncodeError{Path: w.finalPath, Err: fmt.Errorf("feed frame %d: %s: %w", f.Index, tail(w.stderr.String(), 256), err)}
	}
	w.wrote++
	return nil
}

// Written returns how many frames have been fed to the encoder.
func (w *VideoWriter) Written() int {
	return w.wrote
}

// Close finalizes the container and moves it to the final path. On any
// failure the temp file is removed and an EncodeError returned.
func (w *VideoWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.stdin.Close()
	err := w.cmd.Wait()

	if w.failed {
		os.Remove(w.tmpPath)
		return &EncodeError{Path: w.finalPath, Err: fmt.Errorf("encode aborted")}
	}
	if err != nil {
		os.Remove(w.tmpPath)
		return &EncodeError{Path: w.finalPath, Err: fmt.Errorf("finalize: %s: %w", tail(w.stderr.String(), 256), err)}
	}
	if w.wrote == 0 {
		os.Remove(w.tmpPath)
		return &EncodeError{Path: w.finalPath, Err: fmt.Errorf("no frames written")}
	}

	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		os.Remove(w.tmpPath)
		return &EncodeError{Path: w.finalPath, Err: err}
	}

	w.logger.Debug("encode finalized", "path", w.finalPath, "frames", w.wrote)
	return nil
}

// Abort kills the encoder and removes the temp file. Safe to call after a
// failed WriteFrame or on cancellation; never leaves partial output at the
// final path.
func (w *VideoWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.fail()
	w.stdin.Close()
	w.cmd.Wait()
	os.Remove(w.tmpPath)
}

func (w *VideoWriter) fail() {
	if !w.failed {
		w.failed = true
		if w.cmd.Process != nil {
			w.cmd.Process.Kill()
		}
	}
}
