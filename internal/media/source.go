package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// FrameSource is a lazy, forward-only decoder for one video stream. It runs
// ffmpeg decoding to raw RGBA on a pipe and hands out one frame per Next
// call, so at most a handful of frames are in memory at a time.
type FrameSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	meta   *VideoMeta
	logger *slog.Logger

	path     string
	idx      int
	done     bool
	waitErr  error
	frameLen int
}

// OpenSource starts the decode subprocess. The context governs the whole
// decode; cancelling it kills ffmpeg. Meta must come from a prior Probe of
// the same file so per-frame timestamps are container-accurate.
func OpenSource(ctx context.Context, ffmpegPath, path string, meta *VideoMeta, logger *slog.Logger) (*FrameSource, error) {
	if meta.FrameCount() == 0 {
		return nil, &DecodeError{Path: path}
	}

	args := []string{
		"-v", "error",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	stderr := newTailBuffer(maxStderrBytes)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	logger.Debug("decode started", "path", path, "frames", meta.FrameCount())

	return &FrameSource{
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		meta:     meta,
		logger:   logger,
		path:     path,
		frameLen: meta.Width * meta.Height * 4,
	}, nil
}

// Next returns the next decoded frame. At the end of a complete stream it
// returns io.EOF. A stream ending before the probed frame count returns a
// TruncatedStreamError carrying how many frames were produced; the caller
// proceeds on the partial sequence.
func (s *FrameSource) Next(ctx context.Context) (*Frame, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pix := make([]byte, s.frameLen)
	_, err := io.ReadFull(s.stdout, pix)
	if err != nil {
		s.done = true
		s.waitErr = s.cmd.Wait()

		if errors.Is(err, io.EOF) && s.idx == s.meta.FrameCount() && s.waitErr == nil {
			return nil, io.EOF
		}
		if s.idx == 0 {
			return nil, &DecodeError{Path: s.path, Err: s.decodeFailure(err)}
		}
		if errors.Is(err, io.EOF) && s.waitErr == nil && s.idx > 0 {
			// Clean exit short of the probed count: the probe saw packets
			// the decoder could not reconstruct.
			return nil, &TruncatedStreamError{Produced: s.idx, Err: fmt.Errorf("decoder produced %d of %d frames", s.idx, s.meta.FrameCount())}
		}
		return nil, &TruncatedStreamError{Produced: s.idx, Err: s.decodeFailure(err)}
	}

	ts := s.meta.Timestamps[len(s.meta.Timestamps)-1]
	if s.idx < len(s.meta.Timestamps) {
		ts = s.meta.Timestamps[s.idx]
	}

	f := &Frame{
		Index:  s.idx,
		TS:     ts,
		Width:  s.meta.Width,
		Height: s.meta.Height,
		Pix:    pix,
	}
	s.idx++

	if s.idx >= s.meta.FrameCount() {
		// Drain and reap so a well-formed stream ends with a clean EOF.
		io.Copy(io.Discard, s.stdout)
		s.waitErr = s.cmd.Wait()
		s.done = true
	}
	return f, nil
}

// Produced returns how many frames have been decoded so far.
func (s *FrameSource) Produced() int {
	return s.idx
}

// Close kills the decoder if it is still running and releases the pipe.
func (s *FrameSource) Close() error {
	if !s.done {
		s.done = true
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait()
	}
	return nil
}

func (s *FrameSource) decodeFailure(readErr error) error {
	msg := s.stderr.String()
	if s.waitErr != nil {
		return fmt.Errorf("ffmpeg: %s: %w", tail(msg, 256), s.waitErr)
	}
	return fmt.Errorf("ffmpeg: %s: %w", tail(msg, 256), readErr)
}

const maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

// tailBuffer is an io.Writer that keeps only the last limit bytes.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		b := t.buf.Bytes()
		keep := make([]byte, t.limit)
		copy(keep, b[len(b)-t.limit:])
		t.buf.Reset()
		t.buf.Write(keep)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
