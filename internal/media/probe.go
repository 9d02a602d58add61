package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober inspects video containers with ffprobe.
type Prober struct {
	ffprobe string
	logger  *slog.Logger
}

func NewProber(ffprobePath string, logger *slog.Logger) *Prober {
	return &Prober{ffprobe: ffprobePath, logger: logger}
}

// Probe reads stream metadata and the full per-frame timestamp list for the
// first video stream. An unreadable container or a container without a video
// stream returns a DecodeError.
func (p *Prober) Probe(ctx context.Context, path string) (*VideoMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	meta, err := p.probeStream(ctx, path)
	if err != nil {
		return nil, err
	}
	meta.SizeBytes = info.Size()

	ts, err := p.probeFrameTimes(ctx, path, meta.FrameRate)
	if err != nil {
		return nil, err
	}
	meta.Timestamps = ts

	p.logger.Debug("probed video",
		"width", meta.Width,
		"height", meta.Height,
		"codec", meta.Codec,
		"fps", meta.FrameRate,
		"frames", meta.FrameCount(),
		"duration_ms", meta.Duration.Milliseconds(),
	)
	return meta, nil
}

func (p *Prober) probeStream(ctx context.Context, path string) (*VideoMeta, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,codec_name,avg_frame_rate,duration",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobe, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("ffprobe: %s: %w", tail(stderr.String(), 256), err)}
	}

	meta, err := parseProbeJSON(stdout.Bytes())
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return meta, nil
}

func (p *Prober) probeFrameTimes(ctx context.Context, path string, fps float64) ([]time.Duration, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "frame=best_effort_timestamp_time",
		"-of", "csv=p=0",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobe, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	ts, parseErr := parseFrameTimes(stdout, fps)
	waitErr := cmd.Wait()

	if parseErr != nil {
		return nil, &DecodeError{Path: path, Err: parseErr}
	}
	if waitErr != nil {
		// ffprobe failed partway; keep what decoded cleanly if anything did.
		if len(ts) > 0 {
			return ts, nil
		}
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("ffprobe frames: %s: %w", tail(stderr.String(), 256), waitErr)}
	}
	return ts, nil
}

type probeJSON struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		CodecName    string `json:"codec_name"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseProbeJSON extracts geometry and frame rate from ffprobe -of json output.
func parseProbeJSON(data []byte) (*VideoMeta, error) {
	var pj probeJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(pj.Streams) == 0 {
		return nil, fmt.Errorf("no video stream")
	}

	s := pj.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("invalid stream geometry %dx%d", s.Width, s.Height)
	}

	fps := parseRational(s.AvgFrameRate)
	if fps <= 0 {
		fps = 30.0
	}

	durStr := s.Duration
	if durStr == "" || durStr == "N/A" {
		durStr = pj.Format.Duration
	}
	var duration time.Duration
	if sec, err := strconv.ParseFloat(durStr, 64); err == nil && sec > 0 {
		duration = time.Duration(sec * float64(time.Second))
	}

	return &VideoMeta{
		Width:     s.Width,
		Height:    s.Height,
		Codec:     s.CodecName,
		FrameRate: fps,
		Duration:  duration,
	}, nil
}

// parseRational parses ffprobe rate strings like "30000/1001" or "25/1".
func parseRational(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// parseFrameTimes reads one best_effort_timestamp_time per line, normalizes
// the sequence to start at zero, and enforces strictly increasing order.
// "N/A" entries (corrupt frames ffprobe still counts) are synthesized from
// the previous timestamp plus one nominal frame period.
func parseFrameTimes(r io.Reader, fps float64) ([]time.Duration, error) {
	step := time.Second / 30
	if fps > 0 {
		step = time.Duration(float64(time.Second) / fps)
	}

	var out []time.Duration
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// csv rows can carry a trailing comma on some ffprobe builds
		line = strings.TrimSuffix(line, ",")
		if line == "" {
			continue
		}

		var ts time.Duration
		if line == "N/A" {
			if len(out) == 0 {
				ts = 0
			} else {
				ts = out[len(out)-1] + step
			}
		} else {
			sec, err := strconv.ParseFloat(line, 64)
			if err != nil {
				return out, fmt.Errorf("bad frame timestamp %q: %w", line, err)
			}
			ts = time.Duration(sec * float64(time.Second))
		}
		out = append(out, ts)
	}
	if err := scanner.Err(); err != nil {
		return out, err
	}

	if len(out) == 0 {
		return nil, nil
	}

	// Normalize to stream start and force strict monotonicity; some
	// containers report equal or backward-stepping timestamps around edits.
	base := out[0]
	for i := range out {
		out[i] -= base
		if i > 0 && out[i] <= out[i-1] {
			out[i] = out[i-1] + time.Microsecond
		}
	}
	return out, nil
}

func tail(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
