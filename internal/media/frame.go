// Package media decodes video containers into raw frames and re-encodes
// annotated frame sequences, shelling out to ffmpeg/ffprobe. It is the only
// package that touches pixel data or container formats.
package media

import "time"

// Frame is one decoded video frame. The pixel buffer is RGBA, 4 bytes per
// pixel, row-major. Frames are immutable once decoded; ownership passes to
// the stage processing them and they are released when that stage finishes.
type Frame struct {
	Index  int
	TS     time.Duration // timestamp from stream start, container-reported
	Width  int
	Height int
	Pix    []byte // len = 4*Width*Height
}

// Clone returns a deep copy of the frame. The overlay renderer draws on
// clones so the decode buffer can be reused.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Index: f.Index, TS: f.TS, Width: f.Width, Height: f.Height, Pix: pix}
}

// VideoMeta describes a probed container: stream geometry, frame rate, and
// the per-frame timestamp list read from the container (not synthesized from
// an assumed constant rate, so variable-frame-rate clips keep their timing).
type VideoMeta struct {
	Width      int
	Height     int
	Codec      string
	FrameRate  float64 // container-reported average rate
	Duration   time.Duration
	SizeBytes  int64
	Timestamps []time.Duration // strictly increasing, one per decodable frame
}

// FrameCount returns the number of decodable frames found by the probe.
func (m *VideoMeta) FrameCount() int {
	return len(m.Timestamps)
}
