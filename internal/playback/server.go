package playback

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
)

// Server streams result videos off the local disk. The pipeline only emits
// mp4, so the content type is fixed rather than sniffed.
type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeVideo streams the annotated video at path, honoring a single-range
// Range header. Missing files are a 404, malformed Range headers fall back
// to the full clip, and unsatisfiable ones get a 416 carrying the total size.
func (s *Server) ServeVideo(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "video not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat video: %w", err)
	}
	size := stat.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "video/mp4")

	br, partial, err := ResolveRange(r.Header.Get("Range"), size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if !partial {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, file)
		return nil
	}

	// Seek failures must surface before the 206 status line goes out.
	if _, err := file.Seek(br.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek video: %w", err)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(br.Length, 10))
	w.Header().Set("Content-Range", br.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if s.logger != nil {
		s.logger.Debug("served video range",
			"offset", br.Offset, "length", br.Length, "size", size)
	}
	io.CopyN(w, file, br.Length)
	return nil
}
