// Package playback streams annotated result videos with HTTP Range support,
// so scrub bars and mobile players can seek without pulling the whole clip.
package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable reports a well-formed Range header asking for bytes the
// file does not have. The response must be a 416 carrying "bytes */size".
var ErrUnsatisfiable = errors.New("requested range not satisfiable")

// ByteRange is a resolved request window: Length bytes starting at Offset.
type ByteRange struct {
	Offset int64
	Length int64
}

// ContentRange renders the Content-Range value for a file of the given
// total size.
func (b ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.Offset, b.Offset+b.Length-1, size)
}

// ResolveRange interprets a request's Range header against a file of size
// bytes. partial=false with a nil error means serve the whole file: either
// no header was sent, or it was one RFC 7233 tells servers to ignore
// (unknown units, garbled or inverted ranges, multipart sets). We never emit
// multipart/byteranges; players that want several windows issue sequential
// single-range reads anyway.
func ResolveRange(header string, size int64) (ByteRange, bool, error) {
	window, isBytes := strings.CutPrefix(header, "bytes=")
	if !isBytes || strings.Contains(window, ",") {
		return ByteRange{}, false, nil
	}

	startStr, endStr, dashed := strings.Cut(strings.TrimSpace(window), "-")
	if !dashed {
		return ByteRange{}, false, nil
	}

	// Suffix form: the last N bytes of the file.
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return ByteRange{}, false, nil
		}
		if n == 0 || size == 0 {
			return ByteRange{}, false, ErrUnsatisfiable
		}
		n = min(n, size)
		return ByteRange{Offset: size - n, Length: n}, true, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, false, nil
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return ByteRange{}, false, nil
		}
		if end < start {
			// Inverted window. Ignored rather than refused, per RFC 7233.
			return ByteRange{}, false, nil
		}
		end = min(end, size-1)
	}
	if start >= size {
		return ByteRange{}, false, ErrUnsatisfiable
	}
	return ByteRange{Offset: start, Length: end - start + 1}, true, nil
}
