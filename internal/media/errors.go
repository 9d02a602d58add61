package media

import "fmt"

// DecodeError reports an unreadable container or a stream with no decodable
// frames. It aborts the run; there is no degraded continuation.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("decode %s: no decodable frames", e.Path)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TruncatedStreamError reports a decode that failed mid-stream after
// producing some frames. Produced is the count of frames successfully
// decoded; downstream stages proceed on the partial sequence.
type TruncatedStreamError struct {
	Produced int
	Err      error
}

func (e *TruncatedStreamError) Error() string {
	return fmt.Sprintf("stream truncated after %d frames: %v", e.Produced, e.Err)
}

func (e *TruncatedStreamError) Unwrap() error { return e.Err }

// EncodeError reports a failure to write or finalize the output container.
// It fails the rendering branch only; analysis output is unaffected.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
