package pipeline

import "fmt"

// InputError rejects a clip on grounds the uploader can fix: a missing or
// empty file, a clip over the duration or size cap, frames below the minimum
// geometry, or more than one person in the shot. Runs that fail this way
// produce no partial results.
type InputError struct {
	Path   string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s rejected: %s", e.Path, e.Reason)
}
