package tooling

import (
	"errors"
	"fmt"
)

// Tool failures are recoverable by design: the turn loop records them as
// tool results so the model can adapt, and only transport or budget
// failures end a turn.
var (
	// ErrPathEscape marks a path that would leave the workspace root.
	ErrPathEscape = errors.New("path escapes workspace root")
	// ErrNotFound marks a missing file or a missing edit target string.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousMatch marks an edit whose target occurs more than once.
	ErrAmbiguousMatch = errors.New("ambiguous match")
	// ErrToolUnavailable marks an optional executor whose backing program
	// is not installed.
	ErrToolUnavailable = errors.New("tool unavailable")
)

func pathEscapeError(path string) error {
	return fmt.Errorf("%w: %s", ErrPathEscape, path)
}
