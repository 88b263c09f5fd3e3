package tooling

import (
	"fmt"
	"path/filepath"
	"strings"
)

// pathGuard confines every filesystem tool operation to a workspace root.
//
// Resolution is purely logical (string based, never touching the
// filesystem) so paths that do not exist yet can be validated before
// write_file creates them. The policy is strict: a candidate that leaves
// the root even transiently is rejected, so "a/../../a" fails although its
// net destination is back under the root. "a/b/../../c" is fine because
// the depth never drops below the root.
type pathGuard struct {
	root string
}

func newPathGuard(root string) (pathGuard, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return pathGuard{}, err
	}
	return pathGuard{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute workspace root.
func (p pathGuard) Root() string {
	return p.root
}

// Resolve validates a candidate path against the root and returns the
// normalized absolute location. The candidate may be absolute or relative
// and may contain "." and ".." segments. Empty and "." resolve to the root
// itself.
func (p pathGuard) Resolve(path string) (string, error) {
	candidate := filepath.ToSlash(path)
	if filepath.IsAbs(path) {
		rootSlash := filepath.ToSlash(p.root)
		if candidate != rootSlash && !strings.HasPrefix(candidate, rootSlash+"/") {
			return "", pathEscapeError(path)
		}
		candidate = strings.TrimPrefix(candidate, rootSlash)
		candidate = strings.TrimPrefix(candidate, "/")
	}

	var kept []string
	for _, segment := range strings.Split(candidate, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(kept) == 0 {
				return "", pathEscapeError(path)
			}
			kept = kept[:len(kept)-1]
		default:
			kept = append(kept, segment)
		}
	}
	if len(kept) == 0 {
		return p.root, nil
	}
	return filepath.Join(p.root, filepath.Join(kept...)), nil
}

// Rel converts an absolute resolved path back to its root-relative form
// for display in tool payloads.
func (p pathGuard) Rel(path string) string {
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return path
	}
	return rel
}

// String implements fmt.Stringer for log lines.
func (p pathGuard) String() string {
	return fmt.Sprintf("sandbox(%s)", p.root)
}
