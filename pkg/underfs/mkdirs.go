package underfs

import (
	"fmt"
	gopath "path"
)

// MaxAncestorDepth bounds the upward walk performed while planning
// directory creation. A well-formed namespace never approaches it; hitting
// the bound indicates a malformed path hierarchy and fails with
// ErrPathTooDeep instead of walking forever.
const MaxAncestorDepth = 64

// AncestorPlan computes the ordered list of directories to create so that
// path exists: every ancestor of path that exists func reports absent,
// ending with path itself. The list is ordered creation-first — the child
// of the nearest existing ancestor comes first, path last.
//
// The caller is expected to have already ruled out path existing; the walk
// starts from its parent. Directories are then created one level at a time
// with an explicit permission mask: a single bulk create-all-ancestors call
// applies the process umask inconsistently across intermediate directories
// on some remote filesystem implementations, while per-level creation with
// an explicit mask guarantees uniform permissions on every created node.
func AncestorPlan(path string, exists func(string) (bool, error)) ([]string, error) {
	plan := []string{path}

	parent := parentPath(path)
	for parent != "" {
		if len(plan) > MaxAncestorDepth {
			return nil, fmt.Errorf("%s: %w", path, ErrPathTooDeep)
		}

		found, err := exists(parent)
		if err != nil {
			return nil, err
		}
		if found {
			break
		}

		plan = append(plan, parent)
		parent = parentPath(parent)
	}

	// Reverse into creation order: outermost missing ancestor first.
	for i, j := 0, len(plan)-1; i < j; i, j = i+1, j-1 {
		plan[i], plan[j] = plan[j], plan[i]
	}
	return plan, nil
}

// parentPath returns the parent of a slash-separated path, or "" once the
// root is reached.
func parentPath(path string) string {
	parent := gopath.Dir(gopath.Clean(path))
	if parent == path || parent == "." {
		return ""
	}
	return parent
}
