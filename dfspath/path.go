// Package dfspath implements pure, allocation-light operations over
// absolute slash-delimited DFS paths. Paths are always rooted at "/";
// empty and duplicate separators collapse, and trailing separators strip
// (except for the root itself).
package dfspath

import (
	"strings"

	"github.com/valier-io/hdfs-client/dfserr"
)

// Root is the DFS root path.
const Root = "/"

// IsAbsolute reports whether p begins with "/".
func IsAbsolute(p string) bool {
	return strings.HasPrefix(p, "/")
}

// RequireAbsolute fails with an InvalidArgumentError if p does not begin
// with "/".
func RequireAbsolute(p string) error {
	if !IsAbsolute(p) {
		return dfserr.InvalidArgument("path %q is not absolute", p)
	}
	return nil
}

// Normalize collapses empty and duplicate separators and strips a trailing
// separator, except for the root path itself. p must already be absolute.
func Normalize(p string) string {
	if p == "" {
		return Root
	}
	parts := splitNonEmpty(p)
	if len(parts) == 0 {
		return Root
	}
	return Root + strings.Join(parts, "/")
}

// Join produces an absolute, normalised path from first plus any further
// components. first must be non-empty; an empty first is an
// InvalidArgumentError.
func Join(first string, more ...string) (string, error) {
	if first == "" {
		return "", dfserr.InvalidArgument("join requires a non-empty first path component")
	}
	all := append([]string{first}, more...)
	var parts []string
	for _, a := range all {
		parts = append(parts, splitNonEmpty(a)...)
	}
	if len(parts) == 0 {
		return Root, nil
	}
	return Root + strings.Join(parts, "/"), nil
}

// Basename returns the final path component; the root path's basename is
// the empty string.
func Basename(p string) string {
	parts := splitNonEmpty(p)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Dirname returns the parent of p. The parent of the root, or of any
// single-component path, is the root.
func Dirname(p string) string {
	parts := splitNonEmpty(p)
	if len(parts) <= 1 {
		return Root
	}
	return Root + strings.Join(parts[:len(parts)-1], "/")
}

func splitNonEmpty(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
