package vfs

import (
	"strings"
	"unicode/utf8"

	"github.com/meridian-dev/meridian/internal/merrors"
)

// NormalizePath enforces spec.md §4.2's path grammar: reject any path
// containing "..", NUL, or non-UTF8; collapse repeated separators; the root
// is "/".
func NormalizePath(path string) (string, error) {
	if !utf8.ValidString(path) {
		return "", merrors.Invalid(merrors.ErrCodeInvalidPath, "path is not valid UTF-8")
	}
	if strings.ContainsRune(path, 0) {
		return "", merrors.Invalid(merrors.ErrCodeInvalidPath, "path contains NUL byte")
	}

	segments := strings.Split(path, "/")
	var cleaned []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", merrors.Invalid(merrors.ErrCodeInvalidPath, "path contains '..' component")
		default:
			cleaned = append(cleaned, seg)
		}
	}

	if len(cleaned) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(cleaned, "/"), nil
}

// ParentPath returns the normalized parent of path, or "/" if path is
// already root.
func ParentPath(path string) string {
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
