package util

import (
	"os"
	"path/filepath"
)

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// DirExists returns true if the path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.IsDir()
}

// CanonicalPath returns the absolute, cleaned form of path, resolved against
// basePath when path is relative.
func CanonicalPath(path, basePath string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(basePath, path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

// ListContainsElement returns true if the list contains the given element.
func ListContainsElement[S ~[]E, E comparable](list S, element E) bool {
	for _, item := range list {
		if item == element {
			return true
		}
	}

	return false
}

// RemoveDuplicatesFromList returns a copy of the list with duplicates removed,
// preserving first-seen order.
func RemoveDuplicatesFromList[S ~[]E, E comparable](list S) S {
	seen := make(map[E]struct{}, len(list))
	out := make(S, 0, len(list))

	for _, item := range list {
		if _, ok := seen[item]; ok {
			continue
		}

		seen[item] = struct{}{}

		out = append(out, item)
	}

	return out
}
