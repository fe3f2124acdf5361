package util

import (
	"path/filepath"
)

// Ancestors returns the directories containing path, from the nearest one
// up to the filesystem root. When path itself is a directory pass isDir so it
// is included as the first candidate.
func Ancestors(path string, isDir bool) []string {
	currentPath := filepath.Clean(path)
	if !isDir {
		currentPath = filepath.Dir(currentPath)
	}

	var dirs []string
	for {
		dirs = append(dirs, currentPath)

		parentPath := filepath.Dir(currentPath)

		// Stop if we've reached the root or can't go higher
		if parentPath == currentPath || parentPath == "." {
			break
		}

		currentPath = parentPath
	}
	return dirs
}

// IsWithin reports whether path equals dir or lies below it.
func IsWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel))
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
