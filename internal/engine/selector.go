package engine

import (
	"path"
	"path/filepath"
	"strings"
)

// DirSelector decides whether to descend into a subdirectory, given the
// recursion level it was found at. FileSelector decides whether a file name
// becomes a task. Both must be pure.
type (
	DirSelector  func(level int, name string) bool
	FileSelector func(name string) bool
)

// GlobFileSelector matches file names against a single glob pattern.
func GlobFileSelector(pattern string) FileSelector {
	return func(name string) bool {
		ok, err := filepath.Match(pattern, name)
		return err == nil && ok
	}
}

// LevelDirSelector restricts descent at the given level to directories whose
// trailing path component matches one of the patterns. Other levels, or an
// empty pattern list, accept everything.
func LevelDirSelector(level int, patterns []string) DirSelector {
	return func(dirLevel int, name string) bool {
		if dirLevel != level || len(patterns) == 0 {
			return true
		}
		base := path.Base(strings.TrimRight(name, "/"))
		for _, pattern := range patterns {
			if ok, err := filepath.Match(pattern, base); err == nil && ok {
				return true
			}
		}
		return false
	}
}
