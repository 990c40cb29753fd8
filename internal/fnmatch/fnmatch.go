// Package fnmatch implements the shell-glob exclusion matching the scanner
// applies to path suffixes (spec §4.2): a pattern is tried against every
// suffix of a path rooted at a '/' boundary, not just the final component.
//
// No third-party fnmatch/glob library appears anywhere in the retrieved
// corpus, so this is hand-written on top of path/filepath.Match, which
// already implements the shell-class semantics (*, ?, [...]) that fnmatch
// patterns use; only the suffix-rooted matching loop is bespoke.
package fnmatch

import "path/filepath"

// Match reports whether name matches a single shell glob pattern. Invalid
// patterns never match rather than erroring, matching fnmatch's behavior
// of treating a malformed pattern as simply unmatched.
func Match(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

// MatchAny reports whether any of patterns matches path, trying each
// pattern against the whole path and against every suffix of path that
// starts right after a '/'.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if matchSuffixes(p, path) {
			return true
		}
	}
	return false
}

func matchSuffixes(pattern, path string) bool {
	if Match(pattern, path) {
		return true
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '/' && i+1 < len(path) {
			if Match(pattern, path[i+1:]) {
				return true
			}
		}
	}
	return false
}
