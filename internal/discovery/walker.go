// Package discovery is responsible for finding artifact files on disk and
// for parsing the descriptor files into the artifact model.
package discovery

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/AdguardTeam/golibs/log"
	"github.com/IGLOU-EU/go-wildcard"
	"github.com/frontd/frontd/internal/artifact"
)

// Default artifact file patterns, one per kind.
var (
	// AppPattern matches application-module descriptor files.
	AppPattern = regexp.MustCompile(`\.app$`)

	// StaticPattern matches static-site descriptor files.
	StaticPattern = regexp.MustCompile(`\.static$`)

	// ProxyPattern matches proxy descriptor files.
	ProxyPattern = regexp.MustCompile(`\.proxy$`)
)

// skipDirNames is the fixed set of directory names that the walker never
// descends into: version control and dependency caches.
var skipDirNames = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	".cache":       {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
}

// Walk performs an iterative depth-first walk from root and returns the
// normalized absolute paths of all regular files whose base name matches
// pattern.  Directories from the fixed skip set and those matching any of the
// exclude wildcard patterns are not descended into.  Unreadable directories
// are logged and skipped.  The result is de-duplicated by normalized path.
func Walk(root string, pattern *regexp.Regexp, excludes []string) (paths []string, err error) {
	root = artifact.NormalizePath(root)

	seen := map[string]struct{}{}
	stack := []string{root}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			log.Info("discovery: warning: skipping unreadable directory %s: %v", dir, readErr)

			continue
		}

		// os.ReadDir sorts entries by name.  Push subdirectories in
		// reverse so that the stack pops them back in lexical order.
		var subdirs []string

		for _, entry := range entries {
			name := entry.Name()
			full := filepath.Join(dir, name)

			if entry.IsDir() {
				if skipDir(name, excludes) {
					continue
				}

				subdirs = append(subdirs, full)

				continue
			}

			if !entry.Type().IsRegular() || !pattern.MatchString(name) {
				continue
			}

			norm := artifact.NormalizePath(full)
			if _, dup := seen[norm]; dup {
				continue
			}

			seen[norm] = struct{}{}
			paths = append(paths, norm)
		}

		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return paths, nil
}

// skipDir reports whether the walker should not descend into a directory
// with the given base name.
func skipDir(name string, excludes []string) (skip bool) {
	if _, fixed := skipDirNames[name]; fixed {
		return true
	}

	for _, pattern := range excludes {
		if wildcard.MatchSimple(pattern, name) {
			return true
		}
	}

	return false
}
