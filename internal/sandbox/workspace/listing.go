package workspace

import (
	"io/fs"
	"path/filepath"
	"strings"

	appErr "agentbox/pkg/errors"
)

// Entries hidden from listings regardless of options: version control
// metadata, interpreter and tool caches, locally-installed package trees.
var excludedEntries = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"__pycache__":   {},
	".cache":        {},
	".pytest_cache": {},
	".mypy_cache":   {},
	"node_modules":  {},
	".venv":         {},
	"venv":          {},
}

// Subtrees listed one level deep only. Data directories get large enough to
// flood a listing without telling the reader anything new.
var shallowSubtrees = map[string]struct{}{
	"data": {},
}

// ListingOptions controls the redacted tree rendering.
type ListingOptions struct {
	// IncludeHidden keeps dot-prefixed entries that are not otherwise
	// excluded.
	IncludeHidden bool
}

// Listing renders the workspace tree for display: one relative path per
// line, directories with a trailing slash, excluded entries and the control
// directory omitted, shallow subtrees cut after their first level.
func (f *Filesystem) Listing(opts ListingOptions) (string, error) {
	var b strings.Builder
	err := filepath.WalkDir(f.hostRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == f.hostRoot {
			return nil
		}
		if f.hidden(d.Name(), opts) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(f.hostRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		b.WriteString(rel)
		if d.IsDir() {
			b.WriteString("/")
		}
		b.WriteString("\n")

		if d.IsDir() && cutBelow(rel) {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.Internal, "list workspace %s failed", f.hostRoot)
	}
	return b.String(), nil
}

func (f *Filesystem) hidden(name string, opts ListingOptions) bool {
	if _, ok := excludedEntries[name]; ok {
		return true
	}
	if f.controlDir != "" && name == f.controlDir {
		return true
	}
	if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return false
}

// cutBelow reports whether children of rel must not be descended into: a
// shallow subtree's direct children are listed, their contents are not.
func cutBelow(rel string) bool {
	parts := strings.Split(rel, "/")
	if _, ok := shallowSubtrees[parts[0]]; !ok {
		return false
	}
	return len(parts) >= 2
}
