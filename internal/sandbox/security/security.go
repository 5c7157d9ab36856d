// Package security defines the allow-list guard for backends without OS
// filesystem isolation.
package security

import (
	"path/filepath"
	"sort"

	appErr "agentbox/pkg/errors"
)

// DefaultReadPaths are OS data locations that common libraries open at
// import time (locale and MIME databases, timezone data). They are granted
// in addition to the workspace and the control directory.
var DefaultReadPaths = []string{
	"/usr/share/locale",
	"/usr/share/mime",
	"/usr/share/zoneinfo",
	"/etc/localtime",
}

// Guard is an explicit capability object deciding whether a file path may be
// touched. Rules are assembled host-side and serialized into the request;
// enforcement happens only inside a disposable child, threaded through the
// file-access sites of the launcher and the init helper. It is never
// installed as a process-global hook.
type Guard struct {
	roots []string
}

// NewGuard canonicalizes and deduplicates the allowed roots.
func NewGuard(roots []string) *Guard {
	seen := make(map[string]struct{}, len(roots))
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		c := canonical(r)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return &Guard{roots: out}
}

// Allowed reports whether path falls under one of the allowed roots. The
// match is component-wise: /ws allows /ws and /ws/x but never /ws2/x.
func (g *Guard) Allowed(path string) bool {
	c := canonical(path)
	for _, root := range g.roots {
		if root == "/" {
			return true
		}
		if c == root {
			return true
		}
		if len(c) > len(root) && c[:len(root)] == root && c[len(root)] == filepath.Separator {
			return true
		}
	}
	return false
}

// Check returns a SecurityViolation for paths outside the allowed roots.
func (g *Guard) Check(path string) error {
	if g.Allowed(path) {
		return nil
	}
	return appErr.SecurityViolationError(path)
}

// Roots returns the canonicalized allow-list, the form serialized into the
// request artifact.
func (g *Guard) Roots() []string {
	out := make([]string, len(g.roots))
	copy(out, g.roots)
	return out
}

// canonical resolves symlinks when the path exists and falls back to the
// cleaned absolute form when it does not.
func canonical(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return filepath.Clean(abs)
}
