// Package workspace maps the host workspace directory to its stable virtual
// root and renders redacted listings of the workspace tree.
package workspace

import (
	"path/filepath"
	"strings"

	appErr "agentbox/pkg/errors"
)

// DefaultVirtualRoot is the path string shown to callers in place of the
// real host workspace path.
const DefaultVirtualRoot = "/workspace"

// Filesystem is one host<->virtual mapping. Translation is pure: the same
// input always yields the same output, and host->virtual->host round-trips
// to the original.
type Filesystem struct {
	hostRoot    string
	virtualRoot string
	controlDir  string
}

// New builds a mapping. hostRoot must be absolute; virtualRoot defaults to
// DefaultVirtualRoot. controlDir is the name of the sandbox's private
// directory inside the workspace, excluded from listings.
func New(hostRoot, virtualRoot, controlDir string) (*Filesystem, error) {
	if hostRoot == "" || !filepath.IsAbs(hostRoot) {
		return nil, appErr.ValidationError("workspace", "host workspace must be an absolute path")
	}
	if virtualRoot == "" {
		virtualRoot = DefaultVirtualRoot
	}
	if !strings.HasPrefix(virtualRoot, "/") || virtualRoot == "/" {
		return nil, appErr.ValidationError("virtual_root", "must be an absolute path below /")
	}
	return &Filesystem{
		hostRoot:    filepath.Clean(hostRoot),
		virtualRoot: strings.TrimRight(virtualRoot, "/"),
		controlDir:  controlDir,
	}, nil
}

// HostRoot returns the real workspace path.
func (f *Filesystem) HostRoot() string { return f.hostRoot }

// VirtualRoot returns the path string presented to callers.
func (f *Filesystem) VirtualRoot() string { return f.virtualRoot }

// ToHost translates one virtual-rooted path. Paths outside the mapping pass
// through unchanged.
func (f *Filesystem) ToHost(path string) string {
	return translatePath(path, f.virtualRoot, f.hostRoot)
}

// ToVirtual translates one host-rooted path. Paths outside the mapping pass
// through unchanged.
func (f *Filesystem) ToVirtual(path string) string {
	return translatePath(path, f.hostRoot, f.virtualRoot)
}

func translatePath(path, from, to string) string {
	if path == from {
		return to
	}
	if strings.HasPrefix(path, from+"/") {
		return to + path[len(from):]
	}
	return path
}

// MapToHost rewrites free-form text, substituting whole-token occurrences of
// the virtual root with the host root.
func (f *Filesystem) MapToHost(text string) string {
	return rewriteTokens(text, f.virtualRoot, f.hostRoot)
}

// MapToVirtual rewrites free-form text, substituting whole-token occurrences
// of the host root with the virtual root.
func (f *Filesystem) MapToVirtual(text string) string {
	return rewriteTokens(text, f.hostRoot, f.virtualRoot)
}

// rewriteTokens substitutes from with to wherever from appears as a whole
// path token: the byte before must not be a path-name byte, and the byte
// after must end the token or extend it as a deeper path component. This is
// what keeps /workspace from rewriting inside /workspace2.
func rewriteTokens(text, from, to string) string {
	if from == "" || !strings.Contains(text, from) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], from)
		if j < 0 {
			b.WriteString(text[i:])
			break
		}
		start := i + j
		end := start + len(from)
		okBefore := start == 0 || !isPathByte(text[start-1])
		okAfter := end == len(text) || text[end] == '/' || !isPathByte(text[end])
		b.WriteString(text[i:start])
		if okBefore && okAfter {
			b.WriteString(to)
		} else {
			b.WriteString(from)
		}
		i = end
	}
	return b.String()
}

func isPathByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == '_' || c == '-' || c == '/':
		return true
	}
	return false
}

// TranslateToHost rewrites a string, or a nested list/mapping of strings,
// from virtual-rooted to host-rooted form. Non-string leaves pass through.
func (f *Filesystem) TranslateToHost(v interface{}) interface{} {
	return translateValue(v, f.MapToHost)
}

// TranslateToVirtual rewrites a string, or a nested list/mapping of strings,
// from host-rooted to virtual-rooted form, so results never leak host paths.
func (f *Filesystem) TranslateToVirtual(v interface{}) interface{} {
	return translateValue(v, f.MapToVirtual)
}

func translateValue(v interface{}, rewrite func(string) string) interface{} {
	switch t := v.(type) {
	case string:
		return rewrite(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = rewrite(s)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = translateValue(e, rewrite)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[rewrite(k)] = rewrite(s)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[rewrite(k)] = translateValue(e, rewrite)
		}
		return out
	default:
		return v
	}
}
