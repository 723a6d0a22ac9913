// Package policy screens shell commands before any process spawns.
package policy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wendlabs/wend/pkg/schema"
)

const defaultMaxCommandLength = 4096

// defaultDenyPatterns block the obviously destructive command families:
// filesystem wipes, fork bombs, filesystem creation, raw device writes, and
// host power control. Config may add patterns but never remove these.
var defaultDenyPatterns = []string{
	"rm -rf /",
	"rm -fr /",
	"rm -r -f /",
	":(){",
	"mkfs",
	"wipefs",
	"of=/dev/sd",
	"of=/dev/nvme",
	"of=/dev/hd",
	"> /dev/sd",
	"> /dev/nvme",
	"shutdown",
	"reboot",
}

// Policy decides whether a shell command may run. Deny patterns are matched
// case-insensitively against the whitespace-collapsed command text, so
// `RM  -RF  /` cannot slip past the list. When working-directory roots are
// configured, an explicit working directory must resolve under one of them;
// an empty working directory inherits the engine's own and is not checked.
// All violations fail closed with FORBIDDEN.
type Policy struct {
	deny   []string
	roots  []string
	maxLen int
}

// New builds a Policy from the built-in deny list merged with extraDeny,
// the optional working-directory allow roots, and a command length cap
// (non-positive means the default cap).
func New(extraDeny, allowedRoots []string, maxCommandLen int) *Policy {
	if maxCommandLen <= 0 {
		maxCommandLen = defaultMaxCommandLength
	}

	deny := make([]string, 0, len(defaultDenyPatterns)+len(extraDeny))
	for _, p := range defaultDenyPatterns {
		deny = append(deny, normalizeCommand(p))
	}
	for _, p := range extraDeny {
		if n := normalizeCommand(p); n != "" {
			deny = append(deny, n)
		}
	}

	roots := make([]string, 0, len(allowedRoots))
	for _, r := range allowedRoots {
		if strings.TrimSpace(r) != "" {
			roots = append(roots, r)
		}
	}

	return &Policy{deny: deny, roots: roots, maxLen: maxCommandLen}
}

// Check validates a command and its working directory. A nil error means the
// command may spawn.
func (p *Policy) Check(command, workingDir string) error {
	normalized := normalizeCommand(command)
	if normalized == "" {
		return schema.NewError(schema.ErrCodeForbidden, "empty shell command")
	}

	if len(command) > p.maxLen {
		return schema.NewErrorf(schema.ErrCodeForbidden,
			"shell command exceeds %d byte limit", p.maxLen).
			WithDetails(map[string]any{"length": len(command), "limit": p.maxLen})
	}

	for _, pattern := range p.deny {
		if strings.Contains(normalized, pattern) {
			return schema.NewErrorf(schema.ErrCodeForbidden,
				"shell command matches denied pattern %q", pattern).
				WithDetails(map[string]any{"pattern": pattern})
		}
	}

	if workingDir != "" && len(p.roots) > 0 {
		if err := p.checkDir(workingDir); err != nil {
			return err
		}
	}

	return nil
}

// checkDir verifies that dir resolves under at least one allowed root.
func (p *Policy) checkDir(dir string) error {
	clean, err := resolveCleanPath(dir)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeForbidden,
			"invalid working directory %q: %v", dir, err).WithCause(err)
	}

	for _, root := range p.roots {
		base, err := resolveCleanPath(root)
		if err != nil {
			continue // an allow entry that cannot resolve grants nothing
		}
		if isUnderPath(clean, base) {
			return nil
		}
	}

	return schema.NewErrorf(schema.ErrCodeForbidden,
		"working directory %q is not under any allowed root", dir).
		WithDetails(map[string]any{"dir": dir, "roots": p.roots})
}

// normalizeCommand lowercases and collapses runs of whitespace to single
// spaces so deny patterns match regardless of spacing tricks.
func normalizeCommand(command string) string {
	return strings.ToLower(strings.Join(strings.Fields(command), " "))
}

// resolveCleanPath cleans and resolves a path to absolute.
// Walks up ancestors to resolve symlinks on the longest existing prefix,
// ensuring consistent resolution even for non-existent paths.
func resolveCleanPath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	// Try full path first (fast path when target exists).
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	// Walk up to find the longest existing ancestor and resolve its symlinks.
	return resolveAncestor(abs), nil
}

// resolveAncestor walks up from path until it finds an existing directory,
// resolves symlinks on that ancestor, and re-appends the unresolved suffix.
func resolveAncestor(path string) string {
	dir := path
	for range 256 {
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached root
		}
		resolved, err := filepath.EvalSymlinks(parent)
		if err == nil {
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return path
			}
			return filepath.Join(resolved, rel)
		}
		dir = parent
	}
	return path
}

// isUnderPath returns true if path is under (or equal to) the base directory.
// Uses filepath.Rel to avoid string-prefix false positives (e.g. /tmp vs /tmpevil).
func isUnderPath(path, base string) bool {
	if path == base {
		return true
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	// rel must not escape base (no leading "..")
	return !strings.HasPrefix(rel, "..")
}
