// Package prompt resolves named prompt templates from a directory tree.
package prompt

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wendlabs/wend/pkg/schema"
)

const templateExt = ".tmpl"

// Registry maps prompt names to template files under a root directory.
// A name is the file path relative to the root without the .tmpl extension,
// with "/" as the separator: "greet" reads <root>/greet.tmpl and
// "review/summary" reads <root>/review/summary.tmpl.
type Registry struct {
	dir string
}

// NewRegistry creates a Registry rooted at dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir}
}

// Dir returns the registry root.
func (r *Registry) Dir() string {
	return r.dir
}

// Resolve returns the template body for name. Unknown names yield NOT_FOUND;
// names that would escape the registry root yield FORBIDDEN.
func (r *Registry) Resolve(name string) (string, error) {
	rel, err := safeRelPath(name)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(r.dir, rel+templateExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", schema.NewErrorf(schema.ErrCodeNotFound,
				"prompt %q not found", name).
				WithDetails(map[string]any{"name": name, "dir": r.dir})
		}
		return "", schema.NewErrorf(schema.ErrCodeExecution,
			"read prompt %q: %v", name, err).WithCause(err)
	}

	return string(data), nil
}

// Names lists every registered prompt name, sorted. A missing registry
// directory is an empty registry, not an error.
func (r *Registry) Names() ([]string, error) {
	var names []string

	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), templateExt) {
			return nil
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(strings.TrimSuffix(rel, templateExt)))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"list prompts in %q: %v", r.dir, err).WithCause(err)
	}

	sort.Strings(names)
	return names, nil
}

// safeRelPath validates a prompt name and converts it to a filesystem-relative
// path that cannot climb out of the registry root.
func safeRelPath(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", schema.NewError(schema.ErrCodeForbidden, "empty prompt name")
	}
	if strings.ContainsRune(name, 0) {
		return "", schema.NewErrorf(schema.ErrCodeForbidden,
			"prompt name %q contains null byte", name)
	}

	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) ||
		cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", schema.NewErrorf(schema.ErrCodeForbidden,
			"prompt name %q escapes the registry", name).
			WithDetails(map[string]any{"name": name})
	}

	return cleaned, nil
}
