// Package workflow loads workflow definitions from YAML files and resolves
// them by name.
package workflow

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wendlabs/wend/pkg/schema"
)

// Load reads a single YAML file into a workflow definition. Decoding is
// strict: unknown fields are rejected, so a misspelled key fails here with a
// line number instead of silently dropping data. A definition without an
// explicit name takes the file's base name.
func Load(path string) (*schema.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound,
				"workflow file %q not found", path)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"read workflow file %q: %v", path, err).WithCause(err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def schema.WorkflowDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse,
			"parse workflow file %q: %v", path, err).
			WithCause(err).
			WithDetails(map[string]any{"path": path})
	}

	// One definition per file. A second document is almost always an
	// accidental paste; dropping it silently would lose states.
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, schema.NewErrorf(schema.ErrCodeParse,
			"workflow file %q contains more than one document", path).
			WithDetails(map[string]any{"path": path})
	}

	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &def, nil
}

// LoadDir loads every *.yaml and *.yml file directly under dir, sorted by
// file name. Subdirectories are not descended.
func LoadDir(dir string) ([]*schema.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound,
				"workflow directory %q not found", dir)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"read workflow directory %q: %v", dir, err).WithCause(err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	defs := make([]*schema.WorkflowDefinition, 0, len(paths))
	for _, path := range paths {
		def, err := Load(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, nil
}

// LoadPath loads a definition file or a directory of them.
func LoadPath(path string) ([]*schema.WorkflowDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound,
				"workflow path %q not found", path)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"stat workflow path %q: %v", path, err).WithCause(err)
	}

	if info.IsDir() {
		return LoadDir(path)
	}

	def, err := Load(path)
	if err != nil {
		return nil, err
	}
	return []*schema.WorkflowDefinition{def}, nil
}
