package signal

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/wendlabs/wend/pkg/schema"
)

const lockRetryDelay = 25 * time.Millisecond

// FileSource signals through marker files in a shared directory:
// `<dir>/<workflow>.abort` (contents = UTF-8 reason) and
// `<dir>/<workflow>.resume`. Any process that can write the directory can
// raise a signal; an advisory lock per workflow keeps a reason from being
// read half-written.
type FileSource struct {
	dir string
}

// NewFileSource creates a FileSource rooted at dir. The directory is created
// on first use.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Dir returns the signal directory.
func (s *FileSource) Dir() string {
	return s.dir
}

// Check reports the pending abort signal for a workflow, nil when none.
func (s *FileSource) Check(ctx context.Context, workflow string) (*schema.AbortSignal, error) {
	var sig *schema.AbortSignal

	err := s.withLock(ctx, workflow, func() error {
		path := s.abortPath(workflow)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeSignal,
				"read abort signal for %q: %v", workflow, err).WithCause(err)
		}

		raisedAt := time.Now().UTC()
		if info, err := os.Stat(path); err == nil {
			raisedAt = info.ModTime().UTC()
		}

		sig = &schema.AbortSignal{
			Workflow: workflow,
			Reason:   strings.TrimSpace(string(data)),
			RaisedAt: raisedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// Raise requests an abort with a reason.
func (s *FileSource) Raise(ctx context.Context, workflow, reason string) error {
	return s.withLock(ctx, workflow, func() error {
		if err := os.WriteFile(s.abortPath(workflow), []byte(reason), 0o644); err != nil {
			return schema.NewErrorf(schema.ErrCodeSignal,
				"raise abort signal for %q: %v", workflow, err).WithCause(err)
		}
		return nil
	})
}

// Clear removes any pending abort and resume markers for a workflow.
func (s *FileSource) Clear(ctx context.Context, workflow string) error {
	return s.withLock(ctx, workflow, func() error {
		for _, path := range []string{s.abortPath(workflow), s.resumePath(workflow)} {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return schema.NewErrorf(schema.ErrCodeSignal,
					"clear signal %q: %v", filepath.Base(path), err).WithCause(err)
			}
		}
		return nil
	})
}

// RaiseResume releases a run suspended on an indefinite wait.
func (s *FileSource) RaiseResume(ctx context.Context, workflow string) error {
	return s.withLock(ctx, workflow, func() error {
		if err := os.WriteFile(s.resumePath(workflow), nil, 0o644); err != nil {
			return schema.NewErrorf(schema.ErrCodeSignal,
				"raise resume signal for %q: %v", workflow, err).WithCause(err)
		}
		return nil
	})
}

// ConsumeResume atomically picks up and removes the resume marker.
func (s *FileSource) ConsumeResume(ctx context.Context, workflow string) (bool, error) {
	var present bool

	err := s.withLock(ctx, workflow, func() error {
		err := os.Remove(s.resumePath(workflow))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeSignal,
				"consume resume signal for %q: %v", workflow, err).WithCause(err)
		}
		present = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return present, nil
}

// withLock runs fn holding the workflow's advisory lock. The lock file sits
// beside the markers and persists; only the markers are created and removed.
func (s *FileSource) withLock(ctx context.Context, workflow string, fn func() error) error {
	if err := checkWorkflowName(workflow); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return schema.NewErrorf(schema.ErrCodeSignal,
			"create signal dir %q: %v", s.dir, err).WithCause(err)
	}

	lock := flock.New(s.lockPath(workflow))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeSignal,
			"lock signals for %q: %v", workflow, err).WithCause(err)
	}
	if !locked {
		return schema.NewErrorf(schema.ErrCodeSignal,
			"lock signals for %q: not acquired", workflow)
	}
	defer lock.Unlock()

	return fn()
}

// checkWorkflowName rejects names that would resolve outside the signal dir.
func checkWorkflowName(workflow string) error {
	if workflow == "" ||
		workflow == "." ||
		workflow == ".." ||
		strings.ContainsAny(workflow, `/\`) ||
		strings.ContainsRune(workflow, 0) {
		return schema.NewErrorf(schema.ErrCodeSignal, "invalid workflow name %q", workflow)
	}
	return nil
}

func (s *FileSource) abortPath(workflow string) string {
	return filepath.Join(s.dir, workflow+".abort")
}

func (s *FileSource) resumePath(workflow string) string {
	return filepath.Join(s.dir, workflow+".resume")
}

func (s *FileSource) lockPath(workflow string) string {
	return filepath.Join(s.dir, workflow+".lock")
}

var _ Source = (*FileSource)(nil)
