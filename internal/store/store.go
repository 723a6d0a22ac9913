// Package store archives run records and lifecycle events so finished runs
// can be inspected after the engine that produced them is gone. LibSQLStore
// persists to a local libSQL database; MemoryStore keeps everything in
// process for tests and throwaway setups.
package store

import (
	"context"

	"github.com/wendlabs/wend/internal/events"
	"github.com/wendlabs/wend/pkg/schema"
)

// Store is the run archive contract. The Record methods satisfy the
// engine's Recorder; the rest serve read-back and upkeep.
// All implementations must be safe for concurrent use.
type Store interface {
	// Run lifecycle (engine Recorder)
	RecordStart(ctx context.Context, res *schema.RunResult) error
	RecordStatus(ctx context.Context, runID string, status schema.RunStatus) error
	RecordFinish(ctx context.Context, res *schema.RunResult) error

	// Run read-back
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event events.Event) error
	ListEvents(ctx context.Context, runID string, since int64) ([]*RunEvent, error)
	ListEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*RunEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
