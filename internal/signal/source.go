// Package signal carries out-of-band run control: abort requests and
// wait-for-user resume releases. Signals are keyed by workflow name so an
// external process can address a run without knowing its id.
package signal

import (
	"context"

	"github.com/wendlabs/wend/pkg/schema"
)

// Source reads and writes run control signals.
//
// The engine clears stale signals once at run start (Clear), polls for aborts
// between iterations and inside suspensions (Check), and consumes the resume
// marker when a waiting state picks it up (ConsumeResume). External callers
// only ever raise.
type Source interface {
	// Check reports the pending abort signal for a workflow, nil when none.
	Check(ctx context.Context, workflow string) (*schema.AbortSignal, error)

	// Raise requests an abort with a human-readable reason.
	Raise(ctx context.Context, workflow, reason string) error

	// Clear removes any pending abort and resume signals. Called once when a
	// run starts so a stale request cannot touch the new run.
	Clear(ctx context.Context, workflow string) error

	// RaiseResume releases a run suspended on an indefinite wait.
	RaiseResume(ctx context.Context, workflow string) error

	// ConsumeResume atomically picks up and removes the resume marker,
	// reporting whether one was present.
	ConsumeResume(ctx context.Context, workflow string) (bool, error)
}
