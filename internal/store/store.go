package store

import (
	"context"
	"errors"

	"github.com/me/workprep/pkg/model"
)

// ErrNonDeterministic is returned when an entity is recorded again with a
// different WorkItem than the one already in the ledger.
var ErrNonDeterministic = errors.New("non-deterministic work item")

// Ledger persists assembled WorkItems keyed by provenance entity.
type Ledger interface {
	// Record stores item. Recording an identical item again is a no-op that
	// returns the existing record.
	Record(ctx context.Context, item *model.WorkItem) (*model.LedgerRecord, error)
	// Get returns nil, nil when entity is unknown.
	Get(ctx context.Context, entity string) (*model.LedgerRecord, error)
	ListByRun(ctx context.Context, runID string, opts model.ListOptions) ([]*model.LedgerRecord, int, error)
	Runs(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
