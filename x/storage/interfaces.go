// Package storage persists batches. The port contract is an idempotent
// linearizable upsert keyed by the deterministic batch id plus an oldest-first
// pending scan for the orchestrator.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zkrollup-network/batch-submitter/x/batch"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("batch not found")

// Store is the persistence port.
type Store interface {
	// Upsert inserts the batch or, when the id already exists, updates its
	// mutable columns (status, proof, tx hash, blob versioned hash, attempts,
	// last error, updated_at). It is durable before returning and idempotent
	// under retries.
	Upsert(ctx context.Context, b *batch.Batch) error

	// Get returns the batch with the given id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*batch.Batch, error)

	// ListPending returns non-terminal batches ordered by updated_at
	// ascending, at most limit of them.
	ListPending(ctx context.Context, limit int) ([]*batch.Batch, error)

	// CountByStatus returns the number of batches per status.
	CountByStatus(ctx context.Context) (map[batch.Status]int64, error)

	// MarkFailed terminally fails the batch, recording the reason.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// Close releases the underlying connection pool.
	Close() error
}
