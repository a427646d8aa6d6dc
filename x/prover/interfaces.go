// Package prover obtains proof blobs for batches. The proof content is opaque
// to the pipeline; only its size is validated downstream.
package prover

import (
	"context"

	"github.com/google/uuid"
)

// ProofProvider produces a proof for a batch given its public inputs.
// Failures carry a resilience kind: transient errors retry, permanent errors
// dead-letter the batch, busy errors defer it.
type ProofProvider interface {
	GetProof(ctx context.Context, batchID uuid.UUID, publicInputs []byte) ([]byte, error)
}
