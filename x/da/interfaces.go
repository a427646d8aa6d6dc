// Package da encodes batches into L1 transactions. Two strategies exist:
// calldata carries the payload in the commitBatch call itself, blob posts it
// as an EIP-4844 sidecar and binds it through the versioned hash.
package da

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zkrollup-network/batch-submitter/x/batch"
	"github.com/zkrollup-network/batch-submitter/x/l1"
)

// ErrFeeTooHigh is returned by the blob strategy when the current blob base
// fee exceeds the configured cap. It is a transient condition.
var ErrFeeTooHigh = errors.New("blob base fee above configured cap")

// ConfirmationState describes where a submitted transaction stands.
type ConfirmationState string

const (
	ConfirmationPending  ConfirmationState = "pending"
	ConfirmationMined    ConfirmationState = "mined"
	ConfirmationReverted ConfirmationState = "reverted"
	ConfirmationNotFound ConfirmationState = "not_found"
)

// Confirmation is the interpreted receipt state of a transaction.
type Confirmation struct {
	State         ConfirmationState
	Success       bool
	Confirmations uint64
}

// Confirmed reports whether the transaction is mined, successful and deep
// enough.
func (c Confirmation) Confirmed() bool {
	return c.State == ConfirmationMined && c.Success
}

// Strategy turns a proved batch into a broadcastable transaction candidate
// and interprets its confirmation state afterwards.
type Strategy interface {
	// Commitment returns the 32-byte DA commitment bound into the proof's
	// public inputs: keccak256 of the payload for calldata, the blob
	// versioned hash for blobs.
	Commitment(b *batch.Batch) (common.Hash, error)
	BuildTx(ctx context.Context, b *batch.Batch) (*l1.Tx, error)
	CheckConfirmation(ctx context.Context, txHash common.Hash) (Confirmation, error)
}

// BlobArchiver is implemented by strategies that archive posted blob data
// off-chain after a successful broadcast. Archiving is best-effort and never
// blocks batch progress.
type BlobArchiver interface {
	Archive(ctx context.Context, tx *l1.Tx) error
}
