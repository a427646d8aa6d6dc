// Package batch defines the batch aggregate: deterministic identity, the
// persisted fields, and the status machine that orders its lifecycle.
package batch

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Batch is the aggregate root driven through the submission pipeline. The
// orchestrator is the sole mutator of non-terminal batches; storage owns
// durability.
type Batch struct {
	ID                uuid.UUID      `gorm:"type:text;primaryKey" json:"id"`
	Status            Status         `gorm:"type:text;index:idx_batches_pending,priority:1" json:"status"`
	ChainID           uint64         `json:"chain_id"`
	BridgeAddress     common.Address `json:"bridge_address"`
	DataHash          common.Hash    `json:"data_hash"`
	NewRoot           common.Hash    `json:"new_root"`
	DAMode            DAMode         `gorm:"type:text" json:"da_mode"`
	Payload           []byte         `json:"-"`
	Proof             []byte         `json:"-"`
	TxHash            []byte         `json:"tx_hash,omitempty"`
	BlobVersionedHash []byte         `json:"blob_versioned_hash,omitempty"`
	Attempts          uint32         `json:"attempts"`
	LastError         string         `json:"last_error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `gorm:"index:idx_batches_pending,priority:2" json:"updated_at"`
}

// TableName pins the persisted table name.
func (Batch) TableName() string { return "batches" }

// New creates a Discovered batch with its deterministic id.
func New(chainID uint64, bridge common.Address, payload []byte, dataHash, newRoot common.Hash, mode DAMode) *Batch {
	now := time.Now().UTC()
	return &Batch{
		ID:            DeriveID(chainID, bridge, dataHash, newRoot, mode),
		Status:        StatusDiscovered,
		ChainID:       chainID,
		BridgeAddress: bridge,
		DataHash:      dataHash,
		NewRoot:       newRoot,
		DAMode:        mode,
		Payload:       payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Transition moves the batch to the given status if the edge is legal,
// refreshing updated_at. Terminal states never transition out.
func (b *Batch) Transition(to Status) error {
	if !b.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordFailure notes a transient failure without changing status.
func (b *Batch) RecordFailure(reason string) {
	b.Attempts++
	b.LastError = reason
	b.UpdatedAt = time.Now().UTC()
}

// IsTerminal reports whether the batch can make no further progress.
func (b *Batch) IsTerminal() bool { return b.Status.IsTerminal() }

// TxHashValue returns the stored tx hash, or false when none was recorded.
func (b *Batch) TxHashValue() (common.Hash, bool) {
	if len(b.TxHash) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b.TxHash), true
}
