package prover

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// mockProofSize matches the Groth16 proof layout consumed on-chain.
const mockProofSize = 256

// MockClient returns deterministic dummy proofs after a configurable delay.
// Used in tests and for integration simulation when no prover URL is set.
type MockClient struct {
	delay time.Duration
	log   zerolog.Logger
}

// NewMockClient creates a mock prover.
func NewMockClient(delay time.Duration, log zerolog.Logger) *MockClient {
	return &MockClient{
		delay: delay,
		log:   log.With().Str("component", "prover-mock").Logger(),
	}
}

// GetProof sleeps for the configured delay, then derives a 256-byte proof
// from the batch id by chained keccak256 so the same batch always proves to
// the same bytes.
func (c *MockClient) GetProof(ctx context.Context, batchID uuid.UUID, publicInputs []byte) ([]byte, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	proof := make([]byte, 0, mockProofSize)
	word := crypto.Keccak256(batchID[:])
	for len(proof) < mockProofSize {
		proof = append(proof, word...)
		word = crypto.Keccak256(word)
	}

	c.log.Debug().
		Str("batch_id", batchID.String()).
		Int("public_inputs_len", len(publicInputs)).
		Msg("mock proof generated")

	return proof[:mockProofSize], nil
}

var _ ProofProvider = (*MockClient)(nil)
