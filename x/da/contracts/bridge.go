// Package contracts binds the rollup bridge contract: calldata encoding for
// commitBatch and the stateRoot view read.
package contracts

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zkrollup-network/batch-submitter/x/l1"
)

// Rollup bridge ABI JSON embedded at compile time
//
//go:embed abi/zk_rollup_bridge.json
var bridgeABIJSON string

// Groth16ProofSize is the wire size of a serialized proof:
// a[2] then b[2][2] then c[2], each limb a 32-byte big-endian word.
const Groth16ProofSize = 256

// Groth16Proof mirrors the contract's proof tuple.
type Groth16Proof struct {
	A [2]*big.Int    `abi:"a"`
	B [2][2]*big.Int `abi:"b"`
	C [2]*big.Int    `abi:"c"`
}

// ZeroGroth16Proof returns an all-zero proof, accepted by test deployments
// with verification disabled.
func ZeroGroth16Proof() Groth16Proof {
	var p Groth16Proof
	for i := 0; i < 2; i++ {
		p.A[i] = new(big.Int)
		p.C[i] = new(big.Int)
		for j := 0; j < 2; j++ {
			p.B[i][j] = new(big.Int)
		}
	}
	return p
}

// ParseGroth16Proof splits a 256-byte serialized proof into its limbs.
func ParseGroth16Proof(raw []byte) (Groth16Proof, error) {
	if len(raw) != Groth16ProofSize {
		return Groth16Proof{}, fmt.Errorf("invalid proof length: expected %d bytes, got %d", Groth16ProofSize, len(raw))
	}

	var p Groth16Proof
	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(raw[i*32 : (i+1)*32])
	}
	for i := 0; i < 2; i++ {
		p.A[i] = word(i)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			p.B[i][j] = word(2 + i*2 + j)
		}
	}
	for i := 0; i < 2; i++ {
		p.C[i] = word(6 + i)
	}
	return p, nil
}

// BridgeBinding encodes calls against one deployed bridge contract.
type BridgeBinding struct {
	address common.Address
	abi     abi.ABI
}

// NewBridgeBinding parses the embedded ABI for the given contract address.
func NewBridgeBinding(address common.Address) (*BridgeBinding, error) {
	if address == (common.Address{}) {
		return nil, errors.New("bridge contract address cannot be zero")
	}

	parsedABI, err := abi.JSON(strings.NewReader(bridgeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing bridge ABI: %w", err)
	}

	return &BridgeBinding{address: address, abi: parsedABI}, nil
}

// Address returns the bound contract address.
func (b *BridgeBinding) Address() common.Address { return b.address }

// ABI returns the parsed contract ABI.
func (b *BridgeBinding) ABI() abi.ABI { return b.abi }

// PackCommitBatch encodes a commitBatch call.
func (b *BridgeBinding) PackCommitBatch(daID uint8, batchData, daMeta []byte, newRoot common.Hash, proof Groth16Proof) ([]byte, error) {
	if batchData == nil {
		batchData = []byte{}
	}
	if daMeta == nil {
		daMeta = []byte{}
	}
	data, err := b.abi.Pack("commitBatch", daID, batchData, daMeta, [32]byte(newRoot), proof)
	if err != nil {
		return nil, fmt.Errorf("packing commitBatch: %w", err)
	}
	return data, nil
}

// StateRoot reads the bridge's current state root.
func (b *BridgeBinding) StateRoot(ctx context.Context, client l1.Client) (common.Hash, error) {
	data, err := b.abi.Pack("stateRoot")
	if err != nil {
		return common.Hash{}, fmt.Errorf("packing stateRoot: %w", err)
	}

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &b.address, Data: data}, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("calling stateRoot: %w", err)
	}
	if len(out) != 32 {
		return common.Hash{}, fmt.Errorf("stateRoot returned %d bytes, expected 32", len(out))
	}
	return common.BytesToHash(out), nil
}
