package orchestrator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// snarkScalarField is the BN254 scalar field modulus. Every public input is
// reduced into the field before it reaches the prover, matching what the
// verifier contract expects.
var snarkScalarField, _ = new(big.Int).SetString("21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)

// PublicInputs lays out daCommitment || oldRoot || newRoot as three
// 32-byte big-endian words, each taken modulo the BN254 scalar field.
func PublicInputs(daCommitment, oldRoot, newRoot common.Hash) []byte {
	out := make([]byte, 0, 3*common.HashLength)
	for _, h := range []common.Hash{daCommitment, oldRoot, newRoot} {
		reduced := new(big.Int).Mod(new(big.Int).SetBytes(h.Bytes()), snarkScalarField)
		out = append(out, common.BytesToHash(reduced.Bytes()).Bytes()...)
	}
	return out
}
