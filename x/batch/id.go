package batch

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// idNamespace is the fixed UUIDv5 namespace for batch identity. Changing it
// changes every derived id, so it is a constant for the lifetime of the
// deployment.
var idNamespace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

// DAMode selects how batch data reaches the L1.
type DAMode string

const (
	DAModeCalldata DAMode = "calldata"
	DAModeBlob     DAMode = "blob"
)

// Tag is the single-byte identity encoding of the mode.
func (m DAMode) Tag() byte {
	if m == DAModeBlob {
		return 0x02
	}
	return 0x01
}

// DAID is the on-chain uint8 identifier of the mode.
func (m DAMode) DAID() uint8 { return m.Tag() }

func (m DAMode) Valid() bool {
	return m == DAModeCalldata || m == DAModeBlob
}

// DeriveID computes the deterministic batch id as UUIDv5 over the fixed
// namespace and the byte string
//
//	be_u64(chainID) || bridge(20) || dataHash(32) || newRoot(32) || modeTag(1)
//
// Identical inputs always yield the identical id, which makes ingestion
// idempotent by construction.
func DeriveID(chainID uint64, bridge common.Address, dataHash, newRoot common.Hash, mode DAMode) uuid.UUID {
	name := make([]byte, 0, 8+common.AddressLength+2*common.HashLength+1)
	name = binary.BigEndian.AppendUint64(name, chainID)
	name = append(name, bridge.Bytes()...)
	name = append(name, dataHash.Bytes()...)
	name = append(name, newRoot.Bytes()...)
	name = append(name, mode.Tag())
	return uuid.NewSHA1(idNamespace, name)
}
