package l1

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalECDSASigner signs with an in-process secp256k1 key bound to one chain.
type LocalECDSASigner struct {
	chainID *big.Int
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ Signer = (*LocalECDSASigner)(nil)

// NewLocalECDSASigner wraps an existing private key.
func NewLocalECDSASigner(chainID *big.Int, key *ecdsa.PrivateKey) *LocalECDSASigner {
	return &LocalECDSASigner{
		chainID: chainID,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewLocalECDSASignerFromHex parses a hex-encoded private key, with or
// without a 0x prefix.
func NewLocalECDSASignerFromHex(chainID *big.Int, keyHex string) (*LocalECDSASigner, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	if keyHex == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return NewLocalECDSASigner(chainID, key), nil
}

func (s *LocalECDSASigner) Address() common.Address { return s.address }

func (s *LocalECDSASigner) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// SignTx signs with the latest signer for the bound chain id, which covers
// both dynamic-fee and blob transactions.
func (s *LocalECDSASigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	return signed, nil
}
