// Package l1 talks to the Ethereum L1: client access, transaction signing,
// broadcast with nonce management, and receipt interpretation.
package l1

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the subset of the Ethereum JSON-RPC surface the submitter needs.
// *ethclient.Client satisfies it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlobBaseFee(ctx context.Context) (*big.Int, error)
}

// Tx is an unsigned transaction candidate produced by a DA strategy. The
// submitter assigns the nonce, signs and broadcasts it.
type Tx struct {
	To        common.Address
	Data      []byte
	Value     *big.Int
	GasLimit  uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int

	// Blob fields, set only for type-3 transactions.
	BlobFeeCap *big.Int
	BlobHashes []common.Hash
	Sidecar    *types.BlobTxSidecar
}

// IsBlob reports whether the candidate carries a blob sidecar.
func (t *Tx) IsBlob() bool { return t.Sidecar != nil }

// Signer signs transactions for a fixed chain id.
type Signer interface {
	Address() common.Address
	ChainID() *big.Int
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}
