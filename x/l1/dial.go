package l1

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Ensure the geth client satisfies the port at compile time.
var _ Client = (*ethclient.Client)(nil)

// Dial connects to an L1 JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing l1 rpc %s: %w", rpcURL, err)
	}
	return client, nil
}
