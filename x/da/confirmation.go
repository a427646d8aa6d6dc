package da

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/resilience"
)

// confirmationChecker interprets receipts against a required depth. Both
// strategies share the same rule: a transaction is confirmed once its receipt
// exists, reports success, and head - block + 1 >= required.
type confirmationChecker struct {
	client   l1.Client
	required uint64
}

func (c confirmationChecker) CheckConfirmation(ctx context.Context, txHash common.Hash) (Confirmation, error) {
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return Confirmation{State: ConfirmationNotFound}, nil
	}
	if err != nil {
		return Confirmation{}, resilience.Transient(fmt.Errorf("fetching receipt for %s: %w", txHash.Hex(), err))
	}
	if receipt == nil {
		return Confirmation{State: ConfirmationNotFound}, nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return Confirmation{State: ConfirmationReverted}, nil
	}

	head, err := c.client.BlockNumber(ctx)
	if err != nil {
		return Confirmation{}, resilience.Transient(fmt.Errorf("fetching head block: %w", err))
	}

	block := receipt.BlockNumber.Uint64()
	var confs uint64
	if head >= block {
		confs = head - block + 1
	}

	if confs < c.required {
		return Confirmation{State: ConfirmationPending, Confirmations: confs}, nil
	}
	return Confirmation{State: ConfirmationMined, Success: true, Confirmations: confs}, nil
}
