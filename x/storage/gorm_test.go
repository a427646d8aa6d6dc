package storage

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zkrollup-network/batch-submitter/x/batch"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()

	dsn := fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", t.Name())
	store, err := Open(dsn, zerolog.New(io.Discard).Level(zerolog.Disabled))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testBatch(chainID uint64) *batch.Batch {
	return batch.New(
		chainID,
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		[]byte("hello"),
		common.HexToHash("0xaa"),
		common.HexToHash("0xbb"),
		batch.DAModeCalldata,
	)
}

func TestUpsertAndGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	b := testBatch(31337)
	require.NoError(t, store.Upsert(ctx, b))

	got, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, b.ID, got.ID)
	require.Equal(t, batch.StatusDiscovered, got.Status)
	require.Equal(t, b.BridgeAddress, got.BridgeAddress)
	require.Equal(t, b.DataHash, got.DataHash)
	require.Equal(t, b.NewRoot, got.NewRoot)
	require.Equal(t, []byte("hello"), got.Payload)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	_, err := store.Get(context.Background(), testBatch(99).ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	b := testBatch(31337)
	require.NoError(t, store.Upsert(ctx, b))
	require.NoError(t, store.Upsert(ctx, b))

	pending, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestUpsertRefreshesMutableColumns(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	b := testBatch(31337)
	require.NoError(t, store.Upsert(ctx, b))

	require.NoError(t, b.Transition(batch.StatusProving))
	require.NoError(t, b.Transition(batch.StatusProved))
	b.Proof = []byte{0xbe, 0xef}
	b.RecordFailure("flaky rpc")
	require.NoError(t, store.Upsert(ctx, b))

	got, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, batch.StatusProved, got.Status)
	require.Equal(t, []byte{0xbe, 0xef}, got.Proof)
	require.Equal(t, uint32(1), got.Attempts)
	require.Equal(t, "flaky rpc", got.LastError)
}

func TestListPendingSkipsTerminalAndOrdersOldestFirst(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	newest := testBatch(1)
	oldest := testBatch(2)
	confirmed := testBatch(3)
	failed := testBatch(4)

	confirmed.Status = batch.StatusConfirmed
	failed.Status = batch.StatusFailed

	for _, b := range []*batch.Batch{newest, confirmed, failed} {
		require.NoError(t, store.Upsert(ctx, b))
	}
	// Backdate after upsert since upsert refreshes updated_at.
	require.NoError(t, store.Upsert(ctx, oldest))
	require.NoError(t, store.db.Model(oldest).Update("updated_at", time.Now().UTC().Add(-time.Hour)).Error)

	pending, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, oldest.ID, pending[0].ID)
	require.Equal(t, newest.ID, pending[1].ID)

	limited, err := store.ListPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, oldest.ID, limited[0].ID)
}

func TestMarkFailed(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	b := testBatch(31337)
	require.NoError(t, store.Upsert(ctx, b))
	require.NoError(t, store.MarkFailed(ctx, b.ID, "reverted"))

	got, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, batch.StatusFailed, got.Status)
	require.Equal(t, "reverted", got.LastError)

	require.ErrorIs(t, store.MarkFailed(ctx, testBatch(99).ID, "x"), ErrNotFound)
}

func TestCountByStatus(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	for chainID := uint64(1); chainID <= 3; chainID++ {
		require.NoError(t, store.Upsert(ctx, testBatch(chainID)))
	}
	failed := testBatch(4)
	require.NoError(t, store.Upsert(ctx, failed))
	require.NoError(t, store.MarkFailed(ctx, failed.ID, "gone"))

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), counts[batch.StatusDiscovered])
	require.Equal(t, int64(1), counts[batch.StatusFailed])
}

func TestDialectorSelection(t *testing.T) {
	t.Parallel()

	_, err := dialectorFor("postgres://user:pw@localhost:5432/submitter")
	require.NoError(t, err)
	_, err = dialectorFor("sqlite:///tmp/submitter.db")
	require.NoError(t, err)
	_, err = dialectorFor("/tmp/submitter.db")
	require.NoError(t, err)
	_, err = dialectorFor("mysql://nope")
	require.Error(t, err)
}
