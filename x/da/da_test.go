package da

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zkrollup-network/batch-submitter/x/batch"
	"github.com/zkrollup-network/batch-submitter/x/da/contracts"
	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/resilience"
)

type mockClient struct {
	baseFee     *big.Int
	tip         *big.Int
	tipErr      error
	blobFee     *big.Int
	estimate    uint64
	estimateErr error
	head        uint64
	receipt     *types.Receipt
	receiptErr  error

	estimated []ethereum.CallMsg
}

func (c *mockClient) ChainID(ctx context.Context) (*big.Int, error)   { return big.NewInt(1), nil }
func (c *mockClient) BlockNumber(ctx context.Context) (uint64, error) { return c.head, nil }
func (c *mockClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: c.baseFee}, nil
}
func (c *mockClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (c *mockClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return c.tip, c.tipErr
}
func (c *mockClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.estimated = append(c.estimated, msg)
	return c.estimate, c.estimateErr
}
func (c *mockClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (c *mockClient) SendTransaction(ctx context.Context, tx *types.Transaction) error { return nil }
func (c *mockClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.receipt, c.receiptErr
}
func (c *mockClient) BlobBaseFee(ctx context.Context) (*big.Int, error) { return c.blobFee, nil }

var _ l1.Client = (*mockClient)(nil)

type mockSigner struct{ addr common.Address }

func (s *mockSigner) Address() common.Address { return s.addr }
func (s *mockSigner) ChainID() *big.Int       { return big.NewInt(1) }
func (s *mockSigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

func testBatch(mode batch.DAMode) *batch.Batch {
	b := batch.New(
		1,
		common.HexToAddress("0xdead"),
		[]byte("batch payload"),
		common.HexToHash("0x01"),
		common.HexToHash("0x02"),
		mode,
	)
	b.Proof = make([]byte, contracts.Groth16ProofSize)
	for i := range b.Proof {
		b.Proof[i] = byte(i)
	}
	return b
}

func testBridge(t *testing.T) *contracts.BridgeBinding {
	t.Helper()
	binding, err := contracts.NewBridgeBinding(common.HexToAddress("0xbeef"))
	require.NoError(t, err)
	return binding
}

func TestEncodeBlobsLayout(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	blobs, err := EncodeBlobs(data)
	require.NoError(t, err)
	require.Len(t, blobs, 1)

	require.Equal(t, byte(0), blobs[0][0])
	require.Equal(t, data, blobs[0][1:1+len(data)])
}

func TestEncodeBlobsElementBoundaries(t *testing.T) {
	t.Parallel()

	data := make([]byte, usableBytesPerElement+5)
	for i := range data {
		data[i] = 0xff
	}
	blobs, err := EncodeBlobs(data)
	require.NoError(t, err)
	require.Len(t, blobs, 1)

	require.Equal(t, byte(0), blobs[0][0])
	require.Equal(t, data[:usableBytesPerElement], blobs[0][1:32])
	require.Equal(t, byte(0), blobs[0][32])
	require.Equal(t, data[usableBytesPerElement:], blobs[0][33:38])
}

func TestEncodeBlobsSplitsAcrossBlobs(t *testing.T) {
	t.Parallel()

	blobs, err := EncodeBlobs(make([]byte, blobCapacity+1))
	require.NoError(t, err)
	require.Len(t, blobs, 2)

	_, err = EncodeBlobs(nil)
	require.Error(t, err)
}

func TestCalldataBuildTx(t *testing.T) {
	t.Parallel()

	client := &mockClient{
		baseFee:  big.NewInt(10),
		tip:      big.NewInt(3),
		estimate: 100_000,
	}
	fees := DefaultFeeConfig()
	strat := NewCalldataStrategy(client, testBridge(t), &mockSigner{addr: common.HexToAddress("0xabc")}, fees, 3, testLogger())

	b := testBatch(batch.DAModeCalldata)
	tx, err := strat.BuildTx(context.Background(), b)
	require.NoError(t, err)

	require.Equal(t, common.HexToAddress("0xbeef"), tx.To)
	require.False(t, tx.IsBlob())
	require.Equal(t, uint64(120_000), tx.GasLimit)
	require.Equal(t, big.NewInt(23), tx.GasFeeCap)
	require.Equal(t, big.NewInt(3), tx.GasTipCap)

	method := testBridge(t).ABI().Methods["commitBatch"]
	require.Equal(t, method.ID, tx.Data[:4])
	args, err := method.Inputs.Unpack(tx.Data[4:])
	require.NoError(t, err)
	require.Equal(t, batch.DAModeCalldata.DAID(), args[0])
	require.Equal(t, b.Payload, args[1])

	require.Len(t, client.estimated, 1)
	require.Equal(t, common.HexToAddress("0xabc"), client.estimated[0].From)
}

func TestCalldataBuildTxRejectsBadProof(t *testing.T) {
	t.Parallel()

	client := &mockClient{baseFee: big.NewInt(10), tip: big.NewInt(3)}
	strat := NewCalldataStrategy(client, testBridge(t), &mockSigner{}, DefaultFeeConfig(), 3, testLogger())

	b := testBatch(batch.DAModeCalldata)
	b.Proof = []byte{0x01}
	_, err := strat.BuildTx(context.Background(), b)
	require.Error(t, err)
	require.True(t, resilience.IsKind(err, resilience.KindPermanent))
}

func TestCalldataBuildTxEstimateFailureIsTransient(t *testing.T) {
	t.Parallel()

	client := &mockClient{
		baseFee:     big.NewInt(10),
		tip:         big.NewInt(3),
		estimateErr: errors.New("node unavailable"),
	}
	strat := NewCalldataStrategy(client, testBridge(t), &mockSigner{}, DefaultFeeConfig(), 3, testLogger())

	_, err := strat.BuildTx(context.Background(), testBatch(batch.DAModeCalldata))
	require.Error(t, err)
	require.True(t, resilience.IsKind(err, resilience.KindTransient))
}

func TestBlobBuildTx(t *testing.T) {
	t.Parallel()

	client := &mockClient{
		baseFee:  big.NewInt(10),
		tip:      big.NewInt(3),
		blobFee:  big.NewInt(1),
		estimate: 80_000,
	}
	fees := DefaultFeeConfig()
	strat := NewBlobStrategy(client, testBridge(t), &mockSigner{}, fees, 3, 0, true, nil, testLogger())

	b := testBatch(batch.DAModeBlob)
	tx, err := strat.BuildTx(context.Background(), b)
	require.NoError(t, err)

	require.True(t, tx.IsBlob())
	require.Len(t, tx.BlobHashes, 1)
	require.Len(t, tx.Sidecar.Blobs, 1)
	require.Len(t, tx.Sidecar.Commitments, 1)
	require.Len(t, tx.Sidecar.Proofs, 1)
	require.Equal(t, fees.maxBlobFee(), tx.BlobFeeCap)
	require.Equal(t, tx.BlobHashes[0].Bytes(), b.BlobVersionedHash)

	method := testBridge(t).ABI().Methods["commitBatch"]
	args, err := method.Inputs.Unpack(tx.Data[4:])
	require.NoError(t, err)
	require.Equal(t, batch.DAModeBlob.DAID(), args[0])
	require.Equal(t, []byte{}, args[1])

	meta, err := daMetaArgs.Unpack(args[2].([]byte))
	require.NoError(t, err)
	require.Equal(t, [32]byte(tx.BlobHashes[0]), meta[0])
	require.Equal(t, uint8(0), meta[1])
	require.Equal(t, true, meta[2])
}

func TestBlobBuildTxDefersWhenFeeAboveCap(t *testing.T) {
	t.Parallel()

	fees := DefaultFeeConfig()
	client := &mockClient{
		baseFee: big.NewInt(10),
		tip:     big.NewInt(3),
		blobFee: new(big.Int).Add(fees.maxBlobFee(), big.NewInt(1)),
	}
	strat := NewBlobStrategy(client, testBridge(t), &mockSigner{}, fees, 3, 0, false, nil, testLogger())

	_, err := strat.BuildTx(context.Background(), testBatch(batch.DAModeBlob))
	require.ErrorIs(t, err, ErrFeeTooHigh)
	require.True(t, resilience.IsKind(err, resilience.KindTransient))
}

func TestBlobBuildTxRejectsIndexOutOfRange(t *testing.T) {
	t.Parallel()

	client := &mockClient{
		baseFee: big.NewInt(10),
		tip:     big.NewInt(3),
		blobFee: big.NewInt(1),
	}
	strat := NewBlobStrategy(client, testBridge(t), &mockSigner{}, DefaultFeeConfig(), 3, 5, false, nil, testLogger())

	_, err := strat.BuildTx(context.Background(), testBatch(batch.DAModeBlob))
	require.Error(t, err)
	require.True(t, resilience.IsKind(err, resilience.KindPermanent))
}

func TestFeePolicies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := &mockClient{tip: big.NewInt(7)}

	standard := FeeConfig{Policy: FeePolicyStandard}
	tip, err := standard.priorityFee(ctx, client)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), tip)

	aggressive := FeeConfig{Policy: FeePolicyAggressive}
	tip, err = aggressive.priorityFee(ctx, client)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(14), tip)

	fixed := FeeConfig{Policy: FeePolicyFixed, FixedTipGwei: 2}
	tip, err = fixed.priorityFee(ctx, client)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(big.NewInt(2), gwei), tip)

	require.False(t, FeePolicy("turbo").Valid())
	require.True(t, FeePolicyStandard.Valid())
}

func TestFeeCapsLeaveBaseFeeHeadroom(t *testing.T) {
	t.Parallel()

	client := &mockClient{baseFee: big.NewInt(100), tip: big.NewInt(5)}
	feeCap, tipCap, err := FeeConfig{Policy: FeePolicyStandard}.feeCaps(context.Background(), client)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(205), feeCap)
	require.Equal(t, big.NewInt(5), tipCap)
}

func TestFeeCapsTipFailureIsTransient(t *testing.T) {
	t.Parallel()

	client := &mockClient{tipErr: errors.New("rpc down")}
	_, _, err := FeeConfig{Policy: FeePolicyStandard}.feeCaps(context.Background(), client)
	require.Error(t, err)
	require.True(t, resilience.IsKind(err, resilience.KindTransient))
}

func TestBufferedGas(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint64(120), FeeConfig{GasLimitBufferPct: 20}.bufferedGas(100))
	require.Equal(t, uint64(100), FeeConfig{}.bufferedGas(100))
}

func TestCheckConfirmationStates(t *testing.T) {
	t.Parallel()

	hash := common.HexToHash("0xaa")

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		checker := confirmationChecker{client: &mockClient{receiptErr: ethereum.NotFound}, required: 3}
		conf, err := checker.CheckConfirmation(context.Background(), hash)
		require.NoError(t, err)
		require.Equal(t, ConfirmationNotFound, conf.State)
		require.False(t, conf.Confirmed())
	})

	t.Run("reverted", func(t *testing.T) {
		t.Parallel()
		receipt := &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(10)}
		checker := confirmationChecker{client: &mockClient{receipt: receipt}, required: 3}
		conf, err := checker.CheckConfirmation(context.Background(), hash)
		require.NoError(t, err)
		require.Equal(t, ConfirmationReverted, conf.State)
	})

	t.Run("pending below depth", func(t *testing.T) {
		t.Parallel()
		receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}
		checker := confirmationChecker{client: &mockClient{receipt: receipt, head: 11}, required: 3}
		conf, err := checker.CheckConfirmation(context.Background(), hash)
		require.NoError(t, err)
		require.Equal(t, ConfirmationPending, conf.State)
		require.Equal(t, uint64(2), conf.Confirmations)
	})

	t.Run("mined at depth", func(t *testing.T) {
		t.Parallel()
		receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}
		checker := confirmationChecker{client: &mockClient{receipt: receipt, head: 12}, required: 3}
		conf, err := checker.CheckConfirmation(context.Background(), hash)
		require.NoError(t, err)
		require.Equal(t, ConfirmationMined, conf.State)
		require.True(t, conf.Confirmed())
		require.Equal(t, uint64(3), conf.Confirmations)
	})

	t.Run("rpc failure is transient", func(t *testing.T) {
		t.Parallel()
		checker := confirmationChecker{client: &mockClient{receiptErr: errors.New("rpc down")}, required: 3}
		_, err := checker.CheckConfirmation(context.Background(), hash)
		require.Error(t, err)
		require.True(t, resilience.IsKind(err, resilience.KindTransient))
	})
}

func TestArchiverPost(t *testing.T) {
	t.Parallel()

	var got archiveRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/archive/blobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := NewArchiverClient(server.URL+"/archive", server.Client(), testLogger())
	require.NoError(t, err)

	hash := common.HexToHash("0x11")
	require.NoError(t, client.Post(context.Background(), hash, []byte{0xde, 0xad}))
	require.Equal(t, hash.Hex(), got.VersionedHash)
	require.Equal(t, hex.EncodeToString([]byte{0xde, 0xad}), got.Data)
}

func TestArchiverPostSurfacesServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	defer server.Close()

	client, err := NewArchiverClient(server.URL, server.Client(), testLogger())
	require.NoError(t, err)

	err = client.Post(context.Background(), common.HexToHash("0x11"), []byte{0x01})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}

func TestNewArchiverClientRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewArchiverClient("", nil, testLogger())
	require.Error(t, err)
}

func TestBlobStrategyArchivePostsEveryBlob(t *testing.T) {
	t.Parallel()

	var posts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	archiver, err := NewArchiverClient(server.URL, server.Client(), testLogger())
	require.NoError(t, err)

	client := &mockClient{
		baseFee:  big.NewInt(10),
		tip:      big.NewInt(3),
		blobFee:  big.NewInt(1),
		estimate: 80_000,
	}
	strat := NewBlobStrategy(client, testBridge(t), &mockSigner{}, DefaultFeeConfig(), 3, 0, false, archiver, testLogger())

	b := testBatch(batch.DAModeBlob)
	b.Payload = make([]byte, blobCapacity+1)
	tx, err := strat.BuildTx(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, tx.BlobHashes, 2)

	require.NoError(t, strat.Archive(context.Background(), tx))
	require.Equal(t, 2, posts)
}

func TestCalldataCommitmentIsPayloadKeccak(t *testing.T) {
	t.Parallel()

	strat := NewCalldataStrategy(&mockClient{}, testBridge(t), &mockSigner{}, DefaultFeeConfig(), 3, testLogger())
	b := testBatch(batch.DAModeCalldata)

	commitment, err := strat.Commitment(b)
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(b.Payload), commitment)
}

func TestBlobCommitmentDerivedOnceAndRecorded(t *testing.T) {
	t.Parallel()

	strat := NewBlobStrategy(&mockClient{}, testBridge(t), &mockSigner{}, DefaultFeeConfig(), 3, 0, false, nil, testLogger())
	b := testBatch(batch.DAModeBlob)

	commitment, err := strat.Commitment(b)
	require.NoError(t, err)
	require.Equal(t, commitment.Bytes(), b.BlobVersionedHash)
	require.Equal(t, byte(0x01), commitment[0])

	again, err := strat.Commitment(b)
	require.NoError(t, err)
	require.Equal(t, commitment, again)
}

func TestArchiveIsNoOpWithoutArchiver(t *testing.T) {
	t.Parallel()

	strat := NewBlobStrategy(&mockClient{}, testBridge(t), &mockSigner{}, DefaultFeeConfig(), 3, 0, false, nil, testLogger())
	require.NoError(t, strat.Archive(context.Background(), &l1.Tx{}))
}
