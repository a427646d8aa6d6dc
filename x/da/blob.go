package da

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/rs/zerolog"

	"github.com/zkrollup-network/batch-submitter/x/batch"
	"github.com/zkrollup-network/batch-submitter/x/da/contracts"
	"github.com/zkrollup-network/batch-submitter/x/l1"
	"github.com/zkrollup-network/batch-submitter/x/resilience"
)

const (
	fieldElementsPerBlob = 4096
	// Each field element carries 31 payload bytes behind a zero byte so its
	// value stays below the BLS modulus.
	usableBytesPerElement = 31
	blobCapacity          = fieldElementsPerBlob * usableBytesPerElement
)

// daMetaArgs is the ABI layout of the blob strategy's daMeta blob:
// (versionedHash, blobIndex, useOpcode).
var daMetaArgs = abi.Arguments{
	{Type: mustABIType("bytes32")},
	{Type: mustABIType("uint8")},
	{Type: mustABIType("bool")},
}

func mustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// BlobStrategy posts the batch payload as EIP-4844 blob sidecars and binds it
// to the bridge through the versioned hash carried in daMeta.
type BlobStrategy struct {
	confirmationChecker

	bridge    *contracts.BridgeBinding
	signer    l1.Signer
	fees      FeeConfig
	blobIndex uint8
	useOpcode bool
	archiver  *ArchiverClient
	log       zerolog.Logger
}

var (
	_ Strategy     = (*BlobStrategy)(nil)
	_ BlobArchiver = (*BlobStrategy)(nil)
)

// NewBlobStrategy creates the blob strategy. The archiver is optional.
func NewBlobStrategy(client l1.Client, bridge *contracts.BridgeBinding, signer l1.Signer, fees FeeConfig, confirmations uint64, blobIndex uint8, useOpcode bool, archiver *ArchiverClient, log zerolog.Logger) *BlobStrategy {
	return &BlobStrategy{
		confirmationChecker: confirmationChecker{client: client, required: confirmations},
		bridge:              bridge,
		signer:              signer,
		fees:                fees,
		blobIndex:           blobIndex,
		useOpcode:           useOpcode,
		archiver:            archiver,
		log:                 log.With().Str("component", "da-blob").Logger(),
	}
}

// Commitment is the versioned hash of the bound blob. When the batch does not
// carry one yet it is derived from the payload and recorded on the batch so
// proving and submission bind the same hash.
func (s *BlobStrategy) Commitment(b *batch.Batch) (common.Hash, error) {
	if len(b.BlobVersionedHash) == common.HashLength {
		return common.BytesToHash(b.BlobVersionedHash), nil
	}

	_, hashes, err := buildSidecar(b.Payload)
	if err != nil {
		return common.Hash{}, err
	}
	if int(s.blobIndex) >= len(hashes) {
		return common.Hash{}, fmt.Errorf("blob index %d out of range for %d blobs", s.blobIndex, len(hashes))
	}
	b.BlobVersionedHash = hashes[s.blobIndex].Bytes()
	return hashes[s.blobIndex], nil
}

// BuildTx encodes the payload into blobs, computes KZG commitments and
// proofs, and wraps everything in a type-3 transaction candidate. The blob
// base fee is checked against the configured cap first.
func (s *BlobStrategy) BuildTx(ctx context.Context, b *batch.Batch) (*l1.Tx, error) {
	blobFee, err := s.client.BlobBaseFee(ctx)
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("fetching blob base fee: %w", err))
	}
	maxFee := s.fees.maxBlobFee()
	if blobFee.Cmp(maxFee) > 0 {
		s.log.Warn().
			Str("batch_id", b.ID.String()).
			Str("blob_base_fee", blobFee.String()).
			Str("max_blob_fee", maxFee.String()).
			Msg("blob base fee above cap, deferring")
		return nil, resilience.Transient(ErrFeeTooHigh)
	}

	proof, err := contracts.ParseGroth16Proof(b.Proof)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("batch %s: %w", b.ID, err))
	}

	sidecar, versionedHashes, err := buildSidecar(b.Payload)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("batch %s: %w", b.ID, err))
	}

	if int(s.blobIndex) >= len(versionedHashes) {
		return nil, resilience.Permanent(fmt.Errorf("blob index %d out of range for %d blobs", s.blobIndex, len(versionedHashes)))
	}
	boundHash := versionedHashes[s.blobIndex]

	daMeta, err := daMetaArgs.Pack(boundHash, s.blobIndex, s.useOpcode)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("packing daMeta: %w", err))
	}

	data, err := s.bridge.PackCommitBatch(batch.DAModeBlob.DAID(), nil, daMeta, b.NewRoot, proof)
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	feeCap, tipCap, err := s.fees.feeCaps(ctx, s.client)
	if err != nil {
		return nil, err
	}

	to := s.bridge.Address()
	from := s.signer.Address()
	estimate, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &to,
		Data:      data,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
	})
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("estimating commitBatch gas: %w", err))
	}

	b.BlobVersionedHash = boundHash.Bytes()

	s.log.Debug().
		Str("batch_id", b.ID.String()).
		Int("payload_len", len(b.Payload)).
		Int("blobs", len(sidecar.Blobs)).
		Str("versioned_hash", boundHash.Hex()).
		Msg("blob transaction built")

	return &l1.Tx{
		To:         to,
		Data:       data,
		GasLimit:   s.fees.bufferedGas(estimate),
		GasFeeCap:  feeCap,
		GasTipCap:  tipCap,
		BlobFeeCap: maxFee,
		BlobHashes: versionedHashes,
		Sidecar:    sidecar,
	}, nil
}

// Archive posts every blob of the candidate to the configured archiver.
// Failures are reported but callers only log and count them.
func (s *BlobStrategy) Archive(ctx context.Context, tx *l1.Tx) error {
	if s.archiver == nil || tx.Sidecar == nil {
		return nil
	}

	var errs []error
	for i := range tx.Sidecar.Blobs {
		if err := s.archiver.Post(ctx, tx.BlobHashes[i], tx.Sidecar.Blobs[i][:]); err != nil {
			errs = append(errs, fmt.Errorf("blob %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// buildSidecar splits the payload into canonical blobs and computes the KZG
// commitment, proof and versioned hash for each.
func buildSidecar(payload []byte) (*types.BlobTxSidecar, []common.Hash, error) {
	if len(payload) == 0 {
		return nil, nil, errors.New("empty payload")
	}

	blobs, err := EncodeBlobs(payload)
	if err != nil {
		return nil, nil, err
	}

	sidecar := &types.BlobTxSidecar{
		Blobs:       blobs,
		Commitments: make([]kzg4844.Commitment, len(blobs)),
		Proofs:      make([]kzg4844.Proof, len(blobs)),
	}
	hashes := make([]common.Hash, len(blobs))

	hasher := sha256.New()
	for i := range blobs {
		commitment, err := kzg4844.BlobToCommitment(&sidecar.Blobs[i])
		if err != nil {
			return nil, nil, fmt.Errorf("computing commitment for blob %d: %w", i, err)
		}
		blobProof, err := kzg4844.ComputeBlobProof(&sidecar.Blobs[i], commitment)
		if err != nil {
			return nil, nil, fmt.Errorf("computing proof for blob %d: %w", i, err)
		}
		sidecar.Commitments[i] = commitment
		sidecar.Proofs[i] = blobProof
		hashes[i] = kzg4844.CalcBlobHashV1(hasher, &commitment)
	}

	return sidecar, hashes, nil
}

// EncodeBlobs packs data into 4096-field-element blobs using the canonical
// 31-bytes-per-element encoding.
func EncodeBlobs(data []byte) ([]kzg4844.Blob, error) {
	if len(data) == 0 {
		return nil, errors.New("no data to encode")
	}

	numBlobs := (len(data) + blobCapacity - 1) / blobCapacity
	blobs := make([]kzg4844.Blob, numBlobs)

	for i := 0; i < numBlobs; i++ {
		chunk := data[i*blobCapacity:]
		if len(chunk) > blobCapacity {
			chunk = chunk[:blobCapacity]
		}
		for j := 0; j < len(chunk); j += usableBytesPerElement {
			word := chunk[j:]
			if len(word) > usableBytesPerElement {
				word = word[:usableBytesPerElement]
			}
			// Leading zero byte keeps the element below the field modulus.
			offset := (j / usableBytesPerElement) * 32
			copy(blobs[i][offset+1:offset+32], word)
		}
	}

	return blobs, nil
}
