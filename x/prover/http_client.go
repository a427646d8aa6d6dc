package prover

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zkrollup-network/batch-submitter/x/resilience"
)

// HTTPClient implements ProofProvider over the prover REST API.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPClient constructs a prover client for the given base URL.
func NewHTTPClient(rawURL string, httpClient *http.Client, log zerolog.Logger) (*HTTPClient, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid prover base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := log.With().Str("component", "prover-client").Logger()

	client := &HTTPClient{
		baseURL:    parsed,
		httpClient: httpClient,
		log:        logger,
	}

	logger.Info().
		Str("base_url", rawURL).
		Dur("timeout", httpClient.Timeout).
		Msg("HTTP prover client initialized")

	return client, nil
}

// GetProof requests a proof for the batch. 5xx responses and transport
// failures are transient; 4xx responses are permanent.
func (c *HTTPClient) GetProof(ctx context.Context, batchID uuid.UUID, publicInputs []byte) ([]byte, error) {
	endpoint := c.buildURL("prove")

	c.log.Info().
		Str("endpoint", endpoint).
		Str("batch_id", batchID.String()).
		Int("public_inputs_len", len(publicInputs)).
		Msg("requesting proof generation")

	body, err := json.Marshal(proveRequest{
		BatchID:      batchID.String(),
		PublicInputs: hex.EncodeToString(publicInputs),
	})
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("marshal prove request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("prepare request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("proof request failed")
		return nil, resilience.Transient(fmt.Errorf("post prove request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		err := fmt.Errorf("prover returned %s: %s", res.Status, string(msg))
		c.log.Error().
			Int("status_code", res.StatusCode).
			Str("batch_id", batchID.String()).
			Msg("prover returned error response")
		if res.StatusCode >= 500 {
			return nil, resilience.Transient(err)
		}
		return nil, resilience.Permanent(err)
	}

	var pr proveResponse
	if err := json.NewDecoder(res.Body).Decode(&pr); err != nil {
		return nil, resilience.Transient(fmt.Errorf("decode prover response: %w", err))
	}

	proof, err := hex.DecodeString(trimHexPrefix(pr.Proof))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("decode proof hex: %w", err))
	}
	if len(proof) == 0 {
		return nil, resilience.Permanent(errors.New("prover response missing proof"))
	}

	c.log.Info().
		Str("batch_id", batchID.String()).
		Int("proof_len", len(proof)).
		Msg("proof received")

	return proof, nil
}

func (c *HTTPClient) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

type proveRequest struct {
	BatchID      string `json:"batch_id"`
	PublicInputs string `json:"public_inputs"`
}

type proveResponse struct {
	Proof string `json:"proof"`
}

// Ensure HTTPClient satisfies ProofProvider at compile time.
var _ ProofProvider = (*HTTPClient)(nil)
