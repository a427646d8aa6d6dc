package da

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

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ArchiverClient posts raw blob data to an off-chain archive so it outlives
// the L1 blob retention window.
type ArchiverClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// NewArchiverClient constructs an archiver client for the given base URL.
func NewArchiverClient(rawURL string, httpClient *http.Client, log zerolog.Logger) (*ArchiverClient, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid archiver base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &ArchiverClient{
		baseURL:    parsed,
		httpClient: httpClient,
		log:        log.With().Str("component", "archiver-client").Logger(),
	}, nil
}

// Post uploads one blob under its versioned hash.
func (c *ArchiverClient) Post(ctx context.Context, versionedHash common.Hash, data []byte) error {
	endpoint := c.buildURL("blobs")

	body, err := json.Marshal(archiveRequest{
		VersionedHash: versionedHash.Hex(),
		Data:          hex.EncodeToString(data),
	})
	if err != nil {
		return fmt.Errorf("marshal archive request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("prepare archive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post blob to archiver: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("archiver returned %s: %s", res.Status, string(msg))
	}

	c.log.Debug().
		Str("versioned_hash", versionedHash.Hex()).
		Int("blob_len", len(data)).
		Msg("blob archived")
	return nil
}

func (c *ArchiverClient) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}

type archiveRequest struct {
	VersionedHash string `json:"versioned_hash"`
	Data          string `json:"data"`
}
