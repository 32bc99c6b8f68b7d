package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/pkg/errors"
)

// RelayClient is the production relay: a JSON HTTP client against the gas
// relay that fronts every supported chain.
type RelayClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewRelayClient creates a RelayClient.
func NewRelayClient(cfg Config) *RelayClient {
	return &RelayClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.Duration},
	}
}

type relayCall struct {
	Target string `json:"target"`
	Value  string `json:"value"`
	Data   string `json:"data"`
}

type relaySubmitRequest struct {
	ChainID   uint64      `json:"chainId"`
	Calls     []relayCall `json:"calls"`
	Salt      string      `json:"salt"`
	Proof     []string    `json:"proof"`
	Index     int         `json:"index"`
	Root      string      `json:"root"`
	Signature string      `json:"signature"`
}

type relaySubmitResponse struct {
	TxHash string `json:"txHash"`
}

type relayStatusResponse struct {
	Status string `json:"status"`
}

func relayCalls(calls []etherman.Call) []relayCall {
	out := make([]relayCall, 0, len(calls))
	for _, call := range calls {
		value := "0"
		if call.Value != nil {
			value = call.Value.String()
		}
		out = append(out, relayCall{
			Target: call.To.Hex(),
			Value:  value,
			Data:   hexutil.Encode(call.Data),
		})
	}
	return out
}

// SubmitBatch sends one authorized leg to the relay and returns the tx hash
// the relay broadcast it under.
func (c *RelayClient) SubmitBatch(ctx context.Context, leg *MonitoredLeg) (common.Hash, error) {
	proof := make([]string, 0, len(leg.Proof))
	for _, sibling := range leg.Proof {
		proof = append(proof, sibling.Hex())
	}
	body, err := json.Marshal(relaySubmitRequest{
		ChainID:   leg.ChainID,
		Calls:     relayCalls(leg.Batch.Calls),
		Salt:      leg.Salt.Hex(),
		Proof:     proof,
		Index:     leg.Index,
		Root:      leg.Root.Hex(),
		Signature: hexutil.Encode(leg.Signature),
	})
	if err != nil {
		return common.Hash{}, err
	}

	respBody, err := c.post(ctx, "/submit", body)
	if err != nil {
		return common.Hash{}, err
	}
	var parsed relaySubmitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return common.Hash{}, errors.Wrap(err, "malformed relay submit response")
	}
	return common.HexToHash(parsed.TxHash), nil
}

// GetStatus polls the relay for a broadcast submission.
func (c *RelayClient) GetStatus(ctx context.Context, chainID uint64, txHash common.Hash) (RelayStatus, error) {
	url := fmt.Sprintf("%s/status?chainId=%d&txHash=%s", c.cfg.RelayURL, chainID, txHash.Hex())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "relay status request failed")
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("relay status %d: %s", resp.StatusCode, respBody)
	}
	var parsed relayStatusResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(err, "malformed relay status response")
	}
	switch status := RelayStatus(parsed.Status); status {
	case RelayStatusPending, RelayStatusConfirmed, RelayStatusFailed:
		return status, nil
	default:
		return "", errors.Errorf("unknown relay status %q", parsed.Status)
	}
}

func (c *RelayClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RelayURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "relay request failed")
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("relay status %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}
