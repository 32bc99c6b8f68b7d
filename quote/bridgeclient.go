package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/flightpath-fi/consolidator-service/metrics"
	"github.com/flightpath-fi/consolidator-service/registry"
)

const bridgeProviderName = "bridge-relayer"

var bridgeABI = `[
	{
		"inputs": [
			{
				"name": "inputToken",
				"type": "address"
			},
			{
				"name": "amount",
				"type": "uint256"
			},
			{
				"name": "destinationChainId",
				"type": "uint256"
			},
			{
				"name": "recipient",
				"type": "address"
			},
			{
				"name": "message",
				"type": "bytes"
			}
		],
		"name": "deposit",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var parsedBridge abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(bridgeABI))
	if err != nil {
		panic(err)
	}
	parsedBridge = parsed
}

// BridgeClient is the production BridgeProvider: a JSON HTTP client against
// the bridge relayer quoting API, plus the deposit calldata encoder for the
// per-chain bridge endpoints.
type BridgeClient struct {
	cfg        Config
	httpClient *http.Client
	reg        *registry.Registry
}

// NewBridgeClient creates a BridgeClient.
func NewBridgeClient(cfg Config, reg *registry.Registry) *BridgeClient {
	return &BridgeClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.Duration},
		reg:        reg,
	}
}

type bridgeQuoteRequest struct {
	InputToken    string `json:"inputToken"`
	OutputToken   string `json:"outputToken"`
	InputAmount   string `json:"inputAmount"`
	SourceChainID uint64 `json:"sourceChainId"`
	DestChainID   uint64 `json:"destChainId"`
	Recipient     string `json:"recipient"`
	Message       string `json:"message,omitempty"`
}

type bridgeQuoteResponse struct {
	OutputAmount        string `json:"outputAmount"`
	FillDeadline        int64  `json:"fillDeadline"`
	ExclusivityDeadline int64  `json:"exclusivityDeadline"`
	QuoteTimestamp      int64  `json:"quoteTimestamp"`
	Message             string `json:"message,omitempty"`
}

// GetQuote asks the relayer for a cross-chain transfer price. The returned
// quote is validated against the configured fill-deadline window before it is
// handed to the caller: quotes outside the window must never reach signing.
func (c *BridgeClient) GetQuote(ctx context.Context, req BridgeRequest) (*BridgeQuote, error) {
	body, err := json.Marshal(bridgeQuoteRequest{
		InputToken:    req.InputToken.Hex(),
		OutputToken:   req.OutputToken.Hex(),
		InputAmount:   req.InputAmount.String(),
		SourceChainID: req.SourceChainID,
		DestChainID:   req.DestChainID,
		Recipient:     req.Recipient.Hex(),
		Message:       hexutil.Encode(req.Message),
	})
	if err != nil {
		return nil, gerror.NewQuoteError(bridgeProviderName, err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BridgeURL+"/quote", bytes.NewReader(body))
	if err != nil {
		return nil, gerror.NewQuoteError(bridgeProviderName, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.RecordQuoteLatency(bridgeProviderName, time.Since(start))
	if err != nil {
		metrics.RecordQuoteFailure(bridgeProviderName, "request failed")
		return nil, gerror.NewQuoteError(bridgeProviderName, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gerror.NewQuoteError(bridgeProviderName, err.Error())
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.RecordQuoteFailure(bridgeProviderName, fmt.Sprintf("status %d", resp.StatusCode))
		return nil, gerror.NewQuoteError(bridgeProviderName, fmt.Sprintf("status %d: %s", resp.StatusCode, respBody))
	}

	var parsed bridgeQuoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, gerror.NewQuoteError(bridgeProviderName, err.Error())
	}

	outputAmount, ok := new(big.Int).SetString(parsed.OutputAmount, 10) //nolint:gomnd
	if !ok {
		return nil, gerror.NewQuoteError(bridgeProviderName, fmt.Sprintf("invalid output amount %q", parsed.OutputAmount))
	}
	message := req.Message
	if parsed.Message != "" {
		message, err = hexutil.Decode(parsed.Message)
		if err != nil {
			return nil, gerror.NewQuoteError(bridgeProviderName, fmt.Sprintf("invalid message: %v", err))
		}
	}

	quote := &BridgeQuote{
		InputToken:          req.InputToken,
		InputAmount:         new(big.Int).Set(req.InputAmount),
		OutputAmount:        outputAmount,
		FillDeadline:        time.Unix(parsed.FillDeadline, 0),
		ExclusivityDeadline: time.Unix(parsed.ExclusivityDeadline, 0),
		QuoteTimestamp:      time.Unix(parsed.QuoteTimestamp, 0),
		Message:             message,
	}
	if err := ValidateWindow(quote, time.Now(), c.cfg.MinQuoteWindow.Duration, c.cfg.MaxQuoteWindow.Duration); err != nil {
		return nil, gerror.NewQuoteError(bridgeProviderName, err.Error())
	}
	return quote, nil
}

// EncodeDeposit builds the bridge deposit call for a quote on the source
// chain's bridge endpoint.
func (c *BridgeClient) EncodeDeposit(quote *BridgeQuote, depositor, recipient common.Address, sourceChainID, destChainID uint64) (etherman.Call, error) {
	endpoint, err := c.reg.BridgeEndpoint(sourceChainID)
	if err != nil {
		return etherman.Call{}, err
	}
	data, err := parsedBridge.Pack("deposit", quote.InputToken, quote.InputAmount, new(big.Int).SetUint64(destChainID), recipient, quote.Message)
	if err != nil {
		return etherman.Call{}, err
	}
	return etherman.Call{To: endpoint, Data: data, Value: big.NewInt(0)}, nil
}
