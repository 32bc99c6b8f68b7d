package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/metrics"
)

const swapProviderName = "swap-aggregator"

// SwapClient is the production SwapProvider: a JSON HTTP client against a
// single best-price aggregator.
type SwapClient struct {
	cfg        Config
	httpClient *http.Client
	cache      Cache
}

// NewSwapClient creates a SwapClient. cache may be nil.
func NewSwapClient(cfg Config, cache Cache) *SwapClient {
	return &SwapClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.Duration},
		cache:      cache,
	}
}

type swapQuoteRequest struct {
	InputToken  string `json:"inputToken"`
	OutputToken string `json:"outputToken"`
	InputAmount string `json:"inputAmount"`
	ChainID     uint64 `json:"chainId"`
	FromAddress string `json:"fromAddress"`
}

type swapQuoteResponse struct {
	OutputAmount   string `json:"outputAmount"`
	ApprovalTarget string `json:"approvalTarget"`
	SwapTarget     string `json:"swapTarget"`
	Calldata       string `json:"calldata"`
	NativeValue    string `json:"nativeValue"`
}

func swapCacheKey(req SwapRequest) string {
	return fmt.Sprintf("%d:%s:%s:%s", req.ChainID, req.InputToken.Hex(), req.OutputToken.Hex(), req.InputAmount.String())
}

// GetQuote asks the aggregator for a same-chain conversion. Any non-2xx
// response or parse failure surfaces as a typed QuoteError.
func (c *SwapClient) GetQuote(ctx context.Context, req SwapRequest) (*SwapQuote, error) {
	if c.cache != nil {
		if cached, err := c.cache.GetSwapQuote(ctx, swapCacheKey(req)); err == nil && cached != nil {
			log.Debugf("swap quote cache hit for chain %d %s->%s", req.ChainID, req.InputToken, req.OutputToken)
			return cached, nil
		}
	}

	body, err := json.Marshal(swapQuoteRequest{
		InputToken:  req.InputToken.Hex(),
		OutputToken: req.OutputToken.Hex(),
		InputAmount: req.InputAmount.String(),
		ChainID:     req.ChainID,
		FromAddress: req.FromAddress.Hex(),
	})
	if err != nil {
		return nil, gerror.NewQuoteError(swapProviderName, err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SwapURL+"/quote", bytes.NewReader(body))
	if err != nil {
		return nil, gerror.NewQuoteError(swapProviderName, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.RecordQuoteLatency(swapProviderName, time.Since(start))
	if err != nil {
		metrics.RecordQuoteFailure(swapProviderName, "request failed")
		return nil, gerror.NewQuoteError(swapProviderName, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gerror.NewQuoteError(swapProviderName, err.Error())
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.RecordQuoteFailure(swapProviderName, fmt.Sprintf("status %d", resp.StatusCode))
		return nil, gerror.NewQuoteError(swapProviderName, fmt.Sprintf("status %d: %s", resp.StatusCode, respBody))
	}

	var parsed swapQuoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, gerror.NewQuoteError(swapProviderName, err.Error())
	}

	quote, err := parsed.toQuote()
	if err != nil {
		return nil, gerror.NewQuoteError(swapProviderName, err.Error())
	}

	if c.cache != nil {
		if err := c.cache.SetSwapQuote(ctx, swapCacheKey(req), quote); err != nil {
			log.Warnf("failed to cache swap quote: %v", err)
		}
	}
	return quote, nil
}

func (r swapQuoteResponse) toQuote() (*SwapQuote, error) {
	outputAmount, ok := new(big.Int).SetString(r.OutputAmount, 10) //nolint:gomnd
	if !ok {
		return nil, fmt.Errorf("invalid output amount %q", r.OutputAmount)
	}
	calldata, err := hexutil.Decode(r.Calldata)
	if err != nil {
		return nil, fmt.Errorf("invalid calldata: %w", err)
	}
	nativeValue := big.NewInt(0)
	if r.NativeValue != "" {
		nativeValue, ok = new(big.Int).SetString(r.NativeValue, 10) //nolint:gomnd
		if !ok {
			return nil, fmt.Errorf("invalid native value %q", r.NativeValue)
		}
	}
	return &SwapQuote{
		OutputAmount:   outputAmount,
		ApprovalTarget: common.HexToAddress(r.ApprovalTarget),
		SwapTarget:     common.HexToAddress(r.SwapTarget),
		Calldata:       calldata,
		NativeValue:    nativeValue,
	}, nil
}
