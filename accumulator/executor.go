package accumulator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/pkg/errors"
)

// RelayExecutor performs settlement effects through the gas relay. The relay
// runs a call bundle as one transaction, which is what makes RunSwap atomic.
type RelayExecutor struct {
	cfg        Config
	httpClient *http.Client
}

// NewRelayExecutor creates a RelayExecutor.
func NewRelayExecutor(cfg Config) *RelayExecutor {
	return &RelayExecutor{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.Duration},
	}
}

type executorCall struct {
	Target string `json:"target"`
	Value  string `json:"value"`
	Data   string `json:"data"`
}

type executeRequest struct {
	ChainID uint64         `json:"chainId"`
	Calls   []executorCall `json:"calls"`
	Input   string         `json:"input,omitempty"`
}

type executeResponse struct {
	Output string `json:"output"`
}

type feeResponse struct {
	FeeWei string `json:"feeWei"`
}

func executorCalls(calls []etherman.Call) []executorCall {
	out := make([]executorCall, 0, len(calls))
	for _, call := range calls {
		value := "0"
		if call.Value != nil {
			value = call.Value.String()
		}
		out = append(out, executorCall{
			Target: call.To.Hex(),
			Value:  value,
			Data:   hexutil.Encode(call.Data),
		})
	}
	return out
}

// QuoteFee asks the relay what executing the job's bundle will cost.
func (e *RelayExecutor) QuoteFee(ctx context.Context, job *Job) (*big.Int, error) {
	body, err := json.Marshal(executeRequest{ChainID: e.cfg.ChainID, Calls: executorCalls(job.SwapCalls)})
	if err != nil {
		return nil, err
	}
	respBody, err := e.post(ctx, "/fee", body)
	if err != nil {
		return nil, err
	}
	var parsed feeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.Wrap(err, "malformed relay fee response")
	}
	fee, ok := new(big.Int).SetString(parsed.FeeWei, 10) //nolint:gomnd
	if !ok {
		return nil, errors.Errorf("invalid fee %q", parsed.FeeWei)
	}
	return fee, nil
}

// RunSwap executes the conversion bundle as one relay transaction and
// returns the produced output amount.
func (e *RelayExecutor) RunSwap(ctx context.Context, calls []etherman.Call, input *big.Int) (*big.Int, error) {
	if len(calls) == 0 {
		return new(big.Int).Set(input), nil
	}
	body, err := json.Marshal(executeRequest{ChainID: e.cfg.ChainID, Calls: executorCalls(calls), Input: input.String()})
	if err != nil {
		return nil, err
	}
	respBody, err := e.post(ctx, "/execute", body)
	if err != nil {
		return nil, err
	}
	var parsed executeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.Wrap(err, "malformed relay execute response")
	}
	output, ok := new(big.Int).SetString(parsed.Output, 10) //nolint:gomnd
	if !ok {
		return nil, errors.Errorf("invalid output %q", parsed.Output)
	}
	return output, nil
}

// Transfer moves amount of token to the given address.
func (e *RelayExecutor) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error {
	var call etherman.Call
	if token == (common.Address{}) {
		call = etherman.NativeTransferCall(to, amount)
	} else {
		var err error
		call, err = etherman.TransferCall(token, to, amount)
		if err != nil {
			return err
		}
	}
	body, err := json.Marshal(executeRequest{ChainID: e.cfg.ChainID, Calls: executorCalls([]etherman.Call{call})})
	if err != nil {
		return err
	}
	_, err = e.post(ctx, "/execute", body)
	return err
}

func (e *RelayExecutor) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.RelayURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(httpReq)
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
