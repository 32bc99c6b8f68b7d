package server

import (
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/composer"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{gerror.ErrInvalidAmount, 400},
		{gerror.ErrInvalidRoute, 400},
		{gerror.ErrMalformedRequest, 400},
		{gerror.ErrJobKeyMismatch, 400},
		{gerror.ErrInsufficientBalance, 422},
		{gerror.NewNoRouteError("no flight asset"), 422},
		{gerror.ErrUnsupportedChain, 404},
		{gerror.ErrUnsupportedAsset, 404},
		{gerror.ErrStorageNotFound, 404},
		{gerror.NewQuoteError("swap", "down"), 502},
		{gerror.ErrJobAlreadyExecuted, 409},
		{gerror.ErrSaltAlreadyConsumed, 409},
		{gerror.ErrInvalidProof, 403},
		{gerror.ErrInvalidSignature, 403},
		{errors.New("boom"), 500},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}

	// wrapped errors still map through the sentinel
	rec := httptest.NewRecorder()
	writeError(rec, errors.Wrap(gerror.ErrInsufficientBalance, "resolving route"))
	assert.Equal(t, 422, rec.Code)
}

func TestToRouteResponse(t *testing.T) {
	jobID := common.HexToHash("0x42")
	route := &composer.TransferRoute{
		Steps: []composer.RouteStep{
			{ChainID: 10, ChainName: "optimism", Kind: composer.ActionBridge},
			{ChainID: 1, ChainName: "ethereum", Kind: composer.ActionAccumulate},
		},
		ChainActions: []etherman.ChainActionBatch{
			{ChainID: 10, Calls: []etherman.Call{{}}},
			{ChainID: 137, Calls: []etherman.Call{{}}},
			{ChainID: 1},
		},
		JobID:           &jobID,
		DestChainID:     1,
		EstimatedOutput: big.NewInt(12_000000),
		OutputSymbol:    "USDC",
	}

	resp := toRouteResponse(route)
	assert.Len(t, resp.Steps, 2)
	assert.Equal(t, jobID.Hex(), resp.JobID)
	assert.Equal(t, "12000000", resp.EstimatedOutput)
	// the empty destination slot is not a source leg
	assert.Equal(t, 2, resp.SourceLegs)
	assert.Equal(t, uint64(1), resp.DestChainID)
}
