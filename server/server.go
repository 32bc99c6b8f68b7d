// Package server exposes the consolidation API over plain JSON HTTP:
// resolve a route, or resolve + sign + dispatch it in one call.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/authcodec"
	"github.com/flightpath-fi/consolidator-service/composer"
	"github.com/flightpath-fi/consolidator-service/dispatcher"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/redisstorage"
)

// Server handles the consolidation API.
type Server struct {
	cfg        Config
	composer   *composer.Composer
	dispatcher *dispatcher.Dispatcher
	settler    *accumulator.Accumulator
	signer     authcodec.Signer
	// prices is the optional USD price cache used for route estimates
	prices redisstorage.RedisStorage
	// nonce advances per signed route so identical requests never collide
	// on the salted job key
	nonce uint64
}

// NewServer creates a Server. prices may be nil.
func NewServer(cfg Config, comp *composer.Composer, disp *dispatcher.Dispatcher, settler *accumulator.Accumulator, signer authcodec.Signer, prices redisstorage.RedisStorage) *Server {
	return &Server{cfg: cfg, composer: comp, dispatcher: disp, settler: settler, signer: signer, prices: prices}
}

// Run serves the API. It blocks until the listener fails.
func (s *Server) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/routes", s.handleResolve)
	mux.HandleFunc("/api/v1/consolidate", s.handleConsolidate)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/deposits", s.handleDeposit)
	mux.HandleFunc("/api/v1/execute", s.handleExecute)

	srv := &http.Server{
		Addr:        ":" + s.cfg.HTTPPort,
		Handler:     mux,
		ReadTimeout: 30 * time.Second, //nolint:gomnd
	}
	log.Infof("consolidation API listening on %s", srv.Addr)
	return srv.ListenAndServe()
}

type routeRequest struct {
	FromAddress       string  `json:"fromAddress"`
	ToAddress         string  `json:"toAddress"`
	AssetSymbol       string  `json:"assetSymbol"`
	AssetDecimals     uint8   `json:"assetDecimals"`
	DestChainID       uint64  `json:"destChainId"`
	DestToken         string  `json:"destToken"`
	DestTokenSymbol   string  `json:"destTokenSymbol"`
	DestTokenDecimals uint8   `json:"destTokenDecimals"`
	Amount            float64 `json:"amount"`
	AccumulatorAddr   string  `json:"accumulatorAddr,omitempty"`
}

type stepResponse struct {
	ChainID      uint64  `json:"chainId"`
	ChainName    string  `json:"chainName"`
	Kind         string  `json:"kind"`
	InputAmount  float64 `json:"inputAmount"`
	InputSymbol  string  `json:"inputSymbol"`
	OutputAmount float64 `json:"outputAmount"`
	OutputSymbol string  `json:"outputSymbol"`
}

type routeResponse struct {
	Steps           []stepResponse `json:"steps"`
	JobID           string         `json:"jobId,omitempty"`
	DestChainID     uint64         `json:"destChainId"`
	EstimatedOutput string         `json:"estimatedOutput"`
	EstimatedUsd    float64        `json:"estimatedUsd,omitempty"`
	OutputSymbol    string         `json:"outputSymbol"`
	SourceLegs      int            `json:"sourceLegs"`
}

type consolidateResponse struct {
	Route     routeResponse `json:"route"`
	Root      string        `json:"root"`
	Signature string        `json:"signature"`
}

type statusResponse struct {
	Broadcast   int `json:"broadcast"`
	Unbroadcast int `json:"unbroadcast"`
	Confirmed   int `json:"confirmed"`
	Failed      int `json:"failed"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	route, req, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := toRouteResponse(route)
	s.addUsdEstimate(r.Context(), &resp, route, common.HexToAddress(req.DestToken))
	writeJSON(w, resp)
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	route, req, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	commitment, err := s.dispatcher.SignAndDispatch(r.Context(), route, s.signer)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := toRouteResponse(route)
	s.addUsdEstimate(r.Context(), &resp, route, common.HexToAddress(req.DestToken))
	writeJSON(w, consolidateResponse{
		Route:     resp,
		Root:      commitment.Root.Hex(),
		Signature: common.Bytes2Hex(commitment.Signature),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	root := common.HexToHash(r.URL.Query().Get("root"))
	broadcast, unbroadcast, confirmed, failed, err := s.dispatcher.RouteStatus(r.Context(), root)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, statusResponse{Broadcast: broadcast, Unbroadcast: unbroadcast, Confirmed: confirmed, Failed: failed})
}

func (s *Server) resolve(r *http.Request) (*composer.TransferRoute, *routeRequest, error) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, gerror.ErrMalformedRequest
	}
	route, err := s.composer.ResolveRoute(r.Context(), composer.RouteRequest{
		FromAddress:       common.HexToAddress(req.FromAddress),
		ToAddress:         common.HexToAddress(req.ToAddress),
		SourceAsset:       composer.SourceAsset{Symbol: req.AssetSymbol, Decimals: req.AssetDecimals},
		DestChainID:       req.DestChainID,
		DestToken:         common.HexToAddress(req.DestToken),
		DestTokenSymbol:   req.DestTokenSymbol,
		DestTokenDecimals: req.DestTokenDecimals,
		Amount:            req.Amount,
		AccumulatorAddr:   common.HexToAddress(req.AccumulatorAddr),
		AccountNonce:      atomic.AddUint64(&s.nonce, 1),
	})
	if err != nil {
		return nil, nil, err
	}
	return route, &req, nil
}

// addUsdEstimate fills in the USD value of the estimated output when a
// cached price is available. Best effort: a miss leaves the field empty.
func (s *Server) addUsdEstimate(ctx context.Context, resp *routeResponse, route *composer.TransferRoute, destToken common.Address) {
	if s.prices == nil {
		return
	}
	price, err := s.prices.GetCoinPrice(ctx, route.DestChainID, destToken)
	if err != nil || price <= 0 {
		return
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(route.OutputDecimals)), nil)) //nolint:gomnd
	amount, _ := new(big.Float).Quo(new(big.Float).SetInt(route.EstimatedOutput), scale).Float64()
	resp.EstimatedUsd = amount * price
}

func toRouteResponse(route *composer.TransferRoute) routeResponse {
	steps := make([]stepResponse, 0, len(route.Steps))
	for _, step := range route.Steps {
		steps = append(steps, stepResponse{
			ChainID:      step.ChainID,
			ChainName:    step.ChainName,
			Kind:         string(step.Kind),
			InputAmount:  step.InputAmount,
			InputSymbol:  step.InputSymbol,
			OutputAmount: step.OutputAmount,
			OutputSymbol: step.OutputSymbol,
		})
	}
	sourceLegs := 0
	for _, batch := range route.ChainActions {
		if batch.ChainID != route.DestChainID {
			sourceLegs++
		}
	}
	resp := routeResponse{
		Steps:           steps,
		DestChainID:     route.DestChainID,
		EstimatedOutput: route.EstimatedOutput.String(),
		OutputSymbol:    route.OutputSymbol,
		SourceLegs:      sourceLegs,
	}
	if route.JobID != nil {
		resp.JobID = route.JobID.Hex()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, gerror.ErrInvalidAmount), errors.Is(err, gerror.ErrInvalidRoute),
		errors.Is(err, gerror.ErrMalformedRequest), errors.Is(err, gerror.ErrJobKeyMismatch):
		code = http.StatusBadRequest
	case errors.Is(err, gerror.ErrInsufficientBalance), errors.Is(err, gerror.ErrNoRouteFound):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, gerror.ErrUnsupportedChain), errors.Is(err, gerror.ErrUnsupportedAsset):
		code = http.StatusNotFound
	case errors.Is(err, gerror.ErrQuoteUnavailable):
		code = http.StatusBadGateway
	case errors.Is(err, gerror.ErrJobAlreadyExecuted), errors.Is(err, gerror.ErrSaltAlreadyConsumed):
		code = http.StatusConflict
	case errors.Is(err, gerror.ErrInvalidProof), errors.Is(err, gerror.ErrInvalidSignature):
		code = http.StatusForbidden
	case errors.Is(err, gerror.ErrStorageNotFound):
		code = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
