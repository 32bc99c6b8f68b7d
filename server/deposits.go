package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/flightpath-fi/consolidator-service/jobcodec"
)

// depositRequest is one bridge fill notification: the delivered amount, the
// attached accumulator message, and optionally the execution authorization
// when the filler relays it along with the funds.
type depositRequest struct {
	Key           string       `json:"key"`
	Message       string       `json:"message"`
	Owner         string       `json:"owner"`
	Amount        string       `json:"amount"`
	SourceChainID uint64       `json:"sourceChainId"`
	Auth          *authPayload `json:"auth,omitempty"`
}

type authPayload struct {
	Salt      string   `json:"salt"`
	Proof     []string `json:"proof"`
	Index     int      `json:"index"`
	Root      string   `json:"root"`
	Signature string   `json:"signature"`
	Signer    string   `json:"signer"`
}

type executeRequest struct {
	Key  string      `json:"key"`
	Auth authPayload `json:"auth"`
}

func (p *authPayload) toAuth() (*accumulator.ExecutionAuth, error) {
	signature, err := hexutil.Decode(p.Signature)
	if err != nil {
		return nil, err
	}
	proof := make([]common.Hash, 0, len(p.Proof))
	for _, sibling := range p.Proof {
		proof = append(proof, common.HexToHash(sibling))
	}
	return &accumulator.ExecutionAuth{
		Salt:      common.HexToHash(p.Salt),
		Proof:     proof,
		Index:     p.Index,
		Root:      common.HexToHash(p.Root),
		Signature: signature,
		Signer:    common.HexToAddress(p.Signer),
	}, nil
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed deposit", http.StatusBadRequest)
		return
	}

	payload, err := hexutil.Decode(req.Message)
	if err != nil {
		http.Error(w, "malformed message", http.StatusBadRequest)
		return
	}
	msg, err := jobcodec.DecodeMessage(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10) //nolint:gomnd
	if !ok || amount.Sign() <= 0 {
		writeError(w, gerror.ErrInvalidAmount)
		return
	}
	var auth *accumulator.ExecutionAuth
	if req.Auth != nil {
		auth, err = req.Auth.toAuth()
		if err != nil {
			http.Error(w, "malformed authorization", http.StatusBadRequest)
			return
		}
	}

	dep := accumulator.Deposit{
		Key:           common.HexToHash(req.Key),
		Amount:        amount,
		SourceChainID: req.SourceChainID,
		ReceivedAt:    time.Now(),
	}
	err = s.settler.HandleDeposit(r.Context(), dep.Key, msg, common.HexToAddress(req.Owner), dep, auth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed execute request", http.StatusBadRequest)
		return
	}
	auth, err := req.Auth.toAuth()
	if err != nil {
		http.Error(w, "malformed authorization", http.StatusBadRequest)
		return
	}
	if err := s.settler.TryExecute(r.Context(), common.HexToHash(req.Key), auth); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "executed"})
}
