package composer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/gerror"
)

// SourceAsset identifies the asset being consolidated. Its per-chain contract
// addresses come from the balance snapshot, not from here.
type SourceAsset struct {
	Symbol   string
	Decimals uint8
}

// ChainBalance is a read-only snapshot of one asset balance on one chain,
// provided by the external balance collaborator. The composer only consumes
// it; staleness is the caller's problem.
type ChainBalance struct {
	ChainID         uint64
	ContractAddress common.Address
	Balance         float64
	ChainName       string
}

// ActionKind is the kind of a human-readable route step.
type ActionKind string

const (
	// ActionTransfer is a plain same-chain transfer
	ActionTransfer = ActionKind("transfer")
	// ActionSwap is a same-chain token conversion
	ActionSwap = ActionKind("swap")
	// ActionBridge is a cross-chain transfer
	ActionBridge = ActionKind("bridge")
	// ActionAccumulate is the destination-side threshold accumulation
	ActionAccumulate = ActionKind("accumulate")
)

// RouteStep is one visualization unit of a route. Derived from the executable
// batches, never executed directly.
type RouteStep struct {
	ChainID      uint64
	ChainName    string
	Kind         ActionKind
	InputAmount  float64
	InputSymbol  string
	OutputAmount float64
	OutputSymbol string
}

// TransferRoute is the composer output: ordered display steps, ordered
// executable per-chain batches, and the shared job identifier when the route
// settles through the accumulator. Constructed once per user request and
// immutable afterwards.
type TransferRoute struct {
	Steps        []RouteStep
	ChainActions []etherman.ChainActionBatch
	JobID        *common.Hash
	DestChainID  uint64
	// DestCalls is the conversion bundle the accumulator runs at execute
	// time. It replaces the empty destination slot when the commitment tree
	// is built, so the signature covers what will actually run there.
	DestCalls []etherman.Call
	// EstimatedOutput is in smallest units of the destination token.
	EstimatedOutput *big.Int
	OutputSymbol    string
	OutputDecimals  uint8
}

// Validate checks the route is structurally sound before it reaches the
// signer. A failure here from valid inputs is a composer bug.
func (r *TransferRoute) Validate() error {
	if len(r.ChainActions) == 0 {
		return &gerror.InvalidRouteError{Reason: "route has no chain action batches"}
	}
	nonEmpty := 0
	for _, batch := range r.ChainActions {
		if !batch.IsEmpty() {
			nonEmpty++
		}
		// an empty batch is only legal on the destination chain of an
		// accumulator route, where the registration call is injected later
		if batch.IsEmpty() && (batch.ChainID != r.DestChainID || r.JobID == nil) {
			return &gerror.InvalidRouteError{Reason: "empty call batch outside accumulator destination"}
		}
	}
	if nonEmpty == 0 {
		return &gerror.InvalidRouteError{Reason: "route has no executable calls"}
	}
	if r.EstimatedOutput == nil || r.EstimatedOutput.Sign() <= 0 {
		return &gerror.InvalidRouteError{Reason: "route has no positive estimated output"}
	}
	return nil
}
