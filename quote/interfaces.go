// Package quote defines the pluggable swap and bridge price providers the
// route composer depends on, together with their production HTTP clients.
// Production and test implementations are swapped at composer construction.
package quote

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/etherman"
)

// SwapRequest asks for a same-chain conversion price and calldata.
type SwapRequest struct {
	InputToken  common.Address
	OutputToken common.Address
	InputAmount *big.Int
	ChainID     uint64
	FromAddress common.Address
}

// SwapQuote is a priced, executable same-chain swap.
type SwapQuote struct {
	OutputAmount   *big.Int
	ApprovalTarget common.Address
	SwapTarget     common.Address
	Calldata       []byte
	NativeValue    *big.Int
}

// SwapProvider returns same-chain swap quotes.
type SwapProvider interface {
	GetQuote(ctx context.Context, req SwapRequest) (*SwapQuote, error)
}

// BridgeRequest asks for a cross-chain transfer price. Message, when set, is
// the accumulator payload delivered with the funds on the destination chain.
type BridgeRequest struct {
	InputToken    common.Address
	OutputToken   common.Address
	InputAmount   *big.Int
	SourceChainID uint64
	DestChainID   uint64
	Recipient     common.Address
	Message       []byte
}

// BridgeQuote is a priced cross-chain transfer, including the relayer
// deadlines the fill is valid within. InputToken and InputAmount echo the
// request so the quote alone is enough to encode the deposit call.
type BridgeQuote struct {
	InputToken          common.Address
	InputAmount         *big.Int
	OutputAmount        *big.Int
	FillDeadline        time.Time
	ExclusivityDeadline time.Time
	QuoteTimestamp      time.Time
	Message             []byte
}

// BridgeProvider returns cross-chain quotes and encodes the matching bridge
// deposit call.
type BridgeProvider interface {
	GetQuote(ctx context.Context, req BridgeRequest) (*BridgeQuote, error)
	EncodeDeposit(quote *BridgeQuote, depositor, recipient common.Address, sourceChainID, destChainID uint64) (etherman.Call, error)
}

// Cache is the optional short-lived quote cache the HTTP providers write
// through. A nil Cache disables caching.
type Cache interface {
	GetSwapQuote(ctx context.Context, key string) (*SwapQuote, error)
	SetSwapQuote(ctx context.Context, key string, q *SwapQuote) error
}

// ValidateWindow rejects a bridge quote whose fill deadline falls outside the
// configured acceptable window relative to submission time. Quotes are
// rejected before signing, not after.
func ValidateWindow(q *BridgeQuote, now time.Time, min, max time.Duration) error {
	window := q.FillDeadline.Sub(now)
	if window < min {
		return fmt.Errorf("bridge quote fill deadline %s is closer than the minimum window %s", q.FillDeadline, min)
	}
	if window > max {
		return fmt.Errorf("bridge quote fill deadline %s exceeds the maximum window %s", q.FillDeadline, max)
	}
	return nil
}
