// Package composer turns (source balances, destination request) into an
// ordered set of per-chain call batches. Resolution is a pure function of its
// inputs and the quote responses: no mutable state is kept between calls, and
// a route is published all-or-nothing.
package composer

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/flightpath-fi/consolidator-service/jobcodec"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/metrics"
	"github.com/flightpath-fi/consolidator-service/quote"
	"github.com/flightpath-fi/consolidator-service/registry"
)

// RouteRequest is one user consolidation request: send Amount of SourceAsset
// to DestChainID as DestToken, paying out to ToAddress.
type RouteRequest struct {
	FromAddress       common.Address
	ToAddress         common.Address
	SourceAsset       SourceAsset
	DestChainID       uint64
	DestToken         common.Address
	DestTokenSymbol   string
	DestTokenDecimals uint8
	Amount            float64
	// AccumulatorAddr overrides the registry accumulator for the destination
	// chain. Zero means use the registry one.
	AccumulatorAddr common.Address
	// AccountNonce salts the accumulator message. The caller must advance it
	// per signed route.
	AccountNonce uint64
}

// Composer resolves consolidation routes. Collaborators are injected at
// construction so tests can swap providers and balance sources.
type Composer struct {
	reg      *registry.Registry
	swaps    quote.SwapProvider
	bridges  quote.BridgeProvider
	balances balanceSourceInterface
}

// NewComposer creates a route composer.
func NewComposer(reg *registry.Registry, swaps quote.SwapProvider, bridges quote.BridgeProvider, balances balanceSourceInterface) *Composer {
	return &Composer{
		reg:      reg,
		swaps:    swaps,
		bridges:  bridges,
		balances: balances,
	}
}

// chainFunds is one chain's balance scaled to smallest units.
type chainFunds struct {
	balance ChainBalance
	su      *big.Int
}

// ResolveRoute resolves the route for one request. Case selection is ordered
// and first match wins: direct transfer, same-chain swap, simple bridge,
// bridge+swap, multi-source scatter-gather.
func (c *Composer) ResolveRoute(ctx context.Context, req RouteRequest) (*TransferRoute, error) {
	route, err := c.resolveRoute(ctx, req)
	if err != nil {
		if errors.Is(err, gerror.ErrNoRouteFound) {
			metrics.RecordRouteNotFound(req.DestChainID)
		}
		return nil, err
	}
	sourceLegs := 0
	for _, batch := range route.ChainActions {
		if batch.ChainID != route.DestChainID {
			sourceLegs++
		}
	}
	metrics.RecordRoute(routeShape(route), req.DestChainID, sourceLegs)
	return route, nil
}

// routeShape names the resolved case for the operational counters.
func routeShape(route *TransferRoute) string {
	var hasSwap, hasBridge, hasAccumulate bool
	for _, step := range route.Steps {
		switch step.Kind {
		case ActionSwap:
			hasSwap = true
		case ActionBridge:
			hasBridge = true
		case ActionAccumulate:
			hasAccumulate = true
		}
	}
	switch {
	case hasAccumulate && len(route.ChainActions) > 2: //nolint:gomnd
		return "scatter_gather"
	case hasAccumulate:
		return "bridge_swap"
	case hasBridge:
		return "bridge"
	case hasSwap:
		return "swap"
	}
	return "transfer"
}

func (c *Composer) resolveRoute(ctx context.Context, req RouteRequest) (*TransferRoute, error) {
	if req.Amount <= 0 {
		return nil, gerror.ErrInvalidAmount
	}
	if _, err := c.reg.Chain(req.DestChainID); err != nil {
		return nil, err
	}

	balances, err := c.balances.GetChainBalances(ctx, req.SourceAsset)
	if err != nil {
		return nil, err
	}

	amountSU := toSmallestUnit(req.Amount, req.SourceAsset.Decimals)
	if amountSU.Sign() <= 0 {
		return nil, gerror.ErrInvalidAmount
	}

	var destFunds *chainFunds
	var others []chainFunds
	total := big.NewInt(0)
	for _, bal := range balances {
		funds := chainFunds{balance: bal, su: toSmallestUnit(bal.Balance, req.SourceAsset.Decimals)}
		if funds.su.Sign() <= 0 {
			continue
		}
		total.Add(total, funds.su)
		if bal.ChainID == req.DestChainID {
			f := funds
			destFunds = &f
		} else {
			others = append(others, funds)
		}
	}
	if total.Cmp(amountSU) < 0 {
		return nil, gerror.ErrInsufficientBalance
	}

	// the destination chain is always preferred when it can satisfy the
	// amount on its own
	if destFunds != nil && destFunds.su.Cmp(amountSU) >= 0 {
		if destFunds.balance.ContractAddress == req.DestToken {
			return c.directTransfer(req, amountSU, destFunds.balance)
		}
		return c.sameChainSwap(ctx, req, amountSU, destFunds.balance)
	}

	// largest-first keeps the number of source legs minimal
	sort.Slice(others, func(i, j int) bool {
		return others[i].su.Cmp(others[j].su) > 0
	})

	if len(others) > 0 && others[0].su.Cmp(amountSU) >= 0 {
		src := others[0]
		if dstPair, ok := c.simpleBridgePair(src.balance, req); ok {
			return c.simpleBridge(ctx, req, amountSU, src.balance, dstPair)
		}
		return c.accumulatorRoute(ctx, req, []allocation{{balance: src.balance, amount: amountSU}})
	}

	allocations, err := allocateGreedy(others, amountSU)
	if err != nil {
		return nil, err
	}
	return c.accumulatorRoute(ctx, req, allocations)
}

// allocation is one source chain's contribution to a scatter-gather route.
type allocation struct {
	balance ChainBalance
	amount  *big.Int
}

// allocateGreedy consumes each chain's full eligible balance, largest first,
// until the remainder is met. Chains beyond the satisfying prefix are never
// touched. Funds sitting on the destination chain itself cannot be bridged to
// it, so a total that only covers the amount with destination funds cannot be
// gathered.
func allocateGreedy(sorted []chainFunds, amountSU *big.Int) ([]allocation, error) {
	remainder := new(big.Int).Set(amountSU)
	var allocations []allocation
	for _, funds := range sorted {
		if remainder.Sign() == 0 {
			break
		}
		take := new(big.Int).Set(funds.su)
		if take.Cmp(remainder) > 0 {
			take.Set(remainder)
		}
		allocations = append(allocations, allocation{balance: funds.balance, amount: take})
		remainder.Sub(remainder, take)
	}
	if remainder.Sign() > 0 {
		return nil, gerror.NewNoRouteError("insufficient bridgeable balance outside the destination chain")
	}
	return allocations, nil
}

// directTransfer handles case 1: the destination chain already holds enough
// of the destination token. One transfer call, no provider involved.
func (c *Composer) directTransfer(req RouteRequest, amountSU *big.Int, bal ChainBalance) (*TransferRoute, error) {
	var call etherman.Call
	if req.DestToken == (common.Address{}) {
		call = etherman.NativeTransferCall(req.ToAddress, amountSU)
	} else {
		var err error
		call, err = etherman.TransferCall(req.DestToken, req.ToAddress, amountSU)
		if err != nil {
			return nil, err
		}
	}

	route := &TransferRoute{
		Steps: []RouteStep{{
			ChainID:      req.DestChainID,
			ChainName:    bal.ChainName,
			Kind:         ActionTransfer,
			InputAmount:  req.Amount,
			InputSymbol:  req.SourceAsset.Symbol,
			OutputAmount: req.Amount,
			OutputSymbol: req.DestTokenSymbol,
		}},
		ChainActions: []etherman.ChainActionBatch{{
			ChainID: req.DestChainID,
			Calls:   []etherman.Call{call},
		}},
		DestChainID:     req.DestChainID,
		EstimatedOutput: amountSU,
		OutputSymbol:    req.DestTokenSymbol,
		OutputDecimals:  req.DestTokenDecimals,
	}
	return route, route.Validate()
}

// sameChainSwap handles case 2: enough balance on the destination chain, but
// a token conversion is needed.
func (c *Composer) sameChainSwap(ctx context.Context, req RouteRequest, amountSU *big.Int, bal ChainBalance) (*TransferRoute, error) {
	swapQuote, err := c.swaps.GetQuote(ctx, quote.SwapRequest{
		InputToken:  bal.ContractAddress,
		OutputToken: req.DestToken,
		InputAmount: amountSU,
		ChainID:     req.DestChainID,
		FromAddress: req.FromAddress,
	})
	if err != nil {
		return nil, err
	}

	calls, err := swapCalls(bal.ContractAddress, amountSU, swapQuote)
	if err != nil {
		return nil, err
	}

	route := &TransferRoute{
		Steps: []RouteStep{{
			ChainID:      req.DestChainID,
			ChainName:    bal.ChainName,
			Kind:         ActionSwap,
			InputAmount:  req.Amount,
			InputSymbol:  req.SourceAsset.Symbol,
			OutputAmount: fromSmallestUnit(swapQuote.OutputAmount, req.DestTokenDecimals),
			OutputSymbol: req.DestTokenSymbol,
		}},
		ChainActions: []etherman.ChainActionBatch{{
			ChainID: req.DestChainID,
			Calls:   calls,
		}},
		DestChainID:     req.DestChainID,
		EstimatedOutput: swapQuote.OutputAmount,
		OutputSymbol:    req.DestTokenSymbol,
		OutputDecimals:  req.DestTokenDecimals,
	}
	return route, route.Validate()
}

// simpleBridgePair reports whether the source balance can fly directly: its
// token is a registered flight asset whose destination counterpart is the
// requested destination token.
func (c *Composer) simpleBridgePair(bal ChainBalance, req RouteRequest) (registry.Asset, bool) {
	if !c.reg.IsFlightAsset(bal.ChainID, bal.ContractAddress) {
		return registry.Asset{}, false
	}
	srcAsset, dstAsset, err := c.reg.SelectFlightAsset(bal.ChainID, req.DestChainID)
	if err != nil {
		return registry.Asset{}, false
	}
	if srcAsset.Address != bal.ContractAddress || dstAsset.Address != req.DestToken {
		return registry.Asset{}, false
	}
	return dstAsset, true
}

// simpleBridge handles case 3: one source chain covers the amount and its
// asset flies directly to the destination token. The recipient is the user,
// no accumulator and no message payload involved.
func (c *Composer) simpleBridge(ctx context.Context, req RouteRequest, amountSU *big.Int, bal ChainBalance, dstAsset registry.Asset) (*TransferRoute, error) {
	bridgeQuote, err := c.bridges.GetQuote(ctx, quote.BridgeRequest{
		InputToken:    bal.ContractAddress,
		OutputToken:   dstAsset.Address,
		InputAmount:   amountSU,
		SourceChainID: bal.ChainID,
		DestChainID:   req.DestChainID,
		Recipient:     req.ToAddress,
	})
	if err != nil {
		return nil, err
	}

	endpoint, err := c.reg.BridgeEndpoint(bal.ChainID)
	if err != nil {
		return nil, err
	}
	approve, err := etherman.ApproveCall(bal.ContractAddress, endpoint, amountSU)
	if err != nil {
		return nil, err
	}
	deposit, err := c.bridges.EncodeDeposit(bridgeQuote, req.FromAddress, req.ToAddress, bal.ChainID, req.DestChainID)
	if err != nil {
		return nil, err
	}

	route := &TransferRoute{
		Steps: []RouteStep{{
			ChainID:      bal.ChainID,
			ChainName:    bal.ChainName,
			Kind:         ActionBridge,
			InputAmount:  req.Amount,
			InputSymbol:  req.SourceAsset.Symbol,
			OutputAmount: fromSmallestUnit(bridgeQuote.OutputAmount, req.DestTokenDecimals),
			OutputSymbol: req.DestTokenSymbol,
		}},
		ChainActions: []etherman.ChainActionBatch{{
			ChainID: bal.ChainID,
			Calls:   []etherman.Call{approve, deposit},
		}},
		DestChainID:     req.DestChainID,
		EstimatedOutput: bridgeQuote.OutputAmount,
		OutputSymbol:    req.DestTokenSymbol,
		OutputDecimals:  req.DestTokenDecimals,
	}
	return route, route.Validate()
}

// sourceLeg is one quoted source chain leg of an accumulator route.
type sourceLeg struct {
	alloc       allocation
	flightSrc   registry.Asset
	flightDst   registry.Asset
	swapQuote   *quote.SwapQuote
	bridgeQuote *quote.BridgeQuote
}

// accumulatorRoute handles cases 4 and 5: funds fly from one or more source
// chains into the destination accumulator under one shared job. Per-leg
// quotes are fetched concurrently and joined before anything is assembled:
// if any leg fails, the whole resolution fails.
func (c *Composer) accumulatorRoute(ctx context.Context, req RouteRequest, allocations []allocation) (*TransferRoute, error) {
	accumulatorAddr := req.AccumulatorAddr
	if accumulatorAddr == (common.Address{}) {
		addr, err := c.reg.Accumulator(req.DestChainID)
		if err != nil {
			return nil, err
		}
		accumulatorAddr = addr
	}
	if accumulatorAddr == (common.Address{}) {
		return nil, gerror.NewNoRouteError("accumulator address required for multi-leg or converting routes")
	}

	legs := make([]*sourceLeg, len(allocations))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for i := range allocations {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			leg, err := c.quoteSourceLeg(ctx, req, allocations[i], accumulatorAddr)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			legs[i] = leg
		}(i)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	flightDst := legs[0].flightDst
	totalBridged := big.NewInt(0)
	for _, leg := range legs {
		if leg.flightDst.Address != flightDst.Address {
			return nil, gerror.NewNoRouteError("source legs resolved to different destination flight assets")
		}
		totalBridged.Add(totalBridged, leg.bridgeQuote.OutputAmount)
	}

	// destination conversion bundle, run by the accumulator at execute time
	var swapCallList []etherman.Call
	minOutput := new(big.Int).Set(totalBridged)
	if flightDst.Address != req.DestToken {
		destSwap, err := c.swaps.GetQuote(ctx, quote.SwapRequest{
			InputToken:  flightDst.Address,
			OutputToken: req.DestToken,
			InputAmount: totalBridged,
			ChainID:     req.DestChainID,
			FromAddress: accumulatorAddr,
		})
		if err != nil {
			return nil, err
		}
		swapCallList, err = swapCalls(flightDst.Address, totalBridged, destSwap)
		if err != nil {
			return nil, err
		}
		minOutput = destSwap.OutputAmount
	}

	// one shared message and job for every leg, computed once from the
	// already-known total bridged amount
	message := jobcodec.EncodeMessage(flightDst.Address, req.DestToken, req.ToAddress, totalBridged, minOutput, swapCallList, new(big.Int).SetUint64(req.AccountNonce))
	jobID := jobcodec.ComputeJobID(req.FromAddress, flightDst.Address, req.DestToken, req.ToAddress, totalBridged, minOutput, swapCallList)
	log.Debugf("accumulator route: %d legs, job %s, total bridged %s", len(legs), jobID, totalBridged)

	var steps []RouteStep
	var batches []etherman.ChainActionBatch
	for _, leg := range legs {
		batch, legSteps, err := c.buildSourceLegBatch(req, leg, accumulatorAddr, message)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
		steps = append(steps, legSteps...)
	}

	destName, err := c.reg.ChainName(req.DestChainID)
	if err != nil {
		return nil, err
	}
	steps = append(steps, RouteStep{
		ChainID:      req.DestChainID,
		ChainName:    destName,
		Kind:         ActionAccumulate,
		InputAmount:  fromSmallestUnit(totalBridged, flightDst.Decimals),
		InputSymbol:  flightDst.Symbol,
		OutputAmount: fromSmallestUnit(minOutput, req.DestTokenDecimals),
		OutputSymbol: req.DestTokenSymbol,
	})
	// the destination entry stays empty: the job registration call is
	// injected later, once the job identifier is known to the registrar
	batches = append(batches, etherman.ChainActionBatch{ChainID: req.DestChainID})

	route := &TransferRoute{
		Steps:           steps,
		ChainActions:    batches,
		JobID:           &jobID,
		DestChainID:     req.DestChainID,
		DestCalls:       swapCallList,
		EstimatedOutput: minOutput,
		OutputSymbol:    req.DestTokenSymbol,
		OutputDecimals:  req.DestTokenDecimals,
	}
	return route, route.Validate()
}

// quoteSourceLeg resolves the flight pair for one leg and fetches its swap
// (when the held token is not the flight asset) and bridge quotes.
func (c *Composer) quoteSourceLeg(ctx context.Context, req RouteRequest, alloc allocation, accumulatorAddr common.Address) (*sourceLeg, error) {
	flightSrc, flightDst, err := c.reg.SelectFlightAsset(alloc.balance.ChainID, req.DestChainID)
	if err != nil {
		return nil, err
	}

	leg := &sourceLeg{alloc: alloc, flightSrc: flightSrc, flightDst: flightDst}
	bridgeIn := alloc.amount
	if alloc.balance.ContractAddress != flightSrc.Address {
		swapQuote, err := c.swaps.GetQuote(ctx, quote.SwapRequest{
			InputToken:  alloc.balance.ContractAddress,
			OutputToken: flightSrc.Address,
			InputAmount: alloc.amount,
			ChainID:     alloc.balance.ChainID,
			FromAddress: req.FromAddress,
		})
		if err != nil {
			return nil, err
		}
		leg.swapQuote = swapQuote
		bridgeIn = swapQuote.OutputAmount
	}

	bridgeQuote, err := c.bridges.GetQuote(ctx, quote.BridgeRequest{
		InputToken:    flightSrc.Address,
		OutputToken:   flightDst.Address,
		InputAmount:   bridgeIn,
		SourceChainID: alloc.balance.ChainID,
		DestChainID:   req.DestChainID,
		Recipient:     accumulatorAddr,
	})
	if err != nil {
		return nil, err
	}
	leg.bridgeQuote = bridgeQuote
	return leg, nil
}

// buildSourceLegBatch assembles the executable batch for one source leg:
// optional approve+swap into the flight asset, then approve+deposit into the
// bridge with the shared accumulator message attached.
func (c *Composer) buildSourceLegBatch(req RouteRequest, leg *sourceLeg, accumulatorAddr common.Address, message []byte) (etherman.ChainActionBatch, []RouteStep, error) {
	var calls []etherman.Call
	var steps []RouteStep

	bridgeIn := leg.alloc.amount
	if leg.swapQuote != nil {
		legSwapCalls, err := swapCalls(leg.alloc.balance.ContractAddress, leg.alloc.amount, leg.swapQuote)
		if err != nil {
			return etherman.ChainActionBatch{}, nil, err
		}
		calls = append(calls, legSwapCalls...)
		bridgeIn = leg.swapQuote.OutputAmount
		steps = append(steps, RouteStep{
			ChainID:      leg.alloc.balance.ChainID,
			ChainName:    leg.alloc.balance.ChainName,
			Kind:         ActionSwap,
			InputAmount:  fromSmallestUnit(leg.alloc.amount, req.SourceAsset.Decimals),
			InputSymbol:  req.SourceAsset.Symbol,
			OutputAmount: fromSmallestUnit(leg.swapQuote.OutputAmount, leg.flightSrc.Decimals),
			OutputSymbol: leg.flightSrc.Symbol,
		})
	}

	endpoint, err := c.reg.BridgeEndpoint(leg.alloc.balance.ChainID)
	if err != nil {
		return etherman.ChainActionBatch{}, nil, err
	}
	approve, err := etherman.ApproveCall(leg.flightSrc.Address, endpoint, bridgeIn)
	if err != nil {
		return etherman.ChainActionBatch{}, nil, err
	}
	calls = append(calls, approve)

	leg.bridgeQuote.Message = message
	deposit, err := c.bridges.EncodeDeposit(leg.bridgeQuote, req.FromAddress, accumulatorAddr, leg.alloc.balance.ChainID, req.DestChainID)
	if err != nil {
		return etherman.ChainActionBatch{}, nil, err
	}
	calls = append(calls, deposit)

	steps = append(steps, RouteStep{
		ChainID:      leg.alloc.balance.ChainID,
		ChainName:    leg.alloc.balance.ChainName,
		Kind:         ActionBridge,
		InputAmount:  fromSmallestUnit(bridgeIn, leg.flightSrc.Decimals),
		InputSymbol:  leg.flightSrc.Symbol,
		OutputAmount: fromSmallestUnit(leg.bridgeQuote.OutputAmount, leg.flightDst.Decimals),
		OutputSymbol: leg.flightDst.Symbol,
	})

	return etherman.ChainActionBatch{ChainID: leg.alloc.balance.ChainID, Calls: calls}, steps, nil
}

// swapCalls builds the approve+swap call pair for a swap quote. The approve
// is skipped when the aggregator needs none.
func swapCalls(inputToken common.Address, amount *big.Int, q *quote.SwapQuote) ([]etherman.Call, error) {
	var calls []etherman.Call
	if q.ApprovalTarget != (common.Address{}) {
		approve, err := etherman.ApproveCall(inputToken, q.ApprovalTarget, amount)
		if err != nil {
			return nil, err
		}
		calls = append(calls, approve)
	}
	calls = append(calls, etherman.Call{To: q.SwapTarget, Data: q.Calldata, Value: q.NativeValue})
	return calls, nil
}
