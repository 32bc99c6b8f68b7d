// Package dispatcher submits the signed per-chain batches of a resolved
// route to the gas relay and tracks each leg until it is mined. Legs of one
// route are independent: a failed or unbroadcast leg can be retried without
// touching legs that already went out.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/composer"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/metrics"
)

// LegAuth is the per-leg authorization material produced alongside the
// commitment tree at signing time.
type LegAuth struct {
	Salt  common.Hash
	Proof []common.Hash
	Index int
}

// Dispatcher submits and monitors route legs.
type Dispatcher struct {
	cfg     Config
	storage storageInterface
	relay   relayInterface
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, storage storageInterface, relay relayInterface) *Dispatcher {
	return &Dispatcher{cfg: cfg, storage: storage, relay: relay}
}

// Start polls broadcast legs until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.FrequencyToMonitorLegs.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.monitorLegs(ctx); err != nil {
				log.Errorf("failed to monitor route legs: %v", err)
			}
		}
	}
}

// Dispatch stores one monitored leg per executable batch of the route and
// submits them. auths must line up with route.ChainActions; empty batches
// (the accumulator registration slot) are skipped. Legs that were stored but
// not broadcast stay retryable through Retry.
func (d *Dispatcher) Dispatch(ctx context.Context, route *composer.TransferRoute, root common.Hash, signature []byte, auths []LegAuth) error {
	if len(auths) != len(route.ChainActions) {
		return fmt.Errorf("got %d leg authorizations for %d batches", len(auths), len(route.ChainActions))
	}

	now := time.Now()
	var legs []*MonitoredLeg
	for i, batch := range route.ChainActions {
		if batch.IsEmpty() {
			continue
		}
		leg := &MonitoredLeg{
			Root:      root,
			ChainID:   batch.ChainID,
			Batch:     batch,
			Salt:      auths[i].Salt,
			Proof:     auths[i].Proof,
			Index:     auths[i].Index,
			Signature: signature,
			Status:    LegStatusCreated,
			CreatedAt: now,
			UpdatedAt: now,
		}
		id, err := d.storage.AddMonitoredLeg(ctx, leg, nil)
		if err != nil {
			return err
		}
		leg.ID = id
		legs = append(legs, leg)
	}

	return d.submitLegs(ctx, legs)
}

// Retry re-submits the legs of a route that were never broadcast. Broadcast
// legs are left alone: re-submitting them would risk double funding, which is
// why a partially-broadcast route must never be retried as a whole.
func (d *Dispatcher) Retry(ctx context.Context, root common.Hash) error {
	legs, err := d.storage.GetMonitoredLegsByRoot(ctx, root, nil)
	if err != nil {
		return err
	}
	var pending []*MonitoredLeg
	for _, leg := range legs {
		if leg.Status == LegStatusCreated {
			pending = append(pending, leg)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	log.Infof("retrying %d unbroadcast legs of route %s", len(pending), root)
	return d.submitLegs(ctx, pending)
}

// RouteStatus summarizes a route's legs so the caller can distinguish "some
// legs already broadcast" from "nothing broadcast".
func (d *Dispatcher) RouteStatus(ctx context.Context, root common.Hash) (broadcast, unbroadcast, confirmed, failed int, err error) {
	legs, err := d.storage.GetMonitoredLegsByRoot(ctx, root, nil)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	for _, leg := range legs {
		switch leg.Status {
		case LegStatusCreated:
			unbroadcast++
		case LegStatusBroadcast:
			broadcast++
		case LegStatusConfirmed:
			confirmed++
		case LegStatusFailed:
			failed++
		}
	}
	return broadcast, unbroadcast, confirmed, failed, nil
}

func (d *Dispatcher) submitLegs(ctx context.Context, legs []*MonitoredLeg) error {
	var firstErr error
	for _, leg := range legs {
		txHash, err := d.relay.SubmitBatch(ctx, leg)
		if err != nil {
			log.Errorf("failed to submit leg %d on chain %d: %v", leg.ID, leg.ChainID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		leg.TxHash = txHash
		leg.Status = LegStatusBroadcast
		leg.UpdatedAt = time.Now()
		if err := d.storage.UpdateMonitoredLeg(ctx, leg, nil); err != nil {
			return err
		}
	}
	return firstErr
}

func (d *Dispatcher) monitorLegs(ctx context.Context) error {
	legs, err := d.storage.GetMonitoredLegsByStatus(ctx, LegStatusBroadcast, nil)
	if err != nil {
		return err
	}
	for _, leg := range legs {
		status, err := d.relay.GetStatus(ctx, leg.ChainID, leg.TxHash)
		if err != nil {
			log.Warnf("failed to poll leg %d status: %v", leg.ID, err)
			continue
		}
		switch status {
		case RelayStatusConfirmed:
			leg.Status = LegStatusConfirmed
		case RelayStatusFailed:
			leg.Status = LegStatusFailed
		default:
			continue
		}
		leg.UpdatedAt = time.Now()
		if err := d.storage.UpdateMonitoredLeg(ctx, leg, nil); err != nil {
			return err
		}
		metrics.RecordLegResult(leg.ChainID, leg.Status.String())
		log.Debugf("leg %d on chain %d moved to %s", leg.ID, leg.ChainID, leg.Status)
	}
	return nil
}
