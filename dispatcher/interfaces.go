package dispatcher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
)

const (
	// RelayStatusPending means the submission is not mined yet
	RelayStatusPending = RelayStatus("pending")
	// RelayStatusConfirmed means the submission was mined successfully
	RelayStatusConfirmed = RelayStatus("confirmed")
	// RelayStatusFailed means the submission reverted
	RelayStatusFailed = RelayStatus("failed")
)

// RelayStatus is the relay-side view of a submission.
type RelayStatus string

// storageInterface persists monitored legs.
type storageInterface interface {
	AddMonitoredLeg(ctx context.Context, leg *MonitoredLeg, dbTx pgx.Tx) (uint64, error)
	UpdateMonitoredLeg(ctx context.Context, leg *MonitoredLeg, dbTx pgx.Tx) error
	GetMonitoredLegsByRoot(ctx context.Context, root common.Hash, dbTx pgx.Tx) ([]*MonitoredLeg, error)
	GetMonitoredLegsByStatus(ctx context.Context, status LegStatus, dbTx pgx.Tx) ([]*MonitoredLeg, error)
}

// relayInterface is the gas-relay the signed batches are submitted through.
// Its own retry semantics are out of scope here; the dispatcher only needs
// submission and status polling.
type relayInterface interface {
	SubmitBatch(ctx context.Context, leg *MonitoredLeg) (common.Hash, error)
	GetStatus(ctx context.Context, chainID uint64, txHash common.Hash) (RelayStatus, error)
}
