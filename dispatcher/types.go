package dispatcher

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/etherman"
)

const (
	// LegStatusCreated means the leg was added to the storage but nothing
	// was broadcast yet; it is safe to retry submission
	LegStatusCreated = LegStatus("created")

	// LegStatusBroadcast means the relay accepted the leg; re-submitting it
	// would risk double funding
	LegStatusBroadcast = LegStatus("broadcast")

	// LegStatusConfirmed means the leg's tx was mined successfully
	LegStatusConfirmed = LegStatus("confirmed")

	// LegStatusFailed means the leg's tx was mined and reverted, or the
	// relay rejected it permanently
	LegStatusFailed = LegStatus("failed")
)

// LegStatus represents the status of a monitored route leg
type LegStatus string

// String returns a string representation of the status
func (s LegStatus) String() string {
	return string(s)
}

// MonitoredLeg is one per-chain batch of a signed route together with its
// authorization material and submission state. The root identifies the route:
// all legs of one signature share it.
type MonitoredLeg struct {
	// ID is the leg identifier controlled by the storage
	ID uint64

	// Root is the chain-agnostic commitment root the user signed
	Root common.Hash

	ChainID uint64

	Batch etherman.ChainActionBatch

	// Salt is the per-leg replay salt, consumed chain-locally on execution
	Salt common.Hash

	// Proof is the sibling path from the leg's leaf to Root
	Proof []common.Hash

	// Index is the leaf position inside the commitment tree
	Index int

	// Signature is the single user signature over Root
	Signature []byte

	// TxHash of the broadcast submission, when any
	TxHash common.Hash

	Status LegStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}
