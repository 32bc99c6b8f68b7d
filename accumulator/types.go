package accumulator

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/etherman"
)

const (
	// JobStatusEmpty means no bridge message has arrived for the key yet
	JobStatusEmpty = JobStatus("empty")
	// JobStatusAccumulating means deposits are being gathered toward the threshold
	JobStatusAccumulating = JobStatus("accumulating")
	// JobStatusExecuted is terminal: the final action ran and settled
	JobStatusExecuted = JobStatus("executed")
	// JobStatusStale is terminal: the deadline passed below threshold and funds were refunded
	JobStatusStale = JobStatus("stale")
)

// JobStatus represents the settlement state of an accumulator job
type JobStatus string

// String returns a string representation of the status
func (s JobStatus) String() string {
	return string(s)
}

// Job is the destination-chain state for one consolidation, keyed by the
// salted job key. Created implicitly on the first matching bridge message,
// mutated by every subsequent one, terminal on Executed or Stale.
type Job struct {
	// Key is the salted storage key (content jobID + chain + account nonce)
	Key common.Hash

	// JobID is the unsalted content-addressed identifier
	JobID common.Hash

	// Owner is the authorizing account funds are refunded to
	Owner common.Address

	InputToken  common.Address
	OutputToken common.Address
	Recipient   common.Address

	// MinInput is the accumulation threshold in input token smallest units
	MinInput *big.Int

	// MinOutput is the floor transferred to the recipient on execution
	MinOutput *big.Int

	// SwapCalls is the conversion bundle run at execution, possibly empty
	SwapCalls []etherman.Call

	// ReceivedAmount is the net amount currently committed to the job.
	// It returns to zero on every terminal path.
	ReceivedAmount *big.Int

	// Deadline bounds how long the job may sit Accumulating
	Deadline time.Time

	Status JobStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deposit is one bridge-delivered amount credited against a job key.
type Deposit struct {
	Key           common.Hash
	Amount        *big.Int
	SourceChainID uint64
	ReceivedAt    time.Time
}

const (
	// EffectNone: accumulate and wait
	EffectNone = EffectKind("none")
	// EffectExecute: threshold crossed, run the final action now
	EffectExecute = EffectKind("execute")
	// EffectRefund: return funds to the owner now
	EffectRefund = EffectKind("refund")
	// EffectReject: terminal job, the deposit must not be credited
	EffectReject = EffectKind("reject")
)

// EffectKind enumerates the actions a reduction can demand.
type EffectKind string

// Effect is the explicit action resulting from one reduction.
type Effect struct {
	Kind EffectKind
	// RefundAmount is set for EffectRefund
	RefundAmount *big.Int
}

const (
	// EventExecuted is the single settlement event of a job
	EventExecuted = EventKind("executed")
	// EventRefunded marks funds returned to the owner
	EventRefunded = EventKind("refunded")
)

// EventKind is the kind of a settlement event.
type EventKind string

// String returns a string representation of the kind
func (k EventKind) String() string {
	return string(k)
}

// Event is one settlement record. A job emits exactly one EventExecuted;
// refund events may repeat when late deposits trickle in after staleness.
type Event struct {
	Kind      EventKind
	Key       common.Hash
	JobID     common.Hash
	Recipient common.Address
	Amount    *big.Int
	Fee       *big.Int
	At        time.Time
}
