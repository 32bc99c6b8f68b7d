package accumulator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/jackc/pgx/v4"
)

// storageInterface is the job state store for the settlement engine.
type storageInterface interface {
	GetJob(ctx context.Context, key common.Hash, dbTx pgx.Tx) (*Job, error)
	AddJob(ctx context.Context, job *Job, dbTx pgx.Tx) error
	UpdateJob(ctx context.Context, job *Job, dbTx pgx.Tx) error
	AddDeposit(ctx context.Context, dep *Deposit, dbTx pgx.Tx) error
	AddEvent(ctx context.Context, event *Event, dbTx pgx.Tx) error
	GetExpiredJobs(ctx context.Context, now time.Time, dbTx pgx.Tx) ([]*Job, error)
	BeginDBTransaction(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, dbTx pgx.Tx) error
	Rollback(ctx context.Context, dbTx pgx.Tx) error
}

// executorInterface performs the on-chain effects of a settlement. RunSwap
// must be atomic: if any call in the bundle fails nothing is applied and an
// error comes back, leaving the accumulated balance intact.
type executorInterface interface {
	QuoteFee(ctx context.Context, job *Job) (*big.Int, error)
	// RunSwap executes the conversion bundle over input smallest units and
	// returns the produced output amount. An empty bundle passes the input
	// through unchanged.
	RunSwap(ctx context.Context, calls []etherman.Call, input *big.Int) (*big.Int, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error
}

// authVerifierInterface is the callback into the originating account: given
// the struct hash of the bundle about to run and the execution authorization,
// it confirms the single user signature covers it. The engine refuses to
// execute on failure and must not have moved any balance before this check.
type authVerifierInterface interface {
	VerifyExecution(callsHash common.Hash, auth *ExecutionAuth) error
	// ConsumeSalt marks the authorization salt used, exactly once per chain.
	// The engine consumes it before any payout moves.
	ConsumeSalt(auth *ExecutionAuth) error
}

// ExecutionAuth carries the per-leg proof against the chain-agnostic
// commitment root plus the single signature over that root.
type ExecutionAuth struct {
	Salt      common.Hash
	Proof     []common.Hash
	Index     int
	Root      common.Hash
	Signature []byte
	Signer    common.Address
}
