// Package accumulator implements the destination-chain settlement state
// machine: bridge-delivered deposits accumulate against a salted job key
// until the threshold is met, then the final action executes exactly once;
// jobs that never reach threshold refund on deadline expiry.
package accumulator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/authcodec"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/flightpath-fi/consolidator-service/jobcodec"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/flightpath-fi/consolidator-service/metrics"
	"github.com/flightpath-fi/consolidator-service/utils"
	"github.com/jackc/pgx/v4"
)

// Accumulator is the settlement engine for one destination chain.
type Accumulator struct {
	cfg          Config
	storage      storageInterface
	executor     executorInterface
	verifier     authVerifierInterface
	timeProvider utils.TimeProvider

	mu       sync.Mutex
	jobLocks map[common.Hash]*sync.Mutex
}

// NewAccumulator creates a settlement engine.
func NewAccumulator(cfg Config, storage storageInterface, executor executorInterface, verifier authVerifierInterface, timeProvider utils.TimeProvider) *Accumulator {
	if timeProvider == nil {
		timeProvider = utils.NewTimeProviderSystemLocalTime()
	}
	return &Accumulator{
		cfg:          cfg,
		storage:      storage,
		executor:     executor,
		verifier:     verifier,
		timeProvider: timeProvider,
		jobLocks:     make(map[common.Hash]*sync.Mutex),
	}
}

// lockJob serializes every state transition for one salted key within this
// process. Storage takes the row lock for concurrent processes; this covers
// handlers sharing the engine, the in-memory storage included.
func (a *Accumulator) lockJob(key common.Hash) func() {
	a.mu.Lock()
	l, ok := a.jobLocks[key]
	if !ok {
		l = &sync.Mutex{}
		a.jobLocks[key] = l
	}
	a.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Start runs the deadline sweep until the context is cancelled. Deposits
// arrive through HandleDeposit driven by the bridge message feed; the sweep
// only handles jobs whose deadline passed with no further arrivals.
func (a *Accumulator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.FrequencyToCheckDeadlines.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.ExpireJobs(ctx); err != nil {
				log.Errorf("failed to expire stale jobs: %v", err)
			}
		}
	}
}

// HandleDeposit processes one bridge-delivered amount for the salted key.
// The first matching message creates the job from the decoded payload. Two
// deliveries for the same key never interleave. An error return means the
// inbound bridge fill itself must revert: a failure downstream is never
// silently swallowed.
func (a *Accumulator) HandleDeposit(ctx context.Context, key common.Hash, msg *jobcodec.Message, owner common.Address, dep Deposit, auth *ExecutionAuth) error {
	if err := a.checkKey(key, msg, owner); err != nil {
		return err
	}
	unlock := a.lockJob(key)
	defer unlock()

	now := a.timeProvider.Now()
	metrics.RecordSettlementDeposit(a.cfg.ChainID)

	dbTx, err := a.storage.BeginDBTransaction(ctx)
	if err != nil {
		return err
	}

	job, err := a.storage.GetJob(ctx, key, dbTx)
	created := false
	if errors.Is(err, gerror.ErrStorageNotFound) {
		job = a.newJob(key, msg, owner, now)
		created = true
	} else if err != nil {
		rollback(ctx, a.storage, dbTx)
		return err
	}

	next, effect := Reduce(*job, dep, now)

	switch effect.Kind {
	case EffectReject:
		rollback(ctx, a.storage, dbTx)
		return gerror.ErrJobAlreadyExecuted

	case EffectNone:
		if err := a.persist(ctx, &next, created, &dep, nil, dbTx); err != nil {
			rollback(ctx, a.storage, dbTx)
			return err
		}
		return a.storage.Commit(ctx, dbTx)

	case EffectRefund:
		event := &Event{
			Kind:      EventRefunded,
			Key:       next.Key,
			JobID:     next.JobID,
			Recipient: next.Owner,
			Amount:    effect.RefundAmount,
			Fee:       big.NewInt(0),
			At:        now,
		}
		if err := a.persist(ctx, &next, created, &dep, event, dbTx); err != nil {
			rollback(ctx, a.storage, dbTx)
			return err
		}
		if err := a.storage.Commit(ctx, dbTx); err != nil {
			return err
		}
		// recorded before paid: a redelivery after a failed payout must not
		// refund the same amount twice
		if err := a.executor.Transfer(ctx, next.InputToken, next.Owner, effect.RefundAmount); err != nil {
			log.Errorf("job %s: refund of %s to %s failed: %v", next.Key, effect.RefundAmount, next.Owner, err)
			return err
		}
		return nil

	case EffectExecute:
		// commit the accumulation first so a failed execute attempt leaves
		// the received balance intact for retry or deadline refund
		if err := a.persist(ctx, &next, created, &dep, nil, dbTx); err != nil {
			rollback(ctx, a.storage, dbTx)
			return err
		}
		if err := a.storage.Commit(ctx, dbTx); err != nil {
			return err
		}
		if auth == nil {
			log.Infof("job %s reached threshold, awaiting authorized execute", next.Key)
			return nil
		}
		return a.execute(ctx, &next, auth)
	}
	rollback(ctx, a.storage, dbTx)
	return fmt.Errorf("unknown effect %q", effect.Kind)
}

// checkKey recomputes the salted key from the message content and the engine
// chain. The key travels with the relayer, so only a key that matches its own
// message may create or credit a job.
func (a *Accumulator) checkKey(key common.Hash, msg *jobcodec.Message, owner common.Address) error {
	if msg.Nonce == nil || !msg.Nonce.IsUint64() {
		return gerror.ErrJobKeyMismatch
	}
	jobID := jobcodec.ComputeJobID(owner, msg.InputToken, msg.OutputToken, msg.Recipient, msg.MinInput, msg.MinOutput, msg.SwapCalls)
	if jobcodec.SaltedKey(jobID, a.cfg.ChainID, msg.Nonce.Uint64()) != key {
		return gerror.ErrJobKeyMismatch
	}
	return nil
}

// TryExecute runs the final action for a job that already satisfied its
// threshold, under a separately submitted authorization.
func (a *Accumulator) TryExecute(ctx context.Context, key common.Hash, auth *ExecutionAuth) error {
	unlock := a.lockJob(key)
	defer unlock()

	now := a.timeProvider.Now()
	job, err := a.storage.GetJob(ctx, key, nil)
	if err != nil {
		return err
	}
	if job.Status == JobStatusExecuted {
		return gerror.ErrJobAlreadyExecuted
	}
	if job.Status != JobStatusAccumulating {
		return fmt.Errorf("job %s is not accumulating", key)
	}
	if now.After(job.Deadline) {
		return a.expireJob(ctx, job)
	}
	if job.ReceivedAmount.Cmp(job.MinInput) < 0 {
		return fmt.Errorf("job %s below threshold: received %s, need %s", key, job.ReceivedAmount, job.MinInput)
	}
	return a.execute(ctx, job, auth)
}

// ExpireJobs refunds every Accumulating job whose deadline has passed.
func (a *Accumulator) ExpireJobs(ctx context.Context) error {
	now := a.timeProvider.Now()
	jobs, err := a.storage.GetExpiredJobs(ctx, now, nil)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := a.expireJobLocked(ctx, job.Key); err != nil {
			log.Errorf("failed to expire job %s: %v", job.Key, err)
		}
	}
	return nil
}

// expireJobLocked re-reads the job under its lock: it may have settled
// between the sweep query and here.
func (a *Accumulator) expireJobLocked(ctx context.Context, key common.Hash) error {
	unlock := a.lockJob(key)
	defer unlock()
	job, err := a.storage.GetJob(ctx, key, nil)
	if err != nil {
		return err
	}
	return a.expireJob(ctx, job)
}

func (a *Accumulator) newJob(key common.Hash, msg *jobcodec.Message, owner common.Address, now time.Time) *Job {
	return &Job{
		Key:            key,
		JobID:          jobcodec.ComputeJobID(owner, msg.InputToken, msg.OutputToken, msg.Recipient, msg.MinInput, msg.MinOutput, msg.SwapCalls),
		Owner:          owner,
		InputToken:     msg.InputToken,
		OutputToken:    msg.OutputToken,
		Recipient:      msg.Recipient,
		MinInput:       new(big.Int).Set(msg.MinInput),
		MinOutput:      new(big.Int).Set(msg.MinOutput),
		SwapCalls:      msg.SwapCalls,
		ReceivedAmount: big.NewInt(0),
		Deadline:       now.Add(a.cfg.JobLifetime.Duration),
		Status:         JobStatusEmpty,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// execute runs the final action for job. Order is fixed: authorization first
// (no balance may move before it succeeds), then fee, then the atomic swap
// bundle, then the salt and the terminal state, then the payouts. The salt
// and the Executed status commit before the first transfer, so a retry after
// a partial failure stops at the guard instead of paying twice.
func (a *Accumulator) execute(ctx context.Context, job *Job, auth *ExecutionAuth) error {
	callsHash := authcodec.CallsHash(etherman.ChainActionBatch{ChainID: a.cfg.ChainID, Calls: job.SwapCalls})
	if err := a.verifier.VerifyExecution(callsHash, auth); err != nil {
		return err
	}

	feeQuote, err := a.executor.QuoteFee(ctx, job)
	if err != nil {
		return err
	}
	fee := new(big.Int).Set(feeQuote)
	maxFee := new(big.Int).SetUint64(a.cfg.MaxFeeWei)
	if fee.Cmp(maxFee) > 0 {
		fee.Set(maxFee)
	}

	available := new(big.Int).Sub(job.ReceivedAmount, fee)
	if available.Sign() <= 0 {
		return fmt.Errorf("job %s: fee %s consumes the whole received amount %s", job.Key, fee, job.ReceivedAmount)
	}

	// atomic: any failing call aborts the whole bundle with nothing applied
	output, err := a.executor.RunSwap(ctx, job.SwapCalls, available)
	if err != nil {
		return err
	}
	if output.Cmp(job.MinOutput) < 0 {
		return fmt.Errorf("job %s: swap produced %s, below the committed minimum %s", job.Key, output, job.MinOutput)
	}

	if err := a.verifier.ConsumeSalt(auth); err != nil {
		return err
	}

	now := a.timeProvider.Now()
	job.Status = JobStatusExecuted
	job.ReceivedAmount = big.NewInt(0)
	job.UpdatedAt = now

	dbTx, err := a.storage.BeginDBTransaction(ctx)
	if err != nil {
		return err
	}
	if err := a.storage.UpdateJob(ctx, job, dbTx); err != nil {
		rollback(ctx, a.storage, dbTx)
		return err
	}
	event := &Event{
		Kind:      EventExecuted,
		Key:       job.Key,
		JobID:     job.JobID,
		Recipient: job.Recipient,
		Amount:    new(big.Int).Set(job.MinOutput),
		Fee:       fee,
		At:        now,
	}
	if err := a.storage.AddEvent(ctx, event, dbTx); err != nil {
		rollback(ctx, a.storage, dbTx)
		return err
	}
	if err := a.storage.Commit(ctx, dbTx); err != nil {
		return err
	}

	// the recipient gets the committed floor; everything above it returns to
	// the authorizing account so the job ends with zero net exposure
	if err := a.executor.Transfer(ctx, job.OutputToken, job.Recipient, job.MinOutput); err != nil {
		log.Errorf("job %s settled but the payout to %s failed: %v", job.Key, job.Recipient, err)
		return err
	}
	excess := new(big.Int).Sub(output, job.MinOutput)
	if excess.Sign() > 0 {
		if err := a.executor.Transfer(ctx, job.OutputToken, job.Owner, excess); err != nil {
			log.Errorf("job %s settled but the excess payout to %s failed: %v", job.Key, job.Owner, err)
			return err
		}
	}

	metrics.RecordSettlementEvent(a.cfg.ChainID, EventExecuted.String(), now.Sub(job.CreatedAt))
	log.Infof("job %s executed: %s to %s, fee %s", job.Key, job.MinOutput, job.Recipient, fee)
	return nil
}

func (a *Accumulator) expireJob(ctx context.Context, job *Job) error {
	now := a.timeProvider.Now()
	next, effect := ReduceExpiry(*job, now)
	if effect.Kind != EffectRefund {
		return nil
	}

	dbTx, err := a.storage.BeginDBTransaction(ctx)
	if err != nil {
		return err
	}
	if err := a.storage.UpdateJob(ctx, &next, dbTx); err != nil {
		rollback(ctx, a.storage, dbTx)
		return err
	}
	event := &Event{
		Kind:      EventRefunded,
		Key:       next.Key,
		JobID:     next.JobID,
		Recipient: next.Owner,
		Amount:    effect.RefundAmount,
		Fee:       big.NewInt(0),
		At:        now,
	}
	if err := a.storage.AddEvent(ctx, event, dbTx); err != nil {
		rollback(ctx, a.storage, dbTx)
		return err
	}
	if err := a.storage.Commit(ctx, dbTx); err != nil {
		return err
	}

	// the job is Stale before the refund moves, so the next sweep passes it
	// over instead of refunding again
	if err := a.executor.Transfer(ctx, next.InputToken, next.Owner, effect.RefundAmount); err != nil {
		log.Errorf("job %s: refund of %s to %s failed: %v", next.Key, effect.RefundAmount, next.Owner, err)
		return err
	}
	metrics.RecordSettlementEvent(a.cfg.ChainID, EventRefunded.String(), now.Sub(next.CreatedAt))
	log.Infof("job %s went stale: refunded %s to %s", next.Key, effect.RefundAmount, next.Owner)
	return nil
}

func (a *Accumulator) persist(ctx context.Context, job *Job, created bool, dep *Deposit, event *Event, dbTx pgx.Tx) error {
	var err error
	if created {
		err = a.storage.AddJob(ctx, job, dbTx)
	} else {
		err = a.storage.UpdateJob(ctx, job, dbTx)
	}
	if err != nil {
		return err
	}
	if dep != nil {
		if err := a.storage.AddDeposit(ctx, dep, dbTx); err != nil {
			return err
		}
	}
	if event != nil {
		if err := a.storage.AddEvent(ctx, event, dbTx); err != nil {
			return err
		}
	}
	return nil
}

func rollback(ctx context.Context, storage storageInterface, dbTx pgx.Tx) {
	if err := storage.Rollback(ctx, dbTx); err != nil {
		log.Errorf("error rolling back settlement state. Error: %v", err)
	}
}
