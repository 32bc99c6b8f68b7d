package accumulator

import (
	"math/big"
	"time"
)

// Reduce is the pure settlement transition: given the current job state and
// one incoming deposit, it returns the next state and the effect to apply.
// It touches no storage and no clock, which is what makes every transition
// independently testable.
//
// Bridge relayers deliver messages asynchronously and out of order; Reduce
// must therefore be total over every (state, deposit, now) combination,
// including deposits arriving after the job reached a terminal state.
func Reduce(job Job, dep Deposit, now time.Time) (Job, Effect) {
	switch job.Status {
	case JobStatusExecuted:
		// double-spend of an executed job is forbidden: no state change,
		// the deposit must be rejected as a no-op
		return job, Effect{Kind: EffectReject}
	case JobStatusStale:
		// a late arrival after staleness is auto-refunded, never silently
		// accumulated
		return job, Effect{Kind: EffectRefund, RefundAmount: new(big.Int).Set(dep.Amount)}
	}

	if now.After(job.Deadline) {
		// past deadline below threshold: refund everything committed,
		// including the deposit that just arrived
		refund := new(big.Int).Add(job.ReceivedAmount, dep.Amount)
		job.Status = JobStatusStale
		job.ReceivedAmount = big.NewInt(0)
		job.UpdatedAt = now
		return job, Effect{Kind: EffectRefund, RefundAmount: refund}
	}

	job.ReceivedAmount = new(big.Int).Add(job.ReceivedAmount, dep.Amount)
	job.Status = JobStatusAccumulating
	job.UpdatedAt = now
	if job.ReceivedAmount.Cmp(job.MinInput) >= 0 {
		return job, Effect{Kind: EffectExecute}
	}
	return job, Effect{Kind: EffectNone}
}

// ReduceExpiry is the deadline-sweep transition for a job with no incoming
// deposit: once past the deadline an Accumulating job refunds and goes Stale.
func ReduceExpiry(job Job, now time.Time) (Job, Effect) {
	if job.Status != JobStatusAccumulating || !now.After(job.Deadline) {
		return job, Effect{Kind: EffectNone}
	}
	refund := new(big.Int).Set(job.ReceivedAmount)
	job.Status = JobStatusStale
	job.ReceivedAmount = big.NewInt(0)
	job.UpdatedAt = now
	return job, Effect{Kind: EffectRefund, RefundAmount: refund}
}
