package accumulator

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reducerJob(status JobStatus, received int64, deadline time.Time) Job {
	return Job{
		Key:            common.HexToHash("0x01"),
		Owner:          common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		MinInput:       big.NewInt(100),
		MinOutput:      big.NewInt(95),
		ReceivedAmount: big.NewInt(received),
		Deadline:       deadline,
		Status:         status,
	}
}

func TestReduceAccumulatesBelowThreshold(t *testing.T) {
	now := time.Now()
	job := reducerJob(JobStatusEmpty, 0, now.Add(time.Hour))

	next, effect := Reduce(job, Deposit{Amount: big.NewInt(60)}, now)
	assert.Equal(t, EffectNone, effect.Kind)
	assert.Equal(t, JobStatusAccumulating, next.Status)
	assert.Equal(t, big.NewInt(60), next.ReceivedAmount)
}

func TestReduceExecutesAtThreshold(t *testing.T) {
	now := time.Now()
	job := reducerJob(JobStatusAccumulating, 60, now.Add(time.Hour))

	next, effect := Reduce(job, Deposit{Amount: big.NewInt(40)}, now)
	assert.Equal(t, EffectExecute, effect.Kind)
	assert.Equal(t, big.NewInt(100), next.ReceivedAmount)

	// crossing past the threshold behaves the same as meeting it exactly
	job = reducerJob(JobStatusAccumulating, 60, now.Add(time.Hour))
	next, effect = Reduce(job, Deposit{Amount: big.NewInt(55)}, now)
	assert.Equal(t, EffectExecute, effect.Kind)
	assert.Equal(t, big.NewInt(115), next.ReceivedAmount)
}

func TestReduceDeadlineBoundary(t *testing.T) {
	deadline := time.Now()

	// a deposit arriving exactly at the deadline still accumulates
	job := reducerJob(JobStatusAccumulating, 10, deadline)
	next, effect := Reduce(job, Deposit{Amount: big.NewInt(5)}, deadline)
	assert.Equal(t, EffectNone, effect.Kind)
	assert.Equal(t, big.NewInt(15), next.ReceivedAmount)

	// one instant later the job goes stale and everything refunds
	job = reducerJob(JobStatusAccumulating, 10, deadline)
	next, effect = Reduce(job, Deposit{Amount: big.NewInt(5)}, deadline.Add(time.Nanosecond))
	assert.Equal(t, EffectRefund, effect.Kind)
	assert.Equal(t, big.NewInt(15), effect.RefundAmount)
	assert.Equal(t, JobStatusStale, next.Status)
	assert.Equal(t, big.NewInt(0), next.ReceivedAmount)
}

func TestReduceRejectsDepositOnExecutedJob(t *testing.T) {
	now := time.Now()
	job := reducerJob(JobStatusExecuted, 0, now.Add(time.Hour))

	next, effect := Reduce(job, Deposit{Amount: big.NewInt(40)}, now)
	assert.Equal(t, EffectReject, effect.Kind)
	assert.Equal(t, JobStatusExecuted, next.Status)
	assert.Equal(t, big.NewInt(0), next.ReceivedAmount)
}

func TestReduceRefundsLateDepositOnStaleJob(t *testing.T) {
	now := time.Now()
	job := reducerJob(JobStatusStale, 0, now.Add(-time.Hour))

	next, effect := Reduce(job, Deposit{Amount: big.NewInt(33)}, now)
	require.Equal(t, EffectRefund, effect.Kind)
	// exactly the late amount, nothing else was held
	assert.Equal(t, big.NewInt(33), effect.RefundAmount)
	assert.Equal(t, JobStatusStale, next.Status)
}

func TestReduceExpiry(t *testing.T) {
	now := time.Now()

	job := reducerJob(JobStatusAccumulating, 70, now.Add(-time.Minute))
	next, effect := ReduceExpiry(job, now)
	require.Equal(t, EffectRefund, effect.Kind)
	assert.Equal(t, big.NewInt(70), effect.RefundAmount)
	assert.Equal(t, JobStatusStale, next.Status)
	assert.Equal(t, big.NewInt(0), next.ReceivedAmount)

	// not yet expired
	job = reducerJob(JobStatusAccumulating, 70, now.Add(time.Minute))
	_, effect = ReduceExpiry(job, now)
	assert.Equal(t, EffectNone, effect.Kind)

	// terminal jobs are never swept
	for _, status := range []JobStatus{JobStatusExecuted, JobStatusStale} {
		job = reducerJob(status, 0, now.Add(-time.Minute))
		_, effect = ReduceExpiry(job, now)
		assert.Equal(t, EffectNone, effect.Kind)
	}
}
