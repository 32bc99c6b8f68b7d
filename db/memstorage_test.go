package db

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/dispatcher"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(key common.Hash, deadline time.Time) *accumulator.Job {
	return &accumulator.Job{
		Key:            key,
		JobID:          common.HexToHash("0x11"),
		Owner:          common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		MinInput:       big.NewInt(100),
		MinOutput:      big.NewInt(90),
		ReceivedAmount: big.NewInt(0),
		Deadline:       deadline,
		Status:         accumulator.JobStatusAccumulating,
	}
}

func TestMemStorageJobLifecycle(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()
	key := common.HexToHash("0x01")

	_, err := storage.GetJob(ctx, key, nil)
	assert.ErrorIs(t, err, gerror.ErrStorageNotFound)

	err = storage.UpdateJob(ctx, testJob(key, time.Now()), nil)
	assert.ErrorIs(t, err, gerror.ErrStorageNotFound)

	job := testJob(key, time.Now().Add(time.Hour))
	require.NoError(t, storage.AddJob(ctx, job, nil))

	got, err := storage.GetJob(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, job.MinInput, got.MinInput)

	got.Status = accumulator.JobStatusExecuted
	got.ReceivedAmount = big.NewInt(50)
	require.NoError(t, storage.UpdateJob(ctx, got, nil))

	updated, err := storage.GetJob(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, accumulator.JobStatusExecuted, updated.Status)
	assert.Equal(t, big.NewInt(50), updated.ReceivedAmount)
}

func TestMemStorageReturnsCopies(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()
	key := common.HexToHash("0x02")

	require.NoError(t, storage.AddJob(ctx, testJob(key, time.Now().Add(time.Hour)), nil))

	got, err := storage.GetJob(ctx, key, nil)
	require.NoError(t, err)
	got.ReceivedAmount.SetInt64(999)
	got.Status = accumulator.JobStatusStale

	// mutating a returned job never touches the stored one
	fresh, err := storage.GetJob(ctx, key, nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), fresh.ReceivedAmount)
	assert.Equal(t, accumulator.JobStatusAccumulating, fresh.Status)
}

func TestMemStorageExpiredJobs(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()
	now := time.Now()

	expired := testJob(common.HexToHash("0x0a"), now.Add(-time.Hour))
	live := testJob(common.HexToHash("0x0b"), now.Add(time.Hour))
	terminal := testJob(common.HexToHash("0x0c"), now.Add(-time.Hour))
	terminal.Status = accumulator.JobStatusStale
	laterExpired := testJob(common.HexToHash("0x0d"), now.Add(-time.Minute))

	for _, job := range []*accumulator.Job{expired, live, terminal, laterExpired} {
		require.NoError(t, storage.AddJob(ctx, job, nil))
	}

	jobs, err := storage.GetExpiredJobs(ctx, now, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	// ordered by deadline, oldest first
	assert.Equal(t, expired.Key, jobs[0].Key)
	assert.Equal(t, laterExpired.Key, jobs[1].Key)
}

func TestMemStorageMonitoredLegs(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()
	rootA := common.HexToHash("0xa0")
	rootB := common.HexToHash("0xb0")

	ids := make([]uint64, 0, 3)
	for _, leg := range []*dispatcher.MonitoredLeg{
		{Root: rootA, ChainID: 10, Status: dispatcher.LegStatusCreated},
		{Root: rootA, ChainID: 137, Status: dispatcher.LegStatusCreated},
		{Root: rootB, ChainID: 10, Status: dispatcher.LegStatusCreated},
	} {
		id, err := storage.AddMonitoredLeg(ctx, leg, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.NotEqual(t, ids[0], ids[1])

	legs, err := storage.GetMonitoredLegsByRoot(ctx, rootA, nil)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	legs[0].Status = dispatcher.LegStatusBroadcast
	legs[0].TxHash = common.HexToHash("0xaa01")
	require.NoError(t, storage.UpdateMonitoredLeg(ctx, legs[0], nil))

	created, err := storage.GetMonitoredLegsByStatus(ctx, dispatcher.LegStatusCreated, nil)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	broadcast, err := storage.GetMonitoredLegsByStatus(ctx, dispatcher.LegStatusBroadcast, nil)
	require.NoError(t, err)
	require.Len(t, broadcast, 1)
	assert.Equal(t, rootA, broadcast[0].Root)

	missing := &dispatcher.MonitoredLeg{ID: 999}
	assert.ErrorIs(t, storage.UpdateMonitoredLeg(ctx, missing, nil), gerror.ErrStorageNotFound)
}

func TestMemStorageDepositsAndEvents(t *testing.T) {
	storage := NewMemStorage()
	ctx := context.Background()
	key := common.HexToHash("0x03")

	require.NoError(t, storage.AddDeposit(ctx, &accumulator.Deposit{Key: key, Amount: big.NewInt(10)}, nil))
	require.NoError(t, storage.AddEvent(ctx, &accumulator.Event{Kind: accumulator.EventRefunded, Key: key, Amount: big.NewInt(10)}, nil))
	require.NoError(t, storage.AddEvent(ctx, &accumulator.Event{Kind: accumulator.EventExecuted, Key: common.HexToHash("0x04"), Amount: big.NewInt(5)}, nil))

	events := storage.GetEvents(key)
	require.Len(t, events, 1)
	assert.Equal(t, accumulator.EventRefunded, events[0].Kind)
}
