package db

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/dispatcher"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/jackc/pgx/v4"
)

// MemStorage is the in-memory Storage used by tests and the local runmode.
// It ignores dbTx: every call applies immediately, so the rollback-on-error
// paths degrade to best effort.
type MemStorage struct {
	mu       sync.Mutex
	jobs     map[common.Hash]*accumulator.Job
	deposits []*accumulator.Deposit
	events   []*accumulator.Event
	legs     map[uint64]*dispatcher.MonitoredLeg
	nextLeg  uint64
}

// NewMemStorage creates an empty MemStorage.
func NewMemStorage() *MemStorage {
	return &MemStorage{
		jobs:    make(map[common.Hash]*accumulator.Job),
		legs:    make(map[uint64]*dispatcher.MonitoredLeg),
		nextLeg: 1,
	}
}

// BeginDBTransaction is a no-op for the in-memory storage.
func (m *MemStorage) BeginDBTransaction(ctx context.Context) (pgx.Tx, error) {
	return nil, nil
}

// Commit is a no-op for the in-memory storage.
func (m *MemStorage) Commit(ctx context.Context, dbTx pgx.Tx) error {
	return nil
}

// Rollback is a no-op for the in-memory storage.
func (m *MemStorage) Rollback(ctx context.Context, dbTx pgx.Tx) error {
	return nil
}

// GetJob gets a settlement job by its salted key.
func (m *MemStorage) GetJob(ctx context.Context, key common.Hash, dbTx pgx.Tx) (*accumulator.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[key]
	if !ok {
		return nil, gerror.ErrStorageNotFound
	}
	return copyJob(job), nil
}

// AddJob adds a new settlement job.
func (m *MemStorage) AddJob(ctx context.Context, job *accumulator.Job, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.Key] = copyJob(job)
	return nil
}

// UpdateJob updates the mutable fields of an existing job.
func (m *MemStorage) UpdateJob(ctx context.Context, job *accumulator.Job, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.Key]; !ok {
		return gerror.ErrStorageNotFound
	}
	m.jobs[job.Key] = copyJob(job)
	return nil
}

// AddDeposit records one bridge-delivered amount credited against a job key.
func (m *MemStorage) AddDeposit(ctx context.Context, dep *accumulator.Deposit, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *dep
	d.Amount = new(big.Int).Set(dep.Amount)
	m.deposits = append(m.deposits, &d)
	return nil
}

// AddEvent records a settlement event.
func (m *MemStorage) AddEvent(ctx context.Context, event *accumulator.Event, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *event
	if event.Amount != nil {
		e.Amount = new(big.Int).Set(event.Amount)
	}
	if event.Fee != nil {
		e.Fee = new(big.Int).Set(event.Fee)
	}
	m.events = append(m.events, &e)
	return nil
}

// GetExpiredJobs returns the accumulating jobs whose deadline already passed.
func (m *MemStorage) GetExpiredJobs(ctx context.Context, now time.Time, dbTx pgx.Tx) ([]*accumulator.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*accumulator.Job
	for _, job := range m.jobs {
		if job.Status == accumulator.JobStatusAccumulating && job.Deadline.Before(now) {
			jobs = append(jobs, copyJob(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Deadline.Before(jobs[j].Deadline) })
	return jobs, nil
}

// GetEvents returns the recorded settlement events for a job key.
func (m *MemStorage) GetEvents(key common.Hash) []*accumulator.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []*accumulator.Event
	for _, e := range m.events {
		if e.Key == key {
			events = append(events, e)
		}
	}
	return events
}

// AddMonitoredLeg stores a route leg and returns its id.
func (m *MemStorage) AddMonitoredLeg(ctx context.Context, leg *dispatcher.MonitoredLeg, dbTx pgx.Tx) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextLeg
	m.nextLeg++
	stored := *leg
	stored.ID = id
	m.legs[id] = &stored
	return id, nil
}

// UpdateMonitoredLeg updates the submission state of a leg.
func (m *MemStorage) UpdateMonitoredLeg(ctx context.Context, leg *dispatcher.MonitoredLeg, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.legs[leg.ID]; !ok {
		return gerror.ErrStorageNotFound
	}
	stored := *leg
	m.legs[leg.ID] = &stored
	return nil
}

// GetMonitoredLegsByRoot returns all the legs of one signed route.
func (m *MemStorage) GetMonitoredLegsByRoot(ctx context.Context, root common.Hash, dbTx pgx.Tx) ([]*dispatcher.MonitoredLeg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var legs []*dispatcher.MonitoredLeg
	for _, leg := range m.legs {
		if leg.Root == root {
			stored := *leg
			legs = append(legs, &stored)
		}
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].ID < legs[j].ID })
	return legs, nil
}

// GetMonitoredLegsByStatus returns all the legs in the given status.
func (m *MemStorage) GetMonitoredLegsByStatus(ctx context.Context, status dispatcher.LegStatus, dbTx pgx.Tx) ([]*dispatcher.MonitoredLeg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var legs []*dispatcher.MonitoredLeg
	for _, leg := range m.legs {
		if leg.Status == status {
			stored := *leg
			legs = append(legs, &stored)
		}
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].ID < legs[j].ID })
	return legs, nil
}

func copyJob(job *accumulator.Job) *accumulator.Job {
	c := *job
	if job.MinInput != nil {
		c.MinInput = new(big.Int).Set(job.MinInput)
	}
	if job.MinOutput != nil {
		c.MinOutput = new(big.Int).Set(job.MinOutput)
	}
	if job.ReceivedAmount != nil {
		c.ReceivedAmount = new(big.Int).Set(job.ReceivedAmount)
	}
	c.SwapCalls = append([]etherman.Call(nil), job.SwapCalls...)
	return &c
}
