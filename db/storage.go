package db

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/db/pgstorage"
	"github.com/flightpath-fi/consolidator-service/dispatcher"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/jackc/pgx/v4"
)

// Storage covers the settlement engine's job store and the dispatcher's
// monitored leg store.
type Storage interface {
	GetJob(ctx context.Context, key common.Hash, dbTx pgx.Tx) (*accumulator.Job, error)
	AddJob(ctx context.Context, job *accumulator.Job, dbTx pgx.Tx) error
	UpdateJob(ctx context.Context, job *accumulator.Job, dbTx pgx.Tx) error
	AddDeposit(ctx context.Context, dep *accumulator.Deposit, dbTx pgx.Tx) error
	AddEvent(ctx context.Context, event *accumulator.Event, dbTx pgx.Tx) error
	GetExpiredJobs(ctx context.Context, now time.Time, dbTx pgx.Tx) ([]*accumulator.Job, error)
	AddMonitoredLeg(ctx context.Context, leg *dispatcher.MonitoredLeg, dbTx pgx.Tx) (uint64, error)
	UpdateMonitoredLeg(ctx context.Context, leg *dispatcher.MonitoredLeg, dbTx pgx.Tx) error
	GetMonitoredLegsByRoot(ctx context.Context, root common.Hash, dbTx pgx.Tx) ([]*dispatcher.MonitoredLeg, error)
	GetMonitoredLegsByStatus(ctx context.Context, status dispatcher.LegStatus, dbTx pgx.Tx) ([]*dispatcher.MonitoredLeg, error)
	BeginDBTransaction(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, dbTx pgx.Tx) error
	Rollback(ctx context.Context, dbTx pgx.Tx) error
}

// NewStorage creates a new Storage
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Database {
	case "postgres":
		return pgstorage.NewPostgresStorage(pgstorage.Config{
			Name:     cfg.Name,
			User:     cfg.User,
			Password: cfg.Password,
			Host:     cfg.Host,
			Port:     cfg.Port,
			MaxConns: cfg.MaxConns,
		})
	case "memory":
		return NewMemStorage(), nil
	}
	return nil, gerror.ErrStorageNotRegister
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	if cfg.Database != "postgres" {
		return nil
	}
	return pgstorage.RunMigrations(pgstorage.Config{
		Name:     cfg.Name,
		User:     cfg.User,
		Password: cfg.Password,
		Host:     cfg.Host,
		Port:     cfg.Port,
	})
}
