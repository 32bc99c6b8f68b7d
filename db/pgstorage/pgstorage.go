package pgstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/dispatcher"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// execQuerier determines how a query runs, through a dbTx or the main pool.
type execQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStorage implements the Storage interface
type PostgresStorage struct {
	*pgxpool.Pool
}

// NewPostgresStorage creates a new Storage DB
func NewPostgresStorage(cfg Config) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s:%s/%s?pool_max_conns=%d", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.MaxConns))
	if err != nil {
		log.Errorf("unable to parse DB config: %v", err)
		return nil, err
	}
	db, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		log.Errorf("unable to connect to database: %v", err)
		return nil, err
	}
	return &PostgresStorage{db}, nil
}

// getExecQuerier determines which execQuerier to use, dbTx or the main pgxpool
func (p *PostgresStorage) getExecQuerier(dbTx pgx.Tx) execQuerier {
	if dbTx != nil {
		return dbTx
	}
	return p
}

// BeginDBTransaction starts a transaction block.
func (p *PostgresStorage) BeginDBTransaction(ctx context.Context) (pgx.Tx, error) {
	return p.Begin(ctx)
}

// Commit commits a db transaction.
func (p *PostgresStorage) Commit(ctx context.Context, dbTx pgx.Tx) error {
	if dbTx != nil {
		return dbTx.Commit(ctx)
	}
	return gerror.ErrNilDBTransaction
}

// Rollback rollbacks a db transaction.
func (p *PostgresStorage) Rollback(ctx context.Context, dbTx pgx.Tx) error {
	if dbTx != nil {
		return dbTx.Rollback(ctx)
	}
	return gerror.ErrNilDBTransaction
}

// GetJob gets a settlement job by its salted key. Inside a transaction the
// read takes the row lock, so two handlers crediting the same job serialize
// instead of both updating from the same snapshot.
func (p *PostgresStorage) GetJob(ctx context.Context, key common.Hash, dbTx pgx.Tx) (*accumulator.Job, error) {
	getJobSQL := `
		SELECT key, job_id, owner, input_token, output_token, recipient,
		       min_input, min_output, swap_calls, received_amount, deadline,
		       status, created_at, updated_at
		  FROM consolidation.job WHERE key = $1`
	if dbTx != nil {
		getJobSQL += " FOR UPDATE"
	}
	var (
		job           accumulator.Job
		minInput      string
		minOutput     string
		received      string
		swapCallsJSON []byte
	)
	e := p.getExecQuerier(dbTx)
	err := e.QueryRow(ctx, getJobSQL, key).Scan(&job.Key, &job.JobID, &job.Owner,
		&job.InputToken, &job.OutputToken, &job.Recipient, &minInput, &minOutput,
		&swapCallsJSON, &received, &job.Deadline, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	} else if err != nil {
		return nil, err
	}
	if job.MinInput, err = stringToBigInt(minInput); err != nil {
		return nil, err
	}
	if job.MinOutput, err = stringToBigInt(minOutput); err != nil {
		return nil, err
	}
	if job.ReceivedAmount, err = stringToBigInt(received); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(swapCallsJSON, &job.SwapCalls); err != nil {
		return nil, err
	}
	return &job, nil
}

// AddJob adds a new settlement job.
func (p *PostgresStorage) AddJob(ctx context.Context, job *accumulator.Job, dbTx pgx.Tx) error {
	const addJobSQL = `
		INSERT INTO consolidation.job
		       (key, job_id, owner, input_token, output_token, recipient,
		        min_input, min_output, swap_calls, received_amount, deadline,
		        status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	swapCallsJSON, err := json.Marshal(job.SwapCalls)
	if err != nil {
		return err
	}
	e := p.getExecQuerier(dbTx)
	_, err = e.Exec(ctx, addJobSQL, job.Key, job.JobID, job.Owner, job.InputToken,
		job.OutputToken, job.Recipient, job.MinInput.String(), job.MinOutput.String(),
		swapCallsJSON, job.ReceivedAmount.String(), job.Deadline, job.Status,
		job.CreatedAt, job.UpdatedAt)
	return err
}

// UpdateJob updates the mutable fields of an existing job.
func (p *PostgresStorage) UpdateJob(ctx context.Context, job *accumulator.Job, dbTx pgx.Tx) error {
	const updateJobSQL = `
		UPDATE consolidation.job
		   SET received_amount = $2, status = $3, updated_at = $4
		 WHERE key = $1`
	e := p.getExecQuerier(dbTx)
	ct, err := e.Exec(ctx, updateJobSQL, job.Key, job.ReceivedAmount.String(), job.Status, job.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return gerror.ErrStorageNotFound
	}
	return nil
}

// AddDeposit records one bridge-delivered amount credited against a job key.
func (p *PostgresStorage) AddDeposit(ctx context.Context, dep *accumulator.Deposit, dbTx pgx.Tx) error {
	const addDepositSQL = `
		INSERT INTO consolidation.deposit (key, amount, source_chain_id, received_at)
		VALUES ($1, $2, $3, $4)`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addDepositSQL, dep.Key, dep.Amount.String(), dep.SourceChainID, dep.ReceivedAt)
	return err
}

// AddEvent records a settlement event.
func (p *PostgresStorage) AddEvent(ctx context.Context, event *accumulator.Event, dbTx pgx.Tx) error {
	const addEventSQL = `
		INSERT INTO consolidation.settlement_event (kind, key, job_id, recipient, amount, fee, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	var fee interface{}
	if event.Fee != nil {
		fee = event.Fee.String()
	}
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addEventSQL, event.Kind, event.Key, event.JobID,
		event.Recipient, event.Amount.String(), fee, event.At)
	return err
}

// GetExpiredJobs returns the accumulating jobs whose deadline already passed.
func (p *PostgresStorage) GetExpiredJobs(ctx context.Context, now time.Time, dbTx pgx.Tx) ([]*accumulator.Job, error) {
	const getExpiredJobsSQL = `
		SELECT key FROM consolidation.job
		 WHERE status = $1 AND deadline < $2
		 ORDER BY deadline ASC`
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getExpiredJobsSQL, accumulator.JobStatusAccumulating, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []common.Hash
	for rows.Next() {
		var key common.Hash
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	jobs := make([]*accumulator.Job, 0, len(keys))
	for _, key := range keys {
		job, err := p.GetJob(ctx, key, dbTx)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// AddMonitoredLeg stores a route leg and returns its id.
func (p *PostgresStorage) AddMonitoredLeg(ctx context.Context, leg *dispatcher.MonitoredLeg, dbTx pgx.Tx) (uint64, error) {
	const addLegSQL = `
		INSERT INTO consolidation.monitored_leg
		       (root, chain_id, batch, salt, proof, leaf_index, signature,
		        tx_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	batchJSON, err := json.Marshal(leg.Batch)
	if err != nil {
		return 0, err
	}
	proofJSON, err := json.Marshal(leg.Proof)
	if err != nil {
		return 0, err
	}
	var id uint64
	e := p.getExecQuerier(dbTx)
	err = e.QueryRow(ctx, addLegSQL, leg.Root, leg.ChainID, batchJSON, leg.Salt,
		proofJSON, leg.Index, leg.Signature, leg.TxHash, leg.Status,
		leg.CreatedAt, leg.UpdatedAt).Scan(&id)
	return id, err
}

// UpdateMonitoredLeg updates the submission state of a leg.
func (p *PostgresStorage) UpdateMonitoredLeg(ctx context.Context, leg *dispatcher.MonitoredLeg, dbTx pgx.Tx) error {
	const updateLegSQL = `
		UPDATE consolidation.monitored_leg
		   SET tx_hash = $2, status = $3, updated_at = $4
		 WHERE id = $1`
	e := p.getExecQuerier(dbTx)
	ct, err := e.Exec(ctx, updateLegSQL, leg.ID, leg.TxHash, leg.Status, leg.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return gerror.ErrStorageNotFound
	}
	return nil
}

// GetMonitoredLegsByRoot returns all the legs of one signed route.
func (p *PostgresStorage) GetMonitoredLegsByRoot(ctx context.Context, root common.Hash, dbTx pgx.Tx) ([]*dispatcher.MonitoredLeg, error) {
	const getLegsByRootSQL = `
		SELECT id, root, chain_id, batch, salt, proof, leaf_index, signature,
		       tx_hash, status, created_at, updated_at
		  FROM consolidation.monitored_leg WHERE root = $1 ORDER BY id ASC`
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getLegsByRootSQL, root)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLegs(rows)
}

// GetMonitoredLegsByStatus returns all the legs in the given status.
func (p *PostgresStorage) GetMonitoredLegsByStatus(ctx context.Context, status dispatcher.LegStatus, dbTx pgx.Tx) ([]*dispatcher.MonitoredLeg, error) {
	const getLegsByStatusSQL = `
		SELECT id, root, chain_id, batch, salt, proof, leaf_index, signature,
		       tx_hash, status, created_at, updated_at
		  FROM consolidation.monitored_leg WHERE status = $1 ORDER BY id ASC`
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getLegsByStatusSQL, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLegs(rows)
}

func scanLegs(rows pgx.Rows) ([]*dispatcher.MonitoredLeg, error) {
	var legs []*dispatcher.MonitoredLeg
	for rows.Next() {
		var (
			leg       dispatcher.MonitoredLeg
			batchJSON []byte
			proofJSON []byte
		)
		err := rows.Scan(&leg.ID, &leg.Root, &leg.ChainID, &batchJSON, &leg.Salt,
			&proofJSON, &leg.Index, &leg.Signature, &leg.TxHash, &leg.Status,
			&leg.CreatedAt, &leg.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(batchJSON, &leg.Batch); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(proofJSON, &leg.Proof); err != nil {
			return nil, err
		}
		legs = append(legs, &leg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return legs, nil
}

func stringToBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10) //nolint:gomnd
	if !ok {
		return nil, fmt.Errorf("cannot parse %q as a base 10 big integer", s)
	}
	return v, nil
}
