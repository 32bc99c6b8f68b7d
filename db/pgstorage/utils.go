package pgstorage

import (
	"context"
	"os"
	"strconv"

	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_initial",
			Up: []string{`
CREATE SCHEMA IF NOT EXISTS consolidation;

CREATE TABLE consolidation.job (
	key             BYTEA PRIMARY KEY,
	job_id          BYTEA NOT NULL,
	owner           BYTEA NOT NULL,
	input_token     BYTEA NOT NULL,
	output_token    BYTEA NOT NULL,
	recipient       BYTEA NOT NULL,
	min_input       VARCHAR NOT NULL,
	min_output      VARCHAR NOT NULL,
	swap_calls      JSONB NOT NULL,
	received_amount VARCHAR NOT NULL,
	deadline        TIMESTAMPTZ NOT NULL,
	status          VARCHAR NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_job_status_deadline ON consolidation.job (status, deadline);

CREATE TABLE consolidation.deposit (
	id              BIGSERIAL PRIMARY KEY,
	key             BYTEA NOT NULL,
	amount          VARCHAR NOT NULL,
	source_chain_id BIGINT NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_deposit_key ON consolidation.deposit (key);

CREATE TABLE consolidation.settlement_event (
	id        BIGSERIAL PRIMARY KEY,
	kind      VARCHAR NOT NULL,
	key       BYTEA NOT NULL,
	job_id    BYTEA NOT NULL,
	recipient BYTEA NOT NULL,
	amount    VARCHAR NOT NULL,
	fee       VARCHAR,
	at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_settlement_event_key ON consolidation.settlement_event (key);

CREATE TABLE consolidation.monitored_leg (
	id         BIGSERIAL PRIMARY KEY,
	root       BYTEA NOT NULL,
	chain_id   BIGINT NOT NULL,
	batch      JSONB NOT NULL,
	salt       BYTEA NOT NULL,
	proof      JSONB NOT NULL,
	leaf_index INTEGER NOT NULL,
	signature  BYTEA NOT NULL,
	tx_hash    BYTEA NOT NULL,
	status     VARCHAR NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX idx_monitored_leg_root ON consolidation.monitored_leg (root);
CREATE INDEX idx_monitored_leg_status ON consolidation.monitored_leg (status);
`},
			Down: []string{`DROP SCHEMA consolidation CASCADE;`},
		},
	},
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	c, err := pgx.ParseConfig("postgres://" + cfg.User + ":" + cfg.Password + "@" + cfg.Host + ":" + cfg.Port + "/" + cfg.Name)
	if err != nil {
		return err
	}
	db := stdlib.OpenDB(*c)
	defer func() {
		if err := db.Close(); err != nil {
			log.Warnf("error closing migration db connection: %v", err)
		}
	}()

	nMigrations, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return err
	}

	log.Info("successfully ran ", nMigrations, " migrations Up")
	return nil
}

// InitOrReset will initializes the db running the migrations or
// will reset all the known data and rerun the migrations
func InitOrReset(cfg Config) error {
	pgStorage, err := NewPostgresStorage(cfg)
	if err != nil {
		return err
	}
	defer pgStorage.Close()

	// reset db dropping the migrations table and the schema
	if _, err := pgStorage.Exec(context.Background(), "DROP TABLE IF EXISTS gorp_migrations CASCADE;"); err != nil {
		return err
	}
	if _, err := pgStorage.Exec(context.Background(), "DROP SCHEMA IF EXISTS consolidation CASCADE;"); err != nil {
		return err
	}

	return RunMigrations(cfg)
}

// NewConfigFromEnv creates config from standard postgres environment variables
func NewConfigFromEnv() Config {
	maxConns, _ := strconv.Atoi(getEnv("FLIGHTPATH_DATABASE_MAXCONNS", "20"))
	return Config{
		User:     getEnv("FLIGHTPATH_DATABASE_USER", "test_user"),
		Password: getEnv("FLIGHTPATH_DATABASE_PASSWORD", "test_password"),
		Name:     getEnv("FLIGHTPATH_DATABASE_NAME", "test_db"),
		Host:     getEnv("FLIGHTPATH_DATABASE_HOST", "localhost"),
		Port:     getEnv("FLIGHTPATH_DATABASE_PORT", "5432"),
		MaxConns: maxConns,
	}
}

func getEnv(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if exists {
		return value
	}
	return defaultValue
}
