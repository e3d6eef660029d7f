package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intentLedger/internal/model"
)

// Store persists the activity journal and ledger snapshots in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS activity (
	id         UUID PRIMARY KEY,
	op         TEXT NOT NULL,
	account    TEXT NOT NULL,
	amount     NUMERIC,
	tx_hash    TEXT,
	status     TEXT NOT NULL,
	error      TEXT,
	detail     TEXT,
	at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS activity_account_at ON activity (account, at);

CREATE TABLE IF NOT EXISTS balances (
	chain_id     BIGINT NOT NULL,
	account      TEXT NOT NULL,
	available    NUMERIC NOT NULL,
	locked       NUMERIC NOT NULL,
	refreshed_at TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, account)
);

CREATE TABLE IF NOT EXISTS intents (
	chain_id     BIGINT NOT NULL,
	account      TEXT NOT NULL,
	intent_index BIGINT NOT NULL,
	amount       NUMERIC NOT NULL,
	intent_type  TEXT NOT NULL,
	metadata     BYTEA,
	is_executed  BOOLEAN NOT NULL,
	submitted_at BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, account, intent_index)
);

CREATE TABLE IF NOT EXISTS sync_state (
	name         TEXT PRIMARY KEY,
	block_number BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Record inserts an activity record; replays of the same id are ignored.
func (s *Store) Record(ctx context.Context, rec model.ActivityRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity (id, op, account, amount, tx_hash, status, error, detail, at)
		VALUES ($1, $2, $3, NULLIF($4, '')::NUMERIC, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.ID,
		rec.Op,
		rec.Account,
		rec.Amount,
		rec.TxHash,
		rec.Status,
		rec.Error,
		rec.Detail,
		rec.At,
	)
	return err
}

// UpsertBalances inserts or updates balance snapshots.
func (s *Store) UpsertBalances(ctx context.Context, chainID uint64, balances []model.Balance) error {
	if len(balances) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range balances {
		batch.Queue(`
			INSERT INTO balances (chain_id, account, available, locked, refreshed_at, updated_at)
			VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, now())
			ON CONFLICT (chain_id, account)
			DO UPDATE SET
				available = EXCLUDED.available,
				locked = EXCLUDED.locked,
				refreshed_at = EXCLUDED.refreshed_at,
				updated_at = now()
		`,
			int64(chainID),
			strings.ToLower(b.Account.Hex()),
			numeric(b.Available),
			numeric(b.Locked),
			b.RefreshedAt,
		)
	}
	return s.sendBatch(ctx, batch, len(balances))
}

// UpsertIntents inserts or updates intent snapshots. Executed intents
// never revert to submitted.
func (s *Store) UpsertIntents(ctx context.Context, chainID uint64, intents []model.Intent) error {
	if len(intents) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, in := range intents {
		batch.Queue(`
			INSERT INTO intents (
				chain_id, account, intent_index, amount, intent_type, metadata, is_executed, submitted_at, updated_at
			) VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8, now())
			ON CONFLICT (chain_id, account, intent_index)
			DO UPDATE SET
				amount = EXCLUDED.amount,
				intent_type = EXCLUDED.intent_type,
				metadata = EXCLUDED.metadata,
				is_executed = intents.is_executed OR EXCLUDED.is_executed,
				updated_at = now()
		`,
			int64(chainID),
			strings.ToLower(in.Owner.Hex()),
			int64(in.Index),
			numeric(in.Amount),
			in.IntentType,
			in.Metadata,
			in.IsExecuted,
			int64(in.Timestamp),
		)
	}
	return s.sendBatch(ctx, batch, len(intents))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the block number recorded for name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT block_number FROM sync_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the block number for name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (name, block_number, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET block_number = EXCLUDED.block_number, updated_at = now()
	`, name, int64(block))
	return err
}

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
