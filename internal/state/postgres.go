package state

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"dip_bot/internal/models"
	"dip_bot/pkg/db"
)

const (
	createTableSQL = `
CREATE TABLE IF NOT EXISTS position_state (
	instrument TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	selectStateSQL = `SELECT state FROM position_state WHERE instrument = $1`

	upsertStateSQL = `
INSERT INTO position_state (instrument, state, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (instrument) DO UPDATE
SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`
)

// PostgresStore keeps one row per instrument.
type PostgresStore struct {
	db         db.TxManager
	instrument string
	now        Clock
}

func NewPostgresStore(tx db.TxManager, instrument string, now Clock) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{db: tx, instrument: instrument, now: now}
}

// Migrate creates the state table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.Conn().Exec(ctx, createTableSQL); err != nil {
		return errors.Wrap(err, "create position_state")
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context) (*models.PositionState, error) {
	var raw []byte
	err := p.db.Conn().QueryRow(ctx, selectStateSQL, p.instrument).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NewPositionState(p.now()), nil
		}
		return nil, errors.Wrapf(err, "select state %s", p.instrument)
	}

	st, err := decode(raw, p.now())
	if err != nil {
		return nil, errors.Wrapf(err, "decode state %s", p.instrument)
	}
	return st, nil
}

func (p *PostgresStore) Save(ctx context.Context, st *models.PositionState) error {
	b, err := encode(st)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	err = p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, upsertStateSQL, p.instrument, string(b), p.now().UTC())
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "upsert state %s", p.instrument)
	}
	return nil
}
