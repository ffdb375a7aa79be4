package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const turnColumns = `id, userid, role, content, pii_redacted, created_at`

// PostgresStore keeps transcripts in the conversation_turns table, trimmed to maxTurns per owner
// on every save.
type PostgresStore struct {
	pool     *pgxpool.Pool
	maxTurns int
}

func NewPostgresStore(ctx context.Context, databaseURL string, maxTurns int) (*PostgresStore, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTurnSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, maxTurns: maxTurns}, nil
}

func initTurnSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id TEXT PRIMARY KEY,
			userid BIGINT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`ALTER TABLE conversation_turns ADD COLUMN IF NOT EXISTS pii_redacted BOOLEAN NOT NULL DEFAULT FALSE;`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_owner_recent ON conversation_turns (userid, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init conversation schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// SaveTurn inserts the turn and drops the owner's turns beyond the cap in one round trip.
func (s *PostgresStore) SaveTurn(ctx context.Context, record TurnRecord) error {
	record = stamp(record)

	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO conversation_turns (`+turnColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.OwnerID, record.Role, record.Content, record.PIIRedacted, record.CreatedAt)
	batch.Queue(`DELETE FROM conversation_turns WHERE id IN (
			SELECT id FROM conversation_turns WHERE userid = $1
			ORDER BY created_at DESC, id DESC OFFSET $2
		)`, record.OwnerID, s.maxTurns)

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save turn for owner %d: %w", record.OwnerID, err)
	}
	return nil
}

func (s *PostgresStore) RecentContext(ctx context.Context, ownerID int64, limit int) ([]TurnRecord, error) {
	if limit <= 0 || limit > s.maxTurns {
		limit = s.maxTurns
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+turnColumns+` FROM conversation_turns
		 WHERE userid = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript for owner %d: %w", ownerID, err)
	}
	newestFirst, err := pgx.CollectRows(rows, pgx.RowToStructByPos[TurnRecord])
	if err != nil {
		return nil, fmt.Errorf("scan transcript for owner %d: %w", ownerID, err)
	}
	slices.Reverse(newestFirst)
	return openOnUserTurn(newestFirst), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
