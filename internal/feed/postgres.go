package feed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/witnz/ledgerd/internal/storage"
)

const DefaultExportTable = "ledger_operations"

// execer is the part of *pgx.Conn the sink needs.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresSink mirrors audit entries into a Postgres table. Inserts are
// idempotent on operation_id, so redelivery after a retry is harmless.
type PostgresSink struct {
	conn  execer
	close func(ctx context.Context) error
	table string
}

// ConnectPostgres opens a connection and makes sure the export table exists.
func ConnectPostgres(ctx context.Context, connString, table string) (*PostgresSink, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sink := newPostgresSink(conn, table)
	sink.close = conn.Close

	if err := sink.EnsureTable(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}

	return sink, nil
}

func newPostgresSink(conn execer, table string) *PostgresSink {
	if table == "" {
		table = DefaultExportTable
	}
	return &PostgresSink{
		conn:  conn,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

func (s *PostgresSink) Name() string {
	return "postgres"
}

func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	operation_id   BIGINT PRIMARY KEY,
	operation_type TEXT NOT NULL,
	key            TEXT,
	old_value      BIGINT,
	new_value      BIGINT,
	performer      TEXT NOT NULL,
	height         BIGINT NOT NULL,
	success        BOOLEAN NOT NULL,
	previous_hash  TEXT NOT NULL,
	hash           TEXT NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create export table: %w", err)
	}
	return nil
}

func (s *PostgresSink) HandleOperation(ctx context.Context, op storage.OperationRecord) error {
	_, err := s.conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
	(operation_id, operation_type, key, old_value, new_value, performer, height, success, previous_hash, hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (operation_id) DO NOTHING`, s.table),
		int64(op.ID),
		op.Type,
		op.Key,
		toInt64(op.OldValue),
		toInt64(op.NewValue),
		op.Performer,
		int64(op.Timestamp),
		op.Success,
		op.PreviousHash,
		op.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to export operation %d: %w", op.ID, err)
	}
	return nil
}

func (s *PostgresSink) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// toInt64 maps an optional unsigned value onto a nullable BIGINT.
func toInt64(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}
