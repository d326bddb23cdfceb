// Package pgx implements store.Store on PostgreSQL with pgvector. Nodes of all
// labels live in one graph_nodes table; every lookup runs in a read-only
// transaction.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type pgxIConn interface {
	BeginTx(ctx context.Context, txOptions pgxv5.TxOptions) (pgxv5.Tx, error)
}

// GraphStore runs store templates as SQL against the graph_nodes table.
type GraphStore struct {
	conn pgxIConn
}

// NewGraphStoreWithConnection creates a GraphStore using an existing pool or
// connection. The caller keeps ownership of conn.
func NewGraphStoreWithConnection(conn pgxIConn) *GraphStore {
	return &GraphStore{conn: conn}
}

// NewPool opens a pgx pool with the pgvector types registered on every
// connection.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgxv5.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

// RunReadQuery executes tmpl in a read-only transaction.
func (s *GraphStore) RunReadQuery(
	ctx context.Context,
	tmpl store.QueryTemplate,
	params store.Params,
) ([]store.Record, error) {
	sql, args, err := buildSQL(tmpl, params)
	if err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, pgxv5.TxOptions{AccessMode: pgxv5.ReadOnly})
	if err != nil {
		return nil, classifyError(tmpl, err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyError(tmpl, err)
	}
	defer rows.Close()

	out := make([]store.Record, 0, tmpl.EffectiveLimit())
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(&rec.Name, &rec.Score, &rec.NodeType); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", store.ErrUnparseableRecord, tmpl.Name, err)
		}
		if rec.Name == "" {
			logger.Warn("[Postgres][RunReadQuery] Skipping record without name", "template", tmpl.Name)
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(tmpl, err)
	}
	return out, nil
}

const (
	pgReadOnlyTransaction   = "25006"
	pgInsufficientPrivilege = "42501"
)

func classifyError(tmpl store.QueryTemplate, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgReadOnlyTransaction, pgInsufficientPrivilege:
			return fmt.Errorf("%w: %s: %s", store.ErrSecurityBlock, tmpl.Name, pgErr.Message)
		}
	}
	return fmt.Errorf("postgres query %s failed: %w", tmpl.Name, err)
}
