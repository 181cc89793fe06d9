package storage

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	logx "timetablebot/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

type sqliteRepo struct {
	db  *sql.DB
	log logx.Logger
	wmu sync.Mutex
}

func openSQLite(cfg Config, log logx.Logger) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &sqliteRepo{db: db, log: log}, nil
}

func (s *sqliteRepo) Snapshot(ctx context.Context) (Records, error) {
	return s.readAll(ctx, s.db)
}

type querier interface {
	QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error)
}

func (s *sqliteRepo) readAll(ctx context.Context, q querier) (Records, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := Records{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		if !json.Valid([]byte(v)) {
			// one bad row never poisons the rest
			s.log.Warn("storage row is not valid JSON; skipped", logx.String("key", k))
			continue
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}

func (s *sqliteRepo) Update(ctx context.Context, fn func(Records) error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	before, err := s.readAll(ctx, tx)
	if err != nil {
		return err
	}
	work := before.Clone()
	if err := fn(work); err != nil {
		return err
	}

	now := time.Now().Unix()
	for k, v := range work {
		if old, ok := before[k]; ok && bytes.Equal(old, v) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
			 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			k, string(v), now,
		); err != nil {
			return err
		}
	}
	for k := range before {
		if _, ok := work[k]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteRepo) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
