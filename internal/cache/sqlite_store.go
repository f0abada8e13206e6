package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stores (
  name       TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
  store     TEXT NOT NULL,
  identity  TEXT NOT NULL,
  payload   BLOB NOT NULL,
  stored_at INTEGER NOT NULL,
  PRIMARY KEY (store, identity)
);
`

// NewSQLiteRegistry 打开（必要时创建）path 指向的 SQLite 数据库，所有存储共用一个文件。
func NewSQLiteRegistry(path string) (Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// 单连接串行化写事务，避免 WAL 模式下并发事务互相返回 SQLITE_BUSY。
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &sqliteRegistry{db: db, now: time.Now}, nil
}

type sqliteRegistry struct {
	db  *sql.DB
	now func() time.Time
}

type sqliteStore struct {
	name     string
	registry *sqliteRegistry
}

func (r *sqliteRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO stores (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name,
		r.now().UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", name, err)
	}
	return &sqliteStore{name: name, registry: r}, nil
}

func (r *sqliteRegistry) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM stores ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *sqliteRegistry) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE store = ?`, name); err != nil {
		return false, fmt.Errorf("delete entries of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete store %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *sqliteRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (s *sqliteStore) Name() string {
	return s.name
}

func (s *sqliteStore) Get(ctx context.Context, id Identity) (Payload, error) {
	var raw []byte
	err := s.registry.db.QueryRowContext(
		ctx,
		`SELECT payload FROM entries WHERE store = ? AND identity = ?`,
		s.name,
		string(id),
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Payload{}, ErrNotFound
		}
		return Payload{}, err
	}
	return DecodePayload(raw)
}

func (s *sqliteStore) Put(ctx context.Context, id Identity, payload Payload) error {
	snapshot := payload
	if snapshot.StoredAt.IsZero() {
		snapshot.StoredAt = s.registry.now().UTC()
	}
	encoded, err := EncodePayload(snapshot)
	if err != nil {
		return err
	}

	tx, err := s.registry.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM stores WHERE name = ?`, s.name).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrStoreClosed
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO entries (store, identity, payload, stored_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(store, identity) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at`,
		s.name,
		string(id),
		encoded,
		snapshot.StoredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) Len(ctx context.Context) (int, error) {
	var count int
	err := s.registry.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entries WHERE store = ?`, s.name).Scan(&count)
	return count, err
}
