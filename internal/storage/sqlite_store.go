package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/remindd/internal/feed"
)

const (
	sqliteTimeLayout = time.RFC3339Nano
	backupsRetained  = 5
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	// writeMu keeps change events in commit order.
	writeMu sync.Mutex
	changes feed.Hub[ChangeEvent]
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection avoids SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, value, updated_at FROM records WHERE key = ?`, key)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("storage: empty key")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, mustTime(s.now()),
	)
	if err != nil {
		return err
	}
	s.changes.Publish(ChangeEvent{Key: key, Value: append([]byte(nil), value...)})
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	s.changes.Publish(ChangeEvent{Key: key, Deleted: true})
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM records ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Watch streams change events until ctx is done.
func (s *SQLiteStore) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	return s.changes.Subscribe(ctx), nil
}

func (s *SQLiteStore) SaveBackup(ctx context.Context) (Backup, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Backup{}, err
	}
	defer func() { _ = tx.Rollback() }()

	created := s.now()
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return Backup{}, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO backups (created_at, record_count) VALUES (?, ?)`, mustTime(created), count)
	if err != nil {
		return Backup{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Backup{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backup_records (backup_id, key, value, updated_at)
		SELECT ?, key, value, updated_at FROM records`, id); err != nil {
		return Backup{}, fmt.Errorf("copy records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM backups WHERE id NOT IN (SELECT id FROM backups ORDER BY id DESC LIMIT ?)`, backupsRetained); err != nil {
		return Backup{}, fmt.Errorf("prune backups: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM backup_records WHERE backup_id NOT IN (SELECT id FROM backups)`); err != nil {
		return Backup{}, fmt.Errorf("prune backup records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Backup{}, err
	}
	return Backup{ID: id, CreatedAt: created.UTC(), Count: count}, nil
}

func (s *SQLiteStore) LatestBackup(ctx context.Context) (Backup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, record_count FROM backups ORDER BY id DESC LIMIT 1`)
	var (
		out     Backup
		created string
	)
	if err := row.Scan(&out.ID, &created, &out.Count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Backup{}, ErrNotFound
		}
		return Backup{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return Backup{}, err
	}
	out.CreatedAt = createdAt
	return out, nil
}

func (s *SQLiteStore) LoadBackup(ctx context.Context, id int64) ([]Record, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backups WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, updated_at FROM backup_records WHERE backup_id = ? ORDER BY key`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		out     Record
		updated string
	)
	if err := s.Scan(&out.Key, &out.Value, &updated); err != nil {
		return Record{}, err
	}
	updatedAt, err := parseRequiredTime(updated)
	if err != nil {
		return Record{}, err
	}
	out.UpdatedAt = updatedAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
