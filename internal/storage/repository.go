package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: not found")

// Store is an ordered key-value store that reports every committed change.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Record, error)
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
}

// BackupStore keeps point-in-time copies of the whole store. Restoring is
// left to the caller so the writes go through Store and emit change events.
type BackupStore interface {
	SaveBackup(ctx context.Context) (Backup, error)
	LatestBackup(ctx context.Context) (Backup, error)
	LoadBackup(ctx context.Context, id int64) ([]Record, error)
}
