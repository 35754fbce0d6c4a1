package storage

import "time"

type Record struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// ChangeEvent is emitted after every committed Put or Delete.
type ChangeEvent struct {
	Key     string
	Value   []byte
	Deleted bool
}

type Backup struct {
	ID        int64
	CreatedAt time.Time
	Count     int
}
