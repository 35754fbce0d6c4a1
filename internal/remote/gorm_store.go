package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/feed"
)

const revisionCounter = "revision"

// documentRow stores every collection in one table. Deleted documents stay
// behind as markers so pollers in other processes observe the deletion.
type documentRow struct {
	Path       string `gorm:"primaryKey"`
	Collection string `gorm:"index:idx_documents_parent,priority:1;not null"`
	Parent     string `gorm:"index:idx_documents_parent,priority:2;not null"`
	DocID      string `gorm:"not null"`
	Data       string
	Deleted    bool  `gorm:"not null;default:false"`
	Revision   int64 `gorm:"index;not null"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

type counterRow struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

func (counterRow) TableName() string { return "store_counters" }

type GormOptions struct {
	PollInterval time.Duration
	Logger       *slog.Logger
}

// GormStore is a Store backed by a SQL database through gorm. Watchers poll
// by revision and are woken immediately by commits made through this value.
type GormStore struct {
	db     *gorm.DB
	poll   time.Duration
	logger *slog.Logger
	wake   feed.Hub[struct{}]
}

// OpenGorm opens a remote store. driver is "sqlite" or "postgres".
func OpenGorm(driver, dsn string, opts GormOptions) (*GormStore, error) {
	var dialector gorm.Dialector
	single := false
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
		single = true
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("remote: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnectivity, "open remote", err)
	}
	if single {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGormStore(db, opts)
}

func NewGormStore(db *gorm.DB, opts GormOptions) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("remote: nil db")
	}
	if err := db.AutoMigrate(&documentRow{}, &counterRow{}); err != nil {
		return nil, fmt.Errorf("remote: migrate: %w", err)
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&counterRow{Name: revisionCounter}).Error; err != nil {
		return nil, fmt.Errorf("remote: init counter: %w", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &GormStore{db: db, poll: opts.PollInterval, logger: opts.Logger}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) GetOwned(ctx context.Context, uid, taskID string) (Document, error) {
	return s.get(ctx, "GetOwned", OwnedPath(uid, taskID))
}

func (s *GormStore) GetShared(ctx context.Context, taskID string) (Document, error) {
	return s.get(ctx, "GetShared", SharedPath(taskID))
}

func (s *GormStore) ListOwned(ctx context.Context, uid string) ([]Document, error) {
	rows, err := s.list(ctx, CollectionUsers, uid)
	if err != nil {
		return nil, classify("ListOwned", err)
	}
	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, Document{ID: r.DocID, Data: []byte(r.Data)})
	}
	return out, nil
}

func (s *GormStore) ListIndex(ctx context.Context, recipient string) ([]IndexEntry, error) {
	rows, err := s.list(ctx, CollectionSharingIndex, recipient)
	if err != nil {
		return nil, classify("ListIndex", err)
	}
	out := make([]IndexEntry, 0, len(rows))
	for _, r := range rows {
		entry, decodeErr := DecodeIndexEntry(r.DocID, []byte(r.Data))
		if decodeErr != nil {
			s.logger.Warn("skipping malformed index entry", "path", r.Path, "error", decodeErr)
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *GormStore) Commit(ctx context.Context, actor string, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base, err := reserveRevisions(tx, len(ops))
		if err != nil {
			return err
		}
		var lookupErr error
		view := func(p Path) []byte {
			doc, readErr := readLive(tx, p)
			if readErr != nil {
				lookupErr = readErr
			}
			return doc
		}
		now := time.Now().UTC()
		for i, op := range ops {
			existing, readErr := readLive(tx, op.Path)
			if readErr != nil {
				return readErr
			}
			if err := authorize(actor, op, existing, view); err != nil {
				return err
			}
			if lookupErr != nil {
				return lookupErr
			}
			next, applyErr := apply(op, existing)
			if applyErr != nil {
				return apperr.Wrap(apperr.KindValidation, "commit", applyErr)
			}
			row := documentRow{
				Path:       op.Path.String(),
				Collection: op.Path.Collection,
				Parent:     op.Path.Parent,
				DocID:      op.Path.ID,
				Data:       string(next),
				Deleted:    next == nil,
				Revision:   base + int64(i) + 1,
				UpdatedAt:  now,
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify("Commit", err)
	}
	s.wake.Publish(struct{}{})
	return nil
}

func (s *GormStore) WatchOwned(ctx context.Context, uid string) (<-chan Snapshot, error) {
	return s.watch(ctx, CollectionUsers, uid)
}

func (s *GormStore) WatchIndex(ctx context.Context, recipient string) (<-chan Snapshot, error) {
	return s.watch(ctx, CollectionSharingIndex, recipient)
}

func (s *GormStore) watch(ctx context.Context, collection, parent string) (<-chan Snapshot, error) {
	var rev int64
	if err := s.db.WithContext(ctx).Model(&counterRow{}).Where("name = ?", revisionCounter).
		Select("value").Scan(&rev).Error; err != nil {
		return nil, classify("watch", err)
	}
	rows, err := s.list(ctx, collection, parent)
	if err != nil {
		return nil, classify("watch", err)
	}
	initial := Snapshot{Initial: true, Changes: make([]Change, 0, len(rows))}
	for _, r := range rows {
		initial.Changes = append(initial.Changes, Change{ID: r.DocID, Data: []byte(r.Data)})
		if r.Revision > rev {
			rev = r.Revision
		}
	}

	wake := s.wake.Subscribe(ctx)
	out := make(chan Snapshot)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()

		if !send(ctx, out, initial) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-wake:
			}
			var changed []documentRow
			err := s.db.WithContext(ctx).
				Where("collection = ? AND parent = ? AND revision > ?", collection, parent, rev).
				Order("revision").Find(&changed).Error
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("remote poll failed", "collection", collection, "parent", parent, "error", err)
				continue
			}
			if len(changed) == 0 {
				continue
			}
			snap := Snapshot{Changes: make([]Change, 0, len(changed))}
			for _, r := range changed {
				snap.Changes = append(snap.Changes, Change{ID: r.DocID, Data: liveData(r), Deleted: r.Deleted})
				rev = r.Revision
			}
			if !send(ctx, out, snap) {
				return
			}
		}
	}()
	return out, nil
}

func (s *GormStore) get(ctx context.Context, method string, p Path) (Document, error) {
	doc, err := readLive(s.db.WithContext(ctx), p)
	if err != nil {
		return Document{}, classify(method, err)
	}
	if doc == nil {
		return Document{}, notFound(method, p)
	}
	return Document{ID: p.ID, Data: doc}, nil
}

func (s *GormStore) list(ctx context.Context, collection, parent string) ([]documentRow, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND parent = ? AND deleted = ?", collection, parent, false).
		Order("doc_id").Find(&rows).Error
	return rows, err
}

func reserveRevisions(tx *gorm.DB, n int) (int64, error) {
	// The UPDATE takes the counter row lock, so revisions follow commit order.
	if err := tx.Model(&counterRow{}).Where("name = ?", revisionCounter).
		Update("value", gorm.Expr("value + ?", n)).Error; err != nil {
		return 0, err
	}
	var value int64
	if err := tx.Model(&counterRow{}).Where("name = ?", revisionCounter).Select("value").Scan(&value).Error; err != nil {
		return 0, err
	}
	return value - int64(n), nil
}

func readLive(db *gorm.DB, p Path) ([]byte, error) {
	var row documentRow
	err := db.Where("path = ?", p.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return liveData(row), nil
}

func liveData(r documentRow) []byte {
	if r.Deleted {
		return nil
	}
	return []byte(r.Data)
}

func send(ctx context.Context, out chan<- Snapshot, snap Snapshot) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindConnectivity, op, err)
	}
	return apperr.Wrap(apperr.KindUnavailable, op, err)
}
