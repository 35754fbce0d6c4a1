package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

const (
	CollectionUsers        = "users"
	CollectionSharedTasks  = "shared_tasks"
	CollectionSharingIndex = "sharing_index"
)

var ErrInvalidPath = errors.New("remote: invalid document path")

// Path addresses one document. Parent is the owner uid for users/, the
// recipient for sharing_index/ and empty for shared_tasks/.
type Path struct {
	Collection string
	Parent     string
	ID         string
}

func OwnedPath(uid, taskID string) Path {
	return Path{Collection: CollectionUsers, Parent: uid, ID: taskID}
}

func SharedPath(taskID string) Path {
	return Path{Collection: CollectionSharedTasks, ID: taskID}
}

func IndexPath(recipient, taskID string) Path {
	return Path{Collection: CollectionSharingIndex, Parent: recipient, ID: taskID}
}

func (p Path) String() string {
	switch p.Collection {
	case CollectionUsers:
		return fmt.Sprintf("users/%s/tasks/%s", p.Parent, p.ID)
	case CollectionSharingIndex:
		return fmt.Sprintf("sharing_index/%s/shared_tasks/%s", p.Parent, p.ID)
	default:
		return fmt.Sprintf("%s/%s", p.Collection, p.ID)
	}
}

func (p Path) Validate() error {
	if strings.TrimSpace(p.ID) == "" || strings.Contains(p.ID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p.String())
	}
	switch p.Collection {
	case CollectionUsers, CollectionSharingIndex:
		if strings.TrimSpace(p.Parent) == "" || strings.Contains(p.Parent, "/") {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p.String())
		}
	case CollectionSharedTasks:
		if p.Parent != "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p.String())
		}
	default:
		return fmt.Errorf("%w: unknown collection %q", ErrInvalidPath, p.Collection)
	}
	return nil
}

type Document struct {
	ID   string
	Data []byte
}

type OpKind int

const (
	OpSet OpKind = iota
	OpMerge
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpMerge:
		return "merge"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type Op struct {
	Kind OpKind
	Path Path
	Data []byte
}

func Set(p Path, data []byte) Op   { return Op{Kind: OpSet, Path: p, Data: data} }
func Merge(p Path, data []byte) Op { return Op{Kind: OpMerge, Path: p, Data: data} }
func Delete(p Path) Op             { return Op{Kind: OpDelete, Path: p} }

type Change struct {
	ID      string
	Data    []byte
	Deleted bool
}

type Snapshot struct {
	Initial bool
	Changes []Change
}

// Store is the remote document store.
type Store interface {
	GetOwned(ctx context.Context, uid, taskID string) (Document, error)
	ListOwned(ctx context.Context, uid string) ([]Document, error)
	GetShared(ctx context.Context, taskID string) (Document, error)
	ListIndex(ctx context.Context, recipient string) ([]IndexEntry, error)

	// Commit applies ops atomically on behalf of actor. Any rule violation
	// rejects the whole batch with a permission error.
	Commit(ctx context.Context, actor string, ops []Op) error

	WatchOwned(ctx context.Context, uid string) (<-chan Snapshot, error)
	WatchIndex(ctx context.Context, recipient string) (<-chan Snapshot, error)
}

// IndexEntry is the lightweight projection a recipient uses to find a shared task.
type IndexEntry struct {
	TaskID    string    `json:"taskId"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (e IndexEntry) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeIndexEntry decodes an index document, taking the task id from the
// document key when the body lacks one.
func DecodeIndexEntry(key string, data []byte) (IndexEntry, error) {
	var e IndexEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return IndexEntry{}, apperr.Wrap(apperr.KindParse, "decode index entry", err)
	}
	if e.TaskID == "" {
		e.TaskID = key
	}
	if e.TaskID == "" || e.OwnerID == "" {
		return IndexEntry{}, apperr.New(apperr.KindValidation, "decode index entry", "taskId and ownerId are required")
	}
	return e, nil
}

func notFound(op string, p Path) error {
	return apperr.Newf(apperr.KindNotFound, op, "%s does not exist", p)
}
