package remote

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/feed"
)

// Memory is an in-process Store. It enforces the same rules as GormStore and
// lets callers inject faults.
type Memory struct {
	// commitMu orders snapshot delivery with commit order.
	commitMu sync.Mutex
	mu       sync.Mutex
	docs     map[string][]byte
	paths    map[string]Path
	fault    func(method string) error

	owned map[string]*feed.Hub[Snapshot]
	index map[string]*feed.Hub[Snapshot]
}

func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string][]byte),
		paths: make(map[string]Path),
		owned: make(map[string]*feed.Hub[Snapshot]),
		index: make(map[string]*feed.Hub[Snapshot]),
	}
}

// SetFault makes every call consult fn first; a non-nil result is returned
// instead of performing the call. Pass nil to clear.
func (m *Memory) SetFault(fn func(method string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

func (m *Memory) GetOwned(ctx context.Context, uid, taskID string) (Document, error) {
	return m.get("GetOwned", OwnedPath(uid, taskID))
}

func (m *Memory) GetShared(ctx context.Context, taskID string) (Document, error) {
	return m.get("GetShared", SharedPath(taskID))
}

func (m *Memory) ListOwned(ctx context.Context, uid string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListOwned"); err != nil {
		return nil, err
	}
	return m.listLocked(CollectionUsers, uid), nil
}

func (m *Memory) ListIndex(ctx context.Context, recipient string) ([]IndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListIndex"); err != nil {
		return nil, err
	}
	docs := m.listLocked(CollectionSharingIndex, recipient)
	out := make([]IndexEntry, 0, len(docs))
	for _, d := range docs {
		entry, err := DecodeIndexEntry(d.ID, d.Data)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *Memory) Commit(ctx context.Context, actor string, ops []Op) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	m.mu.Lock()
	if err := m.check("Commit"); err != nil {
		m.mu.Unlock()
		return err
	}

	staged := make(map[string][]byte)
	touched := make(map[string]Path)
	view := func(p Path) []byte {
		key := p.String()
		if doc, ok := staged[key]; ok {
			return doc
		}
		return m.docs[key]
	}
	for _, op := range ops {
		existing := view(op.Path)
		if err := authorize(actor, op, existing, view); err != nil {
			m.mu.Unlock()
			return err
		}
		next, err := apply(op, existing)
		if err != nil {
			m.mu.Unlock()
			return apperr.Wrap(apperr.KindValidation, "commit", err)
		}
		staged[op.Path.String()] = next
		touched[op.Path.String()] = op.Path
	}

	events := make(map[*feed.Hub[Snapshot]][]Change)
	for key, p := range touched {
		doc := staged[key]
		if doc == nil {
			delete(m.docs, key)
			delete(m.paths, key)
		} else {
			m.docs[key] = doc
			m.paths[key] = p
		}
		if hub := m.hubLocked(p); hub != nil {
			events[hub] = append(events[hub], Change{ID: p.ID, Data: doc, Deleted: doc == nil})
		}
	}
	m.mu.Unlock()

	for hub, changes := range events {
		sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
		hub.Publish(Snapshot{Changes: changes})
	}
	return nil
}

func (m *Memory) WatchOwned(ctx context.Context, uid string) (<-chan Snapshot, error) {
	return m.watch(ctx, "WatchOwned", m.owned, CollectionUsers, uid)
}

func (m *Memory) WatchIndex(ctx context.Context, recipient string) (<-chan Snapshot, error) {
	return m.watch(ctx, "WatchIndex", m.index, CollectionSharingIndex, recipient)
}

// Paths lists every stored document path, sorted.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.docs))
	for key := range m.docs {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) watch(ctx context.Context, method string, hubs map[string]*feed.Hub[Snapshot], collection, parent string) (<-chan Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(method); err != nil {
		return nil, err
	}
	hub, ok := hubs[parent]
	if !ok {
		hub = &feed.Hub[Snapshot]{}
		hubs[parent] = hub
	}
	docs := m.listLocked(collection, parent)
	initial := Snapshot{Initial: true, Changes: make([]Change, 0, len(docs))}
	for _, d := range docs {
		initial.Changes = append(initial.Changes, Change{ID: d.ID, Data: d.Data})
	}
	return hub.Subscribe(ctx, initial), nil
}

func (m *Memory) get(method string, p Path) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(method); err != nil {
		return Document{}, err
	}
	doc, ok := m.docs[p.String()]
	if !ok {
		return Document{}, notFound(method, p)
	}
	return Document{ID: p.ID, Data: append([]byte(nil), doc...)}, nil
}

func (m *Memory) listLocked(collection, parent string) []Document {
	out := make([]Document, 0)
	for key, p := range m.paths {
		if p.Collection == collection && p.Parent == parent {
			out = append(out, Document{ID: p.ID, Data: append([]byte(nil), m.docs[key]...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].ID, out[j].ID) < 0 })
	return out
}

func (m *Memory) hubLocked(p Path) *feed.Hub[Snapshot] {
	switch p.Collection {
	case CollectionUsers:
		return m.owned[p.Parent]
	case CollectionSharingIndex:
		return m.index[p.Parent]
	default:
		return nil
	}
}

func (m *Memory) check(method string) error {
	if m.fault == nil {
		return nil
	}
	return m.fault(method)
}
