package reconcile

import (
	"sync"
	"time"

	"github.com/sandeepkv93/remindd/internal/storage"
)

// expectations records local writes the reconciler is about to make so the
// matching change events can be told apart from user edits.
type expectations struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string][]expected
}

type expected struct {
	value   string
	deleted bool
	expires time.Time
}

func newExpectations(ttl time.Duration, now func() time.Time) *expectations {
	return &expectations{ttl: ttl, now: now, pending: make(map[string][]expected)}
}

func (e *expectations) expect(key string, value []byte) {
	e.add(key, expected{value: string(value)})
}

func (e *expectations) expectDelete(key string) {
	e.add(key, expected{deleted: true})
}

func (e *expectations) add(key string, x expected) {
	e.mu.Lock()
	defer e.mu.Unlock()
	x.expires = e.now().Add(e.ttl)
	e.pending[key] = append(e.live(key), x)
}

// forget drops an expectation whose write never happened.
func (e *expectations) forget(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.live(key)
	if len(list) <= 1 {
		delete(e.pending, key)
		return
	}
	e.pending[key] = list[:len(list)-1]
}

// consume reports whether ev was expected, removing the match.
func (e *expectations) consume(ev storage.ChangeEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.live(ev.Key)
	for i, x := range list {
		if x.deleted != ev.Deleted {
			continue
		}
		if !x.deleted && x.value != string(ev.Value) {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(e.pending, ev.Key)
		} else {
			e.pending[ev.Key] = list
		}
		return true
	}
	if len(list) == 0 {
		delete(e.pending, ev.Key)
	} else {
		e.pending[ev.Key] = list
	}
	return false
}

func (e *expectations) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for key := range e.pending {
		n += len(e.live(key))
	}
	return n
}

func (e *expectations) live(key string) []expected {
	now := e.now()
	list := e.pending[key]
	out := list[:0]
	for _, x := range list {
		if now.Before(x.expires) {
			out = append(out, x)
		}
	}
	return out
}

// recentPushes remembers the modification time of each task we pushed for a
// short window, so the remote echo of that push is not applied back.
type recentPushes struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	marks  map[string]pushMark
}

type pushMark struct {
	modified time.Time
	expires  time.Time
}

func newRecentPushes(window time.Duration, now func() time.Time) *recentPushes {
	return &recentPushes{window: window, now: now, marks: make(map[string]pushMark)}
}

func (p *recentPushes) mark(id string, modified time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[id] = pushMark{modified: modified, expires: p.now().Add(p.window)}
}

func (p *recentPushes) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.marks, id)
}

// covers reports whether a remote version modified at modified is the echo
// of, or older than, a push still inside the window.
func (p *recentPushes) covers(id string, modified time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.marks[id]
	if !ok {
		return false
	}
	if !p.now().Before(m.expires) {
		delete(p.marks, id)
		return false
	}
	return !modified.After(m.modified)
}
