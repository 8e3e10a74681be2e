package trigger

import (
	"container/list"
	"sync"
)

const defaultDedupeSize = 10000

// Deduper remembers the most recent push event ids. When full, the oldest
// id is forgotten first.
type Deduper struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // oldest at the front
	seen    map[string]*list.Element
}

// NewDeduper creates a deduper holding at most maxSize ids.
func NewDeduper(maxSize int) *Deduper {
	if maxSize <= 0 {
		maxSize = defaultDedupeSize
	}
	return &Deduper{
		maxSize: maxSize,
		order:   list.New(),
		seen:    make(map[string]*list.Element, maxSize),
	}
}

// SeenAndRecord reports whether id was already recorded and records it if not.
func (d *Deduper) SeenAndRecord(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

// Unrecord forgets id, so a redelivery after a failed submit is processed.
func (d *Deduper) Unrecord(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

// Size returns the number of remembered ids.
func (d *Deduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
