// Package dedupe tracks sample ids so retried uploads are scored once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen sample IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen, recording it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a sample rejected downstream (e.g. queue full) can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// window is a bounded Deduper that forgets the oldest id first.
// maxSize <= 0 disables eviction.
type window struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = newest
	index   map[string]*list.Element
}

// NewInMemoryDeduper creates an in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	w := &window{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(w)
	}
	w.order = list.New()
	w.index = make(map[string]*list.Element)
	return w
}

func (w *window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.index[id]; ok {
		return true
	}
	if w.maxSize > 0 && w.order.Len() >= w.maxSize {
		oldest := w.order.Back()
		w.order.Remove(oldest)
		delete(w.index, oldest.Value.(string))
	}
	w.index[id] = w.order.PushFront(id)
	return false
}

func (w *window) Unrecord(_ context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if el, ok := w.index[id]; ok {
		w.order.Remove(el)
		delete(w.index, id)
	}
}

func (w *window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.order.Len())
}
