package store

import (
	"context"
	"log/slog"
	"sync"
)

// hub fans writes out to watchers. Each watcher gets its own delivery
// goroutine and a latest-wins slot, so a slow consumer only ever skips
// intermediate snapshots, never reorders them.
type hub struct {
	log   *slog.Logger
	query func(Query) ([]Snapshot, error)

	mu     sync.Mutex
	subs   map[uint64]*watcher
	nextID uint64
	seq    uint64
	online bool
}

type watcher struct {
	q       Query
	fn      func([]Snapshot)
	pending chan []Snapshot
	done    chan struct{}
	once    sync.Once

	// seq is the stamp of the newest snapshot handed to pending. A delivery
	// whose query outlived a later-stamped one must not overwrite it.
	mu  sync.Mutex
	seq uint64
}

func newHub(log *slog.Logger, query func(Query) ([]Snapshot, error)) *hub {
	if log == nil {
		log = slog.Default()
	}
	return &hub{
		log:    log,
		query:  query,
		subs:   make(map[uint64]*watcher),
		online: true,
	}
}

func (h *hub) watch(ctx context.Context, q Query, fn func([]Snapshot)) CancelFunc {
	w := &watcher{
		q:       q,
		fn:      fn,
		pending: make(chan []Snapshot, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = w
	online := h.online
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-w.done:
				return
			case snaps := <-w.pending:
				w.fn(snaps)
			}
		}
	}()

	cancel := func() {
		w.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(w.done)
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-w.done:
			}
		}()
	}

	// Initial delivery. While offline the watcher stays registered and gets
	// the current state once connectivity returns.
	if online {
		h.deliver(w)
	}

	return cancel
}

// broadcast recomputes and redelivers the result set of every watcher on
// the collection. Call without holding backend data locks.
func (h *hub) broadcast(collection string) {
	h.mu.Lock()
	if !h.online {
		h.mu.Unlock()
		return
	}
	targets := make([]*watcher, 0, len(h.subs))
	for _, w := range h.subs {
		if w.q.Collection == collection {
			targets = append(targets, w)
		}
	}
	h.mu.Unlock()

	for _, w := range targets {
		h.deliver(w)
	}
}

func (h *hub) deliver(w *watcher) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	snaps, err := h.query(w.q)
	if err != nil {
		// Watchers keep their last good state on query errors.
		h.log.Warn("watch query failed", "collection", w.q.Collection, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if seq < w.seq {
		return
	}
	w.seq = seq
	for {
		select {
		case w.pending <- snaps:
			return
		default:
			select {
			case <-w.pending:
			default:
			}
		}
	}
}

// setOnline toggles delivery. Going online replays the current state of
// every watcher once.
func (h *hub) setOnline(online bool) {
	h.mu.Lock()
	was := h.online
	h.online = online
	var targets []*watcher
	if online && !was {
		targets = make([]*watcher, 0, len(h.subs))
		for _, w := range h.subs {
			targets = append(targets, w)
		}
	}
	h.mu.Unlock()

	for _, w := range targets {
		h.deliver(w)
	}
}
