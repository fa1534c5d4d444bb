package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-process backend. It backs tests and the offline half of
// connectivity scenarios: SetConnected(false) suspends watch delivery and
// makes direct reads fail with ErrUnavailable, SetConnected(true) replays
// the current state of every watcher once.
type Memory struct {
	mu     sync.RWMutex
	cols   map[string]map[string]Doc
	online bool

	hub *hub
}

var _ Adapter = (*Memory)(nil)

func NewMemory(log *slog.Logger) *Memory {
	m := &Memory{
		cols:   make(map[string]map[string]Doc),
		online: true,
	}
	m.hub = newHub(log, m.snapshots)
	return m
}

// SetConnected simulates connectivity loss and recovery.
func (m *Memory) SetConnected(online bool) {
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()
	m.hub.setOnline(online)
}

func (m *Memory) Get(ctx context.Context, collection, key string) (Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.online {
		return nil, ErrUnavailable
	}
	doc, ok := m.cols[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *Memory) Create(ctx context.Context, collection, key string, doc Doc) error {
	m.mu.Lock()
	if !m.online {
		m.mu.Unlock()
		return ErrUnavailable
	}
	col := m.cols[collection]
	if col == nil {
		col = make(map[string]Doc)
		m.cols[collection] = col
	}
	if _, ok := col[key]; ok {
		m.mu.Unlock()
		return ErrAlreadyExists
	}
	col[key] = cloneDoc(doc)
	m.mu.Unlock()

	m.hub.broadcast(collection)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, key string, muts ...Mutation) error {
	m.mu.Lock()
	if !m.online {
		m.mu.Unlock()
		return ErrUnavailable
	}
	doc, ok := m.cols[collection][key]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	apply(doc, muts)
	m.mu.Unlock()

	m.hub.broadcast(collection)
	return nil
}

func (m *Memory) Append(ctx context.Context, collection string, doc Doc) (string, error) {
	m.mu.Lock()
	if !m.online {
		m.mu.Unlock()
		return "", ErrUnavailable
	}
	col := m.cols[collection]
	if col == nil {
		col = make(map[string]Doc)
		m.cols[collection] = col
	}
	id := ulid.Make().String()
	col[id] = cloneDoc(doc)
	m.mu.Unlock()

	m.hub.broadcast(collection)
	return id, nil
}

func (m *Memory) Watch(ctx context.Context, q Query, fn func([]Snapshot)) (CancelFunc, error) {
	return m.hub.watch(ctx, q, fn), nil
}

func (m *Memory) snapshots(q Query) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := make([]Snapshot, 0)
	for key, doc := range m.cols[q.Collection] {
		s := Snapshot{ID: key, Data: cloneDoc(doc)}
		if q.matches(s) {
			snaps = append(snaps, s)
		}
	}
	sortSnapshots(snaps, q)
	return snaps, nil
}

func cloneDoc(doc Doc) Doc {
	out := make(Doc, len(doc))
	for k, v := range doc {
		if arr, ok := v.([]any); ok {
			out[k] = append([]any(nil), arr...)
			continue
		}
		out[k] = v
	}
	return out
}
