package http

import (
	"net/http"

	"github.com/gorilla/websocket"

	"novachat/internal/contacts"
	"novachat/internal/directory"
	"novachat/internal/domain"
	"novachat/internal/messaging"
	"novachat/internal/observability/metrics"
	"novachat/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect straight from the app origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWatch is the remote form of the store's live subscription: it
// pushes the full current result set of one view as a JSON frame on every
// change. Views: users (directory minus self), self (own record),
// messages (one conversation).
func (h *handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	view := qp.Get("view")

	var subscribe func(fn func(any)) (store.CancelFunc, error)
	switch view {
	case "users":
		self := qp.Get("self")
		if self == "" {
			writeError(w, http.StatusBadRequest, "self required")
			return
		}
		dir := directory.New(h.store, h.log)
		subscribe = func(fn func(any)) (store.CancelFunc, error) {
			return dir.Subscribe(r.Context(), self, func(ids []domain.Identity) { fn(ids) })
		}
	case "self":
		user := qp.Get("user")
		if user == "" {
			writeError(w, http.StatusBadRequest, "user required")
			return
		}
		mgr := contacts.New(h.store, h.log)
		subscribe = func(fn func(any)) (store.CancelFunc, error) {
			return mgr.SubscribeOwn(r.Context(), user, func(id domain.Identity) { fn(id) })
		}
	case "messages":
		self, peer := qp.Get("self"), qp.Get("peer")
		if self == "" || peer == "" {
			writeError(w, http.StatusBadRequest, "self and peer required")
			return
		}
		stream := messaging.NewStream(h.store, h.log)
		subscribe = func(fn func(any)) (store.CancelFunc, error) {
			return stream.Subscribe(r.Context(), self, peer, func(msgs []domain.Message) { fn(msgs) })
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown view")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("watch upgrade failed", "error", err)
		return
	}

	metrics.WatchSessionsActive.WithLabelValues(view).Inc()
	defer metrics.WatchSessionsActive.WithLabelValues(view).Dec()

	// Snapshots replace each other wholesale, so a slow client may skip
	// intermediate frames but never sees them out of order.
	updates := make(chan any, 1)
	push := func(v any) {
		for {
			select {
			case updates <- v:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	}

	cancel, err := subscribe(push)
	if err != nil {
		h.log.Warn("watch subscribe failed", "view", view, "error", err)
		_ = conn.Close()
		return
	}
	defer cancel()

	// The only reads expected are the client closing the socket.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			_ = conn.Close()
			return
		case v := <-updates:
			if err := conn.WriteJSON(v); err != nil {
				_ = conn.Close()
				return
			}
			metrics.WatchSnapshotsPushedTotal.WithLabelValues(view).Inc()
		}
	}
}
