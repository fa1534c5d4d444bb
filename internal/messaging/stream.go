// Package messaging carries the conversation stream and the publisher. A
// stream watches the single broad "any message involving me" query and
// narrows it client-side to one partner, so switching conversations is
// just cancelling one watch and opening another.
package messaging

import (
	"context"
	"log/slog"

	"novachat/internal/domain"
	"novachat/internal/store"
)

type Stream struct {
	store store.Adapter
	log   *slog.Logger
}

func NewStream(st store.Adapter, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	return &Stream{store: st, log: log}
}

// Subscribe invokes fn with the full ordered conversation between self and
// peer on every delivery. fn runs on every delivery including an empty
// first one, which is how callers tell "no messages yet" apart from "not
// yet loaded".
func (s *Stream) Subscribe(ctx context.Context, self, peer string, fn func([]domain.Message)) (store.CancelFunc, error) {
	self = domain.NormalizeUsername(self)
	peer = domain.NormalizeUsername(peer)
	q := store.Query{
		Collection: domain.MessagesCollection,
		Contains:   store.Contains{Field: domain.ParticipantsField, Value: self},
	}
	return s.store.Watch(ctx, q, func(snaps []store.Snapshot) {
		msgs := make([]domain.Message, 0, len(snaps))
		for _, snap := range snaps {
			var m domain.Message
			if err := store.Decode(snap.Data, &m); err != nil {
				s.log.Warn("skipping undecodable message", "id", snap.ID, "error", err)
				continue
			}
			m.ID = snap.ID
			if !m.Between(self, peer) {
				continue
			}
			msgs = append(msgs, m)
		}
		domain.SortMessages(msgs)
		fn(msgs)
	})
}
