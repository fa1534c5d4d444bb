// Package directory maintains a live view of every registered identity
// except the caller's own, newest first.
package directory

import (
	"context"
	"log/slog"

	"novachat/internal/domain"
	"novachat/internal/store"
)

type Directory struct {
	store store.Adapter
	log   *slog.Logger
}

func New(st store.Adapter, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{store: st, log: log}
}

// Subscribe invokes fn with the full, self-filtered directory on every
// change. The self filter re-runs on each delivery because the underlying
// set keeps changing under a fixed subscriber.
func (d *Directory) Subscribe(ctx context.Context, self string, fn func([]domain.Identity)) (store.CancelFunc, error) {
	self = domain.NormalizeUsername(self)
	q := store.Query{
		Collection: domain.UsersCollection,
		OrderBy:    domain.CreatedAtField,
		Desc:       true,
	}
	return d.store.Watch(ctx, q, func(snaps []store.Snapshot) {
		out := make([]domain.Identity, 0, len(snaps))
		for _, s := range snaps {
			var id domain.Identity
			if err := store.Decode(s.Data, &id); err != nil {
				d.log.Warn("skipping undecodable identity", "key", s.ID, "error", err)
				continue
			}
			if id.Username == self {
				continue
			}
			if id.SavedContacts == nil {
				id.SavedContacts = []string{}
			}
			out = append(out, id)
		}
		fn(out)
	})
}
