// Package contacts maintains the caller's own identity record and its set
// of saved peers.
package contacts

import (
	"context"
	"log/slog"

	"novachat/internal/domain"
	"novachat/internal/store"
)

type Manager struct {
	store store.Adapter
	log   *slog.Logger
}

func New(st store.Adapter, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: st, log: log}
}

// SubscribeOwn invokes fn with the caller's own record on every change, so
// saved-contact edits made anywhere show up without a refetch.
func (m *Manager) SubscribeOwn(ctx context.Context, username string, fn func(domain.Identity)) (store.CancelFunc, error) {
	username = domain.NormalizeUsername(username)
	q := store.Query{
		Collection: domain.UsersCollection,
		Key:        username,
	}
	return m.store.Watch(ctx, q, func(snaps []store.Snapshot) {
		if len(snaps) == 0 {
			return
		}
		var id domain.Identity
		if err := store.Decode(snaps[0].Data, &id); err != nil {
			m.log.Warn("skipping undecodable identity", "username", username, "error", err)
			return
		}
		if id.SavedContacts == nil {
			id.SavedContacts = []string{}
		}
		fn(id)
	})
}

// Toggle adds or removes peer from the caller's saved set, driven by the
// caller's last-known saved flag. Both directions are idempotent, so a
// stale flag cannot corrupt the set; the live subscription is what
// eventually corrects the caller's view.
func (m *Manager) Toggle(ctx context.Context, own, peer string, saved bool) error {
	own = domain.NormalizeUsername(own)
	peer = domain.NormalizeUsername(peer)
	if own == "" || peer == "" || own == peer {
		return domain.ErrInvalidInput
	}
	var mut store.Mutation
	if saved {
		mut = store.SetRemove(domain.SavedContactsField, peer)
	} else {
		mut = store.SetAdd(domain.SavedContactsField, peer)
	}
	return m.store.Update(ctx, domain.UsersCollection, own, mut)
}
