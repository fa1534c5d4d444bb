// Package service implements the primary service's auth operations against
// the shared store. The fallback path in internal/session mirrors these
// semantics client-side; keep the two in step.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"novachat/internal/domain"
	"novachat/internal/store"
)

type Service struct {
	store store.Adapter
	log   *slog.Logger
	now   func() time.Time
}

func New(st store.Adapter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, log: log, now: time.Now}
}

func (s *Service) CheckUser(ctx context.Context, username string) (bool, error) {
	u := domain.NormalizeUsername(username)
	if u == "" {
		return false, domain.ErrInvalidInput
	}
	_, err := s.store.Get(ctx, domain.UsersCollection, u)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Login verifies the credential, migrating legacy records in place: a
// record with no stored credential adopts the supplied one. Unlike the
// client-side fallback the migration write happens before the response, so
// a success here is always durable.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.Identity, error) {
	u := domain.NormalizeUsername(username)
	if u == "" || password == "" {
		return nil, domain.ErrInvalidInput
	}

	doc, err := s.store.Get(ctx, domain.UsersCollection, u)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	stored, _ := doc[domain.PasswordField].(string)
	if stored == "" {
		if err := s.store.Update(ctx, domain.UsersCollection, u,
			store.Set(domain.PasswordField, password)); err != nil {
			return nil, err
		}
		s.log.Info("legacy credential migrated", "username", u)
		return identityFromDoc(doc)
	}
	if stored != password {
		return nil, domain.ErrInvalidCredential
	}
	return identityFromDoc(doc)
}

func (s *Service) Register(ctx context.Context, username, password, avatar string) (*domain.Identity, error) {
	u := domain.NormalizeUsername(username)
	if u == "" || password == "" {
		return nil, domain.ErrInvalidInput
	}

	identity := &domain.Identity{
		Username:      u,
		Avatar:        avatar,
		CreatedAt:     s.now().UnixMilli(),
		SavedContacts: []string{},
	}
	if identity.Avatar == "" {
		identity.Avatar = domain.PlaceholderAvatar(u)
	}

	doc, err := store.Encode(identity)
	if err != nil {
		return nil, err
	}
	doc[domain.PasswordField] = password

	if err := s.store.Create(ctx, domain.UsersCollection, u, doc); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return identity, nil
}

func identityFromDoc(doc store.Doc) (*domain.Identity, error) {
	var id domain.Identity
	if err := store.Decode(doc, &id); err != nil {
		return nil, err
	}
	if id.SavedContacts == nil {
		id.SavedContacts = []string{}
	}
	return &id, nil
}
