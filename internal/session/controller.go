// Package session resolves identity existence, login and registration. It
// prefers the primary service; when the primary cannot be reached at all it
// retries once against the shared store directly. Rejections the primary
// reports itself (wrong password, duplicate username) are authoritative and
// never trigger the fallback.
//
// Credentials are stored and compared in plaintext. That is the observed
// behavior of the system this reimplements, kept because the fallback path
// reads the stored credential straight out of the shared store; it is a
// known defect, not a recommendation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"novachat/internal/domain"
	"novachat/internal/store"
)

// Primary is the subset of the primary service the controller needs.
// Implementations must report unreachability as a domain.TransportError and
// rejections as the business error values.
type Primary interface {
	CheckUser(ctx context.Context, username string) (bool, error)
	Login(ctx context.Context, username, password string) (*domain.Identity, error)
	Register(ctx context.Context, username, password, avatar string) (*domain.Identity, error)
}

type Controller struct {
	primary Primary
	store   store.Adapter
	log     *slog.Logger
	now     func() time.Time

	migrateTimeout time.Duration
	migrations     sync.WaitGroup
}

func New(p Primary, st store.Adapter, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		primary:        p,
		store:          st,
		log:            log,
		now:            time.Now,
		migrateTimeout: 10 * time.Second,
	}
}

// Exists reports whether the handle is registered. A false return is only
// trustworthy when err is nil; total unavailability surfaces as
// domain.ErrUnreachable, never as "does not exist".
func (c *Controller) Exists(ctx context.Context, username string) (bool, error) {
	u := domain.NormalizeUsername(username)
	if u == "" {
		return false, domain.ErrInvalidInput
	}

	exists, err := c.primary.CheckUser(ctx, u)
	if err == nil {
		return exists, nil
	}
	if !domain.IsTransport(err) {
		return false, err
	}
	c.log.Warn("primary unavailable, checking store directly", "op", "check-user", "error", err)

	_, gerr := c.store.Get(ctx, domain.UsersCollection, u)
	switch {
	case gerr == nil:
		return true, nil
	case errors.Is(gerr, store.ErrNotFound):
		return false, nil
	default:
		return false, unreachable(gerr)
	}
}

// Login authenticates the handle. On the fallback path a record with no
// stored credential is migrated in place: the supplied credential becomes
// the record's credential, persisted in the background so the login result
// is not held up by the write.
func (c *Controller) Login(ctx context.Context, username, password string) (*domain.Identity, error) {
	u := domain.NormalizeUsername(username)
	if u == "" || password == "" {
		return nil, domain.ErrInvalidInput
	}

	id, err := c.primary.Login(ctx, u, password)
	if err == nil {
		return id, nil
	}
	if !domain.IsTransport(err) {
		return nil, err
	}
	c.log.Warn("primary unavailable, falling back to store login", "username", u, "error", err)

	doc, gerr := c.store.Get(ctx, domain.UsersCollection, u)
	if gerr != nil {
		if errors.Is(gerr, store.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, unreachable(gerr)
	}

	identity, err := identityFromDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("decode identity %q: %w", u, err)
	}

	stored, _ := doc[domain.PasswordField].(string)
	if stored == "" {
		c.migrateCredential(ctx, u, password)
		return identity, nil
	}
	if stored != password {
		return nil, domain.ErrInvalidCredential
	}
	return identity, nil
}

// Register creates a new identity. The fallback path checks availability
// and writes the record directly.
func (c *Controller) Register(ctx context.Context, username, password, avatar string) (*domain.Identity, error) {
	u := domain.NormalizeUsername(username)
	if u == "" || password == "" {
		return nil, domain.ErrInvalidInput
	}

	id, err := c.primary.Register(ctx, u, password, avatar)
	if err == nil {
		return id, nil
	}
	if !domain.IsTransport(err) {
		return nil, err
	}
	c.log.Warn("primary unavailable, falling back to store register", "username", u, "error", err)

	_, gerr := c.store.Get(ctx, domain.UsersCollection, u)
	switch {
	case gerr == nil:
		return nil, domain.ErrAlreadyExists
	case errors.Is(gerr, store.ErrNotFound):
		// available
	default:
		return nil, unreachable(gerr)
	}

	identity := &domain.Identity{
		Username:      u,
		Avatar:        avatar,
		CreatedAt:     c.now().UnixMilli(),
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

	if err := c.store.Create(ctx, domain.UsersCollection, u, doc); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, unreachable(err)
	}
	return identity, nil
}

// migrateCredential persists the adopted credential without blocking the
// login that triggered it. Failure leaves the record credential-less, so
// the next legacy login retries.
func (c *Controller) migrateCredential(ctx context.Context, username, password string) {
	c.migrations.Add(1)
	go func() {
		defer c.migrations.Done()
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.migrateTimeout)
		defer cancel()
		if err := c.store.Update(mctx, domain.UsersCollection, username,
			store.Set(domain.PasswordField, password)); err != nil {
			c.log.Error("legacy credential migration failed", "username", username, "error", err)
			return
		}
		c.log.Info("legacy credential migrated", "username", username)
	}()
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

func unreachable(cause error) error {
	return fmt.Errorf("%w: %v", domain.ErrUnreachable, cause)
}
