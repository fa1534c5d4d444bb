package session

import (
	"context"
	"errors"
	"testing"

	"novachat/internal/domain"
	"novachat/internal/store"
)

// stubPrimary scripts the primary service's answers. The zero value reports
// transport failure on every call, forcing the fallback path.
type stubPrimary struct {
	checkExists bool
	checkErr    error
	loginID     *domain.Identity
	loginErr    error
	registerID  *domain.Identity
	registerErr error

	checkCalls    int
	loginCalls    int
	registerCalls int
}

var errDown = domain.Transport(errors.New("connection refused"))

func (s *stubPrimary) CheckUser(ctx context.Context, username string) (bool, error) {
	s.checkCalls++
	if s.checkErr != nil {
		return false, s.checkErr
	}
	return s.checkExists, nil
}

func (s *stubPrimary) Login(ctx context.Context, username, password string) (*domain.Identity, error) {
	s.loginCalls++
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return s.loginID, nil
}

func (s *stubPrimary) Register(ctx context.Context, username, password, avatar string) (*domain.Identity, error) {
	s.registerCalls++
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return s.registerID, nil
}

func setup(t *testing.T) (*Controller, *stubPrimary, *store.Memory) {
	t.Helper()
	p := &stubPrimary{checkErr: errDown, loginErr: errDown, registerErr: errDown}
	m := store.NewMemory(nil)
	return New(p, m, nil), p, m
}

func seedUser(t *testing.T, m *store.Memory, username, password string) {
	t.Helper()
	doc := store.Doc{
		"username":      username,
		"avatar":        "x.png",
		"createdAt":     float64(1700000000000),
		"savedContacts": []any{},
	}
	if password != "" {
		doc["password"] = password
	}
	if err := m.Create(context.Background(), domain.UsersCollection, username, doc); err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
}

func TestRegisterThenLoginFallback(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	id, err := c.Register(ctx, "Alice ", "pw1", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id.Username != "alice" {
		t.Fatalf("expected normalized username, got %q", id.Username)
	}
	if id.Avatar == "" {
		t.Fatalf("expected a defaulted avatar")
	}
	if id.SavedContacts == nil || len(id.SavedContacts) != 0 {
		t.Fatalf("expected empty saved contacts, got %v", id.SavedContacts)
	}

	got, err := c.Login(ctx, "alice", "pw1")
	if err != nil {
		t.Fatalf("login after register: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestRegisterDuplicateIsCaseAndSpaceInsensitive(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	if _, err := c.Register(ctx, "bob", "pw", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := c.Register(ctx, "Bob ", "other", ""); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegisterRequiresCredential(t *testing.T) {
	c, _, _ := setup(t)
	if _, err := c.Register(context.Background(), "carol", "", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoginWrongPasswordFallback(t *testing.T) {
	c, _, m := setup(t)
	seedUser(t, m, "alice", "pw1")

	if _, err := c.Login(context.Background(), "alice", "nope"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestLoginUnknownUserFallback(t *testing.T) {
	c, _, _ := setup(t)
	if _, err := c.Login(context.Background(), "ghost", "pw"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLegacyRecordMigratesOnFirstLogin(t *testing.T) {
	c, _, m := setup(t)
	ctx := context.Background()
	seedUser(t, m, "carol", "")

	id, err := c.Login(ctx, "carol", "newpass")
	if err != nil {
		t.Fatalf("legacy login: %v", err)
	}
	if id.Username != "carol" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	c.migrations.Wait()

	doc, err := m.Get(ctx, domain.UsersCollection, "carol")
	if err != nil {
		t.Fatalf("get after migration: %v", err)
	}
	if doc["password"] != "newpass" {
		t.Fatalf("expected migrated credential, got %v", doc["password"])
	}

	if _, err := c.Login(ctx, "carol", "wrongpass"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential after migration, got %v", err)
	}
	if _, err := c.Login(ctx, "carol", "newpass"); err != nil {
		t.Fatalf("login with migrated credential: %v", err)
	}
}

func TestBusinessFailureFromPrimaryDoesNotFallBack(t *testing.T) {
	c, p, m := setup(t)
	// The store would accept this login, but the primary's rejection is
	// authoritative.
	seedUser(t, m, "alice", "pw1")
	p.loginErr = domain.ErrInvalidCredential

	if _, err := c.Login(context.Background(), "alice", "pw1"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected primary's rejection, got %v", err)
	}

	p.registerErr = domain.ErrAlreadyExists
	if _, err := c.Register(context.Background(), "newuser", "pw", ""); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected primary's duplicate rejection, got %v", err)
	}
}

func TestPrimarySuccessSkipsStore(t *testing.T) {
	c, p, _ := setup(t)
	p.loginErr = nil
	p.loginID = &domain.Identity{Username: "alice", Avatar: "a.png", CreatedAt: 1, SavedContacts: []string{}}

	id, err := c.Login(context.Background(), "alice", "pw1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if p.loginCalls != 1 {
		t.Fatalf("expected one primary call, got %d", p.loginCalls)
	}
}

func TestExistsFallsBackOnTransportOnly(t *testing.T) {
	c, p, m := setup(t)
	ctx := context.Background()
	seedUser(t, m, "alice", "pw")

	exists, err := c.Exists(ctx, "Alice ")
	if err != nil || !exists {
		t.Fatalf("expected fallback to find alice, got %v / %v", exists, err)
	}

	exists, err = c.Exists(ctx, "ghost")
	if err != nil || exists {
		t.Fatalf("expected fallback to miss ghost, got %v / %v", exists, err)
	}

	p.checkErr = nil
	p.checkExists = true
	before := p.checkCalls
	exists, err = c.Exists(ctx, "ghost")
	if err != nil || !exists {
		t.Fatalf("expected primary's answer, got %v / %v", exists, err)
	}
	if p.checkCalls != before+1 {
		t.Fatalf("expected primary call")
	}
}

func TestTotalUnavailabilityIsNotNonExistence(t *testing.T) {
	c, _, m := setup(t)
	m.SetConnected(false)
	ctx := context.Background()

	if _, err := c.Exists(ctx, "alice"); !errors.Is(err, domain.ErrUnreachable) {
		t.Fatalf("exists: expected ErrUnreachable, got %v", err)
	}
	if _, err := c.Login(ctx, "alice", "pw"); !errors.Is(err, domain.ErrUnreachable) {
		t.Fatalf("login: expected ErrUnreachable, got %v", err)
	}
	if _, err := c.Register(ctx, "alice", "pw", ""); !errors.Is(err, domain.ErrUnreachable) {
		t.Fatalf("register: expected ErrUnreachable, got %v", err)
	}
}
