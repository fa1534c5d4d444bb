package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"novachat/internal/domain"
	"novachat/internal/service"
	"novachat/internal/store"
)

func setup(t *testing.T) (*service.Service, *store.Memory) {
	t.Helper()
	m := store.NewMemory(nil)
	return service.New(m, nil), m
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, " Alice ", "s3cret", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id.Username != "alice" {
		t.Fatalf("expected normalized username, got %q", id.Username)
	}
	if !strings.Contains(id.Avatar, "ui-avatars.com") {
		t.Fatalf("expected placeholder avatar, got %q", id.Avatar)
	}
	if id.SavedContacts == nil || len(id.SavedContacts) != 0 {
		t.Fatalf("expected empty saved contacts, got %v", id.SavedContacts)
	}
	if id.CreatedAt == 0 {
		t.Fatalf("expected createdAt to be set")
	}

	got, err := svc.Login(ctx, "ALICE", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "pw", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, " ALICE", "other", ""); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "pw", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "nobody", "pw"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, err := svc.Login(ctx, "alice", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Register(ctx, "", "pw", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCheckUser(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	ok, err := svc.CheckUser(ctx, "alice")
	if err != nil || ok {
		t.Fatalf("expected absent user, got ok=%v err=%v", ok, err)
	}
	if _, err := svc.Register(ctx, "alice", "pw", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	ok, err = svc.CheckUser(ctx, " Alice ")
	if err != nil || !ok {
		t.Fatalf("expected present user, got ok=%v err=%v", ok, err)
	}
	if _, err := svc.CheckUser(ctx, "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoginMigratesLegacyRecord(t *testing.T) {
	svc, m := setup(t)
	ctx := context.Background()

	// Legacy record: identity fields only, no stored credential.
	err := m.Create(ctx, domain.UsersCollection, "olduser", store.Doc{
		"username":      "olduser",
		"avatar":        "x.png",
		"createdAt":     float64(1),
		"savedContacts": []any{},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// First login with any password adopts it, in place, before responding.
	if _, err := svc.Login(ctx, "olduser", "adopted"); err != nil {
		t.Fatalf("migrating login: %v", err)
	}
	doc, err := m.Get(ctx, domain.UsersCollection, "olduser")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc[domain.PasswordField] != "adopted" {
		t.Fatalf("expected migrated credential, got %v", doc[domain.PasswordField])
	}

	// The adopted credential is now enforced.
	if _, err := svc.Login(ctx, "olduser", "other"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential after migration, got %v", err)
	}
	if _, err := svc.Login(ctx, "olduser", "adopted"); err != nil {
		t.Fatalf("login after migration: %v", err)
	}
}

func TestRegisterResponseCarriesNoCredential(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "pw", "a.png")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	doc, err := store.Encode(id)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, ok := doc[domain.PasswordField]; ok {
		t.Fatalf("identity must never carry the credential: %v", doc)
	}
}
