package service

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterSeedsBalanceAndAssets(t *testing.T) {
	e := newEnv(t)

	user, token, err := e.accounts.Register(context.Background(),
		"Alice", "alice@example.com", "hunter2hunter2", "hunter2hunter2", "127.0.0.1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if token == "" {
		t.Fatal("empty session token")
	}

	assertAmount(t, e.store.User(user.ID).Balance, "10000", "seeded balance")
	assertAmount(t, e.store.Asset(user.ID, SymbolBTC).Amount, "1", "seeded BTC")
	assertAmount(t, e.store.Asset(user.ID, SymbolETH).Amount, "10", "seeded ETH")

	var registered bool
	for _, entry := range e.store.AllAudits() {
		if entry.Action == ActionUserRegistered && entry.UserID == user.ID {
			registered = true
		}
	}
	if !registered {
		t.Fatal("registration audit entry missing")
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name                          string
		userName, email, pw, confirm string
	}{
		{"empty name", "", "a@example.com", "hunter2hunter2", "hunter2hunter2"},
		{"bad email", "A", "not-an-email", "hunter2hunter2", "hunter2hunter2"},
		{"short password", "A", "a@example.com", "short", "short"},
		{"mismatched confirmation", "A", "a@example.com", "hunter2hunter2", "different-pass"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := e.accounts.Register(ctx, tc.userName, tc.email, tc.pw, tc.confirm, "")
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, _, err := e.accounts.Register(ctx, "A", "dup@example.com", "hunter2hunter2", "hunter2hunter2", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := e.accounts.Register(ctx, "B", "DUP@example.com", "hunter2hunter2", "hunter2hunter2", "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	registered, _, err := e.accounts.Register(ctx, "A", "login@example.com", "hunter2hunter2", "hunter2hunter2", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, token, err := e.accounts.Login(ctx, "login@example.com", "hunter2hunter2", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != registered.ID || token == "" {
		t.Fatal("login returned wrong user or empty token")
	}

	if _, _, err := e.accounts.Login(ctx, "login@example.com", "wrong-password", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password err = %v, want ErrUnauthorized", err)
	}
	if _, _, err := e.accounts.Login(ctx, "nobody@example.com", "hunter2hunter2", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email err = %v, want ErrUnauthorized", err)
	}
}

func TestProfileReturnsHoldings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	registered, _, err := e.accounts.Register(ctx, "A", "profile@example.com", "hunter2hunter2", "hunter2hunter2", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, assets, err := e.accounts.GetProfile(ctx, registered.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	assertAmount(t, user.Balance, "10000", "profile balance")
	if len(assets) != 2 {
		t.Fatalf("profile assets = %d, want 2", len(assets))
	}
}
