package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/storage"
)

func TestLockAndReleaseAssets(t *testing.T) {
	e := newEnv(t)
	user := e.store.SeedUser("u", "u@example.com", "0")
	e.store.SeedAsset(user, SymbolBTC, "5", "0")
	ctx := context.Background()

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return e.assets.LockAssets(ctx, tx, user, SymbolBTC, money.MustParse("3"))
	})
	if err != nil {
		t.Fatalf("LockAssets: %v", err)
	}
	asset := e.store.Asset(user, SymbolBTC)
	assertAmount(t, asset.Amount, "5", "total after lock")
	assertAmount(t, asset.LockedAmount, "3", "locked after lock")
	assertAmount(t, asset.Available(), "2", "available after lock")

	err = e.store.WithTx(ctx, func(tx storage.Tx) error {
		return e.assets.ReleaseAssets(ctx, tx, user, SymbolBTC, money.MustParse("3"))
	})
	if err != nil {
		t.Fatalf("ReleaseAssets: %v", err)
	}
	assertAmount(t, e.store.Asset(user, SymbolBTC).LockedAmount, "0", "locked after release")
}

func TestLockAssetsInsufficientAvailable(t *testing.T) {
	e := newEnv(t)
	user := e.store.SeedUser("u", "u@example.com", "0")
	e.store.SeedAsset(user, SymbolBTC, "5", "4")
	ctx := context.Background()

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return e.assets.LockAssets(ctx, tx, user, SymbolBTC, money.MustParse("2"))
	})
	if !errors.Is(err, ErrInsufficientAssets) {
		t.Fatalf("err = %v, want ErrInsufficientAssets", err)
	}
}

func TestReleaseMoreThanLocked(t *testing.T) {
	e := newEnv(t)
	user := e.store.SeedUser("u", "u@example.com", "0")
	e.store.SeedAsset(user, SymbolBTC, "5", "1")
	ctx := context.Background()

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return e.assets.ReleaseAssets(ctx, tx, user, SymbolBTC, money.MustParse("2"))
	})
	if !errors.Is(err, ErrInsufficientLocked) {
		t.Fatalf("err = %v, want ErrInsufficientLocked", err)
	}
}

func TestTransferAssetsMovesLockedToAvailable(t *testing.T) {
	e := newEnv(t)
	from := e.store.SeedUser("from", "from@example.com", "0")
	to := e.store.SeedUser("to", "to@example.com", "0")
	e.store.SeedAsset(from, SymbolETH, "10", "4")
	ctx := context.Background()

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return e.assets.TransferAssets(ctx, tx, from, to, SymbolETH, money.MustParse("4"))
	})
	if err != nil {
		t.Fatalf("TransferAssets: %v", err)
	}

	sender := e.store.Asset(from, SymbolETH)
	assertAmount(t, sender.Amount, "6", "sender total")
	assertAmount(t, sender.LockedAmount, "0", "sender locked")
	assertAmount(t, sender.Available(), "6", "sender available untouched")

	// Receiver row is created on demand and credited to available.
	receiver := e.store.Asset(to, SymbolETH)
	assertAmount(t, receiver.Amount, "4", "receiver total")
	assertAmount(t, receiver.LockedAmount, "0", "receiver locked")
}

func TestTransferAssetsRequiresLockedFunds(t *testing.T) {
	e := newEnv(t)
	from := e.store.SeedUser("from", "from@example.com", "0")
	to := e.store.SeedUser("to", "to@example.com", "0")
	e.store.SeedAsset(from, SymbolETH, "10", "1")
	ctx := context.Background()

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return e.assets.TransferAssets(ctx, tx, from, to, SymbolETH, money.MustParse("2"))
	})
	if !errors.Is(err, ErrInsufficientLocked) {
		t.Fatalf("err = %v, want ErrInsufficientLocked", err)
	}
}

func TestCreditAddsToTotal(t *testing.T) {
	e := newEnv(t)
	user := e.store.SeedUser("u", "u@example.com", "0")
	ctx := context.Background()

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return e.assets.Credit(ctx, tx, user, SymbolETH, money.MustParse("10"))
	})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	asset := e.store.Asset(user, SymbolETH)
	assertAmount(t, asset.Amount, "10", "total after credit")
	assertAmount(t, asset.LockedAmount, "0", "locked after credit")
}

func TestGetAssetsMapsHoldings(t *testing.T) {
	e := newEnv(t)
	user := e.store.SeedUser("u", "u@example.com", "0")
	e.store.SeedAsset(user, SymbolBTC, "2", "1")
	e.store.SeedAsset(user, SymbolETH, "10", "0")

	holdings, err := e.assets.GetAssets(context.Background(), e.store, user)
	if err != nil {
		t.Fatalf("GetAssets: %v", err)
	}
	if len(holdings) != 2 {
		t.Fatalf("holdings = %d, want 2", len(holdings))
	}
	assertAmount(t, holdings[SymbolBTC].Total, "2", "BTC total")
	assertAmount(t, holdings[SymbolBTC].Locked, "1", "BTC locked")
	assertAmount(t, holdings[SymbolBTC].Available, "1", "BTC available")
}

func TestAssetOperationsRejectUnknownSymbol(t *testing.T) {
	e := newEnv(t)
	user := e.store.SeedUser("u", "u@example.com", "0")
	ctx := context.Background()

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return e.assets.LockAssets(ctx, tx, user, "DOGE", money.MustParse("1"))
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
