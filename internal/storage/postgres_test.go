package storage_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/storage"
	"github.com/gospotdev/gospot/internal/testutil"
)

// Integration tests against a real Postgres with migrations applied.
// Gated: set RUN_DB_INTEGRATION=1 and TEST_DATABASE_URL (or the
// POSTGRES_* variables) to run.

func setupStore(t *testing.T) *storage.Store {
	t.Helper()
	if os.Getenv("RUN_DB_INTEGRATION") == "" {
		t.Skip("set RUN_DB_INTEGRATION=1 to run")
	}

	pool, err := testutil.SetupTestDB()
	if err != nil {
		t.Skipf("db unavailable: %v", err)
	}
	t.Cleanup(pool.Close)
	t.Cleanup(func() {
		if err := testutil.CleanupTestData(context.Background(), pool); err != nil {
			t.Logf("cleanup: %v", err)
		}
	})

	return storage.New(pool, 2*time.Second)
}

func seedTestUser(t *testing.T, store *storage.Store, email, balance string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		return tx.InsertUser(context.Background(), storage.User{
			ID:           id,
			Name:         "test",
			Email:        email,
			PasswordHash: "x",
			Balance:      money.MustParse(balance),
			CreatedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, store, "tx@example.com", "100")

	// Committed write survives.
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateUserBalance(ctx, userID, money.MustParse("60"))
	})
	if err != nil {
		t.Fatalf("commit tx: %v", err)
	}
	user, err := store.GetUserByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if user.Balance.String() != "60.00000000" {
		t.Fatalf("balance = %s, want 60.00000000", user.Balance)
	}

	// Returned error rolls the write back.
	sentinel := errors.New("boom")
	err = store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.UpdateUserBalance(ctx, userID, money.MustParse("1")); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	user, _ = store.GetUserByID(ctx, userID)
	if user.Balance.String() != "60.00000000" {
		t.Fatalf("balance after rollback = %s, want 60.00000000", user.Balance)
	}
}

func TestDuplicateEmailMapsToSentinel(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedTestUser(t, store, "dup@example.com", "0")

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.InsertUser(ctx, storage.User{
			ID:           uuid.New(),
			Name:         "other",
			Email:        "dup@example.com",
			PasswordHash: "x",
			Balance:      money.Zero(),
			CreatedAt:    time.Now().UTC(),
		})
	})
	if !errors.Is(err, storage.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestOpenOrdersOrdering(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, store, "book@example.com", "0")

	insert := func(side, price string, createdAt time.Time) uuid.UUID {
		id := uuid.New()
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			return tx.InsertOrder(ctx, storage.Order{
				ID:        id,
				UserID:    userID,
				Symbol:    "BTC",
				Side:      side,
				Price:     money.MustParse(price),
				Amount:    money.MustParse("1"),
				Status:    storage.OrderStatusOpen,
				CreatedAt: createdAt,
				UpdatedAt: createdAt,
			})
		})
		if err != nil {
			t.Fatalf("insert order: %v", err)
		}
		return id
	}

	base := time.Now().UTC().Add(-time.Hour)
	insert(storage.SideSell, "52000", base)
	cheapFirst := insert(storage.SideSell, "50000", base.Add(time.Minute))
	cheapSecond := insert(storage.SideSell, "50000", base.Add(2*time.Minute))
	insert(storage.SideBuy, "49000", base)
	bestBid := insert(storage.SideBuy, "49500", base.Add(time.Minute))

	buys, sells, err := store.OrderBook(ctx, "BTC")
	if err != nil {
		t.Fatalf("OrderBook: %v", err)
	}
	if len(sells) != 3 || sells[0].ID != cheapFirst || sells[1].ID != cheapSecond {
		t.Fatalf("sell ordering wrong: %v", orderedIDs(sells))
	}
	if len(buys) != 2 || buys[0].ID != bestBid {
		t.Fatalf("buy ordering wrong: %v", orderedIDs(buys))
	}
}

func TestGetOrCreateAssetForUpdate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, store, "asset@example.com", "0")

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		asset, err := tx.GetOrCreateAssetForUpdate(ctx, userID, "BTC")
		if err != nil {
			return err
		}
		if !asset.Amount.IsZero() || !asset.LockedAmount.IsZero() {
			t.Fatalf("fresh asset not empty: %+v", asset)
		}
		return tx.UpdateAssetAmounts(ctx, userID, "BTC", money.MustParse("2"), money.MustParse("1"))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	assets, err := store.ListAssets(ctx, userID)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 1 || assets[0].Amount.String() != "2.00000000" || assets[0].Available().String() != "1.00000000" {
		t.Fatalf("asset state wrong: %+v", assets)
	}
}

func orderedIDs(orders []storage.Order) []uuid.UUID {
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}
