package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/events"
	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/storage"
	"github.com/gospotdev/gospot/internal/testutil"
)

type capturedEvent struct {
	UserID uuid.UUID
	Event  events.MatchEvent
}

type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
	fail   bool
}

func (p *capturePublisher) PublishMatch(ctx context.Context, userID uuid.UUID, event events.MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return context.DeadlineExceeded
	}
	p.events = append(p.events, capturedEvent{UserID: userID, Event: event})
	return nil
}

func (p *capturePublisher) all() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedEvent(nil), p.events...)
}

type captureFeed struct {
	mu     sync.Mutex
	trades []events.TradePayload
}

func (f *captureFeed) PublishTrade(ctx context.Context, trade events.TradePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, trade)
	return nil
}

type env struct {
	store    *testutil.MemStore
	balances *BalanceService
	assets   *AssetService
	engine   *Engine
	orders   *OrderService
	accounts *AccountService
	pub      *capturePublisher
	feed     *captureFeed
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testutil.NewMemStore()
	balances := NewBalanceService(logger)
	assets := NewAssetService(logger)
	engine := NewEngine(balances, assets, logger, nil)
	pub := &capturePublisher{}
	feed := &captureFeed{}
	orders := NewOrderService(store, balances, assets, engine, pub, feed, logger, nil)
	accounts := NewAccountService(store, assets, []byte("test-secret"), time.Hour, logger)
	return &env{
		store:    store,
		balances: balances,
		assets:   assets,
		engine:   engine,
		orders:   orders,
		accounts: accounts,
		pub:      pub,
		feed:     feed,
	}
}

func (e *env) placeOrder(t *testing.T, userID uuid.UUID, symbol, side, price, amount string) storage.Order {
	t.Helper()
	order, err := e.orders.CreateOrder(context.Background(), userID, symbol, side,
		money.MustParse(price), money.MustParse(amount), "127.0.0.1")
	if err != nil {
		t.Fatalf("CreateOrder(%s %s %s@%s): %v", side, amount, symbol, price, err)
	}
	return order
}

func assertAmount(t *testing.T, got money.Amount, want string, label string) {
	t.Helper()
	if got.String() != money.MustParse(want).String() {
		t.Fatalf("%s = %s, want %s", label, got, money.MustParse(want))
	}
}
