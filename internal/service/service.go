// Package service implements the trading engine: balances, asset
// holdings, order placement and cancellation, and the matching
// algorithm that settles trades atomically.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gospotdev/gospot/internal/events"
	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/storage"
)

// Compile-time constants of the venue. These are contract, not
// configuration.
var (
	commissionRate = decimal.RequireFromString("0.015")

	seedBalance = money.MustParse("10000.00000000")
	seedAssets  = map[string]money.Amount{
		SymbolBTC: money.MustParse("1.00000000"),
		SymbolETH: money.MustParse("10.00000000"),
	}
)

const (
	SymbolBTC = "BTC"
	SymbolETH = "ETH"
)

// Symbols lists the tradable symbols in a stable order.
func Symbols() []string {
	return []string{SymbolBTC, SymbolETH}
}

// ValidSymbol reports whether s is a supported trading symbol.
func ValidSymbol(s string) bool {
	return s == SymbolBTC || s == SymbolETH
}

// ValidSide reports whether s is a supported order side.
func ValidSide(s string) bool {
	return s == storage.SideBuy || s == storage.SideSell
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Store is the persistence surface the services consume. Implemented
// by *storage.Store; faked in tests.
type Store interface {
	WithTx(ctx context.Context, fn func(tx storage.Tx) error) error

	GetUserByID(ctx context.Context, id uuid.UUID) (storage.User, error)
	GetUserByEmail(ctx context.Context, email string) (storage.User, error)
	ListAssets(ctx context.Context, userID uuid.UUID) ([]storage.Asset, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (storage.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, status string) ([]storage.Order, error)
	OrderBook(ctx context.Context, symbol string) (buys []storage.Order, sells []storage.Order, err error)
	InsertAudit(ctx context.Context, entry storage.AuditEntry) error
}

// MatchPublisher delivers a match notification to one party's private
// channel. Best-effort, at-most-once; callers log and drop failures.
type MatchPublisher interface {
	PublishMatch(ctx context.Context, userID uuid.UUID, event events.MatchEvent) error
}

// TradeFeedPublisher mirrors executed trades to the optional
// downstream feed.
type TradeFeedPublisher interface {
	PublishTrade(ctx context.Context, trade events.TradePayload) error
}

// Notification is a match event addressed to one trade party,
// collected inside the trade transaction and published after commit.
type Notification struct {
	UserID uuid.UUID
	Event  events.MatchEvent
}

// Audit action tags written by the engine and the orchestrating
// services.
const (
	ActionTradeExecutedBuy  = "TRADE_EXECUTED_BUY"
	ActionTradeExecutedSell = "TRADE_EXECUTED_SELL"
	ActionOrderPlaced       = "ORDER_PLACED"
	ActionOrderCancelled    = "ORDER_CANCELLED"
	ActionUserRegistered    = "USER_REGISTERED"
	ActionUserLogin         = "USER_LOGIN"
	ActionUserLogout        = "USER_LOGOUT"
)
