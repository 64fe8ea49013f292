package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/storage"
)

// OrderBookView is the public book for one symbol: open buys priced
// highest first, open sells priced lowest first.
type OrderBookView struct {
	Symbol     string
	BuyOrders  []storage.Order
	SellOrders []storage.Order
}

// OrderService coordinates fund and asset locking with order
// insertion, drives the matching engine, and reverses locks on
// cancellation.
type OrderService struct {
	store    Store
	balances *BalanceService
	assets   *AssetService
	engine   *Engine
	pub      MatchPublisher
	feed     TradeFeedPublisher
	logger   *slog.Logger
	metrics  *Metrics
}

func NewOrderService(store Store, balances *BalanceService, assets *AssetService, engine *Engine, pub MatchPublisher, feed TradeFeedPublisher, logger *slog.Logger, metrics *Metrics) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		store:    store,
		balances: balances,
		assets:   assets,
		engine:   engine,
		pub:      pub,
		feed:     feed,
		logger:   logger,
		metrics:  metrics,
	}
}

// CreateOrder validates, locks the backing funds or assets, inserts
// the order, and runs the matching engine, all in one transaction.
// The returned order reflects its committed state, which may already
// be filled. Match notifications go out only after commit.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, symbol, side string, price, amount money.Amount, ip string) (storage.Order, error) {
	if !ValidSymbol(symbol) {
		return storage.Order{}, validationf("unsupported symbol %q", symbol)
	}
	if !ValidSide(side) {
		return storage.Order{}, validationf("side must be buy or sell")
	}
	if !price.IsPositive() {
		return storage.Order{}, validationf("price must be positive")
	}
	if !amount.IsPositive() {
		return storage.Order{}, validationf("amount must be positive")
	}

	now := time.Now().UTC()
	order := storage.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Status:    storage.OrderStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var notifs []Notification
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if side == storage.SideBuy {
			if err := s.balances.LockFunds(ctx, tx, userID, price.Mul(amount)); err != nil {
				return err
			}
		} else {
			if err := s.assets.LockAssets(ctx, tx, userID, symbol, amount); err != nil {
				return err
			}
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fromStorage(err)
		}

		committed, matchNotifs, err := s.engine.Process(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		order = committed
		notifs = matchNotifs
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.OrdersRejected.WithLabelValues(rejectionReason(err)).Inc()
		}
		return storage.Order{}, fromStorage(err)
	}

	if s.metrics != nil {
		s.metrics.OrdersPlaced.WithLabelValues(side).Inc()
	}
	s.audit(ctx, storage.AuditEntry{
		UserID:     userID,
		Action:     ActionOrderPlaced,
		EntityKind: "order",
		EntityID:   order.ID.String(),
		Details: map[string]string{
			"symbol": symbol,
			"side":   side,
			"price":  price.String(),
			"amount": amount.String(),
		},
		IP: ip,
	})
	s.publish(ctx, notifs)

	return order, nil
}

// CancelOrder reverses an open order's placement lock and marks it
// cancelled. Only the owner may cancel, and only while the order is
// still open.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID uuid.UUID, ip string) (storage.Order, error) {
	var order storage.Order
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fromStorage(err)
		}
		if locked.UserID != userID {
			return ErrOwnership
		}
		if locked.Status != storage.OrderStatusOpen {
			return ErrIllegalState
		}

		if locked.Side == storage.SideBuy {
			if err := s.balances.ReleaseFunds(ctx, tx, userID, locked.Price.Mul(locked.Amount)); err != nil {
				return err
			}
		} else {
			if err := s.assets.ReleaseAssets(ctx, tx, userID, locked.Symbol, locked.Amount); err != nil {
				return err
			}
		}

		locked.Status = storage.OrderStatusCancelled
		locked.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrderStatus(ctx, locked.ID, locked.Status, locked.UpdatedAt); err != nil {
			return fromStorage(err)
		}
		order = locked
		return nil
	})
	if err != nil {
		return storage.Order{}, fromStorage(err)
	}

	if s.metrics != nil {
		s.metrics.OrdersCancelled.Inc()
	}
	s.audit(ctx, storage.AuditEntry{
		UserID:     userID,
		Action:     ActionOrderCancelled,
		EntityKind: "order",
		EntityID:   order.ID.String(),
		Details:    map[string]string{"symbol": order.Symbol, "side": order.Side},
		IP:         ip,
	})
	return order, nil
}

// ListOrders returns the user's orders newest first, optionally
// filtered by status.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, status string) ([]storage.Order, error) {
	switch status {
	case "", storage.OrderStatusOpen, storage.OrderStatusFilled, storage.OrderStatusCancelled:
	default:
		return nil, validationf("unknown status %q", status)
	}
	orders, err := s.store.ListUserOrders(ctx, userID, status)
	if err != nil {
		return nil, fromStorage(err)
	}
	return orders, nil
}

// OrderBook returns the public book for a symbol.
func (s *OrderService) OrderBook(ctx context.Context, symbol string) (OrderBookView, error) {
	if !ValidSymbol(symbol) {
		return OrderBookView{}, validationf("unsupported symbol %q", symbol)
	}
	buys, sells, err := s.store.OrderBook(ctx, symbol)
	if err != nil {
		return OrderBookView{}, fromStorage(err)
	}
	return OrderBookView{Symbol: symbol, BuyOrders: buys, SellOrders: sells}, nil
}

// publish delivers post-commit match notifications. A failed publish
// is logged and dropped: the trade is already committed and the engine
// never retries delivery.
func (s *OrderService) publish(ctx context.Context, notifs []Notification) {
	if len(notifs) == 0 {
		return
	}

	for _, n := range notifs {
		if s.pub == nil {
			break
		}
		if err := s.pub.PublishMatch(ctx, n.UserID, n.Event); err != nil {
			if s.metrics != nil {
				s.metrics.EventsDropped.Inc()
			}
			s.logger.Warn("match notification dropped",
				"user_id", n.UserID, "trade_id", n.Event.Trade.ID, "error", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.EventsPublished.Inc()
		}
	}

	if s.feed != nil {
		trade := notifs[0].Event.Trade
		if err := s.feed.PublishTrade(ctx, trade); err != nil {
			s.logger.Warn("trade feed publish failed", "trade_id", trade.ID, "error", err)
		}
	}
}

// audit writes an orchestrator-level audit entry, swallowing failures.
func (s *OrderService) audit(ctx context.Context, entry storage.AuditEntry) {
	if err := s.store.InsertAudit(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.AuditFailures.Inc()
		}
		s.logger.Warn("audit write failed", "action", entry.Action, "error", err)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientAssets):
		return "insufficient_assets"
	case errors.Is(err, ErrPartialMatch):
		return "partial_match"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "internal"
	}
}
