package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/events"
	"github.com/gospotdev/gospot/internal/storage"
)

// Engine is the matching engine. Process runs inside the placement
// transaction so a failed settlement rolls back the new order and its
// fund or asset lock together.
type Engine struct {
	balances *BalanceService
	assets   *AssetService
	logger   *slog.Logger
	metrics  *Metrics
}

func NewEngine(balances *BalanceService, assets *AssetService, logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		balances: balances,
		assets:   assets,
		logger:   logger,
		metrics:  metrics,
	}
}

// Process matches a newly inserted order against the best compatible
// counter-order and settles the trade, all within the caller's
// transaction. It returns the order in its post-match state and, when
// a trade happened, one notification per party for the caller to
// publish after commit.
func (e *Engine) Process(ctx context.Context, tx storage.Tx, orderID uuid.UUID) (storage.Order, []Notification, error) {
	if e.metrics != nil {
		e.metrics.MatchAttempts.Inc()
	}

	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return storage.Order{}, nil, fromStorage(err)
	}
	if order.Status != storage.OrderStatusOpen {
		// Already terminal; processing again is a no-op.
		return order, nil, nil
	}

	counter, found, err := e.bestCounterOrder(ctx, tx, order)
	if err != nil {
		return storage.Order{}, nil, err
	}
	if !found {
		return order, nil, nil
	}

	if !order.Amount.Equal(counter.Amount) {
		if e.metrics != nil {
			e.metrics.PartialMatchRejections.Inc()
		}
		return storage.Order{}, nil, fmt.Errorf("%w: order amount %s vs counter amount %s",
			ErrPartialMatch, order.Amount, counter.Amount)
	}

	buy, sell := order, counter
	if order.Side == storage.SideSell {
		buy, sell = counter, order
	}

	notifs, err := e.settle(ctx, tx, buy, sell)
	if err != nil {
		return storage.Order{}, nil, err
	}

	order, err = tx.GetOrderForUpdate(ctx, order.ID)
	if err != nil {
		return storage.Order{}, nil, fromStorage(err)
	}
	return order, notifs, nil
}

// bestCounterOrder walks the opposite side of the book best price
// first and returns the first still-open order whose price crosses the
// new order's. Candidates that turned terminal between the snapshot
// and the row lock are skipped. The list is sorted best first, so the
// first open candidate that fails the price check ends the scan.
func (e *Engine) bestCounterOrder(ctx context.Context, tx storage.Tx, order storage.Order) (storage.Order, bool, error) {
	counterSide := storage.SideSell
	if order.Side == storage.SideSell {
		counterSide = storage.SideBuy
	}

	candidates, err := tx.OpenOrdersBySymbolSide(ctx, order.Symbol, counterSide)
	if err != nil {
		return storage.Order{}, false, fromStorage(err)
	}

	for _, candidate := range candidates {
		locked, err := tx.GetOrderForUpdate(ctx, candidate.ID)
		if err != nil {
			return storage.Order{}, false, fromStorage(err)
		}
		if locked.Status != storage.OrderStatusOpen {
			continue
		}
		if !crosses(order, locked) {
			return storage.Order{}, false, nil
		}
		return locked, true, nil
	}
	return storage.Order{}, false, nil
}

// crosses reports whether the two orders' prices overlap: a trade
// requires sell.price <= buy.price.
func crosses(a, b storage.Order) bool {
	buy, sell := a, b
	if a.Side == storage.SideSell {
		buy, sell = b, a
	}
	return sell.Price.Cmp(buy.Price) <= 0
}

// settle executes the trade between a crossed buy and sell of equal
// amounts. The clearing price is always the sell order's price.
func (e *Engine) settle(ctx context.Context, tx storage.Tx, buy, sell storage.Order) ([]Notification, error) {
	amount := buy.Amount
	volume := sell.Price.Mul(amount)
	commission := volume.MulRate(commissionRate)

	// Take both parties' user rows up front, ascending by id. The
	// transfer steps below touch the rows in role order (buyer first),
	// which would otherwise let two settlements with swapped roles
	// acquire them in opposite order and deadlock.
	for _, id := range userLockOrder(buy.UserID, sell.UserID) {
		if _, err := tx.GetUserForUpdate(ctx, id); err != nil {
			return nil, fromStorage(err)
		}
	}

	// The seller's assets were locked at placement; settlement drains
	// the locked pool into the buyer's available holdings.
	if err := e.assets.TransferAssets(ctx, tx, sell.UserID, buy.UserID, buy.Symbol, amount); err != nil {
		return nil, err
	}

	// Return the buyer's full placement lock, then pay the seller net
	// of commission and charge the buyer the commission on top.
	// Releasing only the clearing-price volume would strand the spread
	// when the buyer bid above the sell price.
	if err := e.balances.ReleaseFunds(ctx, tx, buy.UserID, buy.Price.Mul(buy.Amount)); err != nil {
		return nil, err
	}
	if net := volume.Sub(commission); !net.IsZero() {
		if err := e.balances.TransferUSD(ctx, tx, buy.UserID, sell.UserID, net); err != nil {
			return nil, err
		}
	}
	if !commission.IsZero() {
		if err := e.balances.DeductCommission(ctx, tx, buy.UserID, commission); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if err := tx.UpdateOrderStatus(ctx, buy.ID, storage.OrderStatusFilled, now); err != nil {
		return nil, fromStorage(err)
	}
	if err := tx.UpdateOrderStatus(ctx, sell.ID, storage.OrderStatusFilled, now); err != nil {
		return nil, fromStorage(err)
	}

	trade := storage.Trade{
		ID:          uuid.New(),
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyerID:     buy.UserID,
		SellerID:    sell.UserID,
		Symbol:      buy.Symbol,
		Price:       sell.Price,
		Amount:      amount,
		Volume:      volume,
		Commission:  commission,
		CreatedAt:   now,
	}
	if err := tx.InsertTrade(ctx, trade); err != nil {
		return nil, fromStorage(err)
	}

	e.auditTrade(ctx, tx, trade)

	if e.metrics != nil {
		e.metrics.TradesMatched.Inc()
	}

	notifs := make([]Notification, 0, 2)
	for _, partyID := range tradeParties(trade) {
		event, err := e.matchEvent(ctx, tx, trade, partyID)
		if err != nil {
			return nil, err
		}
		notifs = append(notifs, Notification{UserID: partyID, Event: event})
	}
	return notifs, nil
}

// auditTrade appends one audit row per party. Audit failures are
// logged and swallowed; they never abort a settlement.
func (e *Engine) auditTrade(ctx context.Context, tx storage.Tx, trade storage.Trade) {
	details := map[string]string{
		"symbol":     trade.Symbol,
		"price":      trade.Price.String(),
		"amount":     trade.Amount.String(),
		"volume":     trade.Volume.String(),
		"commission": trade.Commission.String(),
	}
	entries := []storage.AuditEntry{
		{UserID: trade.BuyerID, Action: ActionTradeExecutedBuy, EntityKind: "trade", EntityID: trade.ID.String(), Details: details},
		{UserID: trade.SellerID, Action: ActionTradeExecutedSell, EntityKind: "trade", EntityID: trade.ID.String(), Details: details},
	}
	for _, entry := range entries {
		if err := tx.InsertAudit(ctx, entry); err != nil {
			if e.metrics != nil {
				e.metrics.AuditFailures.Inc()
			}
			e.logger.Warn("trade audit write failed",
				"trade_id", trade.ID, "action", entry.Action, "error", err)
		}
	}
}

// matchEvent captures one party's post-settlement view: the trade plus
// their balance and holdings as they stand inside the transaction.
func (e *Engine) matchEvent(ctx context.Context, tx storage.Tx, trade storage.Trade, partyID uuid.UUID) (events.MatchEvent, error) {
	user, err := tx.GetUserForUpdate(ctx, partyID)
	if err != nil {
		return events.MatchEvent{}, fromStorage(err)
	}
	assets, err := tx.ListAssets(ctx, partyID)
	if err != nil {
		return events.MatchEvent{}, fromStorage(err)
	}

	snapshot := make(map[string]events.AssetSnapshot, len(assets))
	for _, a := range assets {
		snapshot[a.Symbol] = events.AssetSnapshot{
			Total:     a.Amount,
			Locked:    a.LockedAmount,
			Available: a.Available(),
		}
	}

	return events.MatchEvent{
		Type: events.OrderMatched,
		Trade: events.TradePayload{
			ID:          trade.ID,
			BuyOrderID:  trade.BuyOrderID,
			SellOrderID: trade.SellOrderID,
			BuyerID:     trade.BuyerID,
			SellerID:    trade.SellerID,
			Symbol:      trade.Symbol,
			Price:       trade.Price,
			Amount:      trade.Amount,
			Volume:      trade.Volume,
			Commission:  trade.Commission,
			CreatedAt:   trade.CreatedAt,
		},
		UserBalance: events.BalanceSnapshot{USDBalance: user.Balance},
		UserAssets:  snapshot,
	}, nil
}

// userLockOrder returns the distinct party ids sorted ascending by
// their byte representation, the one permitted multi-row lock order.
func userLockOrder(a, b uuid.UUID) []uuid.UUID {
	if a == b {
		return []uuid.UUID{a}
	}
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return []uuid.UUID{a, b}
}

// tradeParties lists the distinct users involved; a self-match yields
// a single notification.
func tradeParties(trade storage.Trade) []uuid.UUID {
	if trade.BuyerID == trade.SellerID {
		return []uuid.UUID{trade.BuyerID}
	}
	return []uuid.UUID{trade.BuyerID, trade.SellerID}
}
