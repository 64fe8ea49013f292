// Package events carries the order.matched notifications the matching
// engine emits after commit. Delivery is best-effort and at-most-once;
// a failed publish is logged by the caller and dropped.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/money"
)

const OrderMatched = "order.matched"

// UserChannel names the private per-user pub/sub channel.
func UserChannel(userID uuid.UUID) string {
	return "user." + userID.String()
}

type TradePayload struct {
	ID          uuid.UUID    `json:"id"`
	BuyOrderID  uuid.UUID    `json:"buy_order_id"`
	SellOrderID uuid.UUID    `json:"sell_order_id"`
	BuyerID     uuid.UUID    `json:"buyer_id"`
	SellerID    uuid.UUID    `json:"seller_id"`
	Symbol      string       `json:"symbol"`
	Price       money.Amount `json:"price"`
	Amount      money.Amount `json:"amount"`
	Volume      money.Amount `json:"volume"`
	Commission  money.Amount `json:"commission"`
	CreatedAt   time.Time    `json:"created_at"`
}

type BalanceSnapshot struct {
	USDBalance money.Amount `json:"usd_balance"`
}

type AssetSnapshot struct {
	Total     money.Amount `json:"total"`
	Locked    money.Amount `json:"locked"`
	Available money.Amount `json:"available"`
}

// MatchEvent is the payload delivered to each trade party on their
// user channel. Balance and assets are the party's post-settlement
// snapshots captured inside the trade transaction.
type MatchEvent struct {
	Type        string                   `json:"type"`
	Trade       TradePayload             `json:"trade"`
	UserBalance BalanceSnapshot          `json:"user_balance"`
	UserAssets  map[string]AssetSnapshot `json:"user_assets"`
}
