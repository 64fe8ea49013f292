package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/money"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderStatusOpen      = "open"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
)

type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Balance      money.Amount
	CreatedAt    time.Time
}

type Asset struct {
	UserID       uuid.UUID
	Symbol       string
	Amount       money.Amount
	LockedAmount money.Amount
}

// Available is the portion of the holding not committed to open sell
// orders.
func (a Asset) Available() money.Amount {
	return a.Amount.Sub(a.LockedAmount)
}

type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Symbol    string
	Side      string
	Price     money.Amount
	Amount    money.Amount
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Trade struct {
	ID          uuid.UUID
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	BuyerID     uuid.UUID
	SellerID    uuid.UUID
	Symbol      string
	Price       money.Amount
	Amount      money.Amount
	Volume      money.Amount
	Commission  money.Amount
	CreatedAt   time.Time
}

type AuditEntry struct {
	UserID     uuid.UUID // uuid.Nil stores as NULL
	Action     string
	EntityKind string
	EntityID   string
	Details    map[string]string
	IP         string
}
