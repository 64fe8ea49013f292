package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gospotdev/gospot/internal/money"
)

// Tx is the transactional surface the services drive. Row-returning
// *ForUpdate methods take an exclusive lock held until commit.
type Tx interface {
	InsertUser(ctx context.Context, user User) error
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error)
	UpdateUserBalance(ctx context.Context, id uuid.UUID, balance money.Amount) error

	CreateAsset(ctx context.Context, asset Asset) error
	GetOrCreateAssetForUpdate(ctx context.Context, userID uuid.UUID, symbol string) (Asset, error)
	UpdateAssetAmounts(ctx context.Context, userID uuid.UUID, symbol string, amount, locked money.Amount) error
	ListAssets(ctx context.Context, userID uuid.UUID) ([]Asset, error)

	InsertOrder(ctx context.Context, order Order) error
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string, updatedAt time.Time) error
	OpenOrdersBySymbolSide(ctx context.Context, symbol, side string) ([]Order, error)

	InsertTrade(ctx context.Context, trade Trade) error
	InsertAudit(ctx context.Context, entry AuditEntry) error
}

type pgTx struct {
	tx pgx.Tx
}

func (p *pgTx) InsertUser(ctx context.Context, user User) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Balance.String(), user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return mapError(err)
}

func (p *pgTx) GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	return getUser(ctx, p.tx, id, true)
}

func (p *pgTx) UpdateUserBalance(ctx context.Context, id uuid.UUID, balance money.Amount) error {
	tag, err := p.tx.Exec(ctx, `UPDATE users SET balance = $2 WHERE id = $1`, id, balance.String())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgTx) CreateAsset(ctx context.Context, asset Asset) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO assets (user_id, symbol, amount, locked_amount)
		VALUES ($1, $2, $3, $4)
	`, asset.UserID, asset.Symbol, asset.Amount.String(), asset.LockedAmount.String())
	return mapError(err)
}

// GetOrCreateAssetForUpdate locks the (user, symbol) holding, creating
// an empty row first if the user has never held the symbol. The
// insert-then-lock shape keeps the lock acquisition a single code
// path.
func (p *pgTx) GetOrCreateAssetForUpdate(ctx context.Context, userID uuid.UUID, symbol string) (Asset, error) {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO assets (user_id, symbol, amount, locked_amount)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (user_id, symbol) DO NOTHING
	`, userID, symbol)
	if err != nil {
		return Asset{}, mapError(err)
	}

	row := p.tx.QueryRow(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE user_id = $1 AND symbol = $2
		FOR UPDATE
	`, userID, symbol)
	a, err := scanAsset(row)
	if err != nil {
		return Asset{}, mapError(err)
	}
	return a, nil
}

func (p *pgTx) UpdateAssetAmounts(ctx context.Context, userID uuid.UUID, symbol string, amount, locked money.Amount) error {
	tag, err := p.tx.Exec(ctx, `
		UPDATE assets SET amount = $3, locked_amount = $4
		WHERE user_id = $1 AND symbol = $2
	`, userID, symbol, amount.String(), locked.String())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgTx) ListAssets(ctx context.Context, userID uuid.UUID) ([]Asset, error) {
	return listAssets(ctx, p.tx, userID)
}

func (p *pgTx) InsertOrder(ctx context.Context, order Order) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, symbol, side, price, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.ID, order.UserID, order.Symbol, order.Side, order.Price.String(), order.Amount.String(),
		order.Status, order.CreatedAt, order.UpdatedAt)
	return mapError(err)
}

func (p *pgTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return getOrder(ctx, p.tx, id, true)
}

func (p *pgTx) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string, updatedAt time.Time) error {
	tag, err := p.tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, updatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgTx) OpenOrdersBySymbolSide(ctx context.Context, symbol, side string) ([]Order, error) {
	return openOrdersBySymbolSide(ctx, p.tx, symbol, side)
}

func (p *pgTx) InsertTrade(ctx context.Context, trade Trade) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO trades (id, buy_order_id, sell_order_id, buyer_id, seller_id, symbol,
		                    price, amount, volume, commission, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, trade.ID, trade.BuyOrderID, trade.SellOrderID, trade.BuyerID, trade.SellerID, trade.Symbol,
		trade.Price.String(), trade.Amount.String(), trade.Volume.String(), trade.Commission.String(),
		trade.CreatedAt)
	return mapError(err)
}

// InsertAudit writes the entry under a savepoint so a failed audit
// insert cannot poison the surrounding transaction. The caller logs
// and swallows the returned error.
func (p *pgTx) InsertAudit(ctx context.Context, entry AuditEntry) error {
	sp, err := p.tx.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	if err := insertAudit(ctx, sp, entry); err != nil {
		_ = sp.Rollback(ctx)
		return fmt.Errorf("audit insert: %w", err)
	}
	return mapError(sp.Commit(ctx))
}
