package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gospotdev/gospot/internal/money"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrTransient      = errors.New("transient storage conflict")
)

const defaultLockTimeout = 3 * time.Second

// querier is the slice of pgx shared by pgxpool.Pool and pgx.Tx, so
// read helpers work inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func New(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn in a single transaction with a bounded row-lock wait.
// Lock waits past the timeout, deadlocks, and serialization failures
// come back as ErrTransient.
func (s *Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = pgtx.Rollback(ctx)
		}
	}()

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := pgtx.Exec(ctx, timeout); err != nil {
		return mapError(err)
	}
	if err := fn(&pgTx{tx: pgtx}); err != nil {
		return mapError(err)
	}
	if err := pgtx.Commit(ctx); err != nil {
		return mapError(err)
	}
	committed = true
	return nil
}

const userColumns = `id, name, email, password_hash, balance::text, created_at`

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	u, err := scanUser(row)
	if err != nil {
		return User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := getUser(ctx, s.pool, id, false)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) ListAssets(ctx context.Context, userID uuid.UUID) ([]Asset, error) {
	return listAssets(ctx, s.pool, userID)
}

func (s *Store) GetOrderByID(ctx context.Context, id uuid.UUID) (Order, error) {
	return getOrder(ctx, s.pool, id, false)
}

// ListUserOrders returns the user's orders newest first, optionally
// filtered by status.
func (s *Store) ListUserOrders(ctx context.Context, userID uuid.UUID, status string) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// OrderBook returns the open orders for a symbol: buys sorted price
// descending, sells price ascending, creation time breaking ties.
func (s *Store) OrderBook(ctx context.Context, symbol string) (buys []Order, sells []Order, err error) {
	buys, err = openOrdersBySymbolSide(ctx, s.pool, symbol, SideBuy)
	if err != nil {
		return nil, nil, err
	}
	sells, err = openOrdersBySymbolSide(ctx, s.pool, symbol, SideSell)
	if err != nil {
		return nil, nil, err
	}
	return buys, sells, nil
}

// InsertAudit writes an orchestrator-level audit entry outside any
// transaction. The caller decides whether a failure matters.
func (s *Store) InsertAudit(ctx context.Context, entry AuditEntry) error {
	return insertAudit(ctx, s.pool, entry)
}

func getUser(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	u, err := scanUser(q.QueryRow(ctx, query, id))
	if err != nil {
		return User{}, mapError(err)
	}
	return u, nil
}

const assetColumns = `user_id, symbol, amount::text, locked_amount::text`

func listAssets(ctx context.Context, q querier, userID uuid.UUID) ([]Asset, error) {
	rows, err := q.Query(ctx, `SELECT `+assetColumns+` FROM assets WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectAssets(rows)
}

const orderColumns = `id, user_id, symbol, side, price::text, amount::text, status, created_at, updated_at`

func getOrder(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return Order{}, mapError(err)
	}
	return o, nil
}

func openOrdersBySymbolSide(ctx context.Context, q querier, symbol, side string) ([]Order, error) {
	rows, err := q.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE symbol = $1 AND side = $2 AND status = $3
		ORDER BY `+priceOrdering(side)+`, created_at ASC, id ASC
	`, symbol, side, OrderStatusOpen)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// priceOrdering gives the best-price-first sort for a side: buys pay
// the most first, sells ask the least first.
func priceOrdering(side string) string {
	if side == SideBuy {
		return "price DESC"
	}
	return "price ASC"
}

func insertAudit(ctx context.Context, q querier, entry AuditEntry) error {
	var userID any
	if entry.UserID != uuid.Nil {
		userID = entry.UserID
	}
	_, err := q.Exec(ctx, `
		INSERT INTO audit_logs (user_id, action, entity_kind, entity_id, details, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, userID, entry.Action, entry.EntityKind, entry.EntityID, entry.Details, entry.IP)
	return mapError(err)
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u          User
		balanceStr string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &balanceStr, &u.CreatedAt); err != nil {
		return User{}, err
	}
	balance, err := money.Parse(balanceStr)
	if err != nil {
		return User{}, fmt.Errorf("parse balance: %w", err)
	}
	u.Balance = balance
	return u, nil
}

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a                    Asset
		amountStr, lockedStr string
	)
	if err := row.Scan(&a.UserID, &a.Symbol, &amountStr, &lockedStr); err != nil {
		return Asset{}, err
	}
	var err error
	if a.Amount, err = money.Parse(amountStr); err != nil {
		return Asset{}, fmt.Errorf("parse asset amount: %w", err)
	}
	if a.LockedAmount, err = money.Parse(lockedStr); err != nil {
		return Asset{}, fmt.Errorf("parse locked amount: %w", err)
	}
	return a, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                   Order
		priceStr, amountStr string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &o.Side, &priceStr, &amountStr, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	var err error
	if o.Price, err = money.Parse(priceStr); err != nil {
		return Order{}, fmt.Errorf("parse order price: %w", err)
	}
	if o.Amount, err = money.Parse(amountStr); err != nil {
		return Order{}, fmt.Errorf("parse order amount: %w", err)
	}
	return o, nil
}

func collectAssets(rows pgx.Rows) ([]Asset, error) {
	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, mapError(err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return assets, nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapError(err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return orders, nil
}

// mapError translates driver states into storage sentinels. Domain
// errors pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "55P03" || pgErr.Code == "40P01" || pgErr.Code == "40001":
			return fmt.Errorf("%w: %s", ErrTransient, pgErr.Code)
		case strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: connection: %s", ErrTransient, pgErr.Code)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
