package testutil

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/storage"
)

// AssetKey identifies one user's holding of one symbol.
type AssetKey struct {
	UserID uuid.UUID
	Symbol string
}

// MemStore is an in-memory stand-in for storage.Store. Transactions
// are serialized by a mutex, which gives the same linearizable
// behavior the real store gets from row locks, and roll back by
// restoring a snapshot. It satisfies the service-layer Store
// interface.
type MemStore struct {
	mu     sync.Mutex
	Users  map[uuid.UUID]storage.User
	Assets map[AssetKey]storage.Asset
	Orders map[uuid.UUID]storage.Order
	Trades []storage.Trade
	Audits []storage.AuditEntry

	// FailAudit makes every audit insert fail, to exercise the
	// swallow-and-log contract.
	FailAudit bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		Users:  make(map[uuid.UUID]storage.User),
		Assets: make(map[AssetKey]storage.Asset),
		Orders: make(map[uuid.UUID]storage.Order),
	}
}

// SeedUser inserts a user with the given balance and returns its id.
func (s *MemStore) SeedUser(name, email, balance string) uuid.UUID {
	return s.SeedUserID(uuid.New(), name, email, balance)
}

// SeedUserID inserts a user under a fixed id, for tests that depend on
// id ordering.
func (s *MemStore) SeedUserID(id uuid.UUID, name, email, balance string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Users[id] = storage.User{
		ID:        id,
		Name:      name,
		Email:     strings.ToLower(email),
		Balance:   money.MustParse(balance),
		CreatedAt: time.Now().UTC(),
	}
	return id
}

// SeedAsset sets a user's holding outright.
func (s *MemStore) SeedAsset(userID uuid.UUID, symbol, amount, locked string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Assets[AssetKey{userID, symbol}] = storage.Asset{
		UserID:       userID,
		Symbol:       symbol,
		Amount:       money.MustParse(amount),
		LockedAmount: money.MustParse(locked),
	}
}

// User returns the current state of a seeded user.
func (s *MemStore) User(id uuid.UUID) storage.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Users[id]
}

// Asset returns the current state of a holding; a zero Asset if none.
func (s *MemStore) Asset(userID uuid.UUID, symbol string) storage.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Assets[AssetKey{userID, symbol}]
}

// Order returns the current state of an order.
func (s *MemStore) Order(id uuid.UUID) storage.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Orders[id]
}

// AllTrades copies the trade log.
func (s *MemStore) AllTrades() []storage.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Trade(nil), s.Trades...)
}

// AllAudits copies the audit log.
func (s *MemStore) AllAudits() []storage.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.AuditEntry(nil), s.Audits...)
}

func (s *MemStore) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	users  map[uuid.UUID]storage.User
	assets map[AssetKey]storage.Asset
	orders map[uuid.UUID]storage.Order
	trades []storage.Trade
	audits []storage.AuditEntry
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		users:  make(map[uuid.UUID]storage.User, len(s.Users)),
		assets: make(map[AssetKey]storage.Asset, len(s.Assets)),
		orders: make(map[uuid.UUID]storage.Order, len(s.Orders)),
		trades: append([]storage.Trade(nil), s.Trades...),
		audits: append([]storage.AuditEntry(nil), s.Audits...),
	}
	for k, v := range s.Users {
		snap.users[k] = v
	}
	for k, v := range s.Assets {
		snap.assets[k] = v
	}
	for k, v := range s.Orders {
		snap.orders[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.Users = snap.users
	s.Assets = snap.assets
	s.Orders = snap.orders
	s.Trades = snap.trades
	s.Audits = snap.audits
}

func (s *MemStore) GetUserByID(ctx context.Context, id uuid.UUID) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.Users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return user, nil
}

func (s *MemStore) GetUserByEmail(ctx context.Context, email string) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, user := range s.Users {
		if user.Email == email {
			return user, nil
		}
	}
	return storage.User{}, storage.ErrNotFound
}

func (s *MemStore) ListAssets(ctx context.Context, userID uuid.UUID) ([]storage.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listAssetsLocked(userID), nil
}

func (s *MemStore) listAssetsLocked(userID uuid.UUID) []storage.Asset {
	var assets []storage.Asset
	for key, asset := range s.Assets {
		if key.UserID == userID {
			assets = append(assets, asset)
		}
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })
	return assets
}

func (s *MemStore) GetOrderByID(ctx context.Context, id uuid.UUID) (storage.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[id]
	if !ok {
		return storage.Order{}, storage.ErrNotFound
	}
	return order, nil
}

func (s *MemStore) ListUserOrders(ctx context.Context, userID uuid.UUID, status string) ([]storage.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []storage.Order
	for _, order := range s.Orders {
		if order.UserID != userID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return bytes.Compare(orders[i].ID[:], orders[j].ID[:]) > 0
	})
	return orders, nil
}

func (s *MemStore) OrderBook(ctx context.Context, symbol string) ([]storage.Order, []storage.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buys := s.openOrdersLocked(symbol, storage.SideBuy)
	sells := s.openOrdersLocked(symbol, storage.SideSell)
	return buys, sells, nil
}

func (s *MemStore) openOrdersLocked(symbol, side string) []storage.Order {
	var orders []storage.Order
	for _, order := range s.Orders {
		if order.Symbol == symbol && order.Side == side && order.Status == storage.OrderStatusOpen {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		cmp := orders[i].Price.Cmp(orders[j].Price)
		if cmp != 0 {
			if side == storage.SideBuy {
				return cmp > 0
			}
			return cmp < 0
		}
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return bytes.Compare(orders[i].ID[:], orders[j].ID[:]) < 0
	})
	return orders
}

func (s *MemStore) InsertAudit(ctx context.Context, entry storage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAudit {
		return errors.New("audit sink unavailable")
	}
	s.Audits = append(s.Audits, entry)
	return nil
}

// memTx mutates the store directly; MemStore.WithTx already holds the
// lock and handles rollback.
type memTx struct {
	store *MemStore
}

func (t *memTx) InsertUser(ctx context.Context, user storage.User) error {
	for _, existing := range t.store.Users {
		if existing.Email == user.Email {
			return storage.ErrDuplicateEmail
		}
	}
	t.store.Users[user.ID] = user
	return nil
}

func (t *memTx) GetUserForUpdate(ctx context.Context, id uuid.UUID) (storage.User, error) {
	user, ok := t.store.Users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return user, nil
}

func (t *memTx) UpdateUserBalance(ctx context.Context, id uuid.UUID, balance money.Amount) error {
	user, ok := t.store.Users[id]
	if !ok {
		return storage.ErrNotFound
	}
	user.Balance = balance
	t.store.Users[id] = user
	return nil
}

func (t *memTx) CreateAsset(ctx context.Context, asset storage.Asset) error {
	t.store.Assets[AssetKey{asset.UserID, asset.Symbol}] = asset
	return nil
}

func (t *memTx) GetOrCreateAssetForUpdate(ctx context.Context, userID uuid.UUID, symbol string) (storage.Asset, error) {
	key := AssetKey{userID, symbol}
	asset, ok := t.store.Assets[key]
	if !ok {
		asset = storage.Asset{UserID: userID, Symbol: symbol}
		t.store.Assets[key] = asset
	}
	return asset, nil
}

func (t *memTx) UpdateAssetAmounts(ctx context.Context, userID uuid.UUID, symbol string, amount, locked money.Amount) error {
	key := AssetKey{userID, symbol}
	asset, ok := t.store.Assets[key]
	if !ok {
		return storage.ErrNotFound
	}
	asset.Amount = amount
	asset.LockedAmount = locked
	t.store.Assets[key] = asset
	return nil
}

func (t *memTx) ListAssets(ctx context.Context, userID uuid.UUID) ([]storage.Asset, error) {
	return t.store.listAssetsLocked(userID), nil
}

func (t *memTx) InsertOrder(ctx context.Context, order storage.Order) error {
	t.store.Orders[order.ID] = order
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (storage.Order, error) {
	order, ok := t.store.Orders[id]
	if !ok {
		return storage.Order{}, storage.ErrNotFound
	}
	return order, nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string, updatedAt time.Time) error {
	order, ok := t.store.Orders[id]
	if !ok {
		return storage.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = updatedAt
	t.store.Orders[id] = order
	return nil
}

func (t *memTx) OpenOrdersBySymbolSide(ctx context.Context, symbol, side string) ([]storage.Order, error) {
	return t.store.openOrdersLocked(symbol, side), nil
}

func (t *memTx) InsertTrade(ctx context.Context, trade storage.Trade) error {
	t.store.Trades = append(t.store.Trades, trade)
	return nil
}

func (t *memTx) InsertAudit(ctx context.Context, entry storage.AuditEntry) error {
	if t.store.FailAudit {
		return errors.New("audit sink unavailable")
	}
	t.store.Audits = append(t.store.Audits, entry)
	return nil
}
