package service

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/storage"
)

// Holding is one user's position in a symbol, split into the total,
// the portion committed to open sell orders, and the remainder.
type Holding struct {
	Total     money.Amount
	Locked    money.Amount
	Available money.Amount
}

// AssetService manages per-symbol holdings. Mutations run inside a
// caller-owned transaction.
type AssetService struct {
	logger *slog.Logger
}

func NewAssetService(logger *slog.Logger) *AssetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetService{logger: logger}
}

// GetAssets returns the user's holdings keyed by symbol. Symbols the
// user never held are absent.
func (s *AssetService) GetAssets(ctx context.Context, store Store, userID uuid.UUID) (map[string]Holding, error) {
	assets, err := store.ListAssets(ctx, userID)
	if err != nil {
		return nil, fromStorage(err)
	}
	holdings := make(map[string]Holding, len(assets))
	for _, a := range assets {
		holdings[a.Symbol] = Holding{
			Total:     a.Amount,
			Locked:    a.LockedAmount,
			Available: a.Available(),
		}
	}
	return holdings, nil
}

// GetOrCreateAsset locks and returns the user's holding row, creating
// an empty one if the user has never held the symbol.
func (s *AssetService) GetOrCreateAsset(ctx context.Context, tx storage.Tx, userID uuid.UUID, symbol string) (storage.Asset, error) {
	if !ValidSymbol(symbol) {
		return storage.Asset{}, validationf("unsupported symbol %q", symbol)
	}
	asset, err := tx.GetOrCreateAssetForUpdate(ctx, userID, symbol)
	if err != nil {
		return storage.Asset{}, fromStorage(err)
	}
	return asset, nil
}

// LockAssets moves amount from the available portion into the locked
// pool backing an open sell order.
func (s *AssetService) LockAssets(ctx context.Context, tx storage.Tx, userID uuid.UUID, symbol string, amount money.Amount) error {
	if !amount.IsPositive() {
		return validationf("amount must be positive")
	}
	asset, err := s.GetOrCreateAsset(ctx, tx, userID, symbol)
	if err != nil {
		return err
	}
	if asset.Available().LessThan(amount) {
		return ErrInsufficientAssets
	}
	return fromStorage(tx.UpdateAssetAmounts(ctx, userID, symbol, asset.Amount, asset.LockedAmount.Add(amount)))
}

// ReleaseAssets returns amount from the locked pool to the available
// portion, reversing LockAssets on cancellation.
func (s *AssetService) ReleaseAssets(ctx context.Context, tx storage.Tx, userID uuid.UUID, symbol string, amount money.Amount) error {
	if !amount.IsPositive() {
		return validationf("amount must be positive")
	}
	asset, err := s.GetOrCreateAsset(ctx, tx, userID, symbol)
	if err != nil {
		return err
	}
	if asset.LockedAmount.LessThan(amount) {
		return ErrInsufficientLocked
	}
	return fromStorage(tx.UpdateAssetAmounts(ctx, userID, symbol, asset.Amount, asset.LockedAmount.Sub(amount)))
}

// TransferAssets settles amount from the sender's locked pool into the
// receiver's available holdings. The sender locked at order placement,
// so settlement decrements both their total and their locked pool and
// never touches their available portion. Rows are locked in ascending
// user id order.
func (s *AssetService) TransferAssets(ctx context.Context, tx storage.Tx, from, to uuid.UUID, symbol string, amount money.Amount) error {
	if !amount.IsPositive() {
		return validationf("amount must be positive")
	}
	if !ValidSymbol(symbol) {
		return validationf("unsupported symbol %q", symbol)
	}

	if from == to {
		// Self-match settlement: the total is unchanged, the locked
		// portion drains back to available.
		asset, err := tx.GetOrCreateAssetForUpdate(ctx, from, symbol)
		if err != nil {
			return fromStorage(err)
		}
		if asset.LockedAmount.LessThan(amount) {
			return ErrInsufficientLocked
		}
		return fromStorage(tx.UpdateAssetAmounts(ctx, from, symbol, asset.Amount, asset.LockedAmount.Sub(amount)))
	}

	first, second := from, to
	if bytes.Compare(second[:], first[:]) < 0 {
		first, second = second, first
	}
	locked := make(map[uuid.UUID]storage.Asset, 2)
	for _, id := range []uuid.UUID{first, second} {
		asset, err := tx.GetOrCreateAssetForUpdate(ctx, id, symbol)
		if err != nil {
			return fromStorage(err)
		}
		locked[id] = asset
	}

	sender := locked[from]
	if sender.LockedAmount.LessThan(amount) {
		return ErrInsufficientLocked
	}
	if err := tx.UpdateAssetAmounts(ctx, from, symbol, sender.Amount.Sub(amount), sender.LockedAmount.Sub(amount)); err != nil {
		return fromStorage(err)
	}
	receiver := locked[to]
	return fromStorage(tx.UpdateAssetAmounts(ctx, to, symbol, receiver.Amount.Add(amount), receiver.LockedAmount))
}

// Credit adds amount to the user's total holdings. Initial funding
// only; trading never creates or destroys assets.
func (s *AssetService) Credit(ctx context.Context, tx storage.Tx, userID uuid.UUID, symbol string, amount money.Amount) error {
	if !amount.IsPositive() {
		return validationf("amount must be positive")
	}
	asset, err := s.GetOrCreateAsset(ctx, tx, userID, symbol)
	if err != nil {
		return err
	}
	return fromStorage(tx.UpdateAssetAmounts(ctx, userID, symbol, asset.Amount.Add(amount), asset.LockedAmount))
}
