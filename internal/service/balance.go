package service

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/money"
	"github.com/gospotdev/gospot/internal/storage"
)

// BalanceService moves USD between a user's available balance and the
// locked pool committed to open buy orders. Every mutation runs inside
// a transaction the caller owns; the service never opens its own.
type BalanceService struct {
	logger *slog.Logger
}

func NewBalanceService(logger *slog.Logger) *BalanceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BalanceService{logger: logger}
}

// GetBalance returns the user's available USD balance.
func (s *BalanceService) GetBalance(ctx context.Context, store Store, userID uuid.UUID) (money.Amount, error) {
	user, err := store.GetUserByID(ctx, userID)
	if err != nil {
		return money.Zero(), fromStorage(err)
	}
	return user.Balance, nil
}

// LockFunds commits amount out of the user's available balance. The
// locked total is implicit: it equals the sum of the user's open buy
// orders' price x amount.
func (s *BalanceService) LockFunds(ctx context.Context, tx storage.Tx, userID uuid.UUID, amount money.Amount) error {
	if !amount.IsPositive() {
		return validationf("amount must be positive")
	}
	user, err := tx.GetUserForUpdate(ctx, userID)
	if err != nil {
		return fromStorage(err)
	}
	if user.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	return fromStorage(tx.UpdateUserBalance(ctx, userID, user.Balance.Sub(amount)))
}

// ReleaseFunds returns previously locked USD to the available balance.
// Release can never be insufficient; the caller vouches that the
// amount was locked.
func (s *BalanceService) ReleaseFunds(ctx context.Context, tx storage.Tx, userID uuid.UUID, amount money.Amount) error {
	if !amount.IsPositive() {
		return validationf("amount must be positive")
	}
	user, err := tx.GetUserForUpdate(ctx, userID)
	if err != nil {
		return fromStorage(err)
	}
	return fromStorage(tx.UpdateUserBalance(ctx, userID, user.Balance.Add(amount)))
}

// TransferUSD moves amount from one user's available balance to
// another's. Both rows are locked in ascending id order so concurrent
// transfers cannot deadlock.
func (s *BalanceService) TransferUSD(ctx context.Context, tx storage.Tx, from, to uuid.UUID, amount money.Amount) error {
	if !amount.IsPositive() {
		return validationf("amount must be positive")
	}
	if from == to {
		// Self-transfer: a single lock and a balance check; the net
		// movement is zero.
		user, err := tx.GetUserForUpdate(ctx, from)
		if err != nil {
			return fromStorage(err)
		}
		if user.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		return nil
	}

	first, second := from, to
	if bytes.Compare(second[:], first[:]) < 0 {
		first, second = second, first
	}
	locked := make(map[uuid.UUID]storage.User, 2)
	for _, id := range []uuid.UUID{first, second} {
		user, err := tx.GetUserForUpdate(ctx, id)
		if err != nil {
			return fromStorage(err)
		}
		locked[id] = user
	}

	sender := locked[from]
	if sender.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	if err := tx.UpdateUserBalance(ctx, from, sender.Balance.Sub(amount)); err != nil {
		return fromStorage(err)
	}
	return fromStorage(tx.UpdateUserBalance(ctx, to, locked[to].Balance.Add(amount)))
}

// DeductCommission removes amount from the user's balance with no
// matching release; the house keeps it.
func (s *BalanceService) DeductCommission(ctx context.Context, tx storage.Tx, userID uuid.UUID, amount money.Amount) error {
	if err := s.LockFunds(ctx, tx, userID, amount); err != nil {
		return err
	}
	return nil
}
