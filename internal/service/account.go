package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/auth"
	"github.com/gospotdev/gospot/internal/storage"
)

const minPasswordLength = 8

// AccountService handles registration, login, and account views. New
// accounts are seeded with the standard starting balance and holdings.
type AccountService struct {
	store     Store
	assets    *AssetService
	jwtSecret []byte
	jwtTTL    time.Duration
	argon     auth.Argon2Params
	logger    *slog.Logger
}

func NewAccountService(store Store, assets *AssetService, jwtSecret []byte, jwtTTL time.Duration, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:     store,
		assets:    assets,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		argon:     auth.DefaultArgon2Params(),
		logger:    logger,
	}
}

// Register creates a user with the seed balance and holdings and
// returns a session token.
func (s *AccountService) Register(ctx context.Context, name, email, password, confirmation, ip string) (storage.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" {
		return storage.User{}, "", validationf("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return storage.User{}, "", validationf("invalid email address")
	}
	if len(password) < minPasswordLength {
		return storage.User{}, "", validationf("password must be at least %d characters", minPasswordLength)
	}
	if password != confirmation {
		return storage.User{}, "", validationf("password confirmation does not match")
	}

	hash, err := auth.HashPassword(password, s.argon)
	if err != nil {
		return storage.User{}, "", err
	}

	user := storage.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Balance:      seedBalance,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertUser(ctx, user); err != nil {
			if errors.Is(err, storage.ErrDuplicateEmail) {
				return validationf("email already registered")
			}
			return fromStorage(err)
		}
		for _, symbol := range Symbols() {
			if err := s.assets.Credit(ctx, tx, user.ID, symbol, seedAssets[symbol]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storage.User{}, "", fromStorage(err)
	}

	s.audit(ctx, user.ID, ActionUserRegistered, ip)

	token, _, err := auth.MintJWT(user.ID, user.Name, s.jwtSecret, s.jwtTTL, time.Now())
	if err != nil {
		return storage.User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials and mints a session token. Unknown
// emails and wrong passwords both come back as ErrUnauthorized.
func (s *AccountService) Login(ctx context.Context, email, password, ip string) (storage.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.User{}, "", ErrUnauthorized
		}
		return storage.User{}, "", fromStorage(err)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return storage.User{}, "", ErrUnauthorized
	}

	s.audit(ctx, user.ID, ActionUserLogin, ip)

	token, _, err := auth.MintJWT(user.ID, user.Name, s.jwtSecret, s.jwtTTL, time.Now())
	if err != nil {
		return storage.User{}, "", err
	}
	return user, token, nil
}

// Logout records the action. Tokens are stateless, so there is
// nothing to revoke server-side.
func (s *AccountService) Logout(ctx context.Context, userID uuid.UUID, ip string) {
	s.audit(ctx, userID, ActionUserLogout, ip)
}

// Me returns the authenticated user.
func (s *AccountService) Me(ctx context.Context, userID uuid.UUID) (storage.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return storage.User{}, fromStorage(err)
	}
	return user, nil
}

// GetProfile returns the user together with their holdings.
func (s *AccountService) GetProfile(ctx context.Context, userID uuid.UUID) (storage.User, []storage.Asset, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return storage.User{}, nil, fromStorage(err)
	}
	assets, err := s.store.ListAssets(ctx, userID)
	if err != nil {
		return storage.User{}, nil, fromStorage(err)
	}
	return user, assets, nil
}

func (s *AccountService) audit(ctx context.Context, userID uuid.UUID, action, ip string) {
	entry := storage.AuditEntry{
		UserID:     userID,
		Action:     action,
		EntityKind: "user",
		EntityID:   userID.String(),
		IP:         ip,
	}
	if err := s.store.InsertAudit(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}
