package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/gospotdev/gospot/internal/auth"
)

// GenerateJWT mints a bearer token outside the login flow, for tests
// that need a token the API never issued (stale sessions, foreign
// users).
func GenerateJWT(userID uuid.UUID, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	token, _, err := auth.MintJWT(userID, "test-user", secret, ttl, now)
	return token, err
}
