// Command seed provisions demo accounts for local development. It
// refuses to run unless SEED_CONFIRM=yes, and upserts so re-running is
// safe.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gospotdev/gospot/internal/auth"
	"github.com/gospotdev/gospot/internal/config"
)

type demoUser struct {
	id       uuid.UUID
	name     string
	email    string
	password string
}

var demoUsers = []demoUser{
	{
		id:       uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		name:     "Demo Trader",
		email:    "demo@example.com",
		password: "demo-password-1",
	},
	{
		id:       uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		name:     "Paper Trader",
		email:    "trader@example.com",
		password: "trader-password-1",
	},
}

const (
	seedBalance = "10000.00000000"
	seedBTC     = "1.00000000"
	seedETH     = "10.00000000"
)

func main() {
	if os.Getenv("SEED_CONFIRM") != "yes" {
		log.Fatal("refusing to seed: set SEED_CONFIRM=yes")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	for _, u := range demoUsers {
		if err := seedUser(ctx, pool, u); err != nil {
			log.Fatalf("seed %s: %v", u.email, err)
		}
		fmt.Printf("seeded %s (%s)\n", u.email, u.id)
	}
}

func seedUser(ctx context.Context, pool *pgxpool.Pool, u demoUser) error {
	hash, err := auth.HashPassword(u.password, auth.DefaultArgon2Params())
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash
	`, u.id, u.name, u.email, hash, seedBalance)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	holdings := map[string]string{"BTC": seedBTC, "ETH": seedETH}
	for symbol, amount := range holdings {
		_, err = pool.Exec(ctx, `
			INSERT INTO assets (user_id, symbol, amount, locked_amount)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (user_id, symbol) DO NOTHING
		`, u.id, symbol, amount)
		if err != nil {
			return fmt.Errorf("upsert asset %s: %w", symbol, err)
		}
	}
	return nil
}
