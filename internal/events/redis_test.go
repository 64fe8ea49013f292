package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gospotdev/gospot/internal/money"
)

func TestRedisPublisherRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	userID := uuid.New()

	sub := client.Subscribe(ctx, UserChannel(userID))
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := NewRedisPublisher(client)
	event := MatchEvent{
		Type: OrderMatched,
		Trade: TradePayload{
			ID:         uuid.New(),
			Symbol:     "BTC",
			Price:      money.MustParse("50000"),
			Amount:     money.MustParse("1"),
			Volume:     money.MustParse("50000"),
			Commission: money.MustParse("750"),
			CreatedAt:  time.Now().UTC(),
		},
		UserBalance: BalanceSnapshot{USDBalance: money.MustParse("50000")},
		UserAssets: map[string]AssetSnapshot{
			"BTC": {Total: money.MustParse("1"), Locked: money.MustParse("0"), Available: money.MustParse("1")},
		},
	}
	if err := pub.PublishMatch(ctx, userID, event); err != nil {
		t.Fatalf("PublishMatch: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got MatchEvent
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got.Type != OrderMatched {
			t.Fatalf("type = %q, want %q", got.Type, OrderMatched)
		}
		if got.Trade.Price.String() != "50000.00000000" {
			t.Fatalf("price = %s, want 50000.00000000", got.Trade.Price)
		}
		if got.UserAssets["BTC"].Total.String() != "1.00000000" {
			t.Fatalf("asset snapshot mangled: %+v", got.UserAssets)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message on user channel")
	}
}

func TestMatchEventWireFormat(t *testing.T) {
	event := MatchEvent{
		Type:        OrderMatched,
		Trade:       TradePayload{Price: money.MustParse("0.5")},
		UserBalance: BalanceSnapshot{USDBalance: money.MustParse("10000")},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Money travels as strings with exactly eight fractional digits.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var balance struct {
		USDBalance string `json:"usd_balance"`
	}
	if err := json.Unmarshal(raw["user_balance"], &balance); err != nil {
		t.Fatalf("unmarshal balance: %v", err)
	}
	if balance.USDBalance != "10000.00000000" {
		t.Fatalf("usd_balance = %q, want string 10000.00000000", balance.USDBalance)
	}
}
