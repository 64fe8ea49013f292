package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// TradeFeed mirrors executed trades onto a Kafka topic for downstream
// consumers (analytics, reconciliation). It is optional; the service
// runs without it when no brokers are configured.
type TradeFeed struct {
	producer sarama.SyncProducer
	topic    string
}

func NewTradeFeed(brokers []string, topic string) (*TradeFeed, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &TradeFeed{producer: producer, topic: topic}, nil
}

func (f *TradeFeed) PublishTrade(ctx context.Context, trade TradePayload) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: f.topic,
		Key:   sarama.StringEncoder(trade.Symbol),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := f.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

func (f *TradeFeed) Close() error {
	if f.producer == nil {
		return nil
	}
	return f.producer.Close()
}
