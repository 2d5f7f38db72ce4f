package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// CouponIssued is published when a referrer earns a coupon.
type CouponIssued struct {
	EventID            string    `json:"eventId"`
	ReferrerID         int       `json:"referrerId"`
	ReferredCustomerID int       `json:"referredCustomerId"`
	Coupon             string    `json:"coupon"`
	IssuedAt           time.Time `json:"issuedAt"`
}

type Notifier interface {
	NotifyReferrer(ctx context.Context, ev CouponIssued) error
}

// KafkaNotifier publishes CouponIssued events keyed by referrer id.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
}

func NewKafkaNotifier(producer sarama.SyncProducer, topic string, log *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, log: log}
}

// NewSyncProducer dials the brokers with acks from all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	return sarama.NewSyncProducer(brokers, cfg)
}

// NotifyReferrer stamps an event id when missing so consumers can
// de-duplicate redeliveries.
func (n *KafkaNotifier) NotifyReferrer(_ context.Context, ev CouponIssued) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal coupon event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic:   n.topic,
		Key:     sarama.StringEncoder(strconv.Itoa(ev.ReferrerID)),
		Value:   sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-id"), Value: []byte(ev.EventID)},
		},
	}
	partition, offset, err := n.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send coupon event: %w", err)
	}
	n.log.Info("referral: coupon event published", "referrer_id", ev.ReferrerID, "event_id", ev.EventID, "partition", partition, "offset", offset)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}

// LogNotifier only records the event. Used when no brokers are configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyReferrer(_ context.Context, ev CouponIssued) error {
	n.log.Info("referral: coupon issued", "referrer_id", ev.ReferrerID, "referred_customer_id", ev.ReferredCustomerID)
	return nil
}
