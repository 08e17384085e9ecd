package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// SignatureHeader несет HMAC-SHA256 тела сообщения в base64
const SignatureHeader = "x-signature"

const (
	RoutingTransferCompleted    = "transfer.completed"
	RoutingAccountStatusChanged = "account.status_changed"
)

// TransferCompleted публикуется после фиксации перевода
type TransferCompleted struct {
	Reference       string    `json:"reference"`
	FromAccountID   uint      `json:"from_account_id"`
	ToAccountID     uint      `json:"to_account_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	InitiatedBy     string    `json:"initiated_by"`
	RecipientUserID string    `json:"recipient_user_id"`
	CompletedAt     time.Time `json:"completed_at"`
}

// AccountStatusChanged публикуется после смены статуса счета
type AccountStatusChanged struct {
	AccountID uint      `json:"account_id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

// Publisher публикует доменные события
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

// FallbackPublisher используется, когда брокер не настроен или недоступен
type FallbackPublisher struct{}

func (FallbackPublisher) Publish(_ context.Context, routingKey string, _ interface{}) error {
	utils.LogDebug("event publish skipped (no broker): routing_key=%s", routingKey)
	return nil
}

func (FallbackPublisher) Close() {}

// EventProducer публикует события в topic exchange RabbitMQ
type EventProducer struct {
	mu         sync.Mutex
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	exchange   string
	signingKey []byte
}

// NewEventProducer подключается к брокеру и объявляет exchange.
// С непустым signingKey каждое сообщение подписывается.
func NewEventProducer(amqpURL, exchange string, signingKey []byte) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("exchange name is required")
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange, signingKey: signingKey}, nil
}

// Publish отправляет событие; при сбое канала переоткрывает его и повторяет один раз
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	msg, err := buildMessage(body, p.signingKey, time.Now())
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	utils.LogError("publish %s failed, reopening channel: %v", routingKey, err)

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("reopen channel: %w", chErr)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		ch.Close()
		return err
	}
	p.channel.Close()
	p.channel = ch
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close закрывает канал и соединение
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func buildMessage(body interface{}, signingKey []byte, now time.Time) (amqp091.Publishing, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return amqp091.Publishing{}, err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now.UTC(),
		Body:         payload,
	}
	if len(signingKey) > 0 {
		msg.Headers = amqp091.Table{SignatureHeader: utils.SignPayload(payload, signingKey)}
	}
	return msg, nil
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
