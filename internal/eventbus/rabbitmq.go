package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const publishTimeout = 5 * time.Second

// Event routing keys published by the fulfillment service.
const (
	RoutingKeyLowStock     = "stock.low"
	RoutingKeyOrderCreated = "order.created"
)

type LowStockAlert struct {
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderCreated struct {
	StoreID     string    `json:"store_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  string    `json:"customer_id"`
	Total       string    `json:"total"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher pushes fulfillment events to a RabbitMQ topic exchange. A nil
// *Publisher is a no-op so the service runs without a broker configured.
type Publisher struct {
	conn          *amqp.Connection
	channel       *amqp.Channel
	exchange      string
	confirms      chan amqp.Confirmation
	awaitConfirms bool
	logger        zerolog.Logger
}

// NewPublisher dials the broker and declares the exchange. Pass confirm=true
// to wait for broker acks on each publish.
func NewPublisher(url, exchange string, confirm bool, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}

	if confirm {
		if err := ch.Confirm(false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("enable publisher confirms: %w", err)
		}
		p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
		p.awaitConfirms = true
	}

	logger.Info().Str("exchange", exchange).Msg("event bus publisher ready")
	return p, nil
}

// Publish marshals payload and sends it under routingKey. No-op on a nil
// publisher.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if p == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.channel.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	if !p.awaitConfirms {
		return nil
	}

	select {
	case confirm := <-p.confirms:
		if !confirm.Ack {
			return errors.New("event published but not confirmed")
		}
		return nil
	case <-time.After(publishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
}
