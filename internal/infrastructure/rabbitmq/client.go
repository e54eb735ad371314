package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"

	amqp "github.com/streadway/amqp"
)

// Client publishes bidding events to a topic exchange and consumes them
// through per-subscriber queues bound to it.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      logger.Logger

	mu sync.Mutex
}

type Config struct {
	URL      string
	Exchange string
}

func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	log.Info("RabbitMQ client connected", "exchange", cfg.Exchange)

	return &Client{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		log:      log,
	}, nil
}

func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing RabbitMQ client: %v", errs)
	}
	return nil
}

// RoutingKey maps an event to "bid.accepted", "bid.rejected" or
// "auction.ended" so consumers can bind to a subset.
func RoutingKey(eventType domain.BidEventType) string {
	switch eventType {
	case domain.BidAccepted:
		return "bid.accepted"
	case domain.BidRejected:
		return "bid.rejected"
	case domain.AuctionEnded:
		return "auction.ended"
	default:
		return "event." + string(eventType)
	}
}

func (c *Client) PublishBiddingEvent(ctx context.Context, event *domain.BidEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err = c.channel.Publish(
		c.exchange,
		RoutingKey(event.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// SubscribeToBidEvents consumes every event on the exchange until ctx is done.
func (c *Client) SubscribeToBidEvents(ctx context.Context, handler domain.EventHandler) error {
	c.mu.Lock()
	q, err := c.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err == nil {
		err = c.channel.QueueBind(q.Name, "#", c.exchange, false, nil)
	}
	var deliveries <-chan amqp.Delivery
	if err == nil {
		deliveries, err = c.channel.Consume(q.Name, "", true, true, false, false, nil)
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.exchange, err)
	}

	c.log.Info("Subscribed to auction events", "exchange", c.exchange, "queue", q.Name)

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", q.Name)
			}
			event, err := decodeDelivery(d.Body)
			if err != nil {
				c.log.Error("Failed to parse event", "routing_key", d.RoutingKey, "error", err)
				continue
			}
			if err := handler(event); err != nil {
				c.log.Error("Failed to handle event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
			}
		case <-ctx.Done():
			c.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func decodeDelivery(body []byte) (*domain.BidEvent, error) {
	var event domain.BidEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	if event.Type == "" || event.AuctionID == "" {
		return nil, fmt.Errorf("event without type or auction_id")
	}
	return &event, nil
}
