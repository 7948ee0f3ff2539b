package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

// Event types published on the auction lifecycle stream.
const (
	EventTypeAuctionCreated = "auction_created"
	EventTypeBidAccepted    = "bid_accepted"
	EventTypeAuctionSwept   = "auction_swept"
)

// JetStreamConfig holds configuration for the lifecycle event stream.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
	Replicas      int
}

// DefaultJetStreamConfig returns the stock stream configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "RFQ_EVENTS",
		SubjectPrefix: "rfq.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        24 * time.Hour,
		Replicas:      1,
	}
}

// Publisher emits auction lifecycle events to JetStream. Publication is
// best-effort observability: failures are logged and never bubble into the
// auction path.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewPublisher connects to NATS and ensures the lifecycle stream exists.
func NewPublisher(cfg JetStreamConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js, config: cfg}
	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Auction lifecycle event stream",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
	}

	if _, err := p.js.Stream(ctx, p.config.StreamName); err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", p.config.StreamName).Msg("created JetStream stream")
	}
	return nil
}

// AuctionCreated publishes an auction_created event.
func (p *Publisher) AuctionCreated(ctx context.Context, a *models.Auction) {
	p.publish(ctx, EventTypeAuctionCreated, a.AuctionID, map[string]any{
		"taker":    a.Taker,
		"wager":    a.Wager,
		"resolver": a.Resolver,
		"chain_id": a.ChainID,
		"deadline": a.Deadline.UTC(),
	})
}

// BidAccepted publishes a bid_accepted event.
func (p *Publisher) BidAccepted(ctx context.Context, auctionID uuid.UUID, bid models.Bid) {
	p.publish(ctx, EventTypeBidAccepted, auctionID, map[string]any{
		"maker":          bid.Maker,
		"maker_wager":    bid.MakerWager,
		"maker_deadline": bid.MakerDeadline,
		"maker_nonce":    bid.MakerNonce,
	})
}

// AuctionSwept publishes an auction_swept event.
func (p *Publisher) AuctionSwept(ctx context.Context, a *models.Auction) {
	p.publish(ctx, EventTypeAuctionSwept, a.AuctionID, map[string]any{
		"deadline":  a.Deadline.UTC(),
		"bid_count": len(a.Bids),
	})
}

func (p *Publisher) publish(ctx context.Context, eventType string, auctionID uuid.UUID, payload map[string]any) {
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, eventType)

	env := map[string]any{
		"event_type": eventType,
		"auction_id": auctionID.String(),
		"timestamp":  time.Now().UTC(),
		"payload":    payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal lifecycle event")
		return
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Str("auction_id", auctionID.String()).
			Msg("failed to publish lifecycle event")
		return
	}

	log.Debug().
		Str("subject", subject).
		Str("auction_id", auctionID.String()).
		Msg("published lifecycle event")
}

// Close releases the NATS connection.
func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
