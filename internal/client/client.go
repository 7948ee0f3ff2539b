package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/parlaydesk/rfqrelay/internal/auction"
	"github.com/parlaydesk/rfqrelay/internal/models"
	"github.com/parlaydesk/rfqrelay/internal/outcome"
	"github.com/parlaydesk/rfqrelay/internal/relay/gateway"
	"github.com/parlaydesk/rfqrelay/internal/wsclient"
)

// ErrNotConnected is returned when a send is attempted with no live socket.
// The caller treats it as "no bid yet": the transport reconnects on its own.
var ErrNotConnected = errors.New("not connected")

// Callbacks receive the relay's asynchronous pushes. Parse failures on inbound
// frames go to OnParseError; socket-level failures go to OnTransportError.
// All callbacks are optional.
type Callbacks struct {
	OnAuctionAck     func(payload gateway.AuctionAckPayload)
	OnBids           func(requestKey string, payload gateway.AuctionBidsPayload)
	OnAuctionCreated func(payload gateway.AuctionCreatedPayload)
	OnBidAck         func(payload gateway.BidAckPayload)
	OnBidError       func(payload gateway.BidErrorPayload)
	OnServerError    func(payload gateway.ErrorPayload)
	OnParseError     func(err error)
	OnTransportError func(err error)
}

// StartAuctionRequest is the taker-side input to StartAuction.
type StartAuctionRequest struct {
	Legs        []outcome.Leg
	Wager       string
	Taker       string
	TakerNonce  uint64
	ChainID     int64
	DurationSec int64
}

// Client is the thin request/response façade over the WS transport. Requests
// are fire-and-forget: there is no per-bid correlation, bids arrive as
// asynchronous auction.bids pushes.
type Client struct {
	transport *wsclient.Transport
	limiter   *rate.Limiter
	callbacks Callbacks

	mu           sync.Mutex
	pendingKeys  []string // request keys awaiting auction.ack, FIFO
	keyByAuction map[uuid.UUID]string
}

// Dial connects to the relay. The outbound limiter paces sends just under the
// relay's per-connection window so a well-behaved client never trips it.
func Dial(url string, config wsclient.Config, clock clockwork.Clock, callbacks Callbacks) (*Client, error) {
	c := &Client{
		// 100 per 10s server window; stay below it.
		limiter:      rate.NewLimiter(rate.Limit(9), 9),
		callbacks:    callbacks,
		keyByAuction: make(map[uuid.UUID]string),
	}

	transport, err := wsclient.Dial(url, config, clock, wsclient.Handlers{
		OnMessage: c.dispatch,
		OnError:   callbacks.OnTransportError,
	})
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	c.transport = transport
	return c, nil
}

// StartAuction validates the position locally and sends auction.start. A
// mixed or empty leg set never reaches the network: it is rejected here with
// ErrInvalidAuctionRequest, the one error surfaced to the user synchronously.
// The returned request key fingerprints (legs, wager) for bid reconciliation.
func (c *Client) StartAuction(ctx context.Context, req StartAuctionRequest) (string, error) {
	blob, family, err := outcome.Encode(req.Legs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auction.ErrInvalidAuctionRequest, err)
	}
	if wager, ok := new(big.Int).SetString(req.Wager, 10); !ok || wager.Sign() <= 0 {
		return "", fmt.Errorf("%w: wager %q must be a positive integer", auction.ErrInvalidAuctionRequest, req.Wager)
	}

	key, err := outcome.RequestKey(req.Legs, req.Wager)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auction.ErrInvalidAuctionRequest, err)
	}

	frame, err := gateway.EncodeEnvelope(gateway.MessageTypeAuctionStart, gateway.AuctionStartPayload{
		Wager:             req.Wager,
		Resolver:          family,
		PredictedOutcomes: blob,
		Taker:             req.Taker,
		TakerNonce:        req.TakerNonce,
		ChainID:           req.ChainID,
		DurationSec:       req.DurationSec,
	})
	if err != nil {
		return "", err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.pendingKeys = append(c.pendingKeys, key)
	c.mu.Unlock()

	if !c.transport.Send(frame) {
		c.mu.Lock()
		if n := len(c.pendingKeys); n > 0 && c.pendingKeys[n-1] == key {
			c.pendingKeys = c.pendingKeys[:n-1]
		}
		c.mu.Unlock()
		return key, ErrNotConnected
	}
	return key, nil
}

// SubmitBid sends a maker's bid for an auction.
func (c *Client) SubmitBid(ctx context.Context, auctionID uuid.UUID, bid models.Bid) error {
	frame, err := gateway.EncodeEnvelope(gateway.MessageTypeBidSubmit, gateway.BidSubmitPayload{
		AuctionID: auctionID,
		Bid:       bid,
	})
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if !c.transport.Send(frame) {
		return ErrNotConnected
	}
	return nil
}

// Close permanently shuts the connection down.
func (c *Client) Close() error {
	return c.transport.Close()
}

// dispatch decodes one inbound frame and routes it to the right callback. The
// auction.ack path resolves which request key an auction belongs to: acks
// arrive in send order per connection, so the pending-key queue is FIFO.
func (c *Client) dispatch(data []byte) {
	env, err := gateway.DecodeEnvelope(data)
	if err != nil {
		c.parseError(err)
		return
	}

	switch env.Type {
	case gateway.MessageTypeAuctionAck:
		var payload gateway.AuctionAckPayload
		if err := decode(env.Payload, &payload); err != nil {
			c.parseError(err)
			return
		}
		c.mu.Lock()
		if len(c.pendingKeys) > 0 {
			c.keyByAuction[payload.AuctionID] = c.pendingKeys[0]
			c.pendingKeys = c.pendingKeys[1:]
		}
		c.mu.Unlock()
		if c.callbacks.OnAuctionAck != nil {
			c.callbacks.OnAuctionAck(payload)
		}

	case gateway.MessageTypeAuctionBids:
		var payload gateway.AuctionBidsPayload
		if err := decode(env.Payload, &payload); err != nil {
			c.parseError(err)
			return
		}
		c.mu.Lock()
		key := c.keyByAuction[payload.AuctionID]
		c.mu.Unlock()
		if c.callbacks.OnBids != nil {
			c.callbacks.OnBids(key, payload)
		}

	case gateway.MessageTypeAuctionCreated:
		var payload gateway.AuctionCreatedPayload
		if err := decode(env.Payload, &payload); err != nil {
			c.parseError(err)
			return
		}
		if c.callbacks.OnAuctionCreated != nil {
			c.callbacks.OnAuctionCreated(payload)
		}

	case gateway.MessageTypeBidAck:
		var payload gateway.BidAckPayload
		if err := decode(env.Payload, &payload); err != nil {
			c.parseError(err)
			return
		}
		if c.callbacks.OnBidAck != nil {
			c.callbacks.OnBidAck(payload)
		}

	case gateway.MessageTypeBidError:
		var payload gateway.BidErrorPayload
		if err := decode(env.Payload, &payload); err != nil {
			c.parseError(err)
			return
		}
		if c.callbacks.OnBidError != nil {
			c.callbacks.OnBidError(payload)
		}

	case gateway.MessageTypeError:
		var payload gateway.ErrorPayload
		if err := decode(env.Payload, &payload); err != nil {
			c.parseError(err)
			return
		}
		if c.callbacks.OnServerError != nil {
			c.callbacks.OnServerError(payload)
		}

	default:
		log.Debug().Str("type", string(env.Type)).Msg("ignoring unknown frame type")
	}
}

func (c *Client) parseError(err error) {
	if c.callbacks.OnParseError != nil {
		c.callbacks.OnParseError(err)
		return
	}
	log.Debug().Err(err).Msg("unparseable inbound frame")
}

func decode(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
