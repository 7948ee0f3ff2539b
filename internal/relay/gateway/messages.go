package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

// MessageType identifies a frame on the wire.
type MessageType string

const (
	MessageTypeAuctionStart   MessageType = "auction.start"
	MessageTypeAuctionAck     MessageType = "auction.ack"
	MessageTypeAuctionCreated MessageType = "auction.created"
	MessageTypeAuctionBids    MessageType = "auction.bids"
	MessageTypeBidSubmit      MessageType = "bid.submit"
	MessageTypeBidAck         MessageType = "bid.ack"
	MessageTypeBidError       MessageType = "bid.error"
	MessageTypeError          MessageType = "error"
)

// Error codes carried by error and bid.error frames.
const (
	ErrorCodeParse             = "parse_error"
	ErrorCodeUnknownType       = "unknown_type"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeInvalidRequest    = "invalid_auction_request"
	ErrorCodeAuctionExpired    = "auction_expired"
	ErrorCodeAuctionNotFound   = "auction_not_found"
	ErrorCodeInvalidBid        = "invalid_bid"
)

// Envelope is the wire frame: a type tag and a type-specific payload.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AuctionStartPayload opens an auction (taker → relay).
type AuctionStartPayload struct {
	Wager             string                `json:"wager"`
	Resolver          models.ResolverFamily `json:"resolver"`
	PredictedOutcomes []byte                `json:"predictedOutcomes"`
	Taker             string                `json:"taker"`
	TakerNonce        uint64                `json:"takerNonce"`
	ChainID           int64                 `json:"chainId"`
	DurationSec       int64                 `json:"durationSec,omitempty"`
}

// AuctionAckPayload confirms auction creation (relay → taker).
type AuctionAckPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	Deadline  time.Time `json:"deadline"`
}

// AuctionCreatedPayload announces a new auction to subscribed makers.
type AuctionCreatedPayload struct {
	AuctionID         uuid.UUID             `json:"auctionId"`
	Wager             string                `json:"wager"`
	Resolver          models.ResolverFamily `json:"resolver"`
	PredictedOutcomes []byte                `json:"predictedOutcomes"`
	ChainID           int64                 `json:"chainId"`
	Deadline          time.Time             `json:"deadline"`
}

// BidSubmitPayload submits a bid (maker → relay).
type BidSubmitPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	models.Bid
}

// BidAckPayload confirms bid admission (relay → maker). Duplicate re-sends
// are acked identically.
type BidAckPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
}

// BidErrorPayload rejects a bid (relay → maker).
type BidErrorPayload struct {
	AuctionID uuid.UUID `json:"auctionId"`
	Reason    string    `json:"reason"`
}

// AuctionBidsPayload pushes the auction's full bid list to its taker. It may
// repeat many times for one auction as bids accumulate.
type AuctionBidsPayload struct {
	AuctionID uuid.UUID    `json:"auctionId"`
	Bids      []models.Bid `json:"bids"`
}

// ErrorPayload reports a protocol-level rejection on the offending connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeEnvelope parses a frame. The transport enforces the size cap before
// the bytes ever reach this point.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &env, nil
}

// EncodeEnvelope builds a frame from a type tag and payload struct.
func EncodeEnvelope(t MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}
