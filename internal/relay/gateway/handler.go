package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parlaydesk/rfqrelay/internal/auction"
	"github.com/parlaydesk/rfqrelay/internal/models"
)

// Handler dispatches decoded frames to the auction registry and routes the
// results back out: acks to the sender, bid pushes to the bound taker,
// auction announcements to the maker pool.
type Handler struct {
	registry *auction.Registry
	manager  *ConnectionManager
}

// NewHandler creates a message handler over the registry. Wire it to a
// connection manager with SetManager before serving.
func NewHandler(registry *auction.Registry) *Handler {
	return &Handler{registry: registry}
}

// SetManager attaches the connection manager. Handler and manager reference
// each other, so construction happens in two steps.
func (h *Handler) SetManager(m *ConnectionManager) {
	h.manager = m
}

// HandleMessage processes one inbound frame. Parse failures are answered with
// a typed error frame and never tear down the connection.
func (h *Handler) HandleMessage(conn *Connection, data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("unparseable frame")
		h.sendError(conn, ErrorCodeParse, "unparseable message")
		return
	}

	ctx := context.Background()
	switch env.Type {
	case MessageTypeAuctionStart:
		h.handleAuctionStart(ctx, conn, env.Payload)
	case MessageTypeBidSubmit:
		h.handleBidSubmit(ctx, conn, env.Payload)
	default:
		h.sendError(conn, ErrorCodeUnknownType, "unknown message type "+string(env.Type))
	}
}

func (h *Handler) handleAuctionStart(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req AuctionStartPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, ErrorCodeParse, "malformed auction.start payload")
		return
	}

	a, err := h.registry.StartAuction(ctx, auction.StartAuctionParams{
		Taker:             req.Taker,
		Wager:             req.Wager,
		Resolver:          req.Resolver,
		PredictedOutcomes: req.PredictedOutcomes,
		TakerNonce:        req.TakerNonce,
		ChainID:           req.ChainID,
		Duration:          time.Duration(req.DurationSec) * time.Second,
	})
	if err != nil {
		if errors.Is(err, auction.ErrInvalidAuctionRequest) {
			h.sendError(conn, ErrorCodeInvalidRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("auction start failed")
		h.sendError(conn, ErrorCodeInvalidRequest, "auction could not be started")
		return
	}

	// The starting connection receives all bid pushes for this auction.
	h.manager.BindTaker(a.AuctionID, conn)

	h.sendEnvelope(conn, MessageTypeAuctionAck, AuctionAckPayload{
		AuctionID: a.AuctionID,
		Deadline:  a.Deadline,
	})

	announcement, err := EncodeEnvelope(MessageTypeAuctionCreated, AuctionCreatedPayload{
		AuctionID:         a.AuctionID,
		Wager:             a.Wager,
		Resolver:          a.Resolver,
		PredictedOutcomes: a.PredictedOutcomes,
		ChainID:           a.ChainID,
		Deadline:          a.Deadline,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode auction announcement")
		return
	}
	h.manager.BroadcastToMakers(announcement)
}

func (h *Handler) handleBidSubmit(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req BidSubmitPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, ErrorCodeParse, "malformed bid.submit payload")
		return
	}

	bids, err := h.registry.SubmitBid(ctx, req.AuctionID, models.Bid{
		Maker:            req.Maker,
		MakerWager:       req.MakerWager,
		MakerDeadline:    req.MakerDeadline,
		MakerSignature:   req.MakerSignature,
		MakerNonce:       req.MakerNonce,
		ValidationStatus: req.ValidationStatus,
	})
	if err != nil {
		h.sendEnvelope(conn, MessageTypeBidError, BidErrorPayload{
			AuctionID: req.AuctionID,
			Reason:    bidErrorReason(err),
		})
		return
	}

	// Duplicates ack like a fresh admission; the resubmitter cannot tell.
	h.sendEnvelope(conn, MessageTypeBidAck, BidAckPayload{AuctionID: req.AuctionID})

	push, err := EncodeEnvelope(MessageTypeAuctionBids, AuctionBidsPayload{
		AuctionID: req.AuctionID,
		Bids:      bids,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode bid push")
		return
	}
	if !h.manager.PushToTaker(req.AuctionID, push) {
		log.Debug().
			Str("auction_id", req.AuctionID.String()).
			Msg("no taker bound for bid push")
	}
}

func bidErrorReason(err error) string {
	switch {
	case errors.Is(err, auction.ErrAuctionExpired):
		return ErrorCodeAuctionExpired
	case errors.Is(err, auction.ErrAuctionNotFound):
		return ErrorCodeAuctionNotFound
	case errors.Is(err, auction.ErrInvalidBid):
		return ErrorCodeInvalidBid
	default:
		return "internal_error"
	}
}

func (h *Handler) sendEnvelope(conn *Connection, t MessageType, payload any) {
	frame, err := EncodeEnvelope(t, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to encode frame")
		return
	}
	h.manager.Send(conn, frame)
}

func (h *Handler) sendError(conn *Connection, code, message string) {
	h.sendEnvelope(conn, MessageTypeError, ErrorPayload{Code: code, Message: message})
}
