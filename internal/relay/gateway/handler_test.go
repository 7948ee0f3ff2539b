package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/parlaydesk/rfqrelay/internal/auction"
	"github.com/parlaydesk/rfqrelay/internal/models"
)

func newTestRelay(t *testing.T, connCfg ConnectionConfig) (*httptest.Server, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	registry := auction.NewRegistry(auction.NewMemoryStore(), clock, auction.DefaultConfig(), nil, nil)
	service := NewService(registry, connCfg, clock)

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, clock
}

func dialRelay(t *testing.T, server *httptest.Server, role Role) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if role == RoleMaker {
		url += "?role=maker"
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	return env
}

func sendFrame(t *testing.T, conn *websocket.Conn, mt MessageType, payload any) {
	t.Helper()
	frame, err := EncodeEnvelope(mt, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func startPayload() AuctionStartPayload {
	return AuctionStartPayload{
		Wager:             "100",
		Resolver:          models.ResolverFamilyUMA,
		PredictedOutcomes: []byte(`[{"family":"UMA","question_id":"q1","outcome":true}]`),
		Taker:             "0xtaker",
		TakerNonce:        1,
		ChainID:           137,
	}
}

func TestAuctionRoundTrip(t *testing.T) {
	server, _ := newTestRelay(t, DefaultConnectionConfig())
	taker := dialRelay(t, server, RoleTaker)
	maker := dialRelay(t, server, RoleMaker)

	// Taker opens the auction and gets an ack.
	sendFrame(t, taker, MessageTypeAuctionStart, startPayload())
	env := readFrame(t, taker)
	require.Equal(t, MessageTypeAuctionAck, env.Type)

	var ack AuctionAckPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ack))
	require.NotEqual(t, uuid.Nil, ack.AuctionID)

	// The maker pool hears about the new auction.
	env = readFrame(t, maker)
	require.Equal(t, MessageTypeAuctionCreated, env.Type)
	var created AuctionCreatedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &created))
	require.Equal(t, ack.AuctionID, created.AuctionID)
	require.Equal(t, "100", created.Wager)

	// Maker bids; it gets an ack and the taker gets the push.
	sendFrame(t, maker, MessageTypeBidSubmit, BidSubmitPayload{
		AuctionID: ack.AuctionID,
		Bid: models.Bid{
			Maker:         "0xmaker",
			MakerWager:    "40",
			MakerDeadline: time.Now().Add(time.Hour).Unix(),
			MakerNonce:    1,
		},
	})

	env = readFrame(t, maker)
	require.Equal(t, MessageTypeBidAck, env.Type)

	env = readFrame(t, taker)
	require.Equal(t, MessageTypeAuctionBids, env.Type)
	var push AuctionBidsPayload
	require.NoError(t, json.Unmarshal(env.Payload, &push))
	require.Equal(t, ack.AuctionID, push.AuctionID)
	require.Len(t, push.Bids, 1)
	require.Equal(t, "0xmaker", push.Bids[0].Maker)
}

func TestDuplicateBidAcksWithoutSecondEntry(t *testing.T) {
	server, _ := newTestRelay(t, DefaultConnectionConfig())
	taker := dialRelay(t, server, RoleTaker)
	maker := dialRelay(t, server, RoleMaker)

	sendFrame(t, taker, MessageTypeAuctionStart, startPayload())
	var ack AuctionAckPayload
	env := readFrame(t, taker)
	require.NoError(t, json.Unmarshal(env.Payload, &ack))
	readFrame(t, maker) // auction.created

	bid := BidSubmitPayload{
		AuctionID: ack.AuctionID,
		Bid: models.Bid{
			Maker:         "0xmaker",
			MakerWager:    "40",
			MakerDeadline: time.Now().Add(time.Hour).Unix(),
			MakerNonce:    7,
		},
	}

	for i := 0; i < 2; i++ {
		sendFrame(t, maker, MessageTypeBidSubmit, bid)
		env = readFrame(t, maker)
		require.Equal(t, MessageTypeBidAck, env.Type, "resend must ack like a fresh admission")
	}

	// Both pushes carry exactly one stored bid.
	for i := 0; i < 2; i++ {
		env = readFrame(t, taker)
		require.Equal(t, MessageTypeAuctionBids, env.Type)
		var push AuctionBidsPayload
		require.NoError(t, json.Unmarshal(env.Payload, &push))
		require.Len(t, push.Bids, 1)
	}
}

func TestBidForUnknownAuction(t *testing.T) {
	server, _ := newTestRelay(t, DefaultConnectionConfig())
	maker := dialRelay(t, server, RoleMaker)

	sendFrame(t, maker, MessageTypeBidSubmit, BidSubmitPayload{
		AuctionID: uuid.New(),
		Bid:       models.Bid{Maker: "0xmaker", MakerWager: "40", MakerNonce: 1},
	})

	env := readFrame(t, maker)
	require.Equal(t, MessageTypeBidError, env.Type)
	var bidErr BidErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &bidErr))
	require.Equal(t, ErrorCodeAuctionNotFound, bidErr.Reason)
}

func TestInvalidStartRejectedWithTypedError(t *testing.T) {
	server, _ := newTestRelay(t, DefaultConnectionConfig())
	taker := dialRelay(t, server, RoleTaker)

	payload := startPayload()
	payload.Wager = "0"
	sendFrame(t, taker, MessageTypeAuctionStart, payload)

	env := readFrame(t, taker)
	require.Equal(t, MessageTypeError, env.Type)
	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &errPayload))
	require.Equal(t, ErrorCodeInvalidRequest, errPayload.Code)
}

func TestGarbageFrameDoesNotKillConnection(t *testing.T) {
	server, _ := newTestRelay(t, DefaultConnectionConfig())
	taker := dialRelay(t, server, RoleTaker)

	require.NoError(t, taker.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := readFrame(t, taker)
	require.Equal(t, MessageTypeError, env.Type)
	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &errPayload))
	require.Equal(t, ErrorCodeParse, errPayload.Code)

	// The connection still works.
	sendFrame(t, taker, MessageTypeAuctionStart, startPayload())
	env = readFrame(t, taker)
	require.Equal(t, MessageTypeAuctionAck, env.Type)
}

func TestRateLimitRejectsOverCap(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.RateLimitMax = 5
	server, _ := newTestRelay(t, cfg)
	taker := dialRelay(t, server, RoleTaker)

	payload := startPayload()
	for i := 0; i < 5; i++ {
		sendFrame(t, taker, MessageTypeAuctionStart, payload)
		env := readFrame(t, taker)
		require.Equal(t, MessageTypeAuctionAck, env.Type, "message %d should pass the limiter", i+1)
	}

	// The 6th message in the same window bounces with a typed error and the
	// connection stays open.
	sendFrame(t, taker, MessageTypeAuctionStart, payload)
	env := readFrame(t, taker)
	require.Equal(t, MessageTypeError, env.Type)
	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &errPayload))
	require.Equal(t, ErrorCodeRateLimitExceeded, errPayload.Code)
}
