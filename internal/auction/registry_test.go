package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	created []uuid.UUID
	bids    []uuid.UUID
	swept   []uuid.UUID
}

func (r *recordingSink) AuctionCreated(_ context.Context, a *models.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, a.AuctionID)
}

func (r *recordingSink) BidAccepted(_ context.Context, id uuid.UUID, _ models.Bid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids = append(r.bids, id)
}

func (r *recordingSink) AuctionSwept(_ context.Context, a *models.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swept = append(r.swept, a.AuctionID)
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []models.Auction
}

func (r *recordingArchiver) ArchiveAuction(_ context.Context, a *models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived = append(r.archived, *a)
	return nil
}

func validParams() StartAuctionParams {
	return StartAuctionParams{
		Taker:             "0xtaker",
		Wager:             "100",
		Resolver:          models.ResolverFamilyUMA,
		PredictedOutcomes: []byte(`[{"family":"UMA"}]`),
		TakerNonce:        7,
		ChainID:           137,
	}
}

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock, *recordingSink, *recordingArchiver) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	archiver := &recordingArchiver{}
	r := NewRegistry(NewMemoryStore(), clock, DefaultConfig(), sink, archiver)
	return r, clock, sink, archiver
}

func TestStartAuctionAssignsIDAndDeadline(t *testing.T) {
	r, clock, sink, _ := newTestRegistry(t)

	a, err := r.StartAuction(context.Background(), validParams())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, a.AuctionID)
	require.Equal(t, clock.Now().Add(60*time.Second), a.Deadline)
	require.Len(t, sink.created, 1)
}

func TestStartAuctionClampsDuration(t *testing.T) {
	r, clock, _, _ := newTestRegistry(t)

	params := validParams()
	params.Duration = time.Hour
	a, err := r.StartAuction(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, clock.Now().Add(5*time.Minute), a.Deadline)
}

func TestStartAuctionRejectsBadRequests(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	params := validParams()
	params.PredictedOutcomes = nil
	_, err := r.StartAuction(ctx, params)
	require.ErrorIs(t, err, ErrInvalidAuctionRequest)

	params = validParams()
	params.Wager = "0"
	_, err = r.StartAuction(ctx, params)
	require.ErrorIs(t, err, ErrInvalidAuctionRequest)

	params = validParams()
	params.Wager = "-5"
	_, err = r.StartAuction(ctx, params)
	require.ErrorIs(t, err, ErrInvalidAuctionRequest)

	params = validParams()
	params.Resolver = "CHAINLINK"
	_, err = r.StartAuction(ctx, params)
	require.ErrorIs(t, err, ErrInvalidAuctionRequest)
}

func makerBid(maker string, nonce uint64) models.Bid {
	return models.Bid{
		Maker:          maker,
		MakerWager:     "40",
		MakerDeadline:  time.Now().Add(time.Hour).Unix(),
		MakerSignature: "0xsig",
		MakerNonce:     nonce,
	}
}

func TestSubmitBidAppendsAndNotifies(t *testing.T) {
	r, _, sink, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.StartAuction(ctx, validParams())
	require.NoError(t, err)

	bids, err := r.SubmitBid(ctx, a.AuctionID, makerBid("0xmaker", 1))
	require.NoError(t, err)
	require.Len(t, bids, 1)
	// A bid submitted without a status enters as pending.
	require.Equal(t, models.ValidationStatusPending, bids[0].ValidationStatus)
	require.Len(t, sink.bids, 1)
}

func TestSubmitBidDuplicateIsIdempotent(t *testing.T) {
	r, _, sink, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.StartAuction(ctx, validParams())
	require.NoError(t, err)

	_, err = r.SubmitBid(ctx, a.AuctionID, makerBid("0xmaker", 1))
	require.NoError(t, err)

	// Same (maker, nonce): no error, no second bid, no second event.
	bids, err := r.SubmitBid(ctx, a.AuctionID, makerBid("0xmaker", 1))
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Len(t, sink.bids, 1)

	// Different nonce is a fresh bid.
	bids, err = r.SubmitBid(ctx, a.AuctionID, makerBid("0xmaker", 2))
	require.NoError(t, err)
	require.Len(t, bids, 2)
}

func TestSubmitBidAfterDeadline(t *testing.T) {
	r, clock, _, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.StartAuction(ctx, validParams())
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	_, err = r.SubmitBid(ctx, a.AuctionID, makerBid("0xmaker", 1))
	require.ErrorIs(t, err, ErrAuctionExpired)
}

func TestSubmitBidUnknownAuction(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	_, err := r.SubmitBid(context.Background(), uuid.New(), makerBid("0xmaker", 1))
	require.ErrorIs(t, err, ErrAuctionNotFound)
}

func TestSubmitBidShapeValidation(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.StartAuction(ctx, validParams())
	require.NoError(t, err)

	b := makerBid("", 1)
	_, err = r.SubmitBid(ctx, a.AuctionID, b)
	require.ErrorIs(t, err, ErrInvalidBid)

	b = makerBid("0xmaker", 1)
	b.MakerWager = "forty"
	_, err = r.SubmitBid(ctx, a.AuctionID, b)
	require.ErrorIs(t, err, ErrInvalidBid)
}

func TestSweepDeletesAndArchives(t *testing.T) {
	r, clock, sink, archiver := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.StartAuction(ctx, validParams())
	require.NoError(t, err)

	// Past deadline but inside grace: the record survives.
	clock.Advance(70 * time.Second)
	r.sweep(ctx)
	_, err = r.GetBids(ctx, a.AuctionID)
	require.NoError(t, err)

	// Past deadline+grace: deleted, archived, published.
	clock.Advance(30 * time.Second)
	r.sweep(ctx)
	_, err = r.GetBids(ctx, a.AuctionID)
	require.ErrorIs(t, err, ErrAuctionNotFound)
	require.Len(t, archiver.archived, 1)
	require.Equal(t, a.AuctionID, archiver.archived[0].AuctionID)
	require.Equal(t, []uuid.UUID{a.AuctionID}, sink.swept)
}

func TestSweepLoopRunsOnTicker(t *testing.T) {
	r, clock, _, _ := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := r.StartAuction(ctx, validParams())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	clock.BlockUntil(1)

	// Three intervals push well past deadline+grace.
	for i := 0; i < 3; i++ {
		clock.Advance(r.config.SweepInterval)
	}

	require.Eventually(t, func() bool {
		_, err := r.GetBids(context.Background(), a.AuctionID)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestConcurrentSubmitBidSerializes(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.StartAuction(ctx, validParams())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			// Half the goroutines collide on nonce 1.
			nonce := uint64(1)
			if n%2 == 0 {
				nonce = n + 100
			}
			_, err := r.SubmitBid(ctx, a.AuctionID, makerBid("0xmaker", nonce))
			require.NoError(t, err)
		}(uint64(i))
	}
	wg.Wait()

	bids, err := r.GetBids(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Len(t, bids, 11) // 10 unique nonces + 1 shared
}
