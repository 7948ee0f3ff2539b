package auction

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

// Config holds auction lifecycle configuration.
type Config struct {
	// DefaultDuration is applied when auction.start carries no duration.
	DefaultDuration time.Duration
	// MaxDuration is the hard cap on any auction window.
	MaxDuration time.Duration
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
	// SweepGrace keeps an expired auction around a little longer so late
	// GetBids calls still resolve. Sweep deletes once deadline+grace passed.
	SweepGrace time.Duration
}

// DefaultConfig returns the stock lifecycle configuration: 60s auctions capped
// at 5 minutes, swept every 30s with a 30s grace.
func DefaultConfig() Config {
	return Config{
		DefaultDuration: 60 * time.Second,
		MaxDuration:     5 * time.Minute,
		SweepInterval:   30 * time.Second,
		SweepGrace:      30 * time.Second,
	}
}

// EventSink receives auction lifecycle notifications. Implementations must not
// block the caller for long; the registry treats publication as best-effort.
type EventSink interface {
	AuctionCreated(ctx context.Context, a *models.Auction)
	BidAccepted(ctx context.Context, auctionID uuid.UUID, bid models.Bid)
	AuctionSwept(ctx context.Context, a *models.Auction)
}

// Archiver persists swept auctions for later inspection. Archival failures are
// logged, never propagated: garbage collection must not stall on storage.
type Archiver interface {
	ArchiveAuction(ctx context.Context, a *models.Auction) error
}

// StartAuctionParams are the validated inputs of StartAuction.
type StartAuctionParams struct {
	Taker             string
	Wager             string
	Resolver          models.ResolverFamily
	PredictedOutcomes []byte
	TakerNonce        uint64
	ChainID           int64
	// Duration is the requested auction window; zero means the default.
	Duration time.Duration
}

// Registry is the server-side authority for auction lifecycle: creation,
// deadline, bid admission and cleanup. All record state lives in the Store.
type Registry struct {
	store    Store
	clock    clockwork.Clock
	config   Config
	events   EventSink // optional
	archiver Archiver  // optional
}

// NewRegistry creates a registry over the given store. events and archiver may
// be nil to disable lifecycle publication and sweep archival.
func NewRegistry(store Store, clock clockwork.Clock, config Config, events EventSink, archiver Archiver) *Registry {
	return &Registry{
		store:    store,
		clock:    clock,
		config:   config,
		events:   events,
		archiver: archiver,
	}
}

// StartAuction validates the request and opens a new auction. The returned
// record carries the server-assigned id and deadline.
func (r *Registry) StartAuction(ctx context.Context, params StartAuctionParams) (*models.Auction, error) {
	if len(params.PredictedOutcomes) == 0 {
		return nil, fmt.Errorf("no predicted outcomes: %w", ErrInvalidAuctionRequest)
	}
	wager, ok := new(big.Int).SetString(params.Wager, 10)
	if !ok || wager.Sign() <= 0 {
		return nil, fmt.Errorf("wager %q must be a positive integer: %w", params.Wager, ErrInvalidAuctionRequest)
	}
	switch params.Resolver {
	case models.ResolverFamilyUMA, models.ResolverFamilyPyth:
	default:
		return nil, fmt.Errorf("unknown resolver family %q: %w", params.Resolver, ErrInvalidAuctionRequest)
	}

	duration := params.Duration
	if duration <= 0 {
		duration = r.config.DefaultDuration
	}
	if duration > r.config.MaxDuration {
		duration = r.config.MaxDuration
	}

	now := r.clock.Now()
	a := &models.Auction{
		AuctionID:         uuid.New(),
		Taker:             params.Taker,
		Wager:             params.Wager,
		Resolver:          params.Resolver,
		PredictedOutcomes: params.PredictedOutcomes,
		TakerNonce:        params.TakerNonce,
		ChainID:           params.ChainID,
		CreatedAt:         now,
		Deadline:          now.Add(duration),
	}

	if err := r.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}

	if r.events != nil {
		r.events.AuctionCreated(ctx, a)
	}

	log.Info().
		Str("auction_id", a.AuctionID.String()).
		Str("taker", a.Taker).
		Str("wager", a.Wager).
		Str("resolver", string(a.Resolver)).
		Time("deadline", a.Deadline).
		Msg("auction started")

	return a, nil
}

// SubmitBid admits a bid into a live auction and returns the auction's full
// bid list for the auction.bids push. A duplicate (maker, makerNonce) re-send
// is idempotent: the stored set is unchanged and no error is returned.
func (r *Registry) SubmitBid(ctx context.Context, auctionID uuid.UUID, bid models.Bid) ([]models.Bid, error) {
	if bid.Maker == "" {
		return nil, fmt.Errorf("missing maker: %w", ErrInvalidBid)
	}
	if _, ok := new(big.Int).SetString(bid.MakerWager, 10); !ok {
		return nil, fmt.Errorf("maker wager %q is not an integer: %w", bid.MakerWager, ErrInvalidBid)
	}
	if bid.ValidationStatus == "" {
		bid.ValidationStatus = models.ValidationStatusPending
	}

	result, err := r.store.AppendBid(ctx, auctionID, bid, r.clock.Now())
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		log.Debug().
			Str("auction_id", auctionID.String()).
			Str("maker", bid.Maker).
			Uint64("maker_nonce", bid.MakerNonce).
			Msg("duplicate bid ignored")
		return result.Bids, nil
	}

	if r.events != nil {
		r.events.BidAccepted(ctx, auctionID, bid)
	}

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("maker", bid.Maker).
		Str("maker_wager", bid.MakerWager).
		Int("total_bids", len(result.Bids)).
		Msg("bid accepted")

	return result.Bids, nil
}

// GetBids returns the current bid list of an auction in admission order.
func (r *Registry) GetBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	a, err := r.store.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return a.Bids, nil
}

// Run drives the background sweep until the context is cancelled. Sweeping is
// pure garbage collection; bids already pushed to takers are unaffected.
func (r *Registry) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.config.SweepInterval).Msg("auction sweep started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("auction sweep stopped")
			return
		case <-ticker.Chan():
			r.sweep(ctx)
		}
	}
}

func (r *Registry) sweep(ctx context.Context) {
	cutoff := r.clock.Now().Add(-r.config.SweepGrace)
	swept, err := r.store.SweepExpired(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("auction sweep failed")
		return
	}
	if len(swept) == 0 {
		return
	}

	for i := range swept {
		a := &swept[i]
		if r.archiver != nil {
			if err := r.archiver.ArchiveAuction(ctx, a); err != nil {
				log.Error().Err(err).Str("auction_id", a.AuctionID.String()).Msg("failed to archive swept auction")
			}
		}
		if r.events != nil {
			r.events.AuctionSwept(ctx, a)
		}
	}

	log.Debug().Int("count", len(swept)).Time("cutoff", cutoff).Msg("swept expired auctions")
}
