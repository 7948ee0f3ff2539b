package auction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

// Store is the authority for auction records. The default implementation is
// in-memory and instance-local; the interface exists so a shared-state backend
// can be substituted without touching registry or selection logic.
type Store interface {
	// Create inserts a new auction record.
	Create(ctx context.Context, a *models.Auction) error

	// Get returns a snapshot of an auction, or ErrAuctionNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Auction, error)

	// AppendBid admits a bid. The deadline check, the duplicate check and the
	// append are one critical section per auction: concurrent submissions for
	// the same auction serialize here. A duplicate (maker, makerNonce) is not
	// an error; the result reports it and the stored bid set is unchanged.
	AppendBid(ctx context.Context, id uuid.UUID, bid models.Bid, now time.Time) (AppendResult, error)

	// SweepExpired deletes every auction whose deadline is at or before
	// cutoff and returns the removed records.
	SweepExpired(ctx context.Context, cutoff time.Time) ([]models.Auction, error)
}

// AppendResult reports the outcome of a bid admission.
type AppendResult struct {
	// Duplicate is true when the (maker, makerNonce) pair was already
	// recorded for this auction and the append was a no-op.
	Duplicate bool
	// Bids is the full bid list after the operation, in admission order.
	Bids []models.Bid
}
