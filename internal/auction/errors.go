package auction

import "errors"

var (
	// ErrInvalidAuctionRequest is returned when an auction cannot be opened:
	// empty leg set, non-positive wager, or an undeterminable resolver family.
	ErrInvalidAuctionRequest = errors.New("invalid auction request")

	// ErrAuctionExpired is returned when a bid arrives at or after the
	// auction's deadline.
	ErrAuctionExpired = errors.New("auction expired")

	// ErrAuctionNotFound is returned when the auction id is unknown, usually
	// because the record was already swept.
	ErrAuctionNotFound = errors.New("auction not found")

	// ErrInvalidBid is returned when a bid fails shape validation before
	// admission.
	ErrInvalidBid = errors.New("invalid bid")
)
