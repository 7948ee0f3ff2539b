package models

import (
	"time"

	"github.com/google/uuid"
)

// ResolverFamily identifies the oracle family that settles an auction's legs.
// Families are mutually exclusive per auction.
type ResolverFamily string

const (
	ResolverFamilyUMA  ResolverFamily = "UMA"
	ResolverFamilyPyth ResolverFamily = "PYTH"
)

// Auction is a time-boxed request for bids tied to one taker, wager and leg set.
// It is immutable after creation except for bid appends, and is never mutated
// after its deadline.
type Auction struct {
	AuctionID         uuid.UUID      `json:"auctionId"`
	Taker             string         `json:"taker"`
	Wager             string         `json:"wager"` // smallest collateral unit, decimal string
	Resolver          ResolverFamily `json:"resolver"`
	PredictedOutcomes []byte         `json:"predictedOutcomes"`
	TakerNonce        uint64         `json:"takerNonce"`
	ChainID           int64          `json:"chainId"`
	CreatedAt         time.Time      `json:"createdAt"`
	Deadline          time.Time      `json:"deadline"`
	Bids              []Bid          `json:"bids"`
}

// Expired reports whether the auction can no longer admit bids.
func (a *Auction) Expired(now time.Time) bool {
	return !now.Before(a.Deadline)
}
