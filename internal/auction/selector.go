package auction

import (
	"math/big"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

// Selection is the outcome of running bid selection over a candidate set.
// Best is the winning validated bid, if any. Estimate is a single
// not-yet-validated bid surfaced as a low-confidence signal when no validated
// bid exists.
type Selection struct {
	Best     *models.Bid
	Estimate *models.Bid
}

// SelectBid picks the winning bid for the taker out of a candidate set. It is
// a pure function: same inputs, same result.
//
// Expired bids are dropped first. Among the remaining validated bids the
// winner maximizes the total payout pool takerWager+makerWager, ties broken by
// first-seen order. The taker's payout on a win is the whole pool, so the best
// bid is the largest counterparty stake, not the cheapest price. If no
// validated bid survives and exactly one unvalidated bid remains, that bid is
// returned as the estimate.
func SelectBid(bids []models.Bid, nowMs int64, takerWager string) Selection {
	taker := parseWager(takerWager)

	var (
		best       *models.Bid
		bestPayout *big.Int
		unvalid    []*models.Bid
	)

	for i := range bids {
		b := &bids[i]
		if b.Expired(nowMs) {
			continue
		}
		if b.ValidationStatus != models.ValidationStatusValid {
			unvalid = append(unvalid, b)
			continue
		}
		payout := new(big.Int).Add(taker, parseWager(b.MakerWager))
		// Strict greater-than keeps the first-seen bid on ties.
		if best == nil || payout.Cmp(bestPayout) > 0 {
			best = b
			bestPayout = payout
		}
	}

	if best != nil {
		winner := *best
		return Selection{Best: &winner}
	}
	if len(unvalid) == 1 {
		estimate := *unvalid[0]
		return Selection{Estimate: &estimate}
	}
	return Selection{}
}

// parseWager interprets a wager as an unsigned big integer in smallest
// collateral units. Anything non-parseable or negative counts as zero so that
// selection stays total under malformed input.
func parseWager(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return new(big.Int)
	}
	return n
}
