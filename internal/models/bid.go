package models

// ValidationStatus is the result of off-band signature/solvency validation of
// a bid. Validation itself happens outside this layer; the relay and the
// client only consume the status.
type ValidationStatus string

const (
	ValidationStatusPending ValidationStatus = "pending"
	ValidationStatusValid   ValidationStatus = "valid"
	ValidationStatusInvalid ValidationStatus = "invalid"
)

// Bid is a maker's signed offer to stake MakerWager against the taker's wager.
type Bid struct {
	Maker            string           `json:"maker"`
	MakerWager       string           `json:"makerWager"`    // smallest collateral unit, decimal string
	MakerDeadline    int64            `json:"makerDeadline"` // unix seconds
	MakerSignature   string           `json:"makerSignature"`
	MakerNonce       uint64           `json:"makerNonce"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
}

// Expired reports whether the bid's own deadline has passed. An expired bid is
// excluded from selection regardless of its validation status.
func (b *Bid) Expired(nowMs int64) bool {
	return b.MakerDeadline*1000 <= nowMs
}
