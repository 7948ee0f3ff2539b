package outcome

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

var (
	// ErrEmptyLegSet is returned when a position has no legs.
	ErrEmptyLegSet = errors.New("empty leg set")
	// ErrMixedResolvers is returned when a position mixes UMA and Pyth legs.
	// Resolver families are mutually exclusive per auction.
	ErrMixedResolvers = errors.New("mixed resolver families")
)

// Leg is one binary condition within a multi-leg position. Implementations are
// the resolver-family variants below; a leg set must be homogeneous.
type Leg interface {
	Family() models.ResolverFamily
	canonical() ([]byte, error)
}

// UmaLeg predicts the outcome of a UMA-resolved question.
type UmaLeg struct {
	QuestionID string `json:"question_id"`
	Outcome    bool   `json:"outcome"`
}

func (l UmaLeg) Family() models.ResolverFamily { return models.ResolverFamilyUMA }

func (l UmaLeg) canonical() ([]byte, error) {
	return json.Marshal(struct {
		Family     models.ResolverFamily `json:"family"`
		QuestionID string                `json:"question_id"`
		Outcome    bool                  `json:"outcome"`
	}{l.Family(), l.QuestionID, l.Outcome})
}

// PythLeg predicts a Pyth price feed crossing (or staying under) a threshold
// by a resolution time.
type PythLeg struct {
	PriceFeedID string `json:"price_feed_id"`
	Threshold   string `json:"threshold"` // decimal, feed's native exponent
	Above       bool   `json:"above"`
	ResolveAt   int64  `json:"resolve_at"` // unix seconds
}

func (l PythLeg) Family() models.ResolverFamily { return models.ResolverFamilyPyth }

func (l PythLeg) canonical() ([]byte, error) {
	return json.Marshal(struct {
		Family      models.ResolverFamily `json:"family"`
		PriceFeedID string                `json:"price_feed_id"`
		Threshold   string                `json:"threshold"`
		Above       bool                  `json:"above"`
		ResolveAt   int64                 `json:"resolve_at"`
	}{l.Family(), l.PriceFeedID, l.Threshold, l.Above, l.ResolveAt})
}

// Encode turns a homogeneous leg set into the opaque predicted-outcomes blob
// sent with auction.start, preserving leg order. It rejects empty and
// mixed-family sets before anything touches the network.
func Encode(legs []Leg) ([]byte, models.ResolverFamily, error) {
	if len(legs) == 0 {
		return nil, "", ErrEmptyLegSet
	}

	family := legs[0].Family()
	encoded := make([]json.RawMessage, 0, len(legs))
	for i, leg := range legs {
		if leg.Family() != family {
			return nil, "", fmt.Errorf("leg %d is %s, leg 0 is %s: %w", i, leg.Family(), family, ErrMixedResolvers)
		}
		raw, err := leg.canonical()
		if err != nil {
			return nil, "", fmt.Errorf("encode leg %d: %w", i, err)
		}
		encoded = append(encoded, raw)
	}

	blob, err := json.Marshal(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("encode leg set: %w", err)
	}
	return blob, family, nil
}
