package outcome

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// RequestKey derives a deterministic fingerprint of (sorted leg set, wager).
// Two requests are the same request iff their keys are equal; the client uses
// the key to discard bids that belong to a superseded request. Leg order does
// not matter: the same legs in a different order produce the same key.
func RequestKey(legs []Leg, wager string) (string, error) {
	if len(legs) == 0 {
		return "", ErrEmptyLegSet
	}

	canon := make([]string, 0, len(legs))
	for i, leg := range legs {
		raw, err := leg.canonical()
		if err != nil {
			return "", fmt.Errorf("encode leg %d: %w", i, err)
		}
		canon = append(canon, string(raw))
	}
	sort.Strings(canon)

	h := sha256.New()
	for _, c := range canon {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	h.Write([]byte(wager))
	return hex.EncodeToString(h.Sum(nil)), nil
}
