package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/parlaydesk/rfqrelay/internal/auction"
	"github.com/parlaydesk/rfqrelay/internal/models"
)

// Phase is the session's visible state.
type Phase string

const (
	// PhaseIdle means no request key is active; all incoming bids are dropped.
	PhaseIdle Phase = "idle"
	// PhaseAwaiting means a request is out and bids may still arrive.
	PhaseAwaiting Phase = "awaiting"
	// PhaseSettled means a validated best bid is present.
	PhaseSettled Phase = "settled"
)

// DefaultCooldown is the window after a request during which the UI shows
// "waiting" regardless of bid arrival.
const DefaultCooldown = 15 * time.Second

// Snapshot is the UI-facing view of the session.
type Snapshot struct {
	Phase       Phase
	BestBid     *models.Bid
	EstimateBid *models.Bid
	// Waiting is true inside the cooldown window after the last request.
	Waiting bool
}

// Session reconciles a stream of asynchronous, possibly stale bid pushes onto
// the currently active request. It keys every merge on the request fingerprint
// so bids for a superseded wager or leg set never surface, and it carries the
// sticky-estimate contract that keeps the UI from flickering between
// "estimate" and "nothing" while bids may still be in flight.
//
// All transitions are synchronous reactions to one of: an inbound push
// (OnBids), a wall-clock tick (Tick), or a user input change (InputsChanged /
// BeginRequest).
type Session struct {
	clock    clockwork.Clock
	cooldown time.Duration

	mu            sync.Mutex
	requestKey    *string
	wager         string
	accepted      []models.Bid
	best          *models.Bid
	sticky        *models.Bid
	lastRequestAt *time.Time
}

// New creates a session in the Idle phase. A zero cooldown means the default.
func New(clock clockwork.Clock, cooldown time.Duration) *Session {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Session{clock: clock, cooldown: cooldown}
}

// InputsChanged resets the session when the leg set or wager changes. The
// request key goes nil, so any bid racing in for the superseded request is
// dropped unconditionally.
func (s *Session) InputsChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestKey = nil
	s.wager = ""
	s.accepted = nil
	s.best = nil
	s.sticky = nil
}

// BeginRequest activates a new request key after auction.start was sent. The
// cooldown window restarts.
func (s *Session) BeginRequest(key, wager string) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestKey = &key
	s.wager = wager
	s.accepted = nil
	s.best = nil
	s.sticky = nil
	s.lastRequestAt = &now
}

// OnBids merges a bid push into the session. Pushes whose key does not match
// the active request - including any push while no request is active - are
// discarded.
func (s *Session) OnBids(key string, bids []models.Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requestKey == nil || key != *s.requestKey {
		return
	}

	for _, incoming := range bids {
		replaced := false
		for i := range s.accepted {
			if s.accepted[i].Maker == incoming.Maker && s.accepted[i].MakerNonce == incoming.MakerNonce {
				// Re-delivery may carry an updated validation status;
				// position in the list (first-seen order) is preserved.
				s.accepted[i] = incoming
				replaced = true
				break
			}
		}
		if !replaced {
			s.accepted = append(s.accepted, incoming)
		}
	}

	s.recompute()
}

// Tick re-evaluates expiry against the wall clock. Call it on a 1-second
// ticker; selection can change even with no new bids once deadlines pass.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestKey == nil {
		return
	}
	s.recompute()
}

// Run drives Tick on a 1s ticker until the context is cancelled.
func (s *Session) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Tick()
		}
	}
}

// Snapshot returns the UI-facing view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Phase: PhaseIdle}
	if s.requestKey == nil {
		return snap
	}

	snap.Phase = PhaseAwaiting
	if s.best != nil {
		snap.Phase = PhaseSettled
		best := *s.best
		snap.BestBid = &best
	} else if s.sticky != nil {
		sticky := *s.sticky
		snap.EstimateBid = &sticky
	}

	if s.lastRequestAt != nil && s.clock.Now().Sub(*s.lastRequestAt) < s.cooldown {
		snap.Waiting = true
	}
	return snap
}

// recompute runs bid selection over the accepted set. Caller holds the lock.
func (s *Session) recompute() {
	nowMs := s.clock.Now().UnixMilli()
	sel := auction.SelectBid(s.accepted, nowMs, s.wager)

	if sel.Best != nil {
		s.best = sel.Best
		s.sticky = nil
		return
	}
	s.best = nil

	if sel.Estimate != nil {
		if s.sticky == nil {
			// A first estimate hints more bids may be in flight; the
			// cooldown restarts so the UI keeps showing "waiting".
			now := s.clock.Now()
			s.lastRequestAt = &now
		}
		s.sticky = sel.Estimate
		return
	}

	// Neither a winner nor a single estimate. Keep showing the last estimate
	// until every previously seen bid has expired, then converge to nothing.
	if !s.anyUnexpired(nowMs) {
		s.sticky = nil
	}
}

func (s *Session) anyUnexpired(nowMs int64) bool {
	for i := range s.accepted {
		if !s.accepted[i].Expired(nowMs) {
			return true
		}
	}
	return false
}
