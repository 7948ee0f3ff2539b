package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

// bidKey identifies a bid for duplicate detection within one auction.
type bidKey struct {
	maker string
	nonce uint64
}

type auctionRecord struct {
	auction models.Auction
	seen    map[bidKey]struct{}
}

// MemoryStore is the default Store: a mutex-guarded in-memory map. It is
// instance-local; a taker and the makers answering it must land on the same
// relay instance (sticky routing) or bids are dropped. That is a deployment
// constraint, not something this layer works around.
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]*auctionRecord
}

// NewMemoryStore creates an empty in-memory auction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[uuid.UUID]*auctionRecord),
	}
}

func (s *MemoryStore) Create(ctx context.Context, a *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[a.AuctionID]; exists {
		return fmt.Errorf("auction %s already exists", a.AuctionID)
	}

	rec := &auctionRecord{
		auction: *a,
		seen:    make(map[bidKey]struct{}),
	}
	rec.auction.Bids = append([]models.Bid(nil), a.Bids...)
	s.auctions[a.AuctionID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.auctions[id]
	if !exists {
		return nil, ErrAuctionNotFound
	}
	snapshot := rec.auction
	snapshot.Bids = append([]models.Bid(nil), rec.auction.Bids...)
	return &snapshot, nil
}

func (s *MemoryStore) AppendBid(ctx context.Context, id uuid.UUID, bid models.Bid, now time.Time) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.auctions[id]
	if !exists {
		return AppendResult{}, ErrAuctionNotFound
	}
	if rec.auction.Expired(now) {
		return AppendResult{}, ErrAuctionExpired
	}

	key := bidKey{maker: bid.Maker, nonce: bid.MakerNonce}
	if _, dup := rec.seen[key]; dup {
		return AppendResult{
			Duplicate: true,
			Bids:      append([]models.Bid(nil), rec.auction.Bids...),
		}, nil
	}

	rec.seen[key] = struct{}{}
	rec.auction.Bids = append(rec.auction.Bids, bid)
	return AppendResult{
		Bids: append([]models.Bid(nil), rec.auction.Bids...),
	}, nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, cutoff time.Time) ([]models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []models.Auction
	for id, rec := range s.auctions {
		if rec.auction.Deadline.After(cutoff) {
			continue
		}
		snapshot := rec.auction
		snapshot.Bids = append([]models.Bid(nil), rec.auction.Bids...)
		swept = append(swept, snapshot)
		delete(s.auctions, id)
	}
	return swept, nil
}

// Len returns the number of live auctions, for stats endpoints and tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.auctions)
}
