package repository

//go:generate mockgen -destination=mock_repository.go -package=repository auction-engine/internal/repository AuctionStore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

// AuctionStore defines durable storage for auctions and their bid ledgers:
// one record per auction plus append-only bid rows keyed by (auctionID, bidID).
type AuctionStore interface {
	CreateAuction(ctx context.Context, rec model.AuctionRecord) error
	UpdateAuctionState(ctx context.Context, rec model.AuctionRecord) error
	AppendBid(ctx context.Context, bid model.Bid) error
	LoadAuctions(ctx context.Context) ([]model.AuctionRecord, error)
	LoadBids(ctx context.Context, auctionID string) ([]model.Bid, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]model.AuctionRecord // key: auctionID -> value: auction record
	bids     map[string][]model.Bid         // key: auctionID -> value: bids in bidID order
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]model.AuctionRecord),
		bids:     make(map[string][]model.Bid),
	}
}

// CreateAuction stores a new auction record
func (r *MemoryRepo) CreateAuction(_ context.Context, rec model.AuctionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[rec.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", rec.AuctionID, biddingerrors.ErrAuctionAlreadyActive)
	}
	r.auctions[rec.AuctionID] = copyRecord(rec)
	return nil
}

// UpdateAuctionState overwrites the state fields of an existing auction
func (r *MemoryRepo) UpdateAuctionState(_ context.Context, rec model.AuctionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[rec.AuctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", rec.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	updated := copyRecord(rec)
	stored.State = updated.State
	stored.ClosedAt = updated.ClosedAt
	stored.CloseReason = updated.CloseReason
	r.auctions[rec.AuctionID] = stored
	return nil
}

// AppendBid records a bid row; (auctionID, bidID) must be new
func (r *MemoryRepo) AppendBid(_ context.Context, bid model.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[bid.AuctionID]; !ok {
		return fmt.Errorf("append bid to auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	for _, b := range r.bids[bid.AuctionID] {
		if b.BidID == bid.BidID {
			return fmt.Errorf("append bid %d to auction %s: %w", bid.BidID, bid.AuctionID, biddingerrors.ErrDuplicateBid)
		}
	}

	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], bid)
	return nil
}

// LoadAuctions returns every stored auction ordered by creation time
func (r *MemoryRepo) LoadAuctions(_ context.Context) ([]model.AuctionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]model.AuctionRecord, 0, len(r.auctions))
	for _, rec := range r.auctions {
		recs = append(recs, copyRecord(rec))
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].AuctionID < recs[j].AuctionID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

// LoadBids returns all bids of an auction ordered by bidID
func (r *MemoryRepo) LoadBids(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("load bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	bids := append([]model.Bid(nil), r.bids[auctionID]...)
	sort.Slice(bids, func(i, j int) bool { return bids[i].BidID < bids[j].BidID })
	return bids, nil
}

func copyRecord(rec model.AuctionRecord) model.AuctionRecord {
	if rec.ClosedAt != nil {
		closedAt := *rec.ClosedAt
		rec.ClosedAt = &closedAt
	}
	return rec
}
