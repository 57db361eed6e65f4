package auction

import (
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"
)

// Ledger is the append-only bid history of one auction. It keeps copies of the
// floor and increment it enforces and holds no reference back to the auction.
type Ledger struct {
	auctionID string
	productID string
	floor     money.Money
	increment money.Money
	bids      []models.Bid
}

// NewLedger returns an empty ledger enforcing rec's floor and increment.
func NewLedger(rec models.AuctionRecord) *Ledger {
	return &Ledger{
		auctionID: rec.AuctionID,
		productID: rec.ProductID,
		floor:     rec.FloorPrice,
		increment: rec.MinIncrement,
	}
}

func (l *Ledger) Len() int { return len(l.bids) }

// Last returns the current high bid.
func (l *Ledger) Last() (models.Bid, bool) {
	if len(l.bids) == 0 {
		return models.Bid{}, false
	}
	return l.bids[len(l.bids)-1], true
}

// RequiredMinimum is the floor while the ledger is empty, else the high bid plus the increment.
func (l *Ledger) RequiredMinimum() (money.Money, error) {
	last, ok := l.Last()
	if !ok {
		return l.floor, nil
	}
	next, err := last.Amount.Add(l.increment)
	if err != nil {
		return money.Money{}, fmt.Errorf("ledger: next minimum for auction %s: %w", l.auctionID, err)
	}
	return next, nil
}

// Candidate validates a bid against the ledger and returns the entry that Append
// would record, without changing the ledger.
func (l *Ledger) Candidate(bidderID, bidderName string, amount money.Money, now time.Time) (models.Bid, error) {
	if !amount.SameCurrency(l.floor) {
		return models.Bid{}, fmt.Errorf("%w: amount in %q, auction in %q", biddingerrors.ErrInvalidBid, amount.Currency(), l.floor.Currency())
	}

	required, err := l.RequiredMinimum()
	if err != nil {
		return models.Bid{}, err
	}
	if amount.Minor() < required.Minor() {
		return models.Bid{}, &biddingerrors.BidTooLowError{Offered: amount, Required: required}
	}

	acceptedAt := now
	if last, ok := l.Last(); ok && acceptedAt.Before(last.AcceptedAt) {
		// wall clock stepped back; keep acceptedAt ordered with bidId
		acceptedAt = last.AcceptedAt
	}

	return models.Bid{
		BidID:      int64(len(l.bids)) + 1,
		AuctionID:  l.auctionID,
		ProductID:  l.productID,
		BidderID:   bidderID,
		BidderName: bidderName,
		Amount:     amount,
		AcceptedAt: acceptedAt,
	}, nil
}

// Append records bid. The bid must be the next entry in sequence and clear the
// current minimum; anything else is rejected with ErrLedgerCorrupt.
func (l *Ledger) Append(bid models.Bid) error {
	want := int64(len(l.bids)) + 1
	if bid.BidID != want {
		return fmt.Errorf("%w: auction %s expected bid id %d, got %d", biddingerrors.ErrLedgerCorrupt, l.auctionID, want, bid.BidID)
	}
	if bid.AuctionID != l.auctionID {
		return fmt.Errorf("%w: bid %d belongs to auction %s", biddingerrors.ErrLedgerCorrupt, bid.BidID, bid.AuctionID)
	}
	if bid.BidderID == "" {
		return fmt.Errorf("%w: bid %d has no bidder", biddingerrors.ErrLedgerCorrupt, bid.BidID)
	}
	if !bid.Amount.SameCurrency(l.floor) {
		return fmt.Errorf("%w: bid %d in %q", biddingerrors.ErrLedgerCorrupt, bid.BidID, bid.Amount.Currency())
	}

	required, err := l.RequiredMinimum()
	if err != nil {
		return err
	}
	if bid.Amount.Minor() < required.Minor() {
		return fmt.Errorf("%w: bid %d amount %s below minimum %s", biddingerrors.ErrLedgerCorrupt, bid.BidID, bid.Amount, required)
	}
	if last, ok := l.Last(); ok && bid.AcceptedAt.Before(last.AcceptedAt) {
		return fmt.Errorf("%w: bid %d accepted before bid %d", biddingerrors.ErrLedgerCorrupt, bid.BidID, last.BidID)
	}

	l.bids = append(l.bids, bid)
	return nil
}

// Entries returns the history oldest first. The returned slice is capped at its
// length, so later appends never show through it.
func (l *Ledger) Entries() []models.Bid {
	n := len(l.bids)
	return l.bids[:n:n]
}
