package auction

import (
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
)

// Auction is the per-product state machine: scheduled -> open -> closed.
// It is not safe for concurrent use; the registry serializes access.
type Auction struct {
	rec     models.AuctionRecord
	high    int // index of the high bid in the auction's ledger, -1 while empty
	version uint64
}

// ValidateParams checks the creation contract of an auction.
func ValidateParams(req models.OpenAuctionRequest) error {
	switch {
	case req.ProductID == "":
		return fmt.Errorf("%w: missing product id", biddingerrors.ErrInvalidParameters)
	case !req.FloorPrice.IsPositive():
		return fmt.Errorf("%w: floor price must be positive", biddingerrors.ErrInvalidParameters)
	case !req.MinIncrement.IsPositive():
		return fmt.Errorf("%w: minimum increment must be positive", biddingerrors.ErrInvalidParameters)
	case !req.FloorPrice.SameCurrency(req.MinIncrement):
		return fmt.Errorf("%w: floor in %q but increment in %q", biddingerrors.ErrInvalidParameters,
			req.FloorPrice.Currency(), req.MinIncrement.Currency())
	case req.EndTime.IsZero() || !req.EndTime.After(req.StartTime):
		return fmt.Errorf("%w: end time must be after start time", biddingerrors.ErrInvalidParameters)
	}
	return nil
}

// New creates an auction and its empty ledger. The auction is open right away
// when its start time is not in the future.
func New(auctionID string, req models.OpenAuctionRequest, now time.Time) (*Auction, *Ledger, error) {
	if err := ValidateParams(req); err != nil {
		return nil, nil, err
	}

	rec := models.AuctionRecord{
		AuctionID:    auctionID,
		ProductID:    req.ProductID,
		FloorPrice:   req.FloorPrice,
		MinIncrement: req.MinIncrement,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		CreatedAt:    now,
		State:        models.StateScheduled,
	}
	a := &Auction{rec: rec, high: -1}
	a.Advance(now)
	a.version = 1

	return a, NewLedger(rec), nil
}

// Rehydrate rebuilds an auction from persisted state. Every bid is replayed
// through the ledger so stored ids, amounts and times are re-validated.
func Rehydrate(rec models.AuctionRecord, bids []models.Bid) (*Auction, *Ledger, error) {
	err := ValidateParams(models.OpenAuctionRequest{
		ProductID:    rec.ProductID,
		FloorPrice:   rec.FloorPrice,
		MinIncrement: rec.MinIncrement,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rehydrate auction %s: %w", rec.AuctionID, err)
	}

	switch rec.State {
	case models.StateScheduled, models.StateOpen:
		rec.ClosedAt, rec.CloseReason = nil, ""
	case models.StateClosed:
		if rec.ClosedAt == nil {
			return nil, nil, fmt.Errorf("%w: closed auction %s has no close time", biddingerrors.ErrLedgerCorrupt, rec.AuctionID)
		}
		closedAt := *rec.ClosedAt
		rec.ClosedAt = &closedAt
	default:
		return nil, nil, fmt.Errorf("%w: auction %s has unknown state %q", biddingerrors.ErrLedgerCorrupt, rec.AuctionID, rec.State)
	}

	ledger := NewLedger(rec)
	for _, bid := range bids {
		if bid.AcceptedAt.Before(rec.StartTime) || !bid.AcceptedAt.Before(rec.EndTime) {
			return nil, nil, fmt.Errorf("%w: bid %d of auction %s accepted outside the bidding window",
				biddingerrors.ErrLedgerCorrupt, bid.BidID, rec.AuctionID)
		}
		if rec.ClosedAt != nil && bid.AcceptedAt.After(*rec.ClosedAt) {
			return nil, nil, fmt.Errorf("%w: bid %d of auction %s accepted after close",
				biddingerrors.ErrLedgerCorrupt, bid.BidID, rec.AuctionID)
		}
		bid.ProductID = rec.ProductID
		if err := ledger.Append(bid); err != nil {
			return nil, nil, fmt.Errorf("rehydrate auction %s: %w", rec.AuctionID, err)
		}
	}

	return &Auction{rec: rec, high: ledger.Len() - 1, version: uint64(ledger.Len()) + 1}, ledger, nil
}

// Clone returns an independent copy, used to stage a transition before it is persisted.
func (a *Auction) Clone() *Auction {
	c := *a
	c.rec = a.Record()
	return &c
}

// Record returns a copy of the persisted fields.
func (a *Auction) Record() models.AuctionRecord {
	rec := a.rec
	if a.rec.ClosedAt != nil {
		closedAt := *a.rec.ClosedAt
		rec.ClosedAt = &closedAt
	}
	return rec
}

func (a *Auction) ID() string                 { return a.rec.AuctionID }
func (a *Auction) ProductID() string          { return a.rec.ProductID }
func (a *Auction) State() models.AuctionState { return a.rec.State }
func (a *Auction) StartTime() time.Time       { return a.rec.StartTime }
func (a *Auction) EndTime() time.Time         { return a.rec.EndTime }
func (a *Auction) Version() uint64            { return a.version }

// Advance applies the clock-driven transitions due at now and reports whether the state changed.
func (a *Auction) Advance(now time.Time) bool {
	next := models.StateAt(a.rec.State, a.rec.StartTime, a.rec.EndTime, now)
	if next == a.rec.State {
		return false
	}
	if next == models.StateClosed {
		a.closeWith(a.rec.EndTime, models.CloseReasonDeadline)
		return true
	}
	a.rec.State = next
	a.version++
	return true
}

// Expire closes the auction at its deadline. It is what the closing timer runs,
// so it does not second-guess the clock. No-op when already closed.
func (a *Auction) Expire() bool {
	if a.rec.State == models.StateClosed {
		return false
	}
	a.closeWith(a.rec.EndTime, models.CloseReasonDeadline)
	return true
}

// Close force-closes the auction. A deadline that has already passed wins over
// the manual close. No-op when already closed.
func (a *Auction) Close(now time.Time) bool {
	if a.rec.State == models.StateClosed {
		return false
	}
	if a.Advance(now) && a.rec.State == models.StateClosed {
		return true
	}
	a.closeWith(now, models.CloseReasonManual)
	return true
}

func (a *Auction) closeWith(at time.Time, reason models.CloseReason) {
	a.rec.State = models.StateClosed
	a.rec.ClosedAt = &at
	a.rec.CloseReason = reason
	a.version++
}

// Admit checks a bid against the auction at now and returns the ledger entry it
// would become. Nothing is mutated; the caller persists the entry and then Commits it.
func (a *Auction) Admit(l *Ledger, req models.BidRequest, now time.Time) (models.Bid, error) {
	if req.BidderID == "" {
		return models.Bid{}, fmt.Errorf("%w: missing bidder id", biddingerrors.ErrInvalidBid)
	}
	if !req.Amount.IsPositive() {
		return models.Bid{}, fmt.Errorf("%w: non-positive bid amount", biddingerrors.ErrInvalidBid)
	}

	if state := models.StateAt(a.rec.State, a.rec.StartTime, a.rec.EndTime, now); state != models.StateOpen {
		return models.Bid{}, &biddingerrors.NotOpenError{State: state}
	}

	return l.Candidate(req.BidderID, req.BidderName, req.Amount, now)
}

// Commit appends an admitted bid and makes it the high bid.
func (a *Auction) Commit(l *Ledger, bid models.Bid) error {
	if a.rec.State != models.StateOpen {
		return &biddingerrors.NotOpenError{State: a.rec.State}
	}
	if err := l.Append(bid); err != nil {
		return err
	}
	a.high = l.Len() - 1
	a.version++
	return nil
}

// Snapshot copies the auction and ledger into an immutable view. The bid
// history shares the ledger's append-only backing array up to its current length.
func (a *Auction) Snapshot(l *Ledger) models.AuctionSnapshot {
	entries := l.Entries()
	snap := models.AuctionSnapshot{
		AuctionRecord: a.Record(),
		BidCount:      len(entries),
		Bids:          entries,
		Version:       a.version,
	}
	if a.high >= 0 && a.high < len(entries) {
		high := entries[a.high]
		snap.CurrentHighBid = &high
	}
	if a.rec.State != models.StateClosed {
		if next, err := l.RequiredMinimum(); err == nil {
			snap.NextMinimum = &next
		}
	}
	return snap
}
