package models

import (
	"time"

	"auction-engine/internal/money"
)

// AuctionState is the lifecycle position of an auction.
type AuctionState string

const (
	StateScheduled AuctionState = "scheduled"
	StateOpen      AuctionState = "open"
	StateClosed    AuctionState = "closed"
)

// CloseReason records which path closed an auction.
type CloseReason string

const (
	CloseReasonDeadline CloseReason = "deadline"
	CloseReasonManual   CloseReason = "manual"
)

// StateAt returns the state an auction in state current moves to at now.
// Closed is terminal; every other state follows the clock.
func StateAt(current AuctionState, start, end, now time.Time) AuctionState {
	switch {
	case current == StateClosed:
		return StateClosed
	case !now.Before(end):
		return StateClosed
	case !now.Before(start):
		return StateOpen
	default:
		return StateScheduled
	}
}

// Product is a catalog entry that auctions can be opened on
type Product struct {
	ProductID   string `json:"product_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Eligible    bool   `json:"eligible"`
}

// Bid is one accepted entry of an auction ledger
type Bid struct {
	BidID      int64       `json:"bid_id"`
	AuctionID  string      `json:"auction_id"`
	ProductID  string      `json:"product_id"`
	BidderID   string      `json:"bidder_id"`
	BidderName string      `json:"bidder_name,omitempty"`
	Amount     money.Money `json:"amount"`
	AcceptedAt time.Time   `json:"accepted_at"`
}

// AuctionRecord holds the fixed fields persisted for an auction.
type AuctionRecord struct {
	AuctionID    string       `json:"auction_id"`
	ProductID    string       `json:"product_id"`
	FloorPrice   money.Money  `json:"floor_price"`
	MinIncrement money.Money  `json:"min_increment"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`
	CreatedAt    time.Time    `json:"created_at"`
	State        AuctionState `json:"state"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
	CloseReason  CloseReason  `json:"close_reason,omitempty"`
}

// AuctionSnapshot is an immutable point-in-time copy of an auction and its ledger.
type AuctionSnapshot struct {
	AuctionRecord
	CurrentHighBid *Bid         `json:"current_high_bid"`
	NextMinimum    *money.Money `json:"next_minimum,omitempty"`
	BidCount       int          `json:"bid_count"`
	Bids           []Bid        `json:"bids"`
	Version        uint64       `json:"version"`
}

// Clone returns a deep copy that shares nothing with s.
func (s AuctionSnapshot) Clone() AuctionSnapshot {
	out := s
	out.Bids = append(make([]Bid, 0, len(s.Bids)), s.Bids...)
	if s.CurrentHighBid != nil {
		high := *s.CurrentHighBid
		out.CurrentHighBid = &high
	}
	if s.NextMinimum != nil {
		next := *s.NextMinimum
		out.NextMinimum = &next
	}
	if s.ClosedAt != nil {
		closedAt := *s.ClosedAt
		out.ClosedAt = &closedAt
	}
	return out
}

// EffectiveAt reports the snapshot as it stands at now. An auction whose deadline
// has passed is reported closed even when its closing timer has not run yet.
func (s AuctionSnapshot) EffectiveAt(now time.Time) AuctionSnapshot {
	state := StateAt(s.State, s.StartTime, s.EndTime, now)
	if state == s.State {
		return s
	}

	s.State = state
	if state == StateClosed {
		closedAt := s.EndTime
		s.ClosedAt = &closedAt
		s.CloseReason = CloseReasonDeadline
		s.NextMinimum = nil
	}
	return s
}

// Recent keeps only the last n bids of the history; n <= 0 keeps everything.
func (s AuctionSnapshot) Recent(n int) AuctionSnapshot {
	if n > 0 && len(s.Bids) > n {
		s.Bids = s.Bids[len(s.Bids)-n:]
	}
	return s
}

// OpenAuctionRequest carries the creation parameters of an auction.
// A zero StartTime means "start now".
type OpenAuctionRequest struct {
	ProductID    string
	FloorPrice   money.Money
	MinIncrement money.Money
	StartTime    time.Time
	EndTime      time.Time
}

// BidRequest is a bid as submitted by a caller; the engine assigns id and time.
type BidRequest struct {
	BidderID   string
	BidderName string
	Amount     money.Money
}

// BidResult is returned for an accepted bid.
type BidResult struct {
	AcceptedBid Bid          `json:"accepted_bid"`
	CurrentHigh Bid          `json:"current_high"`
	NextMinimum *money.Money `json:"next_minimum,omitempty"` // nil when high + increment overflows
}

// EventType names the notifications the engine emits.
type EventType string

const (
	EventAuctionOpened  EventType = "auction.opened"
	EventHighBidChanged EventType = "auction.high_bid_changed"
	EventAuctionClosed  EventType = "auction.closed"
)

// AuctionEvent is sent to the notifier after a state change has been applied.
type AuctionEvent struct {
	EventID     string       `json:"event_id"`
	Type        EventType    `json:"type"`
	AuctionID   string       `json:"auction_id"`
	ProductID   string       `json:"product_id"`
	State       AuctionState `json:"state"`
	HighBid     *Bid         `json:"high_bid,omitempty"`
	PreviousBid *money.Money `json:"previous_bid,omitempty"`
	CloseReason CloseReason  `json:"close_reason,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}
