package biddingerrors

import (
	"errors"
	"fmt"

	"auction-engine/internal/models"
	"auction-engine/internal/money"
)

// Lookup and storage errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrProductNotFound = errors.New("product not found")
	ErrLedgerCorrupt   = errors.New("bid ledger violates ordering invariants")
	ErrDuplicateBid    = errors.New("bid already recorded")
)

// business logic errors
var (
	ErrInvalidParameters    = errors.New("invalid auction parameters")
	ErrAuctionAlreadyActive = errors.New("product already has an active auction")
	ErrAuctionNotOpen       = errors.New("auction is not open for bidding")
	ErrProductNotEligible   = errors.New("product is not eligible for auction")
	ErrInvalidBid           = errors.New("invalid bid")
	ErrBidTooLow            = errors.New("bid amount too low")
)

// BidTooLowError carries the exact minimum the bid had to reach.
type BidTooLowError struct {
	Offered  money.Money
	Required money.Money
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: offered %s, next minimum is %s", ErrBidTooLow, e.Offered, e.Required)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// NotOpenError reports the state the auction was in when the bid arrived,
// so callers can tell "not started yet" from "already closed".
type NotOpenError struct {
	State models.AuctionState
}

func (e *NotOpenError) Error() string {
	return fmt.Sprintf("%s: auction is %s", ErrAuctionNotOpen, e.State)
}

func (e *NotOpenError) Unwrap() error { return ErrAuctionNotOpen }
