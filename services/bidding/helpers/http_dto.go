package helpers

import (
	"time"

	model "auction-engine/internal/models"
	"auction-engine/internal/money"
)

// Request/Response DTOs. Amounts travel as decimal strings ("105.00").
type OpenAuctionRequest struct {
	ProductID    string     `json:"product_id" binding:"required"`
	FloorPrice   string     `json:"floor_price" binding:"required"`
	MinIncrement string     `json:"min_increment"`
	Currency     string     `json:"currency"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
}

type PlaceBidRequest struct {
	BidderID   string `json:"bidder_id" binding:"required"`
	BidderName string `json:"bidder_name"`
	Amount     string `json:"amount" binding:"required"`
	Currency   string `json:"currency"`
}

type BidResponse struct {
	Bid         model.Bid    `json:"bid"`
	CurrentHigh model.Bid    `json:"current_high"`
	NextMinimum *money.Money `json:"next_minimum,omitempty"`
}
