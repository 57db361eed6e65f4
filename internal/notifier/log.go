package notifier

import (
	"context"

	"auction-engine/internal/models"
	"auction-engine/utils"
)

// LogPublisher writes events to the structured log. It is the default sink
// when no broker is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, event models.AuctionEvent) error {
	fields := map[string]any{
		"event_id":   event.EventID,
		"type":       event.Type,
		"auction_id": event.AuctionID,
		"product_id": event.ProductID,
		"state":      event.State,
	}
	if event.HighBid != nil {
		fields["bidder_id"] = event.HighBid.BidderID
		fields["amount"] = event.HighBid.Amount.String()
	}
	if event.CloseReason != "" {
		fields["close_reason"] = event.CloseReason
	}
	utils.Info("auction event", fields)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
