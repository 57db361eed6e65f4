package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-engine/internal/models"

	"github.com/nats-io/nats.go"
)

// NATSSubjectPrefix is followed by the auction id: "auction.events.<auctionID>".
const NATSSubjectPrefix = "auction.events."

// NATSPublisher publishes events as JSON on a per-auction subject.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("auction-engine"))
	if err != nil {
		return nil, fmt.Errorf("notifier: failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event models.AuctionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notifier: failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(NATSSubjectPrefix+event.AuctionID, data); err != nil {
		return fmt.Errorf("notifier: failed to publish to NATS: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
