package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/models"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	events  []models.AuctionEvent
	started chan string
	block   chan struct{}
	err     error
	closed  bool
}

func (p *recordingPublisher) Publish(_ context.Context, event models.AuctionEvent) error {
	if p.started != nil {
		p.started <- event.EventID
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.events))
	for _, e := range p.events {
		ids = append(ids, e.EventID)
	}
	return ids
}

func event(id string) models.AuctionEvent {
	return models.AuctionEvent{EventID: id, Type: models.EventHighBidChanged, AuctionID: "a1"}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, 16)

	for _, id := range []string{"e1", "e2", "e3"} {
		d.Notify(event(id))
	}
	require.NoError(t, d.Close())

	require.Equal(t, []string{"e1", "e2", "e3"}, pub.ids())
	require.True(t, pub.closed)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{started: make(chan string, 4), block: make(chan struct{})}
	d := NewDispatcher(pub, 1)

	d.Notify(event("e1"))
	select {
	case id := <-pub.started:
		require.Equal(t, "e1", id)
	case <-time.After(time.Second):
		t.Fatal("publisher never received the first event")
	}

	done := make(chan struct{})
	go func() {
		d.Notify(event("e2")) // queued
		d.Notify(event("e3")) // queue full, dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(pub.block)
	require.NoError(t, d.Close())
	require.Equal(t, []string{"e1", "e2"}, pub.ids())
}

func TestDispatcher_PublishErrorsDoNotStopDelivery(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d := NewDispatcher(pub, 4)

	d.Notify(event("e1"))
	d.Notify(event("e2"))
	require.NoError(t, d.Close())
	require.Equal(t, []string{"e1", "e2"}, pub.ids())
}

func TestDispatcher_NotifyAfterClose(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, 4)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "close is idempotent")

	require.NotPanics(t, func() { d.Notify(event("late")) })
	require.Empty(t, pub.ids())
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher()
	high := models.Bid{BidID: 1, BidderID: "alice"}
	require.NoError(t, p.Publish(context.Background(), models.AuctionEvent{
		EventID:     "e1",
		Type:        models.EventAuctionClosed,
		AuctionID:   "a1",
		HighBid:     &high,
		CloseReason: models.CloseReasonDeadline,
	}))
	require.NoError(t, p.Close())
}

func TestDiscard(t *testing.T) {
	var n Notifier = Discard{}
	require.NotPanics(t, func() { n.Notify(event("e1")) })
}
