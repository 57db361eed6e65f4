package auction

import (
	"errors"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/money"

	"github.com/stretchr/testify/require"
)

func openRequest(start time.Time) models.OpenAuctionRequest {
	return models.OpenAuctionRequest{
		ProductID:    "product1",
		FloorPrice:   usd("100.00"),
		MinIncrement: usd("5.00"),
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
	}
}

func bidRequest(bidderID, amount string) models.BidRequest {
	return models.BidRequest{BidderID: bidderID, Amount: usd(amount)}
}

func place(t *testing.T, a *Auction, l *Ledger, bidderID, amount string, now time.Time) models.Bid {
	t.Helper()
	bid, err := a.Admit(l, bidRequest(bidderID, amount), now)
	require.NoError(t, err)
	require.NoError(t, a.Commit(l, bid))
	return bid
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.OpenAuctionRequest)
		ok     bool
	}{
		{name: "valid", mutate: func(r *models.OpenAuctionRequest) {}, ok: true},
		{name: "missing_product", mutate: func(r *models.OpenAuctionRequest) { r.ProductID = "" }},
		{name: "zero_floor", mutate: func(r *models.OpenAuctionRequest) { r.FloorPrice = usd("0") }},
		{name: "negative_floor", mutate: func(r *models.OpenAuctionRequest) { r.FloorPrice = usd("-1") }},
		{name: "zero_increment", mutate: func(r *models.OpenAuctionRequest) { r.MinIncrement = usd("0") }},
		{name: "currency_mismatch", mutate: func(r *models.OpenAuctionRequest) { r.MinIncrement = money.MustParse("5", "EUR") }},
		{name: "end_equals_start", mutate: func(r *models.OpenAuctionRequest) { r.EndTime = r.StartTime }},
		{name: "end_before_start", mutate: func(r *models.OpenAuctionRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }},
		{name: "missing_end", mutate: func(r *models.OpenAuctionRequest) { r.EndTime = time.Time{} }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := openRequest(t0)
			tc.mutate(&req)
			err := ValidateParams(req)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, biddingerrors.ErrInvalidParameters)
		})
	}
}

func TestNew_InitialState(t *testing.T) {
	a, l, err := New("auction1", openRequest(t0), t0)
	require.NoError(t, err)
	require.Equal(t, models.StateOpen, a.State())
	require.Zero(t, l.Len())
	require.Equal(t, uint64(1), a.Version())

	a, _, err = New("auction2", openRequest(t0.Add(time.Hour)), t0)
	require.NoError(t, err)
	require.Equal(t, models.StateScheduled, a.State())
	require.Equal(t, t0, a.Record().CreatedAt)
}

func TestAuction_Lifecycle(t *testing.T) {
	a, l, err := New("auction1", openRequest(t0.Add(time.Minute)), t0)
	require.NoError(t, err)

	_, err = a.Admit(l, bidRequest("alice", "100.00"), t0)
	var notOpen *biddingerrors.NotOpenError
	require.True(t, errors.As(err, &notOpen))
	require.Equal(t, models.StateScheduled, notOpen.State)

	require.True(t, a.Advance(t0.Add(time.Minute)))
	require.Equal(t, models.StateOpen, a.State())
	require.False(t, a.Advance(t0.Add(2*time.Minute)), "no transition while inside the window")

	place(t, a, l, "alice", "100.00", t0.Add(2*time.Minute))

	require.True(t, a.Advance(a.EndTime()))
	require.Equal(t, models.StateClosed, a.State())
	rec := a.Record()
	require.Equal(t, a.EndTime(), *rec.ClosedAt)
	require.Equal(t, models.CloseReasonDeadline, rec.CloseReason)

	require.False(t, a.Advance(a.EndTime().Add(time.Hour)), "closed is terminal")
	require.False(t, a.Close(a.EndTime().Add(time.Hour)))
	require.False(t, a.Expire())
}

func TestAuction_BidsAroundTheDeadline(t *testing.T) {
	a, l, err := New("auction1", openRequest(t0), t0)
	require.NoError(t, err)

	place(t, a, l, "alice", "100.00", a.EndTime().Add(-time.Nanosecond))

	_, err = a.Admit(l, bidRequest("bob", "200.00"), a.EndTime())
	var notOpen *biddingerrors.NotOpenError
	require.True(t, errors.As(err, &notOpen), "a bid at exactly the end time is late")
	require.Equal(t, models.StateClosed, notOpen.State)
}

func TestAuction_Close(t *testing.T) {
	t.Run("manual_before_deadline", func(t *testing.T) {
		a, _, err := New("auction1", openRequest(t0), t0)
		require.NoError(t, err)

		closeAt := t0.Add(10 * time.Minute)
		require.True(t, a.Close(closeAt))
		rec := a.Record()
		require.Equal(t, models.StateClosed, rec.State)
		require.Equal(t, closeAt, *rec.ClosedAt)
		require.Equal(t, models.CloseReasonManual, rec.CloseReason)
	})

	t.Run("deadline_already_passed_wins", func(t *testing.T) {
		a, _, err := New("auction1", openRequest(t0), t0)
		require.NoError(t, err)

		require.True(t, a.Close(a.EndTime().Add(time.Minute)))
		rec := a.Record()
		require.Equal(t, a.EndTime(), *rec.ClosedAt)
		require.Equal(t, models.CloseReasonDeadline, rec.CloseReason)
	})

	t.Run("scheduled_auction", func(t *testing.T) {
		a, _, err := New("auction1", openRequest(t0.Add(time.Hour)), t0)
		require.NoError(t, err)
		require.True(t, a.Close(t0))
		require.Equal(t, models.StateClosed, a.State())
	})

	t.Run("expire_ignores_clock", func(t *testing.T) {
		a, _, err := New("auction1", openRequest(t0), t0)
		require.NoError(t, err)
		require.True(t, a.Expire())
		require.Equal(t, a.EndTime(), *a.Record().ClosedAt)
	})
}

func TestAuction_AdmitValidation(t *testing.T) {
	a, l, err := New("auction1", openRequest(t0), t0)
	require.NoError(t, err)

	_, err = a.Admit(l, bidRequest("", "100.00"), t0)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)

	_, err = a.Admit(l, bidRequest("alice", "0"), t0)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)

	_, err = a.Admit(l, bidRequest("alice", "-5"), t0)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)
}

func TestAuction_CommitRequiresOpen(t *testing.T) {
	a, l, err := New("auction1", openRequest(t0), t0)
	require.NoError(t, err)

	bid, err := a.Admit(l, bidRequest("alice", "100.00"), t0)
	require.NoError(t, err)
	a.Close(t0.Add(time.Second))

	require.ErrorIs(t, a.Commit(l, bid), biddingerrors.ErrAuctionNotOpen)
	require.Zero(t, l.Len())
}

func TestAuction_Snapshot(t *testing.T) {
	a, l, err := New("auction1", openRequest(t0), t0)
	require.NoError(t, err)

	snap := a.Snapshot(l)
	require.Nil(t, snap.CurrentHighBid)
	require.Equal(t, usd("100.00"), *snap.NextMinimum)
	require.Zero(t, snap.BidCount)

	place(t, a, l, "alice", "100.00", t0.Add(time.Second))
	place(t, a, l, "carol", "105.00", t0.Add(2*time.Second))

	snap = a.Snapshot(l)
	require.Equal(t, 2, snap.BidCount)
	require.Equal(t, "carol", snap.CurrentHighBid.BidderID)
	require.Equal(t, usd("110.00"), *snap.NextMinimum)
	require.Equal(t, uint64(3), snap.Version)

	before := snap
	place(t, a, l, "alice", "120.00", t0.Add(3*time.Second))
	require.Len(t, before.Bids, 2, "snapshots are immutable")
	require.Equal(t, "carol", before.CurrentHighBid.BidderID)

	a.Close(t0.Add(4 * time.Second))
	snap = a.Snapshot(l)
	require.Nil(t, snap.NextMinimum)
	require.Equal(t, "alice", snap.CurrentHighBid.BidderID)
	require.Equal(t, usd("120.00"), snap.CurrentHighBid.Amount)
}

func TestRehydrate(t *testing.T) {
	rec := newRecord()
	bids := []models.Bid{
		{BidID: 1, AuctionID: "auction1", BidderID: "alice", Amount: usd("100.00"), AcceptedAt: t0.Add(time.Minute)},
		{BidID: 2, AuctionID: "auction1", BidderID: "bob", Amount: usd("110.00"), AcceptedAt: t0.Add(2 * time.Minute)},
	}

	a, l, err := Rehydrate(rec, bids)
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
	snap := a.Snapshot(l)
	require.Equal(t, "bob", snap.CurrentHighBid.BidderID)
	require.Equal(t, "product1", snap.CurrentHighBid.ProductID)
	require.Equal(t, usd("115.00"), *snap.NextMinimum)

	tests := []struct {
		name   string
		rec    func() models.AuctionRecord
		bids   func() []models.Bid
		target error
	}{
		{
			name:   "bid_below_increment",
			rec:    newRecord,
			bids:   func() []models.Bid { b := append([]models.Bid(nil), bids...); b[1].Amount = usd("101.00"); return b },
			target: biddingerrors.ErrLedgerCorrupt,
		},
		{
			name:   "bid_after_end",
			rec:    newRecord,
			bids:   func() []models.Bid { b := append([]models.Bid(nil), bids...); b[1].AcceptedAt = rec.EndTime; return b },
			target: biddingerrors.ErrLedgerCorrupt,
		},
		{
			name: "bid_after_manual_close",
			rec: func() models.AuctionRecord {
				r := newRecord()
				closedAt := t0.Add(90 * time.Second)
				r.State, r.ClosedAt, r.CloseReason = models.StateClosed, &closedAt, models.CloseReasonManual
				return r
			},
			bids:   func() []models.Bid { return bids },
			target: biddingerrors.ErrLedgerCorrupt,
		},
		{
			name: "closed_without_time",
			rec: func() models.AuctionRecord {
				r := newRecord()
				r.State = models.StateClosed
				return r
			},
			bids:   func() []models.Bid { return nil },
			target: biddingerrors.ErrLedgerCorrupt,
		},
		{
			name: "unknown_state",
			rec: func() models.AuctionRecord {
				r := newRecord()
				r.State = "paused"
				return r
			},
			bids:   func() []models.Bid { return nil },
			target: biddingerrors.ErrLedgerCorrupt,
		},
		{
			name: "invalid_parameters",
			rec: func() models.AuctionRecord {
				r := newRecord()
				r.MinIncrement = usd("0")
				return r
			},
			bids:   func() []models.Bid { return nil },
			target: biddingerrors.ErrInvalidParameters,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Rehydrate(tc.rec(), tc.bids())
			require.ErrorIs(t, err, tc.target)
		})
	}
}
