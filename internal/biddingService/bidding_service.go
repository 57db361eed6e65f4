package bidding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"auction-engine/internal/auction"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/catalog"
	model "auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/notifier"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/utils"

	"github.com/benbjohnson/clock"
)

// AuctionRegistry owns every auction and its ledger. Mutations on one auction
// are serialized; different auctions never wait for each other.
type AuctionRegistry struct {
	store    repository.AuctionStore
	clock    clock.Clock
	notifier notifier.Notifier
	catalog  catalog.ProductCatalog
	sched    *scheduler.Scheduler

	mu       sync.RWMutex
	auctions map[string]*entry // key: auctionID -> value: auction handle
	active   map[string]string // key: productID -> value: auctionID of its scheduled/open auction

	biddersMu sync.Mutex
	bidders   map[string]map[string]struct{} // key: bidderID -> value: set of auctionIDs bid on
}

// Option configures an AuctionRegistry
type Option func(*AuctionRegistry)

// WithClock replaces the wall clock, mainly for tests
func WithClock(clk clock.Clock) Option {
	return func(r *AuctionRegistry) { r.clock = clk }
}

// WithNotifier sets the sink for high-bid and close events
func WithNotifier(n notifier.Notifier) Option {
	return func(r *AuctionRegistry) { r.notifier = n }
}

// WithCatalog makes OpenAuction check product eligibility first
func WithCatalog(c catalog.ProductCatalog) Option {
	return func(r *AuctionRegistry) { r.catalog = c }
}

// NewAuctionRegistry creates a registry persisting through store
func NewAuctionRegistry(store repository.AuctionStore, opts ...Option) *AuctionRegistry {
	r := &AuctionRegistry{
		store:    store,
		clock:    clock.New(),
		notifier: notifier.Discard{},
		auctions: make(map[string]*entry),
		active:   make(map[string]string),
		bidders:  make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sched = scheduler.New(r.clock)
	return r
}

// entry is the handle of one auction. sem is the auction's critical section;
// snap always holds the last published immutable snapshot.
type entry struct {
	sem     chan struct{}
	auction *auction.Auction
	ledger  *auction.Ledger
	snap    atomic.Pointer[model.AuctionSnapshot]
}

func newEntry(a *auction.Auction, l *auction.Ledger) *entry {
	e := &entry{sem: make(chan struct{}, 1), auction: a, ledger: l}
	e.publish()
	return e
}

// acquire waits for the critical section. Cancellation is honoured only while waiting.
func (e *entry) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lock waits for the critical section without a deadline; timer callbacks use it.
func (e *entry) lock() { e.sem <- struct{}{} }

func (e *entry) release() { <-e.sem }

func (e *entry) publish() {
	snap := e.auction.Snapshot(e.ledger)
	e.snap.Store(&snap)
}

func (e *entry) snapshot() model.AuctionSnapshot { return *e.snap.Load() }

func openKey(auctionID string) string  { return "open:" + auctionID }
func closeKey(auctionID string) string { return "close:" + auctionID }

// OpenAuction validates and starts an auction on a product. A zero StartTime starts it now.
func (r *AuctionRegistry) OpenAuction(ctx context.Context, req model.OpenAuctionRequest) (model.AuctionSnapshot, error) {
	now := r.clock.Now()
	if req.StartTime.IsZero() {
		req.StartTime = now
	}
	if err := auction.ValidateParams(req); err != nil {
		return model.AuctionSnapshot{}, fmt.Errorf("service: %w", err)
	}
	if !req.EndTime.After(now) {
		return model.AuctionSnapshot{}, fmt.Errorf("service: %w - end time already passed", biddingerrors.ErrInvalidParameters)
	}

	if r.catalog != nil {
		if err := r.catalog.CheckEligible(ctx, req.ProductID); err != nil {
			return model.AuctionSnapshot{}, fmt.Errorf("service: product %s cannot be auctioned: %w", req.ProductID, err)
		}
	}

	auctionID := utils.GenerateID()
	if err := r.reserveProduct(req.ProductID, auctionID, now); err != nil {
		return model.AuctionSnapshot{}, err
	}

	a, l, err := auction.New(auctionID, req, now)
	if err != nil {
		r.releaseProduct(req.ProductID, auctionID)
		return model.AuctionSnapshot{}, fmt.Errorf("service: %w", err)
	}
	if err := r.store.CreateAuction(context.WithoutCancel(ctx), a.Record()); err != nil {
		r.releaseProduct(req.ProductID, auctionID)
		return model.AuctionSnapshot{}, fmt.Errorf("service: failed to persist auction for product %s: %w", req.ProductID, err)
	}

	e := newEntry(a, l)
	snap := e.snapshot()

	r.mu.Lock()
	r.auctions[auctionID] = e
	r.mu.Unlock()

	r.arm(snap)

	utils.Info("auction opened", map[string]any{
		"auction_id": auctionID,
		"product_id": req.ProductID,
		"state":      snap.State,
		"floor":      snap.FloorPrice.String(),
		"increment":  snap.MinIncrement.String(),
		"end_time":   snap.EndTime.UTC().Format(time.RFC3339),
	})
	if snap.State == model.StateOpen {
		r.emit(model.EventAuctionOpened, snap, nil)
	}

	return snap.Clone(), nil
}

// PlaceBid validates a bid and, if it clears the current minimum, appends it to
// the ledger. The context can abort the wait for the auction's critical section
// but never a sequence that has started.
func (r *AuctionRegistry) PlaceBid(ctx context.Context, auctionID string, req model.BidRequest) (model.BidResult, error) {
	if req.BidderID == "" {
		return model.BidResult{}, fmt.Errorf("service: %w - missing bidder id", biddingerrors.ErrInvalidBid)
	}
	if !req.Amount.IsPositive() {
		return model.BidResult{}, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}

	e, ok := r.lookup(auctionID)
	if !ok {
		return model.BidResult{}, fmt.Errorf("service: bid on auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err := e.acquire(ctx); err != nil {
		return model.BidResult{}, fmt.Errorf("service: bid on auction %s not attempted: %w", auctionID, err)
	}
	defer e.release()

	persistCtx := context.WithoutCancel(ctx)
	now := r.clock.Now()
	r.settle(persistCtx, e, now)

	candidate, err := e.auction.Admit(e.ledger, req, now)
	if err != nil {
		return model.BidResult{}, fmt.Errorf("service: bid on auction %s: %w", auctionID, err)
	}

	if err := r.store.AppendBid(persistCtx, candidate); err != nil {
		return model.BidResult{}, fmt.Errorf("service: failed to record bid on auction %s by %s: %w", auctionID, req.BidderID, err)
	}

	var previous *money.Money
	if last, ok := e.ledger.Last(); ok {
		previous = &last.Amount
	}
	if err := e.auction.Commit(e.ledger, candidate); err != nil {
		// the row is stored but memory refused it; Restore re-validates the ledger
		utils.Error("service: stored bid rejected by ledger", map[string]any{
			"auction_id": auctionID,
			"bid_id":     candidate.BidID,
			"error":      err.Error(),
		})
		return model.BidResult{}, fmt.Errorf("service: failed to apply bid on auction %s: %w", auctionID, err)
	}
	e.publish()

	result := model.BidResult{AcceptedBid: candidate, CurrentHigh: candidate}
	if next, err := e.ledger.RequiredMinimum(); err == nil {
		result.NextMinimum = &next
	} else {
		// only an overflow gets here; the bid itself is recorded
		utils.Warn("service: no next minimum after bid", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}

	r.indexBidder(req.BidderID, auctionID)
	r.emit(model.EventHighBidChanged, e.snapshot(), previous)

	utils.Debug("bid accepted", map[string]any{
		"auction_id": auctionID,
		"bid_id":     candidate.BidID,
		"bidder_id":  candidate.BidderID,
		"amount":     candidate.Amount.String(),
	})

	return result, nil
}

// CloseAuction force-closes an auction and returns its final snapshot.
// Closing an already closed auction returns the same snapshot again.
func (r *AuctionRegistry) CloseAuction(ctx context.Context, auctionID string) (model.AuctionSnapshot, error) {
	e, ok := r.lookup(auctionID)
	if !ok {
		return model.AuctionSnapshot{}, fmt.Errorf("service: close auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err := e.acquire(ctx); err != nil {
		return model.AuctionSnapshot{}, fmt.Errorf("service: close auction %s not attempted: %w", auctionID, err)
	}
	defer e.release()

	if e.auction.State() == model.StateClosed {
		return e.snapshot().Clone(), nil
	}

	before := e.auction.State()
	staged := e.auction.Clone()
	staged.Close(r.clock.Now())
	if err := r.store.UpdateAuctionState(context.WithoutCancel(ctx), staged.Record()); err != nil {
		return model.AuctionSnapshot{}, fmt.Errorf("service: failed to persist close of auction %s: %w", auctionID, err)
	}
	e.auction = staged
	r.finishTransition(e, before)

	return e.snapshot().Clone(), nil
}

// GetAuction returns the current snapshot without waiting for writers.
func (r *AuctionRegistry) GetAuction(auctionID string) (model.AuctionSnapshot, error) {
	return r.GetAuctionWindow(auctionID, 0)
}

// GetAuctionWindow is GetAuction with the bid history bounded to the most recent n entries.
func (r *AuctionRegistry) GetAuctionWindow(auctionID string, n int) (model.AuctionSnapshot, error) {
	e, ok := r.lookup(auctionID)
	if !ok {
		return model.AuctionSnapshot{}, fmt.Errorf("service: get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return e.snapshot().EffectiveAt(r.clock.Now()).Recent(n).Clone(), nil
}

// AuctionForProduct returns the scheduled or open auction of a product, with the
// bid history bounded like GetAuctionWindow.
func (r *AuctionRegistry) AuctionForProduct(productID string, n int) (model.AuctionSnapshot, error) {
	r.mu.RLock()
	e, ok := r.auctions[r.active[productID]]
	r.mu.RUnlock()

	if ok {
		snap := e.snapshot().EffectiveAt(r.clock.Now())
		if snap.State != model.StateClosed {
			return snap.Recent(n).Clone(), nil
		}
	}
	return model.AuctionSnapshot{}, fmt.Errorf("service: no active auction for product %s: %w", productID, biddingerrors.ErrAuctionNotFound)
}

// ListActiveAuctions returns scheduled and open auctions ordered by end time.
func (r *AuctionRegistry) ListActiveAuctions() []model.AuctionSnapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.active))
	for _, auctionID := range r.active {
		if e, ok := r.auctions[auctionID]; ok {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	now := r.clock.Now()
	out := make([]model.AuctionSnapshot, 0, len(entries))
	for _, e := range entries {
		snap := e.snapshot().EffectiveAt(now)
		if snap.State == model.StateClosed {
			continue
		}
		out = append(out, snap.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].AuctionID < out[j].AuctionID
		}
		return out[i].EndTime.Before(out[j].EndTime)
	})
	return out
}

// BidsByBidder returns every accepted bid of a bidder across all auctions, oldest first.
func (r *AuctionRegistry) BidsByBidder(bidderID string) ([]model.Bid, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder id", biddingerrors.ErrInvalidBid)
	}

	r.biddersMu.Lock()
	auctionIDs := make([]string, 0, len(r.bidders[bidderID]))
	for auctionID := range r.bidders[bidderID] {
		auctionIDs = append(auctionIDs, auctionID)
	}
	r.biddersMu.Unlock()

	bids := []model.Bid{}
	for _, auctionID := range auctionIDs {
		e, ok := r.lookup(auctionID)
		if !ok {
			continue
		}
		for _, b := range e.snapshot().Bids {
			if b.BidderID == bidderID {
				bids = append(bids, b)
			}
		}
	}

	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].AcceptedAt.Equal(bids[j].AcceptedAt) {
			return bids[i].AcceptedAt.Before(bids[j].AcceptedAt)
		}
		if bids[i].AuctionID != bids[j].AuctionID {
			return bids[i].AuctionID < bids[j].AuctionID
		}
		return bids[i].BidID < bids[j].BidID
	})
	return bids, nil
}

// Restore loads persisted auctions after a restart. Auctions whose deadline has
// passed are closed before they become visible; the rest get their timers back.
func (r *AuctionRegistry) Restore(ctx context.Context) (int, error) {
	recs, err := r.store.LoadAuctions(ctx)
	if err != nil {
		return 0, fmt.Errorf("service: failed to load auctions: %w", err)
	}

	now := r.clock.Now()
	restored := 0
	for _, rec := range recs {
		if _, ok := r.lookup(rec.AuctionID); ok {
			continue
		}

		bids, err := r.store.LoadBids(ctx, rec.AuctionID)
		if err != nil {
			return restored, fmt.Errorf("service: failed to load bids of auction %s: %w", rec.AuctionID, err)
		}
		a, l, err := auction.Rehydrate(rec, bids)
		if err != nil {
			return restored, fmt.Errorf("service: %w", err)
		}

		closedNow := a.Advance(now) && a.State() == model.StateClosed
		if rec.State != a.State() {
			if err := r.store.UpdateAuctionState(ctx, a.Record()); err != nil {
				return restored, fmt.Errorf("service: failed to persist recovered state of auction %s: %w", rec.AuctionID, err)
			}
		}

		e := newEntry(a, l)
		snap := e.snapshot()

		r.mu.Lock()
		if snap.State != model.StateClosed {
			if other, ok := r.active[snap.ProductID]; ok {
				r.mu.Unlock()
				return restored, fmt.Errorf("service: product %s has auctions %s and %s: %w",
					snap.ProductID, other, snap.AuctionID, biddingerrors.ErrAuctionAlreadyActive)
			}
			r.active[snap.ProductID] = snap.AuctionID
		}
		r.auctions[snap.AuctionID] = e
		r.mu.Unlock()

		for _, b := range snap.Bids {
			r.indexBidder(b.BidderID, snap.AuctionID)
		}

		if closedNow {
			r.emit(model.EventAuctionClosed, snap, nil)
		}
		r.arm(snap)
		restored++
	}

	utils.Info("auctions restored", map[string]any{"count": restored})
	return restored, nil
}

// Stop cancels every pending timer. The registry must not be used afterwards.
func (r *AuctionRegistry) Stop() {
	r.sched.Stop()
}

func (r *AuctionRegistry) lookup(auctionID string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.auctions[auctionID]
	return e, ok
}

// reserveProduct claims productID for auctionID. An auction past its deadline
// whose timer has not run yet no longer holds the product.
func (r *AuctionRegistry) reserveProduct(productID, auctionID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.active[productID]; ok {
		e, loaded := r.auctions[existingID]
		if !loaded || e.snapshot().EffectiveAt(now).State != model.StateClosed {
			return fmt.Errorf("service: product %s has auction %s: %w", productID, existingID, biddingerrors.ErrAuctionAlreadyActive)
		}
	}
	r.active[productID] = auctionID
	return nil
}

func (r *AuctionRegistry) releaseProduct(productID, auctionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[productID] == auctionID {
		delete(r.active, productID)
	}
}

func (r *AuctionRegistry) indexBidder(bidderID, auctionID string) {
	r.biddersMu.Lock()
	defer r.biddersMu.Unlock()

	set, ok := r.bidders[bidderID]
	if !ok {
		set = make(map[string]struct{})
		r.bidders[bidderID] = set
	}
	set[auctionID] = struct{}{}
}

// arm schedules the clock-driven transitions still ahead of snap.
func (r *AuctionRegistry) arm(snap model.AuctionSnapshot) {
	auctionID := snap.AuctionID
	switch snap.State {
	case model.StateScheduled:
		r.sched.Schedule(openKey(auctionID), snap.StartTime, func() { r.advance(auctionID) })
		fallthrough
	case model.StateOpen:
		r.sched.Schedule(closeKey(auctionID), snap.EndTime, func() { r.expire(auctionID) })
	}
}

// advance runs when a scheduled auction reaches its start time.
func (r *AuctionRegistry) advance(auctionID string) {
	e, ok := r.lookup(auctionID)
	if !ok {
		return
	}
	e.lock()
	defer e.release()

	r.settle(context.Background(), e, r.clock.Now())
}

// expire runs when an auction reaches its end time and closes it.
func (r *AuctionRegistry) expire(auctionID string) {
	e, ok := r.lookup(auctionID)
	if !ok {
		return
	}
	e.lock()
	defer e.release()

	ctx := context.Background()
	before := e.auction.State()
	if !e.auction.Expire() {
		return
	}
	r.persistState(ctx, e)
	r.finishTransition(e, before)
}

// settle applies the transitions due at now. Must hold e's critical section.
func (r *AuctionRegistry) settle(ctx context.Context, e *entry, now time.Time) {
	before := e.auction.State()
	if !e.auction.Advance(now) {
		return
	}
	r.persistState(ctx, e)
	r.finishTransition(e, before)
}

// persistState stores a clock-driven transition. A failure is logged only:
// the transition follows from the stored times and is re-derived by Restore.
func (r *AuctionRegistry) persistState(ctx context.Context, e *entry) {
	rec := e.auction.Record()
	if err := r.store.UpdateAuctionState(ctx, rec); err != nil {
		utils.Error("service: failed to persist auction state", map[string]any{
			"auction_id": rec.AuctionID,
			"state":      rec.State,
			"error":      err.Error(),
		})
	}
}

func (r *AuctionRegistry) finishTransition(e *entry, before model.AuctionState) {
	e.publish()
	snap := e.snapshot()

	switch snap.State {
	case model.StateOpen:
		r.emit(model.EventAuctionOpened, snap, nil)
	case model.StateClosed:
		r.releaseProduct(snap.ProductID, snap.AuctionID)
		r.sched.Cancel(openKey(snap.AuctionID))
		r.sched.Cancel(closeKey(snap.AuctionID))
		r.emit(model.EventAuctionClosed, snap, nil)
	}

	fields := map[string]any{
		"auction_id": snap.AuctionID,
		"product_id": snap.ProductID,
		"from":       before,
		"to":         snap.State,
	}
	if snap.CurrentHighBid != nil {
		fields["high_bidder"] = snap.CurrentHighBid.BidderID
		fields["high_amount"] = snap.CurrentHighBid.Amount.String()
	}
	if snap.CloseReason != "" {
		fields["close_reason"] = snap.CloseReason
	}
	utils.Info("auction state changed", fields)
}

func (r *AuctionRegistry) emit(eventType model.EventType, snap model.AuctionSnapshot, previous *money.Money) {
	event := model.AuctionEvent{
		EventID:     utils.GenerateID(),
		Type:        eventType,
		AuctionID:   snap.AuctionID,
		ProductID:   snap.ProductID,
		State:       snap.State,
		PreviousBid: previous,
		CloseReason: snap.CloseReason,
		OccurredAt:  r.clock.Now(),
	}
	if snap.CurrentHighBid != nil {
		high := *snap.CurrentHighBid
		event.HighBid = &high
	}
	r.notifier.Notify(event)
}
