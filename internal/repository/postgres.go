package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/money"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS auctions (
	auction_id      TEXT PRIMARY KEY,
	product_id      TEXT NOT NULL,
	currency        TEXT NOT NULL,
	floor_minor     BIGINT NOT NULL CHECK (floor_minor > 0),
	increment_minor BIGINT NOT NULL CHECK (increment_minor > 0),
	start_time      TIMESTAMPTZ NOT NULL,
	end_time        TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	state           TEXT NOT NULL,
	closed_at       TIMESTAMPTZ,
	close_reason    TEXT NOT NULL DEFAULT '',
	CHECK (end_time > start_time)
);

CREATE TABLE IF NOT EXISTS bids (
	auction_id  TEXT NOT NULL REFERENCES auctions (auction_id),
	bid_id      BIGINT NOT NULL,
	bidder_id   TEXT NOT NULL,
	bidder_name TEXT NOT NULL DEFAULT '',
	amount_minor BIGINT NOT NULL,
	currency    TEXT NOT NULL,
	accepted_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (auction_id, bid_id)
);

CREATE INDEX IF NOT EXISTS idx_auctions_product ON auctions (product_id);
`

// PostgresRepo is an AuctionStore backed by PostgreSQL
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo opens a connection pool and verifies it
func NewPostgresRepo(ctx context.Context, dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepo{db: db}, nil
}

// InitSchema creates the auctions and bids tables
func (r *PostgresRepo) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

func (r *PostgresRepo) CreateAuction(ctx context.Context, rec model.AuctionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auctions (auction_id, product_id, currency, floor_minor, increment_minor,
			start_time, end_time, created_at, state, closed_at, close_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.AuctionID, rec.ProductID, rec.FloorPrice.Currency(), rec.FloorPrice.Minor(), rec.MinIncrement.Minor(),
		rec.StartTime, rec.EndTime, rec.CreatedAt, string(rec.State), nullTime(rec.ClosedAt), string(rec.CloseReason),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert auction %s: %w", rec.AuctionID, biddingerrors.ErrAuctionAlreadyActive)
	}
	if err != nil {
		return fmt.Errorf("insert auction %s: %w", rec.AuctionID, err)
	}
	return nil
}

// UpdateAuctionState never reopens a closed row
func (r *PostgresRepo) UpdateAuctionState(ctx context.Context, rec model.AuctionRecord) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE auctions
		SET state = $2, closed_at = $3, close_reason = $4
		WHERE auction_id = $1 AND state <> 'closed'`,
		rec.AuctionID, string(rec.State), nullTime(rec.ClosedAt), string(rec.CloseReason),
	)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", rec.AuctionID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists bool
		err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE auction_id = $1)`, rec.AuctionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("update auction %s: %w", rec.AuctionID, err)
		}
		if !exists {
			return fmt.Errorf("update auction %s: %w", rec.AuctionID, biddingerrors.ErrAuctionNotFound)
		}
	}
	return nil
}

func (r *PostgresRepo) AppendBid(ctx context.Context, bid model.Bid) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bids (auction_id, bid_id, bidder_id, bidder_name, amount_minor, currency, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		bid.AuctionID, bid.BidID, bid.BidderID, bid.BidderName, bid.Amount.Minor(), bid.Amount.Currency(), bid.AcceptedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert bid %d for auction %s: %w", bid.BidID, bid.AuctionID, biddingerrors.ErrDuplicateBid)
	}
	if err != nil {
		return fmt.Errorf("insert bid %d for auction %s: %w", bid.BidID, bid.AuctionID, err)
	}
	return nil
}

func (r *PostgresRepo) LoadAuctions(ctx context.Context) ([]model.AuctionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT auction_id, product_id, currency, floor_minor, increment_minor,
			start_time, end_time, created_at, state, closed_at, close_reason
		FROM auctions
		ORDER BY created_at, auction_id`)
	if err != nil {
		return nil, fmt.Errorf("query auctions: %w", err)
	}
	defer rows.Close()

	var recs []model.AuctionRecord
	for rows.Next() {
		var (
			rec                   model.AuctionRecord
			currency, state       string
			reason                string
			floorMinor, incrMinor int64
			closedAt              sql.NullTime
		)
		if err := rows.Scan(&rec.AuctionID, &rec.ProductID, &currency, &floorMinor, &incrMinor,
			&rec.StartTime, &rec.EndTime, &rec.CreatedAt, &state, &closedAt, &reason); err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		rec.FloorPrice = money.New(floorMinor, currency)
		rec.MinIncrement = money.New(incrMinor, currency)
		rec.State = model.AuctionState(state)
		rec.CloseReason = model.CloseReason(reason)
		if closedAt.Valid {
			t := closedAt.Time
			rec.ClosedAt = &t
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auctions: %w", err)
	}
	return recs, nil
}

func (r *PostgresRepo) LoadBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.bid_id, b.bidder_id, b.bidder_name, b.amount_minor, b.currency, b.accepted_at, a.product_id
		FROM bids b JOIN auctions a ON a.auction_id = b.auction_id
		WHERE b.auction_id = $1
		ORDER BY b.bid_id`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("query bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var (
			bid      model.Bid
			minor    int64
			currency string
		)
		if err := rows.Scan(&bid.BidID, &bid.BidderID, &bid.BidderName, &minor, &currency, &bid.AcceptedAt, &bid.ProductID); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bid.AuctionID = auctionID
		bid.Amount = money.New(minor, currency)
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bids: %w", err)
	}
	return bids, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
