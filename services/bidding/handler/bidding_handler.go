package handler

//go:generate mockgen -destination=mock_handler.go -package=handler auction-engine/services/bidding/handler AuctionServiceInterface

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

type AuctionServiceInterface interface {
	OpenAuction(ctx context.Context, req model.OpenAuctionRequest) (model.AuctionSnapshot, error)
	PlaceBid(ctx context.Context, auctionID string, req model.BidRequest) (model.BidResult, error)
	CloseAuction(ctx context.Context, auctionID string) (model.AuctionSnapshot, error)
	GetAuctionWindow(auctionID string, n int) (model.AuctionSnapshot, error)
	AuctionForProduct(productID string, n int) (model.AuctionSnapshot, error)
	ListActiveAuctions() []model.AuctionSnapshot
	BidsByBidder(bidderID string) ([]model.Bid, error)
}

// Options holds the request defaults the handler fills in
type Options struct {
	Currency         string
	DefaultIncrement money.Money
	HistoryWindow    int
}

type AuctionHandler struct {
	service AuctionServiceInterface
	opts    Options
}

func NewAuctionHandler(service AuctionServiceInterface, opts Options) *AuctionHandler {
	return &AuctionHandler{service: service, opts: opts}
}

func respondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := helpers.MapErrorToHTTP(err)
	utils.JSONErrorWithDetails(c, status, fmt.Errorf("%s: %w", message, err), message, helpers.ErrorDetails(err))

	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// OpenAuctionHandler handles POST /auctions
func (h *AuctionHandler) OpenAuctionHandler(c *gin.Context) {
	var req helpers.OpenAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "OpenAuctionHandler", err)
		return
	}

	floor, err := helpers.ParseAmount(req.FloorPrice, req.Currency, h.opts.Currency, biddingerrors.ErrInvalidParameters)
	if err != nil {
		respondError(c, "OpenAuctionHandler", err, map[string]any{"product_id": req.ProductID})
		return
	}
	// the configured default applies in the floor's currency
	increment := money.New(h.opts.DefaultIncrement.Minor(), floor.Currency())
	if req.MinIncrement != "" {
		increment, err = helpers.ParseAmount(req.MinIncrement, req.Currency, h.opts.Currency, biddingerrors.ErrInvalidParameters)
		if err != nil {
			respondError(c, "OpenAuctionHandler", err, map[string]any{"product_id": req.ProductID})
			return
		}
	}

	openReq := model.OpenAuctionRequest{
		ProductID:    req.ProductID,
		FloorPrice:   floor,
		MinIncrement: increment,
		EndTime:      req.EndTime,
	}
	if req.StartTime != nil {
		openReq.StartTime = *req.StartTime
	}

	snap, err := h.service.OpenAuction(c.Request.Context(), openReq)
	if err != nil {
		respondError(c, "OpenAuctionHandler", err, map[string]any{"product_id": req.ProductID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, snap, "auction opened successfully")
	helpers.LogSuccess("OpenAuctionHandler", "auction opened successfully", map[string]any{
		"auction_id": snap.AuctionID,
		"product_id": snap.ProductID,
		"state":      snap.State,
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	amount, err := helpers.ParseAmount(req.Amount, req.Currency, h.opts.Currency, biddingerrors.ErrInvalidBid)
	if err != nil {
		respondError(c, "PlaceBidHandler", err, map[string]any{"auction_id": auctionID, "bidder_id": req.BidderID})
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), auctionID, model.BidRequest{
		BidderID:   req.BidderID,
		BidderName: req.BidderName,
		Amount:     amount,
	})
	if err != nil {
		respondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"bidder_id":  req.BidderID,
			"amount":     amount.String(),
		})
		return
	}

	resp := helpers.BidResponse{
		Bid:         result.AcceptedBid,
		CurrentHigh: result.CurrentHigh,
		NextMinimum: result.NextMinimum,
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid recorded successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"auction_id": auctionID,
		"bid_id":     result.AcceptedBid.BidID,
		"bidder_id":  result.AcceptedBid.BidderID,
		"amount":     result.AcceptedBid.Amount.String(),
	})
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	snap, err := h.service.CloseAuction(c.Request.Context(), auctionID)
	if err != nil {
		respondError(c, "CloseAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, snap, "auction closed successfully")
	fields := map[string]any{"auction_id": auctionID, "close_reason": snap.CloseReason}
	if snap.CurrentHighBid != nil {
		fields["winner_id"] = snap.CurrentHighBid.BidderID
		fields["amount"] = snap.CurrentHighBid.Amount.String()
	}
	helpers.LogSuccess("CloseAuctionHandler", "auction closed successfully", fields)
}

// GetAuctionHandler handles GET /auctions/:auction_id?recent=N
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	window, ok := h.recentWindow(c, "GetAuctionHandler")
	if !ok {
		return
	}

	snap, err := h.service.GetAuctionWindow(auctionID, window)
	if err != nil {
		respondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, snap, "auction retrieved successfully")
	helpers.LogSuccess("GetAuctionHandler", "auction retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"state":      snap.State,
		"bid_count":  snap.BidCount,
	})
}

// GetProductAuctionHandler handles GET /products/:product_id/auction?recent=N
func (h *AuctionHandler) GetProductAuctionHandler(c *gin.Context) {
	productID := c.Param("product_id")

	window, ok := h.recentWindow(c, "GetProductAuctionHandler")
	if !ok {
		return
	}

	snap, err := h.service.AuctionForProduct(productID, window)
	if err != nil {
		respondError(c, "GetProductAuctionHandler", err, map[string]any{"product_id": productID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, snap, "auction retrieved successfully")
	helpers.LogSuccess("GetProductAuctionHandler", "auction retrieved successfully", map[string]any{
		"product_id": productID,
		"auction_id": snap.AuctionID,
		"state":      snap.State,
	})
}

// recentWindow reads ?recent=N, defaulting to the configured history window.
// It writes the 400 response itself when the value is malformed.
func (h *AuctionHandler) recentWindow(c *gin.Context, handlerName string) (int, bool) {
	raw := c.Query("recent")
	if raw == "" {
		return h.opts.HistoryWindow, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		utils.JSONError(c, http.StatusBadRequest, fmt.Errorf("invalid recent parameter %q", raw), "invalid query parameter")
		utils.Warn(handlerName+": invalid recent parameter", map[string]any{"path": c.Request.URL.Path, "recent": raw})
		return 0, false
	}
	return n, true
}

// ListActiveAuctionsHandler handles GET /auctions
func (h *AuctionHandler) ListActiveAuctionsHandler(c *gin.Context) {
	auctions := h.service.ListActiveAuctions()
	if auctions == nil {
		auctions = []model.AuctionSnapshot{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListActiveAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"count": len(auctions),
	})
}

// GetBidsByUserHandler handles GET /users/:user_id/bids
func (h *AuctionHandler) GetBidsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")

	bids, err := h.service.BidsByBidder(userID)
	if err != nil {
		respondError(c, "GetBidsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByUserHandler", "bids retrieved successfully", map[string]any{
		"user_id":    userID,
		"bids_count": len(bids),
	})
}
