package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/money"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, biddingerrors.ErrInvalidParameters):
		return http.StatusBadRequest, "invalid auction parameters"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrProductNotEligible):
		return http.StatusUnprocessableEntity, "product is not eligible for auction"
	case errors.Is(err, biddingerrors.ErrAuctionAlreadyActive):
		return http.StatusConflict, "product already has an active auction"
	case errors.Is(err, biddingerrors.ErrAuctionNotOpen):
		return http.StatusConflict, "auction is not open for bidding"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// ErrorDetails extracts the fields a client needs to correct a rejected request
func ErrorDetails(err error) map[string]any {
	var tooLow *biddingerrors.BidTooLowError
	if errors.As(err, &tooLow) {
		return map[string]any{"next_minimum": tooLow.Required}
	}
	var notOpen *biddingerrors.NotOpenError
	if errors.As(err, &notOpen) {
		return map[string]any{"state": notOpen.State}
	}
	return nil
}

// ParseAmount reads a decimal amount in currency, falling back to fallback
// currency when none was sent. Failures wrap kind.
func ParseAmount(amount, currency, fallback string, kind error) (money.Money, error) {
	if currency == "" {
		currency = fallback
	}
	m, err := money.Parse(amount, currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("%w - %v", kind, err)
	}
	return m, nil
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
