package integrationtests

import (
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"auction-engine/services/bidding/helpers"

	"github.com/stretchr/testify/require"
)

func amountOf(v any) string {
	return v.(map[string]any)["amount"].(string)
}

// OpenAuctionHandler Tests
func TestOpenAuctionHandler(t *testing.T) {
	end := time.Now().Add(time.Hour).UTC()

	tests := []struct {
		name       string
		request    any
		wantStatus int
	}{
		{
			name:       "Valid_Auction",
			request:    helpers.OpenAuctionRequest{ProductID: "product1", FloorPrice: "100.00", EndTime: end},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Invalid_JSON",
			request:    "{product_id: 'missing quotes'}",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "End_Before_Start",
			request:    helpers.OpenAuctionRequest{ProductID: "product1", FloorPrice: "100.00", EndTime: time.Now().Add(-time.Minute)},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Not_Eligible",
			request:    helpers.OpenAuctionRequest{ProductID: "product3", FloorPrice: "100.00", EndTime: end},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "Unknown_Product",
			request:    helpers.OpenAuctionRequest{ProductID: "nonexistent", FloorPrice: "100.00", EndTime: end},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupTestRouter(t)
			resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				d := data(t, resp)
				require.NotEmpty(t, d["auction_id"])
				require.Equal(t, "product1", d["product_id"])
				require.Equal(t, "open", d["state"])
				require.Equal(t, "100.00", amountOf(d["floor_price"]))
				require.Equal(t, "5.00", amountOf(d["min_increment"]), "default increment applied")
			}
		})
	}
}

// End-to-end bidding flow: floor 100.00, increment 5.00
func TestAuctionBiddingFlow(t *testing.T) {
	router := SetupTestRouter(t)

	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", helpers.OpenAuctionRequest{
		ProductID:    "product1",
		FloorPrice:   "100.00",
		MinIncrement: "5.00",
		EndTime:      time.Now().Add(time.Hour).UTC(),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	auctionID := data(t, resp)["auction_id"].(string)
	bidsURL := "/auctions/" + auctionID + "/bids"

	// a second auction on the same product is refused
	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", helpers.OpenAuctionRequest{
		ProductID: "product1", FloorPrice: "10", EndTime: time.Now().Add(time.Hour).UTC(),
	})
	require.Equal(t, http.StatusConflict, w.Code)

	for _, amount := range []string{"1e10000000", "1e-100000000"} {
		resp, w = ExecuteRequestAndParse(t, router, http.MethodPost, bidsURL, helpers.PlaceBidRequest{BidderID: "A", Amount: amount})
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Less(t, len(w.Body.Bytes()), 512)
	}

	resp, w = ExecuteRequestAndParse(t, router, http.MethodPost, bidsURL, helpers.PlaceBidRequest{BidderID: "A", Amount: "100.00"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "105.00", amountOf(data(t, resp)["next_minimum"]))

	resp, w = ExecuteRequestAndParse(t, router, http.MethodPost, bidsURL, helpers.PlaceBidRequest{BidderID: "B", Amount: "102.00"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "105.00", amountOf(resp["details"].(map[string]any)["next_minimum"]))

	resp, w = ExecuteRequestAndParse(t, router, http.MethodPost, bidsURL, helpers.PlaceBidRequest{BidderID: "C", BidderName: "Carol", Amount: "105.00"})
	require.Equal(t, http.StatusCreated, w.Code)
	d := data(t, resp)
	require.Equal(t, "110.00", amountOf(d["next_minimum"]))
	require.Equal(t, "Carol", d["bid"].(map[string]any)["bidder_name"])

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/"+auctionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	d = data(t, resp)
	require.Equal(t, float64(2), d["bid_count"])
	require.Equal(t, "C", d["current_high_bid"].(map[string]any)["bidder_id"])

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/"+auctionID+"?recent=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, data(t, resp)["bids"], 1)

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/products/product1/auction", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, auctionID, data(t, resp)["auction_id"])

	resp, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/"+auctionID+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	d = data(t, resp)
	require.Equal(t, "closed", d["state"])
	require.Equal(t, "manual", d["close_reason"])
	require.Equal(t, "105.00", amountOf(d["current_high_bid"].(map[string]any)["amount"]))

	// closing again returns the same outcome
	resp, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/"+auctionID+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, d["closed_at"], data(t, resp)["closed_at"])

	resp, w = ExecuteRequestAndParse(t, router, http.MethodPost, bidsURL, helpers.PlaceBidRequest{BidderID: "D", Amount: "200.00"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "closed", resp["details"].(map[string]any)["state"])

	_, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/products/product1/auction", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/users/C/bids", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"], 1)
}

func TestAuctionClosesAtDeadline(t *testing.T) {
	router := SetupTestRouter(t)

	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", helpers.OpenAuctionRequest{
		ProductID:  "product2",
		FloorPrice: "10.00",
		EndTime:    time.Now().Add(300 * time.Millisecond).UTC(),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	auctionID := data(t, resp)["auction_id"].(string)

	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/"+auctionID+"/bids", helpers.PlaceBidRequest{BidderID: "A", Amount: "10.00"})
	require.Equal(t, http.StatusCreated, w.Code)

	require.Eventually(t, func() bool {
		resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/"+auctionID, nil)
		d, ok := resp["data"].(map[string]any)
		return w.Code == http.StatusOK && ok && d["state"] == "closed"
	}, 3*time.Second, 20*time.Millisecond)

	resp, _ = ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/"+auctionID, nil)
	require.Equal(t, "deadline", data(t, resp)["close_reason"])

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"], 0)

	// the product can be auctioned again
	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", helpers.OpenAuctionRequest{
		ProductID: "product2", FloorPrice: "10.00", EndTime: time.Now().Add(time.Hour).UTC(),
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestConcurrentBidsOverHTTP(t *testing.T) {
	router := SetupTestRouter(t)

	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", helpers.OpenAuctionRequest{
		ProductID: "product1", FloorPrice: "1.00", MinIncrement: "1.00", EndTime: time.Now().Add(time.Hour).UTC(),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	auctionID := data(t, resp)["auction_id"].(string)

	var wg sync.WaitGroup
	for i := 1; i <= 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := ExecuteRequest(t, router, http.MethodPost, "/auctions/"+auctionID+"/bids",
				[]byte(`{"bidder_id":"bidder","amount":"`+strconv.Itoa(i)+`.00"}`))
			if w.Code != http.StatusCreated && w.Code != http.StatusConflict {
				t.Errorf("unexpected status %d: %s", w.Code, w.Body.String())
			}
		}(i)
	}
	wg.Wait()

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/"+auctionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "40.00", amountOf(data(t, resp)["current_high_bid"].(map[string]any)["amount"]))
}

func TestUnknownAuction(t *testing.T) {
	router := SetupTestRouter(t)

	_, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/nonexistent", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/nonexistent/bids", helpers.PlaceBidRequest{BidderID: "A", Amount: "1.00"})
	require.Equal(t, http.StatusNotFound, w.Code)

	_, w = ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions/nonexistent/close", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", resp["status"])
}
