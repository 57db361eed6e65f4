package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/catalog"
	model "auction-engine/internal/models"
	"auction-engine/internal/money"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupTestRouter initializes the router over an in-memory store for integration testing.
func SetupTestRouter(t *testing.T) *gin.Engine {
	return SetupTestRouterWithProducts(t,
		model.Product{ProductID: "product1", Title: "title1", Eligible: true},
		model.Product{ProductID: "product2", Title: "title2", Eligible: true},
		model.Product{ProductID: "product3", Title: "title3", Eligible: false},
	)
}

// SetupTestRouterWithProducts initializes the router and seeds the catalog.
func SetupTestRouterWithProducts(t *testing.T, products ...model.Product) *gin.Engine {
	gin.SetMode(gin.TestMode)

	c := catalog.NewMemoryCatalog()
	for _, p := range products {
		c.AddProduct(p)
	}

	registry := bidding.NewAuctionRegistry(repository.NewMemoryRepo(), bidding.WithCatalog(c))
	t.Cleanup(registry.Stop)

	return server.SetupRouter(registry, handler.Options{
		Currency:         "USD",
		DefaultIncrement: money.MustParse("5.00", "USD"),
	})
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}

// data returns the "data" object of a successful envelope
func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", resp)
	}
	return d
}
