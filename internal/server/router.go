package server

import (
	"net/http"

	handler "auction-engine/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(service handler.AuctionServiceInterface, opts handler.Options) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(service, opts)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auctions := router.Group("/auctions")
	{
		auctions.POST("", auctionHandler.OpenAuctionHandler)
		auctions.GET("", auctionHandler.ListActiveAuctionsHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/bids", auctionHandler.PlaceBidHandler)
		auctions.POST("/:auction_id/close", auctionHandler.CloseAuctionHandler)
	}

	products := router.Group("/products")
	{
		products.GET("/:product_id/auction", auctionHandler.GetProductAuctionHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/bids", auctionHandler.GetBidsByUserHandler)
	}

	return router
}
