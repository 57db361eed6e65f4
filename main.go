package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/catalog"
	"auction-engine/internal/config"
	model "auction-engine/internal/models"
	"auction-engine/internal/notifier"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/services/bidding/handler"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLogLevel(cfg.LogLevel); err != nil {
		utils.Fatal("failed to set log level", map[string]any{"error": err.Error()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	publisher := openPublisher(cfg)
	dispatcher := notifier.NewDispatcher(publisher, cfg.NotifyBuffer)

	products := catalog.NewMemoryCatalog()
	prepopulateProducts(products)

	registry := bidding.NewAuctionRegistry(store,
		bidding.WithNotifier(dispatcher),
		bidding.WithCatalog(products),
	)
	restored, err := registry.Restore(ctx)
	if err != nil {
		utils.Fatal("failed to restore auctions", map[string]any{"error": err.Error()})
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.SetupRouter(registry, handler.Options{
		Currency:         cfg.Currency,
		DefaultIncrement: cfg.DefaultIncrement,
		HistoryWindow:    cfg.HistoryWindow,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{
			"addr":     cfg.Addr(),
			"store":    cfg.Store,
			"notifier": cfg.Notifier,
			"restored": restored,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("failed to start server", map[string]any{"error": err.Error()})
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Info("shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		utils.Warn("HTTP server shutdown error", map[string]any{"error": err.Error()})
	}

	registry.Stop()
	if err := dispatcher.Close(); err != nil {
		utils.Warn("notifier shutdown error", map[string]any{"error": err.Error()})
	}
	utils.Info("server stopped", nil)
}

// openStore returns the configured AuctionStore and its cleanup func
func openStore(ctx context.Context, cfg *config.Config) (repository.AuctionStore, func()) {
	if cfg.Store != config.StorePostgres {
		return repository.NewMemoryRepo(), func() {}
	}

	repo, err := repository.NewPostgresRepo(ctx, cfg.PostgresDSN)
	if err != nil {
		utils.Fatal("failed to connect postgres", map[string]any{"error": err.Error()})
	}
	if err := repo.InitSchema(ctx); err != nil {
		utils.Fatal("failed to initialize schema", map[string]any{"error": err.Error()})
	}
	utils.Info("connected to postgres", nil)
	return repo, closeQuietly("postgres", repo)
}

// openPublisher returns the configured event sink, falling back to the log
// when a broker is unreachable at startup
func openPublisher(cfg *config.Config) notifier.Publisher {
	switch cfg.Notifier {
	case config.NotifierNATS:
		pub, err := notifier.NewNATSPublisher(cfg.NATSURL)
		if err == nil {
			return pub
		}
		utils.Warn("NATS unavailable, logging events instead", map[string]any{"url": cfg.NATSURL, "error": err.Error()})
	case config.NotifierRedis:
		pub, err := notifier.NewRedisPublisher(cfg.RedisAddr)
		if err == nil {
			return pub
		}
		utils.Warn("Redis unavailable, logging events instead", map[string]any{"addr": cfg.RedisAddr, "error": err.Error()})
	}
	return notifier.NewLogPublisher()
}

func closeQuietly(name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			utils.Warn("failed to close "+name, map[string]any{"error": err.Error()})
		}
	}
}

// prepopulateProducts adds sample products to the in-memory catalog
func prepopulateProducts(products *catalog.MemoryCatalog) {
	for _, p := range []model.Product{
		{ProductID: "product1", Title: "title1", Description: "description1", Eligible: true},
		{ProductID: "product2", Title: "title2", Description: "Description2", Eligible: true},
		{ProductID: "product3", Title: "title3", Description: "Description3", Eligible: true},
		{ProductID: "product4", Title: "title4", Description: "Description4", Eligible: false},
	} {
		products.AddProduct(p)
	}
}
