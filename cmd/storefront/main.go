package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trendora/storefront/internal/cache"
	"github.com/trendora/storefront/internal/cart"
	"github.com/trendora/storefront/internal/checkout"
	"github.com/trendora/storefront/internal/config"
	h "github.com/trendora/storefront/internal/http"
	"github.com/trendora/storefront/internal/identity"
	"github.com/trendora/storefront/internal/orders"
	"github.com/trendora/storefront/internal/payment"
	"github.com/trendora/storefront/internal/products"
	"github.com/trendora/storefront/internal/publisher"
	"github.com/trendora/storefront/internal/repository"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB: cart storage
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.DBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	cartRepo := repository.NewMongoRepository(mongoDB)
	log.Printf("Connected to MongoDB at %s", cfg.Mongo.URI)

	// Redis: cart cache and session lookups
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")

	cartCache := cache.NewRedisCache(redisClient)
	carts := cart.NewService(cartRepo, cartCache)
	provider := identity.NewRedisProvider(redisClient)

	// Postgres: orders, outbox, product catalog
	cred := &orders.Credentials{
		Host:              cfg.Postgres.Host,
		Port:              cfg.Postgres.Port,
		User:              cfg.Postgres.User,
		Password:          cfg.Postgres.Password,
		DBName:            cfg.Postgres.DBName,
		MigrationsDirPath: cfg.Postgres.MigrationsDir,
	}
	orderRepo, err := orders.NewRepository(cred)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer orderRepo.Close()
	if err := orderRepo.RunMigrations(cred); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	productRepo := products.NewRepository(orderRepo.DB())

	// Payment gateway
	gateway := payment.NewHTTPGateway(
		cfg.Gateway.BaseURL,
		cfg.Gateway.KeyID,
		cfg.Gateway.Secret,
		cfg.Gateway.RequestTimeout,
	)

	// Checkout orchestrator
	var pricing checkout.PricingStrategy = checkout.FlatZeroPricing{}
	if cfg.Checkout.ShippingFee > 0 {
		pricing = checkout.FlatFeePricing{Fee: cfg.Checkout.ShippingFee}
	}
	sessionStore := checkout.NewStore(cfg.Checkout.SessionIdleTTL)
	orchestrator := checkout.NewOrchestrator(
		carts,
		orderRepo,
		gateway,
		pricing,
		sessionStore,
		cfg.Checkout.Currency,
		cfg.Checkout.PendingTTL,
	)
	go sessionStore.RunJanitor(ctx, cfg.Checkout.JanitorTick)

	// Outbox publisher
	outbox := publisher.NewOutboxPoller(orderRepo, cfg.Kafka.Topic, cfg.Kafka.Brokers...)
	defer outbox.Close()
	go outbox.Run(ctx)

	// HTTP server
	router := h.NewRouter(h.RouterDeps{
		Carts:    carts,
		Provider: provider,
		CartHandler: h.NewCartHandler(
			carts, productRepo, provider,
			cfg.Identity.PollInterval, cfg.Identity.AwaitTimeout, cfg.HTTP.RequestTimeout,
		),
		Checkout: h.NewCheckoutHandler(
			orchestrator, productRepo, cfg.Gateway.Secret, cfg.HTTP.RequestTimeout,
		),
		Orders:         h.NewOrdersHandler(orderRepo, cfg.HTTP.RequestTimeout),
		Products:       h.NewProductHandler(productRepo, cfg.HTTP.RequestTimeout),
		AdminKey:       cfg.Security.AdminKey,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      otelhttp.NewHandler(router, "storefront-http"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront listening on :%s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		log.Printf("mongo disconnect error: %v", err)
	}
	log.Println("server exited")
}
