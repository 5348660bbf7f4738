package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/playcredits/backend/internal/database"
	"github.com/playcredits/backend/internal/handlers"
	mW "github.com/playcredits/backend/internal/middleware"
	"github.com/playcredits/backend/internal/services"
)

const treasuryAccountName = "Treasury"

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("cache.balance_ttl", "BALANCE_CACHE_TTL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	db := database.InitDatabase()
	defer db.Close()

	if err := database.Bootstrap(db); err != nil {
		log.Fatalf("Failed to bootstrap schema: %v", err)
	}
	if err := database.Seed(db); err != nil {
		log.Fatalf("Failed to seed reference data: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	accountService := services.NewAccountService(db)

	// The Treasury is the counterparty of every wallet operation. Resolve it
	// once; its id is injected into the engine.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	treasury, err := accountService.GetSystemByName(ctx, treasuryAccountName)
	cancel()
	if err != nil {
		log.Fatalf("Failed to resolve %s account: %v", treasuryAccountName, err)
	}
	log.Printf("Treasury account resolved: id=%d", treasury.ID)

	ledgerService := services.NewLedgerService(db, treasury.ID)

	viper.SetDefault("cache.balance_ttl", 30*time.Second)
	balanceCache := services.NewBalanceCache(redisClient, viper.GetDuration("cache.balance_ttl"))

	walletHandler := handlers.NewWalletHandler(ledgerService, accountService, balanceCache)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users/{externalUserId}", func(r chi.Router) {
			r.Get("/balance", walletHandler.GetBalance)
			r.Post("/top-up", walletHandler.TopUp)
			r.Post("/bonus", walletHandler.Bonus)
			r.Post("/spend", walletHandler.Spend)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
