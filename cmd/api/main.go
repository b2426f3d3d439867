package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"ctrlcook/internal/api"
	"ctrlcook/internal/auth"
	"ctrlcook/internal/config"
	"ctrlcook/internal/pkg/logging"
	"ctrlcook/internal/platform/spoonacular"
	"ctrlcook/internal/recipe"
	"ctrlcook/internal/user"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	recipeStore, err := recipe.NewPostgresStore(db)
	if err != nil {
		logger.Fatal("failed to initialize recipe store", zap.Error(err))
	}

	userStore, err := user.NewPostgresStore(db)
	if err != nil {
		logger.Fatal("failed to initialize user store", zap.Error(err))
	}

	tokens, err := auth.NewMaker(cfg.Auth.TokenSecret, cfg.Auth.TokenDuration)
	if err != nil {
		logger.Fatal("failed to initialize token maker", zap.Error(err))
	}

	source := spoonacular.NewClient(cfg.Spoonacular.BaseURL, cfg.Spoonacular.APIKey, cfg.Spoonacular.Timeout, logger)

	var cache api.SearchCache
	if cfg.Cache.Enabled {
		searchCache, err := spoonacular.NewSearchCache(cfg.Cache.RedisAddr, cfg.Cache.TTL)
		if err != nil {
			logger.Fatal("failed to initialize search cache", zap.Error(err))
		}
		defer searchCache.Close()
		cache = searchCache
	}

	handler := api.NewHandler(recipeStore, userStore, source, cache, tokens, logger)
	router := api.NewRouter(handler, cfg.CORS.AllowOrigins)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("search_cache", cfg.Cache.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server exited")
}
