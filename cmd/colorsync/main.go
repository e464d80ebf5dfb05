// Package main wires together the color data service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/api"
	"github.com/sanzolab/colorsync/internal/cache"
	"github.com/sanzolab/colorsync/internal/clock/system"
	"github.com/sanzolab/colorsync/internal/config"
	"github.com/sanzolab/colorsync/internal/gate"
	"github.com/sanzolab/colorsync/internal/github"
	"github.com/sanzolab/colorsync/internal/logging"
	"github.com/sanzolab/colorsync/internal/robots"
	"github.com/sanzolab/colorsync/internal/scrape"
	"github.com/sanzolab/colorsync/internal/store"
	"github.com/sanzolab/colorsync/internal/syncer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis unavailable", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		cacheStore = cache.NewRedis(rdb, cfg.CacheTTL(), clock)
	default:
		cacheStore = cache.NewMemory(cfg.CacheTTL(), clock)
	}

	var provider store.Provider
	switch cfg.Database.Backend {
	case "postgres":
		pg, err := store.NewPostgres(ctx, store.PostgresConfig{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("postgres schema init failed", zap.Error(err))
		}
		provider = pg
	default:
		provider = store.NewMemory()
	}

	policy := robots.NewPolicy(cfg.Scrape.UserAgent, cfg.RequestDelay(), logger.Named("robots"))

	requestGate := gate.New(gate.Config{
		MaxConcurrent: cfg.Scrape.MaxConcurrent,
		RequestDelay:  cfg.RequestDelay(),
		MaxRetries:    cfg.Scrape.MaxRetries,
		Timeout:       cfg.ScrapeTimeout(),
		UserAgent:     cfg.Scrape.UserAgent,
	}, logger.Named("gate"))
	if rules := policy.Check(ctx, cfg.Scrape.BaseURL); rules.CrawlDelay > 0 {
		requestGate.UseCrawlDelay(rules.CrawlDelay)
	}

	discoverer := scrape.NewDiscoverer(scrape.DiscoveryConfig{
		BaseURL:   cfg.Scrape.BaseURL,
		UserAgent: cfg.Scrape.UserAgent,
		MaxDepth:  cfg.Scrape.MaxDepth,
		MaxPages:  cfg.Scrape.MaxPages,
		Delay:     cfg.RequestDelay(),
	}, policy, cacheStore, clock, logger.Named("discovery"))
	scraper := scrape.NewScraper(requestGate, cacheStore, clock, logger.Named("scraper"))
	pipeline := scrape.NewPipeline(discoverer, scraper, logger.Named("webscrape"))

	repoClient := github.New(github.Config{
		BaseURL:            cfg.GitHub.BaseURL,
		Owner:              cfg.GitHub.Owner,
		Repo:               cfg.GitHub.Repo,
		Token:              cfg.GitHub.Token,
		UserAgent:          cfg.Scrape.UserAgent,
		Timeout:            cfg.GitHubTimeout(),
		MaxRetries:         cfg.GitHub.MaxRetries,
		RateLimitThreshold: cfg.GitHub.RateLimitThreshold,
	}, cacheStore, clock, logger.Named("github"))

	orchestrator := syncer.New(provider, clock, logger.Named("syncer"), repoClient, pipeline)

	apiServer := api.NewServer(provider, cacheStore, orchestrator, clock, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
