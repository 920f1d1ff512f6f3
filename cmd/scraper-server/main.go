package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/product-scraper/internal/api"
	"github.com/maltedev/product-scraper/internal/automation"
	"github.com/maltedev/product-scraper/internal/config"
	"github.com/maltedev/product-scraper/internal/enhance"
	"github.com/maltedev/product-scraper/internal/fingerprint"
	"github.com/maltedev/product-scraper/internal/metrics"
	"github.com/maltedev/product-scraper/internal/provider"
	"github.com/maltedev/product-scraper/internal/proxy"
	"github.com/maltedev/product-scraper/internal/queue"
	"github.com/maltedev/product-scraper/internal/ratelimit"
	"github.com/maltedev/product-scraper/internal/scraper"
	"github.com/maltedev/product-scraper/internal/session"
	"github.com/maltedev/product-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	pool := proxy.NewPool(rand.New(rand.NewSource(time.Now().UnixNano() + 1)))
	for _, raw := range cfg.Scraper.Proxies {
		endpoint, err := proxy.Parse(raw)
		if err != nil {
			logger.Warn("skipping unparseable proxy", "proxy", raw, "error", err)
			continue
		}
		pool.Add(endpoint)
	}

	backend := automation.NewPlaywrightBackend(logger)
	defer backend.Shutdown()

	fingerprints := fingerprint.NewGenerator(rng).WithUserAgents(cfg.Scraper.UserAgents)
	sessions := session.NewManager(session.Config{
		MaxConcurrent:        cfg.Scraper.MaxConcurrentSessions,
		Headless:             cfg.Browser.Headless,
		RandomizeFingerprint: cfg.Scraper.RandomizeFingerprint,
		ProxyRotation:        cfg.Scraper.ProxyRotation,
	}, backend, fingerprints, pool, logger)
	defer sessions.CloseAll()

	collector := metrics.NewCollector()

	limiter := ratelimit.NewAdaptive(cfg.Scraper.DelayMin, cfg.Scraper.DelayMax, rng)
	navigator := session.NewNavigator(session.NavigatorConfig{
		RequestTimeout: cfg.Scraper.RequestTimeout,
		SolveChallenge: cfg.Scraper.SolveCaptcha,
		ChallengeWait:  cfg.Scraper.CaptchaTimeout,
	}, limiter, collector, logger)

	var source provider.Source
	if cfg.Provider.APIKey != "" && cfg.Provider.BaseURL != "" {
		source = provider.NewClient(cfg.Provider.APIKey, cfg.Provider.BaseURL,
			cfg.Provider.Platforms, cfg.Provider.Timeout, logger)
	}

	var post scraper.PostProcessor
	if cfg.Enhancer.Enabled {
		generator := enhance.NewOpenAIClient(cfg.Enhancer.APIKey, cfg.Enhancer.BaseURL,
			cfg.Enhancer.Model, cfg.Enhancer.Timeout)
		enhancer := enhance.NewEnhancer(generator, cfg.Enhancer.Timeout, logger)
		enhancePool := enhance.NewPool(enhancer, cfg.Enhancer.Workers, cfg.Enhancer.QueueSize, logger)
		enhancePool.Start()
		defer enhancePool.Stop()
		post = enhancePool
	}

	orchestrator := scraper.NewOrchestrator(scraper.Config{
		MaxRetries:      cfg.Scraper.MaxRetries,
		MaxProxyRetries: cfg.Scraper.MaxProxyRetries,
	}, sessions, navigator, source, pool, post, collector, logger)

	if cfg.Database.Enabled {
		db, err := storage.NewDB(ctx, storage.DBConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		orchestrator.AddSink(storage.NewProductStore(db))
	}

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		publisher := storage.NewStreamPublisher(redisClient, cfg.Redis.Stream, logger)
		defer publisher.Close()
		orchestrator.AddSink(publisher)
	}

	jobQueue := queue.NewInMemoryQueue()
	jobs := api.NewJobManager(orchestrator, jobQueue, cfg.Scraper.MaxConcurrentSessions, logger)
	jobs.Start(ctx)

	handlers := api.NewHandlers(orchestrator, jobs, collector, logger)
	router := api.NewRouter(handlers, collector)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()
		jobQueue.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	jobs.Wait()
	logger.Info("server stopped")
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "none":
		level = slog.LevelError
	case "detailed":
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
