package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/maltedev/product-scraper/internal/automation"
	"github.com/maltedev/product-scraper/internal/config"
	"github.com/maltedev/product-scraper/internal/enhance"
	"github.com/maltedev/product-scraper/internal/fingerprint"
	"github.com/maltedev/product-scraper/internal/metrics"
	"github.com/maltedev/product-scraper/internal/provider"
	"github.com/maltedev/product-scraper/internal/proxy"
	"github.com/maltedev/product-scraper/internal/ratelimit"
	"github.com/maltedev/product-scraper/internal/scraper"
	"github.com/maltedev/product-scraper/internal/session"
)

func main() {
	var (
		urls      = flag.String("urls", "", "Comma-separated list of product URLs to scrape")
		inputFile = flag.String("file", "", "File containing product URLs (one per line)")
		output    = flag.String("output", "stdout", "Output: stdout or path to a JSON file")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	targets, err := collectTargets(*urls, *inputFile, flag.Args())
	if err != nil {
		logger.Error("failed to read targets", "error", err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "no URLs given: use -urls, -file, or positional arguments")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

	results := make([]interface{}, 0, len(targets))
	for _, target := range targets {
		if ctx.Err() != nil {
			logger.Info("interrupted, stopping")
			break
		}
		result, _ := orchestrator.Acquire(ctx, target)
		results = append(results, result)
	}

	if err := writeResults(*output, results); err != nil {
		logger.Error("failed to write results", "error", err)
		os.Exit(1)
	}

	snapshot := collector.Snapshot()
	logger.Info("run finished",
		"total", snapshot.TotalRequests,
		"success", snapshot.SuccessCount,
		"failed", snapshot.FailureCount,
		"challenges_solved", snapshot.ChallengesSolved,
		"success_rate", fmt.Sprintf("%.2f", snapshot.SuccessRate))
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

func collectTargets(urls, inputFile string, args []string) ([]string, error) {
	var targets []string

	for _, u := range strings.Split(urls, ",") {
		if u = strings.TrimSpace(u); u != "" {
			targets = append(targets, u)
		}
	}
	targets = append(targets, args...)

	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				targets = append(targets, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
	}

	return targets, nil
}

func writeResults(output string, results []interface{}) error {
	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	if output == "stdout" || output == "" {
		fmt.Println(string(encoded))
		return nil
	}
	return os.WriteFile(output, append(encoded, '\n'), 0o644)
}
