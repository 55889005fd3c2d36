package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"property-scraper/config"
	"property-scraper/dedupe"
	"property-scraper/fetch"
	"property-scraper/geo"
	"property-scraper/models"
	"property-scraper/normalize"
	"property-scraper/pipeline"
	"property-scraper/quality"
	"property-scraper/registry"
	"property-scraper/scheduler"
	"property-scraper/storage"
	"property-scraper/utils"
)

func main() {
	sitesFlag := flag.String("sites", "", "comma-separated site keys to scrape (default: all enabled)")
	pageCap := flag.Int("pages", 0, "cap pages per site (0 = use each site's own cap)")
	enrich := flag.Bool("enrich", false, "fetch detail pages to fill missing fields")
	geocode := flag.Bool("geocode", false, "resolve area/state to coordinates")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("=== Property Listings Aggregator starting ===")
	logger.Info("Config — budget: %d | abandon after: %d | floor: %d | sessions: %d sites × %d parallel",
		cfg.AttemptBudget, cfg.AbandonAfter, cfg.QualityFloor, cfg.SitesPerSession, cfg.MaxParallel)

	reg, err := registry.Load(cfg.SitesFile, logger)
	if err != nil {
		logger.Error("Failed to load site registry: %v", err)
		os.Exit(1)
	}

	sink, err := storage.NewPostgresSink(cfg.DSN(), cfg.UploadBatchSize, logger)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d")
		os.Exit(1)
	}
	defer sink.Close()

	browser := fetch.NewBrowserStrategy()
	defer browser.Close()

	strategies := []fetch.Strategy{
		fetch.NewHTTPStrategy(cfg.FetchTimeout),
		browser,
	}
	if unblock := fetch.NewUnblockStrategy(cfg.UnblockAPIURL, cfg.UnblockAPIKey, cfg.UnblockTimeout); unblock != nil {
		strategies = append(strategies, unblock)
		logger.Info("Unblocking proxy enabled: %s", cfg.UnblockAPIURL)
	}
	cascade := fetch.NewCascade(strategies, fetch.NewClassifier(), cfg.AbandonAfter, logger)

	var geocoder *geo.Geocoder
	if *geocode || cfg.GeocodeEnabled {
		var cache geo.Cache
		if cfg.RedisURL != "" {
			redisCache, err := geo.NewRedisCache(context.Background(), cfg.RedisURL, cfg.GeoCacheTTL)
			if err != nil {
				logger.Warn("Redis unavailable (%v) — using in-memory geocode cache", err)
				cache = geo.NewMemoryCache()
			} else {
				cache = redisCache
			}
		} else {
			cache = geo.NewMemoryCache()
		}
		gate := utils.NewRateGate(time.Duration(cfg.GeocodeIntervalMs) * time.Millisecond)
		geocoder = geo.NewGeocoder(cfg.GeocodeAPIURL, cache, gate, logger)
	}

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
		os.Exit(1)
	}
	defer csvWriter.Close()

	p := pipeline.New(
		cascade,
		normalize.New(logger),
		quality.NewScorer(cfg.QualityFloor, logger),
		sink,
		dedupe.NewIndex(),
		geocoder,
		csvWriter,
		pipeline.Options{
			PageCap:           *pageCap,
			AttemptBudget:     cfg.AttemptBudget,
			EnrichDetails:     *enrich || cfg.EnrichDetails,
			EnrichConcurrency: cfg.EnrichConcurrency,
			Geocode:           *geocode || cfg.GeocodeEnabled,
			DefaultTimeout:    cfg.FetchTimeout,
			DefaultFloor:      cfg.QualityFloor,
			RateLimitMs:       cfg.RateLimitMs,
		},
		logger,
	)

	schedCfg := scheduler.Config{
		SitesPerSession:  cfg.SitesPerSession,
		MaxParallel:      cfg.MaxParallel,
		SessionTimeout:   cfg.SessionTimeout,
		JobCeiling:       cfg.JobCeiling,
		SafetyMultiplier: cfg.SafetyMultiplier,
		PerPageCost:      time.Duration(cfg.PerPageSeconds) * time.Second,
	}

	var subset []string
	if *sitesFlag != "" {
		subset = strings.Split(*sitesFlag, ",")
	}

	runOnce := func() {
		sites := reg.Enabled(subset)
		if len(sites) == 0 {
			logger.Error("No enabled sites match the requested subset %v", subset)
			return
		}

		sessions, err := scheduler.Partition(sites, schedCfg)
		if err != nil {
			logger.Error("Refusing run: %v", err)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runID := uuid.NewString()
		logger.Info("Run %s: %d sites in %d sessions", runID[:8], len(sites), len(sessions))

		report := scheduler.NewExecutor(p, schedCfg, logger).Run(ctx, runID, sessions)
		printRunReport(report)

		if stats, err := sink.Stats(context.Background()); err != nil {
			logger.Warn("Dataset stats unavailable: %v", err)
		} else {
			printDatasetStats(stats)
		}
	}

	if cfg.CronSpec != "" {
		logger.Info("Daemon mode — schedule %q", cfg.CronSpec)
		c := cron.New()
		if _, err := c.AddFunc(cfg.CronSpec, runOnce); err != nil {
			logger.Error("Invalid SCRAPE_CRON %q: %v", cfg.CronSpec, err)
			os.Exit(1)
		}
		c.Start()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Info("Shutting down daemon")
		<-c.Stop().Done()
		return
	}

	runOnce()
}

func printRunReport(r *models.RunReport) {
	fmt.Printf("\n================ RUN REPORT %s ================\n", r.RunID[:8])
	fmt.Printf("  Started:  %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Printf("  Duration: %v\n\n", r.Duration.Round(time.Second))

	for _, s := range r.Sessions {
		line := fmt.Sprintf("  Session %.8s  %-10s  %v (est %v)  %v",
			s.ID, s.State, s.Elapsed.Round(time.Second), s.Estimate.Round(time.Second), s.Sites)
		if s.Err != "" {
			line += "  err: " + s.Err
		}
		fmt.Println(line)
	}

	fmt.Println()
	for _, s := range r.Sites {
		fmt.Printf("  %-20s found=%-4d normalized=%-4d dedup=%-3d rejected=%-3d uploaded=%-4d errors=%d",
			s.SiteKey, s.Found, s.Normalized, s.Deduplicated, s.Rejected, s.Uploaded, s.Errors)
		if s.Abandoned {
			fmt.Print("  [abandoned]")
		}
		if s.Reason != "" {
			fmt.Printf("  (%s)", s.Reason)
		}
		fmt.Println()
	}

	t := r.Totals()
	fmt.Printf("\n  TOTAL: %d found → %d uploaded (%d duplicates, %d rejected, %d errors)\n\n",
		t.Found, t.Uploaded, t.Deduplicated, t.Rejected, t.Errors)
}

func printDatasetStats(s *storage.DatasetStats) {
	fmt.Printf("  Dataset: %d listings | avg price ₦%d\n", s.Total, s.AvgPrice)
	for state, n := range s.ByState {
		fmt.Printf("    %-12s %d\n", state, n)
	}
	fmt.Println()
}
