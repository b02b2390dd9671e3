package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/pricehawk/pricehawk-engine/config"
	"github.com/pricehawk/pricehawk-engine/internal/amazon"
	"github.com/pricehawk/pricehawk-engine/internal/browser"
	"github.com/pricehawk/pricehawk-engine/internal/discovery"
	"github.com/pricehawk/pricehawk-engine/internal/ebay"
	"github.com/pricehawk/pricehawk-engine/internal/extraction"
	"github.com/pricehawk/pricehawk-engine/internal/generic"
	"github.com/pricehawk/pricehawk-engine/internal/httputil"
	"github.com/pricehawk/pricehawk-engine/internal/ledger"
	"github.com/pricehawk/pricehawk-engine/internal/logging"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
	"github.com/pricehawk/pricehawk-engine/internal/shopify"
	"github.com/pricehawk/pricehawk-engine/internal/stealth"
	"github.com/pricehawk/pricehawk-engine/internal/tracking"
	"github.com/pricehawk/pricehawk-engine/internal/woocommerce"
	mcpserver "github.com/pricehawk/pricehawk-engine/mcp"
)

var (
	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:          "pricehawk",
	Short:        "PriceHawk - store discovery and competitor price extraction",
	Long:         "Detects the platform behind a store URL (Shopify, WooCommerce, Amazon, eBay or any HTML storefront), discovers its products and tracks competitor prices.",
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = initConfig
	rootCmd.PersistentFlags().String("delay-profile", "", "Per-request delay: off, cautious, normal, aggressive")
	rootCmd.PersistentFlags().Bool("respect-robots", true, "Respect robots.txt rules")
	rootCmd.PersistentFlags().String("proxy-file", "", "Path to proxy list file")
	rootCmd.PersistentFlags().Int("max-fetch", 0, "Cap for fetch-all-then-filter catalogs (default 500)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text, json")
	rootCmd.PersistentFlags().String("ledger", "", "Extraction ledger: memory, redis")
	rootCmd.PersistentFlags().String("competitors", "", "Tracked competitors file (YAML or JSON)")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cfg = config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}

	// Override from flags
	flags := cmd.Root().PersistentFlags()
	if v, _ := flags.GetString("delay-profile"); v != "" {
		cfg.DelayProfile = v
	}
	if v, _ := flags.GetBool("respect-robots"); !v {
		cfg.RespectRobots = false
	}
	if v, _ := flags.GetString("proxy-file"); v != "" {
		cfg.ProxyFile = v
	}
	if v, _ := flags.GetInt("max-fetch"); v > 0 {
		cfg.MaxProductsFetch = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if v, _ := flags.GetString("ledger"); v != "" {
		cfg.LedgerBackend = v
	}
	if v, _ := flags.GetString("competitors"); v != "" {
		cfg.CompetitorsFile = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	log = l
	return nil
}

// buildHTTPClient creates the stealth-wrapped HTTP client from config.
func buildHTTPClient(fpPool *stealth.FingerprintPool) (*http.Client, error) {
	delay := stealth.NewHumanDelay(stealth.DelayProfile(cfg.DelayProfile))
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)

	baseTransport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	var proxyRotator *stealth.ProxyRotator
	if cfg.ProxyFile != "" {
		providers, err := stealth.LoadProxyFile(cfg.ProxyFile)
		if err != nil {
			return nil, err
		}
		providers = append(providers, stealth.NewDirectProvider(baseTransport))
		proxyRotator = stealth.NewProxyRotator(providers)
		log.WithField("proxies", len(providers)-1).Info("proxy rotation enabled")
	}

	robotsClient := httputil.NewHTTPClient(baseTransport, 10*time.Second)
	robots := stealth.NewRobotsChecker(robotsClient, cfg.RespectRobots)

	transport := &stealth.StealthTransport{
		Base:        baseTransport,
		Robots:      robots,
		Fingerprint: fpPool,
		Proxy:       proxyRotator,
		Delay:       delay,
		RateLimiter: limiter,
	}

	return httputil.NewHTTPClient(transport, cfg.RequestTimeout), nil
}

// engine is the wired core shared by every command.
type engine struct {
	detector  *platform.Detector
	discovery *discovery.Service
}

// buildEngine registers all platform handlers in detection order.
func buildEngine() (*engine, error) {
	fpPool := stealth.NewFingerprintPool(cfg.UserAgents...)
	client, err := buildHTTPClient(fpPool)
	if err != nil {
		return nil, err
	}
	fetcher := scrape.NewFetcher(client, cfg.HTTPRetries)
	renderer := browser.NewPool(browser.Options{
		ControlURL:   cfg.BrowserURL,
		Bin:          cfg.BrowserBin,
		MaxPages:     cfg.BrowserSlots,
		Fingerprints: fpPool,
	})

	regs := []platform.Registration{
		{Handler: shopify.New(fetcher, shopify.WithLogger(log)), Priority: 1},
		{Handler: woocommerce.New(fetcher, woocommerce.WithLogger(log)), Priority: 2},
		{Handler: amazon.New(renderer, amazon.WithLogger(log)), Priority: 3},
		{Handler: ebay.New(renderer, ebay.WithLogger(log)), Priority: 4},
		{Handler: generic.New(fetcher, generic.WithRenderer(renderer), generic.WithLogger(log)), Priority: 100},
	}
	detector, err := platform.NewDetector(regs,
		platform.WithProbeTimeout(cfg.DetectTimeout),
		platform.WithCacheTTL(cfg.DetectCacheTTL),
		platform.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	return &engine{
		detector: detector,
		discovery: discovery.New(detector,
			discovery.WithMaxFetch(cfg.MaxProductsFetch),
			discovery.WithLogger(log),
		),
	}, nil
}

// buildLedger returns the configured ledger and a closer for it.
func buildLedger(ctx context.Context) (ledger.Ledger, func(), error) {
	retention := 7 * cfg.Period
	if cfg.LedgerBackend == "redis" {
		l, client, err := ledger.DialRedis(ctx, cfg.RedisURL, retention)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { client.Close() }, nil
	}
	return ledger.NewMemory(retention), func() {}, nil
}

// loadDirectory reads the competitors file. A missing file yields an empty
// directory so on-demand extraction works without one.
func loadDirectory() (*tracking.Directory, error) {
	if _, err := os.Stat(cfg.CompetitorsFile); os.IsNotExist(err) {
		log.WithField("file", cfg.CompetitorsFile).Debug("no competitors file")
		return tracking.New(nil, platform.URLPolicy{})
	}
	return tracking.LoadFile(cfg.CompetitorsFile, platform.URLPolicy{})
}

func schedulerConfig() extraction.Config {
	return extraction.Config{
		MaxRetries:    cfg.MaxRetries,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
		SoftTimeout:   cfg.SoftTimeLimit,
		HardTimeout:   cfg.HardTimeLimit,
		BatchSize:     cfg.BatchSize,
		MaxConcurrent: cfg.MaxConcurrent,
		BrowserSlots:  cfg.BrowserSlots,
		Period:        cfg.Period,
		DelayMin:      cfg.PaceMin,
		DelayMax:      cfg.PaceMax,
	}
}

// buildServices wires the engine, the ledger and the scheduler. The returned
// func releases the ledger.
func buildServices(ctx context.Context) (*mcpserver.Services, *tracking.Directory, func(), error) {
	eng, err := buildEngine()
	if err != nil {
		return nil, nil, nil, err
	}
	dir, err := loadDirectory()
	if err != nil {
		return nil, nil, nil, err
	}
	store, closeLedger, err := buildLedger(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	sched := extraction.New(eng.detector, dir, store, schedulerConfig(),
		extraction.WithRecorder(store),
		extraction.WithLogger(log),
	)
	return &mcpserver.Services{
		Detector:  eng.detector,
		Discovery: eng.discovery,
		Scheduler: sched,
		Ledger:    store,
	}, dir, closeLedger, nil
}
