package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/archivetheweb/atwworker/internal/pkg/config"
	"github.com/archivetheweb/atwworker/internal/pkg/identity"
	"github.com/archivetheweb/atwworker/internal/pkg/ledger"
	"github.com/archivetheweb/atwworker/internal/pkg/log"
	"github.com/archivetheweb/atwworker/internal/pkg/scheduler"
	"github.com/archivetheweb/atwworker/internal/pkg/stats"
	"github.com/archivetheweb/atwworker/internal/pkg/uploader"
	"github.com/archivetheweb/atwworker/internal/pkg/watchers"
	"github.com/archivetheweb/atwworker/internal/pkg/worker"
)

func main() {
	app := &cli.App{
		Name:  "atwworker",
		Usage: "autonomous web-archiving worker",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "concurrent-crawlers", Aliases: []string{"c"}, Value: 3, Usage: "parallel assignments"},
			&cli.IntFlag{Name: "concurrent-tabs", Aliases: []string{"t"}, Value: 10, Usage: "parallel browse tasks per crawl"},
			&cli.IntFlag{Name: "retries", Aliases: []string{"r"}, Value: 2, Usage: "per-URL retry count"},
			&cli.BoolFlag{Name: "with-upload", Aliases: []string{"u"}, Value: true, Usage: "upload artifacts after archiving"},
			&cli.IntFlag{Name: "min-wait-after-navigation", Value: 5, Usage: "seconds"},
			&cli.IntFlag{Name: "max-wait-after-navigation", Value: 7, Usage: "seconds"},
			&cli.IntFlag{Name: "browser-timeout", Value: 45, Usage: "seconds"},
			&cli.StringFlag{Name: "writer-directory", Aliases: []string{"d"}, Usage: "directory watched for low disk space; proxy/collection files go to a per-run /tmp/archiver-<id> directory, not here"},
			&cli.IntFlag{Name: "fetching-frequency", Aliases: []string{"f"}, Value: 30, Usage: "seconds between ledger polls"},
			&cli.BoolFlag{Name: "balance", Aliases: []string{"b"}, Usage: "print wallet balance and exit"},
			&cli.StringFlag{Name: "ledger-base-url", EnvVars: []string{"LEDGER_BASE_URL"}},
			&cli.StringFlag{Name: "storage-base-url", EnvVars: []string{"STORAGE_BASE_URL"}},
			&cli.StringFlag{Name: "dedup-redis-addr", EnvVars: []string{"DEDUP_REDIS_ADDR"}},
			&cli.StringFlag{Name: "proxy-binary", EnvVars: []string{"PROXY_BINARY"}},
			&cli.StringFlag{Name: "wallet-path", Aliases: []string{"w"}, EnvVars: []string{"WALLET_PATH"}, Required: true},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.New(config.Options{
		ConcurrentCrawlers: c.Int("concurrent-crawlers"),
		ConcurrentTabs:     c.Int("concurrent-tabs"),
		URLRetries:         c.Int("retries"),
		WithUpload:         c.Bool("with-upload"),
		MinWaitAfterNav:    c.Int("min-wait-after-navigation"),
		MaxWaitAfterNav:    c.Int("max-wait-after-navigation"),
		BrowserTimeout:     c.Int("browser-timeout"),
		WriterDirectory:    c.String("writer-directory"),
		FetchingFrequency:  c.Int("fetching-frequency"),
		LedgerBaseURL:      c.String("ledger-base-url"),
		StorageBaseURL:     c.String("storage-base-url"),
		DedupRedisAddr:     c.String("dedup-redis-addr"),
		ProxyBinary:        c.String("proxy-binary"),
		WalletPath:         c.String("wallet-path"),
	})

	if err := log.Start(); err != nil {
		return fmt.Errorf("atwworker: starting logger: %w", err)
	}
	defer log.Stop()

	if err := stats.Init(); err != nil {
		return fmt.Errorf("atwworker: starting stats: %w", err)
	}
	stats.StartLiveTable(2 * time.Second)
	defer stats.StopLiveTable()

	logger := log.NewFieldedLogger(&log.Fields{"component": "cmd.atwworker"})

	identityAddr, err := identity.FromWalletFile(cfg.WalletPath)
	if err != nil {
		return fmt.Errorf("atwworker: startup fatal: %w", err)
	}

	up := uploader.New(cfg.StorageBaseURL, cfg.AppName, cfg.AppVersion)

	if c.Bool("balance") {
		balance, err := up.Balance(context.Background(), identityAddr)
		if err != nil {
			return fmt.Errorf("atwworker: startup fatal: balance check failed: %w", err)
		}
		fmt.Println(balance)
		return nil
	}

	if err := ensureFunded(context.Background(), identityAddr, up); err != nil {
		return fmt.Errorf("atwworker: startup fatal: %w", err)
	}

	ledgerClient := ledger.New(cfg.LedgerBaseURL)

	if err := ensureRegistered(identityAddr, ledgerClient); err != nil {
		return fmt.Errorf("atwworker: startup fatal: %w", err)
	}

	fs := afero.NewOsFs()
	w := worker.New(fs, ledgerClient, up, worker.Options{
		ConcurrentTabs:  cfg.ConcurrentTabs,
		URLRetries:      cfg.URLRetries,
		WithUpload:      cfg.WithUpload,
		MinWaitAfterNav: cfg.MinWaitAfterNav,
		MaxWaitAfterNav: cfg.MaxWaitAfterNav,
		BrowserTimeout:  cfg.BrowserTimeout,
		InDocker:        cfg.InDocker,
		DedupRedisAddr:  cfg.DedupRedisAddr,
		ProxyBinary:     cfg.ProxyBinary,
	})

	sched := scheduler.New(ledgerClient, w.Run, scheduler.Options{
		Identity:      identityAddr,
		FetchInterval: cfg.FetchingFrequency,
		PoolSize:      cfg.ConcurrentCrawlers,
	})

	watchers.WatchDiskSpace(cfg.WriterDirectory, 5*time.Second)
	defer watchers.StopDiskWatcher()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	logger.Info("starting scheduler", "identity", identityAddr, "concurrent_crawlers", cfg.ConcurrentCrawlers)
	sched.Run(ctx)
	logger.Info("scheduler stopped, exiting")

	return nil
}

// balanceChecker is the subset of *uploader.Uploader ensureFunded needs,
// factored out so main_test.go can exercise it against a fake.
type balanceChecker interface {
	Balance(ctx context.Context, address string) (string, error)
}

// ensureFunded aborts startup when the wallet carries a zero balance,
// checked ahead of the uploader-registry check so a worker never enters
// the scheduler loop only to fail every upload (§6/§7 Startup fatal).
func ensureFunded(ctx context.Context, identityAddr string, b balanceChecker) error {
	balance, err := b.Balance(ctx, identityAddr)
	if err != nil {
		return fmt.Errorf("balance check failed: %w", err)
	}
	if balance == "0" {
		return fmt.Errorf("identity %q has a zero balance", identityAddr)
	}
	return nil
}

// ensureRegistered confirms identity is present in the ledger's uploader
// registry before the scheduler loop is entered (§7 Startup fatal).
func ensureRegistered(identityAddr string, l ledger.Ledger) error {
	registry, err := l.Uploaders(context.Background())
	if err != nil {
		return fmt.Errorf("fetching uploader registry: %w", err)
	}
	if _, ok := registry[identityAddr]; !ok {
		return fmt.Errorf("identity %q is not registered as an uploader", identityAddr)
	}
	return nil
}
