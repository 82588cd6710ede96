package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenghost107/TradersMind-chartBot/internal/bot"
	"github.com/greenghost107/TradersMind-chartBot/internal/cache"
	"github.com/greenghost107/TradersMind-chartBot/internal/chart"
	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
	"github.com/greenghost107/TradersMind-chartBot/internal/config"
	"github.com/greenghost107/TradersMind-chartBot/internal/discord"
	"github.com/greenghost107/TradersMind-chartBot/internal/logging"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
	"github.com/greenghost107/TradersMind-chartBot/internal/quote"
	"github.com/greenghost107/TradersMind-chartBot/internal/retention"
	"github.com/greenghost107/TradersMind-chartBot/internal/server"
	"github.com/greenghost107/TradersMind-chartBot/internal/store"
	"github.com/greenghost107/TradersMind-chartBot/internal/threads"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

// runHistory is how long recorded cleanup runs are kept.
const runHistory = 30 * 24 * time.Hour

var (
	serveDryRun  bool
	servePersist bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the retention engine and the admin API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "use an in-memory chat platform instead of Discord")
	serveCmd.Flags().BoolVar(&servePersist, "persist", false, "journal tracking to ~/.chartbot/chartbot.db when database.path is unset")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, warns, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("config: " + err.Error())
	}
	for _, w := range warns {
		logger.Warn("config: " + w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	p, botUserID, err := openPlatform(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" && servePersist {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return err
		}
	}

	trackOpts := []tracking.Option{tracking.WithClock(clk), tracking.WithLogger(logger)}
	var db *store.DB
	if dbPath != "" {
		db, err = store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		trackOpts = append(trackOpts, tracking.WithJournal(db))
	}
	registry := tracking.NewRegistry(trackOpts...)
	if db != nil {
		artifacts, err := db.LoadArtifacts()
		if err != nil {
			return fmt.Errorf("load tracked artifacts: %w", err)
		}
		logger.Info("tracking: restored from journal", "artifacts", registry.Restore(artifacts), "db", dbPath)
	}

	loc := cfg.Location()
	quoteCache := cache.NewQuoteCache[*quote.Record](clk, loc)
	chartCache := cache.NewChartCache[[]byte](clk, loc)
	sweeper := cache.NewSweeper(cfg.CacheSweepInterval(), clk, logger, quoteCache, chartCache)
	sweeper.Start()
	defer sweeper.Stop()

	provider, skipped, err := quote.NewFromConfig(cfg.Quote)
	for _, s := range skipped {
		logger.Warn("quote: provider skipped", "error", s)
	}
	if err != nil {
		return err
	}

	dir := threads.New(p, threads.Config{
		NamePrefix:   cfg.Threads.NamePrefix,
		ArchiveAfter: cfg.ArchiveAfter(),
	}, clk, logger)
	defer dir.Close()

	eng := retention.New(retention.Deps{
		Registry: registry,
		Threads:  dir,
		Platform: p,
		Caches:   []cache.Releaser{quoteCache, chartCache},
		Clock:    clk,
		Logger:   logger,
		OnTick:   recordRun(db, clk, logger),
	}, retention.Options{
		Retention:        cfg.RetentionWindow(),
		SafetyMargin:     cfg.SafetyMargin(),
		OrphanSweepEvery: cfg.Retention.OrphanSweepEvery,
		BotUserID:        botUserID,
		Conversations:    cfg.Discord.Channels,
		RunOnStart:       true,
	})
	eng.Start(cfg.CleanupInterval())
	defer eng.Stop()

	b := bot.New(bot.Deps{
		Platform: p,
		Registry: registry,
		Threads:  dir,
		Quotes:   quote.NewService(provider, quoteCache, logger),
		Charts:   chart.NewService(chart.NewHTTPRenderer(cfg.Chart, nil), chartCache, logger),
		Logger:   logger,
		Channels: cfg.Discord.Channels,
	})

	srv := server.New(server.Deps{
		Engine:   eng,
		Registry: registry,
		Threads:  dir,
		Events:   b,
		DB:       db,
		Logger:   logger,
	}, VersionString())

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chartbot serving",
			"addr", addr,
			"retention", cfg.RetentionWindow(),
			"interval", cfg.CleanupInterval(),
			"quotes", provider.Name(),
			"channels", len(cfg.Discord.Channels),
			"dry_run", serveDryRun)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openPlatform returns the chat platform and the bot's own user id.
func openPlatform(ctx context.Context, cfg config.Config, clk clock.Clock, logger *slog.Logger) (platform.Platform, string, error) {
	if serveDryRun {
		m := platform.NewMock(clk)
		for _, ch := range cfg.Discord.Channels {
			m.AddConversation(ch)
		}
		return m, m.BotUserID, nil
	}

	opts := []discord.Option{discord.WithLogger(logger)}
	if cfg.Discord.ApplicationID == "" && cfg.Discord.BotUserID != "" {
		opts = append(opts, discord.WithApplicationID(cfg.Discord.BotUserID))
	}
	dc, err := discord.New(cfg.Discord, opts...)
	if err != nil {
		return nil, "", err
	}
	botUserID := cfg.Discord.BotUserID
	if botUserID == "" {
		lookupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if botUserID, err = dc.CurrentUser(lookupCtx); err != nil {
			return nil, "", fmt.Errorf("resolve bot user: %w", err)
		}
	}
	return dc, botUserID, nil
}

// recordRun returns a tick hook that stores run history. Without a
// database ticks are only logged.
func recordRun(db *store.DB, clk clock.Clock, logger *slog.Logger) func(retention.TickSummary) {
	if db == nil {
		return nil
	}
	return func(s retention.TickSummary) {
		err := db.RecordRun(store.Run{
			TickID:         s.TickID,
			StartedAt:      s.StartedAt,
			Duration:       s.Duration,
			Expired:        s.Expired,
			Deleted:        s.Deleted,
			Errors:         s.Errors,
			CacheReleased:  s.CacheReleased,
			TrackingSwept:  s.Swept,
			ThreadsRemoved: s.Threads,
			OrphansRemoved: s.Orphans,
		})
		if err != nil {
			logger.Warn("store: record run failed", "tick_id", s.TickID, "error", err)
			return
		}
		if _, err := db.PruneRuns(clk.Now().Add(-runHistory)); err != nil {
			logger.Warn("store: prune runs failed", "error", err)
		}
	}
}
