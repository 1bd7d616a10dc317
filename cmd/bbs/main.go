package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bbsfolio/api/internal/client"
	"bbsfolio/api/internal/config"
	"bbsfolio/api/internal/contentsync"
	"bbsfolio/api/internal/kv"
	"bbsfolio/api/internal/logging"
	"bbsfolio/api/internal/tui"
)

var cfg = config.LoadClient()

var rootCmd = &cobra.Command{
	Use:   "bbs",
	Short: "Retro BBS portfolio in the terminal",
	Long: `Opens the portfolio marquee. Press a section's key to open it and again to
return to the first section. Content is cached locally for the configured TTL and
served from the cache (or built-in defaults) when the API is unreachable.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.APIURL, "api", cfg.APIURL, "bbsfolio API base URL")
	flags.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "local cache database")
	flags.StringVar(&cfg.LogPath, "log", cfg.LogPath, "log file")
	flags.DurationVar(&cfg.CacheTTL, "ttl", cfg.CacheTTL, "how long a cached snapshot is served without refetching")
	flags.StringVar(&cfg.DisplayName, "name", cfg.DisplayName, "name shown in the header")
	flags.StringVar(&cfg.LocationURL, "location-url", cfg.LocationURL, `geo-IP lookup for the top bar ("off" to disable)`)
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger, err := logging.NewFile(cfg.LogPath, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	api, err := client.New(cfg.APIURL)
	if err != nil {
		return err
	}
	cache, err := kv.OpenSQLite(ctx, cfg.CachePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	loader := contentsync.NewLoader(api, cache,
		contentsync.WithTTL(cfg.CacheTTL),
		contentsync.WithObserver(func(result contentsync.Result) {
			logger.Debug("sections loaded", zap.String("source", string(result.Source)), zap.Int("count", len(result.Sections)))
		}),
	)

	opts := tui.Options{Name: cfg.DisplayName, Logger: logger}
	if cfg.LocationURL != "" && cfg.LocationURL != "off" {
		locator, err := client.NewLocator(cfg.LocationURL)
		if err != nil {
			return err
		}
		opts.Locator = locator
	}

	model := tui.New(loader, api, opts)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("run marquee: %w", err)
	}

	// Closing the marquee ends the session, like closing the tab.
	endCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := api.EndSession(endCtx); err != nil {
		logger.Warn("end session", zap.Error(err))
	}
	return nil
}
