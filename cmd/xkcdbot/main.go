package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	xkcdbot "github.com/jamesprial/xkcdbot"
	"github.com/jamesprial/xkcdbot/internal/config"
	"github.com/jamesprial/xkcdbot/internal/ledger"
	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
)

const (
	version = "1.0.0"

	legacyReaders = 4
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "xkcdbot",
		Usage:   "reply to Reddit comments linking xkcd comics with the comic's title text",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"XKCDBOT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "override log.format: text or json",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "compose replies without posting them",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			crawlCommand(),
			importLedgerCommand(),
			initConfigCommand(),
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "crawl the hot threads of every configured source until interrupted",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			if len(cfg.Sources) == 0 {
				return &pkgerrs.ConfigError{Field: "sources", Message: "at least one source is required"}
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			bot, err := xkcdbot.NewBot(ctx, botConfig(cfg, logger))
			if err != nil {
				return err
			}
			defer bot.Close()

			err = quiet(bot.Run(ctx, cfg.Sources, cfg.Bot.PollInterval))
			logger.Info("shutting down", "replied", bot.Replied())
			return err
		},
	}
}

func crawlCommand() *cli.Command {
	return &cli.Command{
		Name:      "crawl",
		Usage:     "crawl a single thread once",
		ArgsUsage: "SUBREDDIT THREAD_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: xkcdbot crawl SUBREDDIT THREAD_ID", 2)
			}
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			bot, err := xkcdbot.NewBot(ctx, botConfig(cfg, logger))
			if err != nil {
				return err
			}
			defer bot.Close()

			before := bot.Replied()
			if err := bot.Crawl(ctx, c.Args().Get(0), c.Args().Get(1)); err != nil {
				return quiet(err)
			}
			logger.Info("thread crawled", "thread", c.Args().Get(1), "replies", bot.Replied()-before)
			return nil
		},
	}
}

func importLedgerCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-ledger",
		Usage:     "import replied comment ids from legacy text files, one id per line",
		ArgsUsage: "FILE...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("usage: xkcdbot import-ledger FILE...", 2)
			}
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, levelOf(c, cfg), formatOf(c, cfg))

			store, err := ledger.Open(c.Context, cfg.Ledger.Path, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			files := c.Args().Slice()
			ids, err := readLegacyFiles(c.Context, files)
			if err != nil {
				return err
			}
			imported, err := store.Import(c.Context, ids)
			if err != nil {
				return err
			}
			logger.Info("ledger imported", "files", len(files), "imported", imported, "known", store.Len())
			return nil
		},
	}
}

// readLegacyFiles reads the files concurrently and returns their ids in
// argument order.
func readLegacyFiles(ctx context.Context, files []string) ([]string, error) {
	perFile := make([][]string, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(legacyReaders)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids, err := ledger.ReadLegacy(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			perFile[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ids []string
	for _, chunk := range perFile {
		ids = append(ids, chunk...)
	}
	return ids, nil
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "write a sample configuration file",
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if path == "" {
				path = config.DefaultPath
			}
			if err := config.InitConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Configuration written to %s\n", path)
			return nil
		},
	}
}

// loadConfig loads and validates the configuration and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if c.IsSet("dry-run") {
		cfg.Bot.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(os.Stderr, levelOf(c, cfg), cfg.Log.Format), nil
}

func botConfig(cfg *config.Config, logger *slog.Logger) *xkcdbot.Config {
	return &xkcdbot.Config{
		Username:          cfg.Reddit.Username,
		Password:          cfg.Reddit.Password,
		ClientID:          cfg.Reddit.ClientID,
		ClientSecret:      cfg.Reddit.ClientSecret,
		UserAgent:         cfg.Reddit.UserAgent,
		BaseURL:           cfg.Reddit.BaseURL,
		AuthURL:           cfg.Reddit.AuthURL,
		XKCDBaseURL:       cfg.XKCD.BaseURL,
		HTTPClient:        newHTTPClient(cfg.Reddit.Timeout),
		RequestsPerMinute: cfg.Reddit.RequestsPerMinute,
		SafetyMargin:      cfg.Bot.SafetyMargin,
		Denylist:          cfg.Bot.Denylist,
		DryRun:            cfg.Bot.DryRun,
		LedgerPath:        cfg.Ledger.Path,
		Logger:            logger,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = xkcdbot.DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func levelOf(c *cli.Context, cfg *config.Config) string {
	if c.IsSet("log-level") {
		return c.String("log-level")
	}
	return cfg.Log.Level
}

func formatOf(c *cli.Context, cfg *config.Config) string {
	if c.IsSet("log-format") {
		return c.String("log-format")
	}
	return cfg.Log.Format
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// quiet maps an interrupt to a clean exit. Session exhaustion and every other
// error still fail the process.
func quiet(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
