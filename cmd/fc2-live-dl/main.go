// Command fc2-live-dl records a live FC2 broadcast to disk, optionally
// remuxing it into a seekable MP4/M4A once the broadcast ends.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/fc2-live-dl/fc2-live-dl-go/internal/config"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/cookiejar"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/debugserver"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/domain"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/history"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/logging"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/metrics"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/session"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg := config.Default()
	var historyPath string

	app := &cli.App{
		Name:                 "fc2-live-dl",
		Usage:                "Downloads FC2 live streams.",
		ArgsUsage:            "url",
		Version:              version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "quality",
				Category:    "Streaming:",
				Usage:       "Requested quality: 150Kbps, 400Kbps, 1.2Mbps, 2Mbps, 3Mbps, sound.",
				Value:       string(cfg.Quality),
				Destination: (*string)(&cfg.Quality),
			},
			&cli.StringFlag{
				Name:        "latency",
				Category:    "Streaming:",
				Usage:       "Requested latency: low, high, mid.",
				Value:       string(cfg.Latency),
				Destination: (*string)(&cfg.Latency),
			},
			&cli.IntFlag{
				Name:        "threads",
				Category:    "Streaming:",
				Usage:       "Number of concurrent fragment downloads.",
				Value:       cfg.Threads,
				Destination: &cfg.Threads,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Category:    "Output:",
				Usage:       "Output filename template. See the output template documentation for available fields.",
				Value:       cfg.OutputTemplate,
				Destination: &cfg.OutputTemplate,
			},
			&cli.BoolFlag{
				Name:     "no-remux",
				Category: "Post-Processing:",
				Usage:    "Do not remux recordings into mp4/m4a once finished.",
				Action: func(_ *cli.Context, b bool) error {
					cfg.Remux = !b
					return nil
				},
			},
			&cli.BoolFlag{
				Name:        "keep-intermediates",
				Aliases:     []string{"k"},
				Category:    "Post-Processing:",
				Usage:       "Keep the raw .ts recording after it has been remuxed.",
				Destination: &cfg.KeepIntermediates,
			},
			&cli.BoolFlag{
				Name:        "extract-audio",
				Aliases:     []string{"x"},
				Category:    "Post-Processing:",
				Usage:       "Also produce an audio-only .m4a copy of the stream.",
				Destination: &cfg.ExtractAudio,
			},
			&cli.StringFlag{
				Name:        "cookies",
				Category:    "Auth:",
				Usage:       "Path to a Netscape-format cookies file, for members-only or paid streams.",
				Destination: &cfg.CookiesFile,
			},
			&cli.BoolFlag{
				Name:        "write-chat",
				Category:    "Output:",
				Usage:       "Save live chat comments into a .chat.jsonl file.",
				Destination: &cfg.WriteChat,
			},
			&cli.BoolFlag{
				Name:        "write-info-json",
				Category:    "Output:",
				Usage:       "Save channel metadata into a .info.json file.",
				Destination: &cfg.WriteInfoJSON,
			},
			&cli.BoolFlag{
				Name:        "write-thumbnail",
				Category:    "Output:",
				Usage:       "Download the channel's thumbnail image.",
				Destination: &cfg.WriteThumbnail,
			},
			&cli.BoolFlag{
				Name:        "wait",
				Category:    "Polling:",
				Usage:       "Wait until the channel goes live instead of failing immediately when it is offline.",
				Value:       false,
				Destination: &cfg.WaitForLive,
			},
			&cli.DurationFlag{
				Name:        "poll-interval",
				Category:    "Polling:",
				Usage:       "How often to check whether the channel has gone live.",
				Value:       cfg.WaitPollInterval,
				Destination: &cfg.WaitPollInterval,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Category:    "Logging:",
				Usage:       "One of silent, error, warn, info, debug, trace.",
				Value:       string(cfg.LogLevel),
				Destination: (*string)(&cfg.LogLevel),
			},
			&cli.StringFlag{
				Name:        "log-format",
				Category:    "Logging:",
				Usage:       "One of text, json.",
				Value:       cfg.LogFormat,
				Destination: &cfg.LogFormat,
			},
			&cli.StringFlag{
				Name:        "dump-websocket",
				Category:    "Logging:",
				Usage:       "Write every control websocket frame to this file, for debugging.",
				Destination: &cfg.DumpWebsocket,
			},
			&cli.StringFlag{
				Name:        "history-db",
				Category:    "Logging:",
				Usage:       "Path to a SQLite database recording past sessions for this channel. Empty disables history.",
				Destination: &historyPath,
			},
			&cli.StringFlag{
				Name:        "metrics-addr",
				Category:    "Logging:",
				Usage:       "Serve Prometheus metrics and a health check on this address (e.g. :9090). Empty disables it.",
				Destination: &cfg.MetricsAddr,
			},
		},
		Action: func(cCtx *cli.Context) error {
			cfg.URL = cCtx.Args().Get(0)
			if cfg.URL == "" {
				return cli.Exit("missing url argument", 1)
			}
			return run(cCtx.Context, cfg, historyPath)
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(parent context.Context, cfg config.Session, historyPath string) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(ctx, "fc2-live-dl")
	if err != nil {
		logger.Warn("otel init failed", "error", err)
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	if cfg.MetricsAddr != "" {
		srv := debugserver.New(cfg.MetricsAddr, registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("debug server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	jar, err := cookiejar.Load(cfg.CookiesFile)
	if err != nil {
		return fmt.Errorf("load cookies: %w", err)
	}
	stopWatch, err := jar.WatchForChanges(func(err error) {
		if err != nil {
			logger.Warn("failed to reload cookies", "error", err)
		} else {
			logger.Info("reloaded cookies file")
		}
	})
	if err != nil {
		logger.Warn("cookie file watch disabled", "error", err)
	} else {
		defer stopWatch()
	}

	var historyDB *history.Store
	if historyPath != "" {
		historyDB, err = history.Open(historyPath)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer historyDB.Close()
	}

	orchestrator := session.New(session.Config{
		Session: cfg,
		Logger:  logger,
		Jar:     jar,
		History: historyDB,
	})

	err = orchestrator.Run(ctx)
	switch {
	case err == nil:
		metrics.RecordingsFinishedTotal.WithLabelValues("completed").Inc()
		return nil
	case errors.Is(err, domain.ErrNotOnline):
		metrics.RecordingsFinishedTotal.WithLabelValues("not_online").Inc()
		logger.Info("channel is not online")
		return nil
	case errors.Is(err, context.Canceled):
		metrics.RecordingsFinishedTotal.WithLabelValues("interrupted").Inc()
		logger.Info("interrupted")
		return nil
	default:
		metrics.RecordingsFinishedTotal.WithLabelValues("failed").Inc()
		return err
	}
}
