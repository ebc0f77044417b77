// The poller performs one drain of the remote alert outbox: fetch pending
// alerts, archive each one locally, email each one (unless squelched), and
// clear the outbox only when the whole batch was handled.
//
// It takes no arguments and is meant to run from a single cron slot; that
// external schedule is what serializes runs. Exit status is 0 on success or
// a benign empty outbox, non-zero on configuration or fetch failure.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"healthwatch/internal/archive"
	"healthwatch/internal/config"
	"healthwatch/internal/drain"
	"healthwatch/internal/liveness"
	"healthwatch/internal/mailer"
	"healthwatch/internal/outbox"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireAPI(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	mode := drain.ModeDeliver
	if cfg.Settings.Squelch {
		mode = drain.ModeArchiveOnly
	} else if err := cfg.RequireSMTP(); err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	tz, err := liveness.ParseTimezone(cfg.Settings.Timezone)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	warning := config.PermissionWarning(cfgPath)
	if warning != "" {
		slog.Warn("credential file exposed", "warning", warning)
	}

	var progress io.Writer
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		progress = os.Stdout
	}

	pipeline := drain.New(
		outbox.NewClient(cfg.API.BaseURL, cfg.API.Token),
		archive.New(cfg.Settings.ArchivePath),
		mailer.New(cfg.SMTP),
		tz, mode, warning, progress,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := pipeline.Run(ctx)
	if err != nil {
		slog.Error("drain failed", "error", err)
		os.Exit(1)
	}
	if res.Fetched > 0 {
		slog.Info("drain complete",
			"fetched", res.Fetched,
			"sent", res.Sent,
			"failed", res.Failed,
			"cleared", res.Cleared)
	}
}
