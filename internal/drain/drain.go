// Package drain runs one fetch → archive → deliver → conditional-clear
// cycle over the remote alert outbox.
//
// The pipeline is single-threaded and runs at most one fetch and one clear
// per invocation. Serialization of concurrent runs is an external
// invariant: the deployment schedules exactly one run at a time (one cron
// slot); two simultaneous runs would double-archive and double-send the
// same batch.
package drain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"healthwatch/internal/liveness"
	"healthwatch/internal/model"
)

// Mode selects what happens to an alert after it is archived.
type Mode int

const (
	// ModeDeliver emails every alert.
	ModeDeliver Mode = iota
	// ModeArchiveOnly (squelch) skips delivery entirely; the outbox is
	// still cleared as if every send succeeded.
	ModeArchiveOnly
)

type queue interface {
	Fetch(ctx context.Context) ([]model.Alert, error)
	Clear(ctx context.Context) error
}

type archiver interface {
	Append(e model.ArchiveEntry) error
}

type sender interface {
	Send(ctx context.Context, alert model.Alert, headerTime, warning string) error
}

// Pipeline drains the outbox once per Run call.
type Pipeline struct {
	queue   queue
	archive archiver
	mailer  sender
	tz      liveness.Timezone
	mode    Mode

	// warning, when non-empty, is prepended to every outgoing email of
	// the run (never to the archive).
	warning string

	now      func() time.Time
	progress io.Writer
}

// New assembles a pipeline. progress may be nil; it receives human-readable
// status lines when the caller is attached to an interactive terminal.
func New(q queue, a archiver, s sender, tz liveness.Timezone, mode Mode, warning string, progress io.Writer) *Pipeline {
	return &Pipeline{
		queue:    q,
		archive:  a,
		mailer:   s,
		tz:       tz,
		mode:     mode,
		warning:  warning,
		now:      time.Now,
		progress: progress,
	}
}

// Result summarizes one run for the caller and the logs.
type Result struct {
	Fetched int
	Sent    int
	Failed  int
	Cleared bool
}

// Run executes one drain cycle. Only a fetch failure is returned as an
// error; everything after the fetch is best-effort per alert, and the
// clear call is issued only when the whole batch was handled.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	logger := slog.Default()

	alerts, err := p.queue.Fetch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch outbox: %w", err)
	}

	res := Result{Fetched: len(alerts)}
	if len(alerts) == 0 {
		return res, nil
	}

	label := "Sending Emails"
	if p.mode == ModeArchiveOnly {
		label = "SQUELCHED (Logging only)"
	}
	p.printf("Processing %d alerts... [%s]\n", len(alerts), label)

	// One flag for the whole batch: the first delivery failure clears it
	// permanently, but every remaining alert is still archived and every
	// non-squelched alert still gets its delivery attempt.
	allProcessed := true

	for _, alert := range alerts {
		headerTime := p.tz.Format(p.now())
		display := alert
		display.Body = p.tz.ConvertBody(alert.Body)

		if err := p.archive.Append(model.ArchiveEntry{
			Time:    headerTime,
			Subject: alert.Subject,
			Body:    display.Body,
		}); err != nil {
			// Archive failures never block delivery and never touch
			// the batch flag.
			logger.Error("archive write failed", "subject", alert.Subject, "error", err)
		}

		if p.mode == ModeArchiveOnly {
			continue
		}

		if err := p.mailer.Send(ctx, display, headerTime, p.warning); err != nil {
			allProcessed = false
			res.Failed++
			logger.Error("email delivery failed", "subject", alert.Subject, "error", err)
			continue
		}
		res.Sent++
	}

	if !allProcessed {
		logger.Warn("outbox left intact; failed alerts retry on the next run",
			"fetched", res.Fetched, "failed", res.Failed)
		return res, nil
	}

	if err := p.queue.Clear(ctx); err != nil {
		// The alerts are archived (and delivered, unless squelched);
		// the clear is simply repeated on the next run.
		logger.Error("outbox clear failed", "error", err)
		return res, nil
	}
	res.Cleared = true
	p.printf("Outbox cleared.\n")
	return res, nil
}

func (p *Pipeline) printf(format string, args ...any) {
	if p.progress != nil {
		fmt.Fprintf(p.progress, format, args...)
	}
}
