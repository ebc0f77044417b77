package drain

import (
	"context"
	"errors"
	"testing"
	"time"

	"healthwatch/internal/liveness"
	"healthwatch/internal/model"
)

// --- mocks ---

type mockQueue struct {
	fetchFn  func(ctx context.Context) ([]model.Alert, error)
	clearFn  func(ctx context.Context) error
	clearHit int
}

func (m *mockQueue) Fetch(ctx context.Context) ([]model.Alert, error) {
	return m.fetchFn(ctx)
}

func (m *mockQueue) Clear(ctx context.Context) error {
	m.clearHit++
	if m.clearFn != nil {
		return m.clearFn(ctx)
	}
	return nil
}

type mockArchive struct {
	entries  []model.ArchiveEntry
	appendFn func(e model.ArchiveEntry) error
}

func (m *mockArchive) Append(e model.ArchiveEntry) error {
	m.entries = append(m.entries, e)
	if m.appendFn != nil {
		return m.appendFn(e)
	}
	return nil
}

type mockSender struct {
	sent   []model.Alert
	sendFn func(ctx context.Context, alert model.Alert, headerTime, warning string) error
}

func (m *mockSender) Send(ctx context.Context, alert model.Alert, headerTime, warning string) error {
	m.sent = append(m.sent, alert)
	if m.sendFn != nil {
		return m.sendFn(ctx, alert, headerTime, warning)
	}
	return nil
}

// --- helpers ---

func fixedAlerts(n int) []model.Alert {
	alerts := make([]model.Alert, n)
	for i := range alerts {
		alerts[i] = model.Alert{Subject: "monitor died", Body: "gone"}
	}
	return alerts
}

func newPipeline(q *mockQueue, a *mockArchive, s *mockSender, mode Mode, warning string) *Pipeline {
	tz, _ := liveness.ParseTimezone("utc")
	p := New(q, a, s, tz, mode, warning, nil)
	p.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

// --- tests ---

func TestRun_FetchErrorIsFatalAndSideEffectFree(t *testing.T) {
	q := &mockQueue{fetchFn: func(ctx context.Context) ([]model.Alert, error) {
		return nil, errors.New("network down")
	}}
	a := &mockArchive{}
	s := &mockSender{}

	_, err := newPipeline(q, a, s, ModeDeliver, "").Run(context.Background())
	if err == nil {
		t.Fatal("Run() = nil error, want fetch error")
	}
	if len(a.entries) != 0 {
		t.Error("archive written despite fetch failure")
	}
	if len(s.sent) != 0 {
		t.Error("email sent despite fetch failure")
	}
	if q.clearHit != 0 {
		t.Error("clear issued despite fetch failure")
	}
}

func TestRun_EmptyOutboxIsBenignNoOp(t *testing.T) {
	q := &mockQueue{fetchFn: func(ctx context.Context) ([]model.Alert, error) {
		return nil, nil
	}}
	a := &mockArchive{}
	s := &mockSender{}

	res, err := newPipeline(q, a, s, ModeDeliver, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Fetched != 0 || res.Cleared {
		t.Errorf("Result = %+v, want zero fetched, not cleared", res)
	}
	if len(a.entries) != 0 || len(s.sent) != 0 || q.clearHit != 0 {
		t.Error("empty outbox caused side effects")
	}
}

func TestRun_AllDeliveredClearsOutbox(t *testing.T) {
	q := &mockQueue{fetchFn: func(ctx context.Context) ([]model.Alert, error) {
		return fixedAlerts(3), nil
	}}
	a := &mockArchive{}
	s := &mockSender{}

	res, err := newPipeline(q, a, s, ModeDeliver, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(a.entries) != 3 {
		t.Errorf("archived %d entries, want 3", len(a.entries))
	}
	if len(s.sent) != 3 {
		t.Errorf("sent %d emails, want 3", len(s.sent))
	}
	if q.clearHit != 1 {
		t.Errorf("clear issued %d times, want 1", q.clearHit)
	}
	if !res.Cleared || res.Sent != 3 {
		t.Errorf("Result = %+v", res)
	}
}

func TestRun_OneFailureSkipsClearButProcessesAll(t *testing.T) {
	alerts := []model.Alert{
		{Subject: "first", Body: "a"},
		{Subject: "second", Body: "b"},
		{Subject: "third", Body: "c"},
	}
	q := &mockQueue{fetchFn: func(ctx context.Context) ([]model.Alert, error) {
		return alerts, nil
	}}
	a := &mockArchive{}
	s := &mockSender{sendFn: func(ctx context.Context, alert model.Alert, _, _ string) error {
		if alert.Subject == "second" {
			return errors.New("smtp auth failed")
		}
		return nil
	}}

	res, err := newPipeline(q, a, s, ModeDeliver, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, delivery failures must not be fatal", err)
	}
	if q.clearHit != 0 {
		t.Error("outbox cleared despite a delivery failure")
	}
	// No early abort: every alert archived exactly once, every alert got
	// its delivery attempt.
	if len(a.entries) != 3 {
		t.Errorf("archived %d entries, want 3", len(a.entries))
	}
	if len(s.sent) != 3 {
		t.Errorf("attempted %d sends, want 3", len(s.sent))
	}
	if res.Sent != 2 || res.Failed != 1 || res.Cleared {
		t.Errorf("Result = %+v", res)
	}
}

func TestRun_SquelchArchivesWithoutSendingAndClears(t *testing.T) {
	q := &mockQueue{fetchFn: func(ctx context.Context) ([]model.Alert, error) {
		return fixedAlerts(2), nil
	}}
	a := &mockArchive{}
	s := &mockSender{}

	res, err := newPipeline(q, a, s, ModeArchiveOnly, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(a.entries) != 2 {
		t.Errorf("archived %d entries, want 2", len(a.entries))
	}
	if len(s.sent) != 0 {
		t.Errorf("sent %d emails in squelch mode, want 0", len(s.sent))
	}
	if q.clearHit != 1 || !res.Cleared {
		t.Error("squelched run did not clear the outbox")
	}
}

func TestRun_ArchiveFailureDoesNotBlockDeliveryOrClear(t *testing.T) {
	q := &mockQueue{fetchFn: func(ctx context.Context) ([]model.Alert, error) {
		return fixedAlerts(2), nil
	}}
	a := &mockArchive{appendFn: func(model.ArchiveEntry) error {
		return errors.New("disk full")
	}}
	s := &mockSender{}

	res, err := newPipeline(q, a, s, ModeDeliver, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(s.sent) != 2 {
		t.Errorf("sent %d emails, want 2 despite archive failures", len(s.sent))
	}
	if !res.Cleared {
		t.Error("archive failure prevented the clear")
	}
}

func TestRun_ClearFailureIsNonFatal(t *testing.T) {
	q := &mockQueue{
		fetchFn: func(ctx context.Context) ([]model.Alert, error) {
			return fixedAlerts(1), nil
		},
		clearFn: func(ctx context.Context) error {
			return errors.New("delete timed out")
		},
	}
	a := &mockArchive{}
	s := &mockSender{}

	res, err := newPipeline(q, a, s, ModeDeliver, "").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, clear failures must not be fatal", err)
	}
	if res.Cleared {
		t.Error("Result.Cleared = true after failed clear")
	}
	if res.Sent != 1 {
		t.Errorf("Result.Sent = %d, want 1", res.Sent)
	}
}

func TestRun_WarningReachesEmailNotArchive(t *testing.T) {
	q := &mockQueue{fetchFn: func(ctx context.Context) ([]model.Alert, error) {
		return fixedAlerts(1), nil
	}}
	a := &mockArchive{}
	var gotWarning string
	s := &mockSender{sendFn: func(_ context.Context, _ model.Alert, _, warning string) error {
		gotWarning = warning
		return nil
	}}

	const warn = "config file is world readable"
	if _, err := newPipeline(q, a, s, ModeDeliver, warn).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if gotWarning != warn {
		t.Errorf("sender warning = %q, want %q", gotWarning, warn)
	}
	if len(a.entries) != 1 {
		t.Fatalf("archived %d entries", len(a.entries))
	}
	if a.entries[0].Body != "gone" {
		t.Errorf("archive body = %q, warning must never reach the archive", a.entries[0].Body)
	}
}

func TestRun_HeaderTimeUsesInjectedClockAndZone(t *testing.T) {
	q := &mockQueue{fetchFn: func(ctx context.Context) ([]model.Alert, error) {
		return fixedAlerts(1), nil
	}}
	a := &mockArchive{}
	s := &mockSender{}

	if _, err := newPipeline(q, a, s, ModeDeliver, "").Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if a.entries[0].Time != "2024-01-01 00:00:00" {
		t.Errorf("header time = %q, want 2024-01-01 00:00:00", a.entries[0].Time)
	}
}
