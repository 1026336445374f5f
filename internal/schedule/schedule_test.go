package schedule

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/queue/streams"
	"github.com/adpilot-bot/adpilot/internal/worker"
)

type published struct {
	stream string
	event  string
}

type stubPublisher struct {
	published []published
}

func (p *stubPublisher) PublishJSON(ctx context.Context, stream, eventType string, payload interface{}, opts ...streams.PublishOption) (string, error) {
	p.published = append(p.published, published{stream: stream, event: eventType})
	return "1-0", nil
}

func newTestTrigger(t *testing.T, sched config.ScheduleConfig, pub Publisher) *Trigger {
	t.Helper()
	tr, err := New(log.New(io.Discard, "", 0), pub, nil, sched, config.QueueConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNewSkipsEmptyAndRejectsInvalid(t *testing.T) {
	tr := newTestTrigger(t, config.ScheduleConfig{DailyReport: "0 9 * * *"}, &stubPublisher{})
	if len(tr.entries) != 1 {
		t.Fatalf("entries = %d, want 1 (empty expressions skipped)", len(tr.entries))
	}

	if _, err := New(log.New(io.Discard, "", 0), &stubPublisher{}, nil, config.ScheduleConfig{DailyReport: "not a cron"}, config.QueueConfig{}); err == nil {
		t.Fatalf("invalid cron expression must fail construction")
	}
}

func TestTickFiresDueEntries(t *testing.T) {
	pub := &stubPublisher{}
	tr := newTestTrigger(t, config.ScheduleConfig{
		DailyReport: "0 9 * * *",
		RecentSync:  "0 */2 * * *",
	}, pub)

	// Jump past both next-fire times.
	base := tr.entries[0].next
	if tr.entries[1].next.After(base) {
		base = tr.entries[1].next
	}
	tr.now = func() time.Time { return base.Add(time.Minute) }

	tr.tick(context.Background())

	if len(pub.published) != 2 {
		t.Fatalf("published %d jobs, want 2", len(pub.published))
	}
	got := map[string]string{}
	for _, p := range pub.published {
		got[p.event] = p.stream
	}
	if got[worker.EventDailyReport] != "jobs.reports" {
		t.Fatalf("daily report routed to %q", got[worker.EventDailyReport])
	}
	if got[worker.EventSync] != "jobs.system" {
		t.Fatalf("sync routed to %q", got[worker.EventSync])
	}
}

func TestTickAdvancesNextFire(t *testing.T) {
	pub := &stubPublisher{}
	tr := newTestTrigger(t, config.ScheduleConfig{DailyReport: "0 9 * * *"}, pub)

	fire := tr.entries[0].next.Add(time.Minute)
	tr.now = func() time.Time { return fire }

	tr.tick(context.Background())
	first := tr.entries[0].next
	if !first.After(fire) {
		t.Fatalf("next fire %s not advanced past %s", first, fire)
	}

	// Same instant again: the entry is no longer due.
	tr.tick(context.Background())
	if len(pub.published) != 1 {
		t.Fatalf("published %d jobs, want 1 (no double fire)", len(pub.published))
	}
}

func TestTickSkipsNotDue(t *testing.T) {
	pub := &stubPublisher{}
	tr := newTestTrigger(t, config.ScheduleConfig{DailyReport: "0 9 * * *"}, pub)

	tr.now = func() time.Time { return tr.entries[0].next.Add(-time.Hour) }
	tr.tick(context.Background())

	if len(pub.published) != 0 {
		t.Fatalf("published %d jobs before due time", len(pub.published))
	}
}
