// Package schedule is the in-process cron trigger: it turns configured
// cron expressions into jobs on the report and system streams. Workers
// do the actual work; the trigger only publishes.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/queue/streams"
	"github.com/adpilot-bot/adpilot/internal/worker"
)

// Publisher is the slice of the stream publisher the trigger needs.
type Publisher interface {
	PublishJSON(ctx context.Context, stream, eventType string, payload interface{}, opts ...streams.PublishOption) (string, error)
}

type entry struct {
	name    string
	stream  string
	event   string
	payload interface{}
	expr    *cronexpr.Expression
	next    time.Time
}

// Trigger publishes scheduled jobs according to cron expressions.
type Trigger struct {
	logger    *log.Logger
	publisher Publisher
	rdb       *redis.Client
	entries   []*entry
	now       func() time.Time
}

// New parses the configured cron expressions and builds a Trigger.
// Entries with an empty expression are skipped; an invalid expression
// is a configuration error.
func New(logger *log.Logger, pub Publisher, rdb *redis.Client, sched config.ScheduleConfig, queues config.QueueConfig) (*Trigger, error) {
	queues = queues.Normalize()
	specs := []struct {
		name    string
		cron    string
		stream  string
		event   string
		payload interface{}
	}{
		{"daily_report", sched.DailyReport, queues.ReportStream, worker.EventDailyReport, worker.ReportJob{Notify: true}},
		{"weekly_report", sched.WeeklyReport, queues.ReportStream, worker.EventWeeklyReport, worker.ReportJob{Notify: true}},
		{"evening_analysis", sched.EveningAnalysis, queues.ReportStream, worker.EventEveningPulse, worker.ReportJob{Notify: true}},
		{"recent_sync", sched.RecentSync, queues.SystemStream, worker.EventSync, worker.SyncJob{Mode: "recent"}},
	}

	t := &Trigger{logger: logger, publisher: pub, rdb: rdb, now: time.Now}
	for _, s := range specs {
		if s.cron == "" {
			continue
		}
		expr, err := cronexpr.Parse(s.cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron for %s (%q): %w", s.name, s.cron, err)
		}
		t.entries = append(t.entries, &entry{
			name:    s.name,
			stream:  s.stream,
			event:   s.event,
			payload: s.payload,
			expr:    expr,
			next:    expr.Next(t.now()),
		})
	}
	return t, nil
}

// Run blocks, firing due entries until the context is cancelled.
func (t *Trigger) Run(ctx context.Context) error {
	if len(t.entries) == 0 {
		t.logger.Printf("no schedules configured; trigger idle")
		<-ctx.Done()
		return nil
	}
	for _, e := range t.entries {
		t.logger.Printf("schedule %s: next fire %s", e.name, e.next.Format(time.RFC3339))
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Trigger) tick(ctx context.Context) {
	now := t.now()
	for _, e := range t.entries {
		if e.next.After(now) {
			continue
		}
		e.next = e.expr.Next(now)
		if !t.acquireLock(ctx, e.name) {
			continue
		}
		if _, err := t.publisher.PublishJSON(ctx, e.stream, e.event, e.payload); err != nil {
			t.logger.Printf("warn: publish %s: %v", e.name, err)
			continue
		}
		t.logger.Printf("fired %s; next %s", e.name, e.next.Format(time.RFC3339))
	}
}

// acquireLock takes a short distributed lock so that only one instance
// publishes a given schedule per window.
func (t *Trigger) acquireLock(ctx context.Context, name string) bool {
	if t.rdb == nil {
		return true
	}
	ok, err := t.rdb.SetNX(ctx, "sched:lock:"+name, "1", 2*time.Minute).Result()
	if err != nil {
		t.logger.Printf("warn: schedule lock %s: %v", name, err)
		return false
	}
	return ok
}
