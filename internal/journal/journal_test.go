package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.now = func() time.Time { return time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC) }
	return j
}

func (j *Journal) readMonth(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(j.dir, "2026-03.md"))
	if err != nil {
		t.Fatalf("read journal file: %v", err)
	}
	return string(raw)
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("empty dir must fail")
	}
}

func TestAppendLearning(t *testing.T) {
	j := newTestJournal(t)
	if err := j.AppendLearning("week of 2026-03-02", "mobile bids paid off"); err != nil {
		t.Fatalf("AppendLearning: %v", err)
	}

	got := j.readMonth(t)
	if !strings.Contains(got, "## [learning] 2026-03-10 09:30 - week of 2026-03-02") {
		t.Fatalf("header missing: %q", got)
	}
	if !strings.Contains(got, "mobile bids paid off") {
		t.Fatalf("body missing: %q", got)
	}
}

func TestAppendAudit(t *testing.T) {
	j := newTestJournal(t)
	if err := j.AppendAudit("a1", "update_bid", "101", "raise bid", `{"bid_micros":500000}`); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	got := j.readMonth(t)
	for _, want := range []string{"[audit]", "action: a1", "campaign: 101", `params: {"bid_micros":500000}`, "raise bid"} {
		if !strings.Contains(got, want) {
			t.Fatalf("%q missing from entry: %q", want, got)
		}
	}
}

func TestAppendSummaryWithDecisions(t *testing.T) {
	j := newTestJournal(t)
	err := j.AppendSummary("conv-1", "summer sale performance", "CTR trending up", []string{"keep the new bid"})
	if err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}

	got := j.readMonth(t)
	for _, want := range []string{"[conversation]", "summer sale performance", "Decisions:", "- keep the new bid", "conversation: conv-1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("%q missing from entry: %q", want, got)
		}
	}
}

func TestEntriesAccumulateInMonthlyFile(t *testing.T) {
	j := newTestJournal(t)
	if err := j.AppendLearning("first", "one"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.AppendLearning("second", "two"); err != nil {
		t.Fatalf("append: %v", err)
	}

	got := j.readMonth(t)
	if strings.Count(got, "## [learning]") != 2 {
		t.Fatalf("expected two entries, got: %q", got)
	}
}
