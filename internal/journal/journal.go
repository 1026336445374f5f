// Package journal is the append-only long-term log. Conversation
// summaries, executed-action audits and weekly learnings are appended as
// dated markdown entries so they survive outside the relational store.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Journal appends entries to monthly markdown files under a directory.
type Journal struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// New creates a Journal rooted at dir, creating it if needed.
func New(dir string) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Journal{dir: dir, now: time.Now}, nil
}

// Append writes one titled entry under the given section.
func (j *Journal) Append(section, title, body string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	ts := j.now().UTC()
	path := filepath.Join(j.dir, ts.Format("2006-01")+".md")

	var b strings.Builder
	fmt.Fprintf(&b, "\n## [%s] %s - %s\n\n", section, ts.Format("2006-01-02 15:04"), title)
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// AppendAudit records an executed platform mutation.
func (j *Journal) AppendAudit(actionID, actionType, campaignID, reasoning, params string) error {
	body := fmt.Sprintf("action: %s\ntype: %s\ncampaign: %s\nparams: %s\n\n%s",
		actionID, actionType, campaignID, params, reasoning)
	return j.Append("audit", actionType, body)
}

// AppendSummary records an archived-conversation summary.
func (j *Journal) AppendSummary(conversationID, topic, summary string, decisions []string) error {
	var b strings.Builder
	b.WriteString(summary)
	if len(decisions) > 0 {
		b.WriteString("\n\nDecisions:\n")
		for _, d := range decisions {
			b.WriteString("- " + d + "\n")
		}
	}
	b.WriteString("\nconversation: " + conversationID)
	return j.Append("conversation", topic, b.String())
}

// AppendLearning records an authored learning from a weekly report.
func (j *Journal) AppendLearning(title, body string) error {
	return j.Append("learning", title, body)
}
