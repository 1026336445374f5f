package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/store"
)

func TestGenerateDailyReport(t *testing.T) {
	env := newTestEnv()
	env.orch.now = fixedNow
	yesterday := fixedNow().Truncate(24 * time.Hour).AddDate(0, 0, -1)

	env.store.campaigns["101"] = store.Campaign{ID: "101", Name: "Summer Sale", Status: "ON"}
	env.platform.stats = []direct.StatRow{
		{CampaignID: "101", Date: yesterday, Impressions: 1000, Clicks: 50, Cost: 120, Conversions: 4, Revenue: 400},
	}
	env.llm.analysis = llm.Analysis{
		Text:     "Yesterday was solid.",
		Insights: []string{"CTR above account average"},
		Recommendations: []llm.Recommendation{
			{Text: "Raise the bid on Summer Sale", Action: &llm.ActionDraft{
				Type:       "update_bid",
				CampaignID: "101",
				Params:     []byte(`{"bid_micros":600000}`),
			}},
			{Text: "Watch the weekend trend"},
		},
	}

	report, err := env.orch.GenerateDailyReport(context.Background(), true)
	if err != nil {
		t.Fatalf("GenerateDailyReport: %v", err)
	}

	if len(env.actions.created) != 1 {
		t.Fatalf("created %d actions, want 1", len(env.actions.created))
	}
	if env.actions.created[0].CampaignID != "101" {
		t.Fatalf("action campaign = %q, want 101", env.actions.created[0].CampaignID)
	}
	if len(env.transport.confirmations) != 1 {
		t.Fatalf("sent %d approval cards, want 1", len(env.transport.confirmations))
	}
	if len(env.actions.confirmations) != 1 {
		t.Fatalf("recorded %d confirmation message ids, want 1", len(env.actions.confirmations))
	}

	if len(env.transport.messages) != 1 {
		t.Fatalf("sent %d report messages, want 1", len(env.transport.messages))
	}
	text := env.transport.messages[0]
	if !strings.Contains(text, "Daily report "+yesterday.Format("2006-01-02")) {
		t.Fatalf("report title missing: %q", text)
	}
	if !strings.Contains(text, "Watch the weekend trend") {
		t.Fatalf("text-only recommendation missing from report")
	}
	if strings.Contains(text, "Raise the bid on Summer Sale") {
		t.Fatalf("actionable recommendation must ship as a card, not report text")
	}
	if report.Text != text {
		t.Fatalf("returned text differs from the delivered one")
	}

	// Fetched rows land in the store with derived metrics.
	if len(env.store.stats) != 1 {
		t.Fatalf("stored %d stat rows, want 1", len(env.store.stats))
	}
	if env.store.stats[0].CTR != 5 {
		t.Fatalf("derived CTR = %v, want 5", env.store.stats[0].CTR)
	}
}

// A recommendation naming a target instead of an id fans out to every
// matching campaign.
func TestActionRecommendationTargetFanOut(t *testing.T) {
	env := newTestEnv()
	env.orch.now = fixedNow
	env.store.campaigns["101"] = store.Campaign{ID: "101", Name: "Summer Sale", Status: "ON"}
	env.store.campaigns["102"] = store.Campaign{ID: "102", Name: "Summer Clearance", Status: "ON"}
	env.store.campaigns["103"] = store.Campaign{ID: "103", Name: "Brand Awareness", Status: "ON"}
	env.llm.analysis = llm.Analysis{
		Text: "Summer campaigns are overspending.",
		Recommendations: []llm.Recommendation{
			{Text: "Trim summer budgets", Action: &llm.ActionDraft{
				Type:   "update_budget",
				Target: "summer",
				Params: []byte(`{"amount_micros":200000000}`),
			}},
		},
	}

	if _, err := env.orch.GenerateDailyReport(context.Background(), false); err != nil {
		t.Fatalf("GenerateDailyReport: %v", err)
	}
	if len(env.actions.created) != 2 {
		t.Fatalf("created %d actions, want one per matching campaign", len(env.actions.created))
	}
	got := map[string]bool{}
	for _, a := range env.actions.created {
		got[a.CampaignID] = true
	}
	if !got["101"] || !got["102"] || got["103"] {
		t.Fatalf("targets = %v, want 101 and 102 only", got)
	}
}

func TestGenerateWeeklyReportJournalsLearning(t *testing.T) {
	env := newTestEnv()
	env.orch.now = fixedNow
	env.llm.analysis = llm.Analysis{
		Text:    "The week trended up.",
		Summary: "Bids on mobile paid off",
	}

	report, err := env.orch.GenerateWeeklyReport(context.Background(), false)
	if err != nil {
		t.Fatalf("GenerateWeeklyReport: %v", err)
	}
	if env.journal.learnings != 1 {
		t.Fatalf("journal learnings = %d, want 1", env.journal.learnings)
	}
	if len(env.transport.messages) != 0 {
		t.Fatalf("notify=false must not message the owner")
	}
	if !strings.Contains(report.Text, "Weekly report") {
		t.Fatalf("title missing: %q", report.Text)
	}
}

func TestRunEveningAnalysisNoDataIsQuiet(t *testing.T) {
	env := newTestEnv()
	env.orch.now = fixedNow

	env.orch.RunEveningAnalysis(context.Background())

	if env.llm.analyzeCalls != 0 {
		t.Fatalf("no analysis without today's stats")
	}
	if len(env.transport.messages) != 0 {
		t.Fatalf("no pulse without today's stats")
	}
}

func TestRunEveningAnalysisSendsPulse(t *testing.T) {
	env := newTestEnv()
	env.orch.now = fixedNow
	today := fixedNow().Truncate(24 * time.Hour)

	env.platform.campaigns = []direct.Campaign{{ID: "101", Name: "Summer Sale", Status: "ON"}}
	env.platform.stats = []direct.StatRow{
		{CampaignID: "101", Date: today, Impressions: 500, Clicks: 20, Cost: 60},
	}
	env.llm.analysis = llm.Analysis{Text: "Today is pacing ahead of yesterday."}

	env.orch.RunEveningAnalysis(context.Background())

	if len(env.transport.messages) != 1 {
		t.Fatalf("sent %d pulses, want 1", len(env.transport.messages))
	}
	if !strings.Contains(env.transport.messages[0], "Evening pulse") {
		t.Fatalf("pulse title missing: %q", env.transport.messages[0])
	}
}

// Analysis failures in the evening pass are logged, not raised.
func TestRunEveningAnalysisSwallowsAnalyzeFailure(t *testing.T) {
	env := newTestEnv()
	env.orch.now = fixedNow
	today := fixedNow().Truncate(24 * time.Hour)

	env.platform.campaigns = []direct.Campaign{{ID: "101", Name: "Summer Sale", Status: "ON"}}
	env.platform.stats = []direct.StatRow{
		{CampaignID: "101", Date: today, Impressions: 500, Clicks: 20, Cost: 60},
	}
	env.llm.analyzeErr = context.DeadlineExceeded

	env.orch.RunEveningAnalysis(context.Background())

	if len(env.transport.messages) != 0 {
		t.Fatalf("no pulse may be sent when analysis fails")
	}
}
