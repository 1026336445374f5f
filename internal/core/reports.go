package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// Report is the outcome of a report generation run.
type Report struct {
	Text            string
	Recommendations []llm.Recommendation
}

// GenerateDailyReport builds yesterday-vs-prior-day analysis. Actionable
// recommendations become pending actions delivered as separate approval
// cards; the report text carries only the purely textual ones.
func (o *Orchestrator) GenerateDailyReport(ctx context.Context, notify bool) (Report, error) {
	today := o.now().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)
	prior := today.AddDate(0, 0, -2)

	rows, err := o.platform.GetStats(ctx, yesterday, yesterday)
	if err != nil {
		return Report{}, fmt.Errorf("fetch yesterday stats: %w", err)
	}
	for _, r := range rows {
		if err := o.upsertStatRow(ctx, r); err != nil {
			return Report{}, err
		}
	}

	current, err := o.store.ListStats(ctx, yesterday, yesterday)
	if err != nil {
		return Report{}, err
	}
	previous, err := o.store.ListStats(ctx, prior, prior)
	if err != nil {
		return Report{}, err
	}

	data := o.buildComparison(ctx, current, previous, yesterday, yesterday)
	analysis, err := o.llm.Analyze(ctx, llm.AnalyzeRequest{
		Task:    "daily_report",
		Data:    data,
		Context: o.knowledgeContext(ctx, ""),
	})
	if err != nil {
		return Report{}, fmt.Errorf("daily analysis: %w", err)
	}

	text := o.renderReport("Daily report "+yesterday.Format("2006-01-02"), analysis)
	o.surfaceActionRecommendations(ctx, analysis.Recommendations)

	if notify {
		o.notifyOwner(ctx, text)
	}
	return Report{Text: text, Recommendations: analysis.Recommendations}, nil
}

// GenerateWeeklyReport builds trailing-week-vs-prior-week analysis and
// additionally journals an authored learning entry.
func (o *Orchestrator) GenerateWeeklyReport(ctx context.Context, notify bool) (Report, error) {
	today := o.now().Truncate(24 * time.Hour)
	weekStart := today.AddDate(0, 0, -7)
	priorStart := today.AddDate(0, 0, -14)

	rows, err := o.platform.GetStats(ctx, weekStart, today.AddDate(0, 0, -1))
	if err != nil {
		return Report{}, fmt.Errorf("fetch week stats: %w", err)
	}
	for _, r := range rows {
		if err := o.upsertStatRow(ctx, r); err != nil {
			return Report{}, err
		}
	}

	current, err := o.store.ListStats(ctx, weekStart, today.AddDate(0, 0, -1))
	if err != nil {
		return Report{}, err
	}
	previous, err := o.store.ListStats(ctx, priorStart, weekStart.AddDate(0, 0, -1))
	if err != nil {
		return Report{}, err
	}

	data := o.buildComparison(ctx, current, previous, weekStart, today.AddDate(0, 0, -1))
	analysis, err := o.llm.Analyze(ctx, llm.AnalyzeRequest{
		Task:    "weekly_report",
		Data:    data,
		Context: o.knowledgeContext(ctx, ""),
	})
	if err != nil {
		return Report{}, fmt.Errorf("weekly analysis: %w", err)
	}

	text := o.renderReport("Weekly report "+weekStart.Format("2006-01-02"), analysis)
	o.surfaceActionRecommendations(ctx, analysis.Recommendations)

	if o.journal != nil {
		learning := analysis.Summary
		if learning == "" {
			learning = analysis.Text
		}
		if err := o.journal.AppendLearning("week of "+weekStart.Format("2006-01-02"), learning); err != nil {
			o.logger.Printf("warn: journal weekly learning: %v", err)
		}
	}

	if notify {
		o.notifyOwner(ctx, text)
	}
	return Report{Text: text, Recommendations: analysis.Recommendations}, nil
}

// RunEveningAnalysis is a best-effort end-of-day pass: refresh recent
// data and send a short pulse. Every failure is logged and swallowed.
func (o *Orchestrator) RunEveningAnalysis(ctx context.Context) {
	if _, err := o.SyncDirectData(ctx, SyncRecent); err != nil {
		o.logger.Printf("warn: evening sync failed: %v", err)
	}

	today := o.now().Truncate(24 * time.Hour)
	current, err := o.store.ListStats(ctx, today, today)
	if err != nil {
		o.logger.Printf("warn: evening stats read failed: %v", err)
		return
	}
	if len(current) == 0 {
		o.logger.Printf("evening analysis: no stats for today yet")
		return
	}

	analysis, err := o.llm.Analyze(ctx, llm.AnalyzeRequest{
		Task: "evening_analysis",
		Data: o.buildComparison(ctx, current, nil, today, today),
	})
	if err != nil {
		o.logger.Printf("warn: evening analysis failed: %v", err)
		return
	}
	o.notifyOwner(ctx, o.renderReport("Evening pulse "+today.Format("2006-01-02"), analysis))
}

func (o *Orchestrator) upsertStatRow(ctx context.Context, r direct.StatRow) error {
	if _, ok, err := o.store.GetCampaign(ctx, r.CampaignID); err != nil {
		return err
	} else if !ok {
		if err := o.store.UpsertCampaign(ctx, store.Campaign{ID: r.CampaignID, Name: r.CampaignID, Status: "UNKNOWN"}); err != nil {
			return err
		}
	}
	return o.store.UpsertDailyStat(ctx, store.DailyStat{
		CampaignID:  r.CampaignID,
		Date:        r.Date,
		Impressions: r.Impressions,
		Clicks:      r.Clicks,
		Cost:        r.Cost,
		Conversions: r.Conversions,
		Revenue:     r.Revenue,
		CTR:         r.CTR,
		CPA:         r.CPA,
		ROI:         r.ROI,
	})
}

// buildComparison renders per-campaign current-vs-previous aggregates,
// enriched with search queries for campaigns above the spend/click
// thresholds and with campaign settings. Enrichment is capped to bound
// the prompt.
func (o *Orchestrator) buildComparison(ctx context.Context, current, previous []store.DailyStat, from, to time.Time) string {
	names := map[string]string{}
	if campaigns, err := o.store.ListCampaigns(ctx, ""); err != nil {
		o.logger.Printf("warn: list campaigns for comparison: %v", err)
	} else {
		for _, c := range campaigns {
			names[c.ID] = c.Name
		}
	}

	cur := aggregateByCampaign(current)
	prev := aggregateByCampaign(previous)

	ids := make([]string, 0, len(cur))
	for id := range cur {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	enriched := 0
	for _, id := range ids {
		c := cur[id]
		name := names[id]
		if name == "" {
			name = id
		}
		fmt.Fprintf(&b, "Campaign %q (%s): impressions %d, clicks %d, cost %.2f, conversions %.1f, revenue %.2f, ctr %.2f%%\n",
			name, id, c.Impressions, c.Clicks, c.Cost, c.Conversions, c.Revenue, c.CTR)
		if p, ok := prev[id]; ok {
			fmt.Fprintf(&b, "  previous period: impressions %d, clicks %d, cost %.2f, conversions %.1f, revenue %.2f\n",
				p.Impressions, p.Clicks, p.Cost, p.Conversions, p.Revenue)
		}

		if (c.Cost >= o.policy.MinEnrichCost || c.Clicks >= int64(o.policy.MinEnrichClicks)) && enriched < o.policy.MaxEnrichQueries {
			queries, err := o.platform.GetSearchQueries(ctx, id, from, to)
			if err != nil {
				o.logger.Printf("warn: search queries for campaign %s: %v", id, err)
			} else {
				for _, q := range queries {
					if enriched >= o.policy.MaxEnrichQueries {
						break
					}
					fmt.Fprintf(&b, "  query %q: impressions %d, clicks %d, cost %.2f\n", q.Query, q.Impressions, q.Clicks, q.Cost)
					enriched++
				}
			}
		}
	}
	return b.String()
}

func aggregateByCampaign(stats []store.DailyStat) map[string]store.DailyStat {
	out := map[string]store.DailyStat{}
	for _, s := range stats {
		agg := out[s.CampaignID]
		agg.CampaignID = s.CampaignID
		agg.Impressions += s.Impressions
		agg.Clicks += s.Clicks
		agg.Cost += s.Cost
		agg.Conversions += s.Conversions
		agg.Revenue += s.Revenue
		agg = agg.Normalize()
		out[s.CampaignID] = agg
	}
	return out
}

// knowledgeContext renders recent knowledge facts for LLM grounding.
func (o *Orchestrator) knowledgeContext(ctx context.Context, campaignID string) string {
	facts, err := o.store.ListFacts(ctx, campaignID, 20)
	if err != nil {
		o.logger.Printf("warn: list facts: %v", err)
		return ""
	}
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known facts:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- [%s] %s\n", f.Source, f.Fact)
	}
	return b.String()
}

// renderReport assembles the outbound text from an analysis, keeping
// only recommendations without an attached action. Actionable ones are
// delivered as approval cards instead.
func (o *Orchestrator) renderReport(title string, analysis llm.Analysis) string {
	var b strings.Builder
	b.WriteString("*" + title + "*\n\n")
	b.WriteString(analysis.Text)
	if len(analysis.Insights) > 0 {
		b.WriteString("\n\nInsights:\n")
		for _, in := range analysis.Insights {
			b.WriteString("• " + in + "\n")
		}
	}
	textOnly := make([]llm.Recommendation, 0, len(analysis.Recommendations))
	for _, rec := range analysis.Recommendations {
		if rec.Action == nil {
			textOnly = append(textOnly, rec)
		}
	}
	if len(textOnly) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range textOnly {
			b.WriteString("• " + rec.Text + "\n")
		}
	}
	return b.String()
}

// surfaceActionRecommendations turns actionable recommendations into
// pending actions and sends one approval card per action. Failures here
// are logged: a broken recommendation must not sink the report.
func (o *Orchestrator) surfaceActionRecommendations(ctx context.Context, recs []llm.Recommendation) {
	for _, rec := range recs {
		if rec.Action == nil {
			continue
		}
		targets, err := o.resolveActionTargets(ctx, *rec.Action)
		if err != nil {
			o.logger.Printf("warn: resolve action target: %v", err)
			continue
		}
		for _, campaignID := range targets {
			a, err := o.actions.Create(ctx, campaignID, rec.Action.Type, rec.Action.Params, rec.Text)
			if err != nil {
				o.logger.Printf("warn: create action for campaign %s: %v", campaignID, err)
				continue
			}
			if o.transport == nil || o.ownerChatID == 0 {
				continue
			}
			msgID, err := o.transport.SendActionConfirmation(ctx, o.ownerChatID, a.ID,
				fmt.Sprintf("Proposed: %s\nCampaign: %s\nWhy: %s", a.Type, campaignID, rec.Text))
			if err != nil {
				o.logger.Printf("warn: send confirmation for action %s: %v", a.ID, err)
				continue
			}
			if err := o.actions.RecordConfirmation(ctx, a.ID, msgID); err != nil {
				o.logger.Printf("warn: record confirmation for action %s: %v", a.ID, err)
			}
		}
	}
}

// resolveActionTargets maps a recommendation's target onto campaign ids.
// An explicit id wins; otherwise the target name is matched against the
// campaign directory, possibly yielding several campaigns.
func (o *Orchestrator) resolveActionTargets(ctx context.Context, a llm.ActionDraft) ([]string, error) {
	if a.CampaignID != "" {
		if _, ok, err := o.store.GetCampaign(ctx, a.CampaignID); err != nil {
			return nil, err
		} else if ok {
			return []string{a.CampaignID}, nil
		}
	}
	if a.Target == "" {
		return nil, fmt.Errorf("action %q names no target campaign", a.Type)
	}
	campaigns, err := o.store.ListCampaigns(ctx, "")
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(a.Target)
	var ids []string
	for _, c := range campaigns {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no campaign matches target %q", a.Target)
	}
	return ids, nil
}
