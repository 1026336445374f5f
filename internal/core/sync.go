package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// SyncMode selects the sync window.
type SyncMode string

const (
	// SyncFull resyncs 90 days of history.
	SyncFull SyncMode = "full"
	// SyncRecent resyncs the trailing week.
	SyncRecent SyncMode = "recent"
)

// SyncSummary reports what a sync touched.
type SyncSummary struct {
	Campaigns int
	StatRows  int
}

// SyncDirectData refreshes campaigns and daily stats from the platform.
// All campaigns are resynced regardless of status. Auxiliary data (bid
// modifiers, keywords) is fetched best-effort per campaign: one
// campaign's failure never aborts the others.
func (o *Orchestrator) SyncDirectData(ctx context.Context, mode SyncMode) (SyncSummary, error) {
	days := 7
	if mode == SyncFull {
		days = 90
	}
	to := o.now().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -days)

	campaigns, err := o.platform.GetCampaigns(ctx, direct.CampaignFilter{})
	if err != nil {
		return SyncSummary{}, fmt.Errorf("fetch campaigns: %w", err)
	}

	known := make(map[string]bool, len(campaigns))
	for _, c := range campaigns {
		settings := o.fetchAuxiliary(ctx, c)
		if err := o.store.UpsertCampaign(ctx, store.Campaign{
			ID:       c.ID,
			Name:     c.Name,
			Status:   c.Status,
			Settings: settings,
		}); err != nil {
			return SyncSummary{}, err
		}
		known[c.ID] = true
	}

	stats, err := o.platform.GetStats(ctx, from, to)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("fetch stats: %w", err)
	}
	rows := 0
	for _, s := range stats {
		// A stat row can reference a campaign the campaigns call no
		// longer returns; register a stub so the row still lands.
		if !known[s.CampaignID] {
			if err := o.store.UpsertCampaign(ctx, store.Campaign{ID: s.CampaignID, Name: s.CampaignID, Status: "UNKNOWN"}); err != nil {
				return SyncSummary{}, err
			}
			known[s.CampaignID] = true
		}
		if err := o.store.UpsertDailyStat(ctx, store.DailyStat{
			CampaignID:  s.CampaignID,
			Date:        s.Date,
			Impressions: s.Impressions,
			Clicks:      s.Clicks,
			Cost:        s.Cost,
			Conversions: s.Conversions,
			Revenue:     s.Revenue,
			CTR:         s.CTR,
			CPA:         s.CPA,
			ROI:         s.ROI,
		}); err != nil {
			return SyncSummary{}, err
		}
		rows++
	}

	o.logger.Printf("sync %s: %d campaigns, %d stat rows (%s..%s)", mode, len(campaigns), rows,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	return SyncSummary{Campaigns: len(campaigns), StatRows: rows}, nil
}

// fetchAuxiliary collects per-campaign extras into the settings blob.
// Failures are logged and yield whatever settings the campaign already
// carried.
func (o *Orchestrator) fetchAuxiliary(ctx context.Context, c direct.Campaign) json.RawMessage {
	aux := map[string]interface{}{}
	if len(c.Settings) > 0 {
		aux["platform"] = json.RawMessage(c.Settings)
	}

	if mods, err := o.platform.GetBidModifiers(ctx, c.ID); err != nil {
		o.logger.Printf("warn: bid modifiers for campaign %s: %v", c.ID, err)
	} else if len(mods) > 0 {
		aux["bid_modifiers"] = mods
	}

	if kws, err := o.platform.GetKeywords(ctx, c.ID); err != nil {
		o.logger.Printf("warn: keywords for campaign %s: %v", c.ID, err)
	} else if len(kws) > 0 {
		aux["keywords"] = kws
	}

	out, err := json.Marshal(aux)
	if err != nil {
		o.logger.Printf("warn: marshal settings for campaign %s: %v", c.ID, err)
		return c.Settings
	}
	return out
}
