package store

import (
	"context"
	"fmt"
	"time"
)

// Normalize fills derived metrics when the platform did not supply them.
func (d DailyStat) Normalize() DailyStat {
	if d.CTR == 0 && d.Impressions > 0 {
		d.CTR = float64(d.Clicks) / float64(d.Impressions) * 100
	}
	if d.CPA == 0 && d.Conversions > 0 {
		d.CPA = d.Cost / d.Conversions
	}
	if d.ROI == 0 && d.Cost > 0 {
		d.ROI = (d.Revenue - d.Cost) / d.Cost * 100
	}
	return d
}

// UpsertDailyStat writes one (campaign, date) aggregate. Re-running the
// same sync is a no-op apart from refreshed values.
func (s *Store) UpsertDailyStat(ctx context.Context, d DailyStat) error {
	d = d.Normalize()
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO daily_stats (campaign_id, stat_date, impressions, clicks, cost, conversions, revenue, ctr, cpa, roi, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
ON CONFLICT (campaign_id, stat_date) DO UPDATE SET
  impressions = EXCLUDED.impressions,
  clicks = EXCLUDED.clicks,
  cost = EXCLUDED.cost,
  conversions = EXCLUDED.conversions,
  revenue = EXCLUDED.revenue,
  ctr = EXCLUDED.ctr,
  cpa = EXCLUDED.cpa,
  roi = EXCLUDED.roi,
  updated_at = NOW();
`, d.CampaignID, d.Date, d.Impressions, d.Clicks, d.Cost, d.Conversions, d.Revenue, d.CTR, d.CPA, d.ROI)
	if err != nil {
		return fmt.Errorf("upsert daily stat %s/%s: %w", d.CampaignID, d.Date.Format("2006-01-02"), err)
	}
	return nil
}

// ListStats returns stats in [from, to] across all campaigns.
func (s *Store) ListStats(ctx context.Context, from, to time.Time) ([]DailyStat, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT campaign_id, stat_date, impressions, clicks, cost, conversions, revenue, ctr, cpa, roi
FROM daily_stats
WHERE stat_date BETWEEN $1 AND $2
ORDER BY campaign_id, stat_date
`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.CampaignID, &d.Date, &d.Impressions, &d.Clicks, &d.Cost, &d.Conversions, &d.Revenue, &d.CTR, &d.CPA, &d.ROI); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListStatsForCampaign returns stats in [from, to] for one campaign.
func (s *Store) ListStatsForCampaign(ctx context.Context, campaignID string, from, to time.Time) ([]DailyStat, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT campaign_id, stat_date, impressions, clicks, cost, conversions, revenue, ctr, cpa, roi
FROM daily_stats
WHERE campaign_id=$1 AND stat_date BETWEEN $2 AND $3
ORDER BY stat_date
`, campaignID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list stats for campaign %s: %w", campaignID, err)
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.CampaignID, &d.Date, &d.Impressions, &d.Clicks, &d.Cost, &d.Conversions, &d.Revenue, &d.CTR, &d.CPA, &d.ROI); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
