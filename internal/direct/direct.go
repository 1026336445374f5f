// Package direct is the ad-platform collaborator edge: domain types plus
// the Client interface the core consumes. The HTTP implementation speaks
// the Yandex Direct JSON API v5.
package direct

import (
	"context"
	"encoding/json"
	"time"
)

// Campaign is a platform campaign as the core sees it.
type Campaign struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Status   string          `json:"status"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// CampaignFilter narrows GetCampaigns. Zero value means all campaigns.
type CampaignFilter struct {
	IDs      []string
	Statuses []string
}

// StatRow is one day of aggregate performance for one campaign.
// CTR/CPA/ROI may be zero, in which case the store derives them.
type StatRow struct {
	CampaignID  string    `json:"campaign_id"`
	Date        time.Time `json:"date"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Cost        float64   `json:"cost"`
	Conversions float64   `json:"conversions"`
	Revenue     float64   `json:"revenue"`
	CTR         float64   `json:"ctr,omitempty"`
	CPA         float64   `json:"cpa,omitempty"`
	ROI         float64   `json:"roi,omitempty"`
}

// SearchQuery is one search term row from the query report.
type SearchQuery struct {
	CampaignID  string  `json:"campaign_id"`
	Query       string  `json:"query"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Cost        float64 `json:"cost"`
}

// BidModifier is one adjustment coefficient on a campaign.
type BidModifier struct {
	CampaignID string `json:"campaign_id"`
	Type       string `json:"type"`
	Adjustment int    `json:"adjustment"`
}

// Keyword is one keyword with its bid.
type Keyword struct {
	CampaignID string `json:"campaign_id"`
	Text       string `json:"text"`
	BidMicros  int64  `json:"bid_micros"`
	Status     string `json:"status"`
}

// CampaignDraft is the payload for creating a campaign from an approved
// proposal.
type CampaignDraft struct {
	Name              string   `json:"name"`
	Strategy          Strategy `json:"strategy"`
	DailyBudgetMicros int64    `json:"daily_budget_micros"`
	Regions           []int    `json:"regions"`
	NegativeKeywords  []string `json:"negative_keywords,omitempty"`
}

// Strategy is the closed set of platform bidding strategies.
type Strategy string

const (
	StrategyHighestPosition    Strategy = "HIGHEST_POSITION"
	StrategyWbMaximumClicks    Strategy = "WB_MAXIMUM_CLICKS"
	StrategyAverageCPC         Strategy = "AVERAGE_CPC"
	StrategyAverageCPA         Strategy = "AVERAGE_CPA"
	StrategyAverageROI         Strategy = "AVERAGE_ROI"
	StrategyWeeklyClickPackage Strategy = "WEEKLY_CLICK_PACKAGE"
)

// Client is the ad-platform API surface consumed by the core. One method
// per pending-action type on the mutating side.
type Client interface {
	GetCampaigns(ctx context.Context, filter CampaignFilter) ([]Campaign, error)
	GetStats(ctx context.Context, from, to time.Time) ([]StatRow, error)
	GetSearchQueries(ctx context.Context, campaignID string, from, to time.Time) ([]SearchQuery, error)
	GetBidModifiers(ctx context.Context, campaignID string) ([]BidModifier, error)
	GetKeywords(ctx context.Context, campaignID string) ([]Keyword, error)

	CreateCampaign(ctx context.Context, draft CampaignDraft) (Campaign, error)
	UpdateBids(ctx context.Context, campaignID string, bidMicros int64) error
	AddNegativeKeywords(ctx context.Context, campaignID string, keywords []string) error
	SuspendCampaigns(ctx context.Context, ids []string) error
	ResumeCampaigns(ctx context.Context, ids []string) error
	UpdateBudget(ctx context.Context, campaignID string, amountMicros int64, mode string) error
	UpdateAds(ctx context.Context, campaignID string, title, text string) error
	UpdateSchedule(ctx context.Context, campaignID string, schedule []string) error
	UpdateBidModifiers(ctx context.Context, campaignID string, modifierType string, adjustment int) error
}
