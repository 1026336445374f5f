package direct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/adpilot-bot/adpilot/config"
)

// httpClient implements Client against the Yandex Direct JSON API v5.
type httpClient struct {
	token    string
	clientID string
	baseURL  string
	http     *http.Client
}

// NewHTTPClient creates a Direct API client from config.
func NewHTTPClient(cfg config.DirectConfig) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.direct.yandex.com/json/v5"
	}
	return &httpClient{
		token:    cfg.Token,
		clientID: cfg.ClientID,
		baseURL:  base,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

type apiRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_string"`
	Detail  string `json:"error_detail"`
}

func (e apiError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("direct api error %d: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("direct api error %d: %s", e.Code, e.Message)
}

// call posts a method to a v5 resource and decodes result into out.
func (c *httpClient) call(ctx context.Context, resource, method string, params, out interface{}) error {
	body, err := json.Marshal(apiRequest{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+resource, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept-Language", "en")
	if c.clientID != "" {
		req.Header.Set("Client-Login", c.clientID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("direct %s.%s: %w", resource, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("direct %s.%s: status %d: %s", resource, method, resp.StatusCode, truncate(raw, 256))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *apiError       `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return *envelope.Error
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

const statDateLayout = "2006-01-02"

func (c *httpClient) GetCampaigns(ctx context.Context, filter CampaignFilter) ([]Campaign, error) {
	criteria := map[string]interface{}{}
	if len(filter.IDs) > 0 {
		ids := make([]int64, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("campaign id %q is not numeric", id)
			}
			ids = append(ids, n)
		}
		criteria["Ids"] = ids
	}
	if len(filter.Statuses) > 0 {
		criteria["States"] = filter.Statuses
	}
	params := map[string]interface{}{
		"SelectionCriteria": criteria,
		"FieldNames":        []string{"Id", "Name", "State", "DailyBudget", "TimeTargeting"},
	}

	var result struct {
		Campaigns []struct {
			ID       int64           `json:"Id"`
			Name     string          `json:"Name"`
			State    string          `json:"State"`
			Settings json.RawMessage `json:"DailyBudget"`
		} `json:"Campaigns"`
	}
	if err := c.call(ctx, "campaigns", "get", params, &result); err != nil {
		return nil, err
	}
	out := make([]Campaign, 0, len(result.Campaigns))
	for _, cp := range result.Campaigns {
		out = append(out, Campaign{
			ID:       strconv.FormatInt(cp.ID, 10),
			Name:     cp.Name,
			Status:   cp.State,
			Settings: cp.Settings,
		})
	}
	return out, nil
}

func (c *httpClient) GetStats(ctx context.Context, from, to time.Time) ([]StatRow, error) {
	params := map[string]interface{}{
		"SelectionCriteria": map[string]string{
			"DateFrom": from.Format(statDateLayout),
			"DateTo":   to.Format(statDateLayout),
		},
		"FieldNames": []string{"CampaignId", "Date", "Impressions", "Clicks", "Cost", "Conversions", "Revenue"},
		"ReportType": "CAMPAIGN_PERFORMANCE_REPORT",
	}
	var result struct {
		Rows []struct {
			CampaignID  int64   `json:"CampaignId"`
			Date        string  `json:"Date"`
			Impressions int64   `json:"Impressions"`
			Clicks      int64   `json:"Clicks"`
			Cost        float64 `json:"Cost"`
			Conversions float64 `json:"Conversions"`
			Revenue     float64 `json:"Revenue"`
		} `json:"Rows"`
	}
	if err := c.call(ctx, "reports", "get", params, &result); err != nil {
		return nil, err
	}
	out := make([]StatRow, 0, len(result.Rows))
	for _, r := range result.Rows {
		day, err := time.Parse(statDateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("parse stat date %q: %w", r.Date, err)
		}
		out = append(out, StatRow{
			CampaignID:  strconv.FormatInt(r.CampaignID, 10),
			Date:        day,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Cost:        r.Cost / 1e6,
			Conversions: r.Conversions,
			Revenue:     r.Revenue / 1e6,
		})
	}
	return out, nil
}

func (c *httpClient) GetSearchQueries(ctx context.Context, campaignID string, from, to time.Time) ([]SearchQuery, error) {
	params := map[string]interface{}{
		"SelectionCriteria": map[string]interface{}{
			"CampaignIds": []string{campaignID},
			"DateFrom":    from.Format(statDateLayout),
			"DateTo":      to.Format(statDateLayout),
		},
		"FieldNames": []string{"Query", "Impressions", "Clicks", "Cost"},
		"ReportType": "SEARCH_QUERY_PERFORMANCE_REPORT",
	}
	var result struct {
		Rows []struct {
			Query       string  `json:"Query"`
			Impressions int64   `json:"Impressions"`
			Clicks      int64   `json:"Clicks"`
			Cost        float64 `json:"Cost"`
		} `json:"Rows"`
	}
	if err := c.call(ctx, "reports", "get", params, &result); err != nil {
		return nil, err
	}
	out := make([]SearchQuery, 0, len(result.Rows))
	for _, r := range result.Rows {
		out = append(out, SearchQuery{
			CampaignID:  campaignID,
			Query:       r.Query,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Cost:        r.Cost / 1e6,
		})
	}
	return out, nil
}

func (c *httpClient) GetBidModifiers(ctx context.Context, campaignID string) ([]BidModifier, error) {
	params := map[string]interface{}{
		"SelectionCriteria": map[string]interface{}{"CampaignIds": []string{campaignID}},
		"FieldNames":        []string{"Id", "CampaignId", "Type"},
	}
	var result struct {
		BidModifiers []struct {
			Type       string `json:"Type"`
			Adjustment int    `json:"Adjustment"`
		} `json:"BidModifiers"`
	}
	if err := c.call(ctx, "bidmodifiers", "get", params, &result); err != nil {
		return nil, err
	}
	out := make([]BidModifier, 0, len(result.BidModifiers))
	for _, m := range result.BidModifiers {
		out = append(out, BidModifier{CampaignID: campaignID, Type: m.Type, Adjustment: m.Adjustment})
	}
	return out, nil
}

func (c *httpClient) GetKeywords(ctx context.Context, campaignID string) ([]Keyword, error) {
	params := map[string]interface{}{
		"SelectionCriteria": map[string]interface{}{"CampaignIds": []string{campaignID}},
		"FieldNames":        []string{"Keyword", "Bid", "State"},
	}
	var result struct {
		Keywords []struct {
			Keyword string `json:"Keyword"`
			Bid     int64  `json:"Bid"`
			State   string `json:"State"`
		} `json:"Keywords"`
	}
	if err := c.call(ctx, "keywords", "get", params, &result); err != nil {
		return nil, err
	}
	out := make([]Keyword, 0, len(result.Keywords))
	for _, k := range result.Keywords {
		out = append(out, Keyword{CampaignID: campaignID, Text: k.Keyword, BidMicros: k.Bid, Status: k.State})
	}
	return out, nil
}

func (c *httpClient) CreateCampaign(ctx context.Context, draft CampaignDraft) (Campaign, error) {
	params := map[string]interface{}{
		"Campaigns": []map[string]interface{}{{
			"Name": draft.Name,
			"TextCampaign": map[string]interface{}{
				"BiddingStrategy": map[string]interface{}{
					"Search":  map[string]string{"BiddingStrategyType": string(draft.Strategy)},
					"Network": map[string]string{"BiddingStrategyType": "SERVING_OFF"},
				},
			},
			"DailyBudget": map[string]interface{}{"Amount": draft.DailyBudgetMicros, "Mode": "STANDARD"},
			"NegativeKeywords": map[string]interface{}{"Items": draft.NegativeKeywords},
		}},
	}
	var result struct {
		AddResults []struct {
			ID     int64      `json:"Id"`
			Errors []apiError `json:"Errors"`
		} `json:"AddResults"`
	}
	if err := c.call(ctx, "campaigns", "add", params, &result); err != nil {
		return Campaign{}, err
	}
	if len(result.AddResults) == 0 {
		return Campaign{}, fmt.Errorf("campaigns.add returned no results")
	}
	if errs := result.AddResults[0].Errors; len(errs) > 0 {
		return Campaign{}, errs[0]
	}
	return Campaign{
		ID:     strconv.FormatInt(result.AddResults[0].ID, 10),
		Name:   draft.Name,
		Status: "ON",
	}, nil
}

func (c *httpClient) UpdateBids(ctx context.Context, campaignID string, bidMicros int64) error {
	params := map[string]interface{}{
		"KeywordBids": []map[string]interface{}{{
			"CampaignId": campaignID,
			"SearchBid":  bidMicros,
		}},
	}
	return c.call(ctx, "keywordbids", "set", params, nil)
}

func (c *httpClient) AddNegativeKeywords(ctx context.Context, campaignID string, keywords []string) error {
	params := map[string]interface{}{
		"Campaigns": []map[string]interface{}{{
			"Id":               campaignID,
			"NegativeKeywords": map[string]interface{}{"Items": keywords},
		}},
	}
	return c.call(ctx, "campaigns", "update", params, nil)
}

func (c *httpClient) SuspendCampaigns(ctx context.Context, ids []string) error {
	return c.call(ctx, "campaigns", "suspend", map[string]interface{}{
		"SelectionCriteria": map[string]interface{}{"Ids": ids},
	}, nil)
}

func (c *httpClient) ResumeCampaigns(ctx context.Context, ids []string) error {
	return c.call(ctx, "campaigns", "resume", map[string]interface{}{
		"SelectionCriteria": map[string]interface{}{"Ids": ids},
	}, nil)
}

func (c *httpClient) UpdateBudget(ctx context.Context, campaignID string, amountMicros int64, mode string) error {
	if mode == "" {
		mode = "STANDARD"
	}
	params := map[string]interface{}{
		"Campaigns": []map[string]interface{}{{
			"Id":          campaignID,
			"DailyBudget": map[string]interface{}{"Amount": amountMicros, "Mode": mode},
		}},
	}
	return c.call(ctx, "campaigns", "update", params, nil)
}

func (c *httpClient) UpdateAds(ctx context.Context, campaignID string, title, text string) error {
	params := map[string]interface{}{
		"Ads": []map[string]interface{}{{
			"CampaignId": campaignID,
			"TextAd":     map[string]string{"Title": title, "Text": text},
		}},
	}
	return c.call(ctx, "ads", "update", params, nil)
}

func (c *httpClient) UpdateSchedule(ctx context.Context, campaignID string, schedule []string) error {
	params := map[string]interface{}{
		"Campaigns": []map[string]interface{}{{
			"Id":             campaignID,
			"TimeTargeting":  map[string]interface{}{"Schedule": map[string]interface{}{"Items": schedule}},
		}},
	}
	return c.call(ctx, "campaigns", "update", params, nil)
}

func (c *httpClient) UpdateBidModifiers(ctx context.Context, campaignID string, modifierType string, adjustment int) error {
	params := map[string]interface{}{
		"BidModifiers": []map[string]interface{}{{
			"CampaignId": campaignID,
			"Type":       modifierType,
			"Adjustment": adjustment,
		}},
	}
	return c.call(ctx, "bidmodifiers", "set", params, nil)
}
