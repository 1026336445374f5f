// Package llm is the LLM collaborator edge: structured request/response
// types plus the Provider interface the core consumes.
package llm

import (
	"context"
	"encoding/json"
)

// Message is one turn of a conversation handed to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Classification is the result of classifying free user text.
type Classification struct {
	CampaignHint string  `json:"campaign_hint,omitempty"`
	ProposalHint string  `json:"proposal_hint,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// ActionDraft is a structured mutation attached to a recommendation.
// Target may name a campaign instead of carrying its id; the orchestrator
// resolves it before creating a pending action.
type ActionDraft struct {
	Type       string          `json:"type"`
	CampaignID string          `json:"campaign_id,omitempty"`
	Target     string          `json:"target,omitempty"`
	Params     json.RawMessage `json:"params"`
}

// Recommendation is one actionable (or purely textual) suggestion.
type Recommendation struct {
	Text   string       `json:"text"`
	Action *ActionDraft `json:"action,omitempty"`
}

// Analysis is the response shape for report/analysis tasks.
type Analysis struct {
	Text            string           `json:"text"`
	Insights        []string         `json:"insights"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         string           `json:"summary,omitempty"`
}

// AnalyzeRequest bundles data and context for an analysis task.
type AnalyzeRequest struct {
	Task    string `json:"task"`
	Data    string `json:"data"`
	Context string `json:"context,omitempty"`
}

// ProposalPlan is the structured draft of a new campaign.
type ProposalPlan struct {
	Title            string   `json:"title"`
	Goal             string   `json:"goal"`
	Strategy         string   `json:"strategy"`
	DailyBudget      float64  `json:"daily_budget"`
	Regions          []int    `json:"regions,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	NegativeKeywords []string `json:"negative_keywords,omitempty"`
	AdTitle          string   `json:"ad_title,omitempty"`
	AdText           string   `json:"ad_text,omitempty"`
	Rationale        string   `json:"rationale,omitempty"`
}

// ConversationSummary is the product of summarizing an archived
// conversation.
type ConversationSummary struct {
	Topic     string   `json:"topic"`
	Summary   string   `json:"summary"`
	Decisions []string `json:"decisions"`
	KeyFacts  []string `json:"key_facts"`
}

// Provider is the LLM surface consumed by the core.
type Provider interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error)
	Classify(ctx context.Context, text string) (Classification, error)
	AnswerQuestion(ctx context.Context, question, data, context string) (string, error)
	GenerateProposal(ctx context.Context, request, context string) (ProposalPlan, error)
	SummarizeConversation(ctx context.Context, messages []Message) (ConversationSummary, error)
}
