package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adpilot-bot/adpilot/config"
)

// openaiProvider implements Provider using the OpenAI chat completions API.
type openaiProvider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewOpenAIProvider creates a Provider from config.
func NewOpenAIProvider(cfg config.LLMConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &openaiProvider{
		apiKey:      cfg.APIKey,
		baseURL:     base,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// complete performs one chat completion and returns the content of the
// first choice.
func (p *openaiProvider) complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	reqBody := chatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm api error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm api status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// completeJSON runs a completion in JSON mode and unmarshals the content
// into out, tolerating fenced code blocks.
func (p *openaiProvider) completeJSON(ctx context.Context, messages []Message, out interface{}) error {
	content, err := p.complete(ctx, messages, true)
	if err != nil {
		return err
	}
	content = stripFences(content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("parse llm json: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

const analyzeSystemPrompt = `You are a performance-marketing analyst for Yandex Direct campaigns.
Respond with a single JSON object:
{"text": "...", "insights": ["..."], "recommendations": [{"text": "...", "action": {"type": "...", "campaign_id": "...", "target": "...", "params": {}}}], "summary": "..."}
Only include an "action" when a concrete platform mutation is warranted.
Allowed action types: update_bid, add_negative_keywords, suspend_campaign, resume_campaign, update_budget, update_ad, update_schedule, update_bid_modifier.`

func (p *openaiProvider) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error) {
	user := fmt.Sprintf("Task: %s\n\nData:\n%s", req.Task, req.Data)
	if req.Context != "" {
		user += "\n\nContext:\n" + req.Context
	}
	var out Analysis
	err := p.completeJSON(ctx, []Message{
		{Role: "system", Content: analyzeSystemPrompt},
		{Role: "user", Content: user},
	}, &out)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze: %w", err)
	}
	return out, nil
}

const classifySystemPrompt = `Classify the user's message about their advertising account.
Respond with a single JSON object:
{"campaign_hint": "campaign name or id mentioned, empty if none", "proposal_hint": "proposal title mentioned, empty if none", "confidence": 0.0}
confidence reflects how certain you are about which entity the user means.`

func (p *openaiProvider) Classify(ctx context.Context, text string) (Classification, error) {
	var out Classification
	err := p.completeJSON(ctx, []Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: text},
	}, &out)
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}
	return out, nil
}

func (p *openaiProvider) AnswerQuestion(ctx context.Context, question, data, context string) (string, error) {
	system := "You are an advertising assistant. Answer the user's question using the provided data and context. Be concise and concrete."
	user := fmt.Sprintf("Question: %s\n\nData:\n%s\n\nContext:\n%s", question, data, context)
	answer, err := p.complete(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, false)
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}
	return answer, nil
}

const proposalSystemPrompt = `Draft a new Yandex Direct campaign plan for the user's request.
Respond with a single JSON object:
{"title": "...", "goal": "...", "strategy": "...", "daily_budget": 0, "regions": [], "keywords": ["..."], "negative_keywords": ["..."], "ad_title": "...", "ad_text": "...", "rationale": "..."}`

func (p *openaiProvider) GenerateProposal(ctx context.Context, request, context string) (ProposalPlan, error) {
	user := "Request: " + request
	if context != "" {
		user += "\n\nContext:\n" + context
	}
	var out ProposalPlan
	err := p.completeJSON(ctx, []Message{
		{Role: "system", Content: proposalSystemPrompt},
		{Role: "user", Content: user},
	}, &out)
	if err != nil {
		return ProposalPlan{}, fmt.Errorf("generate proposal: %w", err)
	}
	return out, nil
}

const summarizeSystemPrompt = `Summarize this advertising-assistant conversation.
Respond with a single JSON object:
{"topic": "...", "summary": "...", "decisions": ["..."], "key_facts": ["durable facts worth remembering"]}`

func (p *openaiProvider) SummarizeConversation(ctx context.Context, messages []Message) (ConversationSummary, error) {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	var out ConversationSummary
	err := p.completeJSON(ctx, []Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: b.String()},
	}, &out)
	if err != nil {
		return ConversationSummary{}, fmt.Errorf("summarize conversation: %w", err)
	}
	return out, nil
}
