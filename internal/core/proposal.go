package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// strategyTable is the closed mapping from free-text strategy names to
// platform strategy enums. Lookup is case-insensitive on the normalized
// form; anything outside the table is a validation failure rather than a
// silent default.
var strategyTable = map[string]direct.Strategy{
	"highest position":     direct.StrategyHighestPosition,
	"manual":               direct.StrategyHighestPosition,
	"maximum clicks":       direct.StrategyWbMaximumClicks,
	"max clicks":           direct.StrategyWbMaximumClicks,
	"average cpc":          direct.StrategyAverageCPC,
	"cpc":                  direct.StrategyAverageCPC,
	"average cpa":          direct.StrategyAverageCPA,
	"cpa":                  direct.StrategyAverageCPA,
	"target cpa":           direct.StrategyAverageCPA,
	"average roi":          direct.StrategyAverageROI,
	"roi":                  direct.StrategyAverageROI,
	"target roi":           direct.StrategyAverageROI,
	"weekly click package": direct.StrategyWeeklyClickPackage,
	"click package":        direct.StrategyWeeklyClickPackage,
}

// defaultStrategy applies only when the plan names no strategy at all.
const defaultStrategy = direct.StrategyHighestPosition

// MapStrategy resolves a plan's strategy text to a platform enum.
func MapStrategy(text string) (direct.Strategy, error) {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.Join(strings.Fields(norm), " ")
	if norm == "" {
		return defaultStrategy, nil
	}
	if s, ok := strategyTable[norm]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: unrecognized strategy %q", ErrValidation, text)
}

// validatePlan rejects malformed proposal plans before anything is
// persisted or sent upstream.
func validatePlan(plan llm.ProposalPlan) error {
	if strings.TrimSpace(plan.Title) == "" {
		return fmt.Errorf("%w: proposal plan has no title", ErrValidation)
	}
	if plan.DailyBudget <= 0 {
		return fmt.Errorf("%w: proposal plan has no daily budget", ErrValidation)
	}
	if _, err := MapStrategy(plan.Strategy); err != nil {
		return err
	}
	return nil
}

// GenerateCampaignProposal drafts a structured campaign plan for a user
// request, persists it as a draft proposal inside its own conversation,
// records the initial exchange and switches the user's focus to it.
func (o *Orchestrator) GenerateCampaignProposal(ctx context.Context, request, userID string) (store.Proposal, error) {
	promptContext := o.knowledgeContext(ctx, "")

	// The discussion leading up to the request carries the user's goals;
	// fold the current conversation's tail into the drafting context
	// before focus moves to the new proposal.
	sess, err := o.store.GetSession(ctx, userID)
	if err != nil {
		return store.Proposal{}, err
	}
	if sess.CurrentConversationID != "" {
		prior, ok, err := o.convos.Get(ctx, sess.CurrentConversationID)
		if err != nil {
			return store.Proposal{}, err
		}
		if ok {
			promptContext += o.conversationTail(prior)
		}
	}

	plan, err := o.llm.GenerateProposal(ctx, request, promptContext)
	if err != nil {
		return store.Proposal{}, fmt.Errorf("draft proposal: %w", err)
	}
	if err := validatePlan(plan); err != nil {
		return store.Proposal{}, err
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return store.Proposal{}, fmt.Errorf("marshal plan: %w", err)
	}

	proposal, conv, err := o.store.CreateProposalWithConversation(ctx, plan.Title, planJSON)
	if err != nil {
		return store.Proposal{}, err
	}

	if _, err := o.convos.AddMessage(ctx, conv.ID, store.RoleUser, request, nil); err != nil {
		return store.Proposal{}, err
	}
	if _, err := o.convos.AddMessage(ctx, conv.ID, store.RoleAssistant, renderPlan(plan), nil); err != nil {
		return store.Proposal{}, err
	}

	if err := o.SetCurrentProposal(ctx, userID, proposal.ID); err != nil {
		return store.Proposal{}, err
	}
	if err := o.store.SetSessionConversation(ctx, userID, conv.ID); err != nil {
		return store.Proposal{}, err
	}
	return proposal, nil
}

// ApproveProposal creates the real campaign for a draft or discussed
// proposal. The proposal is marked implemented only after the platform
// call and the local upsert both succeed.
func (o *Orchestrator) ApproveProposal(ctx context.Context, proposalID string) (store.Campaign, error) {
	p, ok, err := o.store.GetProposal(ctx, proposalID)
	if err != nil {
		return store.Campaign{}, err
	}
	if !ok {
		return store.Campaign{}, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if p.Status != store.ProposalStatusDraft && p.Status != store.ProposalStatusDiscussing {
		return store.Campaign{}, fmt.Errorf("%w: proposal %s is %s, not approvable", ErrValidation, proposalID, p.Status)
	}

	var plan llm.ProposalPlan
	if err := json.Unmarshal(p.Plan, &plan); err != nil {
		return store.Campaign{}, fmt.Errorf("%w: proposal plan is malformed: %v", ErrValidation, err)
	}
	if err := validatePlan(plan); err != nil {
		return store.Campaign{}, err
	}
	strategy, err := MapStrategy(plan.Strategy)
	if err != nil {
		return store.Campaign{}, err
	}

	created, err := o.platform.CreateCampaign(ctx, direct.CampaignDraft{
		Name:              plan.Title,
		Strategy:          strategy,
		DailyBudgetMicros: int64(plan.DailyBudget * 1e6),
		Regions:           plan.Regions,
		NegativeKeywords:  plan.NegativeKeywords,
	})
	if err != nil {
		// The proposal keeps its prior status; nothing was applied.
		return store.Campaign{}, fmt.Errorf("create campaign for proposal %s: %w", proposalID, err)
	}

	local := store.Campaign{
		ID:       created.ID,
		Name:     created.Name,
		Status:   created.Status,
		Settings: created.Settings,
	}
	if err := o.store.UpsertCampaign(ctx, local); err != nil {
		return store.Campaign{}, err
	}

	moved, err := o.store.TransitionProposal(ctx, proposalID, store.ProposalStatusImplemented,
		store.ProposalStatusDraft, store.ProposalStatusDiscussing)
	if err != nil {
		return store.Campaign{}, err
	}
	if !moved {
		return store.Campaign{}, fmt.Errorf("proposal %s changed status during approval", proposalID)
	}

	if o.journal != nil {
		if err := o.journal.AppendAudit(proposalID, "implement_proposal", created.ID, plan.Goal, string(p.Plan)); err != nil {
			o.logger.Printf("warn: audit implemented proposal %s: %v", proposalID, err)
		}
	}
	return local, nil
}

// renderPlan formats a plan for the proposal conversation.
func renderPlan(plan llm.ProposalPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposal: %s\nGoal: %s\nStrategy: %s\nDaily budget: %.2f\n",
		plan.Title, plan.Goal, plan.Strategy, plan.DailyBudget)
	if len(plan.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(plan.Keywords, ", "))
	}
	if plan.AdTitle != "" || plan.AdText != "" {
		fmt.Fprintf(&b, "Ad: %s - %s\n", plan.AdTitle, plan.AdText)
	}
	if plan.Rationale != "" {
		fmt.Fprintf(&b, "Why: %s\n", plan.Rationale)
	}
	return b.String()
}
