package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/store"
)

func TestMapStrategy(t *testing.T) {
	cases := []struct {
		in   string
		want direct.Strategy
	}{
		{"", direct.StrategyHighestPosition},
		{"manual", direct.StrategyHighestPosition},
		{"Highest Position", direct.StrategyHighestPosition},
		{"Max Clicks", direct.StrategyWbMaximumClicks},
		{"  maximum   clicks ", direct.StrategyWbMaximumClicks},
		{"cpa", direct.StrategyAverageCPA},
		{"target ROI", direct.StrategyAverageROI},
		{"click package", direct.StrategyWeeklyClickPackage},
	}
	for _, tc := range cases {
		got, err := MapStrategy(tc.in)
		if err != nil {
			t.Fatalf("MapStrategy(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("MapStrategy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if _, err := MapStrategy("vibes-based bidding"); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for unrecognized strategy", err)
	}
}

func TestGenerateCampaignProposal(t *testing.T) {
	env := newTestEnv()
	env.llm.plan = llm.ProposalPlan{
		Title:       "Winter Boots Launch",
		Goal:        "sell boots",
		Strategy:    "max clicks",
		DailyBudget: 300,
		Keywords:    []string{"winter boots", "warm boots"},
	}
	ctx := context.Background()

	p, err := env.orch.GenerateCampaignProposal(ctx, "launch a winter boots campaign", "u1")
	if err != nil {
		t.Fatalf("GenerateCampaignProposal: %v", err)
	}
	if p.Status != store.ProposalStatusDraft {
		t.Fatalf("status = %q, want draft", p.Status)
	}
	if len(env.convos.messages) != 2 {
		t.Fatalf("recorded %d messages, want user request + rendered plan", len(env.convos.messages))
	}
	if env.convos.messages[0].Role != store.RoleUser || env.convos.messages[1].Role != store.RoleAssistant {
		t.Fatalf("message roles = %q/%q", env.convos.messages[0].Role, env.convos.messages[1].Role)
	}

	sess := env.store.sessions["u1"]
	if sess.CurrentProposalID != p.ID {
		t.Fatalf("session proposal = %q, want %q", sess.CurrentProposalID, p.ID)
	}
	if sess.CurrentCampaignID != "" {
		t.Fatalf("campaign focus must be cleared when a proposal takes focus")
	}
	if sess.CurrentConversationID != p.ConversationID {
		t.Fatalf("session conversation = %q, want %q", sess.CurrentConversationID, p.ConversationID)
	}
	if len(env.convos.archives) != 1 {
		t.Fatalf("previous conversation was not archived on focus switch")
	}
}

// Drafting a proposal feeds the LLM both the knowledge base and the
// tail of the conversation the request came out of.
func TestGenerateCampaignProposalContextCarriesConversation(t *testing.T) {
	env := newTestEnv()
	env.llm.plan = llm.ProposalPlan{
		Title:       "Winter Boots Launch",
		Strategy:    "max clicks",
		DailyBudget: 300,
	}
	ctx := context.Background()

	if _, err := env.store.AddFact(ctx, store.KnowledgeFact{Source: "report", Fact: "mobile converts best"}); err != nil {
		t.Fatalf("seed fact: %v", err)
	}
	if err := env.store.SetSessionConversation(ctx, "u1", "conv-prior"); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	env.convos.byID = map[string]store.Conversation{
		"conv-prior": {
			ID:     "conv-prior",
			Status: store.ConvStatusActive,
			Messages: []store.Message{
				{Role: store.RoleUser, Content: "winter is coming, boots will sell"},
				{Role: store.RoleAssistant, Content: "a dedicated boots campaign could work"},
			},
		},
	}

	if _, err := env.orch.GenerateCampaignProposal(ctx, "draft that boots campaign", "u1"); err != nil {
		t.Fatalf("GenerateCampaignProposal: %v", err)
	}
	for _, want := range []string{"mobile converts best", "winter is coming, boots will sell", "boots campaign could work"} {
		if !strings.Contains(env.llm.proposalContext, want) {
			t.Fatalf("%q missing from drafting context: %q", want, env.llm.proposalContext)
		}
	}
}

func TestGenerateCampaignProposalRejectsBadPlan(t *testing.T) {
	env := newTestEnv()
	env.llm.plan = llm.ProposalPlan{Title: "No Budget", Strategy: "manual"}

	_, err := env.orch.GenerateCampaignProposal(context.Background(), "make something", "u1")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(env.store.proposals) != 0 {
		t.Fatalf("invalid plan must not be persisted")
	}
}

func seedProposal(t *testing.T, env *testEnv, plan llm.ProposalPlan) store.Proposal {
	t.Helper()
	raw, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	p, _, err := env.store.CreateProposalWithConversation(context.Background(), plan.Title, raw)
	if err != nil {
		t.Fatalf("seed proposal: %v", err)
	}
	return p
}

func TestApproveProposalSuccess(t *testing.T) {
	env := newTestEnv()
	env.platform.createResult = direct.Campaign{ID: "555", Name: "Winter Boots Launch", Status: "ON"}
	p := seedProposal(t, env, llm.ProposalPlan{
		Title:       "Winter Boots Launch",
		Goal:        "sell boots",
		Strategy:    "max clicks",
		DailyBudget: 300,
	})

	c, err := env.orch.ApproveProposal(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ApproveProposal: %v", err)
	}
	if c.ID != "555" {
		t.Fatalf("campaign id = %q, want 555", c.ID)
	}
	if len(env.platform.created) != 1 {
		t.Fatalf("platform create calls = %d, want 1", len(env.platform.created))
	}
	if env.platform.created[0].Strategy != direct.StrategyWbMaximumClicks {
		t.Fatalf("strategy = %q", env.platform.created[0].Strategy)
	}
	if env.platform.created[0].DailyBudgetMicros != 300_000_000 {
		t.Fatalf("budget micros = %d", env.platform.created[0].DailyBudgetMicros)
	}
	if _, ok := env.store.campaigns["555"]; !ok {
		t.Fatalf("created campaign was not upserted locally")
	}
	if got := env.store.proposals[p.ID].Status; got != store.ProposalStatusImplemented {
		t.Fatalf("proposal status = %q, want implemented", got)
	}
	if env.journal.audits != 1 {
		t.Fatalf("audit entries = %d, want 1", env.journal.audits)
	}
}

// A platform failure leaves the proposal approvable; nothing was applied.
func TestApproveProposalPlatformFailure(t *testing.T) {
	env := newTestEnv()
	env.platform.createErr = errors.New("direct api down")
	p := seedProposal(t, env, llm.ProposalPlan{
		Title:       "Spring Refresh",
		Strategy:    "cpa",
		DailyBudget: 150,
	})

	if _, err := env.orch.ApproveProposal(context.Background(), p.ID); err == nil {
		t.Fatalf("expected error from platform failure")
	}
	if got := env.store.proposals[p.ID].Status; got != store.ProposalStatusDraft {
		t.Fatalf("proposal status = %q, want draft preserved", got)
	}
	if len(env.store.campaigns) != 0 {
		t.Fatalf("no campaign may be upserted on failure")
	}
}

func TestApproveProposalWrongStatus(t *testing.T) {
	env := newTestEnv()
	p := seedProposal(t, env, llm.ProposalPlan{Title: "Done Already", Strategy: "", DailyBudget: 100})
	if _, err := env.store.TransitionProposal(context.Background(), p.ID, store.ProposalStatusImplemented, store.ProposalStatusDraft); err != nil {
		t.Fatalf("transition: %v", err)
	}

	if _, err := env.orch.ApproveProposal(context.Background(), p.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for implemented proposal", err)
	}
}

func TestApproveProposalNotFound(t *testing.T) {
	env := newTestEnv()
	if _, err := env.orch.ApproveProposal(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
