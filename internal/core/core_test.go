package core

import (
	"context"
	"fmt"
	"time"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/chat"
	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/resolver"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	campaigns map[string]store.Campaign
	stats     []store.DailyStat
	facts     []store.KnowledgeFact
	proposals map[string]store.Proposal
	sessions  map[string]store.UserSession

	nextProposal int
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: map[string]store.Campaign{},
		proposals: map[string]store.Proposal{},
		sessions:  map[string]store.UserSession{},
	}
}

func (s *memStore) UpsertCampaign(ctx context.Context, c store.Campaign) error {
	s.campaigns[c.ID] = c
	return nil
}

func (s *memStore) GetCampaign(ctx context.Context, id string) (store.Campaign, bool, error) {
	c, ok := s.campaigns[id]
	return c, ok, nil
}

func (s *memStore) ListCampaigns(ctx context.Context, status string) ([]store.Campaign, error) {
	var out []store.Campaign
	for _, c := range s.campaigns {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) UpsertDailyStat(ctx context.Context, d store.DailyStat) error {
	d = d.Normalize()
	for i, existing := range s.stats {
		if existing.CampaignID == d.CampaignID && existing.Date.Equal(d.Date) {
			s.stats[i] = d
			return nil
		}
	}
	s.stats = append(s.stats, d)
	return nil
}

func (s *memStore) ListStats(ctx context.Context, from, to time.Time) ([]store.DailyStat, error) {
	var out []store.DailyStat
	for _, d := range s.stats {
		if !d.Date.Before(from) && !d.Date.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) AddFact(ctx context.Context, f store.KnowledgeFact) (int64, error) {
	s.facts = append(s.facts, f)
	return int64(len(s.facts)), nil
}

func (s *memStore) ListFacts(ctx context.Context, campaignID string, limit int) ([]store.KnowledgeFact, error) {
	return s.facts, nil
}

func (s *memStore) CreateProposalWithConversation(ctx context.Context, title string, plan []byte) (store.Proposal, store.Conversation, error) {
	s.nextProposal++
	p := store.Proposal{
		ID:             fmt.Sprintf("p%d", s.nextProposal),
		Title:          title,
		Plan:           plan,
		Status:         store.ProposalStatusDraft,
		ConversationID: fmt.Sprintf("conv-p%d", s.nextProposal),
		CreatedAt:      time.Now(),
	}
	s.proposals[p.ID] = p
	c := store.Conversation{
		ID:         p.ConversationID,
		Type:       store.ConvTypeProposal,
		ProposalID: p.ID,
		Status:     store.ConvStatusActive,
	}
	return p, c, nil
}

func (s *memStore) GetProposal(ctx context.Context, id string) (store.Proposal, bool, error) {
	p, ok := s.proposals[id]
	return p, ok, nil
}

func (s *memStore) TransitionProposal(ctx context.Context, id, to string, from ...string) (bool, error) {
	p, ok := s.proposals[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			s.proposals[id] = p
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetSession(ctx context.Context, userID string) (store.UserSession, error) {
	sess := s.sessions[userID]
	sess.UserID = userID
	return sess, nil
}

func (s *memStore) SetSessionCampaign(ctx context.Context, userID, campaignID string) error {
	sess := s.sessions[userID]
	sess.UserID = userID
	sess.CurrentCampaignID = campaignID
	sess.CurrentProposalID = ""
	s.sessions[userID] = sess
	return nil
}

func (s *memStore) SetSessionProposal(ctx context.Context, userID, proposalID string) error {
	sess := s.sessions[userID]
	sess.UserID = userID
	sess.CurrentProposalID = proposalID
	sess.CurrentCampaignID = ""
	s.sessions[userID] = sess
	return nil
}

func (s *memStore) SetSessionConversation(ctx context.Context, userID, conversationID string) error {
	sess := s.sessions[userID]
	sess.UserID = userID
	sess.CurrentConversationID = conversationID
	s.sessions[userID] = sess
	return nil
}

func (s *memStore) ClearSessionFocus(ctx context.Context, userID string) error {
	sess := s.sessions[userID]
	sess.UserID = userID
	sess.CurrentCampaignID = ""
	sess.CurrentProposalID = ""
	sess.CurrentConversationID = ""
	s.sessions[userID] = sess
	return nil
}

// stubConvos records conversation activity without a database.
type stubConvos struct {
	archives  []string
	messages  []store.Message
	nextConv  int
	lastConv  store.Conversation
	tailTurns []store.Message
	byID      map[string]store.Conversation
}

func (c *stubConvos) GetOrCreate(ctx context.Context, convType, campaignID, proposalID string) (store.Conversation, error) {
	c.nextConv++
	conv := store.Conversation{
		ID:         fmt.Sprintf("conv-%d", c.nextConv),
		Type:       convType,
		CampaignID: campaignID,
		ProposalID: proposalID,
		Status:     store.ConvStatusActive,
		Messages:   c.tailTurns,
	}
	c.lastConv = conv
	return conv, nil
}

func (c *stubConvos) Get(ctx context.Context, id string) (store.Conversation, bool, error) {
	conv, ok := c.byID[id]
	return conv, ok, nil
}

func (c *stubConvos) AddMessage(ctx context.Context, conversationID, role, content string, metadata []byte) (int64, error) {
	c.messages = append(c.messages, store.Message{ConversationID: conversationID, Role: role, Content: content})
	return int64(len(c.messages)), nil
}

func (c *stubConvos) ArchiveCurrent(ctx context.Context, userID string) error {
	c.archives = append(c.archives, userID)
	return nil
}

// stubActions records created pending actions.
type stubActions struct {
	created       []store.PendingAction
	confirmations []string
}

func (a *stubActions) Create(ctx context.Context, campaignID, actionType string, params []byte, reasoning string) (store.PendingAction, error) {
	act := store.PendingAction{
		ID:         fmt.Sprintf("a%d", len(a.created)+1),
		CampaignID: campaignID,
		Type:       actionType,
		Params:     params,
		Reasoning:  reasoning,
		Status:     store.ActionStatusPending,
	}
	a.created = append(a.created, act)
	return act, nil
}

func (a *stubActions) RecordConfirmation(ctx context.Context, actionID string, messageID int64) error {
	a.confirmations = append(a.confirmations, actionID)
	return nil
}

// stubResolver returns a canned resolution.
type stubResolver struct {
	rc resolver.ResolvedContext
}

func (r *stubResolver) Resolve(ctx context.Context, cls llm.Classification, userID string) (resolver.ResolvedContext, error) {
	return r.rc, nil
}

// stubLLM returns canned responses and counts calls.
type stubLLM struct {
	classification llm.Classification
	analysis       llm.Analysis
	answer         string
	plan           llm.ProposalPlan

	analyzeCalls    int
	answerCalls     int
	analyzeErr      error
	classifyErr     error
	proposalContext string
}

func (l *stubLLM) Analyze(ctx context.Context, req llm.AnalyzeRequest) (llm.Analysis, error) {
	l.analyzeCalls++
	return l.analysis, l.analyzeErr
}

func (l *stubLLM) Classify(ctx context.Context, text string) (llm.Classification, error) {
	return l.classification, l.classifyErr
}

func (l *stubLLM) AnswerQuestion(ctx context.Context, question, data, context string) (string, error) {
	l.answerCalls++
	return l.answer, nil
}

func (l *stubLLM) GenerateProposal(ctx context.Context, request, context string) (llm.ProposalPlan, error) {
	l.proposalContext = context
	return l.plan, nil
}

func (l *stubLLM) SummarizeConversation(ctx context.Context, messages []llm.Message) (llm.ConversationSummary, error) {
	return llm.ConversationSummary{}, nil
}

// fakePlatform is an in-memory direct.Client.
type fakePlatform struct {
	campaigns []direct.Campaign
	stats     []direct.StatRow
	queries   []direct.SearchQuery

	created      []direct.CampaignDraft
	createErr    error
	createResult direct.Campaign
}

func (f *fakePlatform) GetCampaigns(ctx context.Context, filter direct.CampaignFilter) ([]direct.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakePlatform) GetStats(ctx context.Context, from, to time.Time) ([]direct.StatRow, error) {
	var out []direct.StatRow
	for _, r := range f.stats {
		if !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePlatform) GetSearchQueries(ctx context.Context, campaignID string, from, to time.Time) ([]direct.SearchQuery, error) {
	return f.queries, nil
}

func (f *fakePlatform) GetBidModifiers(ctx context.Context, campaignID string) ([]direct.BidModifier, error) {
	return nil, nil
}

func (f *fakePlatform) GetKeywords(ctx context.Context, campaignID string) ([]direct.Keyword, error) {
	return nil, nil
}

func (f *fakePlatform) CreateCampaign(ctx context.Context, draft direct.CampaignDraft) (direct.Campaign, error) {
	if f.createErr != nil {
		return direct.Campaign{}, f.createErr
	}
	f.created = append(f.created, draft)
	return f.createResult, nil
}

func (f *fakePlatform) UpdateBids(ctx context.Context, campaignID string, bidMicros int64) error {
	return nil
}
func (f *fakePlatform) AddNegativeKeywords(ctx context.Context, campaignID string, keywords []string) error {
	return nil
}
func (f *fakePlatform) SuspendCampaigns(ctx context.Context, ids []string) error { return nil }
func (f *fakePlatform) ResumeCampaigns(ctx context.Context, ids []string) error  { return nil }
func (f *fakePlatform) UpdateBudget(ctx context.Context, campaignID string, amountMicros int64, mode string) error {
	return nil
}
func (f *fakePlatform) UpdateAds(ctx context.Context, campaignID string, title, text string) error {
	return nil
}
func (f *fakePlatform) UpdateSchedule(ctx context.Context, campaignID string, schedule []string) error {
	return nil
}
func (f *fakePlatform) UpdateBidModifiers(ctx context.Context, campaignID string, modifierType string, adjustment int) error {
	return nil
}

// stubTransport records outbound chat traffic.
type stubTransport struct {
	messages      []string
	confirmations []string
	nextMessageID int64
}

func (t *stubTransport) SendMessage(ctx context.Context, chatID int64, text string, opts chat.SendOptions) error {
	t.messages = append(t.messages, text)
	return nil
}

func (t *stubTransport) SendActionConfirmation(ctx context.Context, chatID int64, actionID, text string) (int64, error) {
	t.confirmations = append(t.confirmations, actionID)
	t.nextMessageID++
	return t.nextMessageID, nil
}

// stubJournal counts journal entries.
type stubJournal struct {
	learnings int
	audits    int
}

func (j *stubJournal) AppendLearning(title, body string) error {
	j.learnings++
	return nil
}

func (j *stubJournal) AppendAudit(actionID, actionType, campaignID, reasoning, params string) error {
	j.audits++
	return nil
}

type testEnv struct {
	orch      *Orchestrator
	store     *memStore
	convos    *stubConvos
	actions   *stubActions
	resolver  *stubResolver
	llm       *stubLLM
	platform  *fakePlatform
	transport *stubTransport
	journal   *stubJournal
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:     newMemStore(),
		convos:    &stubConvos{},
		actions:   &stubActions{},
		resolver:  &stubResolver{},
		llm:       &stubLLM{},
		platform:  &fakePlatform{},
		transport: &stubTransport{},
		journal:   &stubJournal{},
	}
	env.orch = New(Deps{
		Store:     env.store,
		Convos:    env.convos,
		Actions:   env.actions,
		Resolver:  env.resolver,
		LLM:       env.llm,
		Platform:  env.platform,
		Transport: env.transport,
		Journal:   env.journal,
	}, config.PolicyConfig{}, 42)
	return env
}
