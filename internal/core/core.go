// Package core is the orchestrator: the single façade the chat layer and
// job workers talk to. It sequences data fetch -> persist -> analyze ->
// propose -> notify for each use case and owns focus management.
package core

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/chat"
	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/resolver"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// ErrNotFound marks a missing campaign/proposal/conversation.
var ErrNotFound = errors.New("not found")

// ErrValidation marks input that fails validation before any mutating
// call (malformed plan, unrecognized strategy).
var ErrValidation = errors.New("validation failed")

// Store is the slice of the relational store the orchestrator needs.
type Store interface {
	UpsertCampaign(ctx context.Context, c store.Campaign) error
	GetCampaign(ctx context.Context, id string) (store.Campaign, bool, error)
	ListCampaigns(ctx context.Context, status string) ([]store.Campaign, error)

	UpsertDailyStat(ctx context.Context, d store.DailyStat) error
	ListStats(ctx context.Context, from, to time.Time) ([]store.DailyStat, error)

	AddFact(ctx context.Context, f store.KnowledgeFact) (int64, error)
	ListFacts(ctx context.Context, campaignID string, limit int) ([]store.KnowledgeFact, error)

	CreateProposalWithConversation(ctx context.Context, title string, plan []byte) (store.Proposal, store.Conversation, error)
	GetProposal(ctx context.Context, id string) (store.Proposal, bool, error)
	TransitionProposal(ctx context.Context, id, to string, from ...string) (bool, error)

	GetSession(ctx context.Context, userID string) (store.UserSession, error)
	SetSessionCampaign(ctx context.Context, userID, campaignID string) error
	SetSessionProposal(ctx context.Context, userID, proposalID string) error
	SetSessionConversation(ctx context.Context, userID, conversationID string) error
	ClearSessionFocus(ctx context.Context, userID string) error
}

// Conversations is the conversation-manager surface the orchestrator
// drives.
type Conversations interface {
	GetOrCreate(ctx context.Context, convType, campaignID, proposalID string) (store.Conversation, error)
	Get(ctx context.Context, id string) (store.Conversation, bool, error)
	AddMessage(ctx context.Context, conversationID, role, content string, metadata []byte) (int64, error)
	ArchiveCurrent(ctx context.Context, userID string) error
}

// Actions is the action-manager surface the orchestrator drives.
type Actions interface {
	Create(ctx context.Context, campaignID, actionType string, params []byte, reasoning string) (store.PendingAction, error)
	RecordConfirmation(ctx context.Context, actionID string, messageID int64) error
}

// ContextResolver maps classification hints onto entities.
type ContextResolver interface {
	Resolve(ctx context.Context, cls llm.Classification, userID string) (resolver.ResolvedContext, error)
}

// Journal receives authored learnings from weekly reports and audit
// entries for implemented proposals.
type Journal interface {
	AppendLearning(title, body string) error
	AppendAudit(actionID, actionType, campaignID, reasoning, params string) error
}

// Orchestrator sequences every use case. Safe for concurrent use;
// correctness under concurrent jobs relies on the store's idempotent
// upserts and conditional inserts rather than job ordering.
type Orchestrator struct {
	store     Store
	convos    Conversations
	actions   Actions
	resolver  ContextResolver
	llm       llm.Provider
	platform  direct.Client
	transport chat.Transport
	journal   Journal
	logger    *log.Logger

	policy      config.PolicyConfig
	ownerChatID int64
	now         func() time.Time
}

// Deps bundles the orchestrator's collaborators for construction.
type Deps struct {
	Store     Store
	Convos    Conversations
	Actions   Actions
	Resolver  ContextResolver
	LLM       llm.Provider
	Platform  direct.Client
	Transport chat.Transport
	Journal   Journal
	Logger    *log.Logger
}

// New wires an Orchestrator. All collaborators are injected; the
// orchestrator holds no globals.
func New(deps Deps, policy config.PolicyConfig, ownerChatID int64) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Orchestrator{
		store:       deps.Store,
		convos:      deps.Convos,
		actions:     deps.Actions,
		resolver:    deps.Resolver,
		llm:         deps.LLM,
		platform:    deps.Platform,
		transport:   deps.Transport,
		journal:     deps.Journal,
		logger:      logger,
		policy:      policy.Normalize(),
		ownerChatID: ownerChatID,
		now:         time.Now,
	}
}

// notifyOwner delivers text to the configured owner chat, logging
// instead of failing when no transport is wired.
func (o *Orchestrator) notifyOwner(ctx context.Context, text string) {
	if o.transport == nil || o.ownerChatID == 0 {
		o.logger.Printf("notify skipped (no transport): %d chars", len(text))
		return
	}
	if err := o.transport.SendMessage(ctx, o.ownerChatID, text, chat.SendOptions{Markdown: true}); err != nil {
		o.logger.Printf("warn: notify owner failed: %v", err)
	}
}
