// Package convo tracks per-user conversational focus: one active
// conversation per (type, campaign-or-proposal) key, archived and
// summarized on every focus switch.
package convo

import (
	"context"
	"fmt"
	"log"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// Store is the slice of the relational store the manager needs.
type Store interface {
	FindActiveConversation(ctx context.Context, convType, campaignID, proposalID string) (store.Conversation, bool, error)
	InsertConversation(ctx context.Context, convType, campaignID, proposalID string) (store.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (store.Conversation, bool, error)
	ArchiveConversation(ctx context.Context, id, summary string) error
	AppendMessage(ctx context.Context, m store.Message) (int64, error)
	GetSession(ctx context.Context, userID string) (store.UserSession, error)
	SetSessionConversation(ctx context.Context, userID, conversationID string) error
	AddFact(ctx context.Context, f store.KnowledgeFact) (int64, error)
}

// Summarizer is the LLM slice used when archiving.
type Summarizer interface {
	SummarizeConversation(ctx context.Context, messages []llm.Message) (llm.ConversationSummary, error)
}

// LongTermLog receives human-readable summaries of archived
// conversations.
type LongTermLog interface {
	AppendSummary(conversationID, topic, summary string, decisions []string) error
}

// Manager implements the conversation lifecycle.
type Manager struct {
	store      Store
	summarizer Summarizer
	journal    LongTermLog
	logger     *log.Logger

	minSummaryMessages int
}

// New creates a Manager.
func New(st Store, summarizer Summarizer, journal LongTermLog, policy config.PolicyConfig, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[CONVO] ", log.LstdFlags)
	}
	min := policy.MinSummaryMessages
	if min <= 0 {
		min = 2
	}
	return &Manager{
		store:              st,
		summarizer:         summarizer,
		journal:            journal,
		logger:             logger,
		minSummaryMessages: min,
	}
}

// GetOrCreate returns the active conversation for the key, creating one
// if none exists. A lost insert race falls back to the winner's row.
func (m *Manager) GetOrCreate(ctx context.Context, convType, campaignID, proposalID string) (store.Conversation, error) {
	c, ok, err := m.store.FindActiveConversation(ctx, convType, campaignID, proposalID)
	if err != nil {
		return store.Conversation{}, err
	}
	if ok {
		return c, nil
	}

	created, inserted, err := m.store.InsertConversation(ctx, convType, campaignID, proposalID)
	if err != nil {
		return store.Conversation{}, err
	}
	if inserted {
		return created, nil
	}

	// Another worker created the conversation between our find and
	// insert; read theirs.
	c, ok, err = m.store.FindActiveConversation(ctx, convType, campaignID, proposalID)
	if err != nil {
		return store.Conversation{}, err
	}
	if !ok {
		return store.Conversation{}, fmt.Errorf("conversation vanished after conflicting insert")
	}
	return c, nil
}

// Get loads one conversation with its messages.
func (m *Manager) Get(ctx context.Context, id string) (store.Conversation, bool, error) {
	return m.store.GetConversation(ctx, id)
}

// AddMessage appends one turn. Messages are append-only.
func (m *Manager) AddMessage(ctx context.Context, conversationID, role, content string, metadata []byte) (int64, error) {
	return m.store.AppendMessage(ctx, store.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
	})
}

// Finalize archives a conversation with the given summary. Future
// lookups for its key create a fresh active conversation.
func (m *Manager) Finalize(ctx context.Context, conversationID, summary string) error {
	return m.store.ArchiveConversation(ctx, conversationID, summary)
}

// ArchiveCurrent closes out the session's current conversation ahead of
// a focus switch. Short conversations are dropped unsummarized; for the
// rest the summarizer produces a summary, extracted facts land in the
// knowledge store, and a human-readable entry goes to the long-term log.
// Summarization failure never blocks the switch.
func (m *Manager) ArchiveCurrent(ctx context.Context, userID string) error {
	sess, err := m.store.GetSession(ctx, userID)
	if err != nil {
		return err
	}
	if sess.CurrentConversationID == "" {
		return nil
	}

	conv, ok, err := m.store.GetConversation(ctx, sess.CurrentConversationID)
	if err != nil {
		return err
	}
	if !ok || conv.Status != store.ConvStatusActive {
		return m.store.SetSessionConversation(ctx, userID, "")
	}

	summary := ""
	if len(conv.Messages) >= m.minSummaryMessages {
		summary = m.summarize(ctx, conv)
	}

	if err := m.store.ArchiveConversation(ctx, conv.ID, summary); err != nil {
		return err
	}
	return m.store.SetSessionConversation(ctx, userID, "")
}

// summarize asks the LLM for a summary and fans the results out to the
// knowledge store and long-term log. Returns "" on any failure.
func (m *Manager) summarize(ctx context.Context, conv store.Conversation) string {
	msgs := make([]llm.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		msgs = append(msgs, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	sum, err := m.summarizer.SummarizeConversation(ctx, msgs)
	if err != nil {
		m.logger.Printf("warn: summarize conversation %s failed: %v", conv.ID, err)
		return ""
	}

	for _, fact := range sum.KeyFacts {
		if _, err := m.store.AddFact(ctx, store.KnowledgeFact{
			Source:     "conversation:" + conv.ID,
			Fact:       fact,
			Confidence: 0.7,
			CampaignID: conv.CampaignID,
		}); err != nil {
			m.logger.Printf("warn: store fact from conversation %s failed: %v", conv.ID, err)
		}
	}

	if m.journal != nil {
		if err := m.journal.AppendSummary(conv.ID, sum.Topic, sum.Summary, sum.Decisions); err != nil {
			m.logger.Printf("warn: journal summary for conversation %s failed: %v", conv.ID, err)
		}
	}
	return sum.Summary
}
