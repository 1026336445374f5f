package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adpilot-bot/adpilot/internal/resolver"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// Clarification asks the user to pick between candidate referents
// instead of guessing.
type Clarification struct {
	Prompt  string
	Options []resolver.Candidate
}

// Answer is the discriminated result of HandleUserQuestion: either an
// answer text or a clarification request. Callers must check
// Clarification before using Text.
type Answer struct {
	Text          string
	Clarification *Clarification
}

// HandleUserQuestion classifies a free-text question, resolves its
// entity references, assembles context and answers it inside the
// appropriate conversation. Ambiguity comes back as a Clarification,
// never as a guess.
func (o *Orchestrator) HandleUserQuestion(ctx context.Context, question, userID string) (Answer, error) {
	cls, err := o.llm.Classify(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("classify question: %w", err)
	}

	rc, err := o.resolver.Resolve(ctx, cls, userID)
	if err != nil {
		return Answer{}, fmt.Errorf("resolve context: %w", err)
	}
	if rc.NeedsClarification {
		return Answer{Clarification: &Clarification{
			Prompt:  "Which one did you mean?",
			Options: rc.Candidates,
		}}, nil
	}
	if rc.CampaignID == "" && rc.ProposalID == "" && len(rc.FallbackCampaigns) > 0 {
		return Answer{Clarification: &Clarification{
			Prompt:  "I wasn't sure which campaign you meant. Pick one:",
			Options: rc.FallbackCampaigns,
		}}, nil
	}

	sess, err := o.store.GetSession(ctx, userID)
	if err != nil {
		return Answer{}, err
	}

	// A newly resolved entity switches focus (archiving the previous
	// conversation); otherwise the session's existing focus holds.
	switch {
	case rc.CampaignID != "" && rc.CampaignID != sess.CurrentCampaignID:
		if err := o.SetCurrentCampaign(ctx, userID, rc.CampaignID); err != nil {
			return Answer{}, err
		}
	case rc.ProposalID != "" && rc.ProposalID != sess.CurrentProposalID:
		if err := o.SetCurrentProposal(ctx, userID, rc.ProposalID); err != nil {
			return Answer{}, err
		}
	default:
		rc.CampaignID = sess.CurrentCampaignID
		rc.ProposalID = sess.CurrentProposalID
	}

	convType, campaignID, proposalID := store.ConvTypeGeneral, "", ""
	switch {
	case rc.CampaignID != "":
		convType, campaignID = store.ConvTypeCampaignAnalysis, rc.CampaignID
	case rc.ProposalID != "":
		convType, proposalID = store.ConvTypeProposal, rc.ProposalID
	}

	conv, err := o.convos.GetOrCreate(ctx, convType, campaignID, proposalID)
	if err != nil {
		return Answer{}, err
	}
	if _, err := o.convos.AddMessage(ctx, conv.ID, store.RoleUser, question, nil); err != nil {
		return Answer{}, err
	}

	data := o.focusData(ctx, campaignID)
	promptContext := o.knowledgeContext(ctx, campaignID) + o.conversationTail(conv)

	answer, err := o.llm.AnswerQuestion(ctx, question, data, promptContext)
	if err != nil {
		return Answer{}, fmt.Errorf("answer question: %w", err)
	}

	if _, err := o.convos.AddMessage(ctx, conv.ID, store.RoleAssistant, answer, nil); err != nil {
		return Answer{}, err
	}
	if err := o.store.SetSessionConversation(ctx, userID, conv.ID); err != nil {
		return Answer{}, err
	}
	return Answer{Text: answer}, nil
}

// focusData renders recent performance for the focused campaign, or a
// short account overview when unfocused.
func (o *Orchestrator) focusData(ctx context.Context, campaignID string) string {
	to := o.now().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -7)
	stats, err := o.store.ListStats(ctx, from, to)
	if err != nil {
		o.logger.Printf("warn: stats for question context: %v", err)
		return ""
	}
	if campaignID != "" {
		filtered := stats[:0]
		for _, s := range stats {
			if s.CampaignID == campaignID {
				filtered = append(filtered, s)
			}
		}
		stats = filtered
	}
	return o.buildComparison(ctx, stats, nil, from, to)
}

// conversationTail renders the trailing turns of the current
// conversation for prompt context.
func (o *Orchestrator) conversationTail(conv store.Conversation) string {
	msgs := conv.Messages
	if tail := o.policy.ConversationTail; len(msgs) > tail {
		msgs = msgs[len(msgs)-tail:]
	}
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nRecent conversation:\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
