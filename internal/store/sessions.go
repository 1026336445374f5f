package store

import (
	"context"
	"fmt"
)

// GetSession returns the session for a chat identity, creating an empty
// one on first sight.
func (s *Store) GetSession(ctx context.Context, userID string) (UserSession, error) {
	var (
		sess UserSession
		camp nullString
		prop nullString
		conv nullString
	)
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO user_sessions (user_id, updated_at)
VALUES ($1, NOW())
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING user_id, current_campaign_id, current_proposal_id, current_conversation_id, updated_at
`, userID).Scan(&sess.UserID, &camp, &prop, &conv, &sess.UpdatedAt)
	if err != nil {
		return UserSession{}, fmt.Errorf("get session %s: %w", userID, err)
	}
	sess.CurrentCampaignID = camp.val()
	sess.CurrentProposalID = prop.val()
	sess.CurrentConversationID = conv.val()
	return sess, nil
}

// SetSessionCampaign points the session at a campaign. The proposal
// pointer is cleared in the same statement: the two focus pointers are
// mutually exclusive.
func (s *Store) SetSessionCampaign(ctx context.Context, userID, campaignID string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO user_sessions (user_id, current_campaign_id, current_proposal_id, updated_at)
VALUES ($1,$2,NULL,NOW())
ON CONFLICT (user_id) DO UPDATE SET
  current_campaign_id = EXCLUDED.current_campaign_id,
  current_proposal_id = NULL,
  updated_at = NOW();
`, userID, nullStr(campaignID))
	if err != nil {
		return fmt.Errorf("set session campaign: %w", err)
	}
	return nil
}

// SetSessionProposal points the session at a proposal, clearing the
// campaign pointer.
func (s *Store) SetSessionProposal(ctx context.Context, userID, proposalID string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO user_sessions (user_id, current_campaign_id, current_proposal_id, updated_at)
VALUES ($1,NULL,$2,NOW())
ON CONFLICT (user_id) DO UPDATE SET
  current_campaign_id = NULL,
  current_proposal_id = EXCLUDED.current_proposal_id,
  updated_at = NOW();
`, userID, nullStr(proposalID))
	if err != nil {
		return fmt.Errorf("set session proposal: %w", err)
	}
	return nil
}

// SetSessionConversation records the conversation the session is in.
func (s *Store) SetSessionConversation(ctx context.Context, userID, conversationID string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE user_sessions SET current_conversation_id=$2, updated_at=NOW() WHERE user_id=$1
`, userID, nullStr(conversationID))
	if err != nil {
		return fmt.Errorf("set session conversation: %w", err)
	}
	return nil
}

// ClearSessionFocus drops both focus pointers and the conversation
// pointer.
func (s *Store) ClearSessionFocus(ctx context.Context, userID string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE user_sessions
SET current_campaign_id=NULL, current_proposal_id=NULL, current_conversation_id=NULL, updated_at=NOW()
WHERE user_id=$1
`, userID)
	if err != nil {
		return fmt.Errorf("clear session focus: %w", err)
	}
	return nil
}
