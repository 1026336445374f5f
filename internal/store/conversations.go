package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// FindActiveConversation returns the active conversation for the
// (type, campaign, proposal) key, with its messages loaded in order.
func (s *Store) FindActiveConversation(ctx context.Context, convType, campaignID, proposalID string) (Conversation, bool, error) {
	var (
		c    Conversation
		camp nullString
		prop nullString
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, conv_type, campaign_id, proposal_id, status, summary, created_at
FROM conversations
WHERE conv_type=$1 AND COALESCE(campaign_id,'')=$2 AND COALESCE(proposal_id::text,'')=$3 AND status='active'
`, convType, campaignID, proposalID).Scan(&c.ID, &c.Type, &camp, &prop, &c.Status, &c.Summary, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, fmt.Errorf("find active conversation: %w", err)
	}
	c.CampaignID = camp.val()
	c.ProposalID = prop.val()

	msgs, err := s.ListMessages(ctx, c.ID, 0)
	if err != nil {
		return Conversation{}, false, err
	}
	c.Messages = msgs
	return c, true, nil
}

// InsertConversation creates an active conversation for the key. The
// partial unique index makes concurrent inserts race-safe: the loser's
// insert is a no-op and the caller re-reads the winner's row.
func (s *Store) InsertConversation(ctx context.Context, convType, campaignID, proposalID string) (Conversation, bool, error) {
	id := uuid.NewString()
	var inserted string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO conversations (id, conv_type, campaign_id, proposal_id, status, created_at)
VALUES ($1,$2,$3,$4,'active',NOW())
ON CONFLICT (conv_type, COALESCE(campaign_id,''), COALESCE(proposal_id::text,'')) WHERE status='active' DO NOTHING
RETURNING id
`, id, convType, nullStr(campaignID), nullStr(proposalID)).Scan(&inserted)
	if err == sql.ErrNoRows {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, fmt.Errorf("insert conversation: %w", err)
	}
	return Conversation{
		ID:         inserted,
		Type:       convType,
		CampaignID: campaignID,
		ProposalID: proposalID,
		Status:     ConvStatusActive,
	}, true, nil
}

// GetConversation fetches one conversation by id with its messages.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, bool, error) {
	var (
		c    Conversation
		camp nullString
		prop nullString
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, conv_type, campaign_id, proposal_id, status, summary, created_at
FROM conversations
WHERE id=$1
`, id).Scan(&c.ID, &c.Type, &camp, &prop, &c.Status, &c.Summary, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, fmt.Errorf("get conversation %s: %w", id, err)
	}
	c.CampaignID = camp.val()
	c.ProposalID = prop.val()

	msgs, err := s.ListMessages(ctx, c.ID, 0)
	if err != nil {
		return Conversation{}, false, err
	}
	c.Messages = msgs
	return c, true, nil
}

// ArchiveConversation marks a conversation archived and stores its
// summary. Archiving an already-archived conversation is a no-op.
func (s *Store) ArchiveConversation(ctx context.Context, id, summary string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE conversations
SET status='archived', summary=$2, archived_at=NOW()
WHERE id=$1 AND status='active'
`, id, summary)
	if err != nil {
		return fmt.Errorf("archive conversation %s: %w", id, err)
	}
	return nil
}

// AppendMessage appends one turn and returns its id. Messages are never
// edited or deleted.
func (s *Store) AppendMessage(ctx context.Context, m Message) (int64, error) {
	metadata := m.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	var id int64
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO messages (conversation_id, role, content, metadata, created_at)
VALUES ($1,$2,$3,$4,NOW())
RETURNING id
`, m.ConversationID, m.Role, m.Content, []byte(metadata)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return id, nil
}

// ListMessages returns a conversation's messages in time order. A
// positive limit returns only the trailing limit messages.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	query := `
SELECT id, conversation_id, role, content, metadata, created_at
FROM messages
WHERE conversation_id=$1
ORDER BY created_at, id
`
	args := []interface{}{conversationID}
	if limit > 0 {
		query = `
SELECT id, conversation_id, role, content, metadata, created_at
FROM (
  SELECT id, conversation_id, role, content, metadata, created_at
  FROM messages
  WHERE conversation_id=$1
  ORDER BY created_at DESC, id DESC
  LIMIT $2
) tail
ORDER BY created_at, id
`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMessages returns the number of messages in a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id=$1`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
