package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CreateProposalWithConversation persists a draft proposal together with
// its dedicated conversation in one transaction, so a half-created
// proposal can never be observed.
func (s *Store) CreateProposalWithConversation(ctx context.Context, title string, plan []byte) (Proposal, Conversation, error) {
	if len(plan) == 0 {
		plan = []byte("{}")
	}
	proposalID := uuid.NewString()
	conversationID := uuid.NewString()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Proposal{}, Conversation{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversations (id, conv_type, proposal_id, status, created_at)
VALUES ($1,$2,$3,'active',NOW())
`, conversationID, ConvTypeProposal, proposalID); err != nil {
		return Proposal{}, Conversation{}, fmt.Errorf("insert proposal conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO proposals (id, title, plan, status, conversation_id, created_at, updated_at)
VALUES ($1,$2,$3,'draft',$4,NOW(),NOW())
`, proposalID, title, plan, conversationID); err != nil {
		return Proposal{}, Conversation{}, fmt.Errorf("insert proposal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Proposal{}, Conversation{}, fmt.Errorf("commit proposal: %w", err)
	}

	return Proposal{
			ID:             proposalID,
			Title:          title,
			Plan:           plan,
			Status:         ProposalStatusDraft,
			ConversationID: conversationID,
		}, Conversation{
			ID:         conversationID,
			Type:       ConvTypeProposal,
			ProposalID: proposalID,
			Status:     ConvStatusActive,
		}, nil
}

// GetProposal fetches one proposal by id.
func (s *Store) GetProposal(ctx context.Context, id string) (Proposal, bool, error) {
	var (
		p    Proposal
		conv nullString
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, title, plan, status, conversation_id, created_at, updated_at
FROM proposals
WHERE id=$1
`, id).Scan(&p.ID, &p.Title, &p.Plan, &p.Status, &conv, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return Proposal{}, false, nil
	}
	if err != nil {
		return Proposal{}, false, fmt.Errorf("get proposal %s: %w", id, err)
	}
	p.ConversationID = conv.val()
	return p, true, nil
}

// ListOpenProposals returns proposals that have not been rejected.
func (s *Store) ListOpenProposals(ctx context.Context) ([]Proposal, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, plan, status, conversation_id, created_at, updated_at
FROM proposals
WHERE status <> 'rejected'
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list open proposals: %w", err)
	}
	defer rows.Close()

	var out []Proposal
	for rows.Next() {
		var (
			p    Proposal
			conv nullString
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Plan, &p.Status, &conv, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		p.ConversationID = conv.val()
		out = append(out, p)
	}
	return out, rows.Err()
}

// TransitionProposal moves a proposal from one of the allowed statuses to
// the target status. Returns false when the proposal was not in an
// allowed status (or does not exist).
func (s *Store) TransitionProposal(ctx context.Context, id, to string, from ...string) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition proposal: no source statuses")
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE proposals
SET status=$2, updated_at=NOW()
WHERE id=$1 AND status = ANY($3)
`, id, to, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("transition proposal %s -> %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition proposal rows: %w", err)
	}
	return n > 0, nil
}
