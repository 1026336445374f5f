package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateAction persists a new pending action and returns it.
func (s *Store) CreateAction(ctx context.Context, campaignID, actionType string, params []byte, reasoning string) (PendingAction, error) {
	if len(params) == 0 {
		params = []byte("{}")
	}
	id := uuid.NewString()
	var a PendingAction
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO pending_actions (id, campaign_id, action_type, params, reasoning, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,'pending',NOW(),NOW())
RETURNING id, campaign_id, action_type, params, reasoning, status, created_at, updated_at
`, id, campaignID, actionType, params, reasoning).
		Scan(&a.ID, &a.CampaignID, &a.Type, &a.Params, &a.Reasoning, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return PendingAction{}, fmt.Errorf("create action: %w", err)
	}
	return a, nil
}

// GetAction fetches one pending action by id.
func (s *Store) GetAction(ctx context.Context, id string) (PendingAction, bool, error) {
	var (
		a   PendingAction
		mid sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, campaign_id, action_type, params, reasoning, status, message_id, created_at, updated_at
FROM pending_actions
WHERE id=$1
`, id).Scan(&a.ID, &a.CampaignID, &a.Type, &a.Params, &a.Reasoning, &a.Status, &mid, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return PendingAction{}, false, nil
	}
	if err != nil {
		return PendingAction{}, false, fmt.Errorf("get action %s: %w", id, err)
	}
	if mid.Valid {
		a.MessageID = mid.Int64
	}
	return a, true, nil
}

// TransitionAction moves an action from one status to another. The WHERE
// guard keeps transitions monotonic under concurrent execution; false
// means the action was not in the expected source status.
func (s *Store) TransitionAction(ctx context.Context, id, from, to string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
UPDATE pending_actions
SET status=$3, updated_at=NOW()
WHERE id=$1 AND status=$2
`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition action %s %s->%s: %w", id, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition action rows: %w", err)
	}
	return n > 0, nil
}

// SetActionMessageID records the chat message carrying the approval card.
func (s *Store) SetActionMessageID(ctx context.Context, id string, messageID int64) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE pending_actions SET message_id=$2, updated_at=NOW() WHERE id=$1
`, id, messageID)
	if err != nil {
		return fmt.Errorf("set action message id: %w", err)
	}
	return nil
}

// ListActionsByStatus returns actions in the given status, oldest first.
func (s *Store) ListActionsByStatus(ctx context.Context, status string) ([]PendingAction, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, campaign_id, action_type, params, reasoning, status, message_id, created_at, updated_at
FROM pending_actions
WHERE status=$1
ORDER BY created_at
`, status)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []PendingAction
	for rows.Next() {
		var (
			a   PendingAction
			mid sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.Type, &a.Params, &a.Reasoning, &a.Status, &mid, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if mid.Valid {
			a.MessageID = mid.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
