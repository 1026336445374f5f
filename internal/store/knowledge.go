package store

import (
	"context"
	"fmt"
)

// AddFact appends one knowledge fact. Facts are refreshed by appending,
// never mutated.
func (s *Store) AddFact(ctx context.Context, f KnowledgeFact) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO knowledge_base (source, fact, confidence, campaign_id, created_at)
VALUES ($1,$2,$3,$4,NOW())
RETURNING id
`, f.Source, f.Fact, f.Confidence, nullStr(f.CampaignID)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add fact: %w", err)
	}
	return id, nil
}

// ListFacts returns the most recent facts, optionally scoped to a
// campaign. campaignID == "" returns global facts too.
func (s *Store) ListFacts(ctx context.Context, campaignID string, limit int) ([]KnowledgeFact, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, source, fact, confidence, campaign_id, created_at
FROM knowledge_base
ORDER BY created_at DESC
LIMIT $1
`
	args := []interface{}{limit}
	if campaignID != "" {
		query = `
SELECT id, source, fact, confidence, campaign_id, created_at
FROM knowledge_base
WHERE campaign_id=$2 OR campaign_id IS NULL
ORDER BY created_at DESC
LIMIT $1
`
		args = append(args, campaignID)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeFact
	for rows.Next() {
		var (
			f    KnowledgeFact
			camp nullString
		)
		if err := rows.Scan(&f.ID, &f.Source, &f.Fact, &f.Confidence, &camp, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.CampaignID = camp.val()
		out = append(out, f)
	}
	return out, rows.Err()
}
