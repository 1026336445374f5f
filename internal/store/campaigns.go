package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertCampaign inserts or refreshes a campaign from a platform sync.
func (s *Store) UpsertCampaign(ctx context.Context, c Campaign) error {
	settings := c.Settings
	if len(settings) == 0 {
		settings = []byte("{}")
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO campaigns (id, name, status, settings, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW())
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  status = EXCLUDED.status,
  settings = EXCLUDED.settings,
  updated_at = NOW();
`, c.ID, c.Name, c.Status, []byte(settings))
	if err != nil {
		return fmt.Errorf("upsert campaign %s: %w", c.ID, err)
	}
	return nil
}

// GetCampaign fetches one campaign by external id.
func (s *Store) GetCampaign(ctx context.Context, id string) (Campaign, bool, error) {
	var c Campaign
	err := s.DB.QueryRowContext(ctx, `
SELECT id, name, status, settings, created_at, updated_at
FROM campaigns
WHERE id=$1
`, id).Scan(&c.ID, &c.Name, &c.Status, &c.Settings, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return Campaign{}, false, nil
	}
	if err != nil {
		return Campaign{}, false, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return c, true, nil
}

// ListCampaigns returns campaigns, optionally filtered by status.
func (s *Store) ListCampaigns(ctx context.Context, status string) ([]Campaign, error) {
	query := `
SELECT id, name, status, settings, created_at, updated_at
FROM campaigns
ORDER BY name
`
	args := []interface{}{}
	if status != "" {
		query = `
SELECT id, name, status, settings, created_at, updated_at
FROM campaigns
WHERE status=$1
ORDER BY name
`
		args = append(args, status)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.Settings, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
