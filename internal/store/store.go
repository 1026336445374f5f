// Package store is the relational source of truth: campaigns, stats,
// conversations, proposals, pending actions, knowledge facts and user
// sessions, persisted in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection.
type Store struct {
	DB *sql.DB
}

// Conversation types.
const (
	ConvTypeCampaignAnalysis = "campaign_analysis"
	ConvTypeProposal         = "proposal"
	ConvTypeGeneral          = "general"
)

// Conversation statuses.
const (
	ConvStatusActive   = "active"
	ConvStatusArchived = "archived"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Proposal statuses.
const (
	ProposalStatusDraft       = "draft"
	ProposalStatusDiscussing  = "discussing"
	ProposalStatusApproved    = "approved"
	ProposalStatusRejected    = "rejected"
	ProposalStatusImplemented = "implemented"
)

// Pending-action statuses. pending and approved are the only
// non-terminal states.
const (
	ActionStatusPending  = "pending"
	ActionStatusApproved = "approved"
	ActionStatusRejected = "rejected"
	ActionStatusExecuted = "executed"
	ActionStatusFailed   = "failed"
)

// Campaign mirrors one row of campaigns. ID is the external platform id.
type Campaign struct {
	ID        string
	Name      string
	Status    string
	Settings  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DailyStat is one (campaign, date) aggregate.
type DailyStat struct {
	CampaignID  string
	Date        time.Time
	Impressions int64
	Clicks      int64
	Cost        float64
	Conversions float64
	Revenue     float64
	CTR         float64
	CPA         float64
	ROI         float64
}

// Conversation is a focused thread of messages.
type Conversation struct {
	ID         string
	Type       string
	CampaignID string
	ProposalID string
	Status     string
	Summary    string
	Messages   []Message
	CreatedAt  time.Time
	ArchivedAt *time.Time
}

// Message is one append-only conversation turn.
type Message struct {
	ID             int64
	ConversationID string
	Role           string
	Content        string
	Metadata       json.RawMessage
	CreatedAt      time.Time
}

// Proposal is a drafted new-campaign plan tied 1:1 to a conversation.
type Proposal struct {
	ID             string
	Title          string
	Plan           json.RawMessage
	Status         string
	ConversationID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingAction is one proposed platform mutation awaiting approval.
type PendingAction struct {
	ID         string
	CampaignID string
	Type       string
	Params     json.RawMessage
	Reasoning  string
	Status     string
	MessageID  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// KnowledgeFact is a provenance-tagged assertion.
type KnowledgeFact struct {
	ID         int64
	Source     string
	Fact       string
	Confidence float64
	CampaignID string
	CreatedAt  time.Time
}

// UserSession holds one chat identity's focus pointers.
type UserSession struct {
	UserID                string
	CurrentCampaignID     string
	CurrentProposalID     string
	CurrentConversationID string
	UpdatedAt             time.Time
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// ClaimIdempotency records (scope, key) once; the second claim returns
// false.
func (s *Store) ClaimIdempotency(ctx context.Context, scope, key string) (bool, error) {
	var inserted bool
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO idempotency_keys (scope, key) VALUES ($1,$2) ON CONFLICT DO NOTHING RETURNING true`,
		scope, key).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim idempotency: %w", err)
	}
	return inserted, nil
}

// nullStr maps "" to NULL for nullable text/uuid columns.
func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// strOrEmpty reads a nullable column back into "".
type nullString struct{ sql.NullString }

func (n nullString) val() string {
	if n.Valid {
		return n.String
	}
	return ""
}
