// Package action implements the human-in-the-loop approval state machine
// for platform-mutating actions: pending -> {approved, rejected},
// approved -> {executed, failed}.
package action

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// ErrNotFound marks a missing action id.
var ErrNotFound = errors.New("action not found")

// ErrExpired marks an action past its validity window; expiry is an
// implicit rejection.
var ErrExpired = errors.New("action expired")

var (
	actionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpilot_actions_executed_total",
		Help: "Pending actions executed against the ad platform, by type.",
	}, []string{"type"})
	actionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adpilot_actions_expired_total",
		Help: "Pending actions auto-rejected at execution time for exceeding their TTL.",
	})
)

// Store is the slice of the relational store the manager needs.
type Store interface {
	CreateAction(ctx context.Context, campaignID, actionType string, params []byte, reasoning string) (store.PendingAction, error)
	GetAction(ctx context.Context, id string) (store.PendingAction, bool, error)
	TransitionAction(ctx context.Context, id, from, to string) (bool, error)
	SetActionMessageID(ctx context.Context, id string, messageID int64) error
}

// AuditLog receives one entry per executed action.
type AuditLog interface {
	AppendAudit(actionID, actionType, campaignID, reasoning, params string) error
}

// Result reports the state an action ended in after an Execute or Reject
// call.
type Result struct {
	Action store.PendingAction
	// AlreadyTerminal is set when the call was a no-op because the action
	// had already reached a terminal state.
	AlreadyTerminal bool
}

// Manager drives the approval state machine.
type Manager struct {
	store    Store
	platform direct.Client
	audit    AuditLog
	logger   *log.Logger
	ttl      time.Duration
	now      func() time.Time
}

// New creates a Manager. ttl bounds how long a pending action stays
// executable.
func New(st Store, platform direct.Client, audit AuditLog, ttl time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[ACTION] ", log.LstdFlags)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		store:    st,
		platform: platform,
		audit:    audit,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create validates the params and persists a new pending action.
func (m *Manager) Create(ctx context.Context, campaignID, actionType string, params []byte, reasoning string) (store.PendingAction, error) {
	if _, err := DecodeParams(actionType, params); err != nil {
		return store.PendingAction{}, err
	}
	return m.store.CreateAction(ctx, campaignID, actionType, params, reasoning)
}

// RecordConfirmation stores the chat message id carrying the approval
// card for an action.
func (m *Manager) RecordConfirmation(ctx context.Context, actionID string, messageID int64) error {
	return m.store.SetActionMessageID(ctx, actionID, messageID)
}

func isTerminal(status string) bool {
	switch status {
	case store.ActionStatusExecuted, store.ActionStatusFailed, store.ActionStatusRejected:
		return true
	}
	return false
}

// Execute runs an approved (or freshly approved) action against the
// platform. Expired actions are rejected instead of executed. A terminal
// action is never re-executed; the call reports its state and does
// nothing.
func (m *Manager) Execute(ctx context.Context, actionID string) (Result, error) {
	a, ok, err := m.store.GetAction(ctx, actionID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}
	if isTerminal(a.Status) {
		return Result{Action: a, AlreadyTerminal: true}, nil
	}

	if m.now().Sub(a.CreatedAt) > m.ttl {
		moved, err := m.store.TransitionAction(ctx, a.ID, a.Status, store.ActionStatusRejected)
		if err != nil {
			return Result{}, err
		}
		if !moved {
			// Lost a race; report whatever state the winner left behind.
			a, _, err = m.store.GetAction(ctx, actionID)
			if err != nil {
				return Result{}, err
			}
			return Result{Action: a, AlreadyTerminal: isTerminal(a.Status)}, nil
		}
		a.Status = store.ActionStatusRejected
		actionsExpired.Inc()
		return Result{Action: a}, fmt.Errorf("%w: created %s", ErrExpired, a.CreatedAt.Format(time.RFC3339))
	}

	// Invoking execute is the human approval; a still-pending action
	// passes through approved first.
	if a.Status == store.ActionStatusPending {
		moved, err := m.store.TransitionAction(ctx, a.ID, store.ActionStatusPending, store.ActionStatusApproved)
		if err != nil {
			return Result{}, err
		}
		if !moved {
			// Lost a race; report whatever state the winner left behind.
			a, _, err = m.store.GetAction(ctx, actionID)
			if err != nil {
				return Result{}, err
			}
			return Result{Action: a, AlreadyTerminal: isTerminal(a.Status)}, nil
		}
		a.Status = store.ActionStatusApproved
	}

	params, err := DecodeParams(a.Type, a.Params)
	if err != nil {
		return Result{}, err
	}

	if err := m.dispatch(ctx, a, params); err != nil {
		if _, terr := m.store.TransitionAction(ctx, a.ID, store.ActionStatusApproved, store.ActionStatusFailed); terr != nil {
			m.logger.Printf("error: mark action %s failed: %v", a.ID, terr)
		}
		a.Status = store.ActionStatusFailed
		return Result{Action: a}, fmt.Errorf("execute %s action %s: %w", a.Type, a.ID, err)
	}

	moved, err := m.store.TransitionAction(ctx, a.ID, store.ActionStatusApproved, store.ActionStatusExecuted)
	if err != nil {
		return Result{}, err
	}
	if moved {
		a.Status = store.ActionStatusExecuted
		actionsExecuted.WithLabelValues(a.Type).Inc()
		if m.audit != nil {
			if err := m.audit.AppendAudit(a.ID, a.Type, a.CampaignID, a.Reasoning, string(a.Params)); err != nil {
				m.logger.Printf("warn: audit entry for action %s failed: %v", a.ID, err)
			}
		}
	}
	return Result{Action: a}, nil
}

// Reject moves a non-terminal action to rejected. Rejecting a terminal
// action is a no-op that reports the terminal state.
func (m *Manager) Reject(ctx context.Context, actionID string) (Result, error) {
	a, ok, err := m.store.GetAction(ctx, actionID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}
	if isTerminal(a.Status) {
		return Result{Action: a, AlreadyTerminal: true}, nil
	}
	if _, err := m.store.TransitionAction(ctx, a.ID, a.Status, store.ActionStatusRejected); err != nil {
		return Result{}, err
	}
	a.Status = store.ActionStatusRejected
	return Result{Action: a}, nil
}

// dispatch routes one action to its platform call.
func (m *Manager) dispatch(ctx context.Context, a store.PendingAction, params Params) error {
	switch p := params.(type) {
	case *UpdateBidParams:
		return m.platform.UpdateBids(ctx, a.CampaignID, p.BidMicros)
	case *NegativeKeywordsParams:
		return m.platform.AddNegativeKeywords(ctx, a.CampaignID, p.Keywords)
	case *SuspendResumeParams:
		if a.Type == TypeResumeCampaign {
			return m.platform.ResumeCampaigns(ctx, []string{a.CampaignID})
		}
		return m.platform.SuspendCampaigns(ctx, []string{a.CampaignID})
	case *UpdateBudgetParams:
		return m.platform.UpdateBudget(ctx, a.CampaignID, p.AmountMicros, p.Mode)
	case *UpdateAdParams:
		return m.platform.UpdateAds(ctx, a.CampaignID, p.Title, p.Text)
	case *UpdateScheduleParams:
		return m.platform.UpdateSchedule(ctx, a.CampaignID, p.Schedule)
	case *UpdateBidModifierParams:
		return m.platform.UpdateBidModifiers(ctx, a.CampaignID, p.ModifierType, p.Adjustment)
	default:
		return fmt.Errorf("%w: no dispatch for %T", ErrValidation, params)
	}
}
