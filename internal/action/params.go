package action

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action types. Each maps to exactly one platform mutation.
const (
	TypeUpdateBid           = "update_bid"
	TypeAddNegativeKeywords = "add_negative_keywords"
	TypeSuspendCampaign     = "suspend_campaign"
	TypeResumeCampaign      = "resume_campaign"
	TypeUpdateBudget        = "update_budget"
	TypeUpdateAd            = "update_ad"
	TypeUpdateSchedule      = "update_schedule"
	TypeUpdateBidModifier   = "update_bid_modifier"
)

// ErrValidation marks malformed parameters or an unknown action type,
// detected before any platform call.
var ErrValidation = errors.New("action validation failed")

// Params is a validated, typed parameter set for one action type.
type Params interface {
	Validate() error
}

// UpdateBidParams sets a new search bid.
type UpdateBidParams struct {
	BidMicros int64 `json:"bid_micros"`
}

func (p UpdateBidParams) Validate() error {
	if p.BidMicros <= 0 {
		return fmt.Errorf("%w: bid_micros must be positive", ErrValidation)
	}
	return nil
}

// NegativeKeywordsParams appends negative keywords.
type NegativeKeywordsParams struct {
	Keywords []string `json:"keywords"`
}

func (p NegativeKeywordsParams) Validate() error {
	if len(p.Keywords) == 0 {
		return fmt.Errorf("%w: keywords must not be empty", ErrValidation)
	}
	return nil
}

// SuspendResumeParams has no parameters; the campaign id on the action
// is enough.
type SuspendResumeParams struct{}

func (SuspendResumeParams) Validate() error { return nil }

// UpdateBudgetParams changes the daily budget.
type UpdateBudgetParams struct {
	AmountMicros int64  `json:"amount_micros"`
	Mode         string `json:"mode,omitempty"`
}

func (p UpdateBudgetParams) Validate() error {
	if p.AmountMicros <= 0 {
		return fmt.Errorf("%w: amount_micros must be positive", ErrValidation)
	}
	switch p.Mode {
	case "", "STANDARD", "DISTRIBUTED":
	default:
		return fmt.Errorf("%w: unknown budget mode %q", ErrValidation, p.Mode)
	}
	return nil
}

// UpdateAdParams rewrites ad copy.
type UpdateAdParams struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (p UpdateAdParams) Validate() error {
	if p.Title == "" && p.Text == "" {
		return fmt.Errorf("%w: ad update needs a title or text", ErrValidation)
	}
	return nil
}

// UpdateScheduleParams replaces the time-targeting schedule.
type UpdateScheduleParams struct {
	Schedule []string `json:"schedule"`
}

func (p UpdateScheduleParams) Validate() error {
	if len(p.Schedule) == 0 {
		return fmt.Errorf("%w: schedule must not be empty", ErrValidation)
	}
	return nil
}

// UpdateBidModifierParams sets one adjustment coefficient.
type UpdateBidModifierParams struct {
	ModifierType string `json:"modifier_type"`
	Adjustment   int    `json:"adjustment"`
}

func (p UpdateBidModifierParams) Validate() error {
	if p.ModifierType == "" {
		return fmt.Errorf("%w: modifier_type is required", ErrValidation)
	}
	if p.Adjustment < -100 || p.Adjustment > 1300 {
		return fmt.Errorf("%w: adjustment %d out of range", ErrValidation, p.Adjustment)
	}
	return nil
}

// DecodeParams parses and validates raw JSON params for an action type.
func DecodeParams(actionType string, raw []byte) (Params, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var p Params
	switch actionType {
	case TypeUpdateBid:
		p = &UpdateBidParams{}
	case TypeAddNegativeKeywords:
		p = &NegativeKeywordsParams{}
	case TypeSuspendCampaign, TypeResumeCampaign:
		p = &SuspendResumeParams{}
	case TypeUpdateBudget:
		p = &UpdateBudgetParams{}
	case TypeUpdateAd:
		p = &UpdateAdParams{}
	case TypeUpdateSchedule:
		p = &UpdateScheduleParams{}
	case TypeUpdateBidModifier:
		p = &UpdateBidModifierParams{}
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrValidation, actionType)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
