package core

import (
	"context"
	"fmt"
)

// SetCurrentCampaign switches the session's focus to a campaign. The
// previous conversation is archived first; no history is silently
// dropped. Setting the campaign clears any proposal focus.
func (o *Orchestrator) SetCurrentCampaign(ctx context.Context, userID, campaignID string) error {
	if _, ok, err := o.store.GetCampaign(ctx, campaignID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: campaign %s", ErrNotFound, campaignID)
	}
	if err := o.convos.ArchiveCurrent(ctx, userID); err != nil {
		return err
	}
	return o.store.SetSessionCampaign(ctx, userID, campaignID)
}

// SetCurrentProposal switches the session's focus to a proposal,
// clearing any campaign focus.
func (o *Orchestrator) SetCurrentProposal(ctx context.Context, userID, proposalID string) error {
	if _, ok, err := o.store.GetProposal(ctx, proposalID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if err := o.convos.ArchiveCurrent(ctx, userID); err != nil {
		return err
	}
	return o.store.SetSessionProposal(ctx, userID, proposalID)
}

// ClearCurrentContext drops all focus, archiving the conversation the
// session was in.
func (o *Orchestrator) ClearCurrentContext(ctx context.Context, userID string) error {
	if err := o.convos.ArchiveCurrent(ctx, userID); err != nil {
		return err
	}
	return o.store.ClearSessionFocus(ctx, userID)
}
