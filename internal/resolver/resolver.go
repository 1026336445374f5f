// Package resolver maps free-text classification hints onto concrete
// campaign and proposal entities. Resolution is best-effort: absence is
// expressed by empty fields, never by an error.
package resolver

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// Directory is the slice of the store the resolver needs.
type Directory interface {
	GetCampaign(ctx context.Context, id string) (store.Campaign, bool, error)
	ListCampaigns(ctx context.Context, status string) ([]store.Campaign, error)
	ListOpenProposals(ctx context.Context) ([]store.Proposal, error)
}

// Candidate is one possible referent offered for disambiguation.
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // campaign | proposal
}

// ResolvedContext is the outcome of resolving a classification.
type ResolvedContext struct {
	CampaignID    string
	CampaignName  string
	ProposalID    string
	ProposalTitle string

	// NeedsClarification means multiple candidates matched; Candidates
	// lists them and nothing is bound.
	NeedsClarification bool
	Candidates         []Candidate

	// FallbackCampaigns is a menu of active campaigns offered when
	// nothing resolved and classification confidence was low.
	FallbackCampaigns []Candidate
}

// Resolver performs fuzzy entity resolution over the campaign and
// proposal directories.
type Resolver struct {
	dir    Directory
	logger *log.Logger

	clarifyThreshold float64
	maxFallback      int
}

// New creates a Resolver with policy from config.
func New(dir Directory, policy config.PolicyConfig, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESOLVE] ", log.LstdFlags)
	}
	return &Resolver{
		dir:              dir,
		logger:           logger,
		clarifyThreshold: policy.ClarifyThreshold,
		maxFallback:      policy.MaxFallbackCampaigns,
	}
}

// Resolve maps a classification onto entities for the given user.
func (r *Resolver) Resolve(ctx context.Context, cls llm.Classification, userID string) (ResolvedContext, error) {
	var out ResolvedContext

	if hint := strings.TrimSpace(cls.CampaignHint); hint != "" {
		if err := r.resolveCampaign(ctx, hint, &out); err != nil {
			return ResolvedContext{}, err
		}
	}
	if out.NeedsClarification {
		return out, nil
	}

	if hint := strings.TrimSpace(cls.ProposalHint); hint != "" {
		if err := r.resolveProposal(ctx, hint, &out); err != nil {
			return ResolvedContext{}, err
		}
	}
	if out.NeedsClarification {
		return out, nil
	}

	// Nothing bound and the classifier itself was unsure: offer a menu
	// instead of guessing.
	if out.CampaignID == "" && out.ProposalID == "" && cls.Confidence < r.clarifyThreshold {
		campaigns, err := r.dir.ListCampaigns(ctx, "ON")
		if err != nil {
			return ResolvedContext{}, fmt.Errorf("list active campaigns: %w", err)
		}
		for i, c := range campaigns {
			if i >= r.maxFallback {
				break
			}
			out.FallbackCampaigns = append(out.FallbackCampaigns, Candidate{ID: c.ID, Name: c.Name, Kind: "campaign"})
		}
	}
	return out, nil
}

func (r *Resolver) resolveCampaign(ctx context.Context, hint string, out *ResolvedContext) error {
	// An exact external-id reference short-circuits the fuzzy search.
	if c, ok, err := r.dir.GetCampaign(ctx, hint); err != nil {
		return fmt.Errorf("lookup campaign id: %w", err)
	} else if ok {
		out.CampaignID = c.ID
		out.CampaignName = c.Name
		return nil
	}

	campaigns, err := r.dir.ListCampaigns(ctx, "")
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}
	docs := make([]nameDoc, 0, len(campaigns))
	for _, c := range campaigns {
		docs = append(docs, nameDoc{ID: c.ID, Name: c.Name})
	}
	hits, err := matchNames(docs, hint)
	if err != nil {
		// Index trouble downgrades to "unresolved", not a user-facing error.
		r.logger.Printf("warn: campaign name search failed: %v", err)
		return nil
	}

	switch len(hits) {
	case 0:
	case 1:
		out.CampaignID = hits[0].ID
		out.CampaignName = hits[0].Name
	default:
		out.NeedsClarification = true
		for _, h := range hits {
			out.Candidates = append(out.Candidates, Candidate{ID: h.ID, Name: h.Name, Kind: "campaign"})
		}
	}
	return nil
}

func (r *Resolver) resolveProposal(ctx context.Context, hint string, out *ResolvedContext) error {
	proposals, err := r.dir.ListOpenProposals(ctx)
	if err != nil {
		return fmt.Errorf("list proposals: %w", err)
	}
	docs := make([]nameDoc, 0, len(proposals))
	for _, p := range proposals {
		docs = append(docs, nameDoc{ID: p.ID, Name: p.Title})
	}
	hits, err := matchNames(docs, hint)
	if err != nil {
		r.logger.Printf("warn: proposal title search failed: %v", err)
		return nil
	}

	switch len(hits) {
	case 0:
	case 1:
		out.ProposalID = hits[0].ID
		out.ProposalTitle = hits[0].Name
	default:
		out.NeedsClarification = true
		for _, h := range hits {
			out.Candidates = append(out.Candidates, Candidate{ID: h.ID, Name: h.Name, Kind: "proposal"})
		}
	}
	return nil
}

type nameDoc struct {
	ID   string `json:"-"`
	Name string `json:"name"`
}

// matchNames runs a fuzzy/prefix disjunction over an in-memory bleve
// index of entity names. The directories are small (tens of rows), so
// rebuilding the index per resolve is cheaper than keeping it in sync.
func matchNames(docs []nameDoc, hint string) ([]nameDoc, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	defer idx.Close()

	byID := make(map[string]nameDoc, len(docs))
	for _, d := range docs {
		if err := idx.Index(d.ID, d); err != nil {
			return nil, fmt.Errorf("index %s: %w", d.ID, err)
		}
		byID[d.ID] = d
	}

	match := bleve.NewMatchQuery(hint)
	match.SetField("name")
	match.SetFuzziness(1)
	prefix := bleve.NewPrefixQuery(strings.ToLower(hint))
	prefix.SetField("name")
	req := bleve.NewSearchRequest(query.NewDisjunctionQuery([]query.Query{match, prefix}))
	req.Size = 25

	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var out []nameDoc
	for _, hit := range res.Hits {
		if d, ok := byID[hit.ID]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}
