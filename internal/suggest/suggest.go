// Package suggest produces draft risk candidates for a work method
// statement. Candidates carry transient ids and the ai source marker; they
// only become real risks once the caller adds them through the store, which
// mints fresh ids.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"wmsforge/internal/config"
	"wmsforge/internal/domain"
)

// Suggester proposes risks for a document under a given analysis type.
type Suggester interface {
	SuggestRisks(ctx context.Context, w domain.WMS, analysis string) ([]domain.Risk, error)
}

// Canned serves suggestions from a fixed catalog after a configurable
// think-time delay.
type Canned struct {
	Catalog map[string][]config.Suggestion
	Delay   time.Duration
	// NewID mints transient candidate ids; injectable for tests.
	NewID func() string
}

// FromConfig builds a Canned suggester from the workspace config.
func FromConfig(cfg *config.Config) *Canned {
	return &Canned{
		Catalog: cfg.Suggestions.Catalog,
		Delay:   time.Duration(cfg.Suggestions.DelayMS) * time.Millisecond,
	}
}

func (c *Canned) SuggestRisks(ctx context.Context, w domain.WMS, analysis string) ([]domain.Risk, error) {
	switch analysis {
	case config.AnalysisLifting, config.AnalysisTransport, config.AnalysisOcean, config.AnalysisGeneral:
	default:
		return nil, fmt.Errorf("unknown analysis type %q", analysis)
	}
	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var out []domain.Risk
	if analysis == config.AnalysisGeneral {
		// General analysis leads with step-derived candidates for the first
		// couple of steps, then the catalog entries.
		for i, step := range w.Steps {
			if i >= 2 {
				break
			}
			out = append(out, domain.Risk{
				ID:                c.newID(),
				WMSID:             w.ID,
				Type:              domain.RiskGeneral,
				Description:       fmt.Sprintf("Risk for step %d: %s", step.Order, step.Title),
				Severity:          3,
				Likelihood:        3,
				Mitigation:        fmt.Sprintf("Ensure proper safety procedures for %s", strings.ToLower(step.Title)),
				AssociatedStepIDs: []string{step.ID},
				Source:            domain.SourceAI,
			})
		}
	}
	for _, entry := range c.Catalog[analysis] {
		r := domain.Risk{
			ID:          c.newID(),
			WMSID:       w.ID,
			Type:        domain.RiskCategory(entry.Category),
			Description: entry.Description,
			Severity:    entry.Severity,
			Likelihood:  entry.Likelihood,
			Mitigation:  entry.Mitigation,
			Source:      domain.SourceAI,
		}
		// A step_ref beyond the document's step count stays unattached rather
		// than dangling.
		if entry.StepRef > 0 && entry.StepRef <= len(w.Steps) {
			r.AssociatedStepIDs = []string{w.Steps[entry.StepRef-1].ID}
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Canned) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}
