package suggest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wmsforge/internal/config"
	"wmsforge/internal/domain"
)

func testSuggester() *Canned {
	c := FromConfig(config.Default())
	c.Delay = 0
	n := 0
	c.NewID = func() string {
		n++
		return fmt.Sprintf("cand-%d", n)
	}
	return c
}

func liftWMS() domain.WMS {
	return domain.WMS{
		ID:    "w1",
		Title: "Turbine Lift",
		Steps: []domain.WorkStep{
			{ID: "s1", Title: "Position crane", Order: 1},
			{ID: "s2", Title: "Rig load", Order: 2},
			{ID: "s3", Title: "Lift and set", Order: 3},
		},
	}
}

func TestSuggestLiftingMapsStepRefs(t *testing.T) {
	got, err := testSuggester().SuggestRisks(context.Background(), liftWMS(), config.AnalysisLifting)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	// step_ref 1 and 2 resolve to the actual step ids at those positions.
	if len(got[0].AssociatedStepIDs) != 1 || got[0].AssociatedStepIDs[0] != "s1" {
		t.Fatalf("candidate 0 association = %v", got[0].AssociatedStepIDs)
	}
	if len(got[1].AssociatedStepIDs) != 1 || got[1].AssociatedStepIDs[0] != "s2" {
		t.Fatalf("candidate 1 association = %v", got[1].AssociatedStepIDs)
	}
	for _, r := range got {
		if r.Source != domain.SourceAI {
			t.Fatalf("candidate %s source = %s", r.ID, r.Source)
		}
		if r.WMSID != "w1" {
			t.Fatalf("candidate %s wmsId = %s", r.ID, r.WMSID)
		}
	}
}

func TestSuggestSkipsOutOfRangeStepRef(t *testing.T) {
	w := liftWMS()
	w.Steps = w.Steps[:1]
	got, err := testSuggester().SuggestRisks(context.Background(), w, config.AnalysisLifting)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	// "Overhead obstruction" refers to step 2 which does not exist here.
	if len(got[1].AssociatedStepIDs) != 0 {
		t.Fatalf("out-of-range ref should stay unattached, got %v", got[1].AssociatedStepIDs)
	}
}

func TestSuggestGeneralDerivesStepRisks(t *testing.T) {
	got, err := testSuggester().SuggestRisks(context.Background(), liftWMS(), config.AnalysisGeneral)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	// Two step-derived candidates for the first two steps, then the catalog.
	if len(got) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(got))
	}
	if got[0].Description != "Risk for step 1: Position crane" {
		t.Fatalf("candidate 0 description = %q", got[0].Description)
	}
	if got[0].Mitigation != "Ensure proper safety procedures for position crane" {
		t.Fatalf("candidate 0 mitigation = %q", got[0].Mitigation)
	}
	if got[1].AssociatedStepIDs[0] != "s2" {
		t.Fatalf("candidate 1 association = %v", got[1].AssociatedStepIDs)
	}
	if got[0].Severity != 3 || got[0].Likelihood != 3 {
		t.Fatalf("derived ratings = %d/%d", got[0].Severity, got[0].Likelihood)
	}
}

func TestSuggestUnknownAnalysis(t *testing.T) {
	if _, err := testSuggester().SuggestRisks(context.Background(), liftWMS(), "weather"); err == nil {
		t.Fatalf("expected error for unknown analysis")
	}
}

func TestSuggestHonorsCancellation(t *testing.T) {
	c := testSuggester()
	c.Delay = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.SuggestRisks(ctx, liftWMS(), config.AnalysisGeneral); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
