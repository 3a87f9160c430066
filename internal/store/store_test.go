package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wmsforge/internal/domain"
	"wmsforge/internal/risk"
	"wmsforge/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *storage.Memory) {
	t.Helper()
	kv := storage.NewMemory()
	s := New(kv)
	s.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	s.NewID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s, kv
}

func mustProject(t *testing.T, s *Store, name string) domain.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), name, "Houston", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func mustWMS(t *testing.T, s *Store, projectID, title string) domain.WMS {
	t.Helper()
	w, err := s.CreateWMS(context.Background(), projectID, title, "scope")
	if err != nil {
		t.Fatalf("create wms: %v", err)
	}
	return w
}

func mustStep(t *testing.T, s *Store, projectID, wmsID, title string) domain.WorkStep {
	t.Helper()
	st, err := s.AddStep(context.Background(), projectID, wmsID, title, "", "")
	if err != nil {
		t.Fatalf("add step: %v", err)
	}
	return st
}

func TestCreateProjectSelectsCurrent(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "Solar Farm Installation")

	cur, ok := s.CurrentProject()
	if !ok || cur.ID != p.ID {
		t.Fatalf("expected %s current, got %v ok=%v", p.ID, cur.ID, ok)
	}
	if len(p.WMSList) != 0 || p.WMSList == nil {
		t.Fatalf("expected empty non-nil wms list")
	}
	if p.CreatedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected createdAt %s", p.CreatedAt)
	}
}

func TestUpdateProjectUnknownID(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.UpdateProject(context.Background(), domain.Project{ID: "ghost", Name: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteProjectClearsSelection(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "Port Works")
	if err := s.DeleteProject(context.Background(), p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.CurrentProject(); ok {
		t.Fatalf("expected no current project after deletion")
	}
	if _, err := s.GetProject(p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetCurrentProjectUnknownIsNoOp(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "A")
	if err := s.SetCurrentProject(context.Background(), "ghost"); err != nil {
		t.Fatalf("set current: %v", err)
	}
	cur, ok := s.CurrentProject()
	if !ok || cur.ID != p.ID {
		t.Fatalf("selection should be unchanged, got %v ok=%v", cur.ID, ok)
	}
}

func TestWMSLinkedToProject(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "Wind Farm")
	w := mustWMS(t, s, p.ID, "Turbine Lift Plan")

	if w.ProjectID != p.ID {
		t.Fatalf("wms projectId = %s, want %s", w.ProjectID, p.ID)
	}
	got, err := s.GetWMS(p.ID, w.ID)
	if err != nil {
		t.Fatalf("get wms: %v", err)
	}
	if got.Title != "Turbine Lift Plan" {
		t.Fatalf("unexpected title %s", got.Title)
	}
	fresh, err := s.GetProject(p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if len(fresh.WMSList) != 1 || fresh.WMSList[0].ID != w.ID {
		t.Fatalf("wms not embedded in project")
	}
}

func TestStepOrderDenseAfterDelete(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	w := mustWMS(t, s, p.ID, "W")
	a := mustStep(t, s, p.ID, w.ID, "first")
	b := mustStep(t, s, p.ID, w.ID, "second")
	c := mustStep(t, s, p.ID, w.ID, "third")
	if a.Order != 1 || b.Order != 2 || c.Order != 3 {
		t.Fatalf("orders on creation = %d,%d,%d", a.Order, b.Order, c.Order)
	}

	if err := s.DeleteStep(context.Background(), p.ID, w.ID, b.ID); err != nil {
		t.Fatalf("delete step: %v", err)
	}
	got, _ := s.GetWMS(p.ID, w.ID)
	if len(got.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(got.Steps))
	}
	if got.Steps[0].ID != a.ID || got.Steps[0].Order != 1 {
		t.Fatalf("step[0] = %s order %d", got.Steps[0].ID, got.Steps[0].Order)
	}
	if got.Steps[1].ID != c.ID || got.Steps[1].Order != 2 {
		t.Fatalf("step[1] = %s order %d", got.Steps[1].ID, got.Steps[1].Order)
	}
}

func TestMoveStepRenumbers(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	w := mustWMS(t, s, p.ID, "W")
	a := mustStep(t, s, p.ID, w.ID, "a")
	b := mustStep(t, s, p.ID, w.ID, "b")
	c := mustStep(t, s, p.ID, w.ID, "c")

	if err := s.MoveStep(context.Background(), p.ID, w.ID, c.ID, 1); err != nil {
		t.Fatalf("move: %v", err)
	}
	got, _ := s.GetWMS(p.ID, w.ID)
	ids := []string{got.Steps[0].ID, got.Steps[1].ID, got.Steps[2].ID}
	want := []string{c.ID, a.ID, b.ID}
	for i := range ids {
		if ids[i] != want[i] {
			t.Fatalf("order after move = %v, want %v", ids, want)
		}
		if got.Steps[i].Order != i+1 {
			t.Fatalf("step %d has order %d", i, got.Steps[i].Order)
		}
	}

	// Out-of-range positions clamp instead of failing.
	if err := s.MoveStep(context.Background(), p.ID, w.ID, c.ID, 99); err != nil {
		t.Fatalf("move clamp: %v", err)
	}
	got, _ = s.GetWMS(p.ID, w.ID)
	if got.Steps[2].ID != c.ID {
		t.Fatalf("expected %s moved to end", c.ID)
	}
}

func TestDeleteStepTurnsSoleAssociationGeneral(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	w := mustWMS(t, s, p.ID, "W")
	st := mustStep(t, s, p.ID, w.ID, "rigging")
	r, err := s.AddRisk(context.Background(), p.ID, w.ID, domain.Risk{
		Type:              domain.RiskLifting,
		Description:       "Sling failure",
		Severity:          4,
		Likelihood:        2,
		Mitigation:        "Use certified rigging",
		AssociatedStepIDs: []string{st.ID},
	})
	if err != nil {
		t.Fatalf("add risk: %v", err)
	}

	if err := s.DeleteStep(context.Background(), p.ID, w.ID, st.ID); err != nil {
		t.Fatalf("delete step: %v", err)
	}
	got, _ := s.GetWMS(p.ID, w.ID)
	if len(got.Risks) != 1 {
		t.Fatalf("risk must survive step deletion, have %d", len(got.Risks))
	}
	if !got.Risks[0].IsGeneral() {
		t.Fatalf("risk %s should be general, associations %v", r.ID, got.Risks[0].AssociatedStepIDs)
	}
}

func TestAddRiskMintsFreshID(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	w := mustWMS(t, s, p.ID, "W")
	r, err := s.AddRisk(context.Background(), p.ID, w.ID, domain.Risk{
		ID:          "transient-suggestion-id",
		Type:        domain.RiskGeneral,
		Description: "Slips, trips and falls",
		Severity:    3,
		Likelihood:  3,
		Mitigation:  "Keep work area clean",
		Source:      domain.SourceAI,
	})
	if err != nil {
		t.Fatalf("add risk: %v", err)
	}
	if r.ID == "transient-suggestion-id" {
		t.Fatalf("transient id must be replaced")
	}
	if r.Source != domain.SourceAI {
		t.Fatalf("source = %s", r.Source)
	}
}

func TestAddRiskValidation(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	w := mustWMS(t, s, p.ID, "W")

	cases := []struct {
		name string
		r    domain.Risk
	}{
		{"severity out of range", domain.Risk{Type: domain.RiskGeneral, Description: "d", Severity: 6, Likelihood: 3, Mitigation: "m"}},
		{"likelihood zero", domain.Risk{Type: domain.RiskGeneral, Description: "d", Severity: 3, Likelihood: 0, Mitigation: "m"}},
		{"empty description", domain.Risk{Type: domain.RiskGeneral, Description: "  ", Severity: 3, Likelihood: 3, Mitigation: "m"}},
		{"empty mitigation", domain.Risk{Type: domain.RiskGeneral, Description: "d", Severity: 3, Likelihood: 3, Mitigation: ""}},
		{"bad category", domain.Risk{Type: "Weather", Description: "d", Severity: 3, Likelihood: 3, Mitigation: "m"}},
		{"dangling step", domain.Risk{Type: domain.RiskGeneral, Description: "d", Severity: 3, Likelihood: 3, Mitigation: "m", AssociatedStepIDs: []string{"ghost"}}},
	}
	for _, tc := range cases {
		if _, err := s.AddRisk(context.Background(), p.ID, w.ID, tc.r); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", tc.name, err)
		}
	}
}

func TestEquipmentLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	w := mustWMS(t, s, p.ID, "W")
	st := mustStep(t, s, p.ID, w.ID, "lift")

	if _, err := s.AddEquipment(context.Background(), p.ID, w.ID, st.ID, domain.Equipment{Name: "Crane", Category: domain.EquipmentCrane, Quantity: 0}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("zero quantity should be rejected, got %v", err)
	}
	eq, err := s.AddEquipment(context.Background(), p.ID, w.ID, st.ID, domain.Equipment{Name: "Mobile Crane", Category: domain.EquipmentCrane, Quantity: 1})
	if err != nil {
		t.Fatalf("add equipment: %v", err)
	}
	if err := s.RemoveEquipment(context.Background(), p.ID, w.ID, st.ID, eq.ID); err != nil {
		t.Fatalf("remove equipment: %v", err)
	}
	if err := s.RemoveEquipment(context.Background(), p.ID, w.ID, st.ID, eq.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTemplateRoundTripIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	w := mustWMS(t, s, p.ID, "Lift Plan")
	st := mustStep(t, s, p.ID, w.ID, "Position crane")
	if _, err := s.AddRisk(context.Background(), p.ID, w.ID, domain.Risk{
		Type:              domain.RiskLifting,
		Description:       "Crane tipping due to soft ground",
		Severity:          5,
		Likelihood:        3,
		Mitigation:        "Conduct soil bearing analysis",
		AssociatedStepIDs: []string{st.ID},
	}); err != nil {
		t.Fatalf("add risk: %v", err)
	}
	w, _ = s.GetWMS(p.ID, w.ID)

	tmpl, err := s.SaveAsTemplate(context.Background(), w, "")
	if err != nil {
		t.Fatalf("save template: %v", err)
	}
	if tmpl.Title != "Lift Plan Template" {
		t.Fatalf("default title = %s", tmpl.Title)
	}

	first, err := s.ApplyTemplate(context.Background(), p.ID, tmpl.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	second, err := s.ApplyTemplate(context.Background(), p.ID, tmpl.ID)
	if err != nil {
		t.Fatalf("apply again: %v", err)
	}

	if first.ID == w.ID || first.ID == second.ID {
		t.Fatalf("instances must have fresh ids")
	}
	if first.TemplateID != tmpl.ID || second.TemplateID != tmpl.ID {
		t.Fatalf("instances must record their template id")
	}
	if first.Steps[0].ID == st.ID || first.Steps[0].ID == second.Steps[0].ID {
		t.Fatalf("step ids must be fresh per instance")
	}
	// Associations follow the freshly minted step ids, never the old ones.
	if got := first.Risks[0].AssociatedStepIDs; len(got) != 1 || got[0] != first.Steps[0].ID {
		t.Fatalf("first instance association = %v, want [%s]", got, first.Steps[0].ID)
	}
	if got := second.Risks[0].AssociatedStepIDs; len(got) != 1 || got[0] != second.Steps[0].ID {
		t.Fatalf("second instance association = %v, want [%s]", got, second.Steps[0].ID)
	}

	// Mutating one instance leaks into neither the template nor its sibling.
	if err := s.DeleteStep(context.Background(), p.ID, first.ID, first.Steps[0].ID); err != nil {
		t.Fatalf("delete step: %v", err)
	}
	tmplAfter, _ := s.GetTemplate(tmpl.ID)
	if len(tmplAfter.WMS.Steps) != 1 {
		t.Fatalf("template mutated: %d steps", len(tmplAfter.WMS.Steps))
	}
	secondAfter, _ := s.GetWMS(p.ID, second.ID)
	if len(secondAfter.Steps) != 1 {
		t.Fatalf("sibling instance mutated: %d steps", len(secondAfter.Steps))
	}
}

func TestApplyTemplateUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	if _, err := s.ApplyTemplate(context.Background(), p.ID, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.ApplyTemplate(context.Background(), "ghost", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteThroughAndRehydrate(t *testing.T) {
	s, kv := newTestStore(t)
	p := mustProject(t, s, "Solar Farm Installation")
	w := mustWMS(t, s, p.ID, "Panel Delivery")
	mustStep(t, s, p.ID, w.ID, "Unload trucks")

	// Every committed mutation is visible in the medium immediately.
	if _, ok, _ := kv.Get("projects"); !ok {
		t.Fatalf("projects key missing after mutation")
	}
	if _, ok, _ := kv.Get("current_project"); !ok {
		t.Fatalf("current_project key missing")
	}

	// A second store over the same medium sees identical state.
	s2 := New(kv)
	if err := s2.Load(); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	got, err := s2.GetWMS(p.ID, w.ID)
	if err != nil {
		t.Fatalf("get after rehydrate: %v", err)
	}
	if len(got.Steps) != 1 || got.Steps[0].Title != "Unload trucks" {
		t.Fatalf("rehydrated steps = %+v", got.Steps)
	}
	cur, ok := s2.CurrentProject()
	if !ok || cur.ID != p.ID {
		t.Fatalf("current selection lost across rehydrate")
	}
}

func TestLoadClearsDanglingSelection(t *testing.T) {
	kv := storage.NewMemory()
	kv.Set("projects", `[]`)
	kv.Set("current_project", `"ghost"`)
	s := New(kv)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := s.CurrentProject(); ok {
		t.Fatalf("dangling selection must be cleared")
	}
}

func TestSubscribeNotifiesAfterCommit(t *testing.T) {
	s, _ := newTestStore(t)
	var seen []Snapshot
	unsub := s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })

	p := mustProject(t, s, "P")
	if len(seen) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(seen))
	}
	if len(seen[0].Projects) != 1 || seen[0].CurrentProjectID != p.ID {
		t.Fatalf("snapshot = %+v", seen[0])
	}

	unsub()
	mustWMS(t, s, p.ID, "W")
	if len(seen) != 1 {
		t.Fatalf("unsubscribed callback still ran")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	p := mustProject(t, s, "P")
	mustWMS(t, s, p.ID, "W")

	snap := s.Snapshot()
	snap.Projects[0].WMSList[0].Title = "mutated"
	got, _ := s.GetWMS(p.ID, snap.Projects[0].WMSList[0].ID)
	if got.Title != "W" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestHighRiskScenario(t *testing.T) {
	s, _ := newTestStore(t)
	p, err := s.CreateProject(context.Background(), "Solar Farm Installation", "Houston", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	w := mustWMS(t, s, p.ID, "Panel Array Lift")
	st := mustStep(t, s, p.ID, w.ID, "Crane lift over array")
	r, err := s.AddRisk(context.Background(), p.ID, w.ID, domain.Risk{
		Type:              domain.RiskLifting,
		Description:       "Crane tipping due to soft ground",
		Severity:          5,
		Likelihood:        3,
		Mitigation:        "Conduct soil bearing analysis and use mats if necessary",
		AssociatedStepIDs: []string{st.ID},
	})
	if err != nil {
		t.Fatalf("add risk: %v", err)
	}
	if lvl := risk.Score(r.Severity, r.Likelihood); lvl != risk.High {
		t.Fatalf("severity 5 x likelihood 3 = %s, want High", lvl)
	}
}
