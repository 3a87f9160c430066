package store

import (
	"context"
	"fmt"
	"strings"

	"wmsforge/internal/domain"
	"wmsforge/internal/events"
	"wmsforge/internal/risk"
)

// CreateWMS mints an empty document under the named project.
func (s *Store) CreateWMS(ctx context.Context, projectID, title, scope string) (domain.WMS, error) {
	var created domain.WMS
	err := s.mutateProject(ctx, projectID, func(p *domain.Project) (eventRecord, error) {
		now := s.timestamp()
		created = domain.WMS{
			ID:        s.NewID(),
			ProjectID: p.ID,
			Title:     title,
			Scope:     scope,
			Tags:      []string{},
			Steps:     []domain.WorkStep{},
			Risks:     []domain.Risk{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		p.WMSList = append(p.WMSList, created)
		return eventRecord{"wms.created", "wms", created.ID, events.EventPayload{"title": title}}, nil
	})
	if err != nil {
		return domain.WMS{}, err
	}
	return created, nil
}

// UpdateWMS replaces the document with matching id inside its owning
// project's list, repairing back-references and refreshing updatedAt.
// Unknown ids return ErrNotFound.
func (s *Store) UpdateWMS(ctx context.Context, w domain.WMS) (domain.WMS, error) {
	var updated domain.WMS
	err := s.mutateProject(ctx, w.ProjectID, func(p *domain.Project) (eventRecord, error) {
		i := wmsIndex(p, w.ID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("wms %s: %w", w.ID, ErrNotFound)
		}
		updated = w.Clone()
		updated.ProjectID = p.ID
		updated.UpdatedAt = s.timestamp()
		repairWMS(&updated)
		if err := validateWMS(updated); err != nil {
			return eventRecord{}, err
		}
		p.WMSList[i] = updated.Clone()
		return eventRecord{"wms.updated", "wms", updated.ID, events.EventPayload{"title": updated.Title}}, nil
	})
	if err != nil {
		return domain.WMS{}, err
	}
	return updated, nil
}

// DeleteWMS removes the document from the named project's list.
func (s *Store) DeleteWMS(ctx context.Context, projectID, wmsID string) error {
	return s.mutateProject(ctx, projectID, func(p *domain.Project) (eventRecord, error) {
		i := wmsIndex(p, wmsID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("wms %s: %w", wmsID, ErrNotFound)
		}
		p.WMSList = append(p.WMSList[:i], p.WMSList[i+1:]...)
		return eventRecord{"wms.deleted", "wms", wmsID, nil}, nil
	})
}

// AddStep appends a step with order = len(steps)+1.
func (s *Store) AddStep(ctx context.Context, projectID, wmsID, title, description, notes string) (domain.WorkStep, error) {
	var created domain.WorkStep
	err := s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		created = domain.WorkStep{
			ID:          s.NewID(),
			WMSID:       w.ID,
			Title:       title,
			Description: description,
			Equipment:   []domain.Equipment{},
			Notes:       notes,
			Order:       len(w.Steps) + 1,
		}
		w.Steps = append(w.Steps, created)
		return eventRecord{"wms.step.added", "step", created.ID, events.EventPayload{"title": title}}, nil
	})
	if err != nil {
		return domain.WorkStep{}, err
	}
	return created, nil
}

// UpdateStep replaces the step with matching id. The step keeps its current
// position; order in the input is ignored.
func (s *Store) UpdateStep(ctx context.Context, projectID, wmsID string, step domain.WorkStep) (domain.WorkStep, error) {
	var updated domain.WorkStep
	err := s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		i := stepIndex(w, step.ID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("step %s: %w", step.ID, ErrNotFound)
		}
		for _, eq := range step.Equipment {
			if err := validateEquipment(eq); err != nil {
				return eventRecord{}, err
			}
		}
		updated = step.Clone()
		updated.WMSID = w.ID
		updated.Order = w.Steps[i].Order
		w.Steps[i] = updated.Clone()
		return eventRecord{"wms.step.updated", "step", step.ID, events.EventPayload{"title": step.Title}}, nil
	})
	if err != nil {
		return domain.WorkStep{}, err
	}
	return updated, nil
}

// DeleteStep removes a step, renumbers the remainder to a dense 1..N, and
// drops the step id from every risk association. A risk whose association
// set becomes empty turns general; risks are never deleted here.
func (s *Store) DeleteStep(ctx context.Context, projectID, wmsID, stepID string) error {
	return s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		i := stepIndex(w, stepID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("step %s: %w", stepID, ErrNotFound)
		}
		w.Steps = append(w.Steps[:i], w.Steps[i+1:]...)
		renumberSteps(w)
		for ri := range w.Risks {
			w.Risks[ri].AssociatedStepIDs = removeString(w.Risks[ri].AssociatedStepIDs, stepID)
		}
		return eventRecord{"wms.step.deleted", "step", stepID, nil}, nil
	})
}

// MoveStep repositions a step to the given 1-based position and renumbers.
// Positions outside [1,N] are clamped.
func (s *Store) MoveStep(ctx context.Context, projectID, wmsID, stepID string, position int) error {
	return s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		i := stepIndex(w, stepID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("step %s: %w", stepID, ErrNotFound)
		}
		if position < 1 {
			position = 1
		}
		if position > len(w.Steps) {
			position = len(w.Steps)
		}
		step := w.Steps[i]
		w.Steps = append(w.Steps[:i], w.Steps[i+1:]...)
		at := position - 1
		w.Steps = append(w.Steps[:at], append([]domain.WorkStep{step}, w.Steps[at:]...)...)
		renumberSteps(w)
		return eventRecord{"wms.step.moved", "step", stepID, events.EventPayload{"position": position}}, nil
	})
}

// AddRisk appends a risk, minting a fresh id regardless of any transient id
// on the input. AI-suggested risks arrive through this same path.
func (s *Store) AddRisk(ctx context.Context, projectID, wmsID string, r domain.Risk) (domain.Risk, error) {
	var created domain.Risk
	err := s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		created = r.Clone()
		created.ID = s.NewID()
		created.WMSID = w.ID
		if created.Type == "" {
			created.Type = domain.RiskGeneral
		}
		if created.Source == "" {
			created.Source = domain.SourceManual
		}
		if err := validateRisk(created, w); err != nil {
			return eventRecord{}, err
		}
		w.Risks = append(w.Risks, created.Clone())
		return eventRecord{"wms.risk.added", "risk", created.ID, events.EventPayload{
			"type":   string(created.Type),
			"level":  string(risk.Score(created.Severity, created.Likelihood)),
			"source": string(created.Source),
		}}, nil
	})
	if err != nil {
		return domain.Risk{}, err
	}
	return created, nil
}

// UpdateRisk replaces the risk with matching id (full-field replace).
func (s *Store) UpdateRisk(ctx context.Context, projectID, wmsID string, r domain.Risk) (domain.Risk, error) {
	var updated domain.Risk
	err := s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		i := riskIndex(w, r.ID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("risk %s: %w", r.ID, ErrNotFound)
		}
		updated = r.Clone()
		updated.WMSID = w.ID
		if err := validateRisk(updated, w); err != nil {
			return eventRecord{}, err
		}
		w.Risks[i] = updated.Clone()
		return eventRecord{"wms.risk.updated", "risk", r.ID, nil}, nil
	})
	if err != nil {
		return domain.Risk{}, err
	}
	return updated, nil
}

// DeleteRisk removes a risk by id.
func (s *Store) DeleteRisk(ctx context.Context, projectID, wmsID, riskID string) error {
	return s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		i := riskIndex(w, riskID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("risk %s: %w", riskID, ErrNotFound)
		}
		w.Risks = append(w.Risks[:i], w.Risks[i+1:]...)
		return eventRecord{"wms.risk.deleted", "risk", riskID, nil}, nil
	})
}

// AddEquipment attaches an item to the named step.
func (s *Store) AddEquipment(ctx context.Context, projectID, wmsID, stepID string, eq domain.Equipment) (domain.Equipment, error) {
	var created domain.Equipment
	err := s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		i := stepIndex(w, stepID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("step %s: %w", stepID, ErrNotFound)
		}
		created = eq
		created.ID = s.NewID()
		if err := validateEquipment(created); err != nil {
			return eventRecord{}, err
		}
		w.Steps[i].Equipment = append(w.Steps[i].Equipment, created)
		return eventRecord{"wms.equipment.added", "equipment", created.ID, events.EventPayload{"name": created.Name}}, nil
	})
	if err != nil {
		return domain.Equipment{}, err
	}
	return created, nil
}

// RemoveEquipment detaches an item from the named step.
func (s *Store) RemoveEquipment(ctx context.Context, projectID, wmsID, stepID, equipmentID string) error {
	return s.mutateWMS(ctx, projectID, wmsID, func(w *domain.WMS) (eventRecord, error) {
		si := stepIndex(w, stepID)
		if si < 0 {
			return eventRecord{}, fmt.Errorf("step %s: %w", stepID, ErrNotFound)
		}
		for i, eq := range w.Steps[si].Equipment {
			if eq.ID == equipmentID {
				w.Steps[si].Equipment = append(w.Steps[si].Equipment[:i], w.Steps[si].Equipment[i+1:]...)
				return eventRecord{"wms.equipment.removed", "equipment", equipmentID, nil}, nil
			}
		}
		return eventRecord{}, fmt.Errorf("equipment %s: %w", equipmentID, ErrNotFound)
	})
}

// --- mutation plumbing ---

type eventRecord struct {
	Type       string
	EntityKind string
	EntityID   string
	Payload    events.EventPayload
}

// mutateProject runs fn against a copy of the named project and swaps the
// copy in only if fn succeeds, so a failed mutation never leaves a partial
// change behind.
func (s *Store) mutateProject(ctx context.Context, projectID string, fn func(*domain.Project) (eventRecord, error)) error {
	s.mu.Lock()
	pi := s.projectIndex(projectID)
	if pi < 0 {
		s.mu.Unlock()
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	p := s.projects[pi].Clone()
	evt, err := fn(&p)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	p.UpdatedAt = s.timestamp()
	s.projects[pi] = p
	snap, err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.appendEvent(ctx, evt.Type, projectID, evt.EntityKind, evt.EntityID, evt.Payload)
	s.notify(snap)
	return nil
}

func (s *Store) mutateWMS(ctx context.Context, projectID, wmsID string, fn func(*domain.WMS) (eventRecord, error)) error {
	return s.mutateProject(ctx, projectID, func(p *domain.Project) (eventRecord, error) {
		i := wmsIndex(p, wmsID)
		if i < 0 {
			return eventRecord{}, fmt.Errorf("wms %s: %w", wmsID, ErrNotFound)
		}
		w := &p.WMSList[i]
		evt, err := fn(w)
		if err != nil {
			return eventRecord{}, err
		}
		w.UpdatedAt = s.timestamp()
		return evt, nil
	})
}

func wmsIndex(p *domain.Project, wmsID string) int {
	for i := range p.WMSList {
		if p.WMSList[i].ID == wmsID {
			return i
		}
	}
	return -1
}

func stepIndex(w *domain.WMS, stepID string) int {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

func riskIndex(w *domain.WMS, riskID string) int {
	for i := range w.Risks {
		if w.Risks[i].ID == riskID {
			return i
		}
	}
	return -1
}

func renumberSteps(w *domain.WMS) {
	for i := range w.Steps {
		w.Steps[i].Order = i + 1
	}
}

func removeString(in []string, v string) []string {
	var out []string
	for _, s := range in {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// --- defensive validation ---

func validateRisk(r domain.Risk, w *domain.WMS) error {
	if !risk.ValidRating(r.Severity) || !risk.ValidRating(r.Likelihood) {
		return fmt.Errorf("%w: severity and likelihood must be between 1 and 5", ErrInvalid)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: risk description is required", ErrInvalid)
	}
	if strings.TrimSpace(r.Mitigation) == "" {
		return fmt.Errorf("%w: risk mitigation is required", ErrInvalid)
	}
	if !domain.ValidRiskCategory(r.Type) {
		return fmt.Errorf("%w: unknown risk category %s", ErrInvalid, r.Type)
	}
	if r.Source != domain.SourceManual && r.Source != domain.SourceAI {
		return fmt.Errorf("%w: unknown risk source %s", ErrInvalid, r.Source)
	}
	for _, stepID := range r.AssociatedStepIDs {
		if stepIndex(w, stepID) < 0 {
			return fmt.Errorf("%w: associated step %s does not exist", ErrInvalid, stepID)
		}
	}
	return nil
}

func validateEquipment(eq domain.Equipment) error {
	if eq.Quantity < 1 {
		return fmt.Errorf("%w: equipment quantity must be at least 1", ErrInvalid)
	}
	if !domain.ValidEquipmentCategory(eq.Category) {
		return fmt.Errorf("%w: unknown equipment category %s", ErrInvalid, eq.Category)
	}
	return nil
}

func validateWMS(w domain.WMS) error {
	for _, r := range w.Risks {
		if err := validateRisk(r, &w); err != nil {
			return err
		}
	}
	seen := map[int]bool{}
	for _, st := range w.Steps {
		for _, eq := range st.Equipment {
			if err := validateEquipment(eq); err != nil {
				return err
			}
		}
		if st.Order < 1 || st.Order > len(w.Steps) || seen[st.Order] {
			return fmt.Errorf("%w: step order values must be a dense 1..N sequence", ErrInvalid)
		}
		seen[st.Order] = true
	}
	return nil
}

func validateProject(p domain.Project) error {
	for _, w := range p.WMSList {
		if err := validateWMS(w); err != nil {
			return err
		}
	}
	return nil
}
