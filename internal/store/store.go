// Package store owns the authoritative project, template, and selection
// state. Every mutation computes a new entity graph from a copy, swaps it in,
// writes through to the key-value medium, and notifies subscribers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"wmsforge/internal/domain"
	"wmsforge/internal/events"
	"wmsforge/internal/storage"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
)

// Persisted key layout.
const (
	keyProjects       = "projects"
	keyTemplates      = "templates"
	keyCurrentProject = "current_project"
)

// Snapshot is an isolated copy of the store state handed to readers and
// subscribers.
type Snapshot struct {
	Projects         []domain.Project
	Templates        []domain.Template
	CurrentProjectID string
}

type Store struct {
	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
	// Events captures an audit record per mutation; nil-DB writers are no-ops.
	Events *events.Writer
	// ActorID is recorded on audit events.
	ActorID string

	kv storage.KV

	mu        sync.Mutex
	projects  []domain.Project
	templates []domain.Template
	currentID string

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

func New(kv storage.KV) *Store {
	return &Store{
		Now:     time.Now,
		NewID:   uuid.NewString,
		ActorID: "local-user",
		kv:      kv,
		subs:    map[int]func(Snapshot){},
	}
}

// Load rehydrates state from the key-value medium. It must run before any
// operation is issued; a missing key yields an empty collection.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok, err := s.kv.Get(keyProjects); err != nil {
		return fmt.Errorf("read projects: %w", err)
	} else if ok {
		var projects []domain.Project
		if err := json.Unmarshal([]byte(raw), &projects); err != nil {
			return fmt.Errorf("decode projects: %w", err)
		}
		s.projects = projects
	}
	if raw, ok, err := s.kv.Get(keyTemplates); err != nil {
		return fmt.Errorf("read templates: %w", err)
	} else if ok {
		var templates []domain.Template
		if err := json.Unmarshal([]byte(raw), &templates); err != nil {
			return fmt.Errorf("decode templates: %w", err)
		}
		s.templates = templates
	}
	if raw, ok, err := s.kv.Get(keyCurrentProject); err != nil {
		return fmt.Errorf("read current project: %w", err)
	} else if ok {
		var id string
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			return fmt.Errorf("decode current project: %w", err)
		}
		if s.projectIndex(id) >= 0 {
			s.currentID = id
		}
	}
	return nil
}

// Subscribe registers fn to run after every committed mutation. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// Snapshot returns an isolated copy of the full store state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Projects returns a copy of all projects.
func (s *Store) Projects() []domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneProjects(s.projects)
}

// Templates returns a copy of all templates.
func (s *Store) Templates() []domain.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneTemplates(s.templates)
}

// GetProject returns the project with the given id.
func (s *Store) GetProject(id string) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.projectIndex(id)
	if i < 0 {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return s.projects[i].Clone(), nil
}

// CurrentProject returns the current selection, if any.
func (s *Store) CurrentProject() (domain.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.projectIndex(s.currentID)
	if i < 0 {
		return domain.Project{}, false
	}
	return s.projects[i].Clone(), true
}

// GetWMS returns a WMS from the named project.
func (s *Store) GetWMS(projectID, wmsID string) (domain.WMS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi := s.projectIndex(projectID)
	if pi < 0 {
		return domain.WMS{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	for _, w := range s.projects[pi].WMSList {
		if w.ID == wmsID {
			return w.Clone(), nil
		}
	}
	return domain.WMS{}, fmt.Errorf("wms %s: %w", wmsID, ErrNotFound)
}

// GetTemplate returns the template with the given id.
func (s *Store) GetTemplate(id string) (domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return domain.Template{}, fmt.Errorf("template %s: %w", id, ErrNotFound)
}

// CreateProject mints a project, appends it, and selects it as current.
func (s *Store) CreateProject(ctx context.Context, name, location, description string) (domain.Project, error) {
	s.mu.Lock()
	now := s.timestamp()
	p := domain.Project{
		ID:          s.NewID(),
		Name:        name,
		Location:    location,
		Description: description,
		WMSList:     []domain.WMS{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.projects = append(s.projects, p.Clone())
	s.currentID = p.ID
	snap, err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return domain.Project{}, err
	}
	s.appendEvent(ctx, "project.created", p.ID, "project", p.ID, events.EventPayload{"name": p.Name})
	s.notify(snap)
	return p, nil
}

// UpdateProject replaces the matching record and refreshes updatedAt. The
// wmsList back-references are repaired so every embedded document points at
// this project. Unknown ids return ErrNotFound.
func (s *Store) UpdateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	s.mu.Lock()
	i := s.projectIndex(p.ID)
	if i < 0 {
		s.mu.Unlock()
		return domain.Project{}, fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	updated := p.Clone()
	updated.UpdatedAt = s.timestamp()
	repairProject(&updated)
	if err := validateProject(updated); err != nil {
		s.mu.Unlock()
		return domain.Project{}, err
	}
	s.projects[i] = updated
	snap, err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return domain.Project{}, err
	}
	s.appendEvent(ctx, "project.updated", updated.ID, "project", updated.ID, events.EventPayload{"name": updated.Name})
	s.notify(snap)
	return updated.Clone(), nil
}

// DeleteProject removes the project and clears the current selection if it
// pointed at the deleted id.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.projectIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	s.projects = append(s.projects[:i], s.projects[i+1:]...)
	if s.currentID == id {
		s.currentID = ""
	}
	snap, err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.appendEvent(ctx, "project.deleted", id, "project", id, nil)
	s.notify(snap)
	return nil
}

// SetCurrentProject selects an existing project by id; unknown ids are a
// silent no-op.
func (s *Store) SetCurrentProject(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.projectIndex(id) < 0 {
		s.mu.Unlock()
		return nil
	}
	if s.currentID == id {
		s.mu.Unlock()
		return nil
	}
	s.currentID = id
	snap, err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.appendEvent(ctx, "project.selected", id, "project", id, nil)
	s.notify(snap)
	return nil
}

// SaveAsTemplate deep-clones the WMS, strips identity fields, and stores it
// as a reusable template. An empty title defaults to "<wms title> Template".
func (s *Store) SaveAsTemplate(ctx context.Context, w domain.WMS, title string) (domain.Template, error) {
	if title == "" {
		title = w.Title + " Template"
	}
	s.mu.Lock()
	now := s.timestamp()
	src := w.Clone()
	t := domain.Template{
		ID:    s.NewID(),
		Title: title,
		WMS: domain.TemplateWMS{
			Title: src.Title,
			Scope: src.Scope,
			Tags:  src.Tags,
			Steps: src.Steps,
			Risks: src.Risks,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.templates = append(s.templates, t.Clone())
	snap, err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return domain.Template{}, err
	}
	s.appendEvent(ctx, "template.created", "", "template", t.ID, events.EventPayload{"title": t.Title, "source_wms": w.ID})
	s.notify(snap)
	return t, nil
}

// ApplyTemplate instantiates a template into the named project. The new WMS
// and every embedded step and risk get fresh ids; risk step associations are
// remapped onto the freshly minted step ids so no reference dangles, and ids
// are never shared with the template snapshot.
func (s *Store) ApplyTemplate(ctx context.Context, projectID, templateID string) (domain.WMS, error) {
	s.mu.Lock()
	pi := s.projectIndex(projectID)
	if pi < 0 {
		s.mu.Unlock()
		return domain.WMS{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	var tmpl *domain.Template
	for i := range s.templates {
		if s.templates[i].ID == templateID {
			tmpl = &s.templates[i]
			break
		}
	}
	if tmpl == nil {
		s.mu.Unlock()
		return domain.WMS{}, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}

	now := s.timestamp()
	src := tmpl.WMS.Clone()
	w := domain.WMS{
		ID:         s.NewID(),
		ProjectID:  projectID,
		Title:      src.Title,
		Scope:      src.Scope,
		Tags:       append([]string{}, src.Tags...),
		Steps:      src.Steps,
		Risks:      src.Risks,
		TemplateID: tmpl.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	stepIDs := map[string]string{}
	for i := range w.Steps {
		fresh := s.NewID()
		stepIDs[w.Steps[i].ID] = fresh
		w.Steps[i].ID = fresh
		w.Steps[i].WMSID = w.ID
	}
	for i := range w.Risks {
		w.Risks[i].ID = s.NewID()
		w.Risks[i].WMSID = w.ID
		var assoc []string
		for _, old := range w.Risks[i].AssociatedStepIDs {
			if fresh, ok := stepIDs[old]; ok {
				assoc = append(assoc, fresh)
			}
		}
		w.Risks[i].AssociatedStepIDs = assoc
	}

	s.projects[pi].WMSList = append(s.projects[pi].WMSList, w.Clone())
	s.projects[pi].UpdatedAt = now
	snap, err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return domain.WMS{}, err
	}
	s.appendEvent(ctx, "template.applied", projectID, "wms", w.ID, events.EventPayload{"template_id": templateID})
	s.notify(snap)
	return w, nil
}

// DeleteTemplate removes a template by id.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.templates {
		if s.templates[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	s.templates = append(s.templates[:idx], s.templates[idx+1:]...)
	snap, err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.appendEvent(ctx, "template.deleted", "", "template", id, nil)
	s.notify(snap)
	return nil
}

// --- internals ---

func (s *Store) timestamp() string {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (s *Store) projectIndex(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.projects {
		if s.projects[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Projects:         domain.CloneProjects(s.projects),
		Templates:        domain.CloneTemplates(s.templates),
		CurrentProjectID: s.currentID,
	}
}

// commitLocked writes the full collections through to the medium and returns
// the snapshot to hand to subscribers. Caller holds the lock.
func (s *Store) commitLocked() (Snapshot, error) {
	projects, err := json.Marshal(nonNil(s.projects))
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode projects: %w", err)
	}
	templates, err := json.Marshal(nonNilTemplates(s.templates))
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode templates: %w", err)
	}
	if err := s.kv.Set(keyProjects, string(projects)); err != nil {
		return Snapshot{}, fmt.Errorf("write projects: %w", err)
	}
	if err := s.kv.Set(keyTemplates, string(templates)); err != nil {
		return Snapshot{}, fmt.Errorf("write templates: %w", err)
	}
	if s.currentID == "" {
		if err := s.kv.Delete(keyCurrentProject); err != nil {
			return Snapshot{}, fmt.Errorf("clear current project: %w", err)
		}
	} else {
		current, _ := json.Marshal(s.currentID)
		if err := s.kv.Set(keyCurrentProject, string(current)); err != nil {
			return Snapshot{}, fmt.Errorf("write current project: %w", err)
		}
	}
	return s.snapshotLocked(), nil
}

func (s *Store) appendEvent(ctx context.Context, evtType, projectID, entityKind, entityID string, payload events.EventPayload) {
	_ = s.Events.Append(ctx, evtType, projectID, entityKind, entityID, s.ActorID, payload)
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func nonNil(in []domain.Project) []domain.Project {
	if in == nil {
		return []domain.Project{}
	}
	return in
}

func nonNilTemplates(in []domain.Template) []domain.Template {
	if in == nil {
		return []domain.Template{}
	}
	return in
}

// repairProject rewrites embedded back-references so every WMS points at its
// owning project and every step and risk points at its owning WMS.
func repairProject(p *domain.Project) {
	for i := range p.WMSList {
		p.WMSList[i].ProjectID = p.ID
		repairWMS(&p.WMSList[i])
	}
}

func repairWMS(w *domain.WMS) {
	for i := range w.Steps {
		w.Steps[i].WMSID = w.ID
	}
	for i := range w.Risks {
		w.Risks[i].WMSID = w.ID
	}
}
