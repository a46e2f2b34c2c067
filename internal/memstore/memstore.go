// Package memstore provides an in-memory implementation of the store contracts.
// It backs unit tests and the offline CLI mode.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps all records in maps guarded by a single RWMutex.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	workspaces    map[string]models.Workspace
	members       map[string]models.Member
	tasks         map[string]models.Task
	timeOff       map[string]models.TimeOff
	projects      map[string]models.Project
	epics         map[string]models.Epic
	dependencies  map[string]models.EpicDependency
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
	usage         map[string]models.UsageCounter
	settings      map[string]models.Settings
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		workspaces:    make(map[string]models.Workspace),
		members:       make(map[string]models.Member),
		tasks:         make(map[string]models.Task),
		timeOff:       make(map[string]models.TimeOff),
		projects:      make(map[string]models.Project),
		epics:         make(map[string]models.Epic),
		dependencies:  make(map[string]models.EpicDependency),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
		usage:         make(map[string]models.UsageCounter),
		settings:      make(map[string]models.Settings),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

func newID() string {
	return uuid.NewString()
}

// =============================================================================
// SEEDING
// =============================================================================

// PutWorkspace inserts or replaces a workspace.
func (s *Store) PutWorkspace(w models.Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[w.ID] = w
}

// PutMember inserts or replaces a member, assigning an ID when empty.
func (s *Store) PutMember(m models.Member) models.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = newID()
	}
	s.members[m.ID] = m
	return m
}

// PutTask inserts or replaces a task, assigning an ID when empty.
func (s *Store) PutTask(t models.Task) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.tasks[t.ID] = t
	return t
}

// PutTimeOff inserts or replaces a time-off entry.
func (s *Store) PutTimeOff(t models.TimeOff) models.TimeOff {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	s.timeOff[t.ID] = t
	return t
}

// PutProject inserts or replaces a project.
func (s *Store) PutProject(p models.Project) models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.projects[p.ID] = p
	return p
}

// PutEpic inserts or replaces an epic.
func (s *Store) PutEpic(e models.Epic) models.Epic {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Status == "" {
		e.Status = models.EpicDraft
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.epics[e.ID] = e
	return e
}

// =============================================================================
// WORKSPACE READS
// =============================================================================

// GetWorkspace returns the workspace or nil.
func (s *Store) GetWorkspace(_ context.Context, workspaceID string) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workspaces[workspaceID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// ListMembers returns members sorted by name.
func (s *Store) ListMembers(_ context.Context, workspaceID string) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Member{}
	for _, m := range s.members {
		if m.WorkspaceID == workspaceID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListTasks returns matching tasks ordered by due date (undated last), then creation.
func (s *Store) ListTasks(_ context.Context, workspaceID string, filter models.TaskFilter) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Task{}
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID && filter.Matches(t) {
			out = append(out, t)
		}
	}
	models.SortTasksByDue(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListTimeOff returns time off for workspace members overlapping [from, to).
func (s *Store) ListTimeOff(_ context.Context, workspaceID string, from, to time.Time) ([]models.TimeOff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.TimeOff{}
	for _, t := range s.timeOff {
		m, ok := s.members[t.MemberID]
		if !ok || m.WorkspaceID != workspaceID {
			continue
		}
		if t.Overlaps(from, to) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// GetProject returns the project or nil.
func (s *Store) GetProject(_ context.Context, projectID string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListEpics returns a project's epics ordered by position.
func (s *Store) ListEpics(_ context.Context, projectID string) ([]models.Epic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Epic{}
	for _, e := range s.epics {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetEpic returns the epic or nil.
func (s *Store) GetEpic(_ context.Context, epicID string) (*models.Epic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.epics[epicID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// ListEpicDependencies returns a project's dependency edges in creation order.
func (s *Store) ListEpicDependencies(_ context.Context, projectID string) ([]models.EpicDependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dependenciesLocked(projectID), nil
}

func (s *Store) dependenciesLocked(projectID string) []models.EpicDependency {
	out := []models.EpicDependency{}
	for _, d := range s.dependencies {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// WORKSPACE WRITES
// =============================================================================

// CreateProject stores a new project.
func (s *Store) CreateProject(_ context.Context, input models.ProjectInput) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.Project{
		ID:          newID(),
		WorkspaceID: input.WorkspaceID,
		Name:        input.Name,
		Description: input.Description,
		CreatedAt:   s.now(),
	}
	s.projects[p.ID] = p
	return &p, nil
}

// CreateEpic stores a new draft epic.
func (s *Store) CreateEpic(_ context.Context, input models.EpicInput) (*models.Epic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[input.ProjectID]; !ok {
		return nil, fmt.Errorf("create epic: project %s: %w", input.ProjectID, store.ErrNotFound)
	}
	e := models.Epic{
		ID:            newID(),
		ProjectID:     input.ProjectID,
		Name:          input.Name,
		Description:   input.Description,
		Status:        models.EpicDraft,
		Position:      input.Position,
		EstimateWeeks: input.EstimateWeeks,
		CreatedAt:     s.now(),
	}
	s.epics[e.ID] = e
	return &e, nil
}

// CreateTask stores a new task.
func (s *Store) CreateTask(_ context.Context, input models.TaskInput) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := input.Status
	if status == "" {
		status = models.TaskBacklog
	}
	t := models.Task{
		ID:            newID(),
		WorkspaceID:   input.WorkspaceID,
		ProjectID:     input.ProjectID,
		EpicID:        input.EpicID,
		Title:         input.Title,
		Description:   input.Description,
		Status:        status,
		Priority:      input.Priority,
		EstimateHours: input.EstimateHours,
		CreatedAt:     s.now(),
	}
	s.tasks[t.ID] = t
	return &t, nil
}

// UpdateEpicStatus changes an epic's status.
func (s *Store) UpdateEpicStatus(_ context.Context, epicID string, status models.EpicStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.epics[epicID]
	if !ok {
		return fmt.Errorf("update epic %s: %w", epicID, store.ErrNotFound)
	}
	e.Status = status
	s.epics[epicID] = e
	return nil
}

// AddEpicDependency records epicID -> dependsOnID inside one critical section,
// so the cycle check and the insert are atomic.
func (s *Store) AddEpicDependency(_ context.Context, epicID, dependsOnID, reason string) (*models.EpicDependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epicID == dependsOnID {
		return nil, store.ErrSelfDependency
	}
	from, ok := s.epics[epicID]
	if !ok {
		return nil, fmt.Errorf("epic %s: %w", epicID, store.ErrNotFound)
	}
	to, ok := s.epics[dependsOnID]
	if !ok {
		return nil, fmt.Errorf("epic %s: %w", dependsOnID, store.ErrNotFound)
	}
	if from.ProjectID != to.ProjectID {
		return nil, fmt.Errorf("epics belong to different projects: %w", store.ErrNotFound)
	}

	edges := s.dependenciesLocked(from.ProjectID)
	if models.HasEdge(edges, epicID, dependsOnID) {
		return nil, store.ErrDuplicateDependency
	}
	if models.WouldCycle(edges, epicID, dependsOnID) {
		return nil, store.ErrDependencyCycle
	}

	d := models.EpicDependency{
		ID:          newID(),
		ProjectID:   from.ProjectID,
		EpicID:      epicID,
		DependsOnID: dependsOnID,
		Reason:      reason,
		CreatedAt:   s.now(),
	}
	s.dependencies[d.ID] = d
	return &d, nil
}
