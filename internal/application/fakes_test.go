package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/studieo-app/studieo-api/internal/models"
	"github.com/studieo-app/studieo-api/internal/notify"
)

// errInjected is returned by fakes configured to fail a step
var errInjected = errors.New("injected failure")

// fakeRepo is an in-memory repository with the same transition semantics
// as the SQL implementation, plus per-method failure injection
type fakeRepo struct {
	mu sync.Mutex

	applications map[string]*models.Application
	members      map[string][]*models.TeamMember
	projects     map[string]*models.Project
	users        map[string]*models.User
	orphans      map[string]bool

	failCreateApplication bool
	failSetDocument       bool
	failCreateTeamMember  bool
	failDeleteCascade     bool

	deleteCascadeCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		applications: make(map[string]*models.Application),
		members:      make(map[string][]*models.TeamMember),
		projects:     make(map[string]*models.Project),
		users:        make(map[string]*models.User),
		orphans:      make(map[string]bool),
	}
}

func (r *fakeRepo) CreateApplication(ctx context.Context, app *models.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreateApplication {
		return errInjected
	}

	clone := *app
	r.applications[app.ID] = &clone
	return nil
}

func (r *fakeRepo) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return nil, nil
	}
	clone := *app
	return &clone, nil
}

func (r *fakeRepo) GetApplicationByProjectAndLead(ctx context.Context, projectID, leadID string) (*models.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, app := range r.applications {
		if app.ProjectID == projectID && app.LeadID == leadID {
			clone := *app
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) SetApplicationDocument(ctx context.Context, id, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSetDocument {
		return errInjected
	}

	app, ok := r.applications[id]
	if !ok {
		return errors.New("application not found")
	}
	app.DesignDocPath = path
	return nil
}

func (r *fakeRepo) TransitionStatus(ctx context.Context, id string, from, to models.ApplicationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok || app.Status != from {
		return false, nil
	}

	app.Status = to
	if to == models.StatusSubmitted {
		now := time.Now()
		app.SubmittedAt = &now
	}
	app.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRepo) DeleteApplicationCascade(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteCascadeCalls++
	if r.failDeleteCascade {
		return errInjected
	}

	delete(r.applications, id)
	delete(r.members, id)
	return nil
}

func (r *fakeRepo) CountLeadApplications(ctx context.Context, studentID string, statuses []models.ApplicationStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, app := range r.applications {
		if app.LeadID != studentID {
			continue
		}
		for _, status := range statuses {
			if app.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (r *fakeRepo) AutoSubmitApplication(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok || app.Status != models.StatusPending {
		return false, nil
	}

	for _, m := range r.members[id] {
		if m.InviteStatus != models.InviteAccepted {
			return false, nil
		}
	}

	now := time.Now()
	app.Status = models.StatusSubmitted
	app.SubmittedAt = &now
	app.UpdatedAt = now
	return true, nil
}

func (r *fakeRepo) AutoDecideOpenApplication(ctx context.Context, id string) (models.ApplicationStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return "", errors.New("application not found")
	}
	if app.Status != models.StatusSubmitted {
		return "", errors.New("application is not submitted")
	}

	project, ok := r.projects[app.ProjectID]
	if !ok {
		return "", errors.New("project not found")
	}

	accepted := 0
	for _, other := range r.applications {
		if other.ProjectID == app.ProjectID && other.Status == models.StatusAccepted {
			accepted++
		}
	}

	decision := models.StatusRejected
	if accepted < project.MaxTeams {
		decision = models.StatusAccepted
	}

	app.Status = decision
	app.UpdatedAt = time.Now()
	return decision, nil
}

func (r *fakeRepo) CreateTeamMember(ctx context.Context, m *models.TeamMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreateTeamMember {
		return errInjected
	}

	clone := *m
	if user, ok := r.users[m.StudentID]; ok {
		clone.Email = user.Email
		clone.Name = user.Name
	}
	r.members[m.ApplicationID] = append(r.members[m.ApplicationID], &clone)
	return nil
}

func (r *fakeRepo) GetTeamMember(ctx context.Context, applicationID, studentID string) (*models.TeamMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.members[applicationID] {
		if m.StudentID == studentID {
			clone := *m
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) ListTeamMembers(ctx context.Context, applicationID string) ([]*models.TeamMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := make([]*models.TeamMember, 0, len(r.members[applicationID]))
	for _, m := range r.members[applicationID] {
		clone := *m
		members = append(members, &clone)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].IsLead && !members[j].IsLead
	})
	return members, nil
}

func (r *fakeRepo) UpdateInviteStatus(ctx context.Context, applicationID, studentID string, status models.InviteStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.members[applicationID] {
		if m.StudentID == studentID {
			m.InviteStatus = status
			return nil
		}
	}
	return errors.New("team member not found")
}

func (r *fakeRepo) GetProject(ctx context.Context, id string) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, ok := r.projects[id]
	if !ok {
		return nil, nil
	}
	clone := *project
	return &clone, nil
}

func (r *fakeRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	clone := *user
	return &clone, nil
}

func (r *fakeRepo) RecordOrphanedFile(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans[path] = true
	return nil
}

func (r *fakeRepo) ListOrphanedFiles(ctx context.Context, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.orphans))
	for path := range r.orphans {
		if len(paths) >= limit {
			break
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (r *fakeRepo) DeleteOrphanedFile(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orphans, path)
	return nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// fakeStore records uploads and removals
type fakeStore struct {
	mu sync.Mutex

	objects map[string][]byte
	removed []string

	failUpload bool
	failRemove bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpload {
		return errInjected
	}
	s.objects[path] = data
	return nil
}

func (s *fakeStore) Remove(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRemove {
		return errInjected
	}
	for _, path := range paths {
		delete(s.objects, path)
		s.removed = append(s.removed, path)
	}
	return nil
}

func (s *fakeStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[path]; !ok {
		return "", errors.New("object not found")
	}
	return "https://signed.example.com/" + path, nil
}

// fakeDispatcher records dispatched events
type fakeDispatcher struct {
	mu     sync.Mutex
	events []notify.Event

	failDispatch bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, ev notify.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failDispatch {
		return errInjected
	}
	d.events = append(d.events, ev)
	return nil
}

func (d *fakeDispatcher) Close() error { return nil }

func (d *fakeDispatcher) eventsOfType(t notify.EventType) []notify.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []notify.Event
	for _, ev := range d.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
