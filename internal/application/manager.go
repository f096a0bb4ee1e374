package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studieo-app/studieo-api/internal/models"
	"github.com/studieo-app/studieo-api/internal/notify"
	"github.com/studieo-app/studieo-api/internal/objectstore"
	"github.com/studieo-app/studieo-api/internal/storage"
)

// DesignDocPath returns the storage path for an application's required
// document. The path is keyed by application id only.
func DesignDocPath(applicationID string) string {
	return applicationID + "/design-doc.pdf"
}

// Manager owns the application lifecycle state machine. Every operation
// takes the authenticated principal explicitly; there is no ambient
// session.
type Manager struct {
	repo          storage.Repository
	store         objectstore.Store
	dispatcher    notify.Dispatcher
	guard         *Guard
	signedURLTTL  time.Duration
	notifyTimeout time.Duration
}

// NewManager creates a new lifecycle manager
func NewManager(repo storage.Repository, store objectstore.Store, dispatcher notify.Dispatcher, guard *Guard) *Manager {
	return &Manager{
		repo:          repo,
		store:         store,
		dispatcher:    dispatcher,
		guard:         guard,
		signedURLTTL:  time.Hour,
		notifyTimeout: 10 * time.Second,
	}
}

// CheckLimits is the advisory eligibility check exposed to the web layer
func (m *Manager) CheckLimits(ctx context.Context, studentID string) (*models.StudentLimits, error) {
	return m.guard.CheckLimits(ctx, studentID)
}

// Create assembles the application aggregate: the row, the required
// document, the lead membership and the invitee memberships, in that
// order. Any step failure compensates everything created before it, so
// no orphaned file or row survives a failed create. A solo application
// is auto-submitted immediately.
func (m *Manager) Create(ctx context.Context, principal *models.User, req models.CreateApplicationRequest) (*models.Application, error) {
	if principal == nil {
		return nil, ErrUnauthenticated
	}
	if !principal.IsStudent() {
		return nil, ErrNotStudent
	}

	// Authoritative limit check; whatever the client displayed does not count
	limits, err := m.guard.CheckLimits(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check limits: %w", err)
	}
	if !limits.CanApply {
		return nil, &LimitError{Limits: limits}
	}

	existing, err := m.repo.GetApplicationByProjectAndLead(ctx, req.ProjectID, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing application: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyApplied
	}

	project, err := m.repo.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	teamSize := 1 + len(req.MemberIDs)
	if teamSize < project.MinStudents {
		return nil, boundsError(ErrTeamTooSmall, teamSize, project.MinStudents)
	}
	if teamSize > project.MaxStudents {
		return nil, boundsError(ErrTeamTooLarge, teamSize, project.MaxStudents)
	}

	if len(req.Document) == 0 {
		return nil, ErrDocumentRequired
	}

	now := time.Now()
	app := &models.Application{
		ID:        uuid.New().String(),
		ProjectID: req.ProjectID,
		LeadID:    principal.ID,
		Status:    models.StatusPending,
		Answers:   req.Answers,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.repo.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	docPath := DesignDocPath(app.ID)
	if err := m.store.Upload(ctx, docPath, req.Document, "application/pdf"); err != nil {
		m.rollbackCreate(ctx, app.ID, "")
		return nil, fmt.Errorf("failed to upload design document: %w", err)
	}

	if err := m.repo.SetApplicationDocument(ctx, app.ID, docPath); err != nil {
		m.rollbackCreate(ctx, app.ID, docPath)
		return nil, fmt.Errorf("failed to attach design document: %w", err)
	}
	app.DesignDocPath = docPath

	// The lead implicitly accepts by applying
	lead := &models.TeamMember{
		ApplicationID: app.ID,
		StudentID:     principal.ID,
		IsLead:        true,
		InviteStatus:  models.InviteAccepted,
		CreatedAt:     now,
	}
	if err := m.repo.CreateTeamMember(ctx, lead); err != nil {
		m.rollbackCreate(ctx, app.ID, docPath)
		return nil, fmt.Errorf("failed to create lead membership: %w", err)
	}

	for _, studentID := range req.MemberIDs {
		member := &models.TeamMember{
			ApplicationID: app.ID,
			StudentID:     studentID,
			IsLead:        false,
			InviteStatus:  models.InvitePending,
			CreatedAt:     now,
		}
		if err := m.repo.CreateTeamMember(ctx, member); err != nil {
			m.rollbackCreate(ctx, app.ID, docPath)
			return nil, fmt.Errorf("failed to create team member: %w", err)
		}
	}

	slog.Info("application created",
		"id", app.ID,
		"project", app.ProjectID,
		"lead", app.LeadID,
		"team_size", teamSize,
	)

	if len(req.MemberIDs) > 0 {
		m.notifyInvitees(ctx, app, project, req.MemberIDs)
		return app, nil
	}

	// Solo application: no quorum to wait for
	if _, err := m.Submit(ctx, nil, app.ID, true); err != nil {
		slog.Error("failed to auto-submit solo application", "error", err, "id", app.ID)
		return app, nil
	}

	updated, err := m.repo.GetApplication(ctx, app.ID)
	if err != nil || updated == nil {
		return app, nil
	}
	return updated, nil
}

// rollbackCreate compensates a failed create in reverse order: team
// members and the application row go in one cascade delete, then the
// uploaded document if it made it to storage.
func (m *Manager) rollbackCreate(ctx context.Context, applicationID, docPath string) {
	if err := m.repo.DeleteApplicationCascade(ctx, applicationID); err != nil {
		slog.Error("rollback failed to delete application", "error", err, "id", applicationID)
	}

	if docPath != "" {
		m.removeDocument(ctx, docPath)
	}
}

// removeDocument deletes a stored object; if the delete itself fails the
// path is recorded for the janitor to retry
func (m *Manager) removeDocument(ctx context.Context, docPath string) {
	if err := m.store.Remove(ctx, []string{docPath}); err != nil {
		slog.Error("failed to remove design document", "error", err, "path", docPath)
		if err := m.repo.RecordOrphanedFile(ctx, docPath); err != nil {
			slog.Error("failed to record orphaned file", "error", err, "path", docPath)
		}
	}
}

// Submit moves a PENDING application to SUBMITTED. The manual path
// requires the team lead; the auto path runs the atomic quorum check and
// fails without touching state when any invite is still open. After the
// transition, OPEN projects are decided immediately by capacity.
func (m *Manager) Submit(ctx context.Context, principal *models.User, id string, isAuto bool) (*models.SubmitResult, error) {
	app, err := m.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}

	if isAuto {
		submitted, err := m.repo.AutoSubmitApplication(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("auto-submit failed: %w", err)
		}
		if !submitted {
			return nil, ErrMembersNotConfirmed
		}
	} else {
		if principal == nil {
			return nil, ErrUnauthenticated
		}
		if app.LeadID != principal.ID {
			return nil, ErrNotTeamLead
		}
		if app.Status != models.StatusPending {
			return nil, ErrNotPending
		}

		ok, err := m.repo.TransitionStatus(ctx, id, models.StatusPending, models.StatusSubmitted)
		if err != nil {
			return nil, fmt.Errorf("failed to submit application: %w", err)
		}
		if !ok {
			// A concurrent transition landed first
			return nil, ErrNotPending
		}
	}

	slog.Info("application submitted", "id", id, "auto", isAuto)

	return m.afterSubmit(ctx, app)
}

// afterSubmit fires the submitted notifications and, for OPEN projects,
// runs the atomic capacity decision
func (m *Manager) afterSubmit(ctx context.Context, app *models.Application) (*models.SubmitResult, error) {
	project, err := m.repo.GetProject(ctx, app.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	members, err := m.repo.ListTeamMembers(ctx, app.ID)
	if err != nil {
		// The transition landed; notifications are best-effort
		slog.Error("failed to list team members for notification", "error", err, "id", app.ID)
		members = nil
	}

	for _, member := range members {
		m.dispatch(notify.Event{
			Type:              notify.EventApplicationSubmitted,
			Recipient:         notify.Recipient{Email: member.Email, Name: member.Name},
			ApplicationID:     app.ID,
			ProjectID:         project.ID,
			ProjectTitle:      project.Title,
			NeedsConfirmation: member.InviteStatus != models.InviteAccepted,
			OccurredAt:        time.Now(),
		})
	}

	if project.AccessType != models.AccessOpen {
		// Manual review: tell the company a new application awaits
		if project.ContactEmail != "" {
			m.dispatch(notify.Event{
				Type:          notify.EventNewApplication,
				Recipient:     notify.Recipient{Email: project.ContactEmail, Name: project.ContactName},
				ApplicationID: app.ID,
				ProjectID:     project.ID,
				ProjectTitle:  project.Title,
				OccurredAt:    time.Now(),
			})
		}

		return &models.SubmitResult{Success: true, AutoApproved: false}, nil
	}

	decision, err := m.repo.AutoDecideOpenApplication(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("auto-decide failed: %w", err)
	}

	slog.Info("open application auto-decided", "id", app.ID, "decision", decision)

	if decision == models.StatusAccepted {
		m.notifyDecision(project, members, app.ID, true)
		return &models.SubmitResult{Success: true, AutoApproved: true}, nil
	}

	// Capacity exhausted: the row advanced to REJECTED, but for the
	// caller this is an unsuccessful outcome, not a storage error
	m.notifyDecision(project, members, app.ID, false)
	return &models.SubmitResult{
		Success:      false,
		AutoApproved: false,
		Message:      "the project has no remaining team capacity",
	}, nil
}

// Accept decides a SUBMITTED application in the team's favor. Company
// reviewers only.
func (m *Manager) Accept(ctx context.Context, principal *models.User, id string) error {
	return m.decide(ctx, principal, id, models.StatusAccepted)
}

// Reject turns down a SUBMITTED application. Company reviewers only.
func (m *Manager) Reject(ctx context.Context, principal *models.User, id string) error {
	return m.decide(ctx, principal, id, models.StatusRejected)
}

func (m *Manager) decide(ctx context.Context, principal *models.User, id string, decision models.ApplicationStatus) error {
	if principal == nil {
		return ErrUnauthenticated
	}

	app, err := m.repo.GetApplication(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return ErrApplicationNotFound
	}

	project, err := m.repo.GetProject(ctx, app.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return ErrProjectNotFound
	}

	if !principal.IsCompanyMember(project.CompanyID) {
		return ErrNotAuthorized
	}

	ok, err := m.repo.TransitionStatus(ctx, id, models.StatusSubmitted, decision)
	if err != nil {
		return fmt.Errorf("failed to decide application: %w", err)
	}
	if !ok {
		return ErrNotSubmitted
	}

	slog.Info("application decided", "id", id, "decision", decision, "reviewer", principal.ID)

	members, err := m.repo.ListTeamMembers(ctx, id)
	if err != nil {
		slog.Error("failed to list team members for notification", "error", err, "id", id)
		return nil
	}

	m.notifyDecision(project, members, id, decision == models.StatusAccepted)
	return nil
}

// notifyDecision sends per-member accept/reject notifications. Acceptance
// discloses the project contact so students can reach out; rejection
// does not.
func (m *Manager) notifyDecision(project *models.Project, members []*models.TeamMember, applicationID string, accepted bool) {
	eventType := notify.EventApplicationRejected
	var contact *notify.Contact
	if accepted {
		eventType = notify.EventApplicationAccepted
		contact = &notify.Contact{
			Name:  project.ContactName,
			Email: project.ContactEmail,
			Role:  project.ContactRole,
		}
	}

	for _, member := range members {
		m.dispatch(notify.Event{
			Type:          eventType,
			Recipient:     notify.Recipient{Email: member.Email, Name: member.Name},
			ApplicationID: applicationID,
			ProjectID:     project.ID,
			ProjectTitle:  project.Title,
			Contact:       contact,
			OccurredAt:    time.Now(),
		})
	}
}

// Withdraw removes a PENDING application at the lead's request, cascading
// members and the stored document, and notifies invited members
func (m *Manager) Withdraw(ctx context.Context, principal *models.User, id string) error {
	if principal == nil {
		return ErrUnauthenticated
	}

	app, err := m.repo.GetApplication(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return ErrApplicationNotFound
	}

	if app.LeadID != principal.ID {
		return ErrNotTeamLead
	}
	if app.Status != models.StatusPending {
		return ErrNotPending
	}

	project, err := m.repo.GetProject(ctx, app.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	// Fetch members before the cascade delete removes them
	members, err := m.repo.ListTeamMembers(ctx, id)
	if err != nil {
		slog.Error("failed to list team members before withdrawal", "error", err, "id", id)
		members = nil
	}

	if err := m.repo.DeleteApplicationCascade(ctx, id); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}

	if app.DesignDocPath != "" {
		m.removeDocument(ctx, app.DesignDocPath)
	}

	slog.Info("application withdrawn", "id", id, "lead", principal.ID)

	for _, member := range members {
		if member.IsLead {
			continue
		}
		ev := notify.Event{
			Type:          notify.EventApplicationWithdrawn,
			Recipient:     notify.Recipient{Email: member.Email, Name: member.Name},
			ApplicationID: id,
			OccurredAt:    time.Now(),
		}
		if project != nil {
			ev.ProjectID = project.ID
			ev.ProjectTitle = project.Title
		}
		m.dispatch(ev)
	}

	return nil
}

// Delete is the administrative cleanup path: the owning company may
// remove an application in any status. Cascades members and the stored
// document. No notifications; this is not a decision.
func (m *Manager) Delete(ctx context.Context, principal *models.User, id string) error {
	if principal == nil {
		return ErrUnauthenticated
	}

	app, err := m.repo.GetApplication(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return ErrApplicationNotFound
	}

	project, err := m.repo.GetProject(ctx, app.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return ErrProjectNotFound
	}

	if !principal.IsCompanyMember(project.CompanyID) {
		return ErrNotAuthorized
	}

	if err := m.repo.DeleteApplicationCascade(ctx, id); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}

	if app.DesignDocPath != "" {
		m.removeDocument(ctx, app.DesignDocPath)
	}

	slog.Info("application deleted", "id", id, "company", principal.CompanyID)
	return nil
}

// Get returns an application to anyone on the team or in the owning
// company
func (m *Manager) Get(ctx context.Context, principal *models.User, id string) (*models.Application, error) {
	app, err := m.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}

	if err := m.authorizeAccess(ctx, principal, app); err != nil {
		return nil, err
	}

	return app, nil
}

// DesignDocURL produces a short-lived signed link to the stored document.
// Team members and the owning company only; links expire after an hour
// and must not be cached.
func (m *Manager) DesignDocURL(ctx context.Context, principal *models.User, id string) (string, error) {
	app, err := m.repo.GetApplication(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return "", ErrApplicationNotFound
	}

	if err := m.authorizeAccess(ctx, principal, app); err != nil {
		return "", err
	}

	if app.DesignDocPath == "" {
		return "", ErrDocumentMissing
	}

	url, err := m.store.SignedURL(ctx, app.DesignDocPath, m.signedURLTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign document url: %w", err)
	}

	return url, nil
}

// authorizeAccess allows the lead, any team member, or a member of the
// owning company
func (m *Manager) authorizeAccess(ctx context.Context, principal *models.User, app *models.Application) error {
	if principal == nil {
		return ErrUnauthenticated
	}

	if app.LeadID == principal.ID {
		return nil
	}

	member, err := m.repo.GetTeamMember(ctx, app.ID, principal.ID)
	if err != nil {
		return fmt.Errorf("failed to get team member: %w", err)
	}
	if member != nil {
		return nil
	}

	project, err := m.repo.GetProject(ctx, app.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}
	if project != nil && principal.IsCompanyMember(project.CompanyID) {
		return nil
	}

	return ErrNotAuthorized
}

// RespondToInvite records an invited member's confirmation or decline.
// When the last open invite is accepted the application auto-submits;
// the returned result is nil while the team is still forming.
func (m *Manager) RespondToInvite(ctx context.Context, principal *models.User, id string, accept bool) (*models.SubmitResult, error) {
	if principal == nil {
		return nil, ErrUnauthenticated
	}

	app, err := m.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}
	if app.Status != models.StatusPending {
		return nil, ErrNotPending
	}

	member, err := m.repo.GetTeamMember(ctx, id, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team member: %w", err)
	}
	if member == nil || member.IsLead {
		return nil, ErrInviteNotFound
	}
	if member.InviteStatus != models.InvitePending {
		return nil, ErrInviteAlreadyAnswered
	}

	status := models.InviteDeclined
	if accept {
		status = models.InviteAccepted
	}

	if err := m.repo.UpdateInviteStatus(ctx, id, principal.ID, status); err != nil {
		return nil, fmt.Errorf("failed to update invite status: %w", err)
	}

	slog.Info("invite answered", "application", id, "student", principal.ID, "accepted", accept)

	if !accept {
		return nil, nil
	}

	// Quorum may now be met; the atomic procedure re-checks under a lock
	// so concurrent confirmations cannot double-submit
	submitted, err := m.repo.AutoSubmitApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auto-submit failed: %w", err)
	}
	if !submitted {
		return nil, nil
	}

	slog.Info("application submitted", "id", id, "auto", true)
	return m.afterSubmit(ctx, app)
}

// notifyInvitees dispatches team-invite notifications after a create.
// Failures never unwind the created aggregate.
func (m *Manager) notifyInvitees(ctx context.Context, app *models.Application, project *models.Project, memberIDs []string) {
	for _, studentID := range memberIDs {
		user, err := m.repo.GetUser(ctx, studentID)
		if err != nil || user == nil {
			slog.Error("failed to load invitee for notification", "error", err, "student", studentID)
			continue
		}

		m.dispatch(notify.Event{
			Type:          notify.EventTeamInvite,
			Recipient:     notify.Recipient{Email: user.Email, Name: user.Name},
			ApplicationID: app.ID,
			ProjectID:     project.ID,
			ProjectTitle:  project.Title,
			OccurredAt:    time.Now(),
		})
	}
}

// dispatch queues one notification. The queue write is detached from the
// caller's context so a cancelled request cannot lose an event for a
// transition that already committed; failures are logged and swallowed.
func (m *Manager) dispatch(ev notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), m.notifyTimeout)
	defer cancel()

	if err := m.dispatcher.Dispatch(ctx, ev); err != nil {
		slog.Error("failed to dispatch notification",
			"error", err,
			"type", ev.Type,
			"application_id", ev.ApplicationID,
		)
	}
}
