package storage

import (
	"context"

	"github.com/studieo-app/studieo-api/internal/models"
)

// Repository defines the interface for application persistence
type Repository interface {
	// Applications
	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	GetApplicationByProjectAndLead(ctx context.Context, projectID, leadID string) (*models.Application, error)
	SetApplicationDocument(ctx context.Context, id, path string) error
	// TransitionStatus flips status with a conditional update. Returns
	// false if the row was not in from-state, so a losing concurrent
	// caller fails cleanly instead of overwriting a landed transition.
	TransitionStatus(ctx context.Context, id string, from, to models.ApplicationStatus) (bool, error)
	// DeleteApplicationCascade removes the application and its team
	// members in one transaction, children first.
	DeleteApplicationCascade(ctx context.Context, id string) error
	CountLeadApplications(ctx context.Context, studentID string, statuses []models.ApplicationStatus) (int, error)

	// Atomic server-side procedures (see atomic.go)
	AutoSubmitApplication(ctx context.Context, id string) (bool, error)
	AutoDecideOpenApplication(ctx context.Context, id string) (models.ApplicationStatus, error)

	// Team members
	CreateTeamMember(ctx context.Context, m *models.TeamMember) error
	GetTeamMember(ctx context.Context, applicationID, studentID string) (*models.TeamMember, error)
	ListTeamMembers(ctx context.Context, applicationID string) ([]*models.TeamMember, error)
	UpdateInviteStatus(ctx context.Context, applicationID, studentID string, status models.InviteStatus) error

	// Projects and users (read-mostly, rows owned by the wider platform)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Orphaned storage objects left behind by failed compensating deletes
	RecordOrphanedFile(ctx context.Context, path string) error
	ListOrphanedFiles(ctx context.Context, limit int) ([]string, error)
	DeleteOrphanedFile(ctx context.Context, path string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
