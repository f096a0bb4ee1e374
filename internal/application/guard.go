package application

import (
	"context"
	"fmt"

	"github.com/studieo-app/studieo-api/internal/models"
	"github.com/studieo-app/studieo-api/internal/storage"
)

// Default eligibility ceilings. Overridable per deployment through
// config, but these are the business rule.
const (
	DefaultMaxActiveProjects     = 3
	DefaultMaxActiveApplications = 20
)

// Limits holds the eligibility ceilings
type Limits struct {
	MaxActiveProjects     int
	MaxActiveApplications int
}

// Guard computes whether a student may create a new application. Pure
// read: the authoritative check happens again inside Manager.Create,
// client-displayed limits are advisory only.
type Guard struct {
	repo   storage.Repository
	limits Limits
}

// NewGuard creates a new eligibility guard
func NewGuard(repo storage.Repository, limits Limits) *Guard {
	if limits.MaxActiveProjects <= 0 {
		limits.MaxActiveProjects = DefaultMaxActiveProjects
	}
	if limits.MaxActiveApplications <= 0 {
		limits.MaxActiveApplications = DefaultMaxActiveApplications
	}

	return &Guard{
		repo:   repo,
		limits: limits,
	}
}

// CheckLimits computes the eligibility snapshot for a student. An empty
// student id yields canApply=false with an unauthenticated reason and
// zero counts.
func (g *Guard) CheckLimits(ctx context.Context, studentID string) (*models.StudentLimits, error) {
	if studentID == "" {
		return &models.StudentLimits{
			CanApply: false,
			Errors:   []string{"not authenticated"},
		}, nil
	}

	activeProjects, err := g.repo.CountLeadApplications(ctx, studentID, []models.ApplicationStatus{
		models.StatusAccepted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count active projects: %w", err)
	}

	activeApplications, err := g.repo.CountLeadApplications(ctx, studentID, []models.ApplicationStatus{
		models.StatusPending,
		models.StatusSubmitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count active applications: %w", err)
	}

	limits := &models.StudentLimits{
		ActiveProjects:     activeProjects,
		ActiveApplications: activeApplications,
	}

	if activeProjects >= g.limits.MaxActiveProjects {
		limits.Errors = append(limits.Errors,
			fmt.Sprintf("you already have %d active projects (maximum %d)", activeProjects, g.limits.MaxActiveProjects))
	}

	if activeApplications >= g.limits.MaxActiveApplications {
		limits.Errors = append(limits.Errors,
			fmt.Sprintf("you already have %d active applications (maximum %d)", activeApplications, g.limits.MaxActiveApplications))
	}

	limits.CanApply = len(limits.Errors) == 0
	return limits, nil
}
