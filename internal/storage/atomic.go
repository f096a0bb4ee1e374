package storage

import (
	"context"
	"fmt"

	"github.com/studieo-app/studieo-api/internal/models"
)

// The two check-then-act decisions of the lifecycle run as single
// transactions with row locks. Client-side "read count, then write" is
// not safe under concurrent confirmations/submissions.

// AutoSubmitApplication re-validates, inside one transaction, that every
// team member has accepted their invite, then flips the application from
// PENDING to SUBMITTED. Returns false (and leaves the row untouched) when
// quorum is not met or the application is no longer PENDING.
func (r *PostgresRepository) AutoSubmitApplication(ctx context.Context, id string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the application row so concurrent confirmations serialize here
	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM applications WHERE id = $1 FOR UPDATE`, id,
	).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("failed to lock application: %w", err)
	}

	if models.ApplicationStatus(status) != models.StatusPending {
		return false, nil
	}

	var unconfirmed int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM team_members WHERE application_id = $1 AND invite_status <> 'ACCEPTED'`, id,
	).Scan(&unconfirmed)
	if err != nil {
		return false, fmt.Errorf("failed to count unconfirmed members: %w", err)
	}

	if unconfirmed > 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE applications SET status = 'SUBMITTED', submitted_at = NOW(), updated_at = NOW() WHERE id = $1`, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to submit application: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit auto-submit: %w", err)
	}

	return true, nil
}

// AutoDecideOpenApplication re-checks the accepted-team count against the
// project's max_teams inside one transaction and flips the SUBMITTED
// application to ACCEPTED or REJECTED. The project row is locked so two
// concurrent submissions cannot both pass the capacity check.
func (r *PostgresRepository) AutoDecideOpenApplication(ctx context.Context, id string) (models.ApplicationStatus, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var projectID, status string
	err = tx.QueryRow(ctx,
		`SELECT project_id, status FROM applications WHERE id = $1 FOR UPDATE`, id,
	).Scan(&projectID, &status)
	if err != nil {
		return "", fmt.Errorf("failed to lock application: %w", err)
	}

	if models.ApplicationStatus(status) != models.StatusSubmitted {
		return "", fmt.Errorf("application %s is not submitted", id)
	}

	var maxTeams int
	err = tx.QueryRow(ctx,
		`SELECT max_teams FROM projects WHERE id = $1 FOR UPDATE`, projectID,
	).Scan(&maxTeams)
	if err != nil {
		return "", fmt.Errorf("failed to lock project: %w", err)
	}

	var accepted int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE project_id = $1 AND status = 'ACCEPTED'`, projectID,
	).Scan(&accepted)
	if err != nil {
		return "", fmt.Errorf("failed to count accepted applications: %w", err)
	}

	decision := models.StatusAccepted
	if accepted >= maxTeams {
		decision = models.StatusRejected
	}

	_, err = tx.Exec(ctx,
		`UPDATE applications SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(decision),
	)
	if err != nil {
		return "", fmt.Errorf("failed to decide application: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit auto-decide: %w", err)
	}

	return decision, nil
}
