package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studieo-app/studieo-api/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateApplication inserts a new application row
func (r *PostgresRepository) CreateApplication(ctx context.Context, app *models.Application) error {
	answersJSON, err := json.Marshal(app.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	query := `
		INSERT INTO applications (id, project_id, lead_id, status, design_doc_path, answers, created_at, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.pool.Exec(ctx, query,
		app.ID,
		app.ProjectID,
		app.LeadID,
		string(app.Status),
		nullString(app.DesignDocPath),
		answersJSON,
		app.CreatedAt,
		nullTime(app.SubmittedAt),
		app.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return nil
}

const applicationColumns = `id, project_id, lead_id, status, design_doc_path, answers, created_at, submitted_at, updated_at`

func scanApplication(row pgx.Row) (*models.Application, error) {
	var app models.Application
	var statusStr string
	var docPath sql.NullString
	var submittedAt sql.NullTime
	var answersJSON []byte

	err := row.Scan(
		&app.ID,
		&app.ProjectID,
		&app.LeadID,
		&statusStr,
		&docPath,
		&answersJSON,
		&app.CreatedAt,
		&submittedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.Status = models.ApplicationStatus(statusStr)
	app.DesignDocPath = docPath.String

	if submittedAt.Valid {
		app.SubmittedAt = &submittedAt.Time
	}

	if answersJSON != nil {
		if err := json.Unmarshal(answersJSON, &app.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
	}

	return &app, nil
}

// GetApplication retrieves an application by ID
func (r *PostgresRepository) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1`, applicationColumns)

	app, err := scanApplication(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	return app, nil
}

// GetApplicationByProjectAndLead retrieves the unique application for a
// (project, lead) pair, or nil if none exists
func (r *PostgresRepository) GetApplicationByProjectAndLead(ctx context.Context, projectID, leadID string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE project_id = $1 AND lead_id = $2`, applicationColumns)

	app, err := scanApplication(r.pool.QueryRow(ctx, query, projectID, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application by project and lead: %w", err)
	}

	return app, nil
}

// SetApplicationDocument records the uploaded design document path
func (r *PostgresRepository) SetApplicationDocument(ctx context.Context, id, path string) error {
	query := `UPDATE applications SET design_doc_path = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, path)
	if err != nil {
		return fmt.Errorf("failed to set application document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("application not found: %s", id)
	}

	return nil
}

// TransitionStatus performs a conditional status flip. The WHERE clause
// re-verifies the expected current status so concurrent transitions are
// serialized by the row update.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, id string, from, to models.ApplicationStatus) (bool, error) {
	query := `
		UPDATE applications
		SET status = $3,
		    submitted_at = CASE WHEN $3 = 'SUBMITTED' THEN NOW() ELSE submitted_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("failed to transition application status: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// DeleteApplicationCascade removes the application and its team members
// in one transaction, children first. The schema has no ON DELETE CASCADE;
// the orchestration is explicit.
func (r *PostgresRepository) DeleteApplicationCascade(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE application_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete team members: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("application not found: %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	return nil
}

// CountLeadApplications counts applications where the student is lead and
// the status is one of the given set
func (r *PostgresRepository) CountLeadApplications(ctx context.Context, studentID string, statuses []models.ApplicationStatus) (int, error) {
	strs := make([]string, 0, len(statuses))
	for _, s := range statuses {
		strs = append(strs, string(s))
	}

	query := `SELECT COUNT(*) FROM applications WHERE lead_id = $1 AND status = ANY($2)`

	var count int
	if err := r.pool.QueryRow(ctx, query, studentID, strs).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}

	return count, nil
}

// CreateTeamMember inserts a team member row
func (r *PostgresRepository) CreateTeamMember(ctx context.Context, m *models.TeamMember) error {
	query := `
		INSERT INTO team_members (application_id, student_id, is_lead, invite_status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ApplicationID,
		m.StudentID,
		m.IsLead,
		string(m.InviteStatus),
		m.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create team member: %w", err)
	}

	return nil
}

// GetTeamMember retrieves a single member of an application
func (r *PostgresRepository) GetTeamMember(ctx context.Context, applicationID, studentID string) (*models.TeamMember, error) {
	query := `
		SELECT tm.application_id, tm.student_id, tm.is_lead, tm.invite_status, tm.created_at, u.email, u.name
		FROM team_members tm
		JOIN users u ON u.id = tm.student_id
		WHERE tm.application_id = $1 AND tm.student_id = $2
	`

	var m models.TeamMember
	var statusStr string

	err := r.pool.QueryRow(ctx, query, applicationID, studentID).Scan(
		&m.ApplicationID,
		&m.StudentID,
		&m.IsLead,
		&statusStr,
		&m.CreatedAt,
		&m.Email,
		&m.Name,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get team member: %w", err)
	}

	m.InviteStatus = models.InviteStatus(statusStr)
	return &m, nil
}

// ListTeamMembers returns all members of an application with user contact
// info joined in, lead first
func (r *PostgresRepository) ListTeamMembers(ctx context.Context, applicationID string) ([]*models.TeamMember, error) {
	query := `
		SELECT tm.application_id, tm.student_id, tm.is_lead, tm.invite_status, tm.created_at, u.email, u.name
		FROM team_members tm
		JOIN users u ON u.id = tm.student_id
		WHERE tm.application_id = $1
		ORDER BY tm.is_lead DESC, tm.created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []*models.TeamMember

	for rows.Next() {
		var m models.TeamMember
		var statusStr string

		err := rows.Scan(
			&m.ApplicationID,
			&m.StudentID,
			&m.IsLead,
			&statusStr,
			&m.CreatedAt,
			&m.Email,
			&m.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}

		m.InviteStatus = models.InviteStatus(statusStr)
		members = append(members, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team members: %w", err)
	}

	return members, nil
}

// UpdateInviteStatus updates an invited member's response
func (r *PostgresRepository) UpdateInviteStatus(ctx context.Context, applicationID, studentID string, status models.InviteStatus) error {
	query := `UPDATE team_members SET invite_status = $3 WHERE application_id = $1 AND student_id = $2`

	result, err := r.pool.Exec(ctx, query, applicationID, studentID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update invite status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("team member not found: %s/%s", applicationID, studentID)
	}

	return nil
}

// GetProject retrieves a project by ID
func (r *PostgresRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := `
		SELECT id, company_id, title, min_students, max_students, max_teams, access_type, contact_name, contact_email, contact_role, created_at
		FROM projects
		WHERE id = $1
	`

	var p models.Project
	var accessStr string
	var contactName, contactEmail, contactRole sql.NullString

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.CompanyID,
		&p.Title,
		&p.MinStudents,
		&p.MaxStudents,
		&p.MaxTeams,
		&accessStr,
		&contactName,
		&contactEmail,
		&contactRole,
		&p.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.AccessType = models.AccessType(accessStr)
	p.ContactName = contactName.String
	p.ContactEmail = contactEmail.String
	p.ContactRole = contactRole.String

	return &p, nil
}

// GetUser retrieves a user profile by ID
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, email, name, role, company_id FROM users WHERE id = $1`

	var u models.User
	var roleStr string
	var companyID sql.NullString

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&roleStr,
		&companyID,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Role = models.Role(roleStr)
	u.CompanyID = companyID.String

	return &u, nil
}

// RecordOrphanedFile records a storage path whose compensating delete
// failed, for the janitor to retry
func (r *PostgresRepository) RecordOrphanedFile(ctx context.Context, path string) error {
	query := `
		INSERT INTO orphaned_files (path, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (path) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, path); err != nil {
		return fmt.Errorf("failed to record orphaned file: %w", err)
	}

	return nil
}

// ListOrphanedFiles returns recorded orphan paths, oldest first
func (r *PostgresRepository) ListOrphanedFiles(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT path FROM orphaned_files ORDER BY created_at ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned file: %w", err)
		}
		paths = append(paths, p)
	}

	return paths, rows.Err()
}

// DeleteOrphanedFile removes an orphan record once the object is gone
func (r *PostgresRepository) DeleteOrphanedFile(ctx context.Context, path string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM orphaned_files WHERE path = $1`, path); err != nil {
		return fmt.Errorf("failed to delete orphaned file record: %w", err)
	}

	return nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
