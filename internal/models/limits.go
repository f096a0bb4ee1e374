package models

// StudentLimits is the computed eligibility snapshot for a student.
// ActiveProjects counts ACCEPTED applications where the student is lead,
// ActiveApplications counts PENDING and SUBMITTED ones. Not persisted.
type StudentLimits struct {
	CanApply           bool     `json:"can_apply"`
	ActiveProjects     int      `json:"active_projects"`
	ActiveApplications int      `json:"active_applications"`
	Errors             []string `json:"errors,omitempty"`
}
