package models

import (
	"time"
)

// ApplicationStatus represents the lifecycle state of an application
type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "PENDING"
	StatusSubmitted ApplicationStatus = "SUBMITTED"
	StatusAccepted  ApplicationStatus = "ACCEPTED"
	StatusRejected  ApplicationStatus = "REJECTED"
)

// IsTerminal returns true if the status is a terminal state
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransitionTo reports whether the status machine allows moving to next.
// Status only moves forward: PENDING -> SUBMITTED -> {ACCEPTED, REJECTED}.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusAccepted || next == StatusRejected
	default:
		return false
	}
}

// InviteStatus represents the state of a team member invitation
type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteAccepted InviteStatus = "ACCEPTED"
	InviteDeclined InviteStatus = "DECLINED"
)

// Application is a team's bid to work on a project, owned by one team lead
type Application struct {
	ID            string            `json:"id"`
	ProjectID     string            `json:"project_id"`
	LeadID        string            `json:"lead_id"`
	Status        ApplicationStatus `json:"status"`
	DesignDocPath string            `json:"design_doc_path,omitempty"`
	Answers       []Answer          `json:"answers,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	SubmittedAt   *time.Time        `json:"submitted_at,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Answer is a free-form question/answer pair attached to an application
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// TeamMember associates a student with an application, either as the
// lead or as an invitee. Email and Name are joined from the user row
// for notification payloads.
type TeamMember struct {
	ApplicationID string       `json:"application_id"`
	StudentID     string       `json:"student_id"`
	IsLead        bool         `json:"is_lead"`
	InviteStatus  InviteStatus `json:"invite_status"`
	Email         string       `json:"email,omitempty"`
	Name          string       `json:"name,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// CreateApplicationRequest represents a request to create an application
type CreateApplicationRequest struct {
	ProjectID string   `json:"project_id"`
	MemberIDs []string `json:"member_ids,omitempty"`
	Answers   []Answer `json:"answers,omitempty"`
	Document  []byte   `json:"-"`
}

// SubmitResult is the caller-visible outcome of a submit call. An OPEN
// project that is already at capacity yields Success=false with a message
// even though the row advanced to REJECTED (soft failure, not an error).
type SubmitResult struct {
	Success      bool   `json:"success"`
	AutoApproved bool   `json:"auto_approved"`
	Message      string `json:"message,omitempty"`
}
