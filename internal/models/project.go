package models

import (
	"time"
)

// AccessType controls how submitted applications are decided
type AccessType string

const (
	// AccessOpen projects are decided automatically by team capacity
	AccessOpen AccessType = "OPEN"
	// AccessClosed projects require manual review by the company
	AccessClosed AccessType = "CLOSED"
)

// Project is the posting an application targets. Read-mostly for this
// service; rows are owned by the wider platform.
type Project struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	Title       string     `json:"title"`
	MinStudents int        `json:"min_students"`
	MaxStudents int        `json:"max_students"`
	MaxTeams    int        `json:"max_teams"`
	AccessType  AccessType `json:"access_type"`

	// Contact details, surfaced to students only after acceptance
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactRole  string `json:"contact_role,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
