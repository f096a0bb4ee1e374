package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/studieo-app/studieo-api/internal/models"
)

// Domain errors. Every illegal operation fails with one of these naming
// the violated rule; handlers map them to HTTP responses via errors.Is.
var (
	ErrUnauthenticated       = errors.New("not authenticated")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrNotStudent            = errors.New("only students can apply")
	ErrNotTeamLead           = errors.New("only the team lead can perform this action")
	ErrApplicationNotFound   = errors.New("application not found")
	ErrProjectNotFound       = errors.New("project not found")
	ErrAlreadyApplied        = errors.New("an application for this project already exists")
	ErrTeamTooSmall          = errors.New("team is below the project minimum")
	ErrTeamTooLarge          = errors.New("team exceeds the project maximum")
	ErrDocumentRequired      = errors.New("design document is required")
	ErrDocumentMissing       = errors.New("no design document uploaded")
	ErrNotPending            = errors.New("application is not pending")
	ErrNotSubmitted          = errors.New("application is not submitted")
	ErrMembersNotConfirmed   = errors.New("not all team members have confirmed")
	ErrInviteNotFound        = errors.New("no invitation for this student")
	ErrInviteAlreadyAnswered = errors.New("invitation already answered")
	ErrLimitExceeded         = errors.New("application limits exceeded")
)

// LimitError carries the eligibility snapshot whose ceilings were hit.
// errors.Is(err, ErrLimitExceeded) matches it.
type LimitError struct {
	Limits *models.StudentLimits
}

func (e *LimitError) Error() string {
	if e.Limits == nil || len(e.Limits.Errors) == 0 {
		return ErrLimitExceeded.Error()
	}
	return strings.Join(e.Limits.Errors, "; ")
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// boundsError wraps ErrTeamTooSmall/ErrTeamTooLarge with the concrete
// numbers so the caller sees which bound failed
func boundsError(sentinel error, size, bound int) error {
	return fmt.Errorf("%w: team of %d, bound is %d", sentinel, size, bound)
}
