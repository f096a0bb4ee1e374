package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studieo-app/studieo-api/internal/models"
	"github.com/studieo-app/studieo-api/internal/notify"
)

type testEnv struct {
	repo       *fakeRepo
	store      *fakeStore
	dispatcher *fakeDispatcher
	manager    *Manager

	lead    *models.User
	member2 *models.User
	member3 *models.User
	company *models.User
}

func newTestEnv(t *testing.T, project *models.Project) *testEnv {
	t.Helper()

	repo := newFakeRepo()
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}

	env := &testEnv{
		repo:       repo,
		store:      store,
		dispatcher: dispatcher,
		manager:    NewManager(repo, store, dispatcher, NewGuard(repo, Limits{})),
		lead:       &models.User{ID: "stu-lead", Email: "lead@example.com", Name: "Lena Lead", Role: models.RoleStudent},
		member2:    &models.User{ID: "stu-2", Email: "mia@example.com", Name: "Mia Member", Role: models.RoleStudent},
		member3:    &models.User{ID: "stu-3", Email: "noa@example.com", Name: "Noa Member", Role: models.RoleStudent},
		company:    &models.User{ID: "comp-user", Email: "hr@acme.example.com", Name: "Casey HR", Role: models.RoleCompany, CompanyID: "comp-1"},
	}

	for _, u := range []*models.User{env.lead, env.member2, env.member3, env.company} {
		repo.users[u.ID] = u
	}
	repo.projects[project.ID] = project

	return env
}

func closedProject() *models.Project {
	return &models.Project{
		ID:           "proj-1",
		CompanyID:    "comp-1",
		Title:        "Inventory Dashboard",
		MinStudents:  1,
		MaxStudents:  4,
		MaxTeams:     2,
		AccessType:   models.AccessClosed,
		ContactName:  "Casey HR",
		ContactEmail: "hr@acme.example.com",
		ContactRole:  "Engineering Manager",
	}
}

func openProject() *models.Project {
	p := closedProject()
	p.AccessType = models.AccessOpen
	p.MaxTeams = 1
	return p
}

func createRequest(memberIDs ...string) models.CreateApplicationRequest {
	return models.CreateApplicationRequest{
		ProjectID: "proj-1",
		MemberIDs: memberIDs,
		Answers:   []models.Answer{{Question: "Why you?", Answer: "We built one before."}},
		Document:  []byte("%PDF-1.4 design"),
	}
}

// Create

func TestCreateSoloAutoSubmits(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)
	require.NotNil(t, app)

	// No invites to wait for, so the application submits immediately
	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.NotNil(t, app.SubmittedAt)
	assert.Equal(t, DesignDocPath(app.ID), app.DesignDocPath)
	assert.Contains(t, env.store.objects, app.DesignDocPath)

	members, err := env.repo.ListTeamMembers(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].IsLead)
	assert.Equal(t, models.InviteAccepted, members[0].InviteStatus)

	// Closed project: submitted mail to the team, heads-up to the company
	assert.Len(t, env.dispatcher.eventsOfType(notify.EventApplicationSubmitted), 1)
	newApp := env.dispatcher.eventsOfType(notify.EventNewApplication)
	require.Len(t, newApp, 1)
	assert.Equal(t, "hr@acme.example.com", newApp[0].Recipient.Email)
}

func TestCreateTeamStaysPendingAndInvites(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2", "stu-3"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, app.Status)
	assert.Nil(t, app.SubmittedAt)

	members, err := env.repo.ListTeamMembers(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)

	invites := env.dispatcher.eventsOfType(notify.EventTeamInvite)
	require.Len(t, invites, 2)
	emails := []string{invites[0].Recipient.Email, invites[1].Recipient.Email}
	assert.ElementsMatch(t, []string{"mia@example.com", "noa@example.com"}, emails)

	// Nothing submitted yet
	assert.Empty(t, env.dispatcher.eventsOfType(notify.EventApplicationSubmitted))
}

func TestCreatePrincipalChecks(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	_, err := env.manager.Create(ctx, nil, createRequest())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = env.manager.Create(ctx, env.company, createRequest())
	assert.ErrorIs(t, err, ErrNotStudent)
}

func TestCreateDuplicateLeadRejected(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	_, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	_, err = env.manager.Create(ctx, env.lead, createRequest())
	assert.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestCreateUnknownProject(t *testing.T) {
	env := newTestEnv(t, closedProject())

	req := createRequest()
	req.ProjectID = "proj-missing"

	_, err := env.manager.Create(context.Background(), env.lead, req)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestCreateTeamSizeBounds(t *testing.T) {
	project := closedProject()
	project.MinStudents = 2
	project.MaxStudents = 3
	env := newTestEnv(t, project)
	ctx := context.Background()

	// One below the minimum and one above the maximum fail
	_, err := env.manager.Create(ctx, env.lead, createRequest())
	assert.ErrorIs(t, err, ErrTeamTooSmall)

	_, err = env.manager.Create(ctx, env.lead, createRequest("stu-2", "stu-3", "stu-4"))
	assert.ErrorIs(t, err, ErrTeamTooLarge)

	// Exactly at each bound passes
	_, err = env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	assert.NoError(t, err)

	_, err = env.manager.Create(ctx, env.member2, createRequest("stu-3", "stu-4"))
	assert.NoError(t, err)
}

func TestCreateDocumentRequired(t *testing.T) {
	env := newTestEnv(t, closedProject())

	req := createRequest()
	req.Document = nil

	_, err := env.manager.Create(context.Background(), env.lead, req)
	assert.ErrorIs(t, err, ErrDocumentRequired)
}

func TestCreateLimitExceeded(t *testing.T) {
	env := newTestEnv(t, closedProject())
	seedLeadApplications(env.repo, env.lead.ID, models.StatusAccepted, DefaultMaxActiveProjects)

	_, err := env.manager.Create(context.Background(), env.lead, createRequest())
	require.ErrorIs(t, err, ErrLimitExceeded)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, DefaultMaxActiveProjects, limitErr.Limits.ActiveProjects)
}

func TestCreateRollsBackOnMemberFailure(t *testing.T) {
	env := newTestEnv(t, closedProject())
	env.repo.failCreateTeamMember = true
	ctx := context.Background()

	_, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.Error(t, err)

	// Row and document are both gone
	assert.Empty(t, env.repo.applications)
	assert.Empty(t, env.store.objects)
	assert.Empty(t, env.repo.orphans)
	assert.Empty(t, env.dispatcher.events)
}

func TestCreateRollbackRecordsOrphanWhenRemoveFails(t *testing.T) {
	env := newTestEnv(t, closedProject())
	env.repo.failCreateTeamMember = true
	env.store.failRemove = true
	ctx := context.Background()

	_, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.Error(t, err)

	assert.Empty(t, env.repo.applications)
	// The delete failed, so the path is parked for the janitor
	assert.Len(t, env.repo.orphans, 1)
}

func TestCreateUploadFailureLeavesNothing(t *testing.T) {
	env := newTestEnv(t, closedProject())
	env.store.failUpload = true

	_, err := env.manager.Create(context.Background(), env.lead, createRequest())
	require.Error(t, err)

	assert.Empty(t, env.repo.applications)
	assert.Empty(t, env.repo.members)
	assert.Empty(t, env.store.objects)
}

// Submit

func TestSubmitManualByLead(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	result, err := env.manager.Submit(ctx, env.lead, app.ID, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.AutoApproved)

	stored, err := env.repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, stored.Status)

	// Submitted mail goes to every member, confirmed or not
	submitted := env.dispatcher.eventsOfType(notify.EventApplicationSubmitted)
	require.Len(t, submitted, 2)
	for _, ev := range submitted {
		if ev.Recipient.Email == "mia@example.com" {
			assert.True(t, ev.NeedsConfirmation)
		} else {
			assert.False(t, ev.NeedsConfirmation)
		}
	}
}

func TestSubmitRequiresLead(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	_, err = env.manager.Submit(ctx, env.member2, app.ID, false)
	assert.ErrorIs(t, err, ErrNotTeamLead)

	_, err = env.manager.Submit(ctx, nil, app.ID, false)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSubmitOnlyFromPending(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	_, err = env.manager.Submit(ctx, env.lead, app.ID, false)
	require.NoError(t, err)

	_, err = env.manager.Submit(ctx, env.lead, app.ID, false)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestSubmitUnknownApplication(t *testing.T) {
	env := newTestEnv(t, closedProject())

	_, err := env.manager.Submit(context.Background(), env.lead, "app-missing", false)
	assert.ErrorIs(t, err, ErrApplicationNotFound)
}

func TestAutoSubmitBlockedByOpenInvite(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	_, err = env.manager.Submit(ctx, nil, app.ID, true)
	assert.ErrorIs(t, err, ErrMembersNotConfirmed)

	stored, err := env.repo.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

// Invites

func TestInviteAcceptanceCompletesQuorum(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2", "stu-3"))
	require.NoError(t, err)

	// First acceptance: one invite still open
	result, err := env.manager.RespondToInvite(ctx, env.member2, app.ID, true)
	require.NoError(t, err)
	assert.Nil(t, result)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Equal(t, models.StatusPending, stored.Status)

	// Last acceptance closes the quorum and submits
	result, err = env.manager.RespondToInvite(ctx, env.member3, app.ID, true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)

	stored, _ = env.repo.GetApplication(ctx, app.ID)
	assert.Equal(t, models.StatusSubmitted, stored.Status)
	assert.NotNil(t, stored.SubmittedAt)
	assert.Len(t, env.dispatcher.eventsOfType(notify.EventApplicationSubmitted), 3)

	// Closed project: it stays submitted until the company decides
	assert.Empty(t, env.dispatcher.eventsOfType(notify.EventApplicationAccepted))
}

func TestInviteDeclineRecordedWithoutSubmit(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	result, err := env.manager.RespondToInvite(ctx, env.member2, app.ID, false)
	require.NoError(t, err)
	assert.Nil(t, result)

	member, err := env.repo.GetTeamMember(ctx, app.ID, env.member2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteDeclined, member.InviteStatus)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestInviteResponseValidation(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	// Not invited
	_, err = env.manager.RespondToInvite(ctx, env.member3, app.ID, true)
	assert.ErrorIs(t, err, ErrInviteNotFound)

	// The lead has no invite to answer
	_, err = env.manager.RespondToInvite(ctx, env.lead, app.ID, true)
	assert.ErrorIs(t, err, ErrInviteNotFound)

	// Answering twice
	_, err = env.manager.RespondToInvite(ctx, env.member2, app.ID, false)
	require.NoError(t, err)
	_, err = env.manager.RespondToInvite(ctx, env.member2, app.ID, true)
	assert.ErrorIs(t, err, ErrInviteAlreadyAnswered)
}

// Open project auto-decision

func TestOpenProjectAutoAccepts(t *testing.T) {
	env := newTestEnv(t, openProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	result, err := env.manager.RespondToInvite(ctx, env.member2, app.ID, true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.True(t, result.AutoApproved)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Equal(t, models.StatusAccepted, stored.Status)

	// Acceptance discloses the project contact
	accepted := env.dispatcher.eventsOfType(notify.EventApplicationAccepted)
	require.Len(t, accepted, 2)
	require.NotNil(t, accepted[0].Contact)
	assert.Equal(t, "hr@acme.example.com", accepted[0].Contact.Email)
}

func TestOpenProjectRejectsAtCapacity(t *testing.T) {
	env := newTestEnv(t, openProject())
	ctx := context.Background()

	// First team takes the only slot
	first, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, first.Status)

	// Second team is auto-rejected: soft failure, not an error
	second, err := env.manager.Create(ctx, env.member2, createRequest())
	require.NoError(t, err)

	stored, _ := env.repo.GetApplication(ctx, second.ID)
	assert.Equal(t, models.StatusRejected, stored.Status)

	rejected := env.dispatcher.eventsOfType(notify.EventApplicationRejected)
	require.Len(t, rejected, 1)
	assert.Nil(t, rejected[0].Contact)
}

func TestOpenProjectCapacityResultMessage(t *testing.T) {
	env := newTestEnv(t, openProject())
	ctx := context.Background()

	_, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)

	app, err := env.manager.Create(ctx, env.member2, createRequest("stu-3"))
	require.NoError(t, err)

	result, err := env.manager.RespondToInvite(ctx, env.member3, app.ID, true)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.False(t, result.AutoApproved)
	assert.NotEmpty(t, result.Message)
}

// Company decisions

func TestAcceptByCompany(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)

	err = env.manager.Accept(ctx, env.company, app.ID)
	require.NoError(t, err)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Equal(t, models.StatusAccepted, stored.Status)

	accepted := env.dispatcher.eventsOfType(notify.EventApplicationAccepted)
	require.Len(t, accepted, 1)
	require.NotNil(t, accepted[0].Contact)
	assert.Equal(t, "Engineering Manager", accepted[0].Contact.Role)
}

func TestRejectByCompany(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)

	err = env.manager.Reject(ctx, env.company, app.ID)
	require.NoError(t, err)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Equal(t, models.StatusRejected, stored.Status)

	rejected := env.dispatcher.eventsOfType(notify.EventApplicationRejected)
	require.Len(t, rejected, 1)
	assert.Nil(t, rejected[0].Contact)
}

func TestDecideAuthorization(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)

	// Students cannot decide
	err = env.manager.Accept(ctx, env.lead, app.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// Neither can another company
	other := &models.User{ID: "other", Role: models.RoleCompany, CompanyID: "comp-2"}
	err = env.manager.Accept(ctx, other, app.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestDecideRequiresSubmitted(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	// Team invite keeps this application pending
	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	err = env.manager.Accept(ctx, env.company, app.ID)
	assert.ErrorIs(t, err, ErrNotSubmitted)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Equal(t, models.StatusPending, stored.Status)

	// A landed decision cannot be redone
	_, err = env.manager.Submit(ctx, env.lead, app.ID, false)
	require.NoError(t, err)
	require.NoError(t, env.manager.Accept(ctx, env.company, app.ID))

	err = env.manager.Reject(ctx, env.company, app.ID)
	assert.ErrorIs(t, err, ErrNotSubmitted)
}

// Withdraw and delete

func TestWithdrawByLead(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2", "stu-3"))
	require.NoError(t, err)

	err = env.manager.Withdraw(ctx, env.lead, app.ID)
	require.NoError(t, err)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Nil(t, stored)
	assert.Empty(t, env.store.objects)

	// Only the invited members hear about it
	withdrawn := env.dispatcher.eventsOfType(notify.EventApplicationWithdrawn)
	require.Len(t, withdrawn, 2)
	for _, ev := range withdrawn {
		assert.NotEqual(t, "lead@example.com", ev.Recipient.Email)
	}
}

func TestWithdrawAuthorization(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	err = env.manager.Withdraw(ctx, env.member2, app.ID)
	assert.ErrorIs(t, err, ErrNotTeamLead)

	_, err = env.manager.Submit(ctx, env.lead, app.ID, false)
	require.NoError(t, err)

	// Submitted applications are the company's to decide
	err = env.manager.Withdraw(ctx, env.lead, app.ID)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestDeleteByCompany(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)
	require.NoError(t, env.manager.Accept(ctx, env.company, app.ID))

	// Unlike withdraw, delete works in any status
	err = env.manager.Delete(ctx, env.company, app.ID)
	require.NoError(t, err)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Nil(t, stored)
	assert.Empty(t, env.store.objects)

	// Cleanup is not a decision, nobody is notified
	assert.Empty(t, env.dispatcher.eventsOfType(notify.EventApplicationWithdrawn))
}

func TestDeleteAuthorization(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)

	err = env.manager.Delete(ctx, env.lead, app.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

// Reads

func TestGetAuthorization(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	for _, principal := range []*models.User{env.lead, env.member2, env.company} {
		got, err := env.manager.Get(ctx, principal, app.ID)
		require.NoError(t, err)
		assert.Equal(t, app.ID, got.ID)
	}

	_, err = env.manager.Get(ctx, env.member3, app.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = env.manager.Get(ctx, nil, app.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDesignDocURL(t *testing.T) {
	env := newTestEnv(t, closedProject())
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest())
	require.NoError(t, err)

	url, err := env.manager.DesignDocURL(ctx, env.company, app.ID)
	require.NoError(t, err)
	assert.Contains(t, url, DesignDocPath(app.ID))

	_, err = env.manager.DesignDocURL(ctx, env.member2, app.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

// Notification failures never surface

func TestDispatchFailureDoesNotBlockSubmit(t *testing.T) {
	env := newTestEnv(t, closedProject())
	env.dispatcher.failDispatch = true
	ctx := context.Background()

	app, err := env.manager.Create(ctx, env.lead, createRequest("stu-2"))
	require.NoError(t, err)

	result, err := env.manager.Submit(ctx, env.lead, app.ID, false)
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, _ := env.repo.GetApplication(ctx, app.ID)
	assert.Equal(t, models.StatusSubmitted, stored.Status)
}
