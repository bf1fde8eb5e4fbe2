package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mentora/mentora-pay-api/internal/models"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
)

type assignmentRepoMock struct {
	assignments  map[string]*models.MentorAssignment
	activeExists bool
	created      []*models.MentorAssignment
	rateCalls    []decimal.Decimal
	statusCalls  []models.AssignmentStatus
}

func (m *assignmentRepoMock) FindByID(_ context.Context, id string) (*models.MentorAssignment, error) {
	assignment, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return assignment, nil
}

func (m *assignmentRepoMock) ExistsActive(_ context.Context, _ string) (bool, error) {
	return m.activeExists, nil
}

func (m *assignmentRepoMock) List(_ context.Context, _ models.AssignmentFilter) ([]models.MentorAssignment, int, error) {
	out := make([]models.MentorAssignment, 0, len(m.assignments))
	for _, a := range m.assignments {
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (m *assignmentRepoMock) Create(_ context.Context, assignment *models.MentorAssignment) error {
	assignment.ID = "asg-new"
	m.created = append(m.created, assignment)
	return nil
}

func (m *assignmentRepoMock) UpdateCommissionRate(_ context.Context, _ string, rate decimal.Decimal) error {
	m.rateCalls = append(m.rateCalls, rate)
	return nil
}

func (m *assignmentRepoMock) UpdateStatus(_ context.Context, _ string, status models.AssignmentStatus) error {
	m.statusCalls = append(m.statusCalls, status)
	return nil
}

func newAssignmentFixture() (*AssignmentService, *assignmentRepoMock) {
	repo := &assignmentRepoMock{assignments: map[string]*models.MentorAssignment{
		"asg-1": {
			ID:             "asg-1",
			MentorID:       "men-1",
			EnrollmentID:   "enr-1",
			CommissionRate: decimal.NewFromInt(30),
			Status:         models.AssignmentStatusActive,
		},
	}}
	enrollments := &enrollmentReaderMock{enrollments: map[string]*models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "stu-1", CourseID: "crs-1", Status: models.EnrollmentStatusActive},
	}}
	return NewAssignmentService(repo, enrollments, nil, nil), repo
}

func TestAssignmentServiceCreateCopiesEnrollmentContext(t *testing.T) {
	svc, repo := newAssignmentFixture()

	assignment, err := svc.Create(context.Background(), CreateAssignmentRequest{
		MentorID:       "men-2",
		EnrollmentID:   "enr-1",
		CommissionRate: decimal.NewFromInt(37),
	})

	require.NoError(t, err)
	require.Equal(t, "stu-1", assignment.StudentID)
	require.Equal(t, "crs-1", assignment.CourseID)
	require.Equal(t, models.AssignmentStatusActive, assignment.Status)
	require.Len(t, repo.created, 1)
}

func TestAssignmentServiceCreateRejectsSecondActive(t *testing.T) {
	svc, repo := newAssignmentFixture()
	repo.activeExists = true

	_, err := svc.Create(context.Background(), CreateAssignmentRequest{
		MentorID:       "men-2",
		EnrollmentID:   "enr-1",
		CommissionRate: decimal.NewFromInt(37),
	})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.Empty(t, repo.created)
}

func TestAssignmentServiceCreateRejectsOutOfRangeRate(t *testing.T) {
	svc, _ := newAssignmentFixture()

	_, err := svc.Create(context.Background(), CreateAssignmentRequest{
		MentorID:       "men-2",
		EnrollmentID:   "enr-1",
		CommissionRate: decimal.NewFromInt(120),
	})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAssignmentServiceUpdateCommissionRate(t *testing.T) {
	svc, repo := newAssignmentFixture()

	assignment, err := svc.UpdateCommissionRate(context.Background(), "asg-1", UpdateCommissionRateRequest{
		CommissionRate: decimal.NewFromInt(42),
	})

	require.NoError(t, err)
	require.True(t, assignment.CommissionRate.Equal(decimal.NewFromInt(42)))
	require.Len(t, repo.rateCalls, 1)
}

func TestAssignmentServiceUpdateStatusRejectsUnknown(t *testing.T) {
	svc, repo := newAssignmentFixture()

	_, err := svc.UpdateStatus(context.Background(), "asg-1", models.AssignmentStatus("RETIRED"))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Empty(t, repo.statusCalls)
}
