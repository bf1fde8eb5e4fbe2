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

type enrollmentRepoMock struct {
	enrollments map[string]*models.Enrollment
	created     []*models.Enrollment
	statusCalls []models.EnrollmentStatus
}

func (m *enrollmentRepoMock) List(_ context.Context, _ models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	out := make([]models.Enrollment, 0, len(m.enrollments))
	for _, e := range m.enrollments {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *enrollmentRepoMock) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	enrollment, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return enrollment, nil
}

func (m *enrollmentRepoMock) Create(_ context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = "enr-new"
	m.created = append(m.created, enrollment)
	return nil
}

func (m *enrollmentRepoMock) UpdateStatus(_ context.Context, id string, status models.EnrollmentStatus) error {
	m.statusCalls = append(m.statusCalls, status)
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
	}
	return nil
}

type reaggregatorMock struct {
	result *models.Enrollment
	calls  int
}

func (m *reaggregatorMock) Reaggregate(_ context.Context, _ string) (*models.Enrollment, error) {
	m.calls++
	return m.result, nil
}

func newEnrollmentService(repo *enrollmentRepoMock, ledger *reaggregatorMock) *EnrollmentService {
	return NewEnrollmentService(repo, ledger, nil, nil, 2)
}

func TestEnrollmentServiceCreateAppliesPercentageDiscount(t *testing.T) {
	repo := &enrollmentRepoMock{enrollments: map[string]*models.Enrollment{}}
	svc := newEnrollmentService(repo, &reaggregatorMock{})

	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:     "stu-1",
		CourseID:      "crs-1",
		BasePrice:     decimal.NewFromInt(100000),
		DiscountType:  "PERCENTAGE",
		DiscountValue: decimal.NewFromInt(10),
	})

	require.NoError(t, err)
	require.True(t, enrollment.TotalAmount.Equal(decimal.NewFromInt(90000)),
		"total %s", enrollment.TotalAmount)
	require.True(t, enrollment.PaidAmount.IsZero())
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Len(t, repo.created, 1)
}

func TestEnrollmentServiceCreateFixedDiscountFloorsAtZero(t *testing.T) {
	repo := &enrollmentRepoMock{enrollments: map[string]*models.Enrollment{}}
	svc := newEnrollmentService(repo, &reaggregatorMock{})

	enrollment, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:     "stu-1",
		CourseID:      "crs-1",
		BasePrice:     decimal.NewFromInt(5000),
		DiscountType:  "FIXED",
		DiscountValue: decimal.NewFromInt(7500),
	})

	require.NoError(t, err)
	require.True(t, enrollment.TotalAmount.IsZero(), "total %s", enrollment.TotalAmount)
}

func TestEnrollmentServiceCreateRejectsBadDiscount(t *testing.T) {
	repo := &enrollmentRepoMock{enrollments: map[string]*models.Enrollment{}}
	svc := newEnrollmentService(repo, &reaggregatorMock{})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:     "stu-1",
		CourseID:      "crs-1",
		BasePrice:     decimal.NewFromInt(100000),
		DiscountType:  "PERCENTAGE",
		DiscountValue: decimal.NewFromInt(150),
	})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Empty(t, repo.created)
}

func TestApplyDiscountRoundsHalfEven(t *testing.T) {
	total, err := ApplyDiscount(decimal.RequireFromString("100.01"), models.DiscountPercentage, decimal.NewFromInt(50), 2)
	require.NoError(t, err)
	// 50.005 lands on the even neighbour.
	require.Equal(t, "50", total.String())
}

func TestEnrollmentServiceUpdateStatusReaggregates(t *testing.T) {
	enrollment := &models.Enrollment{
		ID:          "enr-1",
		Status:      models.EnrollmentStatusActive,
		TotalAmount: decimal.NewFromInt(100000),
	}
	repo := &enrollmentRepoMock{enrollments: map[string]*models.Enrollment{"enr-1": enrollment}}
	ledger := &reaggregatorMock{result: &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusPaused}}
	svc := newEnrollmentService(repo, ledger)

	updated, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "PAUSED"})

	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusPaused, updated.Status)
	require.Equal(t, []models.EnrollmentStatus{models.EnrollmentStatusPaused}, repo.statusCalls)
	require.Equal(t, 1, ledger.calls)
}

func TestEnrollmentServiceUpdateStatusCancelledIsTerminal(t *testing.T) {
	enrollment := &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusCancelled}
	repo := &enrollmentRepoMock{enrollments: map[string]*models.Enrollment{"enr-1": enrollment}}
	ledger := &reaggregatorMock{}
	svc := newEnrollmentService(repo, ledger)

	_, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "ACTIVE"})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	require.Empty(t, repo.statusCalls)
	require.Zero(t, ledger.calls)
}

func TestEnrollmentServiceUpdateStatusSameStatusIsNoop(t *testing.T) {
	enrollment := &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusActive}
	repo := &enrollmentRepoMock{enrollments: map[string]*models.Enrollment{"enr-1": enrollment}}
	ledger := &reaggregatorMock{}
	svc := newEnrollmentService(repo, ledger)

	updated, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "ACTIVE"})

	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, updated.Status)
	require.Empty(t, repo.statusCalls)
	require.Zero(t, ledger.calls)
}
