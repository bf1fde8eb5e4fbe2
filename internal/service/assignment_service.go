package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mentora/mentora-pay-api/internal/models"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
)

type assignmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.MentorAssignment, error)
	ExistsActive(ctx context.Context, enrollmentID string) (bool, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.MentorAssignment, int, error)
	Create(ctx context.Context, assignment *models.MentorAssignment) error
	UpdateCommissionRate(ctx context.Context, id string, rate decimal.Decimal) error
	UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus) error
}

type assignmentEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// CreateAssignmentRequest describes a mentor assignment payload.
type CreateAssignmentRequest struct {
	MentorID       string          `json:"mentor_id" validate:"required"`
	EnrollmentID   string          `json:"enrollment_id" validate:"required"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// UpdateCommissionRateRequest describes a commission rate change. The new
// rate only affects settlements after the change.
type UpdateCommissionRateRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// AssignmentService manages mentor assignments and their commission rates.
type AssignmentService struct {
	repo        assignmentRepository
	enrollments assignmentEnrollmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, enrollments assignmentEnrollmentReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, enrollments: enrollments, validator: validate, logger: logger}
}

// List returns assignments with pagination metadata.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.MentorAssignment, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return assignments, pagination, nil
}

// Get loads one assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.MentorAssignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Create links a mentor to an enrollment. One active assignment per
// enrollment at a time.
func (s *AssignmentService) Create(ctx context.Context, req CreateAssignmentRequest) (*models.MentorAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := validateCommissionRate(req.CommissionRate); err != nil {
		return nil, err
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	exists, err := s.repo.ExistsActive(ctx, req.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active assignments")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment already has an active mentor")
	}

	assignment := &models.MentorAssignment{
		MentorID:       req.MentorID,
		StudentID:      enrollment.StudentID,
		CourseID:       enrollment.CourseID,
		EnrollmentID:   req.EnrollmentID,
		CommissionRate: req.CommissionRate,
		Status:         models.AssignmentStatusActive,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.logger.Info("mentor assigned",
		zap.String("assignment_id", assignment.ID),
		zap.String("mentor_id", assignment.MentorID),
		zap.String("enrollment_id", assignment.EnrollmentID),
		zap.String("commission_rate", assignment.CommissionRate.String()))
	return assignment, nil
}

// UpdateCommissionRate changes the rate used by future settlements. Already
// settled payments keep the commission computed at settlement time.
func (s *AssignmentService) UpdateCommissionRate(ctx context.Context, id string, req UpdateCommissionRateRequest) (*models.MentorAssignment, error) {
	if err := validateCommissionRate(req.CommissionRate); err != nil {
		return nil, err
	}
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCommissionRate(ctx, id, req.CommissionRate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update commission rate")
	}
	assignment.CommissionRate = req.CommissionRate

	s.logger.Info("commission rate updated",
		zap.String("assignment_id", id),
		zap.String("commission_rate", req.CommissionRate.String()))
	return assignment, nil
}

// UpdateStatus transitions an assignment between ACTIVE, SUSPENDED and
// COMPLETED.
func (s *AssignmentService) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus) (*models.MentorAssignment, error) {
	switch status {
	case models.AssignmentStatusActive, models.AssignmentStatusSuspended, models.AssignmentStatusCompleted:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown assignment status")
	}
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment status")
	}
	assignment.Status = status
	return assignment, nil
}

func validateCommissionRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return appErrors.Clone(appErrors.ErrValidation, "commission rate must be between 0 and 100")
	}
	return nil
}
