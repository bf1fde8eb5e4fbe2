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

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type enrollmentReaggregator interface {
	Reaggregate(ctx context.Context, enrollmentID string) (*models.Enrollment, error)
}

// CreateEnrollmentRequest describes enrollment creation payload. The final
// total is derived from the base price and the discount; clients never set
// total_amount directly.
type CreateEnrollmentRequest struct {
	StudentID     string          `json:"student_id" validate:"required"`
	CourseID      string          `json:"course_id" validate:"required"`
	BasePrice     decimal.Decimal `json:"base_price" validate:"required"`
	DiscountType  string          `json:"discount_type" validate:"omitempty,oneof=NONE PERCENTAGE FIXED"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// UpdateEnrollmentStatusRequest describes an administrative status change.
type UpdateEnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE COMPLETED CANCELLED PAUSED"`
}

// EnrollmentService orchestrates enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	ledger    enrollmentReaggregator
	validator *validator.Validate
	logger    *zap.Logger
	precision int32
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, ledger enrollmentReaggregator, validate *validator.Validate, logger *zap.Logger, precision int32) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, ledger: ledger, validator: validate, logger: logger, precision: precision}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Get loads one enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Create registers a new enrollment with its discounted total.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.BasePrice.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "base price must not be negative")
	}
	if req.DiscountValue.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount value must not be negative")
	}

	discountType := models.DiscountType(req.DiscountType)
	if discountType == "" {
		discountType = models.DiscountNone
	}
	total, err := ApplyDiscount(req.BasePrice, discountType, req.DiscountValue, s.precision)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid discount")
	}

	enrollment := &models.Enrollment{
		StudentID:     req.StudentID,
		CourseID:      req.CourseID,
		TotalAmount:   total,
		PaidAmount:    decimal.Zero,
		Status:        models.EnrollmentStatusActive,
		DiscountType:  discountType,
		DiscountValue: req.DiscountValue,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("total_amount", enrollment.TotalAmount.String()))
	return enrollment, nil
}

// enrollmentTransitions lists the administrative status changes this service
// accepts. CANCELLED stays terminal; reactivating a cancelled enrollment is a
// manual data operation, not an API call.
var enrollmentTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentStatusActive:    {models.EnrollmentStatusPaused, models.EnrollmentStatusCancelled, models.EnrollmentStatusCompleted},
	models.EnrollmentStatusPaused:    {models.EnrollmentStatusActive, models.EnrollmentStatusCancelled},
	models.EnrollmentStatusCompleted: {models.EnrollmentStatusCancelled},
}

// UpdateStatus applies an administrative status change, then recomputes the
// derived totals so a COMPLETED transition reflects the ledger.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateEnrollmentStatusRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	target := models.EnrollmentStatus(req.Status)
	if target == enrollment.Status {
		return enrollment, nil
	}
	if !transitionAllowed(enrollment.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "status transition not allowed")
	}

	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	updated, err := s.ledger.Reaggregate(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute enrollment totals")
	}

	s.logger.Info("enrollment status updated",
		zap.String("enrollment_id", id),
		zap.String("from", string(enrollment.Status)),
		zap.String("to", string(target)))
	return updated, nil
}

func transitionAllowed(from, to models.EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ApplyDiscount derives the amount owed from a base price and a discount.
// Percentage discounts use half-even rounding at the currency precision and
// fixed discounts floor at zero.
func ApplyDiscount(base decimal.Decimal, discountType models.DiscountType, value decimal.Decimal, precision int32) (decimal.Decimal, error) {
	switch discountType {
	case models.DiscountNone, "":
		return base.RoundBank(precision), nil
	case models.DiscountPercentage:
		if value.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, errors.New("percentage discount above 100")
		}
		factor := decimal.NewFromInt(1).Sub(value.Div(decimal.NewFromInt(100)))
		return base.Mul(factor).RoundBank(precision), nil
	case models.DiscountFixed:
		total := base.Sub(value)
		if total.IsNegative() {
			return decimal.Zero, nil
		}
		return total.RoundBank(precision), nil
	default:
		return decimal.Zero, errors.New("unknown discount type")
	}
}
