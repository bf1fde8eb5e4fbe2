package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mentora/mentora-pay-api/internal/models"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	HasPendingForEnrollment(ctx context.Context, enrollmentID string, amount decimal.Decimal) (bool, error)
}

type paymentEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type paymentAssignmentReader interface {
	FindActiveByEnrollment(ctx context.Context, enrollmentID string) (*models.MentorAssignment, error)
}

// CreatePaymentRequest describes a payment intent creation payload.
type CreatePaymentRequest struct {
	EnrollmentID string          `json:"enrollment_id" validate:"required"`
	PayerID      string          `json:"payer_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	Description  string          `json:"description" validate:"max=500"`
}

// PaymentService manages the ledger's PENDING entries and read paths. The
// COMPLETED and FAILED transitions belong to SettlementService.
type PaymentService struct {
	repo        paymentRepository
	enrollments paymentEnrollmentReader
	assignments paymentAssignmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(repo paymentRepository, enrollments paymentEnrollmentReader, assignments paymentAssignmentReader, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{repo: repo, enrollments: enrollments, assignments: assignments, validator: validate, logger: logger}
}

// Create opens a PENDING ledger entry for an upcoming provider charge.
func (s *PaymentService) Create(ctx context.Context, req CreatePaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is cancelled")
	}

	duplicate, err := s.repo.HasPendingForEnrollment(ctx, req.EnrollmentID, req.Amount)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending payments")
	}
	if duplicate {
		return nil, appErrors.Clone(appErrors.ErrConflict, "identical pending payment already exists")
	}

	payment := &models.Payment{
		EnrollmentID: req.EnrollmentID,
		PayerID:      req.PayerID,
		Amount:       req.Amount,
		Status:       models.PaymentStatusPending,
		ProviderRef:  fmt.Sprintf("local_%s", uuid.NewString()),
		Description:  req.Description,
	}

	assignment, err := s.assignments.FindActiveByEnrollment(ctx, req.EnrollmentID)
	switch {
	case err == nil:
		payment.AssignmentID = &assignment.ID
	case errors.Is(err, sql.ErrNoRows):
		// No mentor assigned yet; commission is withheld if the payment
		// settles before an assignment exists.
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mentor assignment")
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}

	s.logger.Info("payment intent created",
		zap.String("payment_id", payment.ID),
		zap.String("enrollment_id", payment.EnrollmentID),
		zap.String("amount", payment.Amount.String()))
	return payment, nil
}

// Get loads one ledger entry.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// List returns ledger entries with pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
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
	return payments, pagination, nil
}
