package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mentora/mentora-pay-api/internal/models"
	"github.com/mentora/mentora-pay-api/internal/provider"
	"github.com/mentora/mentora-pay-api/internal/repository"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
)

const (
	webhookOutcomeSettled   = "settled"
	webhookOutcomeReplayed  = "replayed"
	webhookOutcomeFailed    = "marked_failed"
	webhookOutcomeIgnored   = "ignored"
	webhookOutcomeMalformed = "malformed"
	webhookOutcomeRejected  = "rejected"
	webhookOutcomeError     = "error"
)

type settlementLedger interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	Settle(ctx context.Context, params repository.SettleParams) (*repository.SettleResult, error)
	MarkFailed(ctx context.Context, paymentID, providerRef string) (bool, error)
}

type settlementEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type settlementAssignmentReader interface {
	FindActiveByEnrollment(ctx context.Context, enrollmentID string) (*models.MentorAssignment, error)
}

type receiptNotifier interface {
	EnqueueReceipt(payment *models.Payment, enrollment *models.Enrollment)
}

// SettlementService turns verified provider webhooks into ledger state.
type SettlementService struct {
	payments    settlementLedger
	enrollments settlementEnrollmentReader
	assignments settlementAssignmentReader
	notifier    receiptNotifier
	verifier    *provider.Verifier
	metrics     *MetricsService
	logger      *zap.Logger

	platformFeeRate   decimal.Decimal
	currencyPrecision int32
}

// NewSettlementService wires the webhook processing pipeline.
func NewSettlementService(
	payments settlementLedger,
	enrollments settlementEnrollmentReader,
	assignments settlementAssignmentReader,
	notifier receiptNotifier,
	verifier *provider.Verifier,
	metrics *MetricsService,
	logger *zap.Logger,
	platformFeeRate float64,
	currencyPrecision int32,
) *SettlementService {
	return &SettlementService{
		payments:          payments,
		enrollments:       enrollments,
		assignments:       assignments,
		notifier:          notifier,
		verifier:          verifier,
		metrics:           metrics,
		logger:            logger,
		platformFeeRate:   decimal.NewFromFloat(platformFeeRate),
		currencyPrecision: currencyPrecision,
	}
}

// ProcessWebhook verifies, parses and dispatches one raw webhook delivery.
// A nil return means the delivery is acknowledged and the provider must not
// retry it. Signature failures and ledger errors are returned so the handler
// can answer 400 and 500 respectively.
func (s *SettlementService) ProcessWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if err := s.verifier.Verify(payload, sigHeader); err != nil {
		s.metrics.ObserveWebhookEvent("unknown", webhookOutcomeRejected)
		s.logger.Warn("webhook signature rejected", zap.Error(err))
		return appErrors.ErrInvalidSignature
	}

	event, err := provider.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, provider.ErrEventIgnored) {
			s.metrics.ObserveWebhookEvent("unknown", webhookOutcomeIgnored)
			s.logger.Info("webhook event type ignored")
			return nil
		}
		s.metrics.ObserveWebhookEvent("unknown", webhookOutcomeMalformed)
		s.logger.Warn("malformed webhook event acknowledged", zap.Error(err))
		return nil
	}

	return s.HandleEvent(ctx, event)
}

// HandleEvent routes a parsed provider event to the settlement ledger.
func (s *SettlementService) HandleEvent(ctx context.Context, event *provider.Event) error {
	switch event.Type {
	case provider.EventTypePaymentSucceeded:
		return s.handleSucceeded(ctx, event)
	case provider.EventTypePaymentFailed:
		return s.handleFailed(ctx, event)
	default:
		s.metrics.ObserveWebhookEvent(string(event.Type), webhookOutcomeIgnored)
		return nil
	}
}

func (s *SettlementService) handleSucceeded(ctx context.Context, event *provider.Event) error {
	data := event.Succeeded
	eventType := string(event.Type)

	payment, err := s.payments.FindByID(ctx, data.PaymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeIgnored)
			s.logger.Warn("webhook references unknown payment, acknowledged",
				zap.String("payment_id", data.PaymentID),
				zap.String("event_id", event.ID))
			return nil
		}
		s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeError)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	if payment.EnrollmentID != data.EnrollmentID {
		s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeIgnored)
		s.logger.Warn("webhook enrollment mismatch, acknowledged",
			zap.String("payment_id", payment.ID),
			zap.String("payment_enrollment_id", payment.EnrollmentID),
			zap.String("event_enrollment_id", data.EnrollmentID))
		return nil
	}

	enrollment, err := s.enrollments.FindByID(ctx, payment.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeIgnored)
			s.logger.Warn("webhook references payment with missing enrollment, acknowledged",
				zap.String("payment_id", payment.ID),
				zap.String("enrollment_id", payment.EnrollmentID))
			return nil
		}
		s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeError)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	// Money for a cancelled enrollment still settles, but finance reviews it
	// manually before any payout.
	flagForReview := enrollment.Status == models.EnrollmentStatusCancelled

	mentorRate := decimal.Zero
	var assignmentID *string
	assignment, err := s.assignments.FindActiveByEnrollment(ctx, payment.EnrollmentID)
	switch {
	case err == nil:
		mentorRate = assignment.CommissionRate
		assignmentID = &assignment.ID
	case errors.Is(err, sql.ErrNoRows):
		s.logger.Warn("no active mentor assignment, commission withheld",
			zap.String("payment_id", payment.ID),
			zap.String("enrollment_id", payment.EnrollmentID))
	default:
		s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeError)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mentor assignment")
	}

	split := ComputeCommission(payment.Amount, mentorRate, s.platformFeeRate, s.currencyPrecision)

	settledAt := event.OccurredAt
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	result, err := s.payments.Settle(ctx, repository.SettleParams{
		PaymentID:        payment.ID,
		ProviderRef:      data.ProviderRef,
		SettledAt:        settledAt,
		MentorCommission: split.MentorCommission,
		PlatformFee:      split.PlatformFee,
		FlagForReview:    flagForReview,
		AssignmentID:     assignmentID,
	})
	if err != nil {
		s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeError)
		s.metrics.ObserveSettlement(webhookOutcomeError)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle payment")
	}

	if result.Outcome == models.SettleOutcomeAlreadySettled {
		s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeReplayed)
		s.metrics.ObserveSettlement(webhookOutcomeReplayed)
		s.logger.Info("duplicate settlement acknowledged",
			zap.String("payment_id", payment.ID),
			zap.String("event_id", event.ID))
		return nil
	}

	s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeSettled)
	s.metrics.ObserveSettlement(webhookOutcomeSettled)
	s.logger.Info("payment settled",
		zap.String("payment_id", result.Payment.ID),
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("amount", result.Payment.Amount.String()),
		zap.String("paid_amount", result.Enrollment.PaidAmount.String()),
		zap.Bool("flagged_for_review", result.Payment.FlaggedForReview))

	if s.notifier != nil {
		s.notifier.EnqueueReceipt(&result.Payment, &result.Enrollment)
	}
	return nil
}

func (s *SettlementService) handleFailed(ctx context.Context, event *provider.Event) error {
	data := event.Failed
	eventType := string(event.Type)

	marked, err := s.payments.MarkFailed(ctx, data.PaymentID, data.ProviderRef)
	if err != nil {
		s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeError)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark payment failed")
	}

	if !marked {
		// Either the payment is unknown or it already reached a terminal
		// state. A late failure notice never downgrades a completed
		// settlement, so both cases are acknowledged.
		s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeIgnored)
		s.logger.Info("failure webhook without transition acknowledged",
			zap.String("payment_id", data.PaymentID),
			zap.String("reason", data.Reason))
		return nil
	}

	s.metrics.ObserveWebhookEvent(eventType, webhookOutcomeFailed)
	s.logger.Info("payment marked failed",
		zap.String("payment_id", data.PaymentID),
		zap.String("reason", data.Reason))
	return nil
}
