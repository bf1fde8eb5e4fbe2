package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mentora/mentora-pay-api/internal/models"
	"github.com/mentora/mentora-pay-api/pkg/jobs"
)

const (
	notificationStatusSent    = "sent"
	notificationStatusFailed  = "failed"
	notificationStatusDropped = "dropped"
)

// Receipt is the notification payload sent to a student after a payment
// settles.
type Receipt struct {
	PaymentID      string          `json:"payment_id"`
	EnrollmentID   string          `json:"enrollment_id"`
	RecipientID    string          `json:"recipient_id"`
	RecipientEmail string          `json:"recipient_email"`
	Amount         decimal.Decimal `json:"amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	SettledAt      time.Time       `json:"settled_at"`
}

// ReceiptSender delivers a receipt over some channel (email, push, webhook).
type ReceiptSender interface {
	Send(ctx context.Context, receipt Receipt) error
}

type notificationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NotificationService delivers payment receipts on a best-effort basis. It
// runs on a background worker queue so settlement never waits on delivery,
// and a delivery failure never surfaces to the webhook path.
type NotificationService struct {
	queue   *jobs.Queue
	sender  ReceiptSender
	users   notificationUserReader
	metrics *MetricsService
	logger  *zap.Logger
}

// NotificationOptions tunes the receipt delivery workers.
type NotificationOptions struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NewNotificationService wires the receipt queue. Call Start before
// enqueueing and Stop during shutdown.
func NewNotificationService(
	sender ReceiptSender,
	users notificationUserReader,
	metrics *MetricsService,
	logger *zap.Logger,
	opts NotificationOptions,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		sender:  sender,
		users:   users,
		metrics: metrics,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("receipts", s.handleJob, jobs.QueueConfig{
		Workers:    opts.Workers,
		BufferSize: opts.BufferSize,
		MaxRetries: opts.MaxRetries,
		RetryDelay: opts.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// EnqueueReceipt schedules a receipt for the enrollment's student. It never
// returns an error: if the queue is full or stopped the receipt is dropped
// and logged.
func (s *NotificationService) EnqueueReceipt(payment *models.Payment, enrollment *models.Enrollment) {
	if s == nil {
		return
	}
	settledAt := time.Now().UTC()
	if payment.PaidAt != nil {
		settledAt = *payment.PaidAt
	}
	receipt := Receipt{
		PaymentID:    payment.ID,
		EnrollmentID: enrollment.ID,
		RecipientID:  enrollment.StudentID,
		Amount:       payment.Amount,
		PaidAmount:   enrollment.PaidAmount,
		TotalAmount:  enrollment.TotalAmount,
		SettledAt:    settledAt,
	}

	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "payment_receipt",
		Payload: receipt,
	})
	if err != nil {
		s.metrics.ObserveNotification(notificationStatusDropped)
		s.logger.Warn("receipt dropped",
			zap.String("payment_id", payment.ID),
			zap.Error(err))
	}
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	receipt, ok := job.Payload.(Receipt)
	if !ok {
		s.logger.Error("unexpected receipt payload type", zap.String("job_id", job.ID))
		return nil
	}

	if receipt.RecipientEmail == "" && s.users != nil {
		user, err := s.users.FindByID(ctx, receipt.RecipientID)
		if err != nil {
			s.metrics.ObserveNotification(notificationStatusFailed)
			s.logger.Warn("receipt recipient lookup failed",
				zap.String("payment_id", receipt.PaymentID),
				zap.String("recipient_id", receipt.RecipientID),
				zap.Error(err))
			return err
		}
		receipt.RecipientEmail = user.Email
	}

	if err := s.sender.Send(ctx, receipt); err != nil {
		s.metrics.ObserveNotification(notificationStatusFailed)
		s.logger.Warn("receipt delivery failed",
			zap.String("payment_id", receipt.PaymentID),
			zap.String("recipient_id", receipt.RecipientID),
			zap.Error(err))
		return err
	}

	s.metrics.ObserveNotification(notificationStatusSent)
	s.logger.Info("receipt delivered",
		zap.String("payment_id", receipt.PaymentID),
		zap.String("recipient_id", receipt.RecipientID))
	return nil
}

// LogSender writes receipts to the application log. It stands in for a real
// mail or push integration in development environments.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements ReceiptSender.
func (l *LogSender) Send(_ context.Context, receipt Receipt) error {
	l.Logger.Info("payment receipt",
		zap.String("payment_id", receipt.PaymentID),
		zap.String("enrollment_id", receipt.EnrollmentID),
		zap.String("recipient_id", receipt.RecipientID),
		zap.String("recipient_email", receipt.RecipientEmail),
		zap.String("amount", receipt.Amount.String()),
		zap.String("paid_amount", receipt.PaidAmount.String()),
		zap.String("total_amount", receipt.TotalAmount.String()),
		zap.Time("settled_at", receipt.SettledAt))
	return nil
}
