package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentora/mentora-pay-api/internal/models"
	"github.com/mentora/mentora-pay-api/internal/provider"
	"github.com/mentora/mentora-pay-api/internal/repository"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
)

const testWebhookSecret = "whsec_test"

func newTestVerifier() *provider.Verifier {
	return provider.NewVerifier(testWebhookSecret, 5*time.Minute)
}

type ledgerMock struct {
	payments      map[string]*models.Payment
	findErr       error
	settleErr     error
	settleOutcome models.SettleOutcome
	settleCalls   []repository.SettleParams
	enrollment    models.Enrollment

	markFailedCalls  []string
	markFailedResult bool
	markFailedErr    error
}

func (m *ledgerMock) FindByID(_ context.Context, id string) (*models.Payment, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	payment, ok := m.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return payment, nil
}

func (m *ledgerMock) Settle(_ context.Context, params repository.SettleParams) (*repository.SettleResult, error) {
	m.settleCalls = append(m.settleCalls, params)
	if m.settleErr != nil {
		return nil, m.settleErr
	}
	payment := *m.payments[params.PaymentID]
	payment.Status = models.PaymentStatusCompleted
	payment.MentorCommission = &params.MentorCommission
	payment.PlatformFee = &params.PlatformFee
	payment.FlaggedForReview = params.FlagForReview
	outcome := m.settleOutcome
	if outcome == "" {
		outcome = models.SettleOutcomeNewlySettled
	}
	return &repository.SettleResult{Outcome: outcome, Payment: payment, Enrollment: m.enrollment}, nil
}

func (m *ledgerMock) MarkFailed(_ context.Context, paymentID, _ string) (bool, error) {
	m.markFailedCalls = append(m.markFailedCalls, paymentID)
	return m.markFailedResult, m.markFailedErr
}

type enrollmentReaderMock struct {
	enrollments map[string]*models.Enrollment
	err         error
}

func (m *enrollmentReaderMock) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	if m.err != nil {
		return nil, m.err
	}
	enrollment, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return enrollment, nil
}

type assignmentReaderMock struct {
	assignment *models.MentorAssignment
	err        error
}

func (m *assignmentReaderMock) FindActiveByEnrollment(_ context.Context, _ string) (*models.MentorAssignment, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.assignment == nil {
		return nil, sql.ErrNoRows
	}
	return m.assignment, nil
}

type notifierMock struct {
	receipts []string
}

func (m *notifierMock) EnqueueReceipt(payment *models.Payment, _ *models.Enrollment) {
	m.receipts = append(m.receipts, payment.ID)
}

type settlementFixture struct {
	service     *SettlementService
	ledger      *ledgerMock
	enrollments *enrollmentReaderMock
	assignments *assignmentReaderMock
	notifier    *notifierMock
}

func newSettlementFixture() *settlementFixture {
	enrollment := &models.Enrollment{
		ID:          "enr-1",
		StudentID:   "stu-1",
		TotalAmount: decimal.NewFromInt(100000),
		PaidAmount:  decimal.NewFromInt(60000),
		Status:      models.EnrollmentStatusActive,
	}
	ledger := &ledgerMock{
		payments: map[string]*models.Payment{
			"pay-1": {
				ID:           "pay-1",
				EnrollmentID: "enr-1",
				PayerID:      "stu-1",
				Amount:       decimal.NewFromInt(10000),
				Status:       models.PaymentStatusPending,
			},
		},
		enrollment: *enrollment,
	}
	enrollments := &enrollmentReaderMock{enrollments: map[string]*models.Enrollment{"enr-1": enrollment}}
	assignments := &assignmentReaderMock{
		assignment: &models.MentorAssignment{
			ID:             "asg-1",
			EnrollmentID:   "enr-1",
			MentorID:       "men-1",
			CommissionRate: decimal.NewFromInt(37),
			Status:         models.AssignmentStatusActive,
		},
	}
	notifier := &notifierMock{}

	svc := NewSettlementService(
		ledger, enrollments, assignments, notifier,
		newTestVerifier(), NewMetricsService(), zap.NewNop(),
		3.0, 2,
	)
	return &settlementFixture{service: svc, ledger: ledger, enrollments: enrollments, assignments: assignments, notifier: notifier}
}

func signPayload(secret string, payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func succeededPayload(paymentID, enrollmentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","created":%d,"data":{"object":{"id":"pi_1","amount":10000,"metadata":{"payment_id":%q,"enrollment_id":%q}}}}`,
		time.Now().Unix(), paymentID, enrollmentID))
}

func failedPayload(paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_2","type":"payment_intent.payment_failed","created":%d,"data":{"object":{"id":"pi_2","last_failure_message":"card_declined","metadata":{"payment_id":%q}}}}`,
		time.Now().Unix(), paymentID))
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	f := newSettlementFixture()
	payload := succeededPayload("pay-1", "enr-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload("whsec_wrong", payload))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInvalidSignature.Code, appErr.Code)
	require.Empty(t, f.ledger.settleCalls)
}

func TestProcessWebhookAcknowledgesIgnoredEventType(t *testing.T) {
	f := newSettlementFixture()
	payload := []byte(`{"id":"evt_3","type":"charge.refund.updated","data":{"object":{"id":"re_1"}}}`)

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Empty(t, f.ledger.settleCalls)
}

func TestProcessWebhookAcknowledgesMalformedEvent(t *testing.T) {
	f := newSettlementFixture()
	payload := []byte(`{"id":"evt_4","type":"payment_intent.succeeded","data":{"object":{"id":"pi_9","metadata":{}}}}`)

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Empty(t, f.ledger.settleCalls)
}

func TestProcessWebhookSettlesAndNotifies(t *testing.T) {
	f := newSettlementFixture()
	payload := succeededPayload("pay-1", "enr-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Len(t, f.ledger.settleCalls, 1)
	params := f.ledger.settleCalls[0]
	require.Equal(t, "pay-1", params.PaymentID)
	require.Equal(t, "pi_1", params.ProviderRef)
	require.False(t, params.FlagForReview)
	require.True(t, params.MentorCommission.Equal(decimal.NewFromInt(3700)),
		"mentor commission %s", params.MentorCommission)
	require.True(t, params.PlatformFee.Equal(decimal.NewFromInt(300)),
		"platform fee %s", params.PlatformFee)
	require.NotNil(t, params.AssignmentID)
	require.Equal(t, "asg-1", *params.AssignmentID)
	require.Equal(t, []string{"pay-1"}, f.notifier.receipts)
}

func TestProcessWebhookReplayDoesNotNotify(t *testing.T) {
	f := newSettlementFixture()
	f.ledger.settleOutcome = models.SettleOutcomeAlreadySettled
	payload := succeededPayload("pay-1", "enr-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Len(t, f.ledger.settleCalls, 1)
	require.Empty(t, f.notifier.receipts)
}

func TestProcessWebhookUnknownPaymentAcknowledged(t *testing.T) {
	f := newSettlementFixture()
	payload := succeededPayload("pay-missing", "enr-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Empty(t, f.ledger.settleCalls)
	require.Empty(t, f.notifier.receipts)
}

func TestProcessWebhookEnrollmentMismatchAcknowledged(t *testing.T) {
	f := newSettlementFixture()
	payload := succeededPayload("pay-1", "enr-other")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Empty(t, f.ledger.settleCalls)
}

func TestProcessWebhookCancelledEnrollmentFlagsReview(t *testing.T) {
	f := newSettlementFixture()
	f.enrollments.enrollments["enr-1"].Status = models.EnrollmentStatusCancelled
	payload := succeededPayload("pay-1", "enr-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Len(t, f.ledger.settleCalls, 1)
	require.True(t, f.ledger.settleCalls[0].FlagForReview)
}

func TestProcessWebhookNoAssignmentWithholdsCommission(t *testing.T) {
	f := newSettlementFixture()
	f.assignments.assignment = nil
	payload := succeededPayload("pay-1", "enr-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Len(t, f.ledger.settleCalls, 1)
	params := f.ledger.settleCalls[0]
	require.True(t, params.MentorCommission.IsZero(), "mentor commission %s", params.MentorCommission)
	require.True(t, params.PlatformFee.Equal(decimal.NewFromInt(300)),
		"platform fee %s", params.PlatformFee)
	require.Nil(t, params.AssignmentID)
}

func TestProcessWebhookLedgerErrorPropagates(t *testing.T) {
	f := newSettlementFixture()
	f.ledger.settleErr = errors.New("pq: connection reset")
	payload := succeededPayload("pay-1", "enr-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
	require.Empty(t, f.notifier.receipts)
}

func TestProcessWebhookFailureEventMarksFailed(t *testing.T) {
	f := newSettlementFixture()
	f.ledger.markFailedResult = true
	payload := failedPayload("pay-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Equal(t, []string{"pay-1"}, f.ledger.markFailedCalls)
}

func TestProcessWebhookFailureOnTerminalPaymentAcknowledged(t *testing.T) {
	f := newSettlementFixture()
	f.ledger.markFailedResult = false
	payload := failedPayload("pay-1")

	err := f.service.ProcessWebhook(context.Background(), payload, signPayload(testWebhookSecret, payload))

	require.NoError(t, err)
	require.Equal(t, []string{"pay-1"}, f.ledger.markFailedCalls)
}
