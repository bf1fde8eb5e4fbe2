package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mentora/mentora-pay-api/internal/models"
	"github.com/mentora/mentora-pay-api/internal/provider"
	"github.com/mentora/mentora-pay-api/internal/repository"
	"github.com/mentora/mentora-pay-api/internal/service"
)

const webhookTestSecret = "whsec_handler_test"

type webhookLedgerStub struct {
	payment   *models.Payment
	settleErr error
}

func (s *webhookLedgerStub) FindByID(_ context.Context, id string) (*models.Payment, error) {
	if s.payment == nil || s.payment.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.payment, nil
}

func (s *webhookLedgerStub) Settle(_ context.Context, params repository.SettleParams) (*repository.SettleResult, error) {
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	payment := *s.payment
	payment.Status = models.PaymentStatusCompleted
	return &repository.SettleResult{
		Outcome: models.SettleOutcomeNewlySettled,
		Payment: payment,
		Enrollment: models.Enrollment{
			ID:         payment.EnrollmentID,
			PaidAmount: payment.Amount,
		},
	}, nil
}

func (s *webhookLedgerStub) MarkFailed(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

type webhookEnrollmentStub struct{}

func (webhookEnrollmentStub) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	return &models.Enrollment{ID: id, StudentID: "stu-1", Status: models.EnrollmentStatusActive}, nil
}

type webhookAssignmentStub struct{}

func (webhookAssignmentStub) FindActiveByEnrollment(_ context.Context, _ string) (*models.MentorAssignment, error) {
	return nil, sql.ErrNoRows
}

func newWebhookRouter(ledger *webhookLedgerStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	verifier := provider.NewVerifier(webhookTestSecret, 5*time.Minute)
	settlement := service.NewSettlementService(
		ledger, webhookEnrollmentStub{}, webhookAssignmentStub{}, nil,
		verifier, service.NewMetricsService(), zap.NewNop(), 3.0, 2,
	)
	router := gin.New()
	router.POST("/webhooks/payments", NewWebhookHandler(settlement, 5*time.Second).HandlePaymentEvent)
	return router
}

func signWebhook(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func webhookSucceededBody() []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","created":%d,"data":{"object":{"id":"pi_1","amount":10000,"metadata":{"payment_id":"pay-1","enrollment_id":"enr-1"}}}}`,
		time.Now().Unix()))
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(provider.SignatureHeader, signature)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookHandlerAcknowledgesValidEvent(t *testing.T) {
	ledger := &webhookLedgerStub{payment: &models.Payment{
		ID:           "pay-1",
		EnrollmentID: "enr-1",
		Amount:       decimal.NewFromInt(10000),
		Status:       models.PaymentStatusPending,
	}}
	router := newWebhookRouter(ledger)

	body := webhookSucceededBody()
	w := postWebhook(router, body, signWebhook(body))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"received": true}`, w.Body.String())
}

func TestWebhookHandlerRejectsMissingSignature(t *testing.T) {
	router := newWebhookRouter(&webhookLedgerStub{})

	w := postWebhook(router, webhookSucceededBody(), "")

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "INVALID_SIGNATURE")
}

func TestWebhookHandlerReturns500OnLedgerFailure(t *testing.T) {
	ledger := &webhookLedgerStub{
		payment: &models.Payment{
			ID:           "pay-1",
			EnrollmentID: "enr-1",
			Amount:       decimal.NewFromInt(10000),
			Status:       models.PaymentStatusPending,
		},
		settleErr: errors.New("pq: connection reset"),
	}
	router := newWebhookRouter(ledger)

	body := webhookSucceededBody()
	w := postWebhook(router, body, signWebhook(body))

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookHandlerAcknowledgesUnknownEventType(t *testing.T) {
	router := newWebhookRouter(&webhookLedgerStub{})

	body := []byte(`{"id":"evt_9","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	w := postWebhook(router, body, signWebhook(body))

	require.Equal(t, http.StatusOK, w.Code)
}
