package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mentora/mentora-pay-api/internal/models"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
	"github.com/mentora/mentora-pay-api/pkg/storage"
)

type payoutLedgerMock struct {
	settlements []models.MentorSettlement
	err         error
}

func (m *payoutLedgerMock) ListSettledByMentor(_ context.Context, _ string, _, _ time.Time) ([]models.MentorSettlement, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.settlements, nil
}

type statementStorageMock struct {
	saved map[string][]byte
}

func (m *statementStorageMock) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[filename] = data
	return filename, nil
}

func (m *statementStorageMock) Open(_ string) (*os.File, error) { return nil, os.ErrNotExist }
func (m *statementStorageMock) CleanupOlderThan(_ time.Duration) ([]string, error) {
	return nil, nil
}

func payoutPeriod() (time.Time, time.Time) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func newPayoutFixture(ledger *payoutLedgerMock) (*PayoutService, *statementStorageMock) {
	store := &statementStorageMock{}
	signer := storage.NewSignedURLSigner("statement-secret", time.Hour)
	svc := NewPayoutService(ledger, store, signer, PayoutConfig{APIPrefix: "/api/v1"}, nil, nil, nil)
	return svc, store
}

func TestPayoutServiceSummarizeTotalsCommissions(t *testing.T) {
	from, to := payoutPeriod()
	ledger := &payoutLedgerMock{settlements: []models.MentorSettlement{
		{PaymentID: "pay-1", MentorCommission: decimal.NewFromInt(22200), PaidAt: from.Add(time.Hour)},
		{PaymentID: "pay-2", MentorCommission: decimal.NewFromInt(14800), PaidAt: from.Add(2 * time.Hour)},
	}}
	svc, _ := newPayoutFixture(ledger)

	summary, err := svc.Summarize(context.Background(), "men-1", from, to)

	require.NoError(t, err)
	require.Equal(t, 2, summary.PaymentCount)
	require.True(t, summary.TotalCommission.Equal(decimal.NewFromInt(37000)),
		"total %s", summary.TotalCommission)
}

func TestPayoutServiceSummarizeRejectsInvertedPeriod(t *testing.T) {
	from, to := payoutPeriod()
	svc, _ := newPayoutFixture(&payoutLedgerMock{})

	_, err := svc.Summarize(context.Background(), "men-1", to, from)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPayoutServiceGenerateStatementCSV(t *testing.T) {
	from, to := payoutPeriod()
	ledger := &payoutLedgerMock{settlements: []models.MentorSettlement{
		{PaymentID: "pay-1", EnrollmentID: "enr-1", Amount: decimal.NewFromInt(60000),
			MentorCommission: decimal.NewFromInt(22200), CommissionRate: decimal.NewFromInt(37),
			PaidAt: from.Add(time.Hour)},
	}}
	svc, store := newPayoutFixture(ledger)

	result, err := svc.GenerateStatement(context.Background(), "men-1", from, to, StatementFormatCSV)

	require.NoError(t, err)
	require.Equal(t, StatementFormatCSV, result.Format)
	require.NotEmpty(t, result.Token)
	require.Contains(t, result.URL, "/api/v1/payouts/statements/")
	require.Len(t, store.saved, 1)
	for _, data := range store.saved {
		require.Contains(t, string(data), "pay-1")
		require.Contains(t, string(data), "22200")
		require.Contains(t, string(data), "TOTAL")
	}
}

func TestPayoutServiceGenerateStatementRejectsUnknownFormat(t *testing.T) {
	from, to := payoutPeriod()
	svc, _ := newPayoutFixture(&payoutLedgerMock{})

	_, err := svc.GenerateStatement(context.Background(), "men-1", from, to, StatementFormat("xlsx"))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
