package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mentora/mentora-pay-api/internal/models"
	"github.com/mentora/mentora-pay-api/pkg/export"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
	"github.com/mentora/mentora-pay-api/pkg/storage"
)

// StatementFormat enumerates supported payout statement renderings.
type StatementFormat string

const (
	StatementFormatCSV StatementFormat = "csv"
	StatementFormatPDF StatementFormat = "pdf"
)

type payoutLedger interface {
	ListSettledByMentor(ctx context.Context, mentorID string, from, to time.Time) ([]models.MentorSettlement, error)
}

type statementStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(table export.Table, title string) ([]byte, error)
}

// PayoutConfig tunes statement generation behaviour.
type PayoutConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// StatementResult captures a generated payout statement.
type StatementResult struct {
	Summary      *models.PayoutSummary
	RelativePath string
	Token        string
	URL          string
	Format       StatementFormat
	ExpiresAt    time.Time
}

// PayoutService summarises settled commissions per mentor and renders payout
// statements for finance.
type PayoutService struct {
	ledger  payoutLedger
	storage statementStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     PayoutConfig
}

// NewPayoutService constructs PayoutService.
func NewPayoutService(ledger payoutLedger, store statementStorage, signer *storage.SignedURLSigner, cfg PayoutConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *PayoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &PayoutService{
		ledger:  ledger,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Summarize aggregates a mentor's settled commissions over a period.
func (s *PayoutService) Summarize(ctx context.Context, mentorID string, from, to time.Time) (*models.PayoutSummary, error) {
	if mentorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mentor id is required")
	}
	if !to.After(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period end must be after period start")
	}

	settlements, err := s.ledger.ListSettledByMentor(ctx, mentorID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mentor settlements")
	}

	total := decimal.Zero
	for _, settlement := range settlements {
		total = total.Add(settlement.MentorCommission)
	}

	return &models.PayoutSummary{
		MentorID:        mentorID,
		PeriodStart:     from,
		PeriodEnd:       to,
		PaymentCount:    len(settlements),
		TotalCommission: total,
		Settlements:     settlements,
	}, nil
}

// GenerateStatement renders a payout statement and stores it behind a signed
// download URL.
func (s *PayoutService) GenerateStatement(ctx context.Context, mentorID string, from, to time.Time, format StatementFormat) (*StatementResult, error) {
	summary, err := s.Summarize(ctx, mentorID, from, to)
	if err != nil {
		return nil, err
	}

	table := statementTable(summary)
	var payload []byte
	switch format {
	case StatementFormatCSV:
		payload, err = s.csv.Render(table)
	case StatementFormatPDF:
		title := fmt.Sprintf("Payout statement %s %s", mentorID, from.Format("2006-01"))
		payload, err = s.pdf.Render(table, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported statement format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}

	statementID := fmt.Sprintf("%s-%s", mentorID, from.Format("20060102"))
	filename := fmt.Sprintf("payout-%s-%d.%s", statementID, time.Now().UTC().Unix(), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store statement")
	}

	token, expiresAt, err := s.signer.Generate(statementID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign statement url")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("payout statement generated",
		zap.String("mentor_id", mentorID),
		zap.String("format", string(format)),
		zap.Int("payments", summary.PaymentCount),
		zap.String("total_commission", summary.TotalCommission.String()))

	return &StatementResult{
		Summary:      summary,
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/payouts/statements/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// OpenStatement resolves a signed token back to the stored file.
func (s *PayoutService) OpenStatement(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "statement link is invalid or expired")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "statement file not found")
	}
	return file, nil
}

// CleanupExpired removes statements older than the configured TTL.
func (s *PayoutService) CleanupExpired() ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up statements")
	}
	if len(removed) > 0 {
		s.logger.Info("expired payout statements removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

func statementTable(summary *models.PayoutSummary) export.Table {
	headers := []string{"payment_id", "enrollment_id", "student_id", "course_id", "amount", "commission_rate", "mentor_commission", "paid_at"}
	rows := make([]map[string]string, 0, len(summary.Settlements))
	for _, s := range summary.Settlements {
		rows = append(rows, map[string]string{
			"payment_id":        s.PaymentID,
			"enrollment_id":     s.EnrollmentID,
			"student_id":        s.StudentID,
			"course_id":         s.CourseID,
			"amount":            s.Amount.String(),
			"commission_rate":   s.CommissionRate.String(),
			"mentor_commission": s.MentorCommission.String(),
			"paid_at":           s.PaidAt.Format(time.RFC3339),
		})
	}
	return export.Table{
		Headers: headers,
		Rows:    rows,
		Footer: map[string]string{
			"payment_id":        "TOTAL",
			"mentor_commission": summary.TotalCommission.String(),
		},
	}
}
