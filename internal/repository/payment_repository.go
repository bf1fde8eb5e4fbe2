package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/mentora/mentora-pay-api/internal/models"
)

// PaymentRepository handles persistence of the payment ledger and the derived
// enrollment aggregates. Settlement and aggregation share one transaction so
// a crash between them cannot leave a COMPLETED payment with stale totals.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// SettleParams carries the fields written on the COMPLETED transition.
type SettleParams struct {
	PaymentID        string
	ProviderRef      string
	SettledAt        time.Time
	MentorCommission decimal.Decimal
	PlatformFee      decimal.Decimal
	FlagForReview    bool
	// AssignmentID records the assignment whose rate produced the split. Left
	// nil it keeps whatever the intent captured at creation time.
	AssignmentID *string
}

// SettleResult reports the settle outcome together with the post-settlement
// ledger and enrollment state.
type SettleResult struct {
	Outcome    models.SettleOutcome
	Payment    models.Payment
	Enrollment models.Enrollment
}

const paymentColumns = `id, enrollment_id, payer_id, assignment_id, amount, status, provider_ref,
        mentor_commission, platform_fee, paid_at, flagged_for_review, description, created_at, updated_at`

const enrollmentColumns = `id, student_id, course_id, total_amount, paid_amount, status,
        discount_type, discount_value, created_at, updated_at`

// Create persists a new PENDING ledger entry.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, enrollment_id, payer_id, assignment_id, amount, status, provider_ref,
        flagged_for_review, description, created_at, updated_at)
        VALUES (:id, :enrollment_id, :payer_id, :assignment_id, :amount, :status, :provider_ref,
        :flagged_for_review, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID returns a ledger entry by its internal ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// List returns ledger entries filtered by the provided criteria.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.PayerID != "" {
		conditions = append(conditions, fmt.Sprintf("payer_id = $%d", len(args)+1))
		args = append(args, filter.PayerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM payments%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		paymentColumns, clause, size, offset)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// Settle performs the COMPLETED transition and recomputes the owning
// enrollment's aggregates inside a single transaction.
//
// The status update is a conditional write: concurrent deliveries of the same
// event race on it and exactly one observes an affected row. The loser gets
// AlreadySettled and must not apply side effects. Amount, commission and fee
// are never rewritten once the payment is COMPLETED.
func (r *PaymentRepository) Settle(ctx context.Context, params SettleParams) (*SettleResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settle: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE payments
        SET status = $2, provider_ref = $3, paid_at = $4, mentor_commission = $5, platform_fee = $6,
            flagged_for_review = $7, assignment_id = COALESCE($8, assignment_id), updated_at = $9
        WHERE id = $1 AND status NOT IN ($10, $11)`
	res, err := tx.ExecContext(ctx, update,
		params.PaymentID,
		models.PaymentStatusCompleted,
		params.ProviderRef,
		params.SettledAt,
		params.MentorCommission,
		params.PlatformFee,
		params.FlagForReview,
		params.AssignmentID,
		time.Now().UTC(),
		models.PaymentStatusCompleted,
		models.PaymentStatusRefunded,
	)
	if err != nil {
		return nil, fmt.Errorf("settle payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("settle payment rows: %w", err)
	}

	outcome := models.SettleOutcomeNewlySettled
	if affected == 0 {
		outcome = models.SettleOutcomeAlreadySettled
	}

	var payment models.Payment
	selectPayment := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	if err := tx.GetContext(ctx, &payment, selectPayment, params.PaymentID); err != nil {
		return nil, fmt.Errorf("load settled payment: %w", err)
	}

	enrollment, err := reaggregateTx(ctx, tx, payment.EnrollmentID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settle: %w", err)
	}

	return &SettleResult{Outcome: outcome, Payment: payment, Enrollment: *enrollment}, nil
}

// MarkFailed records a provider failure for a payment. A failure event
// arriving after a success must not downgrade a COMPLETED payment, so the
// write is conditional on the current status.
// It reports whether a row actually transitioned.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID, providerRef string) (bool, error) {
	const query = `UPDATE payments SET status = $2, provider_ref = $3, updated_at = $4
        WHERE id = $1 AND status NOT IN ($5, $6)`
	res, err := r.db.ExecContext(ctx, query,
		paymentID,
		models.PaymentStatusFailed,
		providerRef,
		time.Now().UTC(),
		models.PaymentStatusCompleted,
		models.PaymentStatusRefunded,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark payment failed rows: %w", err)
	}
	return affected > 0, nil
}

// Reaggregate recomputes the derived totals of an enrollment from the ledger
// in its own transaction. Safe to call any number of times.
func (r *PaymentRepository) Reaggregate(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reaggregate: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	enrollment, err := reaggregateTx(ctx, tx, enrollmentID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reaggregate: %w", err)
	}
	return enrollment, nil
}

// reaggregateTx derives paid_amount as a fresh sum over COMPLETED payments.
// Summing instead of incrementing makes replayed and out-of-order deliveries
// converge to the same total. The status CASE moves ACTIVE enrollments to
// COMPLETED once fully paid and leaves every other status untouched, so an
// administrative CANCELLED or PAUSED is never overridden and a COMPLETED
// enrollment never flips back from re-aggregation alone.
func reaggregateTx(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (*models.Enrollment, error) {
	const sumQuery = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE enrollment_id = $1 AND status = $2`
	var paid decimal.Decimal
	if err := tx.GetContext(ctx, &paid, sumQuery, enrollmentID, models.PaymentStatusCompleted); err != nil {
		return nil, fmt.Errorf("sum completed payments: %w", err)
	}

	const update = `UPDATE enrollments
        SET paid_amount = $2,
            status = CASE WHEN status = $3 AND $2 >= total_amount THEN $4 ELSE status END,
            updated_at = $5
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		enrollmentID,
		paid,
		models.EnrollmentStatusActive,
		models.EnrollmentStatusCompleted,
		time.Now().UTC(),
	); err != nil {
		return nil, fmt.Errorf("update enrollment aggregates: %w", err)
	}

	var enrollment models.Enrollment
	selectEnrollment := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	if err := tx.GetContext(ctx, &enrollment, selectEnrollment, enrollmentID); err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	return &enrollment, nil
}

// ListSettledByMentor returns the settled payments credited to a mentor in
// the given period, newest first. Payments flagged for review are held back
// until finance clears them.
func (r *PaymentRepository) ListSettledByMentor(ctx context.Context, mentorID string, from, to time.Time) ([]models.MentorSettlement, error) {
	const query = `SELECT p.id AS payment_id, p.enrollment_id, a.student_id, a.course_id,
        p.amount, p.mentor_commission, a.commission_rate, p.paid_at
        FROM payments p
        JOIN mentor_assignments a ON a.id = p.assignment_id
        WHERE a.mentor_id = $1 AND p.status = $2 AND p.flagged_for_review = FALSE
          AND p.paid_at >= $3 AND p.paid_at < $4
        ORDER BY p.paid_at DESC`
	var settlements []models.MentorSettlement
	if err := r.db.SelectContext(ctx, &settlements, query, mentorID, models.PaymentStatusCompleted, from, to); err != nil {
		return nil, fmt.Errorf("list mentor settlements: %w", err)
	}
	return settlements, nil
}

// HasPendingForEnrollment reports whether an enrollment already has a pending
// intent, used to avoid duplicate intents from double-submits.
func (r *PaymentRepository) HasPendingForEnrollment(ctx context.Context, enrollmentID string, amount decimal.Decimal) (bool, error) {
	const query = `SELECT 1 FROM payments WHERE enrollment_id = $1 AND amount = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, enrollmentID, amount, models.PaymentStatusPending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending payment: %w", err)
	}
	return true, nil
}
