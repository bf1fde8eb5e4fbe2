package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle of a payment attempt.
type PaymentStatus string

// Possible payment statuses. COMPLETED and FAILED are terminal except for an
// explicit administrative REFUNDED transition.
const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment is a row in the payment ledger, the authoritative record of a
// payment attempt. ProviderRef is the provider's payment-intent reference and
// doubles as the idempotency key for webhook deliveries.
type Payment struct {
	ID               string           `db:"id" json:"id"`
	EnrollmentID     string           `db:"enrollment_id" json:"enrollment_id"`
	PayerID          string           `db:"payer_id" json:"payer_id"`
	AssignmentID     *string          `db:"assignment_id" json:"assignment_id,omitempty"`
	Amount           decimal.Decimal  `db:"amount" json:"amount"`
	Status           PaymentStatus    `db:"status" json:"status"`
	ProviderRef      string           `db:"provider_ref" json:"provider_ref"`
	MentorCommission *decimal.Decimal `db:"mentor_commission" json:"mentor_commission,omitempty"`
	PlatformFee      *decimal.Decimal `db:"platform_fee" json:"platform_fee,omitempty"`
	PaidAt           *time.Time       `db:"paid_at" json:"paid_at,omitempty"`
	FlaggedForReview bool             `db:"flagged_for_review" json:"flagged_for_review"`
	Description      string           `db:"description" json:"description"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// SettleOutcome tells the caller whether a settle call performed the
// COMPLETED transition or observed it already done by an earlier delivery.
type SettleOutcome string

const (
	SettleOutcomeNewlySettled   SettleOutcome = "NEWLY_SETTLED"
	SettleOutcomeAlreadySettled SettleOutcome = "ALREADY_SETTLED"
)

// CommissionSplit is the division of a payment amount between the mentor and
// the platform.
type CommissionSplit struct {
	MentorCommission decimal.Decimal `json:"mentor_commission"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
}

// PaymentFilter provides filters for listing ledger entries.
type PaymentFilter struct {
	EnrollmentID string
	PayerID      string
	Status       PaymentStatus
	Page         int
	PageSize     int
}
