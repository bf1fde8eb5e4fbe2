package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MentorSettlement is one settled payment row in a mentor payout statement.
type MentorSettlement struct {
	PaymentID        string          `db:"payment_id" json:"payment_id"`
	EnrollmentID     string          `db:"enrollment_id" json:"enrollment_id"`
	StudentID        string          `db:"student_id" json:"student_id"`
	CourseID         string          `db:"course_id" json:"course_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	MentorCommission decimal.Decimal `db:"mentor_commission" json:"mentor_commission"`
	CommissionRate   decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	PaidAt           time.Time       `db:"paid_at" json:"paid_at"`
}

// PayoutSummary aggregates a mentor's settled commissions over a period.
type PayoutSummary struct {
	MentorID        string             `json:"mentor_id"`
	PeriodStart     time.Time          `json:"period_start"`
	PeriodEnd       time.Time          `json:"period_end"`
	PaymentCount    int                `json:"payment_count"`
	TotalCommission decimal.Decimal    `json:"total_commission"`
	Settlements     []MentorSettlement `json:"settlements"`
}
