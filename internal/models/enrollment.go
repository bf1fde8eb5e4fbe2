package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus represents the lifecycle of a course enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentStatusPaused    EnrollmentStatus = "PAUSED"
)

// DiscountType categorises how an enrollment's total amount was adjusted.
type DiscountType string

// Supported discount adjustments.
const (
	DiscountNone       DiscountType = "NONE"
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// Enrollment captures a student's registration to a course.
//
// PaidAmount is derived: it is always recomputed from the sum of COMPLETED
// payments and is never written directly by event handlers.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	CourseID      string           `db:"course_id" json:"course_id"`
	TotalAmount   decimal.Decimal  `db:"total_amount" json:"total_amount"`
	PaidAmount    decimal.Decimal  `db:"paid_amount" json:"paid_amount"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	DiscountType  DiscountType     `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal  `db:"discount_value" json:"discount_value"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
