package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssignmentStatus represents the lifecycle of a mentor assignment.
type AssignmentStatus string

// Possible assignment statuses.
const (
	AssignmentStatusActive    AssignmentStatus = "ACTIVE"
	AssignmentStatusCompleted AssignmentStatus = "COMPLETED"
	AssignmentStatusSuspended AssignmentStatus = "SUSPENDED"
)

// MentorAssignment links a mentor to a student/course/enrollment tuple and
// carries the commission rate applied at settlement time. The rate lives on
// the assignment, not on the payment: settled payments are immutable, future
// settlements pick up rate changes.
type MentorAssignment struct {
	ID             string           `db:"id" json:"id"`
	MentorID       string           `db:"mentor_id" json:"mentor_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	EnrollmentID   string           `db:"enrollment_id" json:"enrollment_id"`
	CommissionRate decimal.Decimal  `db:"commission_rate" json:"commission_rate"`
	Status         AssignmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// AssignmentFilter provides filters for listing mentor assignments.
type AssignmentFilter struct {
	MentorID     string
	StudentID    string
	EnrollmentID string
	Status       AssignmentStatus
	Page         int
	PageSize     int
}
