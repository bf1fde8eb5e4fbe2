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

// MentorAssignmentRepository handles persistence of mentor assignments.
type MentorAssignmentRepository struct {
	db *sqlx.DB
}

// NewMentorAssignmentRepository constructs the repository.
func NewMentorAssignmentRepository(db *sqlx.DB) *MentorAssignmentRepository {
	return &MentorAssignmentRepository{db: db}
}

const assignmentColumns = `id, mentor_id, student_id, course_id, enrollment_id, commission_rate, status, created_at, updated_at`

// FindByID returns an assignment by its ID.
func (r *MentorAssignmentRepository) FindByID(ctx context.Context, id string) (*models.MentorAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM mentor_assignments WHERE id = $1`, assignmentColumns)
	var assignment models.MentorAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindActiveByEnrollment returns the active assignment for an enrollment, or
// sql.ErrNoRows when the enrollment has no mentor yet.
func (r *MentorAssignmentRepository) FindActiveByEnrollment(ctx context.Context, enrollmentID string) (*models.MentorAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM mentor_assignments WHERE enrollment_id = $1 AND status = $2
        ORDER BY created_at DESC LIMIT 1`, assignmentColumns)
	var assignment models.MentorAssignment
	if err := r.db.GetContext(ctx, &assignment, query, enrollmentID, models.AssignmentStatusActive); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ExistsActive checks if an enrollment already has an active assignment.
func (r *MentorAssignmentRepository) ExistsActive(ctx context.Context, enrollmentID string) (bool, error) {
	const query = `SELECT 1 FROM mentor_assignments WHERE enrollment_id = $1 AND status = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, enrollmentID, models.AssignmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active assignment: %w", err)
	}
	return true, nil
}

// List returns assignments filtered by the provided criteria.
func (r *MentorAssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.MentorAssignment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.MentorID != "" {
		conditions = append(conditions, fmt.Sprintf("mentor_id = $%d", len(args)+1))
		args = append(args, filter.MentorID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
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

	query := fmt.Sprintf(`SELECT %s FROM mentor_assignments%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		assignmentColumns, clause, size, offset)

	var assignments []models.MentorAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM mentor_assignments%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return assignments, total, nil
}

// Create persists a new assignment record.
func (r *MentorAssignmentRepository) Create(ctx context.Context, assignment *models.MentorAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusActive
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO mentor_assignments (id, mentor_id, student_id, course_id, enrollment_id,
        commission_rate, status, created_at, updated_at)
        VALUES (:id, :mentor_id, :student_id, :course_id, :enrollment_id,
        :commission_rate, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// UpdateCommissionRate changes the rate applied to future settlements.
// Already settled payments keep the split computed at their settlement time.
func (r *MentorAssignmentRepository) UpdateCommissionRate(ctx context.Context, id string, rate decimal.Decimal) error {
	const query = `UPDATE mentor_assignments SET commission_rate = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, rate, time.Now().UTC()); err != nil {
		return fmt.Errorf("update commission rate: %w", err)
	}
	return nil
}

// UpdateStatus transitions the assignment lifecycle.
func (r *MentorAssignmentRepository) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus) error {
	const query = `UPDATE mentor_assignments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	return nil
}
