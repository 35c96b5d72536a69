package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusInactive EnrollmentStatus = "INACTIVE"
)

// Enrollment associates a student with a course for an academic year.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	Year      int              `db:"year" json:"year"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	JoinedAt  time.Time        `db:"joined_at" json:"joined_at"`
}
