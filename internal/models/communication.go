package models

import "time"

// CommunicationCategory classifies messages sent about a student.
type CommunicationCategory string

const (
	CommunicationBehavior   CommunicationCategory = "BEHAVIOR"
	CommunicationAcademic   CommunicationCategory = "ACADEMIC"
	CommunicationAttendance CommunicationCategory = "ATTENDANCE"
	CommunicationAdmin      CommunicationCategory = "ADMIN"
	CommunicationGeneral    CommunicationCategory = "GENERAL"
)

// Communication is a message concerning a student. RecipientID is set when a
// specific staff member is being notified.
type Communication struct {
	ID          string                `db:"id" json:"id"`
	CourseID    *string               `db:"course_id" json:"course_id,omitempty"`
	StudentID   string                `db:"student_id" json:"student_id"`
	RecipientID *string               `db:"recipient_id" json:"recipient_id,omitempty"`
	Category    CommunicationCategory `db:"category" json:"category"`
	Title       string                `db:"title" json:"title"`
	Body        string                `db:"body" json:"body"`
	CreatedBy   string                `db:"created_by" json:"created_by"`
	CreatedAt   time.Time             `db:"created_at" json:"created_at"`
}
