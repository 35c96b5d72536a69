package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendancePresent   AttendanceStatus = "Present"
	AttendanceAbsent    AttendanceStatus = "Absent"
	AttendanceLate      AttendanceStatus = "Late"
	AttendanceJustified AttendanceStatus = "Justified"
)

// AttendanceRecord is a student's daily status in a course.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
}
