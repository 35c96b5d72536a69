package models

// LetterGrade is a qualitative per-skill grade, A (best) to E.
type LetterGrade string

const (
	GradeA LetterGrade = "A"
	GradeB LetterGrade = "B"
	GradeC LetterGrade = "C"
	GradeD LetterGrade = "D"
	GradeE LetterGrade = "E"
)

// Low reports whether the grade signals difficulty.
func (g LetterGrade) Low() bool {
	return g == GradeD || g == GradeE
}

// PartialReport holds per-term skill grades for a student in a course.
type PartialReport struct {
	ID        string       `db:"id" json:"id"`
	CourseID  string       `db:"course_id" json:"course_id"`
	StudentID string       `db:"student_id" json:"student_id"`
	Term      string       `db:"term" json:"term"`
	Reading   *LetterGrade `db:"reading" json:"reading,omitempty"`
	Writing   *LetterGrade `db:"writing" json:"writing,omitempty"`
	Listening *LetterGrade `db:"listening" json:"listening,omitempty"`
	Speaking  *LetterGrade `db:"speaking" json:"speaking,omitempty"`
}

// HasLowGrade reports whether any graded skill is D or E.
func (p PartialReport) HasLowGrade() bool {
	for _, g := range []*LetterGrade{p.Reading, p.Writing, p.Listening, p.Speaking} {
		if g != nil && g.Low() {
			return true
		}
	}
	return false
}

// ReportCard holds the yearly exam scores of a student in a course.
type ReportCard struct {
	ID            string   `db:"id" json:"id"`
	CourseID      string   `db:"course_id" json:"course_id"`
	StudentID     string   `db:"student_id" json:"student_id"`
	Year          int      `db:"year" json:"year"`
	ExamWritten   *float64 `db:"exam_written" json:"exam_written,omitempty"`
	ExamReading   *float64 `db:"exam_reading" json:"exam_reading,omitempty"`
	ExamListening *float64 `db:"exam_listening" json:"exam_listening,omitempty"`
	ExamOral      *float64 `db:"exam_oral" json:"exam_oral,omitempty"`
}

// Scores returns the exam scores that have been recorded.
func (r ReportCard) Scores() []float64 {
	scores := make([]float64, 0, 4)
	for _, s := range []*float64{r.ExamWritten, r.ExamReading, r.ExamListening, r.ExamOral} {
		if s != nil {
			scores = append(scores, *s)
		}
	}
	return scores
}
