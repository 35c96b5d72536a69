package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/noah-isme/sma-case-api/internal/models"
)

const (
	attendanceWindow           = 10
	consecutiveAbsenceLimit    = 3
	attendanceMinimumRecords   = 5
	attendanceMinimumPercent   = 80.0
	behaviorWindowDays         = 30
	behaviorReportThreshold    = 2
	reportCardMinimumExamScore = 5.0
)

type ruleEvaluator func(ctx context.Context, run *alertRun, course models.Course, studentID string) error

func (s *AlertService) evaluateAttendance(ctx context.Context, run *alertRun, course models.Course, studentID string) error {
	records, err := s.repos.Attendance.ListRecent(ctx, course.ID, studentID, attendanceWindow)
	if err != nil {
		return fmt.Errorf("load attendance: %w", err)
	}

	if consecutiveAbsences(records, consecutiveAbsenceLimit) {
		return s.open(ctx, run, models.AutomatedCaseInput{
			StudentID:   studentID,
			CourseID:    &course.ID,
			Title:       fmt.Sprintf("%d consecutive absences", consecutiveAbsenceLimit),
			Description: fmt.Sprintf("The %d most recent attendance records in %s are absences.", consecutiveAbsenceLimit, course.Name),
			Category:    models.CaseCategoryAttendance,
			Severity:    models.CaseSeverityMedium,
			RuleID:      models.RuleAttendanceConsecutiveAbsences,
		})
	}

	if len(records) < attendanceMinimumRecords {
		return nil
	}
	percent := presentPercent(records)
	if percent >= attendanceMinimumPercent {
		return nil
	}
	return s.open(ctx, run, models.AutomatedCaseInput{
		StudentID:   studentID,
		CourseID:    &course.ID,
		Title:       fmt.Sprintf("Attendance below 80%% (%d%%)", int(math.Round(percent))),
		Description: fmt.Sprintf("Present in %d of the last %d sessions of %s.", countPresent(records), len(records), course.Name),
		Category:    models.CaseCategoryAttendance,
		Severity:    models.CaseSeverityLow,
		RuleID:      models.RuleAttendanceBelow80,
	})
}

func (s *AlertService) evaluatePartials(ctx context.Context, run *alertRun, course models.Course, studentID string) error {
	reports, err := s.repos.Grades.ListPartialReports(ctx, course.ID, studentID)
	if err != nil {
		return fmt.Errorf("load partial reports: %w", err)
	}
	for _, report := range reports {
		if !report.HasLowGrade() {
			continue
		}
		return s.open(ctx, run, models.AutomatedCaseInput{
			StudentID:   studentID,
			CourseID:    &course.ID,
			Title:       "Low partial grades",
			Description: fmt.Sprintf("A partial report for %s has a D or E in at least one skill.", course.Name),
			Category:    models.CaseCategoryAcademicDifficulty,
			Severity:    models.CaseSeverityMedium,
			RuleID:      models.RulePartialsLowScores,
		})
	}
	return nil
}

func (s *AlertService) evaluateBehavior(ctx context.Context, run *alertRun, course models.Course, studentID string) error {
	since := s.now().UTC().AddDate(0, 0, -behaviorWindowDays)
	count, err := s.repos.Communications.CountSince(ctx, course.ID, studentID, models.CommunicationBehavior, since)
	if err != nil {
		return fmt.Errorf("count behavior reports: %w", err)
	}
	if count < behaviorReportThreshold {
		return nil
	}
	return s.open(ctx, run, models.AutomatedCaseInput{
		StudentID:   studentID,
		CourseID:    &course.ID,
		Title:       "Repeated behavior reports",
		Description: fmt.Sprintf("%d behavior communications in the last %d days.", count, behaviorWindowDays),
		Category:    models.CaseCategoryBehavior,
		Severity:    models.CaseSeverityMedium,
		RuleID:      models.RuleBehaviorRepeated,
	})
}

func (s *AlertService) evaluateReportCard(ctx context.Context, run *alertRun, course models.Course, studentID string) error {
	card, err := s.repos.Grades.FindReportCard(ctx, course.ID, studentID, course.Year)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load report card: %w", err)
	}
	lowest, ok := minScore(card.Scores())
	if !ok || lowest >= reportCardMinimumExamScore {
		return nil
	}
	return s.open(ctx, run, models.AutomatedCaseInput{
		StudentID:   studentID,
		CourseID:    &course.ID,
		Title:       "Exam score below 5",
		Description: fmt.Sprintf("Lowest exam score in %s is %.1f.", course.Name, lowest),
		Category:    models.CaseCategoryAcademicDifficulty,
		Severity:    models.CaseSeverityHigh,
		RuleID:      models.RuleReportCardExamBelow5,
	})
}

// consecutiveAbsences reports whether the n newest records are all absences.
func consecutiveAbsences(records []models.AttendanceRecord, n int) bool {
	if len(records) < n {
		return false
	}
	for _, r := range records[:n] {
		if r.Status != models.AttendanceAbsent {
			return false
		}
	}
	return true
}

func countPresent(records []models.AttendanceRecord) int {
	present := 0
	for _, r := range records {
		if r.Status == models.AttendancePresent {
			present++
		}
	}
	return present
}

func presentPercent(records []models.AttendanceRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	return float64(countPresent(records)) * 100 / float64(len(records))
}

func minScore(scores []float64) (float64, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	lowest := scores[0]
	for _, s := range scores[1:] {
		if s < lowest {
			lowest = s
		}
	}
	return lowest, true
}
