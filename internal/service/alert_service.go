package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-case-api/internal/models"
	appErrors "github.com/noah-isme/sma-case-api/pkg/errors"
	"github.com/noah-isme/sma-case-api/pkg/middleware/requestid"
)

const defaultReminderDays = 7

type alertCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListByYear(ctx context.Context, year int) ([]models.Course, error)
}

type alertEnrollmentReader interface {
	ListActiveByCourse(ctx context.Context, courseID string, year int) ([]models.Enrollment, error)
}

type alertAttendanceReader interface {
	ListRecent(ctx context.Context, courseID, studentID string, limit int) ([]models.AttendanceRecord, error)
}

type alertGradeReader interface {
	ListPartialReports(ctx context.Context, courseID, studentID string) ([]models.PartialReport, error)
	FindReportCard(ctx context.Context, courseID, studentID string, year int) (*models.ReportCard, error)
}

type alertCommunicationStore interface {
	CountSince(ctx context.Context, courseID, studentID string, category models.CommunicationCategory, since time.Time) (int, error)
	Create(ctx context.Context, msg *models.Communication) error
}

type alertCaseStore interface {
	InsertAutomatedIfAbsent(ctx context.Context, c *models.Case) (*models.Case, bool, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]models.Case, error)
	MarkReminded(ctx context.Context, id string, at time.Time) error
}

// AlertRepositories groups the collaborators the engine reads and writes.
type AlertRepositories struct {
	Courses        alertCourseReader
	Enrollments    alertEnrollmentReader
	Attendance     alertAttendanceReader
	Grades         alertGradeReader
	Communications alertCommunicationStore
	Cases          alertCaseStore
}

// AlertConfig tunes the engine.
type AlertConfig struct {
	ReminderDays int
}

// AlertService evaluates the risk rules against enrolled students and keeps
// exactly one OPEN automated case per student, course and rule.
//
// Runs are sequential: course by course, student by student, rule by rule. A
// store error aborts the run; cases created before it remain, and a rerun is
// safe because case creation is idempotent.
type AlertService struct {
	repos   AlertRepositories
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	config  AlertConfig
	now     func() time.Time
}

// NewAlertService constructs the alert engine.
func NewAlertService(repos AlertRepositories, cache *CacheService, metrics *MetricsService, logger *zap.Logger, config AlertConfig) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ReminderDays <= 0 {
		config.ReminderDays = defaultReminderDays
	}
	return &AlertService{repos: repos, cache: cache, metrics: metrics, logger: logger, config: config, now: time.Now}
}

// alertRun carries per-invocation state through the evaluators.
type alertRun struct {
	auth    models.AuthContext
	created int
	logger  *zap.Logger
}

// RunAlerts evaluates every rule for the courses selected by scope.
func (s *AlertService) RunAlerts(ctx context.Context, auth models.AuthContext, scope models.RunScope) (*models.RunResult, error) {
	if !auth.CanRunAlerts() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only coordinators and admins may run alerts")
	}

	start := s.now()
	run := &alertRun{
		auth: auth,
		logger: s.logger.With(
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.String("actor", auth.UserID),
			zap.String("course_scope", scope.CourseID),
		),
	}

	result, err := s.run(ctx, run, scope)
	s.metrics.ObserveAlertRun(err == nil, s.now().Sub(start))
	if run.created > 0 {
		s.cache.Invalidate(ctx, caseSummaryCachePattern) //nolint:errcheck
	}
	if err != nil {
		run.logger.Error("alert run aborted", zap.Int("created", run.created), zap.Error(err))
		return nil, err
	}

	run.logger.Info("alert run completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("created", result.Created),
		zap.Int("reminders", result.Reminders),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return result, nil
}

func (s *AlertService) run(ctx context.Context, run *alertRun, scope models.RunScope) (*models.RunResult, error) {
	courses, err := s.resolveCourses(ctx, scope.CourseID)
	if err != nil {
		return nil, err
	}

	for _, course := range courses {
		if err := s.evaluateCourse(ctx, run, course); err != nil {
			return nil, appErrors.Internal(err, fmt.Sprintf("alert evaluation failed for course %s", course.ID))
		}
	}

	result := &models.RunResult{OK: true, Scanned: len(courses), Created: run.created}
	if scope.IncludeReminders {
		sent, err := s.SendReminders(ctx, s.config.ReminderDays, run.auth.UserID)
		if err != nil {
			return nil, err
		}
		result.Reminders = sent
	}
	return result, nil
}

func (s *AlertService) resolveCourses(ctx context.Context, courseID string) ([]models.Course, error) {
	if courseID != "" {
		course, err := s.repos.Courses.FindByID(ctx, courseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Internal(err, "failed to load course")
		}
		return []models.Course{*course}, nil
	}

	courses, err := s.repos.Courses.ListByYear(ctx, s.now().Year())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, nil
}

func (s *AlertService) evaluateCourse(ctx context.Context, run *alertRun, course models.Course) error {
	enrollments, err := s.repos.Enrollments.ListActiveByCourse(ctx, course.ID, course.Year)
	if err != nil {
		return err
	}
	run.logger.Debug("evaluating course", zap.String("course_id", course.ID), zap.Int("students", len(enrollments)))

	for _, evaluate := range []ruleEvaluator{
		s.evaluateAttendance,
		s.evaluatePartials,
		s.evaluateBehavior,
		s.evaluateReportCard,
	} {
		for _, enrollment := range enrollments {
			if err := evaluate(ctx, run, course, enrollment.StudentID); err != nil {
				return err
			}
		}
	}
	return nil
}

// open ensures the automated case for a fired rule and tracks newly created ones.
func (s *AlertService) open(ctx context.Context, run *alertRun, input models.AutomatedCaseInput) error {
	input.CreatedBy = run.auth.UserID
	c, created, err := s.EnsureAutomatedCase(ctx, input)
	if err != nil {
		return err
	}
	if created {
		run.created++
		s.metrics.RecordAlertCaseCreated(input.RuleID)
		run.logger.Info("automated case opened",
			zap.String("case_id", c.ID),
			zap.String("rule", input.RuleID),
			zap.String("student_id", input.StudentID),
		)
	}
	return nil
}

// EnsureAutomatedCase returns the OPEN automated case for the input's student,
// course and rule, creating it when none exists. An existing case is returned
// unchanged. The boolean reports whether this call created the case.
func (s *AlertService) EnsureAutomatedCase(ctx context.Context, input models.AutomatedCaseInput) (*models.Case, bool, error) {
	if input.StudentID == "" || input.RuleID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "student and rule are required for automated cases")
	}
	ruleID := input.RuleID
	candidate := &models.Case{
		StudentID:   input.StudentID,
		CourseID:    input.CourseID,
		RuleID:      &ruleID,
		Category:    input.Category,
		Severity:    input.Severity,
		Status:      models.CaseStatusOpen,
		Source:      models.CaseSourceAutomation,
		Title:       input.Title,
		Description: input.Description,
		Checklist:   models.Checklist{},
		CreatedBy:   input.CreatedBy,
		Watchers:    pq.StringArray{input.CreatedBy},
	}
	now := s.now().UTC()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	stored, created, err := s.repos.Cases.InsertAutomatedIfAbsent(ctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("ensure automated case %s: %w", ruleID, err)
	}
	return stored, created, nil
}

// SendReminders notifies the assignee, or else the first watcher, of every
// OPEN case idle for more than days. Each case is reminded at most once per
// idle window. It returns the number of reminders sent.
func (s *AlertService) SendReminders(ctx context.Context, days int, actorID string) (int, error) {
	if days <= 0 {
		days = defaultReminderDays
	}
	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, -days)

	stale, err := s.repos.Cases.ListStale(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list stale cases")
	}

	sent := 0
	for i := range stale {
		c := &stale[i]
		target := c.ReminderTarget()
		if target == "" {
			continue
		}
		msg := &models.Communication{
			CourseID:    c.CourseID,
			StudentID:   c.StudentID,
			RecipientID: &target,
			Category:    models.CommunicationAdmin,
			Title:       c.Title,
			Body:        fmt.Sprintf("This case has had no activity for more than %d days.", days),
			CreatedBy:   actorID,
			CreatedAt:   now,
		}
		if err := s.repos.Communications.Create(ctx, msg); err != nil {
			return sent, appErrors.Internal(err, "failed to send case reminder")
		}
		if err := s.repos.Cases.MarkReminded(ctx, c.ID, now); err != nil {
			return sent, appErrors.Internal(err, "failed to record case reminder")
		}
		sent++
		s.metrics.RecordReminderSent()
	}

	s.logger.Info("case reminders sent", zap.Int("stale", len(stale)), zap.Int("sent", sent), zap.Int("days", days))
	return sent, nil
}
