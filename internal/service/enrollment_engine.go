package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
	"github.com/noah-isme/sma-adp-portal/pkg/jobs"
)

// ReconcileJobType identifies background enrollment reloads on the queue.
const ReconcileJobType = "enrollment.reload"

// Reconcile outcomes reported to the EngineObserver.
const (
	ReconcileApplied = "applied"
	ReconcileSkipped = "skipped"
	ReconcileFailed  = "failed"
	ReconcileDropped = "dropped"
)

type enrollmentAPI interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error)
	CheckConflict(ctx context.Context, studentID, courseID string) (models.ConflictResult, error)
	Create(ctx context.Context, studentID, courseID string) (*models.EnrollmentRecord, error)
	Withdraw(ctx context.Context, studentID, courseID, enrollmentID string) error
}

type sessionSource interface {
	Current() (models.Session, bool)
}

type reconcileQueue interface {
	TryEnqueue(job jobs.Job) error
}

// EngineObserver receives cache instrumentation.
type EngineObserver interface {
	RecordStaleLoadDiscarded()
	SetCachedEnrollments(n int)
	RecordReconcile(outcome string)
}

// EnrollmentEngineOption customises an EnrollmentEngine.
type EnrollmentEngineOption func(*EnrollmentEngine)

// WithEngineObserver records cache metrics.
func WithEngineObserver(observer EngineObserver) EnrollmentEngineOption {
	return func(e *EnrollmentEngine) {
		e.observer = observer
	}
}

type enrollmentTarget struct {
	StudentID string `validate:"required"`
	CourseID  string `validate:"required"`
}

// EnrollmentEngine keeps the cached enrollment list of one student consistent with the server.
// Mutations are applied only after the server confirms them; list loads are sequenced so an
// older response never overwrites a newer one.
type EnrollmentEngine struct {
	api       enrollmentAPI
	sessions  sessionSource
	validator *validator.Validate
	logger    *zap.Logger
	observer  EngineObserver

	issued uint64

	mu          sync.Mutex
	lastApplied uint64
	studentID   string
	records     []models.EnrollmentRecord
	queue       reconcileQueue

	subMu       sync.Mutex
	subscribers map[int]func([]models.EnrollmentRecord)
	nextSubID   int
}

// NewEnrollmentEngine constructs an engine with an empty cache.
func NewEnrollmentEngine(api enrollmentAPI, sessions sessionSource, validate *validator.Validate, logger *zap.Logger, opts ...EnrollmentEngineOption) *EnrollmentEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	e := &EnrollmentEngine{
		api:         api,
		sessions:    sessions,
		validator:   validate,
		logger:      logger,
		subscribers: make(map[int]func([]models.EnrollmentRecord)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AttachReconcileQueue sets the queue used for post-withdraw reloads.
func (e *EnrollmentEngine) AttachReconcileQueue(queue reconcileQueue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = queue
}

// LoadEnrollments replaces the cache with the server's list for the student. A response is
// discarded when a later-issued load has already been applied; the current cache is returned then.
func (e *EnrollmentEngine) LoadEnrollments(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error) {
	student, err := e.resolveStudent(studentID)
	if err != nil {
		return nil, err
	}

	seq := atomic.AddUint64(&e.issued, 1)
	records, err := e.api.ListForStudent(ctx, student)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if seq <= e.lastApplied {
		snapshot := e.snapshotLocked()
		e.mu.Unlock()
		e.logger.Debug("discarding stale enrollment load", zap.Uint64("seq", seq), zap.String("student_id", student))
		if e.observer != nil {
			e.observer.RecordStaleLoadDiscarded()
		}
		return snapshot, nil
	}
	e.lastApplied = seq
	e.studentID = student
	e.records = dedupeRecords(scopeToStudent(records, student))
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snapshot)
	return snapshot, nil
}

// CheckConflict is advisory: any failure is logged and reported as no conflict.
func (e *EnrollmentEngine) CheckConflict(ctx context.Context, studentID, courseID string) models.ConflictResult {
	student, err := e.resolveStudent(studentID)
	if err == nil {
		err = e.validator.Struct(enrollmentTarget{StudentID: student, CourseID: courseID})
	}
	if err != nil {
		e.logger.Warn("conflict check skipped", zap.String("course_id", courseID), zap.Error(err))
		return models.ConflictResult{}
	}

	result, err := e.api.CheckConflict(ctx, student, courseID)
	if err != nil {
		e.logger.Warn("conflict check failed",
			zap.String("student_id", student),
			zap.String("course_id", courseID),
			zap.Error(err),
		)
		return models.ConflictResult{}
	}
	return result
}

// Enroll registers the current student to the course.
func (e *EnrollmentEngine) Enroll(ctx context.Context, courseID string) (*models.EnrollmentRecord, error) {
	return e.EnrollFor(ctx, "", courseID)
}

// EnrollFor registers studentID (or the current student when empty) and applies the server's
// record once confirmed. Failures leave the cache untouched.
func (e *EnrollmentEngine) EnrollFor(ctx context.Context, studentID, courseID string) (*models.EnrollmentRecord, error) {
	target, err := e.target(studentID, courseID)
	if err != nil {
		return nil, err
	}

	record, err := e.api.Create(ctx, target.StudentID, target.CourseID)
	if err != nil {
		return nil, err
	}
	if record.StudentID == "" {
		record.StudentID = target.StudentID
	}

	e.mu.Lock()
	if e.studentID != "" && e.studentID != record.StudentID {
		e.mu.Unlock()
		return record, nil
	}
	e.studentID = record.StudentID
	key := record.Key()
	replaced := false
	for i := range e.records {
		if e.records[i].Key() == key {
			e.records[i] = *record
			replaced = true
			break
		}
	}
	if !replaced {
		e.records = append(e.records, *record)
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snapshot)
	return record, nil
}

// Withdraw removes the current student's enrollment in the course.
func (e *EnrollmentEngine) Withdraw(ctx context.Context, courseID string) error {
	return e.WithdrawFor(ctx, "", courseID)
}

// WithdrawFor issues the delete even when the course is not cached, removes the record on success
// and schedules a background reload either way.
func (e *EnrollmentEngine) WithdrawFor(ctx context.Context, studentID, courseID string) error {
	target, err := e.target(studentID, courseID)
	if err != nil {
		return err
	}
	key := models.EnrollmentKey{StudentID: target.StudentID, CourseID: target.CourseID}

	enrollmentID := ""
	e.mu.Lock()
	for _, rec := range e.records {
		if rec.Key() == key {
			enrollmentID = rec.ID
			break
		}
	}
	e.mu.Unlock()

	err = e.api.Withdraw(ctx, target.StudentID, target.CourseID, enrollmentID)
	if err == nil {
		e.mu.Lock()
		kept := make([]models.EnrollmentRecord, 0, len(e.records))
		for _, rec := range e.records {
			if rec.Key() != key {
				kept = append(kept, rec)
			}
		}
		changed := len(kept) != len(e.records)
		e.records = kept
		snapshot := e.snapshotLocked()
		e.mu.Unlock()
		if changed {
			e.publish(snapshot)
		}
	}

	e.scheduleReload(target.StudentID)
	return err
}

// IsEnrolled reports whether the cache holds a record for the course, by flat or nested reference.
func (e *EnrollmentEngine) IsEnrolled(courseID string) bool {
	if courseID == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.records {
		if rec.EffectiveCourseID() == courseID {
			return true
		}
	}
	return false
}

// Records returns a copy of the cache in server order.
func (e *EnrollmentEngine) Records() []models.EnrollmentRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Summary counts the cached records per status.
func (e *EnrollmentEngine) Summary() models.EnrollmentSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	summary := models.EnrollmentSummary{
		StudentID: e.studentID,
		Total:     len(e.records),
		ByStatus:  make(map[models.EnrollmentStatus]int),
	}
	for _, rec := range e.records {
		summary.ByStatus[rec.Status]++
	}
	return summary
}

// Subscribe registers fn to receive a snapshot after every applied change.
func (e *EnrollmentEngine) Subscribe(fn func([]models.EnrollmentRecord)) (cancel func()) {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subscribers, id)
		e.subMu.Unlock()
	}
}

// Reset empties the cache and invalidates loads still in flight.
func (e *EnrollmentEngine) Reset() {
	e.mu.Lock()
	e.lastApplied = atomic.LoadUint64(&e.issued)
	e.studentID = ""
	e.records = nil
	e.mu.Unlock()

	e.publish(nil)
}

// ReconcileJob is the queue handler for background reloads.
func (e *EnrollmentEngine) ReconcileJob(ctx context.Context, job jobs.Job) error {
	studentID, _ := job.Payload.(string)
	if _, ok := e.sessions.Current(); !ok {
		e.recordReconcile(ReconcileSkipped)
		return nil
	}
	if _, err := e.LoadEnrollments(ctx, studentID); err != nil {
		if errors.Is(err, appErrors.ErrSessionTerminated) {
			e.recordReconcile(ReconcileSkipped)
			return nil
		}
		e.recordReconcile(ReconcileFailed)
		return err
	}
	e.recordReconcile(ReconcileApplied)
	return nil
}

func (e *EnrollmentEngine) scheduleReload(studentID string) {
	e.mu.Lock()
	queue := e.queue
	e.mu.Unlock()
	if queue == nil {
		return
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("reload-%s-%d", studentID, atomic.LoadUint64(&e.issued)),
		Type:    ReconcileJobType,
		Payload: studentID,
	}
	if err := queue.TryEnqueue(job); err != nil {
		e.recordReconcile(ReconcileDropped)
		e.logger.Debug("background reload not scheduled", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (e *EnrollmentEngine) target(studentID, courseID string) (enrollmentTarget, error) {
	student, err := e.resolveStudent(studentID)
	if err != nil {
		return enrollmentTarget{}, err
	}
	target := enrollmentTarget{StudentID: student, CourseID: courseID}
	if err := e.validator.Struct(target); err != nil {
		return enrollmentTarget{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "course id is required")
	}
	return target, nil
}

// resolveStudent defaults to the signed-in student.
func (e *EnrollmentEngine) resolveStudent(studentID string) (string, error) {
	session, ok := e.sessions.Current()
	if !ok {
		return "", appErrors.Clone(appErrors.ErrSessionTerminated, "no active session")
	}
	if studentID != "" {
		return studentID, nil
	}
	if session.User == nil || session.User.Role != models.RoleStudent || session.User.ID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	return session.User.ID, nil
}

func (e *EnrollmentEngine) snapshotLocked() []models.EnrollmentRecord {
	out := make([]models.EnrollmentRecord, len(e.records))
	copy(out, e.records)
	return out
}

func (e *EnrollmentEngine) publish(snapshot []models.EnrollmentRecord) {
	if e.observer != nil {
		e.observer.SetCachedEnrollments(len(snapshot))
	}
	e.subMu.Lock()
	subs := make([]func([]models.EnrollmentRecord), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()
	for _, fn := range subs {
		fn(snapshot)
	}
}

func (e *EnrollmentEngine) recordReconcile(outcome string) {
	if e.observer != nil {
		e.observer.RecordReconcile(outcome)
	}
}

// scopeToStudent fills the student on records of a student-scoped list that omit it, so their
// cache key matches the one mutations look up.
func scopeToStudent(records []models.EnrollmentRecord, studentID string) []models.EnrollmentRecord {
	out := make([]models.EnrollmentRecord, len(records))
	for i, rec := range records {
		if rec.StudentID == "" {
			rec.StudentID = studentID
		}
		out[i] = rec
	}
	return out
}

// dedupeRecords keeps the last record per key, in first-seen position.
func dedupeRecords(records []models.EnrollmentRecord) []models.EnrollmentRecord {
	out := make([]models.EnrollmentRecord, 0, len(records))
	index := make(map[models.EnrollmentKey]int, len(records))
	for _, rec := range records {
		key := rec.Key()
		if i, ok := index[key]; ok {
			out[i] = rec
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}
