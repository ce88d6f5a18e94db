package models

import (
	"encoding/json"
	"strings"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
)

// CourseRef is the nested course reference some endpoints embed instead of a flat courseId.
type CourseRef struct {
	ID      FlexString `json:"id"`
	Code    string     `json:"code,omitempty"`
	Name    string     `json:"name,omitempty"`
	Credits int        `json:"credits,omitempty"`
}

// EnrollmentRecord captures a student's registration to a course. (StudentID, CourseID) is the
// cache identity; ID is assigned by the server.
type EnrollmentRecord struct {
	ID        string           `json:"id"`
	StudentID string           `json:"studentId"`
	CourseID  string           `json:"courseId"`
	Status    EnrollmentStatus `json:"status"`
	Grade     *string          `json:"grade,omitempty"`
	Course    *CourseRef       `json:"course,omitempty"`
}

type idRef struct {
	ID FlexString `json:"id"`
}

// UnmarshalJSON normalizes the flat and nested serializations of the student and course references.
func (r *EnrollmentRecord) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID           FlexString  `json:"id"`
		StudentID    FlexString  `json:"studentId"`
		StudentIDAlt FlexString  `json:"student_id"`
		Student      *idRef      `json:"student"`
		CourseID     FlexString  `json:"courseId"`
		CourseIDAlt  FlexString  `json:"course_id"`
		Course       *CourseRef  `json:"course"`
		Status       string      `json:"status"`
		Grade        *FlexString `json:"grade"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.ID = string(wire.ID)
	r.StudentID = firstNonEmpty(string(wire.StudentID), string(wire.StudentIDAlt))
	if r.StudentID == "" && wire.Student != nil {
		r.StudentID = string(wire.Student.ID)
	}
	r.Course = wire.Course
	r.CourseID = firstNonEmpty(string(wire.CourseID), string(wire.CourseIDAlt))
	if r.CourseID == "" && wire.Course != nil {
		r.CourseID = string(wire.Course.ID)
	}
	r.Status = EnrollmentStatus(strings.ToLower(strings.TrimSpace(wire.Status)))
	r.Grade = nil
	if wire.Grade != nil && *wire.Grade != "" {
		grade := string(*wire.Grade)
		r.Grade = &grade
	}
	return nil
}

// EffectiveCourseID returns the course identifier from either the flat field or the nested reference.
func (r EnrollmentRecord) EffectiveCourseID() string {
	if r.CourseID != "" {
		return r.CourseID
	}
	if r.Course != nil {
		return string(r.Course.ID)
	}
	return ""
}

// Key returns the cache identity of the record.
func (r EnrollmentRecord) Key() EnrollmentKey {
	return EnrollmentKey{StudentID: r.StudentID, CourseID: r.EffectiveCourseID()}
}

// EnrollmentKey identifies a student↔course pair.
type EnrollmentKey struct {
	StudentID string
	CourseID  string
}

// ConflictResult is the advisory answer of the pre-flight conflict check.
type ConflictResult struct {
	HasConflict bool   `json:"hasConflict"`
	Message     string `json:"message,omitempty"`
}

// EnrollmentSummary aggregates the cached records for dashboards.
type EnrollmentSummary struct {
	StudentID string                   `json:"studentId"`
	Total     int                      `json:"total"`
	ByStatus  map[EnrollmentStatus]int `json:"byStatus"`
}
