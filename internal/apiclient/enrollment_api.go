package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
)

// EnrollmentAPI issues the enrollment calls through the authenticated pipeline.
type EnrollmentAPI struct {
	pipeline  *Pipeline
	endpoints Endpoints
}

// NewEnrollmentAPI constructs an EnrollmentAPI.
func NewEnrollmentAPI(pipeline *Pipeline, endpoints Endpoints) *EnrollmentAPI {
	return &EnrollmentAPI{pipeline: pipeline, endpoints: endpoints}
}

// ListForStudent fetches every enrollment of a student.
func (a *EnrollmentAPI) ListForStudent(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error) {
	req := NewRequest(a.endpoints.ListForStudent, map[string]string{ParamStudentID: studentID})
	if !a.endpoints.ListForStudent.Uses(ParamStudentID) {
		req.Query = url.Values{"studentId": []string{studentID}}
	}
	env, err := a.pipeline.Do(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(env)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].StudentID == "" {
			records[i].StudentID = studentID
		}
	}
	return records, nil
}

// ListAll fetches one page of enrollments across students.
func (a *EnrollmentAPI) ListAll(ctx context.Context, page, limit int) ([]models.EnrollmentRecord, *models.Pagination, error) {
	req := NewRequest(a.endpoints.ListAll, nil)
	req.Query = url.Values{}
	if page > 0 {
		req.Query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		req.Query.Set("limit", strconv.Itoa(limit))
	}
	env, err := a.pipeline.Do(ctx, req, nil)
	if err != nil {
		return nil, nil, err
	}
	records, err := decodeRecords(env)
	if err != nil {
		return nil, nil, err
	}
	pagination := env.Pagination
	if pagination == nil {
		pagination = &models.Pagination{Page: page, Limit: limit, Total: len(records)}
	}
	return records, pagination, nil
}

// CheckConflict asks the server whether enrolling would clash with existing registrations.
func (a *EnrollmentAPI) CheckConflict(ctx context.Context, studentID, courseID string) (models.ConflictResult, error) {
	params := map[string]string{ParamStudentID: studentID, ParamCourseID: courseID}
	req := NewRequest(a.endpoints.CheckConflict, params)
	req.Query = url.Values{}
	if !a.endpoints.CheckConflict.Uses(ParamStudentID) {
		req.Query.Set("studentId", studentID)
	}
	if !a.endpoints.CheckConflict.Uses(ParamCourseID) {
		req.Query.Set("courseId", courseID)
	}
	env, err := a.pipeline.Do(ctx, req, nil)
	if err != nil {
		return models.ConflictResult{}, err
	}
	var wire struct {
		HasConflict *bool  `json:"hasConflict"`
		Conflict    *bool  `json:"conflict"`
		Message     string `json:"message"`
	}
	if err := decodeInto(env, &wire); err != nil {
		return models.ConflictResult{}, err
	}
	result := models.ConflictResult{Message: wire.Message}
	switch {
	case wire.HasConflict != nil:
		result.HasConflict = *wire.HasConflict
	case wire.Conflict != nil:
		result.HasConflict = *wire.Conflict
	}
	if result.Message == "" && result.HasConflict {
		result.Message = env.Message
	}
	return result, nil
}

type enrollBody struct {
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
}

// Create registers the student to the course and returns the server's record. Missing identity
// fields in the response are filled from the request.
func (a *EnrollmentAPI) Create(ctx context.Context, studentID, courseID string) (*models.EnrollmentRecord, error) {
	req := NewRequest(a.endpoints.Enroll, map[string]string{ParamStudentID: studentID, ParamCourseID: courseID})
	req.Body = enrollBody{StudentID: studentID, CourseID: courseID}

	var record models.EnrollmentRecord
	if _, err := a.pipeline.Do(ctx, req, &record); err != nil {
		return nil, err
	}
	if record.StudentID == "" {
		record.StudentID = studentID
	}
	if record.EffectiveCourseID() == "" {
		record.CourseID = courseID
	}
	if record.Status == "" {
		record.Status = models.EnrollmentStatusEnrolled
	}
	return &record, nil
}

// Withdraw removes the enrollment. Id-keyed templates fall back to the course id when the record id
// is unknown.
func (a *EnrollmentAPI) Withdraw(ctx context.Context, studentID, courseID, enrollmentID string) error {
	if enrollmentID == "" {
		enrollmentID = courseID
	}
	req := NewRequest(a.endpoints.Withdraw, map[string]string{
		ParamStudentID: studentID,
		ParamCourseID:  courseID,
		ParamID:        enrollmentID,
	})
	_, err := a.pipeline.Do(ctx, req, nil)
	return err
}

var listKeys = []string{"enrollments", "items", "records", "rows", "data"}

// decodeRecords accepts a bare array or an object holding the array under a common key.
func decodeRecords(env *Envelope) ([]models.EnrollmentRecord, error) {
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []models.EnrollmentRecord{}, nil
	}
	if data[0] == '[' {
		var records []models.EnrollmentRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, appErrors.ErrDecode.Message)
		}
		return records, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, appErrors.ErrDecode.Message)
	}
	for _, key := range listKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var records []models.EnrollmentRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, appErrors.ErrDecode.Message)
		}
		if p, ok := fields["pagination"]; ok && env.Pagination == nil {
			var pagination models.Pagination
			if json.Unmarshal(p, &pagination) == nil {
				env.Pagination = &pagination
			}
		}
		return records, nil
	}
	return nil, appErrors.Clone(appErrors.ErrDecode, "enrollment list payload has no records")
}
