package apiclient

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-adp-portal/pkg/config"
)

func TestEndpointResolveEscapesValues(t *testing.T) {
	e := Endpoint{Method: http.MethodGet, Path: "/enrollments/student/{studentId}"}
	assert.Equal(t, "/enrollments/student/s%2F1", e.Resolve(map[string]string{ParamStudentID: "s/1"}))
	assert.True(t, e.Uses(ParamStudentID))
	assert.False(t, e.Uses(ParamCourseID))
}

func TestEndpointsForVariants(t *testing.T) {
	student := EndpointsFor(config.VariantStudent, config.EndpointOverrides{})
	admin := EndpointsFor(config.VariantAdmin, config.EndpointOverrides{})

	assert.Equal(t, "/auth/student/login", student.Login.Path)
	assert.Equal(t, "/auth/admin/login", admin.Login.Path)
	assert.Equal(t, "/enrollments/student/{studentId}", student.ListForStudent.Path)
	assert.Equal(t, "/enrollments/students/{studentId}", admin.ListForStudent.Path)
	assert.Equal(t, "/enrollments/{id}", admin.Withdraw.Path)
	assert.Equal(t, http.MethodDelete, admin.Withdraw.Method)
	assert.Equal(t, student.Refresh, admin.Refresh)
}

func TestEndpointsForOverrides(t *testing.T) {
	e := EndpointsFor(config.VariantStudent, config.EndpointOverrides{
		ListForStudent: "/enrollments/students/{studentId}",
		Withdraw:       "post /enrollments/{courseId}/drop",
	})

	assert.Equal(t, http.MethodGet, e.ListForStudent.Method)
	assert.Equal(t, "/enrollments/students/{studentId}", e.ListForStudent.Path)
	assert.Equal(t, Endpoint{Method: http.MethodPost, Path: "/enrollments/{courseId}/drop"}, e.Withdraw)
}
