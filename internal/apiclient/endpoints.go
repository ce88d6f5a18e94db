package apiclient

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/sma-adp-portal/pkg/config"
)

// Path placeholders substituted by Resolve.
const (
	ParamStudentID = "studentId"
	ParamCourseID  = "courseId"
	ParamID        = "id"
)

// Endpoint is a method plus a path template relative to the API base URL.
type Endpoint struct {
	Method string
	Path   string
}

// Resolve substitutes {name} placeholders with path-escaped values.
func (e Endpoint) Resolve(params map[string]string) string {
	path := e.Path
	for name, value := range params {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	return path
}

// Uses reports whether the template contains the placeholder.
func (e Endpoint) Uses(param string) bool {
	return strings.Contains(e.Path, "{"+param+"}")
}

// Endpoints is the operation table for one upstream variant.
type Endpoints struct {
	Variant        string
	Login          Endpoint
	Refresh        Endpoint
	Me             Endpoint
	Logout         Endpoint
	ListForStudent Endpoint
	ListAll        Endpoint
	CheckConflict  Endpoint
	Enroll         Endpoint
	Withdraw       Endpoint
}

// StudentEndpoints is the table served to the student front end.
func StudentEndpoints() Endpoints {
	return Endpoints{
		Variant:        config.VariantStudent,
		Login:          Endpoint{Method: http.MethodPost, Path: "/auth/student/login"},
		Refresh:        Endpoint{Method: http.MethodPost, Path: "/auth/refresh-token"},
		Me:             Endpoint{Method: http.MethodGet, Path: "/auth/me"},
		Logout:         Endpoint{Method: http.MethodPost, Path: "/auth/logout"},
		ListForStudent: Endpoint{Method: http.MethodGet, Path: "/enrollments/student/{studentId}"},
		ListAll:        Endpoint{Method: http.MethodGet, Path: "/enrollments"},
		CheckConflict:  Endpoint{Method: http.MethodGet, Path: "/enrollments/check-conflict"},
		Enroll:         Endpoint{Method: http.MethodPost, Path: "/enrollments/student/courses/{courseId}/enroll"},
		Withdraw:       Endpoint{Method: http.MethodDelete, Path: "/enrollments/student/courses/{courseId}/withdraw"},
	}
}

// AdminEndpoints is the table served to the admin front end.
func AdminEndpoints() Endpoints {
	e := StudentEndpoints()
	e.Variant = config.VariantAdmin
	e.Login = Endpoint{Method: http.MethodPost, Path: "/auth/admin/login"}
	e.ListForStudent = Endpoint{Method: http.MethodGet, Path: "/enrollments/students/{studentId}"}
	e.Enroll = Endpoint{Method: http.MethodPost, Path: "/enrollments"}
	e.Withdraw = Endpoint{Method: http.MethodDelete, Path: "/enrollments/{id}"}
	return e
}

// EndpointsFor selects the variant preset and applies the configured overrides.
func EndpointsFor(variant string, overrides config.EndpointOverrides) Endpoints {
	e := StudentEndpoints()
	if variant == config.VariantAdmin {
		e = AdminEndpoints()
	}
	e.Login = override(e.Login, overrides.Login)
	e.Refresh = override(e.Refresh, overrides.Refresh)
	e.Me = override(e.Me, overrides.Me)
	e.Logout = override(e.Logout, overrides.Logout)
	e.ListForStudent = override(e.ListForStudent, overrides.ListForStudent)
	e.ListAll = override(e.ListAll, overrides.ListAll)
	e.CheckConflict = override(e.CheckConflict, overrides.CheckConflict)
	e.Enroll = override(e.Enroll, overrides.Enroll)
	e.Withdraw = override(e.Withdraw, overrides.Withdraw)
	return e
}

// override parses "METHOD /path" or "/path"; the latter keeps the preset method.
func override(base Endpoint, raw string) Endpoint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return base
	}
	fields := strings.Fields(raw)
	if len(fields) == 2 {
		return Endpoint{Method: strings.ToUpper(fields[0]), Path: fields[1]}
	}
	return Endpoint{Method: base.Method, Path: fields[0]}
}
