package models

import (
	"encoding/json"
	"strings"
)

// UserRole represents the roles the portal distinguishes.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// UserIdentity describes the authenticated user.
type UserIdentity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName"`
	Role        UserRole `json:"role"`
}

// UnmarshalJSON accepts numeric IDs, upper-case roles and the fullName/full_name/name aliases
// used by the different auth endpoints.
func (u *UserIdentity) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID          FlexString `json:"id"`
		Username    string     `json:"username"`
		Email       string     `json:"email"`
		DisplayName string     `json:"displayName"`
		FullName    string     `json:"fullName"`
		FullNameAlt string     `json:"full_name"`
		Name        string     `json:"name"`
		Role        string     `json:"role"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	u.ID = string(wire.ID)
	u.Username = firstNonEmpty(wire.Username, wire.Email)
	u.DisplayName = firstNonEmpty(wire.DisplayName, wire.FullName, wire.FullNameAlt, wire.Name, u.Username)
	u.Role = UserRole(strings.ToLower(strings.TrimSpace(wire.Role)))
	return nil
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
