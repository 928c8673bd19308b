package models

import "github.com/golang-jwt/jwt/v5"

// StaffRole represents the roles allowed to operate rosters.
type StaffRole string

const (
	RoleAdmin   StaffRole = "ADMIN"
	RoleStaff   StaffRole = "STAFF"
	RoleTeacher StaffRole = "TEACHER"
)

// JWTClaims represents the access token payload issued by the auth service.
type JWTClaims struct {
	StaffID  string    `json:"staff_id"`
	Role     StaffRole `json:"role"`
	FullName string    `json:"full_name"`
	jwt.RegisteredClaims
}
