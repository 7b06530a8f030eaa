package models

import "github.com/golang-jwt/jwt/v5"

// Pagination describes paging metadata for list endpoints.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// AuthClaims is the JWT payload. Identity is resolved upstream; the core
// only needs the opaque actor ID and role.
type AuthClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
