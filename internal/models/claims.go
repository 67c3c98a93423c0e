package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the access-token payload.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
