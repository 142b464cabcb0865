// Package jwtutil issues and verifies the tokens that carry a caller's identity.
package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleSuperAdmin = "super-admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

var ErrInvalidClaims = errors.New("token claims are incomplete")

// Claims is the verified (user, organization, role) tuple.
type Claims struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(secret, userID, organizationID, role string, ttl time.Duration) (string, error) {
	if userID == "" || organizationID == "" {
		return "", ErrInvalidClaims
	}
	if role == "" {
		role = RoleUser
	}
	now := time.Now()
	claims := Claims{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return token, nil
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token failed: %w", err)
	}
	if claims.UserID == "" || claims.OrganizationID == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// IsAdmin reports whether role may manage documents.
func IsAdmin(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}
