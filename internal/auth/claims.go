package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// UserType distinguishes CRM customers from staff. It is recorded on presence
// rows and as the caller type of call sessions.
type UserType string

const (
	UserTypeCustomer UserType = "customer"
	UserTypeAdmin    UserType = "admin"
)

func (t UserType) Valid() bool {
	return t == UserTypeCustomer || t == UserTypeAdmin
}

// Claims are the only supported JWT claims shape for this service.
// Refresh tokens carry the user id only; the user type is re-read on refresh.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	UserType  UserType  `json:"user_type,omitempty"`
	TokenType TokenType `json:"token_type"`
}
