package passgate

import "errors"

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidResetToken  = errors.New("invalid or expired token")
	ErrMissingSecret      = errors.New("session signing secret is required")
	ErrAccountNotLinkable = errors.New("account exists and cannot be linked")
	ErrIncompleteProfile  = errors.New("provider profile is missing email or id")
)

// Error codes carried on AuthError
const (
	ErrCodeMissingField  = "missing_field"
	ErrCodeUserExists    = "user_exists"
	ErrCodeInvalidCreds  = "invalid_credentials"
	ErrCodeInvalidToken  = "invalid_token"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeNotFound      = "not_found"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeServerError   = "server_error"
	ErrCodeInvalidBody   = "invalid_body"
	ErrCodeInvalidMethod = "invalid_method"
)

// Messages returned to clients. These strings are part of the HTTP contract.
const (
	MsgEmailAndPasswordRequired = "Email and password are required"
	MsgEmailRequired            = "Email is required"
	MsgTokenAndPasswordRequired = "Token and password are required"
	MsgUserExists               = "User already exists"
	MsgInvalidLogin             = "Invalid email or password"
	MsgInvalidResetToken        = "Invalid or expired token"
	MsgServerError              = "Server error"
	MsgUnauthorized             = "Unauthorized"
	MsgUserNotFound             = "User not found"
	MsgTooManyRequests          = "Too many requests"
)

// AuthError is a client-facing failure with an HTTP status.
// Only Message is written to the response body, Code and Field go to the logs.
type AuthError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *AuthError) Error() string { return e.Message }

func NewAuthError(status int, code, message, field string) *AuthError {
	return &AuthError{Status: status, Code: code, Message: message, Field: field}
}
