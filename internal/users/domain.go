package users

import "time"

// Field names reported by DuplicateError and ValidationError.
const (
	FieldFullName = "full_name"
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

// User is the canonical account record. It never carries the password hash.
type User struct {
	ID        int64      `json:"id"`
	FullName  string     `json:"full_name"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login"`
	IsActive  bool       `json:"is_active"`
}

// CreateInput holds the fields accepted when registering a user.
type CreateInput struct {
	FullName string `json:"full_name" validate:"required,min=2,max=50"`
	Username string `json:"username" validate:"required,min=3,max=20,username"`
	Email    string `json:"email" validate:"required,max=100,email"`
	Password string `json:"password" validate:"required,min=8,max=64,pwbytes"`
}

// UpdateInput holds the mutable fields of a user. Nil fields are left untouched.
type UpdateInput struct {
	FullName *string `json:"full_name,omitempty" validate:"omitnil,min=2,max=50"`
	Email    *string `json:"email,omitempty" validate:"omitnil,max=100,email"`
	Password *string `json:"password,omitempty" validate:"omitnil,min=8,max=64,pwbytes"`
}

// IsEmpty reports whether no field was supplied.
func (in UpdateInput) IsEmpty() bool {
	return in.FullName == nil && in.Email == nil && in.Password == nil
}

// NewRecord is a validated, normalised user ready for insertion.
type NewRecord struct {
	FullName     string
	Username     string
	Email        string
	PasswordHash string
}

// Changes is a validated, normalised partial update.
type Changes struct {
	FullName     *string
	Email        *string
	PasswordHash *string
}

// IsEmpty reports whether the change set carries no column.
func (c Changes) IsEmpty() bool {
	return c.FullName == nil && c.Email == nil && c.PasswordHash == nil
}

// Credentials is the minimal projection needed to verify a login.
type Credentials struct {
	ID           int64
	PasswordHash string
}

// State is a stage of the store connection lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateConnecting
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
