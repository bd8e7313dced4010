package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// TokenType distinguishes the two credential classes in the ledger.
type TokenType string

const (
	// TokenTypeAccess is an ordinary observer credential tied to a user account.
	TokenTypeAccess TokenType = "access"

	// TokenTypeAdmin is an administrative credential with no owning user.
	// The embedded device authenticates with an admin credential.
	TokenTypeAdmin TokenType = "admin"
)

// IsValidTokenType returns true if the type is a recognised credential class.
func IsValidTokenType(t TokenType) bool {
	return t == TokenTypeAccess || t == TokenTypeAdmin
}

// User represents an authenticated human account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IssuedToken is a ledger row recording one issued credential.
//
// Only the SHA-256 hash of the raw credential is stored. A credential is
// valid iff a matching row exists, revoked is false, and expiry has not
// passed.
type IssuedToken struct {
	ID         string     `json:"id"`
	TokenHash  string     `json:"-"` // never serialised
	OwnerID    string     `json:"owner_id,omitempty"` // empty for admin credentials
	TokenType  TokenType  `json:"token_type"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Revoked    bool       `json:"revoked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Identity is the result of a successful credential validation.
type Identity struct {
	UserID    string
	TokenType TokenType
}

// Sentinel errors for auth operations. The four token errors form a
// precedence order: validation reports the first failure it encounters
// walking Malformed, Unrecognised, Revoked, Expired.
var (
	ErrTokenMalformed    = errors.New("token is malformed")
	ErrTokenUnrecognized = errors.New("token is not in the ledger")
	ErrTokenRevoked      = errors.New("token has been revoked")
	ErrTokenExpired      = errors.New("token has expired")

	ErrIssuance = errors.New("token issuance failed")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
)
