package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the privilege tier of an account. Admin is a superset of User.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole converts a stored or claimed role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// CredentialRecord is the persisted account the auth core reads.
type CredentialRecord struct {
	Username     string
	PasswordHash string
	Role         Role
	Disabled     bool
	CreatedAt    time.Time
}

type Claims struct {
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Identity is the caller resolved from a valid token for one request.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	IsAdmin  bool   `json:"is_admin"`
}

// IssuedToken is what Login hands back to the client.
type IssuedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Outward errors. Callers map these to transport responses.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
)

// Token decode failures. Never returned past the Authenticator.
var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExists   = errors.New("credential already exists")
	ErrEmptySecret        = errors.New("token signing secret is empty")
)

// Rejection reasons that only show up in logs and metrics.
var (
	errAccountDisabled = errors.New("account disabled")
	errUnknownSubject  = errors.New("unknown subject")
	errRoleChanged     = errors.New("role changed since issuance")
	errWrongPassword   = errors.New("wrong password")
	errLookupCancelled = errors.New("lookup cancelled")
)

// CredentialStore is the persistence surface the Authenticator needs.
// FindByUsername returns ErrCredentialNotFound when no record exists.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*CredentialRecord, error)
}

type TokenService interface {
	GenerateToken(subject string, role Role) (string, *Claims, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// IdentityResolver turns a bearer token into an Identity.
type IdentityResolver interface {
	Authenticate(ctx context.Context, tokenString string) (*Identity, error)
}

// Reason maps a rejection cause to a short, stable label for logs and
// metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, errAccountDisabled):
		return "account_disabled"
	case errors.Is(err, errUnknownSubject):
		return "unknown_subject"
	case errors.Is(err, errRoleChanged):
		return "role_changed"
	case errors.Is(err, errWrongPassword):
		return "wrong_password"
	case errors.Is(err, ErrCorruptHash):
		return "corrupt_hash"
	case errors.Is(err, errLookupCancelled):
		return "lookup_cancelled"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}
