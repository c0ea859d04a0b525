package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtService struct {
	secretKey []byte
	issuer    string
	expiry    time.Duration
	now       func() time.Time
}

// Option configures the token service.
type Option func(*jwtService)

// WithIssuer sets the iss claim written and required on decode.
func WithIssuer(issuer string) Option {
	return func(s *jwtService) { s.issuer = issuer }
}

// WithClock replaces time.Now; tests use it to move past expiry.
func WithClock(now func() time.Time) Option {
	return func(s *jwtService) { s.now = now }
}

// NewJWTService builds an HS256 token codec. The secret is required.
func NewJWTService(secret []byte, expiry time.Duration, opts ...Option) (TokenService, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", expiry)
	}
	s := &jwtService{
		secretKey: secret,
		issuer:    "tournament-gateway",
		expiry:    expiry,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *jwtService) GenerateToken(subject string, role Role) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("token subject is empty")
	}
	if !role.Valid() {
		return "", nil, fmt.Errorf("cannot issue token for role %q", role)
	}

	// JWT timestamps have second precision.
	now := s.now().Truncate(time.Second)
	claims := &Claims{
		Role:    string(role),
		IsAdmin: role == RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ValidateToken verifies the signature, then expiry, then the claim fields.
// Failures wrap exactly one of ErrInvalidSignature, ErrExpired or ErrMalformed.
func (s *jwtService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// WithValidMethods already rejects "none" and RS/ES; this guards HS384/HS512.
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// is_admin is informational for clients; the role claim is authoritative.
	claims.IsAdmin = role == RoleAdmin
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
