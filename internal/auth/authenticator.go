package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	OpLogin        = "login"
	OpAuthenticate = "authenticate"
)

// Event is one authentication decision. Reason is nil on success and holds
// the internal cause otherwise.
type Event struct {
	Op      string
	Subject string
	Reason  error
}

type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, ev Event) {
	for _, obs := range o {
		obs.Observe(ctx, ev)
	}
}

type equalizer interface {
	Equalize(plain string)
}

type Authenticator struct {
	store         CredentialStore
	hasher        PasswordHasher
	tokens        TokenService
	logger        *zap.Logger
	observer      Observer
	lookupTimeout time.Duration
}

type AuthenticatorOption func(*Authenticator)

func WithLogger(l *zap.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = l }
}

func WithObserver(o Observer) AuthenticatorOption {
	return func(a *Authenticator) { a.observer = o }
}

// WithLookupTimeout bounds each credential store read. Zero means the
// caller's context alone decides.
func WithLookupTimeout(d time.Duration) AuthenticatorOption {
	return func(a *Authenticator) { a.lookupTimeout = d }
}

func NewAuthenticator(store CredentialStore, hasher PasswordHasher, tokens TokenService, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		logger:   zap.NewNop(),
		observer: Observers(nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login checks the password and issues a token. Unknown, disabled and
// wrong-password attempts all return ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*IssuedToken, error) {
	rec, err := a.lookup(ctx, username)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			a.equalize(password)
			return nil, a.rejectLogin(ctx, username, errUnknownSubject)
		}
		a.logger.Error("login lookup failed", zap.String("username", username), zap.Error(err))
		a.observer.Observe(ctx, Event{Op: OpLogin, Subject: username, Reason: ErrStoreUnavailable})
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := a.hasher.Verify(password, rec.PasswordHash)
	if err != nil {
		a.logger.Error("stored password hash unreadable", zap.String("username", username), zap.Error(err))
		return nil, a.rejectLogin(ctx, username, err)
	}
	if !ok {
		return nil, a.rejectLogin(ctx, username, errWrongPassword)
	}
	// Checked after the hash so disabled accounts cost the same as active ones.
	if rec.Disabled {
		return nil, a.rejectLogin(ctx, username, errAccountDisabled)
	}

	token, claims, err := a.tokens.GenerateToken(rec.Username, rec.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	a.logger.Info("login succeeded", zap.String("username", rec.Username), zap.String("role", string(rec.Role)))
	a.observer.Observe(ctx, Event{Op: OpLogin, Subject: rec.Username})
	return &IssuedToken{AccessToken: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Authenticate resolves a token to an Identity. The signature and expiry are
// checked first, then the account is re-read so disabling it or changing its
// role revokes tokens already in circulation.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := a.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, a.rejectToken(ctx, "", err)
	}
	subject := claims.Subject

	rec, err := a.lookup(ctx, subject)
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		return nil, a.rejectToken(ctx, subject, errUnknownSubject)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, a.rejectToken(ctx, subject, fmt.Errorf("%w: %v", errLookupCancelled, err))
	case err != nil:
		a.logger.Error("token re-check lookup failed", zap.String("subject", subject), zap.Error(err))
		a.observer.Observe(ctx, Event{Op: OpAuthenticate, Subject: subject, Reason: ErrStoreUnavailable})
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rec.Disabled {
		return nil, a.rejectToken(ctx, subject, errAccountDisabled)
	}
	if string(rec.Role) != claims.Role {
		return nil, a.rejectToken(ctx, subject, errRoleChanged)
	}

	a.observer.Observe(ctx, Event{Op: OpAuthenticate, Subject: subject})
	return &Identity{
		Username: rec.Username,
		Role:     rec.Role,
		IsAdmin:  rec.Role == RoleAdmin,
	}, nil
}

func (a *Authenticator) lookup(ctx context.Context, username string) (*CredentialRecord, error) {
	if username == "" {
		return nil, ErrCredentialNotFound
	}
	if a.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.lookupTimeout)
		defer cancel()
	}
	rec, err := a.store.FindByUsername(ctx, username)
	if err == nil && ctx.Err() != nil {
		// A late answer is discarded; fail closed.
		return nil, ctx.Err()
	}
	return rec, err
}

func (a *Authenticator) equalize(password string) {
	if eq, ok := a.hasher.(equalizer); ok {
		eq.Equalize(password)
	}
}

func (a *Authenticator) rejectLogin(ctx context.Context, username string, reason error) error {
	a.logger.Info("login rejected", zap.String("username", username), zap.String("reason", reason.Error()))
	a.observer.Observe(ctx, Event{Op: OpLogin, Subject: username, Reason: reason})
	return ErrInvalidCredentials
}

func (a *Authenticator) rejectToken(ctx context.Context, subject string, reason error) error {
	level := a.logger.Info
	if errors.Is(reason, ErrInvalidSignature) {
		level = a.logger.Warn
	}
	level("token rejected", zap.String("subject", subject), zap.String("reason", reason.Error()))
	a.observer.Observe(ctx, Event{Op: OpAuthenticate, Subject: subject, Reason: reason})
	return ErrUnauthorized
}
