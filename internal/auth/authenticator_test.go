package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sportscouncil/tournament-gateway/internal/auth"
	"github.com/sportscouncil/tournament-gateway/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFunc func(ctx context.Context, username string) (*auth.CredentialRecord, error)

func (f storeFunc) FindByUsername(ctx context.Context, username string) (*auth.CredentialRecord, error) {
	return f(ctx, username)
}

type recorder struct {
	mu     sync.Mutex
	events []auth.Event
}

func (r *recorder) Observe(_ context.Context, ev auth.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) last() auth.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	store  *store.MemoryStore
	hasher *auth.BcryptHasher
	tokens auth.TokenService
	clock  *fakeClock
	events *recorder
	authn  *auth.Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemoryStore(),
		hasher: newHasher(t),
		clock:  newClock(),
		events: &recorder{},
	}
	tokens, err := auth.NewJWTService(testSecret, 30*time.Minute, auth.WithClock(f.clock.Now))
	require.NoError(t, err)
	f.tokens = tokens
	f.authn = auth.NewAuthenticator(f.store, f.hasher, f.tokens, auth.WithObserver(f.events))
	return f
}

func (f *fixture) addUser(t *testing.T, username, password string, role auth.Role) {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), &auth.CredentialRecord{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}))
}

func TestAuthenticator_AdminScenario(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "admin", "secret", auth.RoleAdmin)

	// Act 1: Login
	issued, err := f.authn.Login(ctx, "admin", "secret")

	// Assert 1: token expires after the configured TTL
	require.NoError(t, err)
	assert.NotEmpty(t, issued.AccessToken)
	assert.WithinDuration(t, f.clock.Now().Add(30*time.Minute), issued.ExpiresAt, time.Second)

	_, err = f.authn.Login(ctx, "admin", "wrong")
	assert.Equal(t, auth.ErrInvalidCredentials, err)

	// Act 2: Authenticate
	identity, err := f.authn.Authenticate(ctx, issued.AccessToken)

	// Assert 2
	require.NoError(t, err)
	assert.Equal(t, &auth.Identity{Username: "admin", Role: auth.RoleAdmin, IsAdmin: true}, identity)
	assert.NoError(t, auth.RequireRole(identity, auth.RoleUser))

	// Act 3: disabling the account revokes the outstanding token
	require.NoError(t, f.store.SetDisabled(ctx, "admin", true))
	_, err = f.authn.Authenticate(ctx, issued.AccessToken)

	assert.Equal(t, auth.ErrUnauthorized, err)
	assert.Equal(t, "account disabled", f.events.last().Reason.Error())
}

func TestAuthenticator_LoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "alice", "correct horse", auth.RoleUser)
	f.addUser(t, "bob", "battery staple", auth.RoleUser)
	require.NoError(t, f.store.SetDisabled(ctx, "bob", true))

	_, unknown := f.authn.Login(ctx, "mallory", "whatever")
	_, wrong := f.authn.Login(ctx, "alice", "incorrect")
	_, disabled := f.authn.Login(ctx, "bob", "battery staple")
	_, empty := f.authn.Login(ctx, "", "")

	for _, err := range []error{unknown, wrong, disabled, empty} {
		assert.Equal(t, auth.ErrInvalidCredentials, err)
		assert.Equal(t, "invalid credentials", err.Error())
	}
}

func TestAuthenticator_LoginCorruptHashIsInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Create(ctx, &auth.CredentialRecord{
		Username:     "carol",
		PasswordHash: "$2a$99$" + strings.Repeat("a", 53),
		Role:         auth.RoleUser,
	}))

	_, err := f.authn.Login(ctx, "carol", "anything")

	assert.Equal(t, auth.ErrInvalidCredentials, err)
	assert.ErrorIs(t, f.events.last().Reason, auth.ErrCorruptHash)
}

func TestAuthenticator_RoundTripForManyUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	users := map[string]auth.Role{"ann": auth.RoleUser, "ben": auth.RoleAdmin, "cy": auth.RoleUser}
	for name, role := range users {
		f.addUser(t, name, name+"-pw", role)
	}

	for name, role := range users {
		issued, err := f.authn.Login(ctx, name, name+"-pw")
		require.NoError(t, err)

		identity, err := f.authn.Authenticate(ctx, issued.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, name, identity.Username)
		assert.Equal(t, role, identity.Role)
		assert.Equal(t, role == auth.RoleAdmin, identity.IsAdmin)
	}
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "alice", "pw", auth.RoleUser)
	issued, err := f.authn.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	_, err = f.authn.Authenticate(ctx, issued.AccessToken)

	assert.Equal(t, auth.ErrUnauthorized, err)
	assert.ErrorIs(t, f.events.last().Reason, auth.ErrExpired)
}

func TestAuthenticator_TokenFromOtherKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "alice", "pw", auth.RoleUser)
	rotated, err := auth.NewJWTService([]byte("rotated-rotated-rotated-rotated!"), time.Hour)
	require.NoError(t, err)
	token, _, err := rotated.GenerateToken("alice", auth.RoleUser)
	require.NoError(t, err)

	_, err = f.authn.Authenticate(ctx, token)

	assert.Equal(t, auth.ErrUnauthorized, err)
	assert.ErrorIs(t, f.events.last().Reason, auth.ErrInvalidSignature)
}

func TestAuthenticator_UnknownSubject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	token, _, err := f.tokens.GenerateToken("ghost", auth.RoleAdmin)
	require.NoError(t, err)

	_, err = f.authn.Authenticate(ctx, token)

	assert.Equal(t, auth.ErrUnauthorized, err)
}

func TestAuthenticator_RoleChangedSinceIssuance(t *testing.T) {
	ctx := context.Background()
	role := auth.RoleAdmin
	stub := storeFunc(func(context.Context, string) (*auth.CredentialRecord, error) {
		return &auth.CredentialRecord{Username: "dave", Role: role}, nil
	})
	tokens, err := auth.NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(stub, newHasher(t), tokens)

	token, _, err := tokens.GenerateToken("dave", auth.RoleAdmin)
	require.NoError(t, err)
	_, err = authn.Authenticate(ctx, token)
	require.NoError(t, err)

	role = auth.RoleUser
	_, err = authn.Authenticate(ctx, token)
	assert.Equal(t, auth.ErrUnauthorized, err)
}

func TestAuthenticator_StoreFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	stub := storeFunc(func(context.Context, string) (*auth.CredentialRecord, error) {
		return nil, boom
	})
	tokens, err := auth.NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(stub, newHasher(t), tokens)
	token, _, err := tokens.GenerateToken("alice", auth.RoleUser)
	require.NoError(t, err)

	_, err = authn.Login(ctx, "alice", "pw")
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = authn.Authenticate(ctx, token)
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, auth.ErrUnauthorized)
}

func TestAuthenticator_TimedOutRecheckFailsClosed(t *testing.T) {
	slow := storeFunc(func(ctx context.Context, username string) (*auth.CredentialRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tokens, err := auth.NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(slow, newHasher(t), tokens, auth.WithLookupTimeout(10*time.Millisecond))
	token, _, err := tokens.GenerateToken("alice", auth.RoleUser)
	require.NoError(t, err)

	identity, err := authn.Authenticate(context.Background(), token)

	assert.Nil(t, identity)
	assert.Equal(t, auth.ErrUnauthorized, err)
}

func TestAuthenticator_LateStoreAnswerIsDiscarded(t *testing.T) {
	late := storeFunc(func(ctx context.Context, username string) (*auth.CredentialRecord, error) {
		<-ctx.Done()
		return &auth.CredentialRecord{Username: username, Role: auth.RoleUser}, nil
	})
	tokens, err := auth.NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(late, newHasher(t), tokens, auth.WithLookupTimeout(10*time.Millisecond))
	token, _, err := tokens.GenerateToken("alice", auth.RoleUser)
	require.NoError(t, err)

	_, err = authn.Authenticate(context.Background(), token)

	assert.Equal(t, auth.ErrUnauthorized, err)
}

func TestAuthenticator_ObservesSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "alice", "pw", auth.RoleUser)

	issued, err := f.authn.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, auth.Event{Op: auth.OpLogin, Subject: "alice"}, f.events.last())

	_, err = f.authn.Authenticate(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.Event{Op: auth.OpAuthenticate, Subject: "alice"}, f.events.last())
}
