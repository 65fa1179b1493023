package services

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/logging"
	"github.com/gainsborouo/ta-source/internal/server/auth"
	"github.com/gainsborouo/ta-source/internal/server/metrics"
	"github.com/gainsborouo/ta-source/internal/server/models"
	"github.com/gainsborouo/ta-source/internal/server/oauth"
	"github.com/gainsborouo/ta-source/internal/server/sessions"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFlow(t *testing.T, e *testEnv, sessionID string) string {
	t.Helper()
	authURL, err := e.svc.OAuthStart(context.Background(), "nycu", sessionID)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func tokenFromRedirect(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "ta.example", u.Host)
	assert.Equal(t, "/auth/callback", u.Path)
	return u.Query().Get("token")
}

func TestLocalLogin_Success(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.RegisterLocal(ctx, "bob", "secret123", "bob@example.com", false))

	token, err := e.svc.LocalLogin(ctx, "bob", "secret123")
	require.NoError(t, err)

	id, err := e.tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Username)
	assert.False(t, id.IsAdmin)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.LoginAttemptsTotal.WithLabelValues(MethodLocal, "success")))
}

func TestLocalLogin_FailuresAreIndistinguishable(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.RegisterLocal(ctx, "bob", "secret123", "", false))

	_, err := e.svc.LocalLogin(ctx, "bob", "wrong")
	wrongPassword := err
	_, err = e.svc.LocalLogin(ctx, "nobody", "secret123")
	unknownUser := err

	require.ErrorIs(t, wrongPassword, common.ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, common.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.LoginAttemptsTotal.WithLabelValues(MethodLocal, "invalid_credentials")))
}

func TestLocalLogin_RejectsOAuthAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	state := startFlow(t, e, "sid")
	_, err := e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: state})
	require.NoError(t, err)

	// an OAuth-provisioned row has an empty password
	_, err = e.svc.LocalLogin(ctx, "0812345", "")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestLocalLogin_LookupFailureIsInternal(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := newTestEnv(t)
	rm := &fakeRepoManager{users: &fakeUsersRepo{getErr: errors.New("db down")}}
	svc := NewAuthService(db, rm, e.cfg, e.tokens, oauth.NewRegistry(nil, nil), e.store, logging.Nop(), metrics.Nop())

	_, err = svc.LocalLogin(context.Background(), "bob", "secret123")
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.NotErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestOAuthStart_UnknownProvider(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.svc.OAuthStart(context.Background(), "github", "sid")
	assert.ErrorIs(t, err, common.ErrUnknownProvider)
}

func TestOAuthStart_StoresStatePerProvider(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	state := startFlow(t, e, "sid")

	got, ok, err := e.store.Take(ctx, "sid", sessions.StateKey("nycu"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, got)
}

func TestOAuthCallback_ProvisionsUserAndRedirects(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	state := startFlow(t, e, "sid")

	redirect, err := e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: state})
	require.NoError(t, err)

	id, err := e.tokens.Validate(tokenFromRedirect(t, redirect))
	require.NoError(t, err)
	assert.Equal(t, "0812345", id.Username)
	assert.False(t, id.IsAdmin)

	u, err := e.rm.Users(e.db).GetByUsername(ctx, "0812345")
	require.NoError(t, err)
	assert.False(t, u.IsLocal)
	assert.Equal(t, "s0812345@nycu.edu.tw", u.Email)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.OAuthCallbacksTotal.WithLabelValues("nycu", "success")))
}

func TestOAuthCallback_ExistingRowKeepsRole(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	state := startFlow(t, e, "sid")
	_, err := e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: state})
	require.NoError(t, err)
	e.setAdmin(t, "0812345", true)

	state = startFlow(t, e, "sid")
	redirect, err := e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: state})
	require.NoError(t, err)

	id, err := e.tokens.Validate(tokenFromRedirect(t, redirect))
	require.NoError(t, err)
	assert.True(t, id.IsAdmin)
	assert.Equal(t, 1, e.countUsers(t))
}

func TestOAuthCallback_StateMismatch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	startFlow(t, e, "sid")

	_, err := e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: "forged"})
	assert.ErrorIs(t, err, common.ErrCSRFMismatch)
	assert.Equal(t, int32(0), e.provider.exchanges.Load())
	assert.Equal(t, 0, e.countUsers(t))
}

func TestOAuthCallback_NoStoredState(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.OAuthCallback(context.Background(), "nycu", "sid", Callback{Code: "c", State: "anything"})
	assert.ErrorIs(t, err, common.ErrCSRFMismatch)
}

func TestOAuthCallback_EmptyStateNeverMatches(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.store.Put(context.Background(), "sid", sessions.StateKey("nycu"), "", e.cfg.SessionTTL))

	_, err := e.svc.OAuthCallback(context.Background(), "nycu", "sid", Callback{Code: "c", State: ""})
	assert.ErrorIs(t, err, common.ErrCSRFMismatch)
}

func TestOAuthCallback_StateIsSingleUse(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	state := startFlow(t, e, "sid")

	_, err := e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: state})
	require.NoError(t, err)

	_, err = e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: state})
	assert.ErrorIs(t, err, common.ErrCSRFMismatch)
	assert.Equal(t, int32(1), e.provider.exchanges.Load())
}

func TestOAuthCallback_StateBoundToSession(t *testing.T) {
	e := newTestEnv(t)
	state := startFlow(t, e, "victim")

	_, err := e.svc.OAuthCallback(context.Background(), "nycu", "attacker", Callback{Code: "c", State: state})
	assert.ErrorIs(t, err, common.ErrCSRFMismatch)
}

func TestOAuthCallback_FailedMismatchStillConsumesState(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	state := startFlow(t, e, "sid")

	_, err := e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: "forged"})
	require.ErrorIs(t, err, common.ErrCSRFMismatch)

	_, err = e.svc.OAuthCallback(ctx, "nycu", "sid", Callback{Code: "c", State: state})
	assert.ErrorIs(t, err, common.ErrCSRFMismatch)
}

func TestOAuthCallback_ProviderDenied(t *testing.T) {
	e := newTestEnv(t)
	state := startFlow(t, e, "sid")

	_, err := e.svc.OAuthCallback(context.Background(), "nycu", "sid", Callback{State: state, Error: "access_denied"})

	var pe *common.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 400, pe.Status)
	assert.Equal(t, int32(0), e.provider.exchanges.Load())
}

func TestOAuthCallback_MissingCode(t *testing.T) {
	e := newTestEnv(t)
	state := startFlow(t, e, "sid")

	_, err := e.svc.OAuthCallback(context.Background(), "nycu", "sid", Callback{State: state})

	var pe *common.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 400, pe.Status)
}

func TestOAuthCallback_ExchangeFailurePassesStatus(t *testing.T) {
	e := newTestEnv(t)
	state := startFlow(t, e, "sid")

	_, err := e.svc.OAuthCallback(context.Background(), "nycu", "sid", Callback{Code: "bad-code", State: state})

	var pe *common.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, common.OpExchange, pe.Op)
	assert.Equal(t, 401, pe.Status)
	assert.Equal(t, 0, e.countUsers(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.OAuthCallbacksTotal.WithLabelValues("nycu", "provider_error")))
}

func TestOAuthCallback_IncompleteProfile(t *testing.T) {
	e := newTestEnv(t)
	e.provider.profileBody = `{"username":"0812345"}`
	state := startFlow(t, e, "sid")

	_, err := e.svc.OAuthCallback(context.Background(), "nycu", "sid", Callback{Code: "c", State: state})
	assert.ErrorIs(t, err, common.ErrProviderProfileIncomplete)
	assert.Equal(t, 0, e.countUsers(t))
}

func TestOAuthCallback_ProvisionCommitsTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := newTestEnv(t)
	rm := &fakeRepoManager{users: &fakeUsersRepo{
		createOut: true,
		getOut:    &models.User{Username: "0812345", Email: "s0812345@nycu.edu.tw", IsAdmin: true},
	}}
	e.svc = NewAuthService(db, rm, e.cfg, e.tokens, e.registry, e.store, logging.Nop(), metrics.Nop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	state := startFlow(t, e, "sid")
	redirect, err := e.svc.OAuthCallback(context.Background(), "nycu", "sid", Callback{Code: "c", State: state})
	require.NoError(t, err)

	id, err := e.tokens.Validate(tokenFromRedirect(t, redirect))
	require.NoError(t, err)
	assert.True(t, id.IsAdmin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOAuthCallback_ProvisionRollsBackWhenReadFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := newTestEnv(t)
	rm := &fakeRepoManager{users: &fakeUsersRepo{
		createOut: true,
		getErr:    errors.New("read failed"),
	}}
	e.svc = NewAuthService(db, rm, e.cfg, e.tokens, e.registry, e.store, logging.Nop(), metrics.Nop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	state := startFlow(t, e, "sid")
	_, err = e.svc.OAuthCallback(context.Background(), "nycu", "sid", Callback{Code: "c", State: state})
	assert.ErrorIs(t, err, common.ErrorInternal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOAuthCallback_ConcurrentFirstLogins(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	const n = 4
	states := make([]string, n)
	for i := range states {
		states[i] = startFlow(t, e, "sid-"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	redirects := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sid := "sid-" + string(rune('a'+i))
			redirects[i], errs[i] = e.svc.OAuthCallback(ctx, "nycu", sid, Callback{Code: "c", State: states[i]})
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		id, err := e.tokens.Validate(tokenFromRedirect(t, redirects[i]))
		require.NoError(t, err)
		assert.Equal(t, "0812345", id.Username)
	}
	assert.Equal(t, 1, e.countUsers(t))
}

func TestAuthenticate_UsesLiveRole(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.RegisterLocal(ctx, "bob", "secret123", "", false))

	token, err := e.svc.LocalLogin(ctx, "bob", "secret123")
	require.NoError(t, err)

	e.setAdmin(t, "bob", true)
	id, err := e.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.True(t, id.IsAdmin)

	e.setAdmin(t, "bob", false)
	id, err = e.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.False(t, id.IsAdmin)
}

func TestAuthenticate_Errors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, common.ErrTokenMalformed)

	ghost, err := e.tokens.Issue("ghost", true)
	require.NoError(t, err)
	_, err = e.svc.Authenticate(ctx, ghost)
	assert.ErrorIs(t, err, common.ErrTokenMalformed)

	other := auth.NewTokenService([]byte("other-secret"), e.cfg.AccessTokenValidityDuration)
	forged, err := other.Issue("bob", true)
	require.NoError(t, err)
	_, err = e.svc.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, common.ErrTokenMalformed)
}

func TestRegisterLocal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.svc.RegisterLocal(ctx, " alice ", "pw", "a@example.com", true))
	err := e.svc.RegisterLocal(ctx, "alice", "other", "", false)
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	u, err := e.rm.Users(e.db).GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.IsLocal)
	assert.True(t, u.IsAdmin)
	assert.NotEqual(t, "pw", u.PasswordHash)

	assert.Error(t, e.svc.RegisterLocal(ctx, "", "pw", "", false))
	assert.Error(t, e.svc.RegisterLocal(ctx, "carol", "", "", false))
}

func TestRegisterLocal_RepoError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := newTestEnv(t)
	rm := &fakeRepoManager{users: &fakeUsersRepo{createErr: errors.New("boom")}}
	svc := NewAuthService(db, rm, e.cfg, e.tokens, oauth.NewRegistry(nil, nil), e.store, logging.Nop(), metrics.Nop())

	err = svc.RegisterLocal(context.Background(), "bob", "pw", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDefaultProvider(t *testing.T) {
	e := newTestEnv(t)
	name, err := e.svc.DefaultProvider()
	require.NoError(t, err)
	assert.Equal(t, "nycu", name)

	empty := NewAuthService(e.db, e.rm, e.cfg, e.tokens, oauth.NewRegistry(nil, nil), e.store, logging.Nop(), metrics.Nop())
	_, err = empty.DefaultProvider()
	assert.ErrorIs(t, err, common.ErrUnknownProvider)
}
