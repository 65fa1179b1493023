// Package services contains server-side business logic. AuthService turns
// credentials or an OAuth callback into a session token and session tokens
// back into a live identity; CourseService serves course data to an
// authenticated identity.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/logging"
	"github.com/gainsborouo/ta-source/internal/server/auth"
	"github.com/gainsborouo/ta-source/internal/server/config"
	"github.com/gainsborouo/ta-source/internal/server/metrics"
	"github.com/gainsborouo/ta-source/internal/server/models"
	"github.com/gainsborouo/ta-source/internal/server/oauth"
	"github.com/gainsborouo/ta-source/internal/server/repositories/repomanager"
	"github.com/gainsborouo/ta-source/internal/server/sessions"
)

// Login methods recorded in metrics.
const (
	MethodLocal = "local"
	MethodOAuth = "oauth"
)

// Callback carries the query parameters of an OAuth redirect back to us.
type Callback struct {
	Code  string
	State string
	// Error is set when the provider refused the authorization.
	Error string
}

// AuthService implements the login flows and token authentication.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *auth.Hasher
	tokens      *auth.TokenService
	providers   *oauth.Registry
	sessions    sessions.Store
	stateTTL    time.Duration
	frontendURL string
	logger      logging.Logger
	metrics     *metrics.Metrics
}

// NewAuthService wires the service from its collaborators and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	tokens *auth.TokenService, providers *oauth.Registry, store sessions.Store,
	logger logging.Logger, mtr *metrics.Metrics) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		hasher:      auth.NewHasher(cfg.BcryptCost),
		tokens:      tokens,
		providers:   providers,
		sessions:    store,
		stateTTL:    cfg.SessionTTL,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/") + cfg.FrontendRedirectPath,
		logger:      logger.With("module", "auth"),
		metrics:     mtr,
	}
}

// LocalLogin checks a username and password and returns a session token.
// Unknown users, wrong passwords and accounts without local login all
// fail with common.ErrInvalidCredentials.
func (s *AuthService) LocalLogin(ctx context.Context, username, password string) (token string, err error) {
	defer func() {
		s.metrics.LoginAttemptsTotal.WithLabelValues(MethodLocal, metrics.Result(err)).Inc()
	}()

	user, err := s.getUser(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyNothing(password)
			s.logger.Warn(ctx, "login rejected", "username", username, "reason", "unknown user")
			return "", common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "user lookup failed", "username", username, "error", err)
		return "", common.ErrorInternal
	}

	if !user.CanLogInLocally() {
		s.hasher.VerifyNothing(password)
		s.logger.Warn(ctx, "login rejected", "username", username, "reason", "not a local account")
		return "", common.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.Warn(ctx, "login rejected", "username", username, "reason", "wrong password")
		return "", common.ErrInvalidCredentials
	}

	token, err = s.tokens.Issue(user.Username, user.IsAdmin)
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "error", err)
		return "", common.ErrorInternal
	}

	s.logger.Info(ctx, "login succeeded", "username", username, "method", MethodLocal)
	return token, nil
}

// DefaultProvider names the provider behind the unqualified OAuth routes.
func (s *AuthService) DefaultProvider() (string, error) {
	client, err := s.providers.Default()
	if err != nil {
		return "", err
	}
	return client.Name(), nil
}

// OAuthStart stores a fresh CSRF state for provider in the browser session
// and returns the provider's authorize URL.
func (s *AuthService) OAuthStart(ctx context.Context, provider, sessionID string) (string, error) {
	client, err := s.providers.Get(provider)
	if err != nil {
		return "", err
	}

	state, err := oauth.NewState()
	if err != nil {
		s.logger.Error(ctx, "state generation failed", "error", err)
		return "", common.ErrorInternal
	}

	if err := s.sessions.Put(ctx, sessionID, sessions.StateKey(client.Name()), state, s.stateTTL); err != nil {
		s.logger.Error(ctx, "state store failed", "provider", provider, "error", err)
		return "", common.ErrorInternal
	}

	return client.AuthCodeURL(state), nil
}

// OAuthCallback completes a flow started by OAuthStart. The stored state is
// consumed before it is compared, so it can never be used twice. On success
// the user row is created if needed and the frontend URL carrying the new
// session token is returned.
func (s *AuthService) OAuthCallback(ctx context.Context, provider, sessionID string, cb Callback) (redirect string, err error) {
	client, err := s.providers.Get(provider)
	if err != nil {
		return "", err
	}
	defer func() {
		s.metrics.OAuthCallbacksTotal.WithLabelValues(client.Name(), metrics.Result(err)).Inc()
		s.metrics.LoginAttemptsTotal.WithLabelValues(MethodOAuth, metrics.Result(err)).Inc()
	}()

	stored, ok, err := s.sessions.Take(ctx, sessionID, sessions.StateKey(client.Name()))
	if err != nil {
		s.logger.Error(ctx, "state lookup failed", "provider", provider, "error", err)
		return "", common.ErrorInternal
	}
	if !ok || cb.State == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(cb.State)) != 1 {
		s.logger.Warn(ctx, "oauth state mismatch", "provider", provider, "stored", ok)
		return "", common.ErrCSRFMismatch
	}

	if cb.Error != "" {
		s.logger.Warn(ctx, "provider refused authorization", "provider", provider, "error", cb.Error)
		return "", &common.ProviderError{
			Op: common.OpExchange, Status: 400, Err: fmt.Errorf("authorization denied: %s", cb.Error),
		}
	}
	if cb.Code == "" {
		return "", &common.ProviderError{
			Op: common.OpExchange, Status: 400, Err: errors.New("missing authorization code"),
		}
	}

	providerToken, err := client.Exchange(ctx, cb.Code)
	if err != nil {
		s.logger.Warn(ctx, "code exchange failed", "provider", provider, "error", err)
		return "", err
	}

	profile, err := client.FetchProfile(ctx, providerToken)
	if err != nil {
		s.logger.Warn(ctx, "profile fetch failed", "provider", provider, "error", err)
		return "", err
	}

	user, err := s.provision(ctx, profile)
	if err != nil {
		s.logger.Error(ctx, "provisioning failed", "username", profile.Username, "error", err)
		return "", common.ErrorInternal
	}

	token, err := s.tokens.Issue(user.Username, user.IsAdmin)
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "error", err)
		return "", common.ErrorInternal
	}

	s.logger.Info(ctx, "login succeeded", "username", user.Username, "method", MethodOAuth, "provider", provider)
	return s.frontendRedirect(token)
}

// provision creates the OAuth user unless it exists and returns the stored
// row, which may predate this login and carry a different role or email.
// The insert and the re-read share one transaction.
func (s *AuthService) provision(ctx context.Context, profile *oauth.Profile) (*models.User, error) {
	var (
		user    *models.User
		created bool
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		var err error
		created, err = repo.CreateIfAbsent(ctx, &models.User{
			Username: profile.Username,
			Email:    profile.Email,
		})
		if err != nil {
			return err
		}

		user, err = repo.GetByUsername(ctx, profile.Username)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info(ctx, "user provisioned", "username", profile.Username)
	}
	return user, nil
}

func (s *AuthService) frontendRedirect(token string) (string, error) {
	u, err := url.Parse(s.frontendURL)
	if err != nil {
		return "", fmt.Errorf("%w: frontend url: %v", common.ErrorInternal, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Authenticate validates a bearer token and reloads the user so that the
// returned IsAdmin reflects the current role rather than the one in the
// token.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (*auth.Identity, error) {
	id, err := s.tokens.Validate(bearer)
	if err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, id.Username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", common.ErrTokenMalformed)
		}
		s.logger.Error(ctx, "user lookup failed", "username", id.Username, "error", err)
		return nil, common.ErrorInternal
	}

	id.IsAdmin = user.IsAdmin
	return id, nil
}

// RegisterLocal creates a local account. An existing username is never
// overwritten; that case returns common.ErrorAlreadyExists.
func (s *AuthService) RegisterLocal(ctx context.Context, username, password, email string, isAdmin bool) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var created bool
	err = dbx.WithConn(ctx, s.db, func(ctx context.Context, conn dbx.DBTX) error {
		created, err = s.repomanager.Users(conn).CreateIfAbsent(ctx, &models.User{
			Username:     username,
			PasswordHash: hash,
			Email:        email,
			IsLocal:      true,
			IsAdmin:      isAdmin,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	if !created {
		return common.ErrorAlreadyExists
	}

	s.logger.Info(ctx, "local user registered", "username", username, "admin", isAdmin)
	return nil
}

func (s *AuthService) getUser(ctx context.Context, username string) (*models.User, error) {
	var user *models.User
	err := dbx.WithConn(ctx, s.db, func(ctx context.Context, conn dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(conn).GetByUsername(ctx, username)
		return err
	})
	return user, err
}
