package services

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/logging"
	"github.com/gainsborouo/ta-source/internal/server/auth"
	"github.com/gainsborouo/ta-source/internal/server/config"
	"github.com/gainsborouo/ta-source/internal/server/metrics"
	"github.com/gainsborouo/ta-source/internal/server/models"
	"github.com/gainsborouo/ta-source/internal/server/oauth"
	"github.com/gainsborouo/ta-source/internal/server/repositories/courses"
	"github.com/gainsborouo/ta-source/internal/server/repositories/repomanager"
	"github.com/gainsborouo/ta-source/internal/server/repositories/users"
	"github.com/gainsborouo/ta-source/internal/server/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeProvider is an identity provider answering every code with the same
// profile.
type fakeProvider struct {
	profileBody string
	exchanges   atomic.Int32
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/o/token/", func(w http.ResponseWriter, r *http.Request) {
		f.exchanges.Add(1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") == "bad-code" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/api/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.profileBody))
	})
	return mux
}

type testEnv struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	cfg      *config.Config
	tokens   *auth.TokenService
	store    *sessions.MemoryStore
	provider *fakeProvider
	registry *oauth.Registry
	metrics  *metrics.Metrics
	svc      *AuthService
}

func newSQLiteDB(t *testing.T) (*sql.DB, repomanager.RepositoryManager) {
	t.Helper()
	ctx := context.Background()

	dsn := filepath.Join(t.TempDir(), "ta.db") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := repomanager.Open(ctx, repomanager.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rm := repomanager.NewSQLiteRepositoryManager()
	require.NoError(t, rm.RunMigrations(ctx, db))
	return db, rm
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, rm := newSQLiteDB(t)

	fp := &fakeProvider{profileBody: `{"username":"0812345","email":"s0812345@nycu.edu.tw"}`}
	srv := httptest.NewServer(fp.handler())
	t.Cleanup(srv.Close)

	p := config.DefaultProvider()
	p.ClientID = "cid"
	p.ClientSecret = "csecret"
	p.AuthURL = srv.URL + "/o/authorize/"
	p.TokenURL = srv.URL + "/o/token/"
	p.ProfileURL = srv.URL + "/api/profile/"

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.BcryptCost = bcrypt.MinCost
	cfg.FrontendURL = "https://ta.example"
	cfg.FrontendRedirectPath = "/auth/callback"
	cfg.Providers = []config.ProviderConfig{p}

	tokens := auth.NewTokenService([]byte(cfg.SecretKey), time.Hour)
	store := sessions.NewMemoryStore()
	mtr := metrics.NewMetrics(prometheus.NewRegistry())
	registry := oauth.NewRegistry(cfg.ActiveProviders(), srv.Client())

	return &testEnv{
		db:       db,
		rm:       rm,
		cfg:      cfg,
		tokens:   tokens,
		store:    store,
		provider: fp,
		registry: registry,
		metrics:  mtr,
		svc:      NewAuthService(db, rm, cfg, tokens, registry, store, logging.Nop(), mtr),
	}
}

func (e *testEnv) setAdmin(t *testing.T, username string, admin bool) {
	t.Helper()
	_, err := e.db.Exec(`UPDATE users SET admin = ? WHERE username = ?`, admin, username)
	require.NoError(t, err)
}

func (e *testEnv) countUsers(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	return n
}

type fakeUsersRepo struct {
	getOut    *models.User
	getErr    error
	createOut bool
	createErr error
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return f.getOut, f.getErr
}

func (f *fakeUsersRepo) CreateIfAbsent(ctx context.Context, u *models.User) (bool, error) {
	return f.createOut, f.createErr
}

type fakeCoursesRepo struct {
	out []models.Course
	err error
}

func (f *fakeCoursesRepo) List(ctx context.Context) ([]models.Course, error) {
	return f.out, f.err
}

type fakeRepoManager struct {
	users   users.Repository
	courses courses.Repository
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return f.users }
func (f *fakeRepoManager) Courses(dbx.DBTX) courses.Repository         { return f.courses }
