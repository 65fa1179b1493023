package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gainsborouo/ta-source/internal/logging"
	"github.com/gainsborouo/ta-source/internal/server/access"
	"github.com/gainsborouo/ta-source/internal/server/auth"
	"github.com/gainsborouo/ta-source/internal/server/config"
	"github.com/gainsborouo/ta-source/internal/server/metrics"
	"github.com/gainsborouo/ta-source/internal/server/models"
	"github.com/gainsborouo/ta-source/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// APIPrefix is where every route is mounted a second time.
const APIPrefix = "/api"

type AuthService interface {
	LocalLogin(ctx context.Context, username, password string) (string, error)
	OAuthStart(ctx context.Context, provider, sessionID string) (string, error)
	OAuthCallback(ctx context.Context, provider, sessionID string, cb services.Callback) (string, error)
	Authenticate(ctx context.Context, bearer string) (*auth.Identity, error)
	DefaultProvider() (string, error)
}

type CourseService interface {
	ListLogs(ctx context.Context, id *auth.Identity, course, studentFilter string) ([]string, error)
	ReadLog(ctx context.Context, id *auth.Identity, course, filename string) (*access.Artifact, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
}

// Pinger reports database liveness; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	auth     AuthService
	courses  CourseService
	db       Pinger
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	logger   logging.Logger

	cookieName     string
	sessionTTL     time.Duration
	secureCookies  bool
	allowedOrigins map[string]bool
}

func NewHandler(cfg *config.Config, as AuthService, cs CourseService, db Pinger,
	gatherer prometheus.Gatherer, mtr *metrics.Metrics, l logging.Logger) *Handler {
	origins := make(map[string]bool, len(cfg.CORSAllowedOrigins))
	for _, o := range cfg.CORSAllowedOrigins {
		origins[o] = true
	}

	return &Handler{
		auth:           as,
		courses:        cs,
		db:             db,
		gatherer:       gatherer,
		metrics:        mtr,
		logger:         l.With("module", "httpapi"),
		cookieName:     cfg.SessionCookieName,
		sessionTTL:     cfg.SessionTTL,
		secureCookies:  cfg.SecureCookies,
		allowedOrigins: origins,
	}
}

// Router builds the complete HTTP surface.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	// path parameters are unescaped by the handlers so that an encoded
	// separator reaches path validation instead of the router
	r.UseEncodedPath()
	r.SkipClean(true)
	r.Use(h.metrics.HTTPMiddleware(routeTemplate))

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler(h.gatherer)).Methods(http.MethodGet)

	h.registerRoutes(r.PathPrefix(APIPrefix).Subrouter())
	h.registerRoutes(r)

	return h.cors(r)
}

func (h *Handler) registerRoutes(r *mux.Router) {
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)

	r.HandleFunc("/oauth/login", h.oauthLogin).Methods(http.MethodGet)
	r.HandleFunc("/oauth/callback", h.oauthCallback).Methods(http.MethodGet)
	r.HandleFunc("/oauth/{provider}/login", h.oauthLogin).Methods(http.MethodGet)
	r.HandleFunc("/oauth/{provider}/callback", h.oauthCallback).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(h.requireAuth)
	protected.HandleFunc("/courses", h.listCourses).Methods(http.MethodGet)
	protected.HandleFunc("/courses/{course}/logs", h.listLogs).Methods(http.MethodGet)
	protected.HandleFunc("/courses/{course}/logs/{filename}", h.readLog).Methods(http.MethodGet)
}

// pathVar returns the unescaped value of a route variable.
func pathVar(r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(mux.Vars(r)[name])
	return v, err == nil
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "TA System Backend API"})
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error(ctx, "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
