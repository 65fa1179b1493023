package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/server/auth"
	"github.com/gorilla/mux"
)

type ctxKey string

const identityKey ctxKey = "identity"

func withIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// identityFrom returns the caller attached by requireAuth.
func identityFrom(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, common.ErrTokenMalformed, "")
			return
		}

		id, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			h.logger.Debug(r.Context(), "authentication failed", "error", err)
			writeError(w, err, "")
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// cors wraps the router rather than being registered with Use so that
// preflight requests are answered before method matching.
func (h *Handler) cors(next http.Handler) http.Handler {
	if len(h.allowedOrigins) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		listed := h.allowedOrigins[origin]
		if origin == "" || !(listed || h.allowedOrigins["*"]) {
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Add("Vary", "Origin")
		// credentials only for listed origins; the wildcard gets a literal "*"
		if listed {
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Set("Access-Control-Allow-Credentials", "true")
		} else {
			hdr.Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			hdr.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			hdr.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// routeTemplate labels metrics by route pattern instead of raw path.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
