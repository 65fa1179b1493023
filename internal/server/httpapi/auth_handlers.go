package httpapi

import (
	"net/http"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/server/services"
	"github.com/gorilla/mux"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "invalid form body"})
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "username and password are required"})
		return
	}

	token, err := h.auth.LocalLogin(r.Context(), username, password)
	if err != nil {
		writeError(w, err, "")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: common.TokenType})
}

// providerName resolves the {provider} route variable, falling back to the
// default provider on the unqualified routes.
func (h *Handler) providerName(r *http.Request) (string, error) {
	if _, ok := mux.Vars(r)["provider"]; !ok {
		return h.auth.DefaultProvider()
	}
	name, ok := pathVar(r, "provider")
	if !ok {
		return "", common.ErrUnknownProvider
	}
	return name, nil
}

func (h *Handler) oauthLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providerName(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	sid, err := h.ensureSession(w, r)
	if err != nil {
		h.logger.Error(r.Context(), "session creation failed", "error", err)
		writeError(w, err, "")
		return
	}

	target, err := h.auth.OAuthStart(r.Context(), provider, sid)
	if err != nil {
		writeError(w, err, "")
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providerName(r)
	if err != nil {
		writeError(w, err, "")
		return
	}

	q := r.URL.Query()
	target, err := h.auth.OAuthCallback(r.Context(), provider, h.sessionID(r), services.Callback{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})
	if err != nil {
		writeError(w, err, "")
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) sessionID(r *http.Request) string {
	c, err := r.Cookie(h.cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// ensureSession returns the browser session ID, issuing a new cookie when
// the request carries none.
func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if sid := h.sessionID(r); sid != "" {
		return sid, nil
	}

	sid, err := common.MakeRandToken(common.StateBytes)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return sid, nil
}
