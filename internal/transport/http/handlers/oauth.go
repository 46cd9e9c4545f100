package http_handlers

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/infrastructure/security"
	"github.com/baechuer/storefront-auth/internal/logger"
	"github.com/baechuer/storefront-auth/internal/transport/http/dto"
	"github.com/baechuer/storefront-auth/internal/transport/http/response"
)

// OAuthHandler handles OAuth endpoints
type OAuthHandler struct {
	svc              *auth.Service
	frontendOrigin   string
	allowedRedirects []string
	refreshTTL       time.Duration
	isSecure         bool
}

type OAuthHandlerConfig struct {
	Service          *auth.Service
	FrontendOrigin   string
	AllowedRedirects []string
	RefreshTTL       time.Duration
	IsSecure         bool
}

func NewOAuthHandler(cfg OAuthHandlerConfig) *OAuthHandler {
	return &OAuthHandler{
		svc:              cfg.Service,
		frontendOrigin:   cfg.FrontendOrigin,
		allowedRedirects: cfg.AllowedRedirects,
		refreshTTL:       cfg.RefreshTTL,
		isSecure:         cfg.IsSecure,
	}
}

// OAuthStart redirects to the provider's consent page.
// GET /auth/v1/oauth/{provider}/start?redirect_to=/orders
func (h *OAuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	redirectTo := r.URL.Query().Get("redirect_to")
	if !h.isAllowedRedirect(redirectTo) {
		redirectTo = "/"
	}

	result, err := h.svc.OAuthStart(r.Context(), domain.OAuthProvider(provider), redirectTo)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	// SPA clients that drive the popup themselves ask for the URL instead.
	if r.URL.Query().Get("mode") == "json" {
		response.OK(w, dto.OAuthStartData{AuthURL: result.AuthURL})
		return
	}
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// OAuthCallback completes the code exchange and hands the session to the
// opener window.
// GET /auth/v1/oauth/{provider}/callback?code=...&state=...
func (h *OAuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		logger.WithCtx(r.Context()).Info().
			Str("provider", provider).
			Str("oauth_error", errCode).
			Msg("oauth_denied_by_provider")
		h.renderErrorPage(w, http.StatusBadRequest, "oauth_denied")
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		h.renderErrorPage(w, http.StatusBadRequest, "invalid_oauth_state")
		return
	}

	result, err := h.svc.OAuthCallback(r.Context(), domain.OAuthProvider(provider), state, code)
	if err != nil {
		logger.WithCtx(r.Context()).Warn().Err(err).
			Str("provider", provider).
			Msg("oauth_callback_failed")
		h.renderErrorPage(w, response.StatusFor(err), errCode(err))
		return
	}

	security.SetRefreshToken(w, result.Tokens.RefreshToken, h.refreshTTL, h.isSecure)
	h.renderPostMessagePage(w, result)
}

func (h *OAuthHandler) isAllowedRedirect(path string) bool {
	if path == "" {
		return false
	}
	return slices.Contains(h.allowedRedirects, path)
}

type oauthSuccessMessage struct {
	Type        string         `json:"type"`
	AccessToken string         `json:"access_token"`
	ExpiresIn   int64          `json:"expires_in"`
	User        dto.PublicUser `json:"user"`
	IsNewUser   bool           `json:"is_new_user"`
	RedirectTo  string         `json:"redirect_to"`
}

type pageData struct {
	Origin  string
	Payload template.JS
	Message string
}

var (
	successPage = template.Must(template.New("oauth_success").Parse(postMessageTemplate))
	errorPage   = template.Must(template.New("oauth_error").Parse(errorTemplate))
)

func (h *OAuthHandler) renderPostMessagePage(w http.ResponseWriter, result auth.OAuthCallbackResult) {
	payload, err := json.Marshal(oauthSuccessMessage{
		Type:        "oauth_success",
		AccessToken: result.Tokens.AccessToken,
		ExpiresIn:   result.Tokens.ExpiresIn,
		User:        dto.NewPublicUser(result.User),
		IsNewUser:   result.IsNewUser,
		RedirectTo:  result.RedirectTo,
	})
	if err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	h.render(w, http.StatusOK, successPage, pageData{
		Origin:  h.frontendOrigin,
		Payload: template.JS(payload),
	})
}

// renderErrorPage only ever shows an error code, never the error text.
func (h *OAuthHandler) renderErrorPage(w http.ResponseWriter, status int, code string) {
	h.render(w, status, errorPage, pageData{
		Origin:  h.frontendOrigin,
		Message: code,
	})
}

func (h *OAuthHandler) render(w http.ResponseWriter, status int, tmpl *template.Template, data pageData) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

const postMessageTemplate = `<!DOCTYPE html>
<html>
<head><title>Signing in</title></head>
<body>
  <p>Completing sign in...</p>
  <script>
    (function() {
      var origin = {{.Origin}};
      var data = {{.Payload}};
      if (window.opener) {
        window.opener.postMessage(data, origin);
        window.close();
      } else {
        sessionStorage.setItem('oauth_result', JSON.stringify(data));
        window.location.href = origin + (data.redirect_to || '/');
      }
    })();
  </script>
</body>
</html>`

const errorTemplate = `<!DOCTYPE html>
<html>
<head><title>Sign in failed</title></head>
<body>
  <h2>Sign in failed</h2>
  <p>{{.Message}}</p>
  <button onclick="window.close()">Close</button>
  <script>
    if (window.opener) {
      window.opener.postMessage({ type: 'oauth_error', error: {{.Message}} }, {{.Origin}});
    }
  </script>
</body>
</html>`
