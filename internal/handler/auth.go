package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/auth"
	"github.com/sakif/accountlink/internal/model"
	"github.com/sakif/accountlink/internal/service"
)

// OAuthFlow is the provider handshake: redirect out, come back with a user.
// GothicFlow is the production implementation; tests substitute their own.
type OAuthFlow interface {
	Supported(provider string) bool
	Begin(w http.ResponseWriter, r *http.Request)
	Complete(w http.ResponseWriter, r *http.Request) (goth.User, error)
}

// GothicFlow runs the handshake through gothic, which keeps the OAuth state
// parameter in its own signed cookie and checks it on the way back.
type GothicFlow struct{}

func (GothicFlow) Supported(provider string) bool { return auth.Supported(provider) }

func (GothicFlow) Begin(w http.ResponseWriter, r *http.Request) {
	gothic.BeginAuthHandler(w, r)
}

func (GothicFlow) Complete(w http.ResponseWriter, r *http.Request) (goth.User, error) {
	return gothic.CompleteUserAuth(w, r)
}

// IdentityResolver turns a callback payload into a local user.
type IdentityResolver interface {
	Resolve(ctx context.Context, payload service.AuthPayload) (*model.User, error)
}

// SessionIssuer issues a session token for an already authenticated user.
type SessionIssuer interface {
	Login(user *model.User, remember bool) (*service.AuthResult, error)
}

// AuthHandler runs the OAuth sign-in routes:
//   - HandleBegin    → GET /auth/{provider}
//   - HandleCallback → GET /auth/{provider}/callback
type AuthHandler struct {
	flow     OAuthFlow
	resolver IdentityResolver
	sessions SessionIssuer
	cookies  CookieConfig
	logger   *slog.Logger
}

func NewAuthHandler(
	flow OAuthFlow,
	resolver IdentityResolver,
	sessions SessionIssuer,
	cookies CookieConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		flow:     flow,
		resolver: resolver,
		sessions: sessions,
		cookies:  cookies,
		logger:   logger,
	}
}

// HandleBegin redirects the browser to the provider's consent page.
func (h *AuthHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !h.flow.Supported(provider) {
		writeError(w, apperror.NotFound("provider", provider))
		return
	}

	h.flow.Begin(w, gothic.GetContextWithProvider(r, provider))
}

// HandleCallback completes the handshake and signs the user in.
//
// FLOW:
//  1. Provider-reported errors (user pressed "Cancel") go back to the app
//  2. The flow exchanges the code and fetches the profile
//  3. The profile becomes an AuthPayload and is resolved to a local user
//  4. A remembered session cookie is set and the browser is sent home
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !h.flow.Supported(provider) {
		writeError(w, apperror.NotFound("provider", provider))
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth callback: authorization denied",
			slog.String("provider", provider),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	r = gothic.GetContextWithProvider(r, provider)
	gothUser, err := h.flow.Complete(w, r)
	if err != nil {
		h.logger.Warn("oauth callback: handshake failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		writeError(w, apperror.Unauthorized("authentication with "+provider+" failed"))
		return
	}

	user, err := h.resolver.Resolve(r.Context(), payloadFromGothUser(gothUser))
	if err != nil {
		h.logger.Error("oauth callback: resolving identity failed",
			slog.String("provider", provider),
			slog.String("uid", gothUser.UserID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	// OAuth sessions are always remembered: the consent screen has no
	// "remember me" box, and the provider already vouched for the user.
	result, err := h.sessions.Login(user, true)
	if err != nil {
		h.logger.Error("oauth callback: issuing session failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.logger.Info("user authenticated via oauth",
		slog.String("userID", user.ID),
		slog.String("provider", provider),
	)

	h.cookies.set(w, result.Token, result.TTL)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// payloadFromGothUser maps goth's unified user onto the resolver payload.
// goth reports the token expiry as a time.Time; a zero time (provider sent no
// expiry) maps to 0.
func payloadFromGothUser(u goth.User) service.AuthPayload {
	var expiresAt int64
	if !u.ExpiresAt.IsZero() {
		expiresAt = u.ExpiresAt.Unix()
	}

	return service.AuthPayload{
		Provider: u.Provider,
		UID:      u.UserID,
		Info: &service.AuthInfo{
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Image:     u.AvatarURL,
		},
		Credentials: &service.AuthCredentials{
			Token:     u.AccessToken,
			ExpiresAt: expiresAt,
		},
	}
}
