package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/auth"
	"github.com/sakif/accountlink/internal/model"
	"github.com/sakif/accountlink/internal/service"
)

// CookieConfig controls the session cookie the handlers set. The cookie
// lifetime comes from each AuthResult, so a remembered session and a short
// one differ only in Max-Age.
type CookieConfig struct {
	Secure bool
}

func (c CookieConfig) set(w http.ResponseWriter, token string, ttl time.Duration) {
	auth.SetSessionCookie(w, token, ttl, c.Secure)
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	auth.ClearSessionCookie(w, c.Secure)
}

// AccountManager is the account service as the handlers see it.
type AccountManager interface {
	SignUp(ctx context.Context, in service.SignUpInput) (*service.AuthResult, error)
	SignIn(ctx context.Context, email, password string, remember bool) (*service.AuthResult, error)
	UpdateAccount(ctx context.Context, userID string, in service.AccountUpdateInput) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AccountHandler serves password registration, sign-in/out and the current
// user's profile.
type AccountHandler struct {
	accounts AccountManager
	cookies  CookieConfig
	logger   *slog.Logger
}

func NewAccountHandler(accounts AccountManager, cookies CookieConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, cookies: cookies, logger: logger}
}

// HandleSignUp registers a password account and signs it in.
//
// HTTP: POST /users/sign_up
// REQUEST BODY: {"email": "...", "password": "...", "passwordConfirmation": "...", "nickname": "..."}
func (h *AccountHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var params SignUpParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.accounts.SignUp(r.Context(), params.input())
	if err != nil {
		h.logError("sign up failed", err)
		writeError(w, err)
		return
	}

	h.cookies.set(w, result.Token, result.TTL)
	writeJSON(w, http.StatusCreated, result.User)
}

// HandleSignIn checks credentials and sets the session cookie.
//
// HTTP: POST /users/sign_in
// REQUEST BODY: {"email": "...", "password": "...", "rememberMe": true}
//
// With rememberMe the cookie and token last auth.RememberFor (two weeks);
// without it they last the token service default.
func (h *AccountHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var params SignInParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.accounts.SignIn(r.Context(), params.Email, params.Password, params.RememberMe)
	if err != nil {
		h.logError("sign in failed", err)
		writeError(w, err)
		return
	}

	h.cookies.set(w, result.Token, result.TTL)
	writeJSON(w, http.StatusOK, result.User)
}

// HandleSignOut drops the session cookie. The JWT stays valid until it
// expires, but the browser no longer sends it.
//
// HTTP: DELETE /users/sign_out
func (h *AccountHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me (session required)
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("you need to sign in or sign up before continuing"))
		return
	}

	user, err := h.accounts.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logError("loading current user failed", err, slog.String("userID", userID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate changes email, nickname or password of the signed-in user.
//
// HTTP: PUT /users (session required)
func (h *AccountHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("you need to sign in or sign up before continuing"))
		return
	}

	var params AccountUpdateParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.accounts.UpdateAccount(r.Context(), userID, params.input())
	if err != nil {
		h.logError("account update failed", err, slog.String("userID", userID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// logError logs client mistakes at Info and everything else at Error.
func (h *AccountHandler) logError(msg string, err error, attrs ...any) {
	attrs = append(attrs, slog.String("error", err.Error()))
	if status, _ := statusFor(err); status < http.StatusInternalServerError {
		h.logger.Info(msg, attrs...)
		return
	}
	h.logger.Error(msg, attrs...)
}
