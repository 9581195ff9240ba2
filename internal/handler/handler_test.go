package handler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/accountlink/internal/auth"
	"github.com/sakif/accountlink/internal/handler"
	sqliteRepo "github.com/sakif/accountlink/internal/repository/sqlite"
	"github.com/sakif/accountlink/internal/service"
)

// testStack is the real service graph over an in-memory database, mounted on
// a chi router the same way the server mounts it.
type testStack struct {
	users    *sqliteRepo.UserDB
	accounts *service.AccountService
	resolver *service.IdentityResolver
	tokens   *auth.TokenService
	flow     *fakeFlow
	router   chi.Router
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)
	users := db.Users()

	s := &testStack{
		users:    users,
		accounts: service.NewAccountService(users, tokens, passwords, logger),
		resolver: service.NewIdentityResolver(users, passwords),
		tokens:   tokens,
		flow:     &fakeFlow{providers: map[string]bool{"facebook": true, "spotify": true}},
	}

	cookies := handler.CookieConfig{}
	accountHandler := handler.NewAccountHandler(s.accounts, cookies, logger)
	authHandler := handler.NewAuthHandler(s.flow, s.resolver, s.accounts, cookies, logger)

	r := chi.NewRouter()
	r.Use(auth.RequireAuth(tokens, auth.PublicPaths...))
	r.Get("/auth/{provider}", authHandler.HandleBegin)
	r.Get("/auth/{provider}/callback", authHandler.HandleCallback)
	r.Post("/users/sign_up", accountHandler.HandleSignUp)
	r.Post("/users/sign_in", accountHandler.HandleSignIn)
	r.Delete("/users/sign_out", accountHandler.HandleSignOut)
	r.Get("/api/me", accountHandler.HandleMe)
	r.Put("/users", accountHandler.HandleUpdate)
	s.router = r

	return s
}

// do sends a request through the router, optionally signed in as userID.
func (s *testStack) do(t *testing.T, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := s.tokens.Generate(userID)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}

	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

// fakeFlow stands in for the provider round trip.
type fakeFlow struct {
	providers map[string]bool

	user goth.User
	err  error

	begunWith string
}

func (f *fakeFlow) Supported(provider string) bool { return f.providers[provider] }

func (f *fakeFlow) Begin(w http.ResponseWriter, r *http.Request) {
	f.begunWith, _ = gothic.GetProviderName(r)
	http.Redirect(w, r, "https://provider.example.com/oauth?state=xyz", http.StatusTemporaryRedirect)
}

func (f *fakeFlow) Complete(_ http.ResponseWriter, _ *http.Request) (goth.User, error) {
	return f.user, f.err
}

func facebookUser(uid, email string) goth.User {
	return goth.User{
		Provider:    "facebook",
		UserID:      uid,
		Email:       email,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		AvatarURL:   "https://graph.facebook.com/" + uid + "/picture",
		AccessToken: "fb-access",
		ExpiresAt:   time.Unix(1700000000, 0),
	}
}

// signUpUser registers a password account through the service.
func (s *testStack) signUpUser(t *testing.T, email, password string) string {
	t.Helper()
	res, err := s.accounts.SignUp(context.Background(), service.SignUpInput{
		Email:                email,
		Password:             password,
		PasswordConfirmation: password,
		Nickname:             "nick",
	})
	require.NoError(t, err)
	return res.User.ID
}
