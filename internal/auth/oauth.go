package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/facebook"
	"github.com/markbates/goth/providers/spotify"
)

// oauthStateMaxAge bounds how long a user has to approve the provider prompt.
const oauthStateMaxAge = 10 * 60

// ProviderConfig holds the OAuth application credentials. A provider whose key
// or secret is empty is not registered, and its routes answer 404.
type ProviderConfig struct {
	// PublicURL is the externally visible base URL; callbacks are
	// PublicURL + "/auth/{provider}/callback".
	PublicURL string

	FacebookKey    string
	FacebookSecret string
	SpotifyKey     string
	SpotifySecret  string

	// SessionSecret signs the short-lived cookie gothic keeps the OAuth state
	// in between the redirect and the callback.
	SessionSecret string
	CookieSecure  bool
}

// SetupProviders registers the configured goth providers and points gothic at
// a signed cookie store. It returns the names of the enabled providers.
//
// The goth registry is process-global. Calling SetupProviders again replaces
// whatever was registered before.
func SetupProviders(cfg ProviderConfig) ([]string, error) {
	if len(cfg.SessionSecret) < 32 {
		return nil, errors.New("auth: session secret must be at least 32 characters")
	}

	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		return nil, errors.New("auth: public URL is required for OAuth callbacks")
	}

	var providers []goth.Provider
	if cfg.FacebookKey != "" && cfg.FacebookSecret != "" {
		providers = append(providers, facebook.New(
			cfg.FacebookKey,
			cfg.FacebookSecret,
			callbackURL(base, "facebook"),
			"email", "public_profile",
		))
	}
	if cfg.SpotifyKey != "" && cfg.SpotifySecret != "" {
		providers = append(providers, spotify.New(
			cfg.SpotifyKey,
			cfg.SpotifySecret,
			callbackURL(base, "spotify"),
			spotify.ScopeUserReadEmail,
		))
	}

	goth.ClearProviders()
	goth.UseProviders(providers...)

	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	gothic.Store = store

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names, nil
}

// Supported reports whether name is a registered provider.
func Supported(name string) bool {
	if name == "" {
		return false
	}
	_, err := goth.GetProvider(name)
	return err == nil
}

func callbackURL(base, provider string) string {
	return fmt.Sprintf("%s/auth/%s/callback", base, provider)
}
