package auth

import (
	"strings"
	"testing"

	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

func TestSetupProviders_Both(t *testing.T) {
	t.Cleanup(goth.ClearProviders)

	names, err := SetupProviders(ProviderConfig{
		PublicURL:      "https://accounts.example.com/",
		FacebookKey:    "fb-key",
		FacebookSecret: "fb-secret",
		SpotifyKey:     "sp-key",
		SpotifySecret:  "sp-secret",
		SessionSecret:  testSessionSecret,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"facebook", "spotify"}, names)

	assert.True(t, Supported("facebook"))
	assert.True(t, Supported("spotify"))
	assert.False(t, Supported("github"))
	assert.False(t, Supported(""))
	assert.NotNil(t, gothic.Store)
}

func TestSetupProviders_CallbackURL(t *testing.T) {
	t.Cleanup(goth.ClearProviders)

	_, err := SetupProviders(ProviderConfig{
		PublicURL:     "https://accounts.example.com/",
		SpotifyKey:    "sp-key",
		SpotifySecret: "sp-secret",
		SessionSecret: testSessionSecret,
	})
	require.NoError(t, err)

	p, err := goth.GetProvider("spotify")
	require.NoError(t, err)
	sess, err := p.BeginAuth("state-123")
	require.NoError(t, err)
	authURL, err := sess.GetAuthURL()
	require.NoError(t, err)

	assert.Contains(t, authURL, "state=state-123")
	assert.True(t, strings.Contains(authURL, "accounts.example.com%2Fauth%2Fspotify%2Fcallback"), authURL)
}

func TestSetupProviders_OnlyConfigured(t *testing.T) {
	t.Cleanup(goth.ClearProviders)

	names, err := SetupProviders(ProviderConfig{
		PublicURL:      "http://localhost:8080",
		FacebookKey:    "fb-key",
		FacebookSecret: "fb-secret",
		SpotifyKey:     "sp-key",
		SessionSecret:  testSessionSecret,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"facebook"}, names)
	assert.False(t, Supported("spotify"), "spotify has no secret and must stay unregistered")
}

func TestSetupProviders_Replaces(t *testing.T) {
	t.Cleanup(goth.ClearProviders)

	_, err := SetupProviders(ProviderConfig{
		PublicURL:      "http://localhost:8080",
		FacebookKey:    "fb-key",
		FacebookSecret: "fb-secret",
		SessionSecret:  testSessionSecret,
	})
	require.NoError(t, err)

	names, err := SetupProviders(ProviderConfig{
		PublicURL:     "http://localhost:8080",
		SessionSecret: testSessionSecret,
	})
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.False(t, Supported("facebook"))
}

func TestSetupProviders_InvalidConfig(t *testing.T) {
	t.Cleanup(goth.ClearProviders)

	_, err := SetupProviders(ProviderConfig{PublicURL: "http://localhost", SessionSecret: "short"})
	assert.Error(t, err)

	_, err = SetupProviders(ProviderConfig{SessionSecret: testSessionSecret})
	assert.Error(t, err)
}
