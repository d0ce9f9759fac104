package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const credentialsJSON = `{"installed":{
  "client_id":"client-123.apps.googleusercontent.com",
  "client_secret":"shh",
  "redirect_uris":["urn:ietf:wg:oauth:2.0:oob"],
  "auth_uri":"https://accounts.google.com/o/oauth2/auth",
  "token_uri":"https://oauth2.googleapis.com/token"}}`

func writeCredentials(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(credentialsJSON), 0o600))
	return path
}

func tokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + accessToken + `","token_type":"Bearer","refresh_token":"refresh-1","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadOAuthConfig(t *testing.T) {
	conf, err := LoadOAuthConfig(writeCredentials(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "client-123.apps.googleusercontent.com", conf.ClientID)
	assert.Equal(t, DefaultOAuthScopes, conf.Scopes)

	conf, err = LoadOAuthConfig(writeCredentials(t), []string{"https://mail.google.com/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://mail.google.com/"}, conf.Scopes)

	_, err = LoadOAuthConfig(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestAuthCodeURL(t *testing.T) {
	conf, err := LoadOAuthConfig(writeCredentials(t), nil)
	require.NoError(t, err)

	u := AuthCodeURL(conf)
	assert.True(t, strings.HasPrefix(u, "https://accounts.google.com/o/oauth2/auth?"))
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "client_id=client-123.apps.googleusercontent.com")
}

func TestFileTokenStore(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "nested", "token.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, HasToken(store))

	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, HasToken(store))

	info, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileTokenStore_InvalidFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("access refresh"), 0o600))

	_, err := NewFileTokenStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoToken)
}

func TestKeyringTokenStore(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringTokenStore("token.json")

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "r", got.RefreshToken)
}

func TestNewTokenStore(t *testing.T) {
	assert.IsType(t, &FileTokenStore{}, NewTokenStore("/tmp/token.json", false))
	ks, ok := NewTokenStore("/tmp/token.json", true).(*KeyringTokenStore)
	require.True(t, ok)
	assert.Equal(t, "token.json", ks.User)
}

func TestExchange(t *testing.T) {
	srv := tokenServer(t, "fresh")
	conf, err := LoadOAuthConfig(writeCredentials(t), nil)
	require.NoError(t, err)
	conf.Endpoint.TokenURL = srv.URL

	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, Exchange(context.Background(), conf, store, "code"))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
}

func TestTokenSource_PersistsRefresh(t *testing.T) {
	srv := tokenServer(t, "refreshed")
	conf, err := LoadOAuthConfig(writeCredentials(t), nil)
	require.NoError(t, err)
	conf.Endpoint.TokenURL = srv.URL

	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       time.Unix(1, 0),
	}))

	client, err := GetHTTPClient(context.Background(), conf, store)
	require.NoError(t, err)
	transport, ok := client.Transport.(*oauth2.Transport)
	require.True(t, ok)
	base, ok := transport.Base.(*http.Transport)
	require.True(t, ok)
	assert.False(t, base.ForceAttemptHTTP2)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", got.AccessToken)
}

func TestGetHTTPClient_NoToken(t *testing.T) {
	conf, err := LoadOAuthConfig(writeCredentials(t), nil)
	require.NoError(t, err)

	_, err = GetHTTPClient(context.Background(), conf, NewFileTokenStore(filepath.Join(t.TempDir(), "none.json")))
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Contains(t, GetAuthenticationErrorMessage(err), "docdispatch auth")
}
