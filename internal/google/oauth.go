package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LoadOAuthConfig reads a client secret JSON file (installed or web app).
func LoadOAuthConfig(credentialsPath string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, ScopesOrDefault(scopes)...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return conf, nil
}

// AuthCodeURL returns the consent URL. Offline access is requested so a
// refresh token is issued.
func AuthCodeURL(conf *oauth2.Config) string {
	return conf.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func Exchange(ctx context.Context, conf *oauth2.Config, store TokenStore, authCode string) error {
	t, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if err := store.Save(t); err != nil {
		return err
	}
	return nil
}

// HasToken reports whether store holds a token.
func HasToken(store TokenStore) bool {
	_, err := store.Load()
	return err == nil
}

// TokenSource returns a token source for the stored token. Refreshed tokens
// are written back to store.
func TokenSource(ctx context.Context, conf *oauth2.Config, store TokenStore) (oauth2.TokenSource, error) {
	token, err := store.Load()
	if err != nil {
		return nil, err
	}

	return &persistingTokenSource{
		base:  conf.TokenSource(ctx, token),
		store: store,
		last:  token.AccessToken,
	}, nil
}

// GetHTTPClient returns an HTTP client configured with OAuth2 authentication.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors
// on large uploads.
func GetHTTPClient(ctx context.Context, conf *oauth2.Config, store TokenStore) (*http.Client, error) {
	ts, err := TokenSource(ctx, conf, store)
	if err != nil {
		return nil, err
	}

	// Validate the token
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("cached token is invalid: %w", err)
	}

	client := oauth2.NewClient(ctx, ts)

	// Force HTTP/1.1 by disabling HTTP/2
	transport := client.Transport.(*oauth2.Transport)
	transport.Base = &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
	}

	return client, nil
}

// GetAuthenticationErrorMessage returns the hint printed when no token is available.
func GetAuthenticationErrorMessage(err error) string {
	return fmt.Sprintf("Google OAuth token unavailable (%v). Run 'docdispatch auth' to complete the consent flow.", err)
}

type persistingTokenSource struct {
	mu    sync.Mutex
	base  oauth2.TokenSource
	store TokenStore
	last  string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if t.AccessToken != s.last {
		if err := s.store.Save(t); err != nil {
			return nil, err
		}
		s.last = t.AccessToken
	}
	return t, nil
}
