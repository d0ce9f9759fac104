package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("no valid Google OAuth token found")

// KeyringService is the keyring service name tokens are stored under.
const KeyringService = "docdispatch"

// TokenStore persists an OAuth token between runs.
type TokenStore interface {
	// Load returns the stored token or ErrNoToken.
	Load() (*oauth2.Token, error)

	// Save replaces the stored token.
	Save(token *oauth2.Token) error
}

// FileTokenStore keeps the token as JSON in a file.
type FileTokenStore struct {
	Path string
}

// NewFileTokenStore creates a file-based token store.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

// Load reads the token file.
func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	return &token, nil
}

// Save writes the token file with owner-only permissions.
func (s *FileTokenStore) Save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// KeyringTokenStore keeps the token in the OS keyring under KeyringService.
type KeyringTokenStore struct {
	User string
}

// NewKeyringTokenStore creates a keyring-backed store for user.
func NewKeyringTokenStore(user string) *KeyringTokenStore {
	return &KeyringTokenStore{User: user}
}

// Load reads the token from the keyring.
func (s *KeyringTokenStore) Load() (*oauth2.Token, error) {
	secret, err := keyring.Get(KeyringService, s.User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token from keyring: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(secret), &token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	return &token, nil
}

// Save stores the token in the keyring.
func (s *KeyringTokenStore) Save(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := keyring.Set(KeyringService, s.User, string(data)); err != nil {
		return fmt.Errorf("failed to write token to keyring: %w", err)
	}
	return nil
}

// NewTokenStore picks the keyring when useKeyring is set, otherwise the file at path.
func NewTokenStore(path string, useKeyring bool) TokenStore {
	if useKeyring {
		return NewKeyringTokenStore(filepath.Base(path))
	}
	return NewFileTokenStore(path)
}
