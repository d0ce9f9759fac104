// Package google provides OAuth2 configuration and token storage for the
// Gmail and Drive clients.
//
// Client credentials come from the downloaded client secret JSON. Tokens are
// kept either in a JSON file next to the configuration or in the OS keyring,
// and refreshed tokens are written back so the consent flow runs only once.
package google
