// Package google wraps the Google OAuth endpoints used for the connection
// handshake: building authorization URLs, exchanging authorization codes,
// and refreshing access tokens.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	tasks "google.golang.org/api/tasks/v1"
)

// DefaultExpiresIn is the conservative fallback lifetime applied when the
// token endpoint omits expires_in.
const DefaultExpiresIn = time.Hour

// Config holds the registered OAuth client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURI must byte-for-byte match the URI registered with Google;
	// a mismatch is a configuration error, not a runtime one.
	RedirectURI string
	// Timeout bounds each call to the token endpoint. Calls are not retried.
	Timeout time.Duration
}

// Token is the provider token material relevant to a connection. The refresh
// token may be empty: Google omits it on repeat consent.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time
}

// Client talks to Google's OAuth authorization and token endpoints.
type Client struct {
	conf    *oauth2.Config
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a Client for the given OAuth app credentials.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleoauth.Endpoint,
			RedirectURL:  cfg.RedirectURI,
			Scopes: []string{
				tasks.TasksScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		timeout: timeout,
		logger:  logger.With("component", "google"),
	}
}

// AuthCodeURL builds the authorization-request URL carrying the given state.
// access_type=offline is required to obtain a refresh token, and
// prompt=consent forces refresh-token issuance even on re-auth.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for tokens at the token endpoint.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, providerError("exchange", err)
	}
	return fromOAuth2Token(tok), nil
}

// Refresh obtains a fresh access token for a stored refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ts := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, providerError("refresh", err)
	}
	return fromOAuth2Token(tok), nil
}

func fromOAuth2Token(tok *oauth2.Token) *Token {
	t := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		t.Scope = scope
	}
	if t.Expiry.IsZero() {
		t.Expiry = time.Now().Add(DefaultExpiresIn)
	}
	return t
}

// ProviderError is a structured rejection from Google's token endpoint.
// Code and Description carry the provider's error and error_description
// verbatim for diagnosis.
type ProviderError struct {
	Op          string
	Code        string
	Description string
	StatusCode  int
	err         error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("google %s rejected: %s (%s)", e.Op, e.Code, e.Description)
	}
	return fmt.Sprintf("google %s failed: %v", e.Op, e.err)
}

// Unwrap returns the underlying transport error.
func (e *ProviderError) Unwrap() error {
	return e.err
}

// InvalidGrant reports whether the refresh token was revoked or expired.
// This is not transient: retrying without new user consent will never succeed.
func (e *ProviderError) InvalidGrant() bool {
	return e.Code == "invalid_grant"
}

func providerError(op string, err error) error {
	pe := &ProviderError{Op: op, err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		pe.Code = re.ErrorCode
		pe.Description = re.ErrorDescription
		if re.Response != nil {
			pe.StatusCode = re.Response.StatusCode
		}
	}
	return pe
}
