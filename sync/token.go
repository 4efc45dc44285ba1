package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// GraphScope is the client-credential scope for Microsoft Graph.
const GraphScope = "https://graph.microsoft.com/.default"

// TokenProvider supplies bearer tokens.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token, e.g. an API key used as a bearer.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", newError(CodeUnauthorized, "token", errors.New("no token configured"))
	}
	return string(t), nil
}

// ClientCredentialsProvider exchanges a client id and secret for an access token.
type ClientCredentialsProvider struct {
	config clientcredentials.Config
}

// NewClientCredentialsProvider returns a provider for tenant on loginURL
// (e.g. https://login.microsoftonline.com).
func NewClientCredentialsProvider(loginURL, tenant, clientID, clientSecret string, scopes ...string) *ClientCredentialsProvider {
	if len(scopes) == 0 {
		scopes = []string{GraphScope}
	}
	return &ClientCredentialsProvider{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimSuffix(loginURL, "/"), tenant),
			Scopes:       scopes,
		},
	}
}

func (p *ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	if p.config.ClientID == "" || p.config.ClientSecret == "" {
		return "", newError(CodeUnauthorized, "token", errors.New("client credentials not configured"))
	}
	token, err := p.config.Token(ctx)
	if err != nil {
		return "", newError(CodeUnauthorized, "token", fmt.Errorf("token acquisition failed: %w", err))
	}
	if token.AccessToken == "" {
		return "", newError(CodeUnauthorized, "token", errors.New("token response has no access_token"))
	}
	return token.AccessToken, nil
}
