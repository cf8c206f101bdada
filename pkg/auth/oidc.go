package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/campuscms/campuscms/pkg/users"
)

// OIDCConfig configures sign-in against the institution's OIDC provider
type OIDCConfig struct {
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"-"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
	GroupsClaim  string   `yaml:"groups_claim"`
}

// Validate checks the configuration is complete
func (c *OIDCConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}

	hasOpenID := false
	for _, scope := range c.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("'openid' scope is required")
	}
	return nil
}

// OIDCProvider implements OpenID Connect sign-in
type OIDCProvider struct {
	config       *OIDCConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and prepares the OAuth2 flow
func NewOIDCProvider(ctx context.Context, config *OIDCConfig) (*OIDCProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	oauth2Config := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  config.RedirectURL,
		Scopes:       config.Scopes,
	}

	return &OIDCProvider{
		config:       config,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

// InitiateLogin redirects the browser to the authorization endpoint
func (p *OIDCProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) {
	authURL := p.oauth2Config.AuthCodeURL(state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback exchanges the authorization code and verifies the ID token,
// returning the asserted user plus any group claims.
func (p *OIDCProvider) HandleCallback(ctx context.Context, r *http.Request) (*users.ExternalUser, []string, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, nil, fmt.Errorf("missing authorization code")
	}

	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	if claims.Email == "" {
		return nil, nil, fmt.Errorf("missing email claim in ID token")
	}

	ext := &users.ExternalUser{
		ExternalID: idToken.Subject,
		Email:      claims.Email,
		Username:   claims.PreferredUsername,
		FirstName:  claims.GivenName,
		LastName:   claims.FamilyName,
	}
	if ext.Username == "" {
		ext.Username = ext.Email
	}

	var groups []string
	if p.config.GroupsClaim != "" {
		var raw map[string]interface{}
		if err := idToken.Claims(&raw); err == nil {
			if values, ok := raw[p.config.GroupsClaim].([]interface{}); ok {
				for _, v := range values {
					if s, ok := v.(string); ok {
						groups = append(groups, s)
					}
				}
			}
		}
	}

	return ext, groups, nil
}
