// Package oauth speaks the authorization-code and refresh-token flows against
// the configured identity provider.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/invoke"
)

// TokenResponse is the provider's token-endpoint reply.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type,omitempty"`
}

// UserInfo is the provider's userinfo reply.
type UserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// DisplayName prefers the profile name, falling back to the email local part.
func (u UserInfo) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// Client calls the provider endpoints configured for this deployment.
type Client struct {
	cfg    config.OAuthConfig
	client *http.Client
}

// New builds an OAuth client from config.
func New(cfg config.OAuthConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthURL builds the authorization URL for a login attempt. access_type and
// prompt force the provider to issue a refresh token even for re-consents.
func (c *Client) AuthURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	if state != "" {
		q.Set("state", state)
	}
	return c.cfg.AuthURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	return c.tokenRequest(ctx, form)
}

// Refresh trades a refresh token for a new access token. An invalid_grant
// reply means the refresh token itself is dead and the account must log in
// again, so it maps to AUTH_EXPIRED.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, form)
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (TokenResponse, error) {
	if c.cfg.TokenURL == "" {
		return TokenResponse{}, invoke.Errorf(invoke.CodeUpstreamError, "oauth token endpoint not configured")
	}
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return TokenResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var provider struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &provider)
		if provider.Error == "invalid_grant" {
			return TokenResponse{}, invoke.Errorf(invoke.CodeAuthExpired, "refresh token no longer valid: %s", provider.Description)
		}
		return TokenResponse{}, invoke.Errorf(invoke.CodeUpstreamError, "token endpoint returned %d: %s", resp.StatusCode, body)
	}
	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return TokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	return token, nil
}

// FetchUserInfo loads the profile behind an access token.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	if c.cfg.UserinfoURL == "" {
		return UserInfo{}, invoke.Errorf(invoke.CodeUpstreamError, "oauth userinfo endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserinfoURL, nil)
	if err != nil {
		return UserInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return UserInfo{}, invoke.Errorf(invoke.CodeAuthExpired, "userinfo endpoint rejected access token")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return UserInfo{}, invoke.Errorf(invoke.CodeUpstreamError, "userinfo endpoint returned %d", resp.StatusCode)
	}
	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return UserInfo{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Email == "" {
		return UserInfo{}, invoke.Errorf(invoke.CodeUpstreamError, "userinfo reply carries no email")
	}
	return info, nil
}
