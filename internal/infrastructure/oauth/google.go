package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/baechuer/storefront-auth/internal/domain"
)

const (
	googleAuthEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenEndpoint    = "https://oauth2.googleapis.com/token"
	googleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleClient handles the Google OAuth 2.0 authorization code flow with PKCE.
type GoogleClient struct {
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client

	authEndpoint     string
	tokenEndpoint    string
	userInfoEndpoint string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	return &GoogleClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		authEndpoint:     googleAuthEndpoint,
		tokenEndpoint:    googleTokenEndpoint,
		userInfoEndpoint: googleUserInfoEndpoint,
	}
}

// withEndpoints points the client at a fake provider in tests.
func (c *GoogleClient) withEndpoints(token, userInfo string) *GoogleClient {
	c.tokenEndpoint = token
	c.userInfoEndpoint = userInfo
	return c
}

func (c *GoogleClient) IsConfigured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

func (c *GoogleClient) AuthURL(state, codeChallenge string) string {
	params := url.Values{
		"client_id":             {c.clientID},
		"redirect_uri":          {c.redirectURI},
		"response_type":         {"code"},
		"scope":                 {"openid email profile"},
		"state":                 {state},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
		"prompt":                {"select_account"},
	}
	return c.authEndpoint + "?" + params.Encode()
}

// FetchProfile exchanges the code and reads the userinfo endpoint.
func (c *GoogleClient) FetchProfile(ctx context.Context, code, codeVerifier string) (domain.OAuthProfile, error) {
	tok, err := c.exchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return domain.OAuthProfile{}, err
	}
	info, err := c.userInfo(ctx, tok.AccessToken)
	if err != nil {
		return domain.OAuthProfile{}, err
	}
	return domain.OAuthProfile{
		Provider:      domain.OAuthProviderGoogle,
		Subject:       info.Sub,
		Email:         domain.NormalizeEmail(info.Email),
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token,omitempty"`
}

func (c *GoogleClient) exchangeCode(ctx context.Context, code, codeVerifier string) (tokenResponse, error) {
	data := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"code_verifier": {codeVerifier},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.redirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tok tokenResponse
	if err := c.doJSON(req, "token exchange", &tok); err != nil {
		return tokenResponse{}, err
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, errors.New("token exchange: missing access_token")
	}
	return tok, nil
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (c *GoogleClient) userInfo(ctx context.Context, accessToken string) (userInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoEndpoint, nil)
	if err != nil {
		return userInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var info userInfo
	if err := c.doJSON(req, "userinfo", &info); err != nil {
		return userInfo{}, err
	}
	if info.Sub == "" {
		return userInfo{}, errors.New("invalid userinfo: missing sub")
	}
	return info, nil
}

func (c *GoogleClient) doJSON(req *http.Request, what string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", what, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", what, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed: status %d", what, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", what, err)
	}
	return nil
}
