package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAuthorizeURL = "https://github.com/login/oauth/authorize"
	DefaultTokenURL     = "https://github.com/login/oauth/access_token"
	DefaultAPIURL       = "https://api.github.com"

	defaultHTTPTimeout = 10 * time.Second
	loginScope         = "read:user"
)

// GitHubConfig configures the OAuth app and the endpoints it talks to.
// Empty URLs fall back to github.com.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthorizeURL string
	TokenURL     string
	APIURL       string
	Timeout      time.Duration
}

// GitHubClient performs the server side of the GitHub OAuth web flow.
type GitHubClient struct {
	cfg    GitHubConfig
	client *http.Client
}

// NewGitHubClient returns a client with a bounded per-request timeout and
// no retries.
func NewGitHubClient(cfg GitHubConfig) *GitHubClient {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = DefaultAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &GitHubClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// AuthorizeURL builds the URL the browser is redirected to for consent.
func (c *GitHubClient) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("scope", loginScope)
	if state != "" {
		q.Set("state", state)
	}
	sep := "?"
	if strings.Contains(c.cfg.AuthorizeURL, "?") {
		sep = "&"
	}
	return c.cfg.AuthorizeURL + sep + q.Encode()
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange trades an authorization code for an access token.
func (c *GitHubClient) Exchange(ctx context.Context, code string) (string, error) {
	const op = "exchange code"
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Op: op, Detail: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return "", &AuthError{Op: op, Detail: "token request failed", Err: err}
	}
	if status < 200 || status > 299 {
		return "", &AuthError{Op: op, Status: status, Detail: truncate(string(body), 200)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &AuthError{Op: op, Status: status, Detail: "parse token response", Err: err}
	}
	if tr.AccessToken == "" {
		detail := tr.ErrorDescription
		if detail == "" {
			detail = tr.Error
		}
		if detail == "" {
			detail = "no access_token in response"
		}
		return "", &AuthError{Op: op, Detail: detail}
	}
	return tr.AccessToken, nil
}

// FetchUser loads the profile of the token's owner.
func (c *GitHubClient) FetchUser(ctx context.Context, token string) (*Profile, error) {
	const op = "fetch user"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.APIURL, "/")+"/user", http.NoBody)
	if err != nil {
		return nil, &AuthError{Op: op, Detail: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, &AuthError{Op: op, Detail: "user request failed", Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &AuthError{Op: op, Status: status, Detail: "failed to fetch user info"}
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &AuthError{Op: op, Status: status, Detail: "parse user response", Err: err}
	}
	if p.ID == 0 {
		return nil, &AuthError{Op: op, Status: status, Detail: "user id missing from response"}
	}
	return &p, nil
}

func (c *GitHubClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
