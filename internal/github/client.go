package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"capstan/internal/config"
)

const (
	userAgent      = "Capstan-Go/0.1.0"
	grantType      = "urn:ietf:params:oauth:grant-type:device_code"
	rawContentType = "application/vnd.github.raw+json"
)

// Wire-level outcomes of a device-flow token poll.
var (
	ErrAuthorizationPending = errors.New("authorization pending")
	ErrSlowDown             = errors.New("slow down")
	ErrTokenExpired         = errors.New("device code expired")
	ErrAccessDenied         = errors.New("access denied")

	// ErrUnauthorized indicates the presented credential was rejected.
	ErrUnauthorized = errors.New("credential rejected")
)

// StatusError reports a non-success API response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("github %s %s returned %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("github %s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// DeviceCode is the device/user code pair issued at the start of a flow.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        int
	ExpiresAt       time.Time
	Message         string
}

// TokenGrant carries the credential issued when the operator approves a flow.
type TokenGrant struct {
	AccessToken string
	TokenType   string
	Scope       string
}

// User is the identity attached to a credential.
type User struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

// Client handles the GitHub HTTP surface Capstan needs: the device
// authorization grant, identity lookup, repository_dispatch triggers, and raw
// contents fetches.
type Client interface {
	RequestDeviceCode(ctx context.Context) (*DeviceCode, error)
	PollDeviceToken(ctx context.Context, deviceCode string) (*TokenGrant, error)
	FetchUser(ctx context.Context, token string) (*User, error)
	Dispatch(ctx context.Context, token, eventType string, clientPayload map[string]any) error
	FetchContents(ctx context.Context, token string) ([]byte, error)
}

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Option customises client construction.
type Option func(*httpClient)

// WithHTTPClient overrides the HTTP backend.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *httpClient) {
		c.client = doer
	}
}

// WithBaseURLs overrides both endpoints (used in tests).
func WithBaseURLs(oauthBase, apiBase string) Option {
	return func(c *httpClient) {
		c.oauthBase = strings.TrimRight(oauthBase, "/")
		c.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// WithClientIdentifier tags API requests with the per-install identifier
// so pipeline runs can be traced back to the operator client.
func WithClientIdentifier(id string) Option {
	return func(c *httpClient) {
		c.clientID = id
	}
}

type httpClient struct {
	cfg       config.GitHub
	oauthBase string
	apiBase   string
	clientID  string
	client    HTTPDoer
}

// NewClient constructs a GitHub client from configuration.
func NewClient(cfg *config.Config, opts ...Option) Client {
	gh := cfg.GitHub
	c := &httpClient{
		cfg:       gh,
		oauthBase: gh.OAuthBaseURL,
		apiBase:   gh.APIBaseURL,
		client:    &http.Client{Timeout: time.Duration(gh.RequestTimeout) * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: time.Duration(gh.RequestTimeout) * time.Second}
	}
	return c
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	Message         string `json:"message"`
}

func (c *httpClient) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	body := map[string]string{
		"client_id": c.cfg.ClientID,
		"scope":     c.cfg.Scope,
	}
	var resp deviceCodeResponse
	if err := c.doJSON(ctx, http.MethodPost, c.oauthBase+"/login/device/code", body, "", &resp); err != nil {
		return nil, err
	}
	if resp.DeviceCode == "" || resp.UserCode == "" {
		return nil, errors.New("github device code: incomplete response")
	}

	interval := resp.Interval
	if interval <= 0 {
		interval = 5
	}
	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 900
	}
	return &DeviceCode{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		Interval:        interval,
		ExpiresAt:       time.Now().Add(time.Duration(expiresIn) * time.Second),
		Message:         resp.Message,
	}, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *httpClient) PollDeviceToken(ctx context.Context, deviceCode string) (*TokenGrant, error) {
	body := map[string]string{
		"client_id":   c.cfg.ClientID,
		"device_code": deviceCode,
		"grant_type":  grantType,
	}
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, c.oauthBase+"/login/oauth/access_token", body, "", &resp); err != nil {
		return nil, err
	}

	switch resp.Error {
	case "":
	case "authorization_pending":
		return nil, ErrAuthorizationPending
	case "slow_down":
		return nil, ErrSlowDown
	case "expired_token":
		return nil, ErrTokenExpired
	case "access_denied":
		return nil, ErrAccessDenied
	default:
		if resp.ErrorDescription != "" {
			return nil, fmt.Errorf("github token poll: %s: %s", resp.Error, resp.ErrorDescription)
		}
		return nil, fmt.Errorf("github token poll: %s", resp.Error)
	}

	if resp.AccessToken == "" {
		return nil, errors.New("github token poll: missing access_token in response")
	}
	return &TokenGrant{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		Scope:       resp.Scope,
	}, nil
}

func (c *httpClient) FetchUser(ctx context.Context, token string) (*User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/user", nil, token, &user); err != nil {
		return nil, err
	}
	if user.Login == "" {
		return nil, errors.New("github user: missing login in response")
	}
	return &user, nil
}

func (c *httpClient) Dispatch(ctx context.Context, token, eventType string, clientPayload map[string]any) error {
	body := map[string]any{
		"event_type":     eventType,
		"client_payload": clientPayload,
	}
	path := fmt.Sprintf("%s/repos/%s/%s/dispatches", c.apiBase, c.cfg.Owner, c.cfg.Repo)
	return c.doJSON(ctx, http.MethodPost, path, body, token, nil)
}

func (c *httpClient) FetchContents(ctx context.Context, token string) ([]byte, error) {
	target := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.apiBase, c.cfg.Owner, c.cfg.Repo, c.cfg.StatusPath, url.QueryEscape(c.cfg.Branch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", rawContentType)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	if c.clientID != "" {
		req.Header.Set("X-Capstan-Client", c.clientID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.MethodGet, "/contents"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read contents: %w", err)
	}
	return data, nil
}

func (c *httpClient) doJSON(ctx context.Context, method, target string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.clientID != "" {
		req.Header.Set("X-Capstan-Client", c.clientID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, method, req.URL.Path); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode < 400 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	errBody := strings.TrimSpace(string(bodyBytes))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s %s returned %d", ErrUnauthorized, method, path, resp.StatusCode)
	}
	return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: errBody}
}
