package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"capstan/internal/config"
)

func testConfig(t *testing.T, oauthBase, apiBase string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.GitHub.ClientID = "Iv1.test"
	cfg.GitHub.AllowedLogin = "alice"
	cfg.GitHub.Owner = "alice"
	cfg.GitHub.Repo = "pipeline"
	cfg.GitHub.OAuthBaseURL = oauthBase
	cfg.GitHub.APIBaseURL = apiBase
	return &cfg
}

func newTestClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testConfig(t, server.URL, server.URL)
	return NewClient(cfg, WithHTTPClient(server.Client()), WithBaseURLs(server.URL, server.URL)), server
}

func TestRequestDeviceCode(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login/device/code" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["client_id"] != "Iv1.test" || body["scope"] != "repo" {
			t.Fatalf("unexpected request body: %#v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"device_code": "dev-1",
			"user_code": "ABCD-1234",
			"verification_uri": "https://github.com/login/device",
			"expires_in": 899,
			"interval": 5
		}`))
	}))

	code, err := client.RequestDeviceCode(context.Background())
	if err != nil {
		t.Fatalf("request device code: %v", err)
	}
	if code.DeviceCode != "dev-1" || code.UserCode != "ABCD-1234" {
		t.Fatalf("unexpected code: %+v", code)
	}
	if code.Interval != 5 {
		t.Fatalf("unexpected interval: %d", code.Interval)
	}
	if until := time.Until(code.ExpiresAt); until < 14*time.Minute || until > 15*time.Minute {
		t.Fatalf("unexpected expiry horizon: %v", until)
	}
}

func TestPollDeviceTokenOutcomes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"pending", `{"error":"authorization_pending"}`, ErrAuthorizationPending},
		{"slow down", `{"error":"slow_down"}`, ErrSlowDown},
		{"expired", `{"error":"expired_token"}`, ErrTokenExpired},
		{"denied", `{"error":"access_denied"}`, ErrAccessDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			_, err := client.PollDeviceToken(context.Background(), "dev-1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPollDeviceTokenSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login/oauth/access_token" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["grant_type"] != grantType {
			t.Fatalf("unexpected grant type %q", body["grant_type"])
		}
		if body["device_code"] != "dev-1" {
			t.Fatalf("unexpected device code %q", body["device_code"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer","scope":"repo"}`))
	}))

	grant, err := client.PollDeviceToken(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if grant.AccessToken != "gho_abc" {
		t.Fatalf("unexpected grant: %+v", grant)
	}
}

func TestFetchUser(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gho_abc" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login":"alice","name":"Alice","avatar_url":"https://example.com/a.png","html_url":"https://github.com/alice"}`))
	}))

	user, err := client.FetchUser(context.Background(), "gho_abc")
	if err != nil {
		t.Fatalf("fetch user: %v", err)
	}
	if user.Login != "alice" || user.Name != "Alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestFetchUserUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.FetchUser(context.Background(), "gho_stale")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDispatch(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/alice/pipeline/dispatches" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			EventType     string         `json:"event_type"`
			ClientPayload map[string]any `json:"client_payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.EventType != "translate-ar" {
			t.Fatalf("unexpected event type %q", body.EventType)
		}
		if body.ClientPayload["videoId"] != "vid-1" || body.ClientPayload["language"] != "ar" {
			t.Fatalf("unexpected payload: %#v", body.ClientPayload)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.Dispatch(context.Background(), "gho_abc", "translate-ar", map[string]any{
		"videoId":     "vid-1",
		"language":    "ar",
		"requestedBy": "alice",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func TestDispatchSendsClientIdentifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Capstan-Client"); got != "cafebabe" {
			t.Fatalf("unexpected client identifier %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	cfg := testConfig(t, server.URL, server.URL)
	client := NewClient(cfg,
		WithHTTPClient(server.Client()),
		WithBaseURLs(server.URL, server.URL),
		WithClientIdentifier("cafebabe"))

	if err := client.Dispatch(context.Background(), "gho_abc", "download", map[string]any{"videoId": "vid-1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func TestDispatchFailureCarriesStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid event type"}`))
	}))

	err := client.Dispatch(context.Background(), "gho_abc", "bogus", map[string]any{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", statusErr.Code)
	}
}

func TestFetchContents(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/alice/pipeline/contents/db/index.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ref"); got != "main" {
			t.Fatalf("unexpected ref %q", got)
		}
		if got := r.Header.Get("Accept"); got != rawContentType {
			t.Fatalf("unexpected accept header %q", got)
		}
		_, _ = w.Write([]byte(`{"version":1,"videos":[]}`))
	}))

	data, err := client.FetchContents(context.Background(), "gho_abc")
	if err != nil {
		t.Fatalf("fetch contents: %v", err)
	}
	if string(data) != `{"version":1,"videos":[]}` {
		t.Fatalf("unexpected document: %s", data)
	}
}
