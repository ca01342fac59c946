package auth

import (
	"time"

	"capstan/internal/github"
)

// Status enumerates the authenticator states.
type Status string

const (
	StatusSignedOut Status = "signed-out"
	StatusStarting  Status = "starting"
	StatusPending   Status = "pending"
	StatusVerifying Status = "verifying"
	StatusSignedIn  Status = "signed-in"
	StatusDenied    Status = "denied"
	StatusError     Status = "error"
)

// Terminal reports whether the status ends a login attempt.
func (s Status) Terminal() bool {
	switch s {
	case StatusSignedOut, StatusSignedIn, StatusDenied, StatusError:
		return true
	}
	return false
}

// Identity is the verified account behind a credential.
type Identity struct {
	Login       string `json:"login"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	ProfileURL  string `json:"profileUrl,omitempty"`
}

// DeviceFlow is an in-progress device authorization. It is immutable apart
// from the polling interval, which only grows in response to slow_down.
type DeviceFlow struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	ExpiresAt       time.Time
	Message         string
}

// Expired reports whether the flow's device code is past its deadline.
func (f *DeviceFlow) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

// Session is a snapshot of the authenticator state. Status signed-in implies
// Token and Identity are both set and the identity passed the allowlist.
type Session struct {
	Status    Status
	Token     string
	Identity  *Identity
	Flow      *DeviceFlow
	LastError string
}

// SignedIn reports whether a verified credential is available.
func (s Session) SignedIn() bool { return s.Status == StatusSignedIn }

// Session store keys. Values are JSON documents owned by this package.
const (
	keyCredential = "credential"
	keyDeviceFlow = "device_flow"
	keyClientID   = "client_id"
)

type credentialRecord struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

type flowRecord struct {
	DeviceCode      string    `json:"device_code"`
	UserCode        string    `json:"user_code"`
	VerificationURI string    `json:"verification_uri"`
	IntervalSeconds int       `json:"interval_seconds"`
	ExpiresAt       time.Time `json:"expires_at"`
	Message         string    `json:"message,omitempty"`
}

func (r flowRecord) toFlow() *DeviceFlow {
	return &DeviceFlow{
		DeviceCode:      r.DeviceCode,
		UserCode:        r.UserCode,
		VerificationURI: r.VerificationURI,
		Interval:        time.Duration(r.IntervalSeconds) * time.Second,
		ExpiresAt:       r.ExpiresAt,
		Message:         r.Message,
	}
}

func recordFromFlow(flow *DeviceFlow) flowRecord {
	return flowRecord{
		DeviceCode:      flow.DeviceCode,
		UserCode:        flow.UserCode,
		VerificationURI: flow.VerificationURI,
		IntervalSeconds: int(flow.Interval / time.Second),
		ExpiresAt:       flow.ExpiresAt,
		Message:         flow.Message,
	}
}

func flowFromDeviceCode(code *github.DeviceCode) *DeviceFlow {
	return &DeviceFlow{
		DeviceCode:      code.DeviceCode,
		UserCode:        code.UserCode,
		VerificationURI: code.VerificationURI,
		Interval:        time.Duration(code.Interval) * time.Second,
		ExpiresAt:       code.ExpiresAt,
		Message:         code.Message,
	}
}
