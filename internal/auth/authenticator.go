package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"capstan/internal/github"
	"capstan/internal/logging"
	"capstan/internal/poll"
	"capstan/internal/session"
)

// slowDownIncrement is added to the polling cadence on every slow_down
// response. The interval only ever grows within one flow.
const slowDownIncrement = 5 * time.Second

// Option customises Authenticator construction.
type Option func(*Authenticator)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// Authenticator owns the one AuthSession per process and drives the OAuth
// device authorization grant: code request, cancellable token polling with
// slow_down backoff, persistence of in-progress flows for restart recovery,
// and the post-grant identity verification handoff.
//
// Every state mutation happens under the mutex and is tagged with a
// generation counter. Cancellation and logout bump the generation, so a poll
// or verification that was already in flight when the operator bailed out
// can no longer apply its outcome: a stale poll must never resurrect a
// session from a discarded token.
type Authenticator struct {
	client   github.Client
	verifier *Verifier
	store    session.Store
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	gen     uint64
	session Session
	task    *poll.Task
	changed chan struct{}
}

// NewAuthenticator builds an Authenticator starting from the signed-out state.
func NewAuthenticator(client github.Client, verifier *Verifier, store session.Store, logger *slog.Logger, opts ...Option) *Authenticator {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Authenticator{
		client:   client,
		verifier: verifier,
		store:    store,
		logger:   logger.With(logging.String("component", "auth")),
		now:      time.Now,
		session:  Session{Status: StatusSignedOut},
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Session returns a snapshot of the current state.
func (a *Authenticator) Session() Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Token returns the signed-in credential or ErrAuthenticationRequired.
func (a *Authenticator) Token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.Status != StatusSignedIn || a.session.Token == "" {
		return "", ErrAuthenticationRequired
	}
	return a.session.Token, nil
}

// Identity returns the verified identity if signed in.
func (a *Authenticator) Identity() (Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.Status != StatusSignedIn || a.session.Identity == nil {
		return Identity{}, false
	}
	return *a.session.Identity, true
}

// ClientID returns the stable per-install client identifier, creating and
// persisting one on first use.
func (a *Authenticator) ClientID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if value, ok, err := a.store.Get(keyClientID); err == nil && ok && strings.TrimSpace(value) != "" {
		return value
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := a.store.Set(keyClientID, id); err != nil {
		a.logger.Warn("persist client identifier", logging.Error(err))
	}
	return id
}

// Resume restores authentication state at process start. A stored credential
// takes priority and is silently re-verified; failing that, a stored
// non-expired device flow resumes polling at its recorded interval with the
// original absolute deadline. An expired stored flow is discarded, never
// resumed.
func (a *Authenticator) Resume(ctx context.Context) error {
	gen := a.interrupt(nil)

	if record, ok := a.loadCredential(); ok {
		a.apply(gen, func(a *Authenticator) {
			a.session = Session{Status: StatusVerifying}
		})
		return a.finishVerification(ctx, gen, record.Token)
	}

	flow, ok := a.loadFlow()
	if !ok {
		return nil
	}
	if flow.Expired(a.now()) {
		if err := a.store.Delete(keyDeviceFlow); err != nil {
			a.logger.Warn("discard expired device flow", logging.Error(err))
		}
		return nil
	}

	a.apply(gen, func(a *Authenticator) {
		a.session = Session{Status: StatusPending, Flow: flow}
	})
	a.startPolling(gen, flow)
	return nil
}

// StartLogin begins a device flow. If a non-expired flow is already pending
// it is returned as-is instead of requesting a new device code; otherwise any
// previous flow is discarded first.
func (a *Authenticator) StartLogin(ctx context.Context) (*DeviceFlow, error) {
	a.mu.Lock()
	if a.session.Status == StatusPending && a.session.Flow != nil && !a.session.Flow.Expired(a.now()) {
		flow := *a.session.Flow
		a.mu.Unlock()
		return &flow, nil
	}
	a.mu.Unlock()

	gen := a.interrupt(func(a *Authenticator) {
		if err := a.store.Delete(keyDeviceFlow); err != nil {
			a.logger.Warn("discard previous device flow", logging.Error(err))
		}
		a.session = Session{Status: StatusStarting}
	})

	code, err := a.client.RequestDeviceCode(ctx)
	if err != nil {
		a.apply(gen, func(a *Authenticator) {
			a.session = Session{Status: StatusError, LastError: err.Error()}
		})
		return nil, err
	}

	flow := flowFromDeviceCode(code)
	applied := a.apply(gen, func(a *Authenticator) {
		a.persistFlow(flow)
		a.session = Session{Status: StatusPending, Flow: flow}
	})
	if !applied {
		return nil, errors.New("login cancelled")
	}

	a.startPolling(gen, flow)
	snapshot := *flow
	return &snapshot, nil
}

// Await blocks until the login attempt reaches a terminal state or the
// context is cancelled.
func (a *Authenticator) Await(ctx context.Context) (Session, error) {
	for {
		a.mu.Lock()
		snapshot := a.snapshotLocked()
		changed := a.changed
		a.mu.Unlock()

		if snapshot.Status.Terminal() {
			return snapshot, nil
		}
		select {
		case <-ctx.Done():
			return snapshot, ctx.Err()
		case <-changed:
		}
	}
}

// CancelLogin aborts an in-progress device flow. Polling is stopped before
// CancelLogin returns and the persisted flow is cleared; outcomes of polls
// already in flight are discarded.
func (a *Authenticator) CancelLogin() {
	a.mu.Lock()
	a.gen++
	task := a.task
	a.task = nil
	switch a.session.Status {
	case StatusStarting, StatusPending, StatusVerifying:
		if err := a.store.Delete(keyDeviceFlow); err != nil {
			a.logger.Warn("clear device flow", logging.Error(err))
		}
		a.session = Session{Status: StatusSignedOut}
		a.broadcastLocked()
	}
	a.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
}

// Logout discards the credential and any persisted flow state.
func (a *Authenticator) Logout() error {
	a.mu.Lock()
	a.gen++
	task := a.task
	a.task = nil
	err := a.store.Delete(keyCredential)
	if flowErr := a.store.Delete(keyDeviceFlow); err == nil {
		err = flowErr
	}
	a.session = Session{Status: StatusSignedOut}
	a.broadcastLocked()
	a.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	return err
}

// interrupt bumps the generation, detaches and cancels any running poll task,
// and optionally applies a state mutation under the new generation.
func (a *Authenticator) interrupt(fn func(*Authenticator)) uint64 {
	a.mu.Lock()
	a.gen++
	gen := a.gen
	task := a.task
	a.task = nil
	if fn != nil {
		fn(a)
		a.broadcastLocked()
	}
	a.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	return gen
}

func (a *Authenticator) startPolling(gen uint64, flow *DeviceFlow) {
	task := poll.Start(flow.Interval, func() bool {
		return a.pollOnce(gen, flow)
	})

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		task.Cancel()
		return
	}
	a.task = task
	// A slow_down handled before this registration has already raised
	// flow.Interval; re-sync so the cadence change is never lost.
	task.SetInterval(flow.Interval)
	a.mu.Unlock()
}

func (a *Authenticator) pollOnce(gen uint64, flow *DeviceFlow) bool {
	if flow.Expired(a.now()) {
		a.apply(gen, func(a *Authenticator) {
			a.clearFlow()
			a.session = Session{Status: StatusError, LastError: ErrDeviceFlowExpired.Error()}
		})
		return false
	}

	grant, err := a.client.PollDeviceToken(context.Background(), flow.DeviceCode)
	switch {
	case err == nil:
		a.completeGrant(gen, grant.AccessToken)
		return false
	case errors.Is(err, github.ErrAuthorizationPending):
		return true
	case errors.Is(err, github.ErrSlowDown):
		a.apply(gen, func(a *Authenticator) {
			// flow.Interval is the authority; the increase must land even if
			// this tick won the race against the task registration in
			// startPolling.
			flow.Interval += slowDownIncrement
			if a.task != nil {
				a.task.SetInterval(flow.Interval)
			}
			a.persistFlow(flow)
			a.logger.Debug("token poll slowed down", logging.Duration("interval", flow.Interval))
		})
		return true
	case errors.Is(err, github.ErrTokenExpired):
		a.apply(gen, func(a *Authenticator) {
			a.clearFlow()
			a.session = Session{Status: StatusError, LastError: ErrDeviceFlowExpired.Error()}
		})
		return false
	case errors.Is(err, github.ErrAccessDenied):
		a.apply(gen, func(a *Authenticator) {
			a.clearFlow()
			a.session = Session{Status: StatusError, LastError: ErrDeviceFlowDenied.Error()}
		})
		return false
	default:
		a.apply(gen, func(a *Authenticator) {
			a.clearFlow()
			a.session = Session{Status: StatusError, LastError: err.Error()}
		})
		return false
	}
}

func (a *Authenticator) completeGrant(gen uint64, token string) {
	applied := a.apply(gen, func(a *Authenticator) {
		a.clearFlow()
		a.session = Session{Status: StatusVerifying}
	})
	if !applied {
		return
	}
	if err := a.finishVerification(context.Background(), gen, token); err != nil {
		a.logger.Warn("post-grant verification failed", logging.Error(err))
	}
}

// finishVerification resolves the identity behind token and settles the
// session. The credential is persisted only on an allowlisted success; every
// failure path discards it.
func (a *Authenticator) finishVerification(ctx context.Context, gen uint64, token string) error {
	identity, err := a.verifier.Verify(ctx, token)
	if err != nil {
		var denied *DeniedError
		status := StatusError
		if errors.As(err, &denied) {
			status = StatusDenied
		}
		a.apply(gen, func(a *Authenticator) {
			if clearErr := a.store.Delete(keyCredential); clearErr != nil {
				a.logger.Warn("discard credential", logging.Error(clearErr))
			}
			a.session = Session{Status: status, LastError: err.Error()}
		})
		return err
	}

	a.apply(gen, func(a *Authenticator) {
		a.persistCredential(token)
		a.session = Session{Status: StatusSignedIn, Token: token, Identity: identity}
	})
	return nil
}

func (a *Authenticator) apply(gen uint64, fn func(*Authenticator)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return false
	}
	fn(a)
	a.broadcastLocked()
	return true
}

func (a *Authenticator) broadcastLocked() {
	close(a.changed)
	a.changed = make(chan struct{})
}

func (a *Authenticator) snapshotLocked() Session {
	snapshot := a.session
	if a.session.Flow != nil {
		flow := *a.session.Flow
		snapshot.Flow = &flow
	}
	if a.session.Identity != nil {
		identity := *a.session.Identity
		snapshot.Identity = &identity
	}
	return snapshot
}

func (a *Authenticator) persistFlow(flow *DeviceFlow) {
	data, err := json.Marshal(recordFromFlow(flow))
	if err == nil {
		err = a.store.Set(keyDeviceFlow, string(data))
	}
	if err != nil {
		a.logger.Warn("persist device flow", logging.Error(err))
	}
}

func (a *Authenticator) persistCredential(token string) {
	data, err := json.Marshal(credentialRecord{Token: token, SavedAt: a.now()})
	if err == nil {
		err = a.store.Set(keyCredential, string(data))
	}
	if err != nil {
		a.logger.Warn("persist credential", logging.Error(err))
	}
}

func (a *Authenticator) clearFlow() {
	if err := a.store.Delete(keyDeviceFlow); err != nil {
		a.logger.Warn("clear device flow", logging.Error(err))
	}
}

func (a *Authenticator) loadCredential() (credentialRecord, bool) {
	value, ok, err := a.store.Get(keyCredential)
	if err != nil || !ok {
		if err != nil {
			a.logger.Warn("load credential", logging.Error(err))
		}
		return credentialRecord{}, false
	}
	var record credentialRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil || record.Token == "" {
		a.logger.Warn("discard unreadable credential record", logging.Error(err))
		_ = a.store.Delete(keyCredential)
		return credentialRecord{}, false
	}
	return record, true
}

func (a *Authenticator) loadFlow() (*DeviceFlow, bool) {
	value, ok, err := a.store.Get(keyDeviceFlow)
	if err != nil || !ok {
		if err != nil {
			a.logger.Warn("load device flow", logging.Error(err))
		}
		return nil, false
	}
	var record flowRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil || record.DeviceCode == "" {
		a.logger.Warn("discard unreadable device flow record", logging.Error(err))
		_ = a.store.Delete(keyDeviceFlow)
		return nil, false
	}
	flow := record.toFlow()
	if flow.Interval <= 0 {
		flow.Interval = 5 * time.Second
	}
	return flow, true
}
