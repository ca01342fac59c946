package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"capstan/internal/auth"
	"capstan/internal/catalog"
	"capstan/internal/github"
	"capstan/internal/journal"
	"capstan/internal/logging"
	"capstan/internal/statusdoc"
)

// Session supplies the authenticated credential and identity behind every
// orchestrator operation.
type Session interface {
	Token() (string, error)
	Identity() (auth.Identity, bool)
}

// Recorder receives one journal entry per trigger attempt.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// Option customises Orchestrator construction.
type Option func(*Orchestrator)

// WithRecorder attaches a dispatch journal.
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

// State is a snapshot of orchestrator progress flags.
type State struct {
	InFlight    bool
	ActiveLabel string
	Loading     bool
	Refreshing  bool
	LastError   string
	FetchedAt   time.Time
}

// Orchestrator turns operator actions into authenticated repository_dispatch
// triggers and keeps the last successfully fetched status document.
//
// A single in-flight flag covers every dispatch operation end to end, from
// before the trigger call until after the post-success refresh, so two
// overlapping operator actions can never issue duplicate triggers. The local
// document is only ever replaced wholesale by a successful fetch; a failed
// fetch records an error and leaves the stale-but-valid document in place.
type Orchestrator struct {
	client   github.Client
	session  Session
	recorder Recorder
	logger   *slog.Logger

	mu          sync.Mutex
	inFlight    bool
	activeLabel string
	loading     bool
	refreshing  bool
	lastError   string
	doc         *statusdoc.Document
	fetchedAt   time.Time
}

// New builds an Orchestrator with no document loaded.
func New(client github.Client, session Session, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		client:  client,
		session: session,
		logger:  logger.With(logging.String("component", "dispatch")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LoadStatusDocument fetches the remote status document. It requires a
// signed-in session and never clobbers a previously loaded document on
// failure.
func (o *Orchestrator) LoadStatusDocument(ctx context.Context) (*statusdoc.Document, error) {
	return o.fetch(ctx, false)
}

// Refresh re-fetches the status document under the distinct refreshing flag.
func (o *Orchestrator) Refresh(ctx context.Context) (*statusdoc.Document, error) {
	return o.fetch(ctx, true)
}

// Document returns the last successfully fetched status document, if any.
func (o *Orchestrator) Document() (*statusdoc.Document, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc, o.doc != nil
}

// State returns a snapshot of the progress flags.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		InFlight:    o.inFlight,
		ActiveLabel: o.activeLabel,
		Loading:     o.loading,
		Refreshing:  o.refreshing,
		LastError:   o.lastError,
		FetchedAt:   o.fetchedAt,
	}
}

// RunWorkflow triggers one workflow for one video. The catalog resolves the
// event and payload; the requesting identity is injected as requestedBy
// unless an override supplies one. On trigger success the document is
// refreshed so local state converges to whatever the remote automation
// writes; on trigger failure the refresh is skipped.
func (o *Orchestrator) RunWorkflow(ctx context.Context, kind catalog.Kind, videoID string, overrides map[string]any) error {
	token, err := o.session.Token()
	if err != nil {
		return err
	}
	workflow, ok := catalog.Lookup(kind)
	if !ok {
		return fmt.Errorf("unknown workflow %q (expected one of %s)", kind, catalog.KindNames())
	}

	if err := o.begin(workflow.Label); err != nil {
		return err
	}
	defer o.end()

	payload, err := workflow.BuildPayload(videoID, o.actor(), o.target(videoID), overrides)
	if err != nil {
		return err
	}

	if err := o.trigger(ctx, token, workflow, videoID, payload); err != nil {
		o.setLastError(err)
		return err
	}

	o.logger.Info("workflow triggered",
		logging.String("event", workflow.Event),
		logging.String("video", videoID))
	if _, err := o.fetch(ctx, true); err != nil {
		o.logger.Warn("post-dispatch refresh failed", logging.Error(err))
	}
	return nil
}

// RunBulkWorkflow triggers one workflow for every eligible video in the
// batch, concurrently. It returns the number of triggers issued. The batch
// fails if any trigger fails, but triggers that landed are not rolled back;
// one refresh follows the fan-out regardless of partial failure so local
// state reflects whatever subset took effect.
func (o *Orchestrator) RunBulkWorkflow(ctx context.Context, kind catalog.Kind, videoIDs []string, overrides map[string]any) (int, error) {
	if len(videoIDs) == 0 {
		return 0, nil
	}
	token, err := o.session.Token()
	if err != nil {
		return 0, err
	}
	workflow, ok := catalog.Lookup(kind)
	if !ok {
		return 0, fmt.Errorf("unknown workflow %q (expected one of %s)", kind, catalog.KindNames())
	}

	if err := o.begin(workflow.Label); err != nil {
		return 0, err
	}
	defer o.end()

	type job struct {
		videoID string
		target  *statusdoc.Video
	}
	var jobs []job
	for _, videoID := range videoIDs {
		target := o.target(videoID)
		if !workflow.Eligible(target) {
			o.logger.Debug("skipping ineligible target",
				logging.String("event", workflow.Event),
				logging.String("video", videoID))
			continue
		}
		jobs = append(jobs, job{videoID: videoID, target: target})
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	actor := o.actor()
	failures := make([]*TriggerError, len(jobs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		group.Go(func() error {
			payload, err := workflow.BuildPayload(j.videoID, actor, j.target, overrides)
			if err == nil {
				err = o.trigger(groupCtx, token, workflow, j.videoID, payload)
			}
			if err != nil {
				var trigger *TriggerError
				if !errors.As(err, &trigger) {
					trigger = &TriggerError{Event: workflow.Event, VideoID: j.videoID, Err: err}
				}
				failures[i] = trigger
			}
			// Sibling triggers keep going on failure; the batch error is
			// aggregated after the fan-out.
			return nil
		})
	}
	_ = group.Wait()

	if _, err := o.fetch(ctx, true); err != nil {
		o.logger.Warn("post-batch refresh failed", logging.Error(err))
	}

	var collected []*TriggerError
	for _, failure := range failures {
		if failure != nil {
			collected = append(collected, failure)
		}
	}
	if len(collected) > 0 {
		batchErr := &BatchError{Event: workflow.Event, Attempted: len(jobs), Failures: collected}
		o.setLastError(batchErr)
		return len(jobs), batchErr
	}
	return len(jobs), nil
}

func (o *Orchestrator) fetch(ctx context.Context, refreshing bool) (*statusdoc.Document, error) {
	token, err := o.session.Token()
	if err != nil {
		o.mu.Lock()
		o.loading, o.refreshing = false, false
		o.mu.Unlock()
		return nil, err
	}

	o.mu.Lock()
	if refreshing {
		o.refreshing = true
	} else {
		o.loading = true
	}
	o.mu.Unlock()

	data, err := o.client.FetchContents(ctx, token)
	var doc *statusdoc.Document
	if err == nil {
		doc, err = statusdoc.Decode(data)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.loading, o.refreshing = false, false
	if err != nil {
		o.lastError = err.Error()
		return nil, fmt.Errorf("load status document: %w", err)
	}
	o.doc = doc
	o.fetchedAt = time.Now()
	o.lastError = ""
	return doc, nil
}

func (o *Orchestrator) trigger(ctx context.Context, token string, workflow catalog.Workflow, videoID string, payload map[string]any) error {
	err := o.client.Dispatch(ctx, token, workflow.Event, payload)
	o.record(ctx, workflow.Event, videoID, err)
	if err != nil {
		return &TriggerError{Event: workflow.Event, VideoID: videoID, Err: err}
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, event, videoID string, triggerErr error) {
	if o.recorder == nil {
		return
	}
	entry := journal.Entry{
		Event:   event,
		VideoID: videoID,
		Actor:   o.actor(),
		Outcome: journal.OutcomeDispatched,
	}
	if triggerErr != nil {
		entry.Outcome = journal.OutcomeFailed
		entry.Detail = triggerErr.Error()
	}
	if err := o.recorder.Record(ctx, entry); err != nil {
		o.logger.Warn("record dispatch journal entry", logging.Error(err))
	}
}

func (o *Orchestrator) begin(label string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return ErrDispatchInFlight
	}
	o.inFlight = true
	o.activeLabel = label
	o.lastError = ""
	return nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight = false
	o.activeLabel = ""
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastError = err.Error()
}

func (o *Orchestrator) actor() string {
	if identity, ok := o.session.Identity(); ok {
		return identity.Login
	}
	return ""
}

// target returns a copy of the video's current record from the last fetch,
// or nil if the video is not in the document yet.
func (o *Orchestrator) target(videoID string) *statusdoc.Video {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doc == nil {
		return nil
	}
	video, ok := o.doc.Video(videoID)
	if !ok {
		return nil
	}
	snapshot := *video
	return &snapshot
}
