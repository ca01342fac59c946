package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"capstan/internal/auth"
	"capstan/internal/catalog"
	"capstan/internal/github"
	"capstan/internal/journal"
	"capstan/internal/statusdoc"
)

type fakeSession struct {
	token string
	login string
}

func (s *fakeSession) Token() (string, error) {
	if s.token == "" {
		return "", auth.ErrAuthenticationRequired
	}
	return s.token, nil
}

func (s *fakeSession) Identity() (auth.Identity, bool) {
	if s.login == "" {
		return auth.Identity{}, false
	}
	return auth.Identity{Login: s.login}, true
}

type dispatchCall struct {
	event   string
	payload map[string]any
}

type fakeClient struct {
	mu         sync.Mutex
	dispatches []dispatchCall
	failVideos map[string]error
	gate       chan struct{}
	document   []byte
	fetchErr   error
	fetchCount int
}

func (f *fakeClient) RequestDeviceCode(ctx context.Context) (*github.DeviceCode, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) PollDeviceToken(ctx context.Context, deviceCode string) (*github.TokenGrant, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) FetchUser(ctx context.Context, token string) (*github.User, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) Dispatch(ctx context.Context, token, eventType string, clientPayload map[string]any) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, dispatchCall{event: eventType, payload: clientPayload})
	videoID, _ := clientPayload["videoId"].(string)
	if err, ok := f.failVideos[videoID]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) FetchContents(ctx context.Context, token string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCount++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.document, nil
}

func (f *fakeClient) calls() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatchCall, len(f.dispatches))
	copy(out, f.dispatches)
	return out
}

func (f *fakeClient) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCount
}

type recordedJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (r *recordedJournal) Record(ctx context.Context, entry journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func testDocument(t *testing.T, videos ...statusdoc.Video) []byte {
	t.Helper()
	data, err := json.Marshal(statusdoc.Document{Version: 1, UpdatedAt: time.Now(), Videos: videos})
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	return data
}

func video(id string, downloadDone bool) statusdoc.Video {
	status := statusdoc.StepPending
	if downloadDone {
		status = statusdoc.StepCompleted
	}
	return statusdoc.Video{
		ID:        id,
		Title:     "Video " + id,
		SourceURL: "https://youtu.be/" + id,
		ChannelID: "chan-1",
		Download:  statusdoc.Step{Status: status},
	}
}

func newTestOrchestrator(t *testing.T, client *fakeClient, opts ...Option) *Orchestrator {
	t.Helper()
	return New(client, &fakeSession{token: "gho_abc", login: "alice"}, nil, opts...)
}

func TestRunWorkflowBuildsPayloadAndRefreshes(t *testing.T) {
	client := &fakeClient{document: testDocument(t, video("vid-1", true))}
	o := newTestOrchestrator(t, client)
	if _, err := o.LoadStatusDocument(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := o.RunWorkflow(context.Background(), catalog.KindTranslateAr, "vid-1", nil); err != nil {
		t.Fatalf("run workflow: %v", err)
	}

	calls := client.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one trigger, got %d", len(calls))
	}
	if calls[0].event != "translate-ar" {
		t.Fatalf("unexpected event %q", calls[0].event)
	}
	payload := calls[0].payload
	if payload["videoId"] != "vid-1" || payload["language"] != "ar" || payload["requestedBy"] != "alice" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	if got := client.fetches(); got != 2 {
		t.Fatalf("expected load + post-dispatch refresh, got %d fetches", got)
	}
	if state := o.State(); state.InFlight || state.LastError != "" {
		t.Fatalf("unexpected state after success: %+v", state)
	}
}

func TestRunWorkflowDownloadCarriesNoLanguage(t *testing.T) {
	client := &fakeClient{document: testDocument(t, video("vid-1", false))}
	o := newTestOrchestrator(t, client)
	if _, err := o.LoadStatusDocument(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := o.RunWorkflow(context.Background(), catalog.KindDownload, "vid-1", nil); err != nil {
		t.Fatalf("run workflow: %v", err)
	}

	payload := client.calls()[0].payload
	if _, ok := payload["language"]; ok {
		t.Fatalf("download payload must not carry language: %#v", payload)
	}
	if payload["sourceUrl"] != "https://youtu.be/vid-1" || payload["channelId"] != "chan-1" {
		t.Fatalf("expected source fields from the document: %#v", payload)
	}
}

func TestRunWorkflowRequiresAuthentication(t *testing.T) {
	client := &fakeClient{}
	o := New(client, &fakeSession{}, nil)

	err := o.RunWorkflow(context.Background(), catalog.KindDownload, "vid-1", nil)
	if !errors.Is(err, auth.ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
	if len(client.calls()) != 0 {
		t.Fatal("unauthenticated call must not trigger")
	}
}

func TestRunWorkflowFailureSkipsRefresh(t *testing.T) {
	client := &fakeClient{
		document:   testDocument(t, video("vid-1", true)),
		failVideos: map[string]error{"vid-1": errors.New("github POST /dispatches returned 422")},
	}
	o := newTestOrchestrator(t, client)

	err := o.RunWorkflow(context.Background(), catalog.KindTranscribe, "vid-1", nil)
	var trigger *TriggerError
	if !errors.As(err, &trigger) {
		t.Fatalf("expected TriggerError, got %v", err)
	}
	if trigger.VideoID != "vid-1" {
		t.Fatalf("unexpected failure target %q", trigger.VideoID)
	}
	if got := client.fetches(); got != 0 {
		t.Fatalf("failed trigger must not refresh, got %d fetches", got)
	}
	if state := o.State(); state.LastError == "" || state.InFlight {
		t.Fatalf("unexpected state after failure: %+v", state)
	}
}

func TestRunWorkflowRejectsOverlap(t *testing.T) {
	client := &fakeClient{
		document: testDocument(t, video("vid-1", true)),
		gate:     make(chan struct{}),
	}
	o := newTestOrchestrator(t, client)

	done := make(chan error, 1)
	go func() {
		done <- o.RunWorkflow(context.Background(), catalog.KindTranscribe, "vid-1", nil)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !o.State().InFlight {
		if time.Now().After(deadline) {
			t.Fatal("first dispatch never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := o.RunWorkflow(context.Background(), catalog.KindSplit, "vid-1", nil); !errors.Is(err, ErrDispatchInFlight) {
		t.Fatalf("expected ErrDispatchInFlight, got %v", err)
	}

	close(client.gate)
	if err := <-done; err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if len(client.calls()) != 1 {
		t.Fatalf("overlap must not trigger twice, got %d calls", len(client.calls()))
	}
}

func TestRunBulkWorkflowFiltersIneligibleTargets(t *testing.T) {
	client := &fakeClient{document: testDocument(t, video("vid-1", true), video("vid-2", false))}
	o := newTestOrchestrator(t, client)
	if _, err := o.LoadStatusDocument(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	triggered, err := o.RunBulkWorkflow(context.Background(), catalog.KindDownload, []string{"vid-1", "vid-2"}, nil)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if triggered != 1 {
		t.Fatalf("expected 1 trigger, got %d", triggered)
	}

	calls := client.calls()
	if len(calls) != 1 || calls[0].payload["videoId"] != "vid-2" {
		t.Fatalf("only vid-2 should receive a trigger: %#v", calls)
	}
	if got := client.fetches(); got != 2 {
		t.Fatalf("expected load + one post-batch refresh, got %d fetches", got)
	}
}

func TestRunBulkWorkflowAggregatesFailures(t *testing.T) {
	client := &fakeClient{
		document:   testDocument(t, video("vid-1", false), video("vid-2", false)),
		failVideos: map[string]error{"vid-2": errors.New("github POST /dispatches returned 500")},
	}
	o := newTestOrchestrator(t, client)
	if _, err := o.LoadStatusDocument(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	triggered, err := o.RunBulkWorkflow(context.Background(), catalog.KindDownload, []string{"vid-1", "vid-2"}, nil)
	if triggered != 2 {
		t.Fatalf("both targets should be attempted, got %d", triggered)
	}
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if len(batch.Failures) != 1 || batch.Failures[0].VideoID != "vid-2" {
		t.Fatalf("batch error should name vid-2: %v", batch)
	}
	// The refresh still runs so the view reflects the partial success.
	if got := client.fetches(); got != 2 {
		t.Fatalf("expected load + one post-batch refresh, got %d fetches", got)
	}
}

func TestRunBulkWorkflowEmptyBatchIsNoOp(t *testing.T) {
	client := &fakeClient{}
	o := newTestOrchestrator(t, client)

	triggered, err := o.RunBulkWorkflow(context.Background(), catalog.KindDownload, nil, nil)
	if err != nil || triggered != 0 {
		t.Fatalf("empty batch: triggered=%d err=%v", triggered, err)
	}
	if len(client.calls()) != 0 || client.fetches() != 0 {
		t.Fatal("empty batch must not touch the network")
	}
}

func TestFailedFetchKeepsPriorDocument(t *testing.T) {
	client := &fakeClient{document: testDocument(t, video("vid-1", true))}
	o := newTestOrchestrator(t, client)

	first, err := o.LoadStatusDocument(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	client.mu.Lock()
	client.fetchErr = errors.New("github GET /contents returned 502")
	client.mu.Unlock()

	if _, err := o.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	doc, ok := o.Document()
	if !ok || doc != first {
		t.Fatal("stale document must survive a failed refresh")
	}
	state := o.State()
	if state.LastError == "" || state.Loading || state.Refreshing {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestRunWorkflowRecordsJournalEntries(t *testing.T) {
	recorder := &recordedJournal{}
	client := &fakeClient{
		document:   testDocument(t, video("vid-1", true), video("vid-2", true)),
		failVideos: map[string]error{"vid-2": errors.New("github POST /dispatches returned 422")},
	}
	o := newTestOrchestrator(t, client, WithRecorder(recorder))
	if _, err := o.LoadStatusDocument(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := o.RunWorkflow(context.Background(), catalog.KindTranscribe, "vid-1", nil); err != nil {
		t.Fatalf("run workflow: %v", err)
	}
	if err := o.RunWorkflow(context.Background(), catalog.KindTranscribe, "vid-2", nil); err == nil {
		t.Fatal("expected trigger failure")
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(recorder.entries))
	}
	if recorder.entries[0].Outcome != journal.OutcomeDispatched || recorder.entries[0].Actor != "alice" {
		t.Fatalf("unexpected first entry: %+v", recorder.entries[0])
	}
	if recorder.entries[1].Outcome != journal.OutcomeFailed || recorder.entries[1].Detail == "" {
		t.Fatalf("unexpected second entry: %+v", recorder.entries[1])
	}
}
