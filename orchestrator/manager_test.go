package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moyoez/submitsession/draft"
	"github.com/moyoez/submitsession/session"
	"github.com/moyoez/submitsession/transfer"
	"github.com/moyoez/submitsession/types"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
	// onSleep runs at the start of every Sleep, before the context is checked.
	onSleep func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.onSleep != nil {
		c.mu.Lock()
		n := len(c.slept) + 1
		c.mu.Unlock()
		c.onSleep(n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// fakeProcessor records every call. handle decides the outcome; attempt counts per request id.
type fakeProcessor struct {
	mu       sync.Mutex
	calls    []types.RemoteRequest
	attempts map[string]int
	handle   func(ctx context.Context, req types.RemoteRequest, attempt int) error
}

func newFakeProcessor(handle func(ctx context.Context, req types.RemoteRequest, attempt int) error) *fakeProcessor {
	return &fakeProcessor{attempts: map[string]int{}, handle: handle}
}

func (p *fakeProcessor) Process(ctx context.Context, req types.RemoteRequest, onProgress func(int)) (types.RemoteResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.attempts[string(req.Type)+":"+req.ID]++
	attempt := p.attempts[string(req.Type)+":"+req.ID]
	p.mu.Unlock()

	if req.Type == types.RequestFile && onProgress != nil {
		onProgress(50)
	}
	if p.handle != nil {
		if err := p.handle(ctx, req, attempt); err != nil {
			return types.RemoteResponse{}, err
		}
	}
	return types.RemoteResponse{Success: true}, nil
}

func (p *fakeProcessor) callsOf(kind types.RequestType) []types.RemoteRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.RemoteRequest
	for _, c := range p.calls {
		if c.Type == kind {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakeProcessor) kinds() []types.RequestType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.RequestType, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, c.Type)
	}
	return out
}

type recorder struct {
	mu     sync.Mutex
	events []types.Notification
}

func (r *recorder) Publish(n types.Notification) {
	r.mu.Lock()
	r.events = append(r.events, n)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []types.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Notification(nil), r.events...)
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e.Type == kind {
			n++
		}
	}
	return n
}

type fakeDrafts struct {
	touched atomic.Int32
	deleted atomic.Int32
}

func (d *fakeDrafts) Touch() { d.touched.Add(1) }

func (d *fakeDrafts) Delete(ctx context.Context) error {
	d.deleted.Add(1)
	return nil
}

type harness struct {
	m      *Manager
	clock  *fakeClock
	events *recorder
	drafts *fakeDrafts
}

func newHarness(p *fakeProcessor) *harness {
	h := &harness{clock: newFakeClock(), events: &recorder{}, drafts: &fakeDrafts{}}
	h.m = NewManager(session.NewRecord(), p, Options{
		MaxRetries: MaxRetries,
		Clock:      h.clock,
		Publisher:  h.events,
		Drafts:     h.drafts,
	})
	return h
}

func fileRefs(names ...string) []types.FileRef {
	refs := make([]types.FileRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, types.FileRef{Path: "/tmp/" + name, Name: name, Size: 10, MimeType: "text/plain"})
	}
	return refs
}

func countFiles(s types.Session, status types.ItemStatus) int {
	n := 0
	for _, f := range s.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

func TestBackoffDoubles(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{-1, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(RetryDelayBase, tt.retries); got != tt.want {
			t.Errorf("Backoff(%d): expected %v, got %v", tt.retries, tt.want, got)
		}
	}
}

func TestRunCompletesAllKinds(t *testing.T) {
	p := newFakeProcessor(nil)
	h := newHarness(p)

	if _, err := h.m.AddFiles(fileRefs("a.txt", "b.txt")...); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.AddLink("https://example.com/post"); err != nil {
		t.Fatal(err)
	}
	if err := h.m.SetText("Hello"); err != nil {
		t.Fatal(err)
	}
	if err := h.m.SetArticleType(&types.ArticleType{ID: "news", Name: "News"}); err != nil {
		t.Fatal(err)
	}
	if h.drafts.touched.Load() != 2 {
		t.Errorf("Expected 2 autosave touches, got %d", h.drafts.touched.Load())
	}

	update, err := h.m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !update.Succeeded() || update.Step != types.StepTitleSelection || !update.AgentConfirmed {
		t.Errorf("Expected success payload, got %+v", update)
	}
	if update.Content != "Hello" || update.ArticleType == nil || update.ArticleType.ID != "news" {
		t.Errorf("Expected content and article type in payload, got %+v", update)
	}
	if update.ProcessingProgress != 100 || update.IsProcessing {
		t.Errorf("Expected finished payload at 100, got %+v", update)
	}

	s := h.m.Snapshot()
	if s.Status != types.StatusCompleted || s.ProcessingStage != types.StageCompleted {
		t.Errorf("Expected completed session, got %s/%s", s.Status, s.ProcessingStage)
	}
	if s.Progress != 100 || !s.TextProcessed {
		t.Errorf("Expected progress 100 and text processed, got %d %v", s.Progress, s.TextProcessed)
	}
	if countFiles(s, types.ItemCompleted) != 2 || s.Links[0].Status != types.ItemCompleted {
		t.Errorf("Expected all items completed, got %+v %+v", s.Files, s.Links)
	}
	if s.EstimatedTimeRemaining != nil {
		t.Errorf("Expected no ETA after completion, got %v", *s.EstimatedTimeRemaining)
	}

	kinds := p.kinds()
	if kinds[0] != types.RequestSessionStart || kinds[len(kinds)-1] != types.RequestSessionEnd {
		t.Errorf("Expected session start first and session end last, got %v", kinds)
	}
	if kinds[len(kinds)-2] != types.RequestText {
		t.Errorf("Expected text after files and links, got %v", kinds)
	}
	start := p.callsOf(types.RequestSessionStart)[0]
	summary, ok := start.Data.(types.SessionStartSummary)
	if !ok || summary.Files != 2 || summary.Links != 1 || !summary.HasText || summary.ArticleType.ID != "news" {
		t.Errorf("Unexpected session start summary: %+v", start.Data)
	}
	end := p.callsOf(types.RequestSessionEnd)[0]
	if es, ok := end.Data.(types.SessionEndSummary); !ok || es.Status != types.StatusCompleted {
		t.Errorf("Expected completed session end, got %+v", end.Data)
	}
	if start.SessionID != s.SessionID || end.SessionID != s.SessionID {
		t.Errorf("Expected calls tagged with session %s", s.SessionID)
	}

	if h.drafts.deleted.Load() != 1 {
		t.Errorf("Expected draft deleted once, got %d", h.drafts.deleted.Load())
	}
	if got := len(h.clock.sleeps()); got != 3 {
		t.Errorf("Expected 3 stage delays, got %d", got)
	}
	if h.events.count(types.NotifyTypeSessionCompleted) != 1 {
		t.Error("Expected one completed notification")
	}
}

func TestAtMostMaxConcurrentUploading(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type != types.RequestFile {
			return nil
		}
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	h := newHarness(p)
	h.m.AddFiles(fileRefs("1", "2", "3", "4", "5", "6", "7")...)

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if maxInFlight.Load() > MaxConcurrentUploads {
		t.Errorf("Expected at most %d concurrent uploads, got %d", MaxConcurrentUploads, maxInFlight.Load())
	}

	last := -1
	for _, e := range h.events.snapshot() {
		if e.Session == nil {
			continue
		}
		if n := countFiles(*e.Session, types.ItemUploading); n > MaxConcurrentUploads {
			t.Fatalf("Observed %d files uploading at once", n)
		}
		if e.Session.Status.Running() {
			if e.Session.Progress < last {
				t.Fatalf("Progress went down from %d to %d", last, e.Session.Progress)
			}
			last = e.Session.Progress
		}
	}
	if got := countFiles(h.m.Snapshot(), types.ItemCompleted); got != 7 {
		t.Errorf("Expected 7 completed files, got %d", got)
	}
}

func TestCancelDuringSecondBatch(t *testing.T) {
	var fileCalls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type != types.RequestFile {
			return nil
		}
		n := fileCalls.Add(1)
		if n >= 4 && n <= 6 {
			if n == 6 {
				close(started)
			}
			<-release
		}
		return nil
	})
	h := newHarness(p)
	h.m.AddFiles(fileRefs("1", "2", "3", "4", "5", "6", "7")...)

	type result struct {
		update types.WorkflowUpdate
		err    error
	}
	done := make(chan result, 1)
	go func() {
		u, err := h.m.Start(context.Background())
		done <- result{u, err}
	}()

	<-started
	if !h.m.Cancel() {
		t.Error("Expected Cancel to report an active run")
	}
	close(release)
	res := <-done

	if !errors.Is(res.err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", res.err)
	}
	s := h.m.Snapshot()
	if s.Status != types.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", s.Status)
	}
	terminal := countFiles(s, types.ItemCompleted) + countFiles(s, types.ItemError)
	if terminal > 6 {
		t.Errorf("Expected at most 6 terminal files, got %d", terminal)
	}
	if got := countFiles(s, types.ItemQueued); got != 1 {
		t.Errorf("Expected 1 queued file, got %d", got)
	}
	if fileCalls.Load() != 6 {
		t.Errorf("Expected 6 upload calls, got %d", fileCalls.Load())
	}
	ends := p.callsOf(types.RequestSessionEnd)
	if len(ends) != 1 {
		t.Fatalf("Expected one session end, got %d", len(ends))
	}
	if es := ends[0].Data.(types.SessionEndSummary); es.Status != types.StatusCancelled {
		t.Errorf("Expected cancelled session end, got %s", es.Status)
	}
	if h.drafts.deleted.Load() != 0 {
		t.Error("Expected draft to be kept after cancel")
	}
	if h.m.Cancel() {
		t.Error("Expected Cancel to be a no-op after the run ended")
	}
}

func TestFlakyFileIsRetried(t *testing.T) {
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestFile && req.File.Name == "flaky.txt" && attempt <= 2 {
			return errors.New("connection reset")
		}
		return nil
	})
	h := newHarness(p)
	h.m.AddFiles(fileRefs("ok-1.txt", "flaky.txt", "ok-2.txt")...)

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s := h.m.Snapshot()
	if s.Status != types.StatusCompleted {
		t.Errorf("Expected completed, got %s", s.Status)
	}
	for _, f := range s.Files {
		if f.Status != types.ItemCompleted {
			t.Errorf("Expected %s completed, got %s", f.File.Name, f.Status)
		}
		if f.File.Name == "flaky.txt" && f.Retries != 2 {
			t.Errorf("Expected flaky file retries 2, got %d", f.Retries)
		}
		if f.File.Name != "flaky.txt" && f.Retries != 0 {
			t.Errorf("Expected %s retries 0, got %d", f.File.Name, f.Retries)
		}
	}

	sleeps := h.clock.sleeps()
	if len(sleeps) < 2 || sleeps[0] != 2*time.Second || sleeps[1] != 4*time.Second {
		t.Errorf("Expected backoff waits of 2s then 4s, got %v", sleeps)
	}
}

func TestRetriesExhausted(t *testing.T) {
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestFile && req.File.Name == "broken.txt" {
			return errors.New("server unavailable")
		}
		return nil
	})
	h := newHarness(p)
	h.m.AddFiles(fileRefs("broken.txt", "fine.txt")...)

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Expected the run to continue past a failed file, got %v", err)
	}
	s := h.m.Snapshot()
	if s.Status != types.StatusCompleted {
		t.Errorf("Expected completed run, got %s", s.Status)
	}
	broken := s.Files[0]
	if broken.Status != types.ItemError || broken.Retries != MaxRetries {
		t.Errorf("Expected error with retries %d, got %s/%d", MaxRetries, broken.Status, broken.Retries)
	}
	if broken.Error == "" {
		t.Error("Expected error message on failed file")
	}
	attempts := 0
	for _, c := range p.callsOf(types.RequestFile) {
		if c.File.Name == "broken.txt" {
			attempts++
		}
	}
	if attempts != MaxRetries+1 {
		t.Errorf("Expected %d attempts, got %d", MaxRetries+1, attempts)
	}
	if h.events.count(types.NotifyTypeItemFailed) != 1 {
		t.Errorf("Expected one item failure notification, got %d", h.events.count(types.NotifyTypeItemFailed))
	}

	// once in error the item never goes back to queued
	seenError := false
	for _, e := range h.events.snapshot() {
		if e.Session == nil || len(e.Session.Files) == 0 {
			continue
		}
		st := e.Session.Files[0].Status
		if st == types.ItemError {
			seenError = true
		} else if seenError && st == types.ItemQueued && e.Session.Status.Running() {
			t.Fatal("Failed item re-entered queued")
		}
	}
}

func TestSessionStartFailure(t *testing.T) {
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestSessionStart {
			return errors.New("backend down")
		}
		return nil
	})
	h := newHarness(p)
	h.m.AddFiles(fileRefs("a.txt", "b.txt")...)
	h.m.SetText("Hello")

	update, err := h.m.Start(context.Background())
	if err == nil {
		t.Fatal("Expected error from failed session start")
	}
	if update.Error == "" || update.ProcessingStage != types.StageError || update.ProcessingProgress != 0 || update.IsProcessing {
		t.Errorf("Expected error payload, got %+v", update)
	}
	if n := len(p.callsOf(types.RequestFile)); n != 0 {
		t.Errorf("Expected no uploads, got %d", n)
	}
	s := h.m.Snapshot()
	if s.Status != types.StatusError {
		t.Errorf("Expected error status, got %s", s.Status)
	}
	for _, f := range s.Files {
		if f.Status != types.ItemQueued || f.Progress != 0 || f.Retries != 0 {
			t.Errorf("Expected untouched queued item, got %+v", f)
		}
	}
	ends := p.callsOf(types.RequestSessionEnd)
	if len(ends) != 1 {
		t.Fatalf("Expected best-effort session end, got %d calls", len(ends))
	}
	if es := ends[0].Data.(types.SessionEndSummary); es.Status != types.StatusError || es.Error == "" {
		t.Errorf("Expected error session end with message, got %+v", es)
	}
}

func TestTextFailureIsFatal(t *testing.T) {
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestText {
			return errors.New("rejected text")
		}
		return nil
	})
	h := newHarness(p)
	h.m.AddFiles(fileRefs("a.txt")...)
	h.m.SetText("Hello")

	update, err := h.m.Start(context.Background())
	if err == nil {
		t.Fatal("Expected text failure to fail the run")
	}
	if update.Error == "" {
		t.Error("Expected error in payload")
	}
	s := h.m.Snapshot()
	if s.Status != types.StatusError || s.TextProcessed {
		t.Errorf("Expected error status without text processed, got %s %v", s.Status, s.TextProcessed)
	}
	if h.drafts.deleted.Load() != 0 {
		t.Error("Expected draft to be kept after failure")
	}
	if h.events.count(types.NotifyTypeSessionFailed) != 1 {
		t.Error("Expected one failure notification")
	}
}

func TestLinkFailureIsIsolated(t *testing.T) {
	p := newFakeProcessor(nil)
	p.handle = func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestLink && req.Data.(types.LinkPayload).URL == "https://bad.example.com" {
			return errors.New("unreachable")
		}
		return nil
	}
	h := newHarness(p)
	h.m.AddLink("https://bad.example.com")
	h.m.AddLink("https://good.example.com")

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Expected run to complete, got %v", err)
	}
	s := h.m.Snapshot()
	if s.Links[0].Status != types.ItemError || s.Links[0].Error == "" {
		t.Errorf("Expected first link in error, got %+v", s.Links[0])
	}
	if s.Links[1].Status != types.ItemCompleted {
		t.Errorf("Expected second link completed, got %+v", s.Links[1])
	}
	links := p.callsOf(types.RequestLink)
	if len(links) != 2 {
		t.Fatalf("Expected 2 link calls without retry, got %d", len(links))
	}
	if links[0].Data.(types.LinkPayload).URL != "https://bad.example.com" {
		t.Error("Expected links in insertion order")
	}
}

func TestUploadTimeoutIsRetried(t *testing.T) {
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestFile && attempt == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	h := &harness{clock: newFakeClock(), events: &recorder{}}
	h.m = NewManager(session.NewRecord(), p, Options{MaxRetries: MaxRetries, Clock: h.clock, UploadTimeout: 20 * time.Millisecond})
	h.m.AddFiles(fileRefs("slow.bin")...)

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f := h.m.Snapshot().Files[0]
	if f.Status != types.ItemCompleted || f.Retries != 1 {
		t.Errorf("Expected completed after one retry, got %s/%d", f.Status, f.Retries)
	}
}

func TestRemoteRejectionCountsAsFailure(t *testing.T) {
	proc := transfer.ProcessorFunc(func(ctx context.Context, req types.RemoteRequest, onProgress func(int)) (types.RemoteResponse, error) {
		if req.Type == types.RequestText {
			return types.RemoteResponse{Success: false, Message: "too short"}, nil
		}
		return types.RemoteResponse{Success: true}, nil
	})
	m := NewManager(session.NewRecord(), proc, Options{Clock: newFakeClock()})
	m.SetText("x")

	update, err := m.Start(context.Background())
	if err == nil {
		t.Fatal("Expected rejected text to fail the run")
	}
	if update.Error == "" {
		t.Error("Expected error payload")
	}
}

func TestStartRefusals(t *testing.T) {
	h := newHarness(newFakeProcessor(nil))
	if _, err := h.m.Start(context.Background()); !errors.Is(err, ErrEmptySubmission) {
		t.Errorf("Expected ErrEmptySubmission, got %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestSessionStart {
			close(entered)
			<-release
		}
		return nil
	})
	h = newHarness(p)
	h.m.SetText("Hello")

	done := make(chan error, 1)
	go func() {
		_, err := h.m.Start(context.Background())
		done <- err
	}()
	<-entered

	if _, err := h.m.Start(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress, got %v", err)
	}
	if err := h.m.Reset(); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Expected Reset to be refused, got %v", err)
	}
	if _, err := h.m.AddLink("https://example.com"); !errors.Is(err, session.ErrNotIdle) {
		t.Errorf("Expected ErrNotIdle during a run, got %v", err)
	}
	if err := h.m.SetText("changed"); !errors.Is(err, session.ErrNotIdle) {
		t.Errorf("Expected ErrNotIdle during a run, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := h.m.Snapshot().TextContent; got != "Hello" {
		t.Errorf("Expected text unchanged by rejected edit, got %q", got)
	}
}

func TestStartAfterTerminalStartsNewSession(t *testing.T) {
	fail := true
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestFile && fail {
			return errors.New("nope")
		}
		return nil
	})
	h := newHarness(p)
	h.m.AddFiles(fileRefs("a.txt")...)

	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := h.m.Snapshot()
	if first.Files[0].Status != types.ItemError {
		t.Fatalf("Expected failed file, got %s", first.Files[0].Status)
	}
	if _, err := h.m.AddLink("https://example.com"); !errors.Is(err, session.ErrNotIdle) {
		t.Errorf("Expected edits to be refused after a run, got %v", err)
	}

	fail = false
	if _, err := h.m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := h.m.Snapshot()
	if second.SessionID == first.SessionID || second.SessionID == "" {
		t.Errorf("Expected a fresh session id, got %q after %q", second.SessionID, first.SessionID)
	}
	if second.Files[0].Status != types.ItemCompleted || second.Files[0].Retries != 0 {
		t.Errorf("Expected re-queued file to complete with no retries, got %+v", second.Files[0])
	}

	if err := h.m.Reset(); err != nil {
		t.Fatal(err)
	}
	s := h.m.Snapshot()
	if s.Status != types.StatusIdle || s.SessionID != "" || s.Progress != 0 || s.Files[0].Status != types.ItemQueued {
		t.Errorf("Expected idle reset session, got %+v", s)
	}
	if _, err := h.m.AddLink("https://example.com"); err != nil {
		t.Errorf("Expected edits after reset, got %v", err)
	}
}

func TestStartAsync(t *testing.T) {
	h := newHarness(newFakeProcessor(nil))
	if _, err := h.m.StartAsync(context.Background()); !errors.Is(err, ErrEmptySubmission) {
		t.Errorf("Expected ErrEmptySubmission, got %v", err)
	}

	h.m.SetText("Hello")
	ch, err := h.m.StartAsync(context.Background())
	if err != nil {
		t.Fatalf("StartAsync failed: %v", err)
	}
	select {
	case res := <-ch:
		if res.Err != nil || !res.Update.Succeeded() {
			t.Errorf("Expected success, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for run")
	}
	if h.m.Running() {
		t.Error("Expected run to be released")
	}
}

func TestNewSubmissionRestoresDraft(t *testing.T) {
	ctx := context.Background()
	store := draft.NewMemoryStore(time.Minute)
	store.Save(ctx, types.Draft{TextContent: "Hello", ArticleType: &types.ArticleType{ID: "news"}})

	sub, restored := NewSubmission(ctx, types.AppConfig{StageDelayMs: 1}, newFakeProcessor(nil), store, nil)
	defer sub.Close()

	if !restored {
		t.Error("Expected draft to be restored")
	}
	s := sub.Snapshot()
	if s.TextContent != "Hello" || s.ArticleType == nil || s.ArticleType.ID != "news" {
		t.Errorf("Expected restored draft, got %q %+v", s.TextContent, s.ArticleType)
	}

	if _, err := sub.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, ok, _ := store.Load(ctx); ok {
		t.Error("Expected draft deleted after a successful run")
	}
}

func TestMaxRetriesFromConfig(t *testing.T) {
	tests := []struct {
		name         string
		maxRetries   int
		wantAttempts int
	}{
		{"zero disables retries", 0, 1},
		{"explicit value", 1, 2},
		{"negative uses default", -1, MaxRetries + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
				if req.Type == types.RequestFile {
					return errors.New("server unavailable")
				}
				return nil
			})
			clock := newFakeClock()
			opts := OptionsFromConfig(types.AppConfig{MaxRetries: tt.maxRetries, StageDelayMs: 1})
			opts.Clock = clock
			m := NewManager(session.NewRecord(), p, opts)
			m.AddFiles(fileRefs("broken.txt")...)

			if _, err := m.Start(context.Background()); err != nil {
				t.Fatalf("Expected the run to finish, got %v", err)
			}
			if got := len(p.callsOf(types.RequestFile)); got != tt.wantAttempts {
				t.Errorf("Expected %d attempts, got %d", tt.wantAttempts, got)
			}
			f := m.Snapshot().Files[0]
			if f.Status != types.ItemError || f.Retries != tt.wantAttempts-1 {
				t.Errorf("Expected error with retries %d, got %s/%d", tt.wantAttempts-1, f.Status, f.Retries)
			}
			if tt.maxRetries == 0 {
				for _, d := range clock.sleeps() {
					if d >= RetryDelayBase {
						t.Errorf("Expected no backoff wait, got %v", d)
					}
				}
			}
		})
	}
}

func TestCancelBeforeNextLink(t *testing.T) {
	var h *harness
	p := newFakeProcessor(func(ctx context.Context, req types.RemoteRequest, attempt int) error {
		if req.Type == types.RequestLink && req.Data.(types.LinkPayload).URL == "https://first.example.com" {
			h.m.Cancel()
		}
		return nil
	})
	h = newHarness(p)
	h.m.AddLink("https://first.example.com")
	h.m.AddLink("https://second.example.com")
	h.m.SetText("notes")

	_, err := h.m.Start(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	s := h.m.Snapshot()
	if s.Status != types.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", s.Status)
	}
	if s.Links[0].Status != types.ItemCompleted {
		t.Errorf("Expected in-flight link to finish, got %s", s.Links[0].Status)
	}
	if s.Links[1].Status != types.ItemQueued {
		t.Errorf("Expected second link still queued, got %s", s.Links[1].Status)
	}
	if got := len(p.callsOf(types.RequestLink)); got != 1 {
		t.Errorf("Expected 1 link call, got %d", got)
	}
	if got := len(p.callsOf(types.RequestText)); got != 0 {
		t.Errorf("Expected no text call, got %d", got)
	}
	ends := p.callsOf(types.RequestSessionEnd)
	if len(ends) != 1 || ends[0].Data.(types.SessionEndSummary).Status != types.StatusCancelled {
		t.Errorf("Expected one cancelled session end, got %+v", ends)
	}
}

func TestCancelBetweenStages(t *testing.T) {
	p := newFakeProcessor(nil)
	h := newHarness(p)
	h.clock.onSleep = func(n int) {
		// the second wait separates extracting from organizing
		if n == 2 {
			h.m.Cancel()
		}
	}
	h.m.SetText("notes")

	_, err := h.m.Start(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
	s := h.m.Snapshot()
	if s.Status != types.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", s.Status)
	}
	if s.ProcessingStage != types.StageExtracting {
		t.Errorf("Expected to stop at extracting, got %s", s.ProcessingStage)
	}
	for _, e := range h.events.snapshot() {
		if e.Session != nil && (e.Session.ProcessingStage == types.StageOrganizing || e.Session.Status == types.StatusCompleted) {
			t.Fatalf("Expected no stage after cancel, got %s/%s", e.Session.Status, e.Session.ProcessingStage)
		}
	}
	ends := p.callsOf(types.RequestSessionEnd)
	if len(ends) != 1 || ends[0].Data.(types.SessionEndSummary).Status != types.StatusCancelled {
		t.Errorf("Expected one cancelled session end, got %+v", ends)
	}
	if h.drafts.deleted.Load() != 0 {
		t.Error("Expected draft to be kept after cancel")
	}
}
