// Package orchestrator drives one submission run: session start, batched uploads
// with retry, links, text, the processing stages and the session end.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/moyoez/submitsession/session"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/transfer"
	"github.com/moyoez/submitsession/types"
)

var (
	// ErrRunInProgress is returned by Start and Reset while a run owns the session.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrEmptySubmission is returned by Start when there is nothing to submit.
	ErrEmptySubmission = errors.New("nothing to submit")
	// ErrCancelled is returned by Start when the run ended through Cancel.
	ErrCancelled = errors.New("submission cancelled")
)

// Publisher receives run events. Publish must not block.
type Publisher interface {
	Publish(types.Notification)
}

// DraftKeeper is the autosave side of the session.
type DraftKeeper interface {
	Touch()
	Delete(ctx context.Context) error
}

// Options tunes a Manager. Zero values fall back to the package defaults,
// except MaxRetries: zero disables retries and only a negative value selects MaxRetries.
type Options struct {
	MaxConcurrentUploads int
	MaxRetries           int
	RetryDelayBase       time.Duration
	UploadTimeout        time.Duration
	RequestTimeout       time.Duration
	StageDelay           time.Duration
	Clock                tool.Clock
	Drafts               DraftKeeper
	Publisher            Publisher
}

// OptionsFromConfig maps the application config onto run options.
func OptionsFromConfig(cfg types.AppConfig) Options {
	return Options{
		MaxConcurrentUploads: cfg.MaxConcurrentUploads,
		MaxRetries:           cfg.MaxRetries,
		RetryDelayBase:       cfg.RetryDelayBase(),
		UploadTimeout:        cfg.UploadTimeout(),
		RequestTimeout:       cfg.RequestTimeout(),
		StageDelay:           cfg.StageDelay(),
	}
}

func (o *Options) normalize() {
	if o.MaxConcurrentUploads <= 0 {
		o.MaxConcurrentUploads = MaxConcurrentUploads
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = MaxRetries
	}
	if o.RetryDelayBase <= 0 {
		o.RetryDelayBase = RetryDelayBase
	}
	if o.StageDelay <= 0 {
		o.StageDelay = StageDelay
	}
	if o.Clock == nil {
		o.Clock = tool.RealClock{}
	}
}

// Manager is the programmatic surface of one Session.
type Manager struct {
	record    *session.Record
	registry  *session.Registry
	processor transfer.Processor
	opts      Options

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
}

// NewManager wires record to processor and takes over the record's change callback.
func NewManager(record *session.Record, processor transfer.Processor, opts Options) *Manager {
	opts.normalize()
	m := &Manager{
		record:    record,
		processor: processor,
		opts:      opts,
	}
	var onEdit func()
	if opts.Drafts != nil {
		onEdit = opts.Drafts.Touch
	}
	m.registry = session.NewRegistry(record, onEdit)
	record.OnChange(m.sessionChanged)
	return m
}

func (m *Manager) sessionChanged(s types.Session) {
	m.publish(types.Notification{Type: types.NotifyTypeSessionUpdated, SessionID: s.SessionID, Session: &s})
}

func (m *Manager) publish(n types.Notification) {
	if m.opts.Publisher != nil {
		m.opts.Publisher.Publish(n)
	}
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() types.Session {
	return m.record.Snapshot()
}

// AddFiles queues one upload item per ref while the session is idle.
func (m *Manager) AddFiles(refs ...types.FileRef) ([]types.UploadItem, error) {
	return m.registry.AddFiles(refs)
}

// AddLink validates and queues an http(s) link while the session is idle.
func (m *Manager) AddLink(rawURL string) (types.LinkItem, error) {
	return m.registry.AddLink(rawURL)
}

// SetText replaces the free-text content and schedules a draft save.
func (m *Manager) SetText(text string) error {
	return m.registry.SetText(text)
}

// SetArticleType sets the classification tag; nil clears it.
func (m *Manager) SetArticleType(articleType *types.ArticleType) error {
	return m.registry.SetArticleType(articleType)
}

// RemoveFile drops a queued file; only allowed while idle.
func (m *Manager) RemoveFile(id string) error {
	return m.registry.RemoveFile(id)
}

// RemoveLink drops a queued link; only allowed while idle.
func (m *Manager) RemoveLink(id string) error {
	return m.registry.RemoveLink(id)
}

// Running reports whether a run is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Cancel requests cooperative cancellation of the active run.
// In-flight calls finish; no further batch, link or stage starts. It reports whether a run was active.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.stop == nil {
		return false
	}
	m.stop()
	return true
}

// Reset returns a finished session to idle so it can be edited and started again.
// Items are re-queued with their retry counters cleared.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrRunInProgress
	}
	m.record.Apply(resetSession)
	return nil
}

func resetSession(s *types.Session) {
	s.SessionID = ""
	s.Status = types.StatusIdle
	s.Progress = 0
	s.ProcessingStage = types.StageUploading
	s.ProcessingProgress = 0
	s.ProcessingMessage = ""
	s.TextProcessed = false
	s.Error = ""
	s.StartTime = time.Time{}
	s.EstimatedTimeRemaining = nil
	for i := range s.Files {
		s.Files[i].Status = types.ItemQueued
		s.Files[i].Progress = 0
		s.Files[i].Retries = 0
		s.Files[i].Error = ""
	}
	for i := range s.Links {
		s.Links[i].Status = types.ItemQueued
		s.Links[i].Error = ""
	}
}

// Result is the outcome of an asynchronous run.
type Result struct {
	Update types.WorkflowUpdate
	Err    error
}

// Start runs the submission to a terminal state and returns the workflow update.
// A finished session is reset first. The returned error is ErrCancelled for a cancelled
// run, the fatal cause for a failed run, and nil on success.
// ctx bounds the remote calls; cancelling it aborts them, unlike Cancel.
func (m *Manager) Start(ctx context.Context) (types.WorkflowUpdate, error) {
	r, snap, err := m.acquire(ctx)
	if err != nil {
		return types.WorkflowUpdate{}, err
	}
	defer m.release()
	return r.execute(snap)
}

// StartAsync validates and begins a run like Start, then finishes it in the background.
// The channel receives exactly one Result.
func (m *Manager) StartAsync(ctx context.Context) (<-chan Result, error) {
	r, snap, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	ch := make(chan Result, 1)
	go func() {
		update, err := r.execute(snap)
		m.release()
		ch <- Result{Update: update, Err: err}
	}()
	return ch, nil
}

func (m *Manager) acquire(ctx context.Context) (*run, types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil, types.Session{}, ErrRunInProgress
	}
	s := m.record.Snapshot()
	if s.Status.Terminal() {
		m.record.Apply(resetSession)
		s = m.record.Snapshot()
	}
	if len(s.Files) == 0 && len(s.Links) == 0 && s.TextContent == "" {
		return nil, types.Session{}, ErrEmptySubmission
	}
	stopCtx, stop := context.WithCancel(ctx)
	m.running = true
	m.stop = stop
	r := &run{m: m, ctx: ctx, stop: stopCtx}
	return r, r.begin(), nil
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		m.stop()
	}
	m.running = false
	m.stop = nil
}
