package draft

import (
	"context"
	"sync"
	"time"

	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultDebounce = 2 * time.Second
)

// Autosaver persists the draft periodically while text is present and shortly after edits.
// Saves never fail the caller: errors are logged.
type Autosaver struct {
	store    Store
	source   func() types.Session
	interval time.Duration
	debounce time.Duration
	now      func() time.Time
	touch    chan struct{}

	mu      sync.Mutex // serializes writes with Delete
	cleared bool       // set by Delete until the next edit
}

// NewAutosaver reads the current session through source on every save.
func NewAutosaver(store Store, source func() types.Session, interval, debounce time.Duration) *Autosaver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Autosaver{
		store:    store,
		source:   source,
		interval: interval,
		debounce: debounce,
		now:      time.Now,
		touch:    make(chan struct{}, 1),
	}
}

// Touch schedules a debounced save. It never blocks.
func (a *Autosaver) Touch() {
	a.mu.Lock()
	a.cleared = false
	a.mu.Unlock()
	select {
	case a.touch <- struct{}{}:
	default:
	}
}

// Run drives the interval and debounce timers until ctx is done.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var timer *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.touch:
			if timer == nil {
				timer = time.NewTimer(a.debounce)
			} else {
				timer.Reset(a.debounce)
			}
			debounceC = timer.C
		case <-debounceC:
			debounceC = nil
			a.save(ctx, false)
		case <-ticker.C:
			a.save(ctx, true)
		}
	}
}

// SaveNow writes the current draft immediately, regardless of content.
func (a *Autosaver) SaveNow(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Save(ctx, a.snapshot())
}

// Delete removes the persisted draft and suppresses saves until the next edit.
func (a *Autosaver) Delete(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleared = true
	return a.store.Delete(ctx)
}

func (a *Autosaver) snapshot() types.Draft {
	s := a.source()
	d := types.Draft{TextContent: s.TextContent, LastSaved: a.now().UTC()}
	if s.ArticleType != nil {
		at := *s.ArticleType
		d.ArticleType = &at
	}
	return d
}

func (a *Autosaver) save(ctx context.Context, requireText bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cleared {
		return
	}
	s := a.source()
	if s.Status == types.StatusCompleted {
		return
	}
	if requireText && s.TextContent == "" {
		return
	}
	if err := a.store.Save(ctx, a.snapshot()); err != nil {
		tool.DefaultLogger.Warnf("[Draft] Autosave failed: %v", err)
		return
	}
	tool.DefaultLogger.Debugf("[Draft] Autosaved draft (%d chars)", len(s.TextContent))
}
