package orchestrator

import (
	"context"
	"sync"

	"github.com/moyoez/submitsession/draft"
	"github.com/moyoez/submitsession/session"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/transfer"
	"github.com/moyoez/submitsession/types"
)

// Submission is a Manager with its draft autosaver running.
type Submission struct {
	*Manager
	Drafts *draft.Autosaver

	stopAutosave context.CancelFunc
	closeOnce    sync.Once
}

// NewSubmission creates an idle session, restores the persisted draft into it and
// starts autosaving. Restored reports whether draft content was merged.
func NewSubmission(ctx context.Context, cfg types.AppConfig, processor transfer.Processor, store draft.Store, publisher Publisher) (*Submission, bool) {
	record := session.NewRecord()
	saver := draft.NewAutosaver(store, record.Snapshot, cfg.AutosaveInterval(), cfg.AutosaveDebounce())

	opts := OptionsFromConfig(cfg)
	opts.Drafts = saver
	opts.Publisher = publisher
	m := NewManager(record, processor, opts)

	restored, err := draft.Restore(ctx, store, record)
	if err != nil {
		tool.DefaultLogger.Warnf("[Draft] Ignoring unreadable draft: %v", err)
		restored = false
	}

	autosaveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go saver.Run(autosaveCtx)

	return &Submission{Manager: m, Drafts: saver, stopAutosave: cancel}, restored
}

// Close cancels any active run and stops autosaving.
func (s *Submission) Close() {
	s.closeOnce.Do(func() {
		s.Cancel()
		s.stopAutosave()
	})
}
