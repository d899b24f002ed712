package models

import (
	"context"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/submitsession/draft"
	"github.com/moyoez/submitsession/orchestrator"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/transfer"
	"github.com/moyoez/submitsession/types"
)

// DefaultSessionTTL is how long an untouched submission handle stays addressable.
var DefaultSessionTTL = 6 * time.Hour

var (
	submissionMu sync.Mutex
	submissions  = ttlworker.NewCache[string, *orchestrator.Submission](DefaultSessionTTL)
	// active tracks handles whose autosaver is running, so expired ones can be closed.
	active = map[string]*orchestrator.Submission{}

	DefaultUploadFolder = "uploads"

	runtimeMu sync.RWMutex
	runtime   struct {
		cfg       types.AppConfig
		processor transfer.Processor
		store     draft.Store
		publisher orchestrator.Publisher
	}
)

// Configure sets what new submissions are built from.
func Configure(cfg types.AppConfig, processor transfer.Processor, store draft.Store, publisher orchestrator.Publisher) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtime.cfg = cfg
	runtime.processor = processor
	runtime.store = store
	runtime.publisher = publisher
	if cfg.UploadFolder != "" {
		DefaultUploadFolder = cfg.UploadFolder
	}
}

// CreateSubmission registers a new idle submission under a fresh handle id.
func CreateSubmission(ctx context.Context) (string, *orchestrator.Submission, bool) {
	runtimeMu.RLock()
	cfg, processor, store, publisher := runtime.cfg, runtime.processor, runtime.store, runtime.publisher
	runtimeMu.RUnlock()

	if store == nil {
		store = draft.NewMemoryStore(0)
	}
	sub, restored := orchestrator.NewSubmission(ctx, cfg, processor, store, publisher)
	id := tool.GenerateShortSessionID()

	submissionMu.Lock()
	defer submissionMu.Unlock()
	sweepLocked()
	submissions.Set(id, sub)
	active[id] = sub
	return id, sub, restored
}

// LookupSubmission returns the submission for id and refreshes its TTL.
func LookupSubmission(id string) (*orchestrator.Submission, bool) {
	submissionMu.Lock()
	defer submissionMu.Unlock()
	sub := submissions.Get(id)
	if sub == nil {
		return nil, false
	}
	submissions.Set(id, sub)
	return sub, true
}

// RemoveSubmission cancels and forgets the submission. It reports whether it existed.
func RemoveSubmission(id string) bool {
	submissionMu.Lock()
	defer submissionMu.Unlock()
	sub, ok := active[id]
	if !ok {
		return false
	}
	sub.Close()
	submissions.Delete(id)
	delete(active, id)
	return true
}

// sweepLocked closes submissions whose cache entry has expired.
func sweepLocked() {
	for id, sub := range active {
		if submissions.Get(id) == nil {
			tool.DefaultLogger.Debugf("[Session] Closing expired submission %s", id)
			sub.Close()
			delete(active, id)
		}
	}
}
