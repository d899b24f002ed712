// Package session holds the single-owner Session Record, the Content Registry that
// edits it while idle, and the progress aggregation computed from it.
package session

import (
	"sync"

	"github.com/moyoez/submitsession/types"
)

// Record owns one types.Session. All writes go through Apply; readers get clones.
type Record struct {
	mu       sync.RWMutex
	session  types.Session
	onChange func(types.Session)
}

// NewRecord creates an idle, empty session record.
func NewRecord() *Record {
	return &Record{
		session: types.Session{
			Status:          types.StatusIdle,
			ProcessingStage: types.StageUploading,
			Files:           []types.UploadItem{},
			Links:           []types.LinkItem{},
		},
	}
}

// OnChange registers a callback invoked with a snapshot after every Apply.
// It runs under the record lock, so snapshots arrive in order; it must not block
// or call back into the record.
func (r *Record) OnChange(fn func(types.Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Snapshot returns a deep copy of the current session.
func (r *Record) Snapshot() types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session.Clone()
}

// Apply runs update against the latest state under the lock, clamps the
// numeric fields, and returns the resulting snapshot.
func (r *Record) Apply(update func(s *types.Session)) types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	update(&r.session)
	clampSession(&r.session)
	snap := r.session.Clone()
	if r.onChange != nil {
		r.onChange(snap.Clone())
	}
	return snap
}

// UpdateFile applies fn to the file with the given id, if present.
func UpdateFile(s *types.Session, id string, fn func(f *types.UploadItem)) bool {
	for i := range s.Files {
		if s.Files[i].ID == id {
			fn(&s.Files[i])
			return true
		}
	}
	return false
}

// UpdateLink applies fn to the link with the given id, if present.
func UpdateLink(s *types.Session, id string, fn func(l *types.LinkItem)) bool {
	for i := range s.Links {
		if s.Links[i].ID == id {
			fn(&s.Links[i])
			return true
		}
	}
	return false
}

func clampSession(s *types.Session) {
	s.Progress = Clamp(s.Progress)
	s.ProcessingProgress = Clamp(s.ProcessingProgress)
	for i := range s.Files {
		s.Files[i].Progress = Clamp(s.Files[i].Progress)
	}
}

// Clamp limits a percentage to [0,100].
func Clamp(v int) int {
	return min(max(v, 0), 100)
}
