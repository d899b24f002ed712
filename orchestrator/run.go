package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/moyoez/submitsession/session"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/transfer"
	"github.com/moyoez/submitsession/types"
)

var errStopped = errors.New("run stopped")

type stage struct {
	stage    types.ProcessingStage
	progress int
	message  string
}

var pipeline = []stage{
	{types.StageAnalyzing, 30, "Analyzing content"},
	{types.StageExtracting, 60, "Extracting key information"},
	{types.StageOrganizing, 85, "Organizing results"},
	{types.StageCompleted, 100, "Processing complete"},
}

// run is the state of one Start call.
type run struct {
	m         *Manager
	ctx       context.Context // remote calls
	stop      context.Context // cancellation checkpoints and waits
	sessionID string
	start     time.Time
	logger    *log.Logger
}

func (r *run) stopped() bool {
	return r.stop.Err() != nil
}

func (r *run) update(fn func(s *types.Session)) types.Session {
	now := r.m.opts.Clock.Now()
	return r.m.record.Apply(func(s *types.Session) {
		fn(s)
		session.Refresh(s, now)
	})
}

// call performs one remote call bounded by timeout. success=false counts as failure.
func (r *run) call(timeout time.Duration, req types.RemoteRequest, onProgress func(int)) error {
	ctx := r.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := r.m.processor.Process(ctx, req, onProgress)
	if err != nil {
		return err
	}
	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("%w: %s", transfer.ErrRemoteRejected, resp.Message)
		}
		return transfer.ErrRemoteRejected
	}
	return nil
}

// begin moves the session to preparing under a fresh session id.
func (r *run) begin() types.Session {
	r.sessionID = tool.GenerateRandomUUID()
	r.logger = tool.SessionLogger(r.sessionID)
	r.start = r.m.opts.Clock.Now()

	return r.m.record.Apply(func(s *types.Session) {
		s.SessionID = r.sessionID
		s.Status = types.StatusPreparing
		s.StartTime = r.start
		s.Progress = 0
		s.TextProcessed = false
		s.Error = ""
		s.ProcessingStage = types.StageUploading
		s.ProcessingProgress = 0
		s.ProcessingMessage = "Preparing submission"
		session.Refresh(s, r.start)
	})
}

func (r *run) execute(snap types.Session) (types.WorkflowUpdate, error) {
	r.logger.Infof("[Orchestrator] Starting run: %d files, %d links, text=%v", len(snap.Files), len(snap.Links), snap.TextContent != "")
	r.m.publish(types.Notification{
		Type:      types.NotifyTypeSessionStarted,
		SessionID: r.sessionID,
		Title:     "Submission started",
		Session:   &snap,
	})

	summary := types.SessionStartSummary{
		Files:       len(snap.Files),
		Links:       len(snap.Links),
		HasText:     snap.TextContent != "",
		ArticleType: snap.ArticleType,
	}
	err := r.call(r.m.opts.RequestTimeout, types.RemoteRequest{
		ID:        r.sessionID,
		Type:      types.RequestSessionStart,
		MimeType:  "application/json",
		Data:      summary,
		SessionID: r.sessionID,
	}, nil)
	if err != nil {
		return r.fail(fmt.Errorf("session start: %w", err))
	}
	if r.stopped() {
		return r.cancelled()
	}

	r.update(func(s *types.Session) {
		s.Status = types.StatusUploading
		s.ProcessingMessage = "Uploading files"
	})
	if err := r.uploadFiles(); err != nil {
		return r.cancelled()
	}
	if err := r.processLinks(); err != nil {
		return r.cancelled()
	}
	if r.stopped() {
		return r.cancelled()
	}
	if err := r.processText(); err != nil {
		return r.fail(fmt.Errorf("text: %w", err))
	}
	if err := r.runPipeline(); err != nil {
		return r.cancelled()
	}
	return r.complete()
}

// uploadFiles dispatches queued files in insertion order, one batch at a time.
// Items waiting out their backoff are skipped until eligible.
func (r *run) uploadFiles() error {
	var mu sync.Mutex
	notBefore := map[string]time.Time{}

	for batchNo := 1; ; {
		if r.stopped() {
			return errStopped
		}
		mu.Lock()
		batch, wait := r.nextBatch(notBefore)
		mu.Unlock()
		if len(batch) == 0 {
			if wait <= 0 {
				return nil
			}
			if err := r.m.opts.Clock.Sleep(r.stop, wait); err != nil {
				return errStopped
			}
			continue
		}

		r.logger.Debugf("[Orchestrator] Batch %d: %d files", batchNo, len(batch))
		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			go func(item types.UploadItem) {
				defer wg.Done()
				if retryAt, retry := r.uploadOne(item); retry {
					mu.Lock()
					notBefore[item.ID] = retryAt
					mu.Unlock()
				}
			}(item)
		}
		wg.Wait()
		r.update(func(s *types.Session) {})
		batchNo++
	}
}

// nextBatch returns up to MaxConcurrentUploads eligible queued files, or the time
// until the earliest backoff expires when none is eligible yet.
func (r *run) nextBatch(notBefore map[string]time.Time) ([]types.UploadItem, time.Duration) {
	snap := r.m.record.Snapshot()
	now := r.m.opts.Clock.Now()
	var batch []types.UploadItem
	var wait time.Duration
	for _, f := range snap.Files {
		if f.Status != types.ItemQueued {
			continue
		}
		if at, ok := notBefore[f.ID]; ok && now.Before(at) {
			if d := at.Sub(now); wait == 0 || d < wait {
				wait = d
			}
			continue
		}
		if len(batch) < r.m.opts.MaxConcurrentUploads {
			batch = append(batch, f)
		}
	}
	return batch, wait
}

// uploadOne uploads a single file. It reports when the item may be retried.
func (r *run) uploadOne(item types.UploadItem) (time.Time, bool) {
	if r.stopped() {
		return time.Time{}, false
	}
	r.update(func(s *types.Session) {
		session.UpdateFile(s, item.ID, func(f *types.UploadItem) {
			f.Status = types.ItemUploading
			f.Progress = 0
		})
	})

	file := item.File
	err := r.call(r.m.opts.UploadTimeout, types.RemoteRequest{
		ID:        item.ID,
		Type:      types.RequestFile,
		MimeType:  file.MimeType,
		SessionID: r.sessionID,
		File:      &file,
	}, func(percent int) {
		r.update(func(s *types.Session) {
			session.UpdateFile(s, item.ID, func(f *types.UploadItem) {
				if f.Status == types.ItemUploading {
					f.Progress = percent
				}
			})
		})
	})

	if err == nil {
		r.update(func(s *types.Session) {
			session.UpdateFile(s, item.ID, func(f *types.UploadItem) {
				f.Status = types.ItemCompleted
				f.Progress = 100
				f.Error = ""
			})
		})
		r.logger.Debugf("[Orchestrator] Uploaded %s", file.Name)
		return time.Time{}, false
	}

	var retryAt time.Time
	var retries int
	retry, exhausted := false, false
	now := r.m.opts.Clock.Now()
	r.update(func(s *types.Session) {
		session.UpdateFile(s, item.ID, func(f *types.UploadItem) {
			f.Error = err.Error()
			if f.Retries < r.m.opts.MaxRetries {
				f.Retries++
				f.Status = types.ItemQueued
				f.Progress = 0
				retryAt = now.Add(Backoff(r.m.opts.RetryDelayBase, f.Retries))
				retry = true
			} else {
				f.Status = types.ItemError
				exhausted = true
			}
			retries = f.Retries
		})
	})

	if exhausted {
		r.logger.Warnf("[Orchestrator] Upload of %s failed after %d retries: %v", file.Name, retries, err)
		r.m.publish(types.Notification{
			Type:      types.NotifyTypeItemFailed,
			SessionID: r.sessionID,
			Title:     "Upload failed",
			Message:   fmt.Sprintf("%s: %v", file.Name, err),
			Data:      map[string]any{"itemId": item.ID, "kind": "file"},
		})
	} else if retry {
		r.logger.Infof("[Orchestrator] Upload of %s failed, retry %d at %s: %v", file.Name, retries, retryAt.Format(time.TimeOnly), err)
	}
	return retryAt, retry
}

// processLinks submits queued links one after another. A failed link does not stop the rest.
func (r *run) processLinks() error {
	for _, link := range r.m.record.Snapshot().Links {
		if r.stopped() {
			return errStopped
		}
		if link.Status != types.ItemQueued {
			continue
		}
		r.update(func(s *types.Session) {
			session.UpdateLink(s, link.ID, func(l *types.LinkItem) { l.Status = types.ItemProcessing })
		})

		err := r.call(r.m.opts.RequestTimeout, types.RemoteRequest{
			ID:        link.ID,
			Type:      types.RequestLink,
			MimeType:  "text/uri-list",
			Data:      types.LinkPayload{URL: link.URL},
			SessionID: r.sessionID,
		}, nil)

		r.update(func(s *types.Session) {
			session.UpdateLink(s, link.ID, func(l *types.LinkItem) {
				if err != nil {
					l.Status = types.ItemError
					l.Error = err.Error()
					return
				}
				l.Status = types.ItemCompleted
				l.Error = ""
			})
		})
		if err != nil {
			r.logger.Warnf("[Orchestrator] Link %s failed: %v", link.URL, err)
			r.m.publish(types.Notification{
				Type:      types.NotifyTypeItemFailed,
				SessionID: r.sessionID,
				Title:     "Link failed",
				Message:   fmt.Sprintf("%s: %v", link.URL, err),
				Data:      map[string]any{"itemId": link.ID, "kind": "link"},
			})
		}
	}
	return nil
}

func (r *run) processText() error {
	text := r.m.record.Snapshot().TextContent
	if text == "" {
		return nil
	}
	r.update(func(s *types.Session) { s.ProcessingMessage = "Submitting text" })
	err := r.call(r.m.opts.RequestTimeout, types.RemoteRequest{
		ID:        tool.GenerateRandomUUID(),
		Type:      types.RequestText,
		MimeType:  "text/plain",
		Data:      text,
		SessionID: r.sessionID,
	}, nil)
	if err != nil {
		return err
	}
	r.update(func(s *types.Session) { s.TextProcessed = true })
	return nil
}

func (r *run) runPipeline() error {
	for i, st := range pipeline {
		if i > 0 {
			if err := r.m.opts.Clock.Sleep(r.stop, r.m.opts.StageDelay); err != nil {
				return errStopped
			}
		}
		if r.stopped() {
			return errStopped
		}
		r.update(func(s *types.Session) {
			if st.stage != types.StageCompleted {
				s.Status = types.StatusProcessing
			}
			s.ProcessingStage = st.stage
			s.ProcessingProgress = st.progress
			s.ProcessingMessage = st.message
		})
		r.logger.Debugf("[Orchestrator] Stage %s (%d%%)", st.stage, st.progress)
	}
	return nil
}

// endSession sends the best-effort session-end call. It ignores Cancel and a cancelled run context.
func (r *run) endSession(status types.SessionStatus, message string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.endTimeout())
	defer cancel()
	_, err := r.m.processor.Process(ctx, types.RemoteRequest{
		ID:       r.sessionID,
		Type:     types.RequestSessionEnd,
		MimeType: "application/json",
		Data: types.SessionEndSummary{
			Status:     status,
			DurationMs: r.m.opts.Clock.Now().Sub(r.start).Milliseconds(),
			Error:      message,
		},
		SessionID: r.sessionID,
	}, nil)
	if err != nil {
		r.logger.Warnf("[Orchestrator] Session end notification failed: %v", err)
	}
}

func (r *run) endTimeout() time.Duration {
	if r.m.opts.RequestTimeout > 0 {
		return r.m.opts.RequestTimeout
	}
	return tool.DefaultTimeout
}

func (r *run) complete() (types.WorkflowUpdate, error) {
	snap := r.update(func(s *types.Session) {
		s.Status = types.StatusCompleted
		s.ProcessingStage = types.StageCompleted
		s.ProcessingProgress = 100
		s.ProcessingMessage = "Submission processed successfully"
		s.EstimatedTimeRemaining = nil
	})
	r.endSession(types.StatusCompleted, "")

	if r.m.opts.Drafts != nil {
		if err := r.m.opts.Drafts.Delete(context.WithoutCancel(r.ctx)); err != nil {
			r.logger.Warnf("[Orchestrator] Failed to clear draft: %v", err)
		}
	}

	update := types.WorkflowUpdate{
		IsProcessing:       false,
		Step:               types.StepTitleSelection,
		Files:              snap.Files,
		Content:            snap.TextContent,
		Links:              snap.Links,
		ArticleType:        snap.ArticleType,
		AgentConfirmed:     true,
		ProcessingStage:    types.StageCompleted,
		ProcessingProgress: 100,
		ProcessingMessage:  snap.ProcessingMessage,
	}
	r.logger.Infof("[Orchestrator] Run completed in %s", r.m.opts.Clock.Now().Sub(r.start).Round(time.Millisecond))
	r.m.publish(types.Notification{
		Type:      types.NotifyTypeSessionCompleted,
		SessionID: r.sessionID,
		Title:     "Submission completed",
		Session:   &snap,
		Update:    &update,
	})
	return update, nil
}

func (r *run) fail(cause error) (types.WorkflowUpdate, error) {
	message := cause.Error()
	snap := r.update(func(s *types.Session) {
		s.Status = types.StatusError
		s.Error = message
		s.ProcessingStage = types.StageError
		s.ProcessingProgress = 0
		s.ProcessingMessage = "Submission failed"
		s.EstimatedTimeRemaining = nil
	})
	r.endSession(types.StatusError, message)

	update := types.WorkflowUpdate{
		IsProcessing:       false,
		Error:              message,
		ProcessingStage:    types.StageError,
		ProcessingProgress: 0,
		ProcessingMessage:  snap.ProcessingMessage,
	}
	r.logger.Errorf("[Orchestrator] Run failed: %v", cause)
	r.m.publish(types.Notification{
		Type:      types.NotifyTypeSessionFailed,
		SessionID: r.sessionID,
		Title:     "Submission failed",
		Message:   message,
		Session:   &snap,
		Update:    &update,
	})
	return update, cause
}

func (r *run) cancelled() (types.WorkflowUpdate, error) {
	snap := r.update(func(s *types.Session) {
		s.Status = types.StatusCancelled
		s.ProcessingMessage = "Submission cancelled"
		s.EstimatedTimeRemaining = nil
	})
	r.endSession(types.StatusCancelled, "")

	update := types.WorkflowUpdate{
		IsProcessing:       false,
		ProcessingStage:    snap.ProcessingStage,
		ProcessingProgress: snap.ProcessingProgress,
		ProcessingMessage:  snap.ProcessingMessage,
	}
	r.logger.Infof("[Orchestrator] Run cancelled")
	r.m.publish(types.Notification{
		Type:      types.NotifyTypeSessionCancelled,
		SessionID: r.sessionID,
		Title:     "Submission cancelled",
		Session:   &snap,
		Update:    &update,
	})
	return update, ErrCancelled
}
