package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/submitsession/api/models"
	"github.com/moyoez/submitsession/orchestrator"
	"github.com/moyoez/submitsession/session"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotIdle), errors.Is(err, orchestrator.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidLink), errors.Is(err, orchestrator.ErrEmptySubmission):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), tool.FastReturnError(err.Error()))
}

// lookup resolves :id or answers 404.
func lookup(c *gin.Context) (*orchestrator.Submission, bool) {
	id := c.Param("id")
	sub, ok := models.LookupSubmission(id)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found"))
		return nil, false
	}
	return sub, true
}

type sessionResponse struct {
	ID       string        `json:"id"`
	Restored bool          `json:"restored,omitempty"`
	Session  types.Session `json:"session"`
}

// CreateSession creates an idle submission, restoring the persisted draft into it.
// POST /api/submission/v1/sessions
func CreateSession(c *gin.Context) {
	id, sub, restored := models.CreateSubmission(c.Request.Context())
	tool.DefaultLogger.Infof("[Session] Created submission %s (draft restored: %v)", id, restored)
	c.JSON(http.StatusCreated, sessionResponse{ID: id, Restored: restored, Session: sub.Snapshot()})
}

// GetSession returns the current snapshot.
// GET /api/submission/v1/sessions/:id
func GetSession(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), Session: sub.Snapshot()})
}

// DeleteSession cancels any run and forgets the submission.
// DELETE /api/submission/v1/sessions/:id
func DeleteSession(c *gin.Context) {
	if !models.RemoveSubmission(c.Param("id")) {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// StartSession starts a run in the background and answers immediately.
// POST /api/submission/v1/sessions/:id/start
func StartSession(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	results, err := sub.StartAsync(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		respondError(c, err)
		return
	}
	snap := sub.Snapshot()
	go func(id string) {
		res := <-results
		switch {
		case res.Err == nil:
			tool.DefaultLogger.Infof("[Session] Submission %s completed", id)
		case errors.Is(res.Err, orchestrator.ErrCancelled):
			tool.DefaultLogger.Infof("[Session] Submission %s cancelled", id)
		default:
			tool.DefaultLogger.Warnf("[Session] Submission %s failed: %v", id, res.Err)
		}
	}(c.Param("id"))
	c.JSON(http.StatusAccepted, gin.H{"sessionId": snap.SessionID, "status": snap.Status})
}

// CancelSession requests cooperative cancellation.
// POST /api/submission/v1/sessions/:id/cancel
func CancelSession(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": sub.Cancel()})
}

// ResetSession returns a finished submission to idle.
// POST /api/submission/v1/sessions/:id/reset
func ResetSession(c *gin.Context) {
	sub, ok := lookup(c)
	if !ok {
		return
	}
	if err := sub.Reset(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), Session: sub.Snapshot()})
}
