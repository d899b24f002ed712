package types

// RequestType names what a remote processing call carries.
type RequestType string

const (
	RequestFile         RequestType = "file"
	RequestLink         RequestType = "link"
	RequestText         RequestType = "text"
	RequestSessionStart RequestType = "session-start"
	RequestSessionEnd   RequestType = "session-end"
)

// RemoteRequest is one call to the processing backend.
// File requests carry no Data; the client streams File.Path instead.
type RemoteRequest struct {
	ID        string      `json:"id"`
	Type      RequestType `json:"type"`
	MimeType  string      `json:"mimeType"`
	Data      any         `json:"data,omitempty"`
	SessionID string      `json:"sessionId"`
	File      *FileRef    `json:"-"`
}

// RemoteResponse is the backend's answer. Success=false is treated as a failure.
type RemoteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SessionStartSummary is the session-start payload.
type SessionStartSummary struct {
	Files       int          `json:"files"`
	Links       int          `json:"links"`
	HasText     bool         `json:"hasText"`
	ArticleType *ArticleType `json:"articleType,omitempty"`
}

// SessionEndSummary is the session-end payload.
type SessionEndSummary struct {
	Status     SessionStatus `json:"status"`
	DurationMs int64         `json:"durationMs"`
	Error      string        `json:"error,omitempty"`
}

// LinkPayload is the data of a link request. Title and Description are best-effort.
type LinkPayload struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}
