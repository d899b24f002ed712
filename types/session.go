package types

import "time"

// SessionStatus is the lifecycle state of one submission attempt.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusPreparing  SessionStatus = "preparing"
	StatusUploading  SessionStatus = "uploading"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusError      SessionStatus = "error"
	StatusCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions happen for the current sessionId.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Running reports whether an orchestrator run owns the session.
func (s SessionStatus) Running() bool {
	return s == StatusPreparing || s == StatusUploading || s == StatusProcessing
}

// ProcessingStage is the finer-grained pipeline indicator used once raw uploads finish.
type ProcessingStage string

const (
	StageUploading  ProcessingStage = "uploading"
	StageAnalyzing  ProcessingStage = "analyzing"
	StageExtracting ProcessingStage = "extracting"
	StageOrganizing ProcessingStage = "organizing"
	StageCompleted  ProcessingStage = "completed"
	StageError      ProcessingStage = "error"
)

// ItemStatus is shared by upload and link items.
type ItemStatus string

const (
	ItemQueued     ItemStatus = "queued"
	ItemUploading  ItemStatus = "uploading"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemError      ItemStatus = "error"
)

// ArticleType is the classification tag chosen by the user.
type ArticleType struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// FileRef points at a local file that has already been resolved (stat + mime).
type FileRef struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// UploadItem is one file attachment of the submission.
type UploadItem struct {
	ID       string     `json:"id"`
	File     FileRef    `json:"file"`
	Progress int        `json:"progress"`
	Status   ItemStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	Retries  int        `json:"retries"`
}

// LinkItem is one external link of the submission.
type LinkItem struct {
	ID     string     `json:"id"`
	URL    string     `json:"url"`
	Status ItemStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Session is the canonical record of one submission attempt.
type Session struct {
	SessionID              string          `json:"sessionId"`
	Status                 SessionStatus   `json:"status"`
	TextContent            string          `json:"textContent"`
	Files                  []UploadItem    `json:"files"`
	Links                  []LinkItem      `json:"links"`
	Progress               int             `json:"progress"`
	ProcessingStage        ProcessingStage `json:"processingStage"`
	ProcessingProgress     int             `json:"processingProgress"`
	ProcessingMessage      string          `json:"processingMessage"`
	TextProcessed          bool            `json:"textProcessed"` // set once the text call succeeded
	Error                  string          `json:"error,omitempty"`
	StartTime              time.Time       `json:"startTime"`
	EstimatedTimeRemaining *time.Duration  `json:"estimatedTimeRemaining,omitempty"`
	ArticleType            *ArticleType    `json:"articleType,omitempty"`
}

// Clone returns a deep copy, safe to hand out as a snapshot.
func (s *Session) Clone() Session {
	out := *s
	out.Files = append([]UploadItem(nil), s.Files...)
	out.Links = append([]LinkItem(nil), s.Links...)
	if s.EstimatedTimeRemaining != nil {
		eta := *s.EstimatedTimeRemaining
		out.EstimatedTimeRemaining = &eta
	}
	if s.ArticleType != nil {
		at := *s.ArticleType
		out.ArticleType = &at
	}
	return out
}

// SessionUploadStats tracks upload statistics for a session
type SessionUploadStats struct {
	TotalFiles    int
	SuccessFiles  int
	FailedFiles   int
	FailedFileIds []string
}

// Stats counts terminal file outcomes of the session.
func (s *Session) Stats() SessionUploadStats {
	stats := SessionUploadStats{TotalFiles: len(s.Files)}
	for _, f := range s.Files {
		switch f.Status {
		case ItemCompleted:
			stats.SuccessFiles++
		case ItemError:
			stats.FailedFiles++
			stats.FailedFileIds = append(stats.FailedFileIds, f.ID)
		}
	}
	return stats
}
