package types

import "time"

// Draft is the subset of a session persisted for crash/reload recovery.
type Draft struct {
	TextContent string       `json:"textContent"`
	ArticleType *ArticleType `json:"articleType,omitempty"`
	LastSaved   time.Time    `json:"lastSaved"`
}
