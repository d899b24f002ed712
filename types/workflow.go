package types

// StepTitleSelection is the workflow step the caller moves to after a successful run.
const StepTitleSelection = "title-selection"

// WorkflowUpdate is the payload handed to the calling workflow when a run ends.
type WorkflowUpdate struct {
	IsProcessing       bool            `json:"isProcessing"`
	Step               string          `json:"step,omitempty"`
	Files              []UploadItem    `json:"files,omitempty"`
	Content            string          `json:"content,omitempty"`
	Links              []LinkItem      `json:"links,omitempty"`
	ArticleType        *ArticleType    `json:"articleType,omitempty"`
	AgentConfirmed     bool            `json:"agentConfirmed,omitempty"`
	Error              string          `json:"error,omitempty"`
	ProcessingStage    ProcessingStage `json:"processingStage"`
	ProcessingProgress int             `json:"processingProgress"`
	ProcessingMessage  string          `json:"processingMessage"`
}

// Succeeded reports whether the update is the success payload.
func (u WorkflowUpdate) Succeeded() bool {
	return u.Error == "" && u.ProcessingStage == StageCompleted
}
