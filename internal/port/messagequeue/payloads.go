package messagequeue

import "encoding/json"

// ReviewCreatedPayload is the schema for reviews.created messages.
type ReviewCreatedPayload struct {
	TaskID       string `json:"task_id"`
	ProjectID    string `json:"project_id"`
	Scope        string `json:"review_scope"`
	TaskType     string `json:"task_type"`
	Requirements string `json:"requirements_description,omitempty"`
}

// ReviewStartedPayload is the schema for reviews.started messages.
type ReviewStartedPayload struct {
	TaskID string `json:"task_id"`
}

// ReviewCompletedPayload is the schema for reviews.completed messages.
// Succeeded=false marks the task failed without recording a result.
type ReviewCompletedPayload struct {
	TaskID           string          `json:"task_id"`
	Succeeded        bool            `json:"succeeded"`
	Scope            string          `json:"review_scope"`
	VersionID        string          `json:"code_file_version_id,omitempty"`
	CountsBySeverity map[string]int  `json:"counts_by_severity,omitempty"`
	CountsByCategory map[string]int  `json:"counts_by_category,omitempty"`
	Metadata         json.RawMessage `json:"result_metadata,omitempty"`
	ElapsedMS        int64           `json:"elapsed_ms"`
}
