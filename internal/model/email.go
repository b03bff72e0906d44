package model

import "time"

// WorkflowStage is the lifecycle state of an email record. Stage changes go
// through the workflow engine only.
type WorkflowStage string

const (
	StageReceived        WorkflowStage = "received"
	StageAnalyzed        WorkflowStage = "analyzed"
	StageApprovedContent WorkflowStage = "approved_content"
	StageReadyPublish    WorkflowStage = "ready_publish"
	StagePublished       WorkflowStage = "published"
	StageRejected        WorkflowStage = "rejected"
	StageArchived        WorkflowStage = "archived"
)

// Terminal reports whether the stage has no outgoing transitions.
func (s WorkflowStage) Terminal() bool {
	switch s {
	case StagePublished, StageRejected, StageArchived:
		return true
	}
	return false
}

func (s WorkflowStage) Valid() bool {
	switch s {
	case StageReceived, StageAnalyzed, StageApprovedContent, StageReadyPublish,
		StagePublished, StageRejected, StageArchived:
		return true
	}
	return false
}

type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// GeneratedDraft is the AI-produced post candidate.
type GeneratedDraft struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Category        string   `json:"category,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
}

// FinalContent is the editor-reviewed draft frozen at ready_publish.
type FinalContent struct {
	GeneratedDraft
	PreparedBy string    `json:"prepared_by"`
	PreparedAt time.Time `json:"prepared_at"`
}

// AIAnalysis is written once when the record reaches the analyzed stage.
// FinalContent is appended later at ready_publish; the rest is immutable.
type AIAnalysis struct {
	Category     string          `json:"category"`
	Confidence   float64         `json:"confidence"`
	IsRelevant   bool            `json:"is_relevant"`
	Topics       []string        `json:"topics,omitempty"`
	Draft        *GeneratedDraft `json:"draft,omitempty"`
	AnalyzedAt   time.Time       `json:"analyzed_at"`
	FinalContent *FinalContent   `json:"final_content,omitempty"`
}

// UserFeedback records the human review decision, either an approval
// (rating, notes, optional edits) or a rejection (reason).
type UserFeedback struct {
	Rating          int             `json:"rating,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Modifications   *GeneratedDraft `json:"modifications,omitempty"`
	Approver        string          `json:"approver,omitempty"`
	ReviewedAt      time.Time       `json:"reviewed_at"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
}

// EmailRecord is one inbound press submission and its workflow state.
// Sender, subject, body, fingerprint and received_at never change after
// ingestion; stage and payloads change only through engine transitions.
type EmailRecord struct {
	ID           string        `json:"id"`
	Fingerprint  string        `json:"fingerprint"`
	Sender       string        `json:"sender"`
	Subject      string        `json:"subject"`
	BodyText     string        `json:"body_text"`
	ReceivedAt   time.Time     `json:"received_at"`
	Stage        WorkflowStage `json:"stage"`
	Priority     Priority      `json:"priority"`
	AssignedTo   string        `json:"assigned_to,omitempty"`
	AutoProcess  bool          `json:"auto_process"`
	AIAnalysis   *AIAnalysis   `json:"ai_analysis,omitempty"`
	UserFeedback *UserFeedback `json:"user_feedback,omitempty"`
	PublishedRef string        `json:"published_reference,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
