package process

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// Session is one template-definition conversation. Context holds the
// free-form facts collected so far (industry, process type, goal).
// Version is bumped on every conversation append and guards against
// concurrent writers.
type Session struct {
	ID        uint64        `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string        `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	UserID    uint64        `gorm:"index;not null" json:"-"`
	Provider  string        `gorm:"type:varchar(32);not null" json:"provider"`
	Model     string        `gorm:"type:varchar(64);not null" json:"model"`
	Status    SessionStatus `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Version   uint64        `gorm:"not null;default:0" json:"-"`

	Context           map[string]string  `gorm:"serializer:json;type:text" json:"context,omitempty"`
	Requirements      []Requirement      `gorm:"serializer:json;type:text" json:"requirements,omitempty"`
	GeneratedTemplate *GeneratedTemplate `gorm:"serializer:json;type:text" json:"generated_template,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "process_sessions" }

type Message struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string            `gorm:"type:varchar(26);not null;index:idx_proc_msg_user_session,priority:2" json:"session_id"`
	UserID    uint64            `gorm:"not null;index:idx_proc_msg_user_session,priority:1" json:"-"`
	Role      string            `gorm:"type:varchar(16);index;not null" json:"role"`
	Content   string            `gorm:"type:text;not null" json:"content"`
	Metadata  map[string]string `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (Message) TableName() string { return "process_messages" }

// Requirement is one fact the background analyzer pulled out of the
// conversation; it feeds the completeness signal.
type Requirement struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Source      string    `json:"source"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// StructuredDraftDocument is the JSON object embedded in a generation
// reply inside a fenced block. Schema must equal DraftSchema exactly.
type StructuredDraftDocument struct {
	Schema               string                `json:"schema"`
	Answer               string                `json:"answer"`
	MissingInformation   []string              `json:"missing_information,omitempty"`
	ProcessTemplateDraft *ProcessTemplateDraft `json:"process_template_draft,omitempty"`
}

type ProcessTemplateDraft struct {
	Name          string         `json:"name,omitempty"`
	StepTemplates []StepTemplate `json:"stepTemplates"`
}

// StepTemplate is one step of a draft. Seq is the 1-based position and
// the only unit dependencies are expressed in. Basis says whether
// OffsetDays counts from the overall goal date or from the previous step.
type StepTemplate struct {
	Seq        int     `json:"seq"`
	Name       string  `json:"name"`
	Basis      string  `json:"basis"`
	OffsetDays float64 `json:"offsetDays"`
	DependsOn  []int   `json:"dependsOn,omitempty"`
}

const (
	BasisGoal = "goal"
	BasisPrev = "prev"
)

// GeneratedTemplate is the stable internal draft shape. Built fresh per
// turn and never mutated afterwards.
type GeneratedTemplate struct {
	Name     string           `json:"name"`
	Steps    []GeneratedStep  `json:"steps"`
	Metadata TemplateMetadata `json:"metadata"`
}

type GeneratedStep struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Duration     int    `json:"duration"`
	Dependencies []int  `json:"dependencies"`
}

type TemplateMetadata struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Confidence  float64   `json:"confidence"`
	Sources     []string  `json:"sources"`
}

// CreateTemplateRequest is the persistence-ready shape handed to the
// template store. OffsetDays is clamped and Basis recomputed from the
// emitted position, regardless of what the source carried.
type CreateTemplateRequest struct {
	Name          string               `json:"name"`
	StepTemplates []CreateStepTemplate `json:"stepTemplates"`
}

type CreateStepTemplate struct {
	Seq               int      `json:"seq"`
	Name              string   `json:"name"`
	Basis             string   `json:"basis"`
	OffsetDays        int      `json:"offsetDays"`
	RequiredArtifacts []string `json:"requiredArtifacts"`
	DependsOn         []int    `json:"dependsOn"`
}
