package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StageType identifies one of the four pipeline stages.
type StageType string

const (
	StageResearch StageType = "research"
	StageScript   StageType = "script"
	StageVoice    StageType = "voice"
	StageFinalize StageType = "finalize"
)

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = [4]StageType{StageResearch, StageScript, StageVoice, StageFinalize}

// ParseStageType validates a stage name coming from a URL or task payload.
func ParseStageType(s string) (StageType, error) {
	switch StageType(s) {
	case StageResearch, StageScript, StageVoice, StageFinalize:
		return StageType(s), nil
	}
	return "", fmt.Errorf("unknown stage type %q", s)
}

// Index returns the position of the stage in StageOrder.
func (s StageType) Index() int {
	for i, t := range StageOrder {
		if t == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s, or "" for finalize.
func (s StageType) Next() StageType {
	i := s.Index()
	if i < 0 || i >= len(StageOrder)-1 {
		return ""
	}
	return StageOrder[i+1]
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// Step is the persisted status record for one stage of one job.
type Step struct {
	Type        StageType  `json:"type"`
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Progress    int        `json:"progress"`
}

// Steps is the fixed four-step record of a job, indexed by stage order.
// Stored as a jsonb array; the size is a compile-time guarantee that every
// job carries exactly the four required stages.
type Steps [4]Step

// NewSteps returns the initial all-pending step array.
func NewSteps() Steps {
	var steps Steps
	for i, t := range StageOrder {
		steps[i] = Step{Type: t, Status: StepPending}
	}
	return steps
}

// Get returns a pointer into the array for the given stage.
func (s *Steps) Get(t StageType) *Step {
	return &s[t.Index()]
}

// Processing returns the stage currently marked processing, if any.
func (s *Steps) Processing() (StageType, bool) {
	for i := range s {
		if s[i].Status == StepProcessing {
			return s[i].Type, true
		}
	}
	return "", false
}

func (s Steps) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Steps) Scan(src interface{}) error {
	return scanJSON(src, s)
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

type LengthTier string

const (
	TierMini     LengthTier = "mini"
	TierStandard LengthTier = "standard"
	TierDeep     LengthTier = "deep"
)

type Plan string

const (
	PlanPersonal   Plan = "personal"
	PlanCreator    Plan = "creator"
	PlanBusiness   Plan = "business"
	PlanEnterprise Plan = "enterprise"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

const (
	MinTopicLen     = 1
	MaxTopicLen     = 500
	MaxEpisodeCount = 10
)

// JobConfig is the user-submitted generation configuration. Stored as jsonb.
type JobConfig struct {
	Topic                 string     `json:"topic"`
	TargetAudience        []string   `json:"target_audience"`
	Tone                  string     `json:"tone"`
	LengthTier            LengthTier `json:"length_tier"`
	EpisodeCount          int        `json:"episode_count"`
	Visibility            Visibility `json:"visibility"`
	PromoText             string     `json:"promo_text,omitempty"`
	CustomInstructions    string     `json:"custom_instructions,omitempty"`
	ScheduledEpisodeCount int        `json:"scheduled_episode_count,omitempty"`
}

// Validate rejects a config before any credits are reserved or steps created.
func (c *JobConfig) Validate() error {
	topic := strings.TrimSpace(c.Topic)
	if len(topic) < MinTopicLen || len(topic) > MaxTopicLen {
		return fmt.Errorf("topic must be between %d and %d characters", MinTopicLen, MaxTopicLen)
	}
	if len(c.TargetAudience) == 0 {
		return fmt.Errorf("target_audience must not be empty")
	}
	for _, a := range c.TargetAudience {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("target_audience entries must not be empty")
		}
	}
	switch c.LengthTier {
	case TierMini, TierStandard, TierDeep:
	default:
		return fmt.Errorf("unknown length tier %q", c.LengthTier)
	}
	if c.EpisodeCount < 1 || c.EpisodeCount > MaxEpisodeCount {
		return fmt.Errorf("episode_count must be between 1 and %d", MaxEpisodeCount)
	}
	if c.ScheduledEpisodeCount < 0 || c.ScheduledEpisodeCount > c.EpisodeCount {
		return fmt.Errorf("scheduled_episode_count must be between 0 and episode_count")
	}
	switch c.Visibility {
	case VisibilityPrivate, VisibilityPublic, "":
	default:
		return fmt.Errorf("unknown visibility %q", c.Visibility)
	}
	return nil
}

func (c JobConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *JobConfig) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// GenerationJob is one user-submitted request to produce podcast episodes.
type GenerationJob struct {
	ID              string     `db:"id"`
	UserID          int64      `db:"user_id"`
	Config          JobConfig  `db:"config"`
	Steps           Steps      `db:"steps"`
	CreditsUsed     int        `db:"credits_used"`
	Status          JobStatus  `db:"status"`
	Research        Research   `db:"research"`
	Scripts         ScriptList `db:"scripts"`
	Audio           Segments   `db:"audio"`
	PublicAudioURL  *string    `db:"public_audio_url"`
	DurationSeconds *int       `db:"duration_seconds"`
	AudioSizeBytes  *int64     `db:"audio_size_bytes"`
	Finalized       bool       `db:"finalized"`
	FinalizedAt     *time.Time `db:"finalized_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return fmt.Errorf("cannot scan %T into %T", src, dst)
}
