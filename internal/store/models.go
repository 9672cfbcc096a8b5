package store

import (
	"strings"
	"time"
)

// Stage represents the lifecycle position of a discovered item and its
// pipeline record.
type Stage string

const (
	StageDiscovered    Stage = "discovered"
	StageQualityCheck  Stage = "quality_check"
	StageApproved      Stage = "approved"
	StageRejected      Stage = "rejected"
	StageHoldForReview Stage = "hold_for_review"
	StageProcessing    Stage = "processing"
	StageGenerated     Stage = "generated"
	StageFailed        Stage = "failed"
	StageReviewed      Stage = "reviewed"
	StagePublished     Stage = "published"
)

var allStages = []Stage{
	StageDiscovered,
	StageQualityCheck,
	StageApproved,
	StageRejected,
	StageHoldForReview,
	StageProcessing,
	StageGenerated,
	StageFailed,
	StageReviewed,
	StagePublished,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// Terminal reports whether the automated pipeline takes no further action in
// this stage. Held records can still be re-driven by an operator.
func (s Stage) Terminal() bool {
	switch s {
	case StageRejected, StageHoldForReview, StagePublished:
		return true
	default:
		return false
	}
}

// Source is a monitored external system persisted in the registry.
type Source struct {
	ID                  int64
	Type                string
	Name                string
	BaseURL             string
	AdapterConfig       string
	CheckFrequency      time.Duration
	Weight              float64
	RateLimitPerHour    int64
	LastCheckedAt       *time.Time
	NextCheckAt         time.Time
	Active              bool
	ConsecutiveFailures int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Item is a canonical discovered content record. Items are never deleted by
// the pipeline; stage transitions preserve the audit trail.
type Item struct {
	ID           int64
	SourceID     int64
	SourceType   string
	ExternalID   string
	URL          string
	Title        string
	Description  string
	Author       string
	PublishedAt  *time.Time
	DiscoveredAt time.Time
	ContentHash  string
	HashBucket   int64
	Relevance    float64
	Engagement   float64
	Freshness    float64
	QualityScore float64
	Stage        Stage
	IsDuplicate  bool
	DuplicateOf  *int64
	Tags         []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Filter kinds. Each kind owns its own config shape; see the filters package.
const (
	FilterKeyword        = "keyword"
	FilterRegex          = "regex"
	FilterScoreThreshold = "score_threshold"
	FilterSourceSpecific = "source_specific"
)

// Filter is an operator-configured accept/reject rule.
type Filter struct {
	ID             int64
	Name           string
	Kind           string
	SourceType     string // empty means the filter applies to all sources
	Priority       int
	Active         bool
	Advisory       bool
	Config         string
	TotalEvaluated int64
	TotalPassed    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PipelineRecord tracks one item's progress through generation, review, and
// publication. Owned exclusively by the pipeline state machine.
type PipelineRecord struct {
	ID                    int64
	ItemID                int64
	Stage                 Stage
	DiscoveredAt          time.Time
	QualityCheckedAt      *time.Time
	GenerationStartedAt   *time.Time
	GenerationCompletedAt *time.Time
	ReviewedAt            *time.Time
	PublishedAt           *time.Time
	ProcessingAttempts    int
	LastError             string
	LastErrorAt           *time.Time
	ManualReviewRequired  bool
	AutoApproved          bool
	VerdictFilter         string
	ContentRef            string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// LogEntry is an append-only monitoring log row summarizing a scheduler cycle
// or a global pipeline event.
type LogEntry struct {
	ID           int64
	SourceID     *int64
	Level        string
	Message      string
	Discovered   int
	Processed    int
	Filtered     int
	Duration     time.Duration
	ErrorCode    string
	ErrorDetails string
	CreatedAt    time.Time
}

// HealthSummary describes aggregated item counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Discovery int
	Approved  int
	InFlight  int
	Held      int
	Rejected  int
	Published int
}
