package ledger

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"advocacy-engine/pkg/errutil"
)

const (
	TierNone           = "none"
	TierRecurring3Mo   = "recurring_3mo"
	TierRecurring6Mo   = "recurring_6mo"
	TierCommissionBump = "commission_bump"
	TierLifetime       = "lifetime"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

const (
	ValidityAccepted = "accepted"
	ValidityFlagged  = "flagged"
	ValidityRejected = "rejected"
)

// Participant is the canonical in-memory shape. Storage rows are Record;
// nothing outside this package touches the raw row layouts.
type Participant struct {
	ID                         string     `json:"id"`
	Handle                     string     `json:"handle"`
	TargetChannels             string     `json:"target_channels"`
	CurrentCyclePoints         int64      `json:"current_cycle_points"`
	LifetimePoints             int64      `json:"lifetime_points"`
	ConsecutiveCompliantCycles int64      `json:"consecutive_compliant_cycles"`
	RewardTier                 string     `json:"reward_tier"`
	Status                     string     `json:"status"`
	JoinedAt                   *time.Time `json:"joined_at,omitempty"`
}

func (p *Participant) Active() bool {
	return p.Status == StatusActive
}

// Record is the participants row. Two layouts exist in the wild: the older
// one stores the channel list in `platforms` and has no `joined_date`; the
// newer one uses `target_platforms` plus `joined_date`. Both column families
// are nullable here so either layout scans cleanly.
type Record struct {
	ID                         string     `gorm:"column:id;primaryKey"`
	Handle                     string     `gorm:"column:handle"`
	Platforms                  *string    `gorm:"column:platforms"`
	TargetPlatforms            *string    `gorm:"column:target_platforms"`
	JoinedDate                 *time.Time `gorm:"column:joined_date"`
	CurrentCyclePoints         int64      `gorm:"column:current_cycle_points"`
	LifetimePoints             int64      `gorm:"column:lifetime_points"`
	ConsecutiveCompliantCycles int64      `gorm:"column:consecutive_compliant_cycles"`
	RewardTier                 string     `gorm:"column:reward_tier"`
	Status                     string     `gorm:"column:status"`
	CreatedAt                  time.Time  `gorm:"column:created_at"`
	UpdatedAt                  time.Time  `gorm:"column:updated_at"`
}

func (Record) TableName() string {
	return "participants"
}

// Normalize maps a row of either layout onto the canonical Participant. A row
// matching neither layout still normalizes (channels empty) and reports
// SchemaMismatch so the caller can warn without dropping the participant.
func (r *Record) Normalize() (*Participant, error) {
	p := &Participant{
		ID:                         r.ID,
		Handle:                     r.Handle,
		CurrentCyclePoints:         r.CurrentCyclePoints,
		LifetimePoints:             r.LifetimePoints,
		ConsecutiveCompliantCycles: r.ConsecutiveCompliantCycles,
		RewardTier:                 r.RewardTier,
		Status:                     r.Status,
	}

	if p.RewardTier == "" {
		p.RewardTier = TierNone
	}

	switch {
	case r.TargetPlatforms != nil:
		p.TargetChannels = *r.TargetPlatforms
		p.JoinedAt = r.JoinedDate
	case r.Platforms != nil:
		p.TargetChannels = *r.Platforms
	default:
		return p, errutil.SchemaMismatch("participant row matches no known layout", nil,
			errutil.WithDetails(errutil.Detail{Field: "participant_id", Message: r.ID}))
	}

	return p, nil
}

// NewRecord writes the canonical layout; the legacy `platforms` column is
// left NULL on rows we author.
func NewRecord(p *Participant) *Record {
	channels := p.TargetChannels
	return &Record{
		ID:                         p.ID,
		Handle:                     p.Handle,
		TargetPlatforms:            &channels,
		JoinedDate:                 p.JoinedAt,
		CurrentCyclePoints:         p.CurrentCyclePoints,
		LifetimePoints:             p.LifetimePoints,
		ConsecutiveCompliantCycles: p.ConsecutiveCompliantCycles,
		RewardTier:                 p.RewardTier,
		Status:                     p.Status,
	}
}

type EngagementMetrics struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
	Retweets int64 `json:"retweets"`
	Saves    int64 `json:"saves"`
	Views    int64 `json:"views"`
}

func (m EngagementMetrics) JSON() datatypes.JSON {
	b, _ := json.Marshal(m)
	return datatypes.JSON(b)
}

func MetricsFromJSON(raw datatypes.JSON) EngagementMetrics {
	var m EngagementMetrics
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &m)
	}
	return m
}

type Submission struct {
	ID                 string         `gorm:"column:id;primaryKey"`
	ReferenceCode      string         `gorm:"column:reference_code"`
	ParticipantID      string         `gorm:"column:participant_id;index:idx_submissions_dedup,priority:1"`
	Platform           string         `gorm:"column:platform"`
	ContentType        string         `gorm:"column:content_type"`
	Channel            string         `gorm:"column:channel"`
	SourceReference    string         `gorm:"column:source_reference"`
	ContentFingerprint string         `gorm:"column:content_fingerprint;index:idx_submissions_dedup,priority:2"`
	EngagementMetrics  datatypes.JSON `gorm:"column:engagement_metrics"`
	PointsAwarded      int64          `gorm:"column:points_awarded"`
	IsDuplicate        bool           `gorm:"column:is_duplicate"`
	ValidityStatus     string         `gorm:"column:validity_status"`
	OraclePayload      datatypes.JSON `gorm:"column:oracle_payload"`
	CreatedAt          time.Time      `gorm:"column:created_at"`
}

func (Submission) TableName() string {
	return "submissions"
}

type CycleReport struct {
	ID                  string    `gorm:"column:id;primaryKey"`
	CycleID             string    `gorm:"column:cycle_id;uniqueIndex:idx_cycle_reports_cycle_participant,priority:1"`
	ParticipantID       string    `gorm:"column:participant_id;uniqueIndex:idx_cycle_reports_cycle_participant,priority:2"`
	TotalPoints         int64     `gorm:"column:total_points"`
	AcceptedSubmissions int64     `gorm:"column:accepted_submissions"`
	Compliant           bool      `gorm:"column:compliant"`
	TierAfter           string    `gorm:"column:tier_after"`
	GeneratedAt         time.Time `gorm:"column:generated_at"`
}

func (CycleReport) TableName() string {
	return "cycle_reports"
}

// Models lists every table the ledger owns, in migration order.
func Models() []any {
	return []any{&Record{}, &Submission{}, &CycleReport{}}
}
