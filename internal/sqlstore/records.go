package sqlstore

import (
	"time"

	"gorm.io/datatypes"

	"github.com/forgo/progression/internal/model"
)

// stateRecord stores the progression state document with its checksum
type stateRecord struct {
	UserID    string         `gorm:"primaryKey"`
	Version   int64          `gorm:"not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	Checksum  string         `gorm:"size:64;not null"`
	UpdatedAt time.Time
}

func (stateRecord) TableName() string { return "progression_states" }

type activityRecord struct {
	ID         string    `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;index:idx_activity_user_time,priority:1"`
	OccurredAt time.Time `gorm:"not null;index:idx_activity_user_time,priority:2"`
	Type       string    `gorm:"not null;index"`
	Dimension  string
	Title      string
	Metrics    datatypes.JSONType[map[string]float64]
	CreatedOn  time.Time
}

func (activityRecord) TableName() string { return "activities" }

// changeRecord is one row of the append-only change log
type changeRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"not null;index:idx_change_user_time,priority:1"`
	At        time.Time `gorm:"not null;index:idx_change_user_time,priority:2"`
	Type      string    `gorm:"not null"`
	Dimension string
	Subject   string
	Before    float64 `gorm:"column:value_before"`
	After     float64 `gorm:"column:value_after"`
	Message   string
}

func (changeRecord) TableName() string { return "change_log" }

// unlockRecord uses a unique (user, badge) pair so an unlock lands once
type unlockRecord struct {
	ID         string    `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;index:idx_unlock_user_badge,unique"`
	BadgeID    string    `gorm:"not null;index:idx_unlock_user_badge,unique"`
	Tier       string    `gorm:"not null"`
	XPAwarded  int64
	UnlockedAt time.Time `gorm:"not null"`
}

func (unlockRecord) TableName() string { return "badge_unlocks" }

type insightRecord struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"not null;index"`
	MetricA         string `gorm:"not null"`
	MetricB         string `gorm:"not null"`
	Coefficient     float64
	Direction       string
	SampleSize      int
	ValidationCount int
	FirstSeenAt     time.Time
	LastValidatedAt time.Time
}

func (insightRecord) TableName() string { return "correlation_insights" }

// runRecord is the durable run ledger; (user, date) is unique
type runRecord struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index:idx_run_user_date,unique"`
	Date         string `gorm:"not null;size:10;index:idx_run_user_date,unique"`
	ReportID     string
	AllSucceeded bool
	JobCount     int
	ChangeCount  int
	CompletedAt  time.Time
}

func (runRecord) TableName() string { return "run_history" }

type snapshotRecord struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"not null;index:idx_snapshot_user_date,unique"`
	Date           string `gorm:"not null;size:10;index:idx_snapshot_user_date,unique"`
	PermanentIndex int
	OverallRating  int
	WellnessIndex  *float64
	Dimensions     datatypes.JSONType[map[model.Dimension]model.DimensionStat]
	CreatedOn      time.Time
}

func (snapshotRecord) TableName() string { return "dimension_snapshots" }

type analyticsRecord struct {
	UserID         string `gorm:"primaryKey"`
	Date           string `gorm:"primaryKey;size:10"`
	XPByDimension  datatypes.JSONType[map[model.Dimension]int64]
	ActivityCounts datatypes.JSONType[map[string]int]
	ActiveMinutes  float64
	ActivityTotal  int
	UpdatedOn      time.Time
}

func (analyticsRecord) TableName() string { return "daily_analytics" }

type metricRecord struct {
	UserID  string `gorm:"primaryKey"`
	Date    string `gorm:"primaryKey;size:10"`
	Metric  string `gorm:"primaryKey"`
	Value   float64
	Samples int
}

func (metricRecord) TableName() string { return "daily_metrics" }
