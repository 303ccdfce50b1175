package models

import "github.com/google/uuid"

// Trend is the direction of a contributor's activity velocity.
type Trend string

// Velocity trends.
const (
	TrendAccelerating Trend = "accelerating"
	TrendSteady       Trend = "steady"
	TrendDeclining    Trend = "declining"
)

// VelocityMetrics compares contribution totals across adjacent windows.
type VelocityMetrics struct {
	Current7d     int     `json:"current_7d"`
	Previous7d    int     `json:"previous_7d"`
	Current30d    int     `json:"current_30d"`
	Previous30d   int     `json:"previous_30d"`
	Trend         Trend   `json:"trend"`
	ChangePercent float64 `json:"change_percent"`
}

// Timeframe names the comparison horizon of a topic shift.
type Timeframe string

// Shift timeframes.
const (
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
)

// Significance grades how large a topic shift is.
type Significance string

// Shift significance levels.
const (
	SignificanceMajor Significance = "major"
	SignificanceMinor Significance = "minor"
)

// TopicShift records a change between two topic sets.
type TopicShift struct {
	From         []string     `json:"from"`
	To           []string     `json:"to"`
	Timeframe    Timeframe    `json:"timeframe"`
	Significance Significance `json:"significance"`
	Confidence   float64      `json:"confidence"`
}

// TrendAnalysis is the trend output for one contributor in one workspace.
type TrendAnalysis struct {
	ContributorID  uuid.UUID       `json:"contributor_id"`
	WorkspaceID    uuid.UUID       `json:"workspace_id"`
	Velocity       VelocityMetrics `json:"velocity"`
	TopicShifts    []TopicShift    `json:"topic_shifts"`
	PredictedFocus []string        `json:"predicted_focus"`
	Confidence     float64         `json:"confidence"`
}
