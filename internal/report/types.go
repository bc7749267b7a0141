package report

import (
	"time"

	"github.com/pysugar/commshub/internal/db/models"
)

// Filters narrows the log set. Empty fields do not filter. Recipient
// dimensions match when any recipient of an entry has the value.
type Filters struct {
	Channel      string `json:"channel,omitempty"`
	Company      string `json:"company,omitempty"`
	Department   string `json:"department,omitempty"`
	Region       string `json:"region,omitempty"`
	Level        string `json:"level,omitempty"`
	WorkMode     string `json:"work_mode,omitempty"`
	ContractType string `json:"contract_type,omitempty"`
	Position     string `json:"position,omitempty"`
	// Sentiment is positive, neutral or negative; unscored entries never match.
	Sentiment string `json:"sentiment,omitempty"`
}

// Query selects the entries a report covers. Both bounds are inclusive.
type Query struct {
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Filters  Filters    `json:"filters"`
}

// Options tune report construction.
type Options struct {
	MaxAlerts int
	Location  *time.Location
}

// DefaultMaxAlerts caps the negative alert list when Options leaves it unset.
const DefaultMaxAlerts = 10

// Sentiment thresholds.
const (
	PositiveThreshold = 0.1
	NegativeThreshold = -0.1
	AlertThreshold    = -0.3
)

// Unknown groups entries whose first recipient is missing from the directory
// or has no value for the dimension.
const Unknown = "unknown"

// Report is the derived view over the filtered log set.
type Report struct {
	TotalMessages  int     `json:"total_messages"`
	SentCount      int     `json:"sent_count"`
	DeliveredCount int     `json:"delivered_count"`
	ReadCount      int     `json:"read_count"`
	FailedCount    int     `json:"failed_count"`
	DeliveryRate   float64 `json:"delivery_rate"`
	ReadRate       float64 `json:"read_rate"`
	BounceRate     float64 `json:"bounce_rate"`

	ByChannel      map[string]int `json:"by_channel"`
	ByStatus       map[string]int `json:"by_status"`
	ByCompany      map[string]int `json:"by_company"`
	ByDepartment   map[string]int `json:"by_department"`
	ByRegion       map[string]int `json:"by_region"`
	ByLevel        map[string]int `json:"by_level"`
	ByWorkMode     map[string]int `json:"by_work_mode"`
	ByContractType map[string]int `json:"by_contract_type"`
	ByPosition     map[string]int `json:"by_position"`

	Histograms Histograms       `json:"histograms"`
	Sentiment  SentimentMetrics `json:"sentiment_metrics"`
}

// Bucket is one histogram bar.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Histograms bucket sentAt by hour of day ("00".."23"), day ("2006-01-02")
// and month ("2006-01"). Only non-empty buckets are listed, sorted by key.
type Histograms struct {
	Hourly  []Bucket `json:"hourly"`
	Daily   []Bucket `json:"daily"`
	Monthly []Bucket `json:"monthly"`
}

// SentimentMetrics aggregates sentiment scores of scored entries.
type SentimentMetrics struct {
	ScoredMessages int                `json:"scored_messages"`
	AverageScore   float64            `json:"average_score"`
	ByChannel      map[string]float64 `json:"by_channel"`
	ByCompany      map[string]float64 `json:"by_company"`
	ByDepartment   map[string]float64 `json:"by_department"`
	Distribution   Distribution       `json:"distribution"`
	Alerts         []Alert            `json:"alerts"`
}

// Distribution is the percentage of scored entries per sentiment bucket.
type Distribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Alert is a strongly negative message.
type Alert struct {
	LogID        string         `json:"log_id"`
	SenderID     string         `json:"sender_id"`
	RecipientIDs []string       `json:"recipient_ids"`
	Channel      models.Channel `json:"channel"`
	Message      string         `json:"message"`
	Score        float64        `json:"score"`
	Label        string         `json:"label,omitempty"`
	SentAt       time.Time      `json:"sent_at"`
}
