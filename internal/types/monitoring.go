package types

import "time"

type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "info"
	SeverityWarning  IssueSeverity = "warning"
	SeverityCritical IssueSeverity = "critical"
)

type Issue struct {
	Component string        `json:"component"`
	Severity  IssueSeverity `json:"severity"`
	Message   string        `json:"message"`
}

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type TierHealth struct {
	Name             string           `json:"name"`
	Enabled          bool             `json:"enabled"`
	Attempts         int64            `json:"attempts"`
	Failures         int64            `json:"failures"`
	FailuresByClass  map[string]int64 `json:"failures_by_class,omitempty"`
	AverageLatencyMs float64          `json:"average_latency_ms"`
	LastError        string           `json:"last_error,omitempty"`
	LastFailureAt    *time.Time       `json:"last_failure_at,omitempty"`
}

type HealthReport struct {
	Status      HealthStatus  `json:"status"`
	GeneratedAt time.Time     `json:"generated_at"`
	Tiers       []TierHealth  `json:"tiers"`
	Feedback    FeedbackStats `json:"feedback"`
	Issues      []Issue       `json:"issues"`
}

type Notification struct {
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"` // new_wishlist_match, recommendation
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	ListingIDs []string  `json:"listing_ids,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
