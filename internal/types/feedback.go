package types

import (
	"time"
)

type FeedbackSource string

const (
	FeedbackSourceChat           FeedbackSource = "chat"
	FeedbackSourceRecommendation FeedbackSource = "recommendation"
)

// FeedbackInput is what callers submit; it is validated before becoming a record.
type FeedbackInput struct {
	MessageID  string         `json:"message_id"`
	UserID     string         `json:"user_id,omitempty"`
	Rating     int            `json:"rating"`
	Comment    string         `json:"comment,omitempty"`
	Intent     Intent         `json:"intent,omitempty"`
	TemplateID string         `json:"template_id,omitempty"`
	Tier       ResponseTier   `json:"tier,omitempty"`
	Source     FeedbackSource `json:"source,omitempty"`
}

// FeedbackRecord is append-only and never mutated after creation.
type FeedbackRecord struct {
	ID         string         `json:"id"`
	MessageID  string         `json:"message_id"`
	UserID     string         `json:"user_id,omitempty"`
	Rating     int            `json:"rating"`
	Comment    string         `json:"comment,omitempty"`
	Intent     Intent         `json:"intent,omitempty"`
	TemplateID string         `json:"template_id,omitempty"`
	Tier       ResponseTier   `json:"tier,omitempty"`
	Source     FeedbackSource `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
}

type FeedbackStats struct {
	Count      int                `json:"count"`
	MeanRating float64            `json:"mean_rating"`
	Histogram  map[int]int        `json:"histogram"` // rating 1..5 -> count
	ByIntent   map[Intent]float64 `json:"by_intent,omitempty"`
}

// RecommendationWeights are the tunable scorer parameters.
type RecommendationWeights struct {
	Wishlist            float64 `json:"wishlist" mapstructure:"wishlist"`
	CategoryBooking     float64 `json:"category_booking" mapstructure:"categoryBooking"`
	Rating              float64 `json:"rating" mapstructure:"rating"`
	ReviewSentiment     float64 `json:"review_sentiment" mapstructure:"reviewSentiment"`
	Recency             float64 `json:"recency" mapstructure:"recency"`
	BookedPenalty       float64 `json:"booked_penalty" mapstructure:"bookedPenalty"`
	RecencyHalfLifeDays float64 `json:"recency_half_life_days" mapstructure:"recencyHalfLifeDays"`
}

// Tuning is one published parameter snapshot. Readers get copies.
type Tuning struct {
	Version         int64                 `json:"version"`
	UpdatedAt       time.Time             `json:"updated_at"`
	TemplateWeights map[string]float64    `json:"template_weights"`
	Recommendation  RecommendationWeights `json:"recommendation"`
}

// Clone deep-copies the snapshot.
func (t Tuning) Clone() Tuning {
	out := t
	out.TemplateWeights = make(map[string]float64, len(t.TemplateWeights))
	for k, v := range t.TemplateWeights {
		out.TemplateWeights[k] = v
	}
	return out
}

// TemplateWeight returns the weight for a template, defaulting to 1.
func (t Tuning) TemplateWeight(id string) float64 {
	if w, ok := t.TemplateWeights[id]; ok {
		return w
	}
	return 1
}

type Adjustment struct {
	Parameter string  `json:"parameter"`
	OldValue  float64 `json:"old_value"`
	NewValue  float64 `json:"new_value"`
	Reason    string  `json:"reason"`
}

// BehaviorAnalysis is the outcome of one self-improvement run.
type BehaviorAnalysis struct {
	AnalyzedAt  time.Time     `json:"analyzed_at"`
	SampleSize  int           `json:"sample_size"`
	Stats       FeedbackStats `json:"stats"`
	Adjustments []Adjustment  `json:"adjustments"`
	Tuning      Tuning        `json:"tuning"`
}

type ImprovementReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Latest      *BehaviorAnalysis `json:"latest,omitempty"`
	Current     Tuning            `json:"current"`
	Evidence    FeedbackStats     `json:"evidence"`
}
