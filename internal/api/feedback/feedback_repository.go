package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	database "github.com/FACorreiaa/go-ren-assistant/app/db"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

// Repository is the append-only feedback log plus the history of published
// behavior snapshots.
type Repository interface {
	Save(ctx context.Context, rec types.FeedbackRecord) error
	List(ctx context.Context, limit int) ([]types.FeedbackRecord, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]types.FeedbackRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]types.FeedbackRecord, error)
	// Stats aggregates over every stored record.
	Stats(ctx context.Context) (types.FeedbackStats, error)
	SaveSnapshot(ctx context.Context, analysis types.BehaviorAnalysis) error
	// LatestSnapshot returns nil without error when nothing was saved yet.
	LatestSnapshot(ctx context.Context) (*types.BehaviorAnalysis, error)
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)

type PostgresRepository struct {
	logger *slog.Logger
	db     database.DBTX
}

func NewPostgresRepository(db database.DBTX, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{logger: logger, db: db}
}

const feedbackColumns = `id::text, message_id, user_id, rating, comment, intent, template_id, tier, source, created_at`

func (r *PostgresRepository) Save(ctx context.Context, rec types.FeedbackRecord) error {
	ctx, span := otel.Tracer("FeedbackRepository").Start(ctx, "Save")
	defer span.End()
	span.SetAttributes(attribute.Int("rating", rec.Rating))

	query := `
		INSERT INTO feedback_records (id, message_id, user_id, rating, comment, intent, template_id, tier, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.MessageID, rec.UserID, rec.Rating, rec.Comment,
		string(rec.Intent), rec.TemplateID, string(rec.Tier), string(rec.Source), rec.Timestamp,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]types.FeedbackRecord, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback_records ORDER BY created_at DESC LIMIT $1`
	return r.query(ctx, "List", query, limit)
}

func (r *PostgresRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]types.FeedbackRecord, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback_records WHERE created_at >= $1 ORDER BY created_at DESC LIMIT $2`
	return r.query(ctx, "ListSince", query, since, limit)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.FeedbackRecord, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback_records WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.query(ctx, "ListByUser", query, userID, limit)
}

func (r *PostgresRepository) Stats(ctx context.Context) (types.FeedbackStats, error) {
	ctx, span := otel.Tracer("FeedbackRepository").Start(ctx, "Stats")
	defer span.End()

	query := `SELECT rating, intent, COUNT(*) FROM feedback_records GROUP BY rating, intent`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return types.FeedbackStats{}, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	defer rows.Close()

	var buckets []ratingBucket
	for rows.Next() {
		var (
			b      ratingBucket
			intent string
		)
		if err := rows.Scan(&b.Rating, &intent, &b.Count); err != nil {
			return types.FeedbackStats{}, fmt.Errorf("failed to scan feedback aggregate: %w", err)
		}
		b.Intent = types.Intent(intent)
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return types.FeedbackStats{}, fmt.Errorf("error iterating feedback aggregate: %w", err)
	}
	return statsFromBuckets(buckets), nil
}

func (r *PostgresRepository) query(ctx context.Context, name, query string, args ...any) ([]types.FeedbackRecord, error) {
	ctx, span := otel.Tracer("FeedbackRepository").Start(ctx, name)
	defer span.End()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var out []types.FeedbackRecord
	for rows.Next() {
		var (
			rec                  types.FeedbackRecord
			intent, tier, source string
		)
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.UserID, &rec.Rating, &rec.Comment,
			&intent, &rec.TemplateID, &tier, &source, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		rec.Intent = types.Intent(intent)
		rec.Tier = types.ResponseTier(tier)
		rec.Source = types.FeedbackSource(source)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SaveSnapshot(ctx context.Context, analysis types.BehaviorAnalysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal behavior snapshot: %w", err)
	}
	query := `
		INSERT INTO behavior_snapshots (version, analysis, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (version) DO UPDATE SET analysis = EXCLUDED.analysis, created_at = EXCLUDED.created_at`
	if _, err := r.db.Exec(ctx, query, analysis.Tuning.Version, payload, analysis.AnalyzedAt); err != nil {
		return fmt.Errorf("failed to save behavior snapshot: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LatestSnapshot(ctx context.Context) (*types.BehaviorAnalysis, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT analysis FROM behavior_snapshots ORDER BY version DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load behavior snapshot: %w", err)
	}
	var analysis types.BehaviorAnalysis
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, fmt.Errorf("failed to decode behavior snapshot: %w", err)
	}
	return &analysis, nil
}

// MemoryRepository keeps feedback in process. Used when no database is
// configured and in tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	records   []types.FeedbackRecord
	snapshots []types.BehaviorAnalysis
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Save(_ context.Context, rec types.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryRepository) List(_ context.Context, limit int) ([]types.FeedbackRecord, error) {
	return m.filter(limit, func(types.FeedbackRecord) bool { return true }), nil
}

func (m *MemoryRepository) ListSince(_ context.Context, since time.Time, limit int) ([]types.FeedbackRecord, error) {
	return m.filter(limit, func(r types.FeedbackRecord) bool { return !r.Timestamp.Before(since) }), nil
}

func (m *MemoryRepository) ListByUser(_ context.Context, userID string, limit int) ([]types.FeedbackRecord, error) {
	return m.filter(limit, func(r types.FeedbackRecord) bool { return r.UserID == userID }), nil
}

func (m *MemoryRepository) Stats(_ context.Context) (types.FeedbackStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ComputeStats(m.records), nil
}

// filter returns matches newest first, like the SQL queries.
func (m *MemoryRepository) filter(limit int, keep func(types.FeedbackRecord) bool) []types.FeedbackRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.FeedbackRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryRepository) SaveSnapshot(_ context.Context, analysis types.BehaviorAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	analysis.Tuning = analysis.Tuning.Clone()
	m.snapshots = append(m.snapshots, analysis)
	return nil
}

func (m *MemoryRepository) LatestSnapshot(_ context.Context) (*types.BehaviorAnalysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	latest := m.snapshots[len(m.snapshots)-1]
	latest.Tuning = latest.Tuning.Clone()
	return &latest, nil
}
