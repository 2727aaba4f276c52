package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

func setupRepositoryTest(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewPostgresRepository(pool, testLogger()), pool
}

var feedbackRowColumns = []string{"id", "message_id", "user_id", "rating", "comment", "intent", "template_id", "tier", "source", "created_at"}

func TestPostgresRepository_Save(t *testing.T) {
	ctx := context.Background()
	rec := types.FeedbackRecord{
		ID: "f1", MessageID: "m1", UserID: "u1", Rating: 4,
		Intent: types.IntentSearch, TemplateID: "search.nearby", Tier: types.TierRuleBased,
		Source: types.FeedbackSourceChat, Timestamp: fixedNow,
	}

	t.Run("success", func(t *testing.T) {
		repo, pool := setupRepositoryTest(t)
		pool.ExpectExec("INSERT INTO feedback_records").
			WithArgs("f1", "m1", "u1", 4, "", "search", "search.nearby", "rule_based", "chat", fixedNow).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Save(ctx, rec))
		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		repo, pool := setupRepositoryTest(t)
		pool.ExpectExec("INSERT INTO feedback_records").
			WithArgs("f1", "m1", "u1", 4, "", "search", "search.nearby", "rule_based", "chat", fixedNow).
			WillReturnError(errors.New("connection reset"))

		err := repo.Save(ctx, rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.NoError(t, pool.ExpectationsWereMet())
	})
}

func TestPostgresRepository_ListSince(t *testing.T) {
	repo, pool := setupRepositoryTest(t)
	since := fixedNow.Add(-24 * time.Hour)
	pool.ExpectQuery("FROM feedback_records WHERE created_at >=").
		WithArgs(since, 10).
		WillReturnRows(pgxmock.NewRows(feedbackRowColumns).
			AddRow("f1", "m1", "u1", 5, "great", "greeting", "greeting.warm", "remote", "chat", fixedNow))

	recs, err := repo.ListSince(context.Background(), since, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.IntentGreeting, recs[0].Intent)
	assert.Equal(t, types.TierRemote, recs[0].Tier)
	assert.Equal(t, types.FeedbackSourceChat, recs[0].Source)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresRepository_Stats(t *testing.T) {
	repo, pool := setupRepositoryTest(t)
	pool.ExpectQuery("SELECT rating, intent, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"rating", "intent", "count"}).
			AddRow(5, "search", 6000).
			AddRow(1, "search", 2000).
			AddRow(3, "", 2000))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000, stats.Count)
	assert.InDelta(t, 3.6, stats.MeanRating, 1e-9)
	assert.Equal(t, map[int]int{1: 2000, 2: 0, 3: 2000, 4: 0, 5: 6000}, stats.Histogram)
	assert.InDelta(t, 4.0, stats.ByIntent[types.IntentSearch], 1e-9)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresRepository_LatestSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("none saved", func(t *testing.T) {
		repo, pool := setupRepositoryTest(t)
		pool.ExpectQuery("SELECT analysis FROM behavior_snapshots").WillReturnError(pgx.ErrNoRows)

		snap, err := repo.LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("decodes payload", func(t *testing.T) {
		repo, pool := setupRepositoryTest(t)
		payload, err := json.Marshal(types.BehaviorAnalysis{
			SampleSize: 3,
			Tuning:     types.Tuning{Version: 4, TemplateWeights: map[string]float64{"greeting.warm": 1.5}},
		})
		require.NoError(t, err)
		pool.ExpectQuery("SELECT analysis FROM behavior_snapshots").
			WillReturnRows(pgxmock.NewRows([]string{"analysis"}).AddRow(payload))

		snap, err := repo.LatestSnapshot(ctx)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, int64(4), snap.Tuning.Version)
		assert.Equal(t, 1.5, snap.Tuning.TemplateWeights["greeting.warm"])
	})
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(ctx, types.FeedbackRecord{ID: "1", UserID: "u1", Timestamp: fixedNow.Add(-2 * time.Hour)}))
	require.NoError(t, repo.Save(ctx, types.FeedbackRecord{ID: "2", UserID: "u2", Timestamp: fixedNow}))
	require.NoError(t, repo.Save(ctx, types.FeedbackRecord{ID: "3", UserID: "u1", Timestamp: fixedNow.Add(-time.Hour)}))

	all, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].ID)
	assert.Equal(t, "3", all[1].ID)

	mine, err := repo.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "3", mine[0].ID)

	recent, err := repo.ListSince(ctx, fixedNow.Add(-90*time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
