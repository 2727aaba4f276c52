package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-ren-assistant/app/observability/metrics"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/aicontext"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/feedback"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/location"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/recommendations"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const (
	NotificationNewWishlistMatch = "new_wishlist_match"
	NotificationRecommendation   = "recommendation"

	suppressBelowRating = 2.5
	recentFeedbackLimit = 20
	minTierAttempts     = 10
	wishlistLimit       = 100
	newListingLimit     = 10

	pendingClaim = "pending"
)

type Service interface {
	ScanCodebase(ctx context.Context) []types.Issue
	GenerateHealthReport(ctx context.Context) types.HealthReport
	CheckForProactiveNotifications(ctx context.Context, userID string) (*types.Notification, error)
}

var _ Service = (*ServiceImpl)(nil)

// DependencyCheck verifies one external dependency, e.g. a database ping.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Options struct {
	NewListingWindow time.Duration
	DedupeTTL        time.Duration
	MinScore         float64
}

type ServiceImpl struct {
	logger      *slog.Logger
	tiers       *TierStats
	graph       *location.Graph
	feedback    feedback.Service
	activity    aicontext.Repository
	listings    aicontext.ListingRepository
	recommender recommendations.Service
	depChecks   []DependencyCheck
	opts        Options
	sent        *cache.Cache
	now         func() time.Time
}

func NewService(
	tiers *TierStats,
	graph *location.Graph,
	feedbackService feedback.Service,
	activity aicontext.Repository,
	listings aicontext.ListingRepository,
	recommender recommendations.Service,
	opts Options,
	logger *slog.Logger,
	depChecks ...DependencyCheck,
) *ServiceImpl {
	if opts.NewListingWindow <= 0 {
		opts.NewListingWindow = 72 * time.Hour
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 24 * time.Hour
	}
	return &ServiceImpl{
		logger:      logger,
		tiers:       tiers,
		graph:       graph,
		feedback:    feedbackService,
		activity:    activity,
		listings:    listings,
		recommender: recommender,
		depChecks:   depChecks,
		opts:        opts,
		sent:        cache.New(opts.DedupeTTL, 2*opts.DedupeTTL),
		now:         time.Now,
	}
}

// ScanCodebase inspects configuration and runtime state for problems. It
// never fails; unreadable state is reported as an issue.
func (s *ServiceImpl) ScanCodebase(ctx context.Context) []types.Issue {
	ctx, span := otel.Tracer("MonitoringService").Start(ctx, "ScanCodebase")
	defer span.End()

	stats, err := s.feedback.GetFeedbackStats(ctx)
	issues := s.scan(ctx, s.tiers.Snapshot(), stats, err)
	span.SetAttributes(attribute.Int("issues", len(issues)))
	return issues
}

func (s *ServiceImpl) scan(ctx context.Context, tiers []types.TierHealth, stats types.FeedbackStats, statsErr error) []types.Issue {
	issues := []types.Issue{}
	add := func(component string, sev types.IssueSeverity, format string, args ...any) {
		issues = append(issues, types.Issue{Component: component, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	for _, t := range tiers {
		component := "tier." + t.Name
		if !t.Enabled {
			sev := types.SeverityInfo
			if t.Name == string(types.TierRemote) {
				sev = types.SeverityWarning
			}
			add(component, sev, "%s tier is disabled", t.Name)
			continue
		}
		if t.Attempts < minTierAttempts {
			continue
		}
		switch rate := FailureRate(t); {
		case rate >= 0.9:
			add(component, types.SeverityCritical, "%s tier fails %.0f%% of calls (last error: %s)", t.Name, rate*100, t.LastError)
		case rate >= 0.5:
			add(component, types.SeverityWarning, "%s tier fails %.0f%% of calls", t.Name, rate*100)
		}
	}

	if s.graph == nil || s.graph.Size() == 0 {
		add("location", types.SeverityCritical, "location graph is empty")
	}

	switch {
	case statsErr != nil:
		add("feedback", types.SeverityWarning, "feedback store unavailable: %v", statsErr)
	case stats.Count == 0:
		add("feedback", types.SeverityInfo, "no feedback collected yet")
	case stats.Count >= minTierAttempts && stats.MeanRating < suppressBelowRating:
		add("feedback", types.SeverityWarning, "mean rating %.2f over %d responses", stats.MeanRating, stats.Count)
	}

	for _, p := range s.depChecks {
		if err := p.Check(ctx); err != nil {
			s.logger.WarnContext(ctx, "Dependency check failed", slog.String("dependency", p.Name), slog.Any("error", err))
			add(p.Name, types.SeverityCritical, "%s unreachable: %v", p.Name, err)
		}
	}
	return issues
}

func (s *ServiceImpl) GenerateHealthReport(ctx context.Context) types.HealthReport {
	ctx, span := otel.Tracer("MonitoringService").Start(ctx, "GenerateHealthReport")
	defer span.End()

	tiers := s.tiers.Snapshot()
	stats, err := s.feedback.GetFeedbackStats(ctx)
	if err != nil {
		stats = feedback.ComputeStats(nil)
	}
	issues := s.scan(ctx, tiers, stats, err)

	report := types.HealthReport{
		Status:      statusFor(issues),
		GeneratedAt: s.now().UTC(),
		Tiers:       tiers,
		Feedback:    stats,
		Issues:      issues,
	}
	span.SetAttributes(attribute.String("status", string(report.Status)))
	return report
}

func statusFor(issues []types.Issue) types.HealthStatus {
	status := types.HealthHealthy
	for _, is := range issues {
		switch is.Severity {
		case types.SeverityCritical:
			return types.HealthUnhealthy
		case types.SeverityWarning:
			status = types.HealthDegraded
		}
	}
	return status
}

// CheckForProactiveNotifications returns at most one notification per user
// per dedupe period, or nil when nothing is worth sending.
func (s *ServiceImpl) CheckForProactiveNotifications(ctx context.Context, userID string) (*types.Notification, error) {
	ctx, span := otel.Tracer("MonitoringService").Start(ctx, "CheckForProactiveNotifications")
	defer span.End()
	l := s.logger.With(slog.String("method", "CheckForProactiveNotifications"), slog.String("userID", userID))

	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", types.ErrValidation)
	}
	// The claim is taken before the lookups so concurrent checks for the
	// same user emit at most one notification. It is released when nothing
	// is sent.
	if err := s.sent.Add(userID, pendingClaim, cache.DefaultExpiration); err != nil {
		l.DebugContext(ctx, "Notification already sent in dedupe window")
		return nil, nil
	}
	sent := false
	defer func() {
		if !sent {
			s.sent.Delete(userID)
		}
	}()

	if s.suppressed(ctx, l, userID) {
		return nil, nil
	}

	n, err := s.wishlistMatch(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to look for wishlist matches", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "wishlist match failed")
		return nil, err
	}
	if n == nil {
		if n, err = s.topRecommendation(ctx, userID); err != nil {
			l.ErrorContext(ctx, "Failed to rank recommendation for notification", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "recommendation failed")
			return nil, err
		}
	}
	if n == nil {
		return nil, nil
	}

	sent = true
	s.sent.Set(userID, n.Kind, cache.DefaultExpiration)
	metrics.Get().NotificationsSentTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", n.Kind)))
	l.InfoContext(ctx, "Proactive notification generated", slog.String("kind", n.Kind), slog.Int("listings", len(n.ListingIDs)))
	return n, nil
}

// suppressed reports whether the user has recently been unhappy with the
// assistant. A failing feedback store does not suppress.
func (s *ServiceImpl) suppressed(ctx context.Context, l *slog.Logger, userID string) bool {
	recs, err := s.feedback.GetUserFeedback(ctx, userID, recentFeedbackLimit)
	if err != nil {
		l.WarnContext(ctx, "Could not read user feedback", slog.Any("error", err))
		return false
	}
	if len(recs) == 0 {
		return false
	}
	total := 0
	for _, r := range recs {
		total += r.Rating
	}
	mean := float64(total) / float64(len(recs))
	if mean < suppressBelowRating {
		l.DebugContext(ctx, "Notifications suppressed by low feedback", slog.Float64("mean", mean))
		return true
	}
	return false
}

func (s *ServiceImpl) wishlistMatch(ctx context.Context, userID string) (*types.Notification, error) {
	wishlist, err := s.activity.FindUserWishlist(ctx, userID, wishlistLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load wishlist: %w", err)
	}
	if len(wishlist) == 0 {
		return nil, nil
	}

	wished := make(map[string]struct{}, len(wishlist))
	var categories []string
	for _, w := range wishlist {
		wished[w.ListingID] = struct{}{}
		categories = append(categories, w.Category)
	}
	categories = aicontext.NormalizeCategories(categories)

	recent, err := s.listings.FindRecentListings(ctx, categories, s.now().Add(-s.opts.NewListingWindow), newListingLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent listings: %w", err)
	}

	var matches []types.Listing
	for _, l := range recent {
		if _, ok := wished[l.ID]; ok || l.OwnerID == userID {
			continue
		}
		matches = append(matches, l)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	msg := fmt.Sprintf("%s was just listed in %s.", matches[0].Title, matches[0].Location)
	if len(matches) > 1 {
		msg = fmt.Sprintf("%d new %s listings match your wishlist, including %s.", len(matches), matches[0].Category, matches[0].Title)
	}
	return &types.Notification{
		UserID:     userID,
		Kind:       NotificationNewWishlistMatch,
		Title:      "New rentals for your wishlist",
		Message:    msg,
		ListingIDs: ids,
		CreatedAt:  s.now().UTC(),
	}, nil
}

func (s *ServiceImpl) topRecommendation(ctx context.Context, userID string) (*types.Notification, error) {
	ranked, err := s.recommender.RankCandidates(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 || ranked[0].Score < s.opts.MinScore {
		return nil, nil
	}
	top := ranked[0].Listing
	return &types.Notification{
		UserID:     userID,
		Kind:       NotificationRecommendation,
		Title:      "Recommended for you",
		Message:    fmt.Sprintf("%s is available in %s.", top.Title, top.Location),
		ListingIDs: []string{top.ID},
		CreatedAt:  s.now().UTC(),
	}, nil
}
