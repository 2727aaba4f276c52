package aicontext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	database "github.com/FACorreiaa/go-ren-assistant/app/db"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

// StoredPreferences is what the marketplace keeps about a user's settings.
type StoredPreferences struct {
	Language           string
	Currency           string
	Categories         []string
	PreferredLocations []string
}

// Repository reads the user activity the assistant is allowed to see.
type Repository interface {
	FindUserPreferences(ctx context.Context, userID string) (*StoredPreferences, error)
	FindUserBookings(ctx context.Context, userID string, limit int) ([]types.Booking, error)
	FindUserWishlist(ctx context.Context, userID string, limit int) ([]types.WishlistItem, error)
	FindUserReviews(ctx context.Context, userID string, limit int) ([]types.Review, error)
	CountUserMessages(ctx context.Context, userID string) (int, error)
}

// ListingRepository reads marketplace listings for recommendations and
// notifications.
type ListingRepository interface {
	FindListingsByCategories(ctx context.Context, categories []string, limit int) ([]types.Listing, error)
	FindListingsByIDs(ctx context.Context, ids []string) ([]types.Listing, error)
	FindRecentListings(ctx context.Context, categories []string, since time.Time, limit int) ([]types.Listing, error)
}

var (
	_ Repository        = (*PostgresRepository)(nil)
	_ ListingRepository = (*PostgresRepository)(nil)
)

type PostgresRepository struct {
	logger *slog.Logger
	db     database.DBTX
}

func NewPostgresRepository(db database.DBTX, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{logger: logger, db: db}
}

const listingColumns = `l.id::text, COALESCE(l.owner_id::text, ''), l.title, l.category, l.location,
	l.price_per_day, l.average_rating, l.review_count, l.created_at`

func (r *PostgresRepository) FindUserPreferences(ctx context.Context, userID string) (*StoredPreferences, error) {
	ctx, span := otel.Tracer("AIContextRepository").Start(ctx, "FindUserPreferences")
	defer span.End()

	query := `
		SELECT language, currency, categories, preferred_locations
		FROM user_preferences
		WHERE user_id = $1`

	var p StoredPreferences
	err := r.db.QueryRow(ctx, query, userID).Scan(&p.Language, &p.Currency, &p.Categories, &p.PreferredLocations)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to fetch user preferences: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) FindUserBookings(ctx context.Context, userID string, limit int) ([]types.Booking, error) {
	ctx, span := otel.Tracer("AIContextRepository").Start(ctx, "FindUserBookings")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT b.id::text, b.listing_id::text, l.category, l.title, b.status,
		       b.start_date, b.end_date, b.created_at
		FROM bookings b
		JOIN listings l ON l.id = b.listing_id
		WHERE b.renter_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var out []types.Booking
	for rows.Next() {
		var b types.Booking
		if err := rows.Scan(&b.ID, &b.ListingID, &b.Category, &b.Title, &b.Status, &b.StartDate, &b.EndDate, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) FindUserWishlist(ctx context.Context, userID string, limit int) ([]types.WishlistItem, error) {
	ctx, span := otel.Tracer("AIContextRepository").Start(ctx, "FindUserWishlist")
	defer span.End()

	query := `
		SELECT w.listing_id::text, l.category, l.title, w.added_at
		FROM wishlist_items w
		JOIN listings l ON l.id = w.listing_id
		WHERE w.user_id = $1
		ORDER BY w.added_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to query wishlist: %w", err)
	}
	defer rows.Close()

	var out []types.WishlistItem
	for rows.Next() {
		var w types.WishlistItem
		if err := rows.Scan(&w.ListingID, &w.Category, &w.Title, &w.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wishlist: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) FindUserReviews(ctx context.Context, userID string, limit int) ([]types.Review, error) {
	ctx, span := otel.Tracer("AIContextRepository").Start(ctx, "FindUserReviews")
	defer span.End()

	query := `
		SELECT rv.id::text, rv.listing_id::text, l.category, rv.rating, COALESCE(rv.comment, ''), rv.created_at
		FROM reviews rv
		JOIN listings l ON l.id = rv.listing_id
		WHERE rv.reviewer_id = $1
		ORDER BY rv.created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var out []types.Review
	for rows.Next() {
		var rv types.Review
		if err := rows.Scan(&rv.ID, &rv.ListingID, &rv.Category, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) CountUserMessages(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) FindListingsByCategories(ctx context.Context, categories []string, limit int) ([]types.Listing, error) {
	ctx, span := otel.Tracer("AIContextRepository").Start(ctx, "FindListingsByCategories")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("categories", categories))

	if len(categories) == 0 {
		return nil, nil
	}
	query := `SELECT ` + listingColumns + `
		FROM listings l
		WHERE l.category = ANY($1) AND l.active
		ORDER BY l.created_at DESC
		LIMIT $2`
	return r.queryListings(ctx, query, categories, limit)
}

func (r *PostgresRepository) FindListingsByIDs(ctx context.Context, ids []string) ([]types.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + listingColumns + `
		FROM listings l
		WHERE l.id::text = ANY($1)`
	return r.queryListings(ctx, query, ids)
}

// FindRecentListings returns active listings in categories created at or
// after since.
func (r *PostgresRepository) FindRecentListings(ctx context.Context, categories []string, since time.Time, limit int) ([]types.Listing, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	query := `SELECT ` + listingColumns + `
		FROM listings l
		WHERE l.category = ANY($1) AND l.active AND l.created_at >= $2
		ORDER BY l.created_at DESC
		LIMIT $3`
	return r.queryListings(ctx, query, categories, since, limit)
}

func (r *PostgresRepository) queryListings(ctx context.Context, query string, args ...interface{}) ([]types.Listing, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query listings", slog.Any("error", err))
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var out []types.Listing
	for rows.Next() {
		var l types.Listing
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Category, &l.Location,
			&l.PricePerDay, &l.AverageRating, &l.ReviewCount, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}
	return out, nil
}

// EmptyRepository stands in when no marketplace database is configured.
// Every lookup succeeds with no rows.
type EmptyRepository struct{}

var (
	_ Repository        = EmptyRepository{}
	_ ListingRepository = EmptyRepository{}
)

func (EmptyRepository) FindUserPreferences(context.Context, string) (*StoredPreferences, error) {
	return nil, nil
}

func (EmptyRepository) FindUserBookings(context.Context, string, int) ([]types.Booking, error) {
	return nil, nil
}

func (EmptyRepository) FindUserWishlist(context.Context, string, int) ([]types.WishlistItem, error) {
	return nil, nil
}

func (EmptyRepository) FindUserReviews(context.Context, string, int) ([]types.Review, error) {
	return nil, nil
}

func (EmptyRepository) CountUserMessages(context.Context, string) (int, error) {
	return 0, nil
}

func (EmptyRepository) FindListingsByCategories(context.Context, []string, int) ([]types.Listing, error) {
	return nil, nil
}

func (EmptyRepository) FindListingsByIDs(context.Context, []string) ([]types.Listing, error) {
	return nil, nil
}

func (EmptyRepository) FindRecentListings(context.Context, []string, time.Time, int) ([]types.Listing, error) {
	return nil, nil
}
