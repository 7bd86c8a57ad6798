package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentora/rentora/internal/domain"
)

type ListingRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Delete removes a listing, refusing while any non-terminal booking still
	// references it.
	Delete(ctx context.Context, id string) error
	Blackouts(ctx context.Context, listingID string, from, to time.Time) ([]domain.BlackoutEntry, error)
	// FirstBlackout returns the earliest blackout day inside [from, to), or a
	// not-found error when the interval is clear.
	FirstBlackout(ctx context.Context, listingID string, from, to time.Time) (*domain.BlackoutEntry, error)
	AddBlackout(ctx context.Context, entry domain.BlackoutEntry) error
	RemoveBlackout(ctx context.Context, listingID string, date time.Time) error
}

type PGListingRepository struct {
	db *pgxpool.Pool
}

func NewListingRepository(db *pgxpool.Pool) ListingRepository {
	return &PGListingRepository{db: db}
}

func (r *PGListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, title, active, daily_price_cents, created_at, updated_at
		FROM listings WHERE id=$1`, id)
	var l domain.Listing
	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Active, &l.DailyPriceCents, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("listing not found")
	}
	if err != nil {
		return nil, domain.Unavailable("read listing", err)
	}
	return &l, nil
}

func (r *PGListingRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, domain.Unavailable("check listing", err)
	}
	return exists, nil
}

func (r *PGListingRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var hasActive bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (
			SELECT 1 FROM bookings WHERE listing_id=$1 AND status NOT IN ('COMPLETED', 'CANCELLED'))`, id).
		Scan(&hasActive)
	if err != nil {
		return domain.Unavailable("check bookings", err)
	}
	if hasActive {
		return domain.Conflict("listing has bookings that are not completed or cancelled")
	}

	cmd, err := tx.Exec(ctx, `DELETE FROM listings WHERE id=$1`, id)
	if err != nil {
		return domain.Unavailable("delete listing", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.NotFound("listing not found")
	}
	return tx.Commit(ctx)
}

func (r *PGListingRepository) Blackouts(ctx context.Context, listingID string, from, to time.Time) ([]domain.BlackoutEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT listing_id, date, reason FROM blackout_dates
		WHERE listing_id=$1 AND date >= $2 AND date < $3 ORDER BY date`, listingID, from, to)
	if err != nil {
		return nil, domain.Unavailable("list blackouts", err)
	}
	defer rows.Close()

	entries := make([]domain.BlackoutEntry, 0)
	for rows.Next() {
		var e domain.BlackoutEntry
		if err := rows.Scan(&e.ListingID, &e.Date, &e.Reason); err != nil {
			return nil, domain.Unavailable("scan blackout", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PGListingRepository) FirstBlackout(ctx context.Context, listingID string, from, to time.Time) (*domain.BlackoutEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT listing_id, date, reason FROM blackout_dates
		WHERE listing_id=$1 AND date >= $2 AND date < $3 ORDER BY date LIMIT 1`, listingID, from, to)
	var e domain.BlackoutEntry
	err := row.Scan(&e.ListingID, &e.Date, &e.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("no blackout in interval")
	}
	if err != nil {
		return nil, domain.Unavailable("read blackout", err)
	}
	return &e, nil
}

func (r *PGListingRepository) AddBlackout(ctx context.Context, entry domain.BlackoutEntry) error {
	_, err := r.db.Exec(ctx, `INSERT INTO blackout_dates (listing_id, date, reason) VALUES ($1, $2, $3)
		ON CONFLICT (listing_id, date) DO UPDATE SET reason = EXCLUDED.reason`,
		entry.ListingID, entry.Date, entry.Reason)
	if err != nil {
		return domain.Unavailable("add blackout", err)
	}
	return nil
}

func (r *PGListingRepository) RemoveBlackout(ctx context.Context, listingID string, date time.Time) error {
	_, err := r.db.Exec(ctx, `DELETE FROM blackout_dates WHERE listing_id=$1 AND date=$2`, listingID, date)
	if err != nil {
		return domain.Unavailable("remove blackout", err)
	}
	return nil
}

var _ ListingRepository = (*PGListingRepository)(nil)
