package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staymarket/backend/internal/models"
)

var ErrNotFound = errors.New("record not found")

type BookingRepo struct {
	pool *pgxpool.Pool
}

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepo {
	return &BookingRepo{pool: pool}
}

const bookingColumns = `id, property_id, guest_id, status, check_in_date, check_out_date,
	currency, room_fee, cleaning_fee, security_deposit, service_fee, platform_fee, total_price,
	payout_status, payout_release_date, payout_hold_reason, payout_hold_until, created_at, updated_at`

func scanBooking(row pgx.Row, b *models.Booking) error {
	return row.Scan(&b.ID, &b.PropertyID, &b.GuestID, &b.Status, &b.CheckInDate, &b.CheckOutDate,
		&b.Currency, &b.RoomFee, &b.CleaningFee, &b.SecurityDeposit, &b.ServiceFee, &b.PlatformFee, &b.TotalPrice,
		&b.PayoutStatus, &b.PayoutReleaseDate, &b.PayoutHoldReason, &b.PayoutHoldUntil, &b.CreatedAt, &b.UpdatedAt)
}

func (r *BookingRepo) Create(ctx context.Context, b *models.Booking) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO bookings (property_id, guest_id, status, check_in_date, check_out_date,
			currency, room_fee, cleaning_fee, security_deposit, service_fee, platform_fee, total_price, payout_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`, b.PropertyID, b.GuestID, b.Status, b.CheckInDate, b.CheckOutDate,
		b.Currency, b.RoomFee, b.CleaningFee, b.SecurityDeposit, b.ServiceFee, b.PlatformFee, b.TotalPrice, b.PayoutStatus,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id), &b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetStatus reads only the current status, for conflict diagnostics.
func (r *BookingRepo) GetStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func (r *BookingRepo) GetByIDWithRelations(ctx context.Context, id uuid.UUID) (*models.BookingWithRelations, error) {
	var b models.BookingWithRelations
	err := r.pool.QueryRow(ctx, `
		SELECT b.id, b.property_id, b.guest_id, b.status, b.check_in_date, b.check_out_date,
		       b.currency, b.room_fee, b.cleaning_fee, b.security_deposit, b.service_fee, b.platform_fee, b.total_price,
		       b.payout_status, b.payout_release_date, b.payout_hold_reason, b.payout_hold_until, b.created_at, b.updated_at,
		       p.title, p.city, p.host_id, u.name, u.email
		FROM bookings b
		JOIN properties p ON p.id = b.property_id
		JOIN users u ON u.id = b.guest_id
		WHERE b.id = $1
	`, id).Scan(&b.ID, &b.PropertyID, &b.GuestID, &b.Status, &b.CheckInDate, &b.CheckOutDate,
		&b.Currency, &b.RoomFee, &b.CleaningFee, &b.SecurityDeposit, &b.ServiceFee, &b.PlatformFee, &b.TotalPrice,
		&b.PayoutStatus, &b.PayoutReleaseDate, &b.PayoutHoldReason, &b.PayoutHoldUntil, &b.CreatedAt, &b.UpdatedAt,
		&b.PropertyTitle, &b.PropertyCity, &b.HostID, &b.GuestName, &b.GuestEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// PayoutFields are the scheduling/override columns that only the conditional
// status write may touch.
type PayoutFields struct {
	PayoutStatus      *string
	PayoutReleaseDate *time.Time
	PayoutHoldReason  *string
	PayoutHoldUntil   *time.Time
	// ClearHold nulls the hold columns (used when a dispute hold is lifted).
	ClearHold bool
}

// UpdateStatusIf performs the compare-and-swap status write: the row is
// updated only if its status still equals expected. Returns the number of
// rows affected; 0 means the caller lost the race.
func (r *BookingRepo) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, target string, extra *PayoutFields) (int64, error) {
	query := `UPDATE bookings SET status = $1, updated_at = now()`
	args := []any{target}
	argIdx := 2

	if extra != nil {
		if extra.PayoutStatus != nil {
			query += fmt.Sprintf(", payout_status = $%d", argIdx)
			args = append(args, *extra.PayoutStatus)
			argIdx++
		}
		if extra.PayoutReleaseDate != nil {
			query += fmt.Sprintf(", payout_release_date = $%d", argIdx)
			args = append(args, *extra.PayoutReleaseDate)
			argIdx++
		}
		if extra.ClearHold {
			query += ", payout_hold_reason = NULL, payout_hold_until = NULL"
		} else {
			if extra.PayoutHoldReason != nil {
				query += fmt.Sprintf(", payout_hold_reason = $%d", argIdx)
				args = append(args, *extra.PayoutHoldReason)
				argIdx++
			}
			if extra.PayoutHoldUntil != nil {
				query += fmt.Sprintf(", payout_hold_until = $%d", argIdx)
				args = append(args, *extra.PayoutHoldUntil)
				argIdx++
			}
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d AND status = $%d", argIdx, argIdx+1)
	args = append(args, id, expected)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdatePayoutFields adjusts the payout axis without touching status (used by
// the scheduler and dispute resolution).
func (r *BookingRepo) UpdatePayoutFields(ctx context.Context, id uuid.UUID, extra PayoutFields) error {
	query := `UPDATE bookings SET updated_at = now()`
	args := []any{}
	argIdx := 1

	if extra.PayoutStatus != nil {
		query += fmt.Sprintf(", payout_status = $%d", argIdx)
		args = append(args, *extra.PayoutStatus)
		argIdx++
	}
	if extra.PayoutReleaseDate != nil {
		query += fmt.Sprintf(", payout_release_date = $%d", argIdx)
		args = append(args, *extra.PayoutReleaseDate)
		argIdx++
	}
	if extra.ClearHold {
		query += ", payout_hold_reason = NULL, payout_hold_until = NULL"
	} else {
		if extra.PayoutHoldReason != nil {
			query += fmt.Sprintf(", payout_hold_reason = $%d", argIdx)
			args = append(args, *extra.PayoutHoldReason)
			argIdx++
		}
		if extra.PayoutHoldUntil != nil {
			query += fmt.Sprintf(", payout_hold_until = $%d", argIdx)
			args = append(args, *extra.PayoutHoldUntil)
			argIdx++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argIdx)
	args = append(args, id)

	_, err := r.pool.Exec(ctx, query, args...)
	return err
}

type BookingFilter struct {
	GuestID    *uuid.UUID
	HostID     *uuid.UUID
	PropertyID *uuid.UUID
	Status     *string
	Limit      int
	Offset     int
}

func (r *BookingRepo) List(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	query := `SELECT ` + prefixColumns("b") + ` FROM bookings b`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.HostID != nil {
		query += ` JOIN properties p ON p.id = b.property_id`
		where = append(where, fmt.Sprintf("p.host_id = $%d", argIdx))
		args = append(args, *f.HostID)
		argIdx++
	}
	if f.GuestID != nil {
		where = append(where, fmt.Sprintf("b.guest_id = $%d", argIdx))
		args = append(args, *f.GuestID)
		argIdx++
	}
	if f.PropertyID != nil {
		where = append(where, fmt.Sprintf("b.property_id = $%d", argIdx))
		args = append(args, *f.PropertyID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("b.status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY b.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

// GetReleaseCandidates finds bookings whose room-fee release conditions may
// now be satisfied: due release date, payout pending without an active hold,
// or an expired timed hold. Indefinite dispute holds (no hold_until) never
// match.
func (r *BookingRepo) GetReleaseCandidates(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixColumns("b")+`
		FROM bookings b
		WHERE b.status IN ($1, $2)
		  AND b.payout_release_date IS NOT NULL
		  AND b.payout_release_date <= $3
		  AND (
		        (b.payout_status IN ($4, $5) AND (b.payout_hold_until IS NULL OR b.payout_hold_until <= $3))
		     OR (b.payout_status = $6 AND b.payout_hold_until IS NOT NULL AND b.payout_hold_until <= $3)
		  )
		ORDER BY b.payout_release_date
		LIMIT $7
	`, models.BookingStatusConfirmed, models.BookingStatusCompleted, now,
		models.PayoutStatusPending, models.PayoutStatusFailed, models.PayoutStatusOnHold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

// GetDepositReturnCandidates finds checked-out stays whose deposit-return
// offset has elapsed and whose deposit has not yet been refunded.
func (r *BookingRepo) GetDepositReturnCandidates(ctx context.Context, now time.Time, offset time.Duration, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixColumns("b")+`
		FROM bookings b
		JOIN payments pm ON pm.booking_id = b.id
		WHERE b.status IN ($1, $2)
		  AND b.security_deposit > 0
		  AND b.check_out_date <= $3
		  AND pm.status = $4
		  AND pm.deposit_returned = false
		  AND NOT EXISTS (SELECT 1 FROM disputes d WHERE d.booking_id = b.id AND d.status = $5)
		ORDER BY b.check_out_date
		LIMIT $6
	`, models.BookingStatusCheckedOut, models.BookingStatusCompleted, now.Add(-offset),
		models.PaymentStatusCompleted, models.DisputeStatusOpen, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

// GetTimedOutPending finds bookings stuck in pending longer than timeout,
// for auto-cancellation.
func (r *BookingRepo) GetTimedOutPending(ctx context.Context, timeout time.Duration) ([]models.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixColumns("b")+`
		FROM bookings b
		WHERE b.status = $1 AND b.created_at < now() - $2::interval
	`, models.BookingStatusPending, timeout.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func prefixColumns(alias string) string {
	return alias + `.id, ` + alias + `.property_id, ` + alias + `.guest_id, ` + alias + `.status, ` +
		alias + `.check_in_date, ` + alias + `.check_out_date, ` + alias + `.currency, ` +
		alias + `.room_fee, ` + alias + `.cleaning_fee, ` + alias + `.security_deposit, ` +
		alias + `.service_fee, ` + alias + `.platform_fee, ` + alias + `.total_price, ` +
		alias + `.payout_status, ` + alias + `.payout_release_date, ` + alias + `.payout_hold_reason, ` +
		alias + `.payout_hold_until, ` + alias + `.created_at, ` + alias + `.updated_at`
}
