package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staymarket/backend/internal/models"
)

// ErrBookingNotInStatus is returned when the conditional booking update inside
// a dispute transaction matches no row.
var ErrBookingNotInStatus = errors.New("booking not in expected status")

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeColumns = `id, booking_id, opened_by, reason, status, resolution,
	guest_share, host_share, provider_ref, created_at, resolved_at`

func scanDispute(row pgx.Row, d *models.Dispute) error {
	return row.Scan(&d.ID, &d.BookingID, &d.OpenedBy, &d.Reason, &d.Status, &d.Resolution,
		&d.GuestShare, &d.HostShare, &d.ProviderRef, &d.CreatedAt, &d.ResolvedAt)
}

// Open creates the dispute, moves the booking out of expectedStatus and puts
// its payout on hold, all in one transaction. Returns ErrBookingNotInStatus
// when the booking status moved first.
func (r *DisputeRepo) Open(ctx context.Context, d *models.Dispute, expectedStatus, holdReason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, payout_status = $3, payout_hold_reason = $4, payout_hold_until = NULL, updated_at = now()
		WHERE id = $1 AND status = $5
	`, d.BookingID, models.BookingStatusDisputeOpened, models.PayoutStatusOnHold, holdReason, expectedStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotInStatus
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO disputes (booking_id, opened_by, reason, status, provider_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, d.BookingID, d.OpenedBy, d.Reason, models.DisputeStatusOpen, d.ProviderRef,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return err
	}
	d.Status = models.DisputeStatusOpen

	return tx.Commit(ctx)
}

func (r *DisputeRepo) GetOpenByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := scanDispute(r.pool.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE booking_id = $1 AND status = $2`,
		bookingID, models.DisputeStatusOpen), &d)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DisputeRepo) HasOpenDispute(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM disputes WHERE booking_id = $1 AND status = $2)
	`, bookingID, models.DisputeStatusOpen).Scan(&exists)
	return exists, err
}

// Resolve closes the dispute with the given resolution and share split. Only
// an open dispute can be resolved; a second resolve matches no row.
func (r *DisputeRepo) Resolve(ctx context.Context, id uuid.UUID, resolution string, guestShare, hostShare *int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE disputes SET status = $2, resolution = $3, guest_share = $4, host_share = $5, resolved_at = now()
		WHERE id = $1 AND status = $6
	`, id, models.DisputeStatusResolved, resolution, guestShare, hostShare, models.DisputeStatusOpen)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
