package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staymarket/backend/internal/models"
)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

func (r *PayoutRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Payout, error) {
	var p models.Payout
	err := r.pool.QueryRow(ctx, `
		SELECT id, payment_id, booking_id, amount, currency, status, provider_transfer_id,
		       processed_at, attempt_count, last_error, metadata, created_at, updated_at
		FROM payouts WHERE payment_id = $1
	`, paymentID).Scan(&p.ID, &p.PaymentID, &p.BookingID, &p.Amount, &p.Currency, &p.Status,
		&p.ProviderTransferID, &p.ProcessedAt, &p.AttemptCount, &p.LastError, &p.Metadata,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CompleteRelease records a successful transfer in one transaction: upserts
// the payout row as released, flips the booking payout axis, and marks the
// payment released.
func (r *PayoutRepo) CompleteRelease(ctx context.Context, bookingID, paymentID uuid.UUID, amount int64, currency, transferID string, meta json.RawMessage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO payouts (payment_id, booking_id, amount, currency, status, provider_transfer_id, processed_at, attempt_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, now(), 1, $7)
		ON CONFLICT (payment_id) DO UPDATE SET
			status = EXCLUDED.status,
			provider_transfer_id = EXCLUDED.provider_transfer_id,
			processed_at = now(),
			attempt_count = payouts.attempt_count + 1,
			last_error = NULL,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, paymentID, bookingID, amount, currency, models.PayoutRecordReleased, transferID, meta)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE bookings SET payout_status = $2, payout_hold_reason = NULL, payout_hold_until = NULL, updated_at = now()
		WHERE id = $1
	`, bookingID, models.PayoutStatusReleased)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments SET payout_released = true, updated_at = now() WHERE id = $1
	`, paymentID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Requeue puts a released payout back in line after the provider reversed
// the transfer: the payout row returns to pending, the booking payout axis
// reopens, and the payment's released flag clears so the next cycle retries.
func (r *PayoutRepo) Requeue(ctx context.Context, bookingID, paymentID uuid.UUID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE payouts SET
			status = $2,
			provider_transfer_id = NULL,
			processed_at = NULL,
			last_error = $3,
			updated_at = now()
		WHERE payment_id = $1
	`, paymentID, models.PayoutRecordPending, reason)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE bookings SET payout_status = $2, updated_at = now() WHERE id = $1
	`, bookingID, models.PayoutStatusPending)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments SET payout_released = false, updated_at = now() WHERE id = $1
	`, paymentID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkFailed records a failed attempt without touching the booking status, so
// the next cycle retries.
func (r *PayoutRepo) MarkFailed(ctx context.Context, bookingID, paymentID uuid.UUID, amount int64, currency, attemptErr string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO payouts (payment_id, booking_id, amount, currency, status, attempt_count, last_error)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (payment_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempt_count = payouts.attempt_count + 1,
			last_error = EXCLUDED.last_error,
			updated_at = now()
	`, paymentID, bookingID, amount, currency, models.PayoutRecordFailed, attemptErr)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE bookings SET payout_status = $2, updated_at = now() WHERE id = $1
	`, bookingID, models.PayoutStatusFailed)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
