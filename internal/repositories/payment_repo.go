package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staymarket/backend/internal/models"
)

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, booking_id, provider, provider_ref, amount, currency, status,
	processed_events, host_earnings, payout_released, deposit_returned, created_at, updated_at`

func scanPayment(row pgx.Row, p *models.Payment) error {
	return row.Scan(&p.ID, &p.BookingID, &p.Provider, &p.ProviderRef, &p.Amount, &p.Currency, &p.Status,
		&p.ProcessedEvents, &p.HostEarnings, &p.PayoutReleased, &p.DepositReturned, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payments (booking_id, provider, provider_ref, amount, currency, status, host_earnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, p.BookingID, p.Provider, p.ProviderRef, p.Amount, p.Currency, p.Status, p.HostEarnings,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PaymentRepo) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1`, bookingID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) GetByProviderRef(ctx context.Context, provider, ref string) (*models.Payment, error) {
	var p models.Payment
	err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND provider_ref = $2`, provider, ref), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateStatusIf flips the payment status only while it still holds expected.
// Returns rows affected so callers can detect lost races.
func (r *PaymentRepo) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, target string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, target, id, expected)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HasProcessedEvent reports whether the provider event id was already applied
// to this payment.
func (r *PaymentRepo) HasProcessedEvent(ctx context.Context, id uuid.UUID, eventID string) (bool, error) {
	var seen bool
	err := r.pool.QueryRow(ctx, `
		SELECT $2 = ANY(processed_events) FROM payments WHERE id = $1
	`, id, eventID).Scan(&seen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return seen, nil
}

// AppendProcessedEvent records the event id if it is not already present.
// Returns false when another worker got there first.
func (r *PaymentRepo) AppendProcessedEvent(ctx context.Context, id uuid.UUID, eventID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET processed_events = array_append(processed_events, $2), updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(processed_events))
	`, id, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PaymentRepo) MarkPayoutReleased(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE payments SET payout_released = true, updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *PaymentRepo) MarkDepositReturned(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE payments SET deposit_returned = true, updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *PaymentRepo) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = now() WHERE id = $1`,
		id, models.PaymentStatusRefunded)
	return err
}
