package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staymarket/backend/internal/models"
)

// EscrowRepo persists the append-only escrow ledger. Entries are never
// updated or deleted.
type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func (r *EscrowRepo) Append(ctx context.Context, e *models.EscrowEvent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO escrow_events (booking_id, event_type, amount, currency, source_party, dest_party, provider_ref, provider_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, e.BookingID, e.EventType, e.Amount, e.Currency, e.SourceParty, e.DestParty, e.ProviderRef, e.ProviderResponse,
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *EscrowRepo) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.EscrowEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, event_type, amount, currency, source_party, dest_party, provider_ref, provider_response, created_at
		FROM escrow_events
		WHERE booking_id = $1
		ORDER BY created_at, id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.EscrowEvent
	for rows.Next() {
		var e models.EscrowEvent
		if err := rows.Scan(&e.ID, &e.BookingID, &e.EventType, &e.Amount, &e.Currency,
			&e.SourceParty, &e.DestParty, &e.ProviderRef, &e.ProviderResponse, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// HasEvent reports whether an entry of the given type already exists for the
// booking, used to keep ledger writes idempotent.
func (r *EscrowRepo) HasEvent(ctx context.Context, bookingID uuid.UUID, eventType string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM escrow_events WHERE booking_id = $1 AND event_type = $2)
	`, bookingID, eventType).Scan(&exists)
	return exists, err
}
