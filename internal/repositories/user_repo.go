package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staymarket/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, name, role, password_hash, bank_code, account_number, transfer_recipient, created_at`

func scanUser(row pgx.Row, u *models.User) error {
	return row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash,
		&u.BankCode, &u.AccountNumber, &u.TransferRecipient, &u.CreatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id), &u)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email), &u)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UpdateBankDetails(ctx context.Context, id uuid.UUID, bankCode, accountNumber string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET bank_code = $2, account_number = $3, transfer_recipient = NULL WHERE id = $1
	`, id, bankCode, accountNumber)
	return err
}

// CacheTransferRecipient stores the provider-side recipient handle so the
// create-recipient call runs once per bank detail change.
func (r *UserRepo) CacheTransferRecipient(ctx context.Context, id uuid.UUID, recipient string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET transfer_recipient = $2 WHERE id = $1`, id, recipient)
	return err
}
