// Package repository provides the durable account stores: PostgreSQL as the
// source of truth, an in-memory mirror for tests, and a Redis-backed read
// repository for the account view cache.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/JoaoGuiPan/bank-account/internal/domain"
)

//go:embed schema.sql
var schemaFS embed.FS

// Migrate applies the embedded schema. Idempotent; gated by DB_MIGRATE in main.
func Migrate(ctx context.Context, db *sql.DB) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const accountColumns = `id, user_id, user_last_name, card_id, card_type, balance, updated_at, version`

// AccountRepository is the PostgreSQL account store (write model).
//
// Concurrency discipline: every update is a compare-and-set on the version
// column. A lost race surfaces domain.ErrConflict and writes nothing, so two
// concurrent mutations of the same account can never silently drop one
// balance change.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID, &account.UserID, &account.UserLastName, &account.CardID,
		&account.CardType, &account.Balance, &account.UpdatedAt, &account.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) GetByUserLastName(ctx context.Context, userLastName string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_last_name = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, userLastName))
}

// FindAll returns every account in insertion order.
func (r *AccountRepository) FindAll(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Insert(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, user_last_name, card_id, card_type, balance, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.UserID, account.UserLastName, account.CardID,
		account.CardType, account.Balance, account.UpdatedAt, account.Version,
	)
	if isUniqueViolation(err) {
		// Backstop for the service-level holder check under concurrent opens.
		return domain.ErrDuplicateHolder
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Update persists a single account via compare-and-set on version. On success
// the account's Version field is advanced to the committed value.
func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	if err := execVersionedUpdate(ctx, r.db, account); err != nil {
		return err
	}
	account.Version++
	return nil
}

// UpdateAll persists several accounts in one database transaction: either all
// balance changes commit or none do, so a reader never observes half a
// transfer.
func (r *AccountRepository) UpdateAll(ctx context.Context, accounts ...*domain.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, account := range accounts {
		if err := execVersionedUpdate(ctx, tx, account); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	for _, account := range accounts {
		account.Version++
	}
	return nil
}

func (r *AccountRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("failed to delete accounts: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execVersionedUpdate(ctx context.Context, db querier, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $2, updated_at = $3, version = version + 1
		WHERE id = $1 AND version = $4
	`
	result, err := db.ExecContext(ctx, query, account.ID, account.Balance, account.UpdatedAt, account.Version)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// Either the row vanished or someone else committed first. Distinguish
		// so the caller can report the right error.
		var exists bool
		err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, account.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check account existence: %w", err)
		}
		if !exists {
			return domain.ErrAccountNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
