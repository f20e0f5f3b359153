package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/pkg/database"
	"go.uber.org/zap"
)

// EmailAccountRepository stores IMAP credentials for the email import flow.
type EmailAccountRepository struct {
	db     *database.DB
	logger *zap.Logger
}

func NewEmailAccountRepository(db *database.DB, logger *zap.Logger) *EmailAccountRepository {
	return &EmailAccountRepository{db: db, logger: logger}
}

// Save upserts an account keyed by its email address.
func (r *EmailAccountRepository) Save(ctx context.Context, a *entity.EmailAccount) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO email_accounts (email, password, imap_server, port, use_ssl)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			password = excluded.password,
			imap_server = excluded.imap_server,
			port = excluded.port,
			use_ssl = excluded.use_ssl
	`, a.Email, a.Password, a.IMAPServer, a.Port, a.UseSSL)
	if err != nil {
		r.logger.Error("failed to save email account", zap.String("email", a.Email), zap.Error(err))
		return fmt.Errorf("failed to save email account: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil && id > 0 {
		a.ID = id
	}
	return nil
}

// GetByEmail retrieves an account, nil if absent.
func (r *EmailAccountRepository) GetByEmail(ctx context.Context, email string) (*entity.EmailAccount, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password, imap_server, port, use_ssl, last_used, created_at
		FROM email_accounts WHERE email = ?
	`, email)
	return scanEmailAccount(row)
}

// List returns stored accounts ordered by most recently used.
func (r *EmailAccountRepository) List(ctx context.Context) ([]*entity.EmailAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, password, imap_server, port, use_ssl, last_used, created_at
		FROM email_accounts ORDER BY last_used DESC, email ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list email accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*entity.EmailAccount
	for rows.Next() {
		var a entity.EmailAccount
		var lastUsed sql.NullString
		var createdAt string
		err := rows.Scan(&a.ID, &a.Email, &a.Password, &a.IMAPServer,
			&a.Port, &a.UseSSL, &lastUsed, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email account: %w", err)
		}
		if lastUsed.Valid {
			t := parseTimestamp(lastUsed.String)
			a.LastUsed = &t
		}
		a.CreatedAt = parseTimestamp(createdAt)
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// TouchLastUsed records a successful login.
func (r *EmailAccountRepository) TouchLastUsed(ctx context.Context, email string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		"UPDATE email_accounts SET last_used = ? WHERE email = ?", now, email)
	if err != nil {
		return fmt.Errorf("failed to update email account: %w", err)
	}
	return nil
}

// Delete removes a stored account.
func (r *EmailAccountRepository) Delete(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM email_accounts WHERE email = ?", email)
	if err != nil {
		return fmt.Errorf("failed to delete email account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanEmailAccount(row *sql.Row) (*entity.EmailAccount, error) {
	var a entity.EmailAccount
	var lastUsed sql.NullString
	var createdAt string
	err := row.Scan(&a.ID, &a.Email, &a.Password, &a.IMAPServer,
		&a.Port, &a.UseSSL, &lastUsed, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email account: %w", err)
	}
	if lastUsed.Valid {
		t := parseTimestamp(lastUsed.String)
		a.LastUsed = &t
	}
	a.CreatedAt = parseTimestamp(createdAt)
	return &a, nil
}
