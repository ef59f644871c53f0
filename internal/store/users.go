package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const userColumns = `u.id::text, u.email, u.display_name, u.password_hash, u.is_active, u.is_superuser,
	u.is_verified, u.verification_token, u.verification_expires_at, u.preferences::text,
	u.created_at, u.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u         User
		token     sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsActive, &u.IsSuperuser,
		&u.IsVerified, &token, &expiresAt, &u.Preferences, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.VerificationToken = token.String
	if expiresAt.Valid {
		t := expiresAt.Time
		u.VerificationExpiresAt = &t
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	var id any
	if user.ID != "" {
		id = user.ID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, is_active, is_superuser, is_verified, verification_token)
		VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, id, normalizeEmail(user.Email), user.DisplayName, user.PasswordHash,
		user.IsActive, user.IsSuperuser, user.IsVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id::text = $1`, id))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = $1`, normalizeEmail(email)))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users u ORDER BY u.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id::text=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id::text=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetUserActive toggles the account by email.
func (s *PostgresStore) SetUserActive(ctx context.Context, email string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active=$2, updated_at=NOW() WHERE email=$1`, normalizeEmail(email), active)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return requireOneRow(res)
}

// SetUserSuperuser grants or removes superuser rights by email.
func (s *PostgresStore) SetUserSuperuser(ctx context.Context, email string, superuser bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_superuser=$2, updated_at=NOW() WHERE email=$1`, normalizeEmail(email), superuser)
	if err != nil {
		return fmt.Errorf("set user superuser: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) GetPreferences(ctx context.Context, userID string) (string, error) {
	var prefs string
	err := s.db.QueryRowContext(ctx, `SELECT preferences::text FROM users WHERE id::text=$1`, userID).Scan(&prefs)
	if err != nil {
		return "", notFound(err)
	}
	return prefs, nil
}

// SavePreferences replaces the stored preferences. prefs must be a JSON object.
func (s *PostgresStore) SavePreferences(ctx context.Context, userID, prefs string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET preferences=$2::jsonb, updated_at=NOW() WHERE id::text=$1`, userID, prefs)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2::uuid, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id::text FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", notFound(err)
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
