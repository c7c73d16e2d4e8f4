package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/netsage/pkg/plugin"
)

// UserStore persists user accounts, refresh tokens, and MFA state.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a UserStore and applies the auth schema.
func NewUserStore(ctx context.Context, store plugin.Store) (*UserStore, error) {
	if err := store.Migrate(ctx, "auth", migrations); err != nil {
		return nil, fmt.Errorf("auth migrations: %w", err)
	}
	return &UserStore{db: store.DB()}, nil
}

var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create auth_users table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE auth_users (
					id            TEXT PRIMARY KEY,
					username      TEXT NOT NULL UNIQUE,
					email         TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					role          TEXT NOT NULL DEFAULT 'viewer',
					created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					last_login    DATETIME,
					disabled      INTEGER NOT NULL DEFAULT 0,
					totp_secret   TEXT,
					totp_enabled  INTEGER NOT NULL DEFAULT 0,
					totp_verified INTEGER NOT NULL DEFAULT 0
				)`)
			return err
		},
	},
	{
		Version:     2,
		Description: "create auth_refresh_tokens table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE auth_refresh_tokens (
					id         TEXT PRIMARY KEY,
					user_id    TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					token_hash TEXT NOT NULL UNIQUE,
					expires_at DATETIME NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					revoked    INTEGER NOT NULL DEFAULT 0
				)`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`CREATE INDEX idx_refresh_tokens_user ON auth_refresh_tokens(user_id)`)
			return err
		},
	},
	{
		Version:     3,
		Description: "create MFA challenge and recovery code tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE auth_recovery_codes (
					id         TEXT PRIMARY KEY,
					user_id    TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					code_hash  TEXT NOT NULL,
					used       INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
			if err != nil {
				return err
			}
			if _, err = tx.Exec(`CREATE INDEX idx_recovery_codes_user ON auth_recovery_codes(user_id)`); err != nil {
				return err
			}
			_, err = tx.Exec(`
				CREATE TABLE auth_mfa_tokens (
					token_hash TEXT PRIMARY KEY,
					user_id    TEXT NOT NULL,
					expires_at DATETIME NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
			return err
		},
	},
}

const userColumns = `id, username, email, password_hash, role, created_at,
	last_login, disabled, totp_enabled, totp_verified`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role,
		&u.CreatedAt, &lastLogin, &u.Disabled, &u.TOTPEnabled, &u.TOTPVerified)
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	return &u, nil
}

// CreateUser inserts a new account.
func (s *UserStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_users (id, username, email, password_hash, role, created_at, disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.Disabled,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID returns one account by ID.
func (s *UserStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM auth_users WHERE id = ?`, id))
}

// GetUserByUsername returns one account by username.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM auth_users WHERE username = ?`, username))
}

// ListUsers returns every account, oldest first.
func (s *UserStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM auth_users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser writes the mutable account fields.
func (s *UserStore) UpdateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_users SET email = ?, role = ?, disabled = ? WHERE id = ?`,
		u.Email, string(u.Role), u.Disabled, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps a successful login.
func (s *UserStore) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_users SET last_login = ? WHERE id = ?`,
		time.Now().UTC(), userID,
	)
	return err
}

// DeleteUser removes an account. Returns sql.ErrNoRows when it did not exist.
func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountUsers returns the number of accounts. Zero means first-run setup is
// still open.
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_users`).Scan(&count)
	return count, err
}

// RefreshToken is one stored (hashed) refresh token.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// SaveRefreshToken stores a hashed refresh token.
func (s *UserStore) SaveRefreshToken(ctx context.Context, id, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, userID, tokenHash, expiresAt, time.Now().UTC(),
	)
	return err
}

// GetRefreshToken looks up a refresh token by its hash.
func (s *UserStore) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var rt RefreshToken
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at, revoked
		FROM auth_refresh_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt, &rt.Revoked)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks one refresh token revoked.
func (s *UserStore) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_refresh_tokens SET revoked = 1 WHERE id = ?`, id)
	return err
}

// RevokeUserRefreshTokens revokes every refresh token a user holds.
func (s *UserStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_refresh_tokens SET revoked = 1 WHERE user_id = ?`, userID)
	return err
}

// GetTOTPSecret returns the encrypted TOTP secret, or "" when none is set.
func (s *UserStore) GetTOTPSecret(ctx context.Context, userID string) (string, error) {
	var secret sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT totp_secret FROM auth_users WHERE id = ?`, userID).Scan(&secret)
	if err != nil {
		return "", fmt.Errorf("get TOTP secret: %w", err)
	}
	return secret.String, nil
}

// SetTOTPSecret stores the encrypted TOTP secret.
func (s *UserStore) SetTOTPSecret(ctx context.Context, userID, encryptedSecret string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_users SET totp_secret = ? WHERE id = ?`,
		encryptedSecret, userID)
	if err != nil {
		return fmt.Errorf("set TOTP secret: %w", err)
	}
	return nil
}

// EnableTOTP marks the second factor active after the user proved they can
// generate codes.
func (s *UserStore) EnableTOTP(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_users SET totp_enabled = 1, totp_verified = 1 WHERE id = ?`,
		userID)
	if err != nil {
		return fmt.Errorf("enable TOTP: %w", err)
	}
	return nil
}

// DisableTOTP clears the second factor: secret, flags, and recovery codes.
func (s *UserStore) DisableTOTP(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_users SET totp_enabled = 0, totp_verified = 0, totp_secret = NULL WHERE id = ?`,
		userID)
	if err != nil {
		return fmt.Errorf("disable TOTP: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_recovery_codes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete recovery codes: %w", err)
	}
	return nil
}

// SaveRecoveryCodes replaces the user's recovery codes atomically.
func (s *UserStore) SaveRecoveryCodes(ctx context.Context, userID string, codeHashes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save recovery codes: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM auth_recovery_codes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear old recovery codes: %w", err)
	}
	for _, hash := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO auth_recovery_codes (id, user_id, code_hash) VALUES (?, ?, ?)`,
			uuid.New().String(), userID, hash); err != nil {
			return fmt.Errorf("save recovery code: %w", err)
		}
	}
	return tx.Commit()
}

// ValidateRecoveryCode reports whether the hashed code exists unused for the
// user.
func (s *UserStore) ValidateRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_recovery_codes WHERE user_id = ? AND code_hash = ? AND used = 0`,
		userID, codeHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("validate recovery code: %w", err)
	}
	return count > 0, nil
}

// MarkRecoveryCodeUsed burns a recovery code.
func (s *UserStore) MarkRecoveryCodeUsed(ctx context.Context, codeHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_recovery_codes SET used = 1 WHERE code_hash = ?`, codeHash)
	if err != nil {
		return fmt.Errorf("mark recovery code used: %w", err)
	}
	return nil
}

// SaveMFAToken stores a hashed login challenge token.
func (s *UserStore) SaveMFAToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_mfa_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save MFA token: %w", err)
	}
	return nil
}

// GetMFAToken resolves a challenge token hash to its user, rejecting
// expired tokens.
func (s *UserStore) GetMFAToken(ctx context.Context, tokenHash string) (string, error) {
	var (
		userID    string
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM auth_mfa_tokens WHERE token_hash = ?`,
		tokenHash).Scan(&userID, &expiresAt)
	if err != nil {
		return "", fmt.Errorf("get MFA token: %w", err)
	}
	if expiresAt.Before(time.Now()) {
		return "", fmt.Errorf("MFA token expired")
	}
	return userID, nil
}

// RevokeMFAToken deletes a challenge token, making it single use.
func (s *UserStore) RevokeMFAToken(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_mfa_tokens WHERE token_hash = ?`, tokenHash)
	return err
}
