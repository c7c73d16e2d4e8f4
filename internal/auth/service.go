package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrUserExists         = errors.New("username or email already exists")
	ErrSetupComplete      = errors.New("setup already completed")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
)

// TokenPair contains an access token and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // Access token TTL in seconds
}

// mfaTokenTTL bounds the window between password login and TOTP verification.
const mfaTokenTTL = 5 * time.Minute

// MFARequiredError is returned by Login when the account has TOTP enabled.
// MFAToken is the short-lived challenge token to present to VerifyTOTP.
type MFARequiredError struct {
	MFAToken string
}

func (e *MFARequiredError) Error() string { return "TOTP code required" }

// Service provides authentication business logic.
type Service struct {
	store  *UserStore
	tokens *TokenService
	totp   *TOTPService
	logger *zap.Logger
}

// NewService creates an auth Service.
func NewService(store *UserStore, tokens *TokenService, totp *TOTPService, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		totp:   totp,
		logger: logger,
	}
}

// Tokens returns the token service for middleware use.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Login authenticates a user and returns a token pair.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.Disabled {
		return nil, ErrUserDisabled
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if user.TOTPEnabled {
		mfaToken, err := s.totp.IssueMFAToken(user.ID, mfaTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue MFA token: %w", err)
		}
		if err := s.store.SaveMFAToken(ctx, HashToken(mfaToken), user.ID, time.Now().Add(mfaTokenTTL)); err != nil {
			return nil, fmt.Errorf("save MFA token: %w", err)
		}
		return nil, &MFARequiredError{MFAToken: mfaToken}
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	_ = s.store.UpdateLastLogin(ctx, user.ID)
	s.logger.Info("user logged in", zap.String("username", username), zap.String("user_id", user.ID))
	return pair, nil
}

// Setup creates the initial admin account. Only works when no users exist.
func (s *Service) Setup(ctx context.Context, username, email, password string) (*User, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil, ErrSetupComplete
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password, 0)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("initial admin account created", zap.String("username", username))
	return user, nil
}

// Refresh validates a refresh token and returns a new token pair (rotation).
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tokenHash := HashToken(refreshToken)
	rt, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if rt.Revoked || rt.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidToken
	}

	// Revoke the old token (rotation).
	_ = s.store.RevokeRefreshToken(ctx, rt.ID)

	user, err := s.store.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user for refresh: %w", err)
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}

	return s.issueTokenPair(ctx, user)
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := HashToken(refreshToken)
	rt, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // Already revoked or doesn't exist -- idempotent.
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	return s.store.RevokeRefreshToken(ctx, rt.ID)
}

// NeedsSetup returns true if no users exist (first-run state).
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// ListUsers returns all users (for admin endpoints).
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser updates a user's email, role, and disabled status.
func (s *Service) UpdateUser(ctx context.Context, id, email string, role Role, disabled bool) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	user.Email = email
	user.Role = role
	user.Disabled = disabled

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	// If the user was disabled, revoke all their refresh tokens.
	if disabled {
		_ = s.store.RevokeUserRefreshTokens(ctx, id)
	}

	return user, nil
}

// DeleteUser removes a user by ID.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// VerifyTOTP completes an MFA login: validates the challenge token, checks
// the TOTP code (or a recovery code), and issues a token pair. The challenge
// token is single use.
func (s *Service) VerifyTOTP(ctx context.Context, mfaToken, code string) (*TokenPair, error) {
	userID, err := s.totp.ValidateMFAToken(mfaToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	tokenHash := HashToken(mfaToken)
	storedID, err := s.store.GetMFAToken(ctx, tokenHash)
	if err != nil || storedID != userID {
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user for MFA: %w", err)
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}

	encSecret, err := s.store.GetTOTPSecret(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load TOTP secret: %w", err)
	}
	secret, err := s.totp.Decrypt(encSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt TOTP secret: %w", err)
	}

	if !s.totp.Validate(code, secret) {
		// Recovery codes are the fallback for a lost authenticator.
		sum := sha256.Sum256([]byte(code))
		codeHash := hex.EncodeToString(sum[:])
		ok, rcErr := s.store.ValidateRecoveryCode(ctx, userID, codeHash)
		if rcErr != nil || !ok {
			return nil, ErrInvalidCredentials
		}
		_ = s.store.MarkRecoveryCodeUsed(ctx, codeHash)
		s.logger.Info("recovery code used", zap.String("user_id", userID))
	}

	_ = s.store.RevokeMFAToken(ctx, tokenHash)
	_ = s.store.UpdateLastLogin(ctx, user.ID)
	s.logger.Info("user completed MFA login", zap.String("user_id", user.ID))
	return s.issueTokenPair(ctx, user)
}

// EnrollTOTP generates and stores a TOTP secret for a user. The secret is
// not active until ActivateTOTP confirms a valid code.
func (s *Service) EnrollTOTP(ctx context.Context, userID string) (secret, otpauthURL string, err error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrUserNotFound
		}
		return "", "", err
	}

	secret, otpauthURL, err = s.totp.GenerateSecret(user.Username, "NetSage")
	if err != nil {
		return "", "", err
	}

	encrypted, err := s.totp.Encrypt(secret)
	if err != nil {
		return "", "", fmt.Errorf("encrypt TOTP secret: %w", err)
	}
	if err := s.store.SetTOTPSecret(ctx, userID, encrypted); err != nil {
		return "", "", err
	}
	return secret, otpauthURL, nil
}

// ActivateTOTP verifies the first code against the enrolled secret, enables
// TOTP for the user, and returns fresh recovery codes (shown exactly once).
func (s *Service) ActivateTOTP(ctx context.Context, userID, code string) ([]string, error) {
	encSecret, err := s.store.GetTOTPSecret(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load TOTP secret: %w", err)
	}
	secret, err := s.totp.Decrypt(encSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt TOTP secret: %w", err)
	}
	if !s.totp.Validate(code, secret) {
		return nil, ErrInvalidCredentials
	}

	if err := s.store.EnableTOTP(ctx, userID); err != nil {
		return nil, err
	}

	plain, hashed, err := s.totp.GenerateRecoveryCodes(10)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRecoveryCodes(ctx, userID, hashed); err != nil {
		return nil, err
	}

	s.logger.Info("TOTP enabled", zap.String("user_id", userID))
	return plain, nil
}

// DisableTOTP turns off TOTP for a user and discards the stored secret.
func (s *Service) DisableTOTP(ctx context.Context, userID string) error {
	if err := s.store.DisableTOTP(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("TOTP disabled", zap.String("user_id", userID))
	return nil
}

func (s *Service) issueTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	rawRefresh, hashRefresh, expiresAt, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	tokenID := uuid.New().String()
	if err := s.store.SaveRefreshToken(ctx, tokenID, user.ID, hashRefresh, expiresAt); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresIn:    int(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}
