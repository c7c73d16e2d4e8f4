package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
)

const challengeIssuer = "netsage-mfa"

// TOTPService owns the second-factor machinery: secret generation, at-rest
// encryption of stored secrets, recovery codes, and the short-lived
// challenge token a login-with-MFA flow hands back to the client.
type TOTPService struct {
	key    []byte // AES-256-GCM key, derived from the JWT secret
	secret []byte // raw JWT secret, signs challenge tokens
}

// NewTOTPService derives the encryption key from the JWT secret so a single
// configured secret covers both concerns.
func NewTOTPService(jwtSecret []byte) *TOTPService {
	h := sha256.Sum256(jwtSecret)
	return &TOTPService{key: h[:], secret: jwtSecret}
}

// GenerateSecret creates a fresh TOTP secret and the otpauth URL the client
// renders as a QR code.
func (t *TOTPService) GenerateSecret(accountName, issuer string) (secret, otpauthURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Validate checks a six-digit code against a secret.
func (t *TOTPService) Validate(code, secret string) bool {
	return totp.Validate(code, secret)
}

func (t *TOTPService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(t.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext with AES-256-GCM, base64 encoded for storage.
func (t *TOTPService) Encrypt(plaintext string) (string, error) {
	aead, err := t.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (t *TOTPService) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	aead, err := t.gcm()
	if err != nil {
		return "", err
	}
	if len(data) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateRecoveryCodes mints n one-time codes. The plaintext goes to the
// user exactly once; only the SHA-256 hashes are stored.
func (t *TOTPService) GenerateRecoveryCodes(n int) (plain, hashed []string, err error) {
	plain = make([]string, n)
	hashed = make([]string, n)
	for i := 0; i < n; i++ {
		code, err := newRecoveryCode()
		if err != nil {
			return nil, nil, err
		}
		plain[i] = code
		sum := sha256.Sum256([]byte(code))
		hashed[i] = hex.EncodeToString(sum[:])
	}
	return plain, hashed, nil
}

func newRecoveryCode() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate recovery code: %w", err)
	}
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b), nil
}

// challengeClaims mark a JWT as an MFA challenge rather than an access
// token, so one can never pass for the other.
type challengeClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	MFA    bool   `json:"mfa"`
}

// IssueMFAToken signs a short-lived challenge token after a correct
// password. The client exchanges it together with a TOTP code.
func (t *TOTPService) IssueMFAToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := challengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    challengeIssuer,
		},
		UserID: userID,
		MFA:    true,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign MFA token: %w", err)
	}
	return signed, nil
}

// ValidateMFAToken verifies a challenge token and returns its user ID.
func (t *TOTPService) ValidateMFAToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &challengeClaims{}, func(_ *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse MFA token: %w", err)
	}

	claims, ok := token.Claims.(*challengeClaims)
	if !ok || !token.Valid || !claims.MFA {
		return "", errors.New("invalid MFA token claims")
	}
	return claims.UserID, nil
}
