package auth

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"securepassword123"`
}

// RefreshRequest is the request body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" example:"dGhpcyBpcyBhIHJlZnJl..."`
}

// LogoutRequest is the request body for POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" example:"dGhpcyBpcyBhIHJlZnJl..."`
}

// SetupRequest is the request body for POST /auth/setup.
type SetupRequest struct {
	Username string `json:"username" example:"admin"`
	Email    string `json:"email" example:"admin@example.com"`
	Password string `json:"password" example:"securepassword123"`
}

// MFAChallengeResponse is returned by POST /auth/login when TOTP is enabled.
type MFAChallengeResponse struct {
	MFARequired bool   `json:"mfa_required" example:"true"`
	MFAToken    string `json:"mfa_token" example:"eyJhbGciOiJIUzI1NiIs..."`
}

// TOTPVerifyRequest is the request body for POST /auth/totp/verify.
type TOTPVerifyRequest struct {
	MFAToken string `json:"mfa_token" example:"eyJhbGciOiJIUzI1NiIs..."`
	Code     string `json:"code" example:"123456"`
}

// TOTPEnrollResponse is the response for POST /auth/totp/enroll.
type TOTPEnrollResponse struct {
	Secret     string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	OTPAuthURL string `json:"otpauth_url" example:"otpauth://totp/NetSage:admin?secret=..."`
}

// TOTPActivateRequest is the request body for POST /auth/totp/activate.
type TOTPActivateRequest struct {
	Code string `json:"code" example:"123456"`
}

// TOTPActivateResponse is the response for POST /auth/totp/activate.
type TOTPActivateResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// SetupStatusResponse is the response for GET /auth/setup/status.
type SetupStatusResponse struct {
	SetupRequired bool   `json:"setup_required" example:"true"`
	Version       string `json:"version" example:"0.3.0"`
}

// UpdateUserRequest is the request body for PUT /users/{id}.
type UpdateUserRequest struct {
	Email    string `json:"email" example:"user@example.com"`
	Role     string `json:"role" example:"operator"`
	Disabled bool   `json:"disabled" example:"false"`
}
