package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

// ErrorResponse represents a generic error payload with request ID for debugging.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response carrying the request correlation id.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	requestID, _ := c.Get("request_id")
	requestIDStr, _ := requestID.(string)

	return ErrorResponse{
		Error:     errorMsg,
		RequestID: requestIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier      string `json:"identifier" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ApplicationName string `json:"application_name"`
	ApplicationType string `json:"application_type"`
	Location        string `json:"location"`
}

// TokenPairResponse carries a freshly issued session.
type TokenPairResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResponse is either a full token pair or a deferred 2FA challenge.
type LoginResponse struct {
	TwoFactorRequired bool               `json:"two_factor_required"`
	SecurityToken     string             `json:"security_token,omitempty"`
	Tokens            *TokenPairResponse `json:"tokens,omitempty"`
}

// RefreshRequest carries the refresh token being rotated.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest revokes the presented session tokens.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	AccessToken  string `json:"access_token"`
}

// TwoFactorLoginRequest completes a deferred login with a TOTP code.
type TwoFactorLoginRequest struct {
	SecurityToken string `json:"security_token" binding:"required"`
	Code          string `json:"code" binding:"required"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse echoes the created account.
type RegisterResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// VerifyAccountRequest confirms email ownership.
type VerifyAccountRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

// ForgotPasswordResponse returns the reset flow's security token.
type ForgotPasswordResponse struct {
	SecurityToken string `json:"security_token"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	SecurityToken string `json:"security_token" binding:"required"`
	Code          string `json:"code" binding:"required"`
	NewPassword   string `json:"new_password" binding:"required"`
}

// AddTwoFactorRequest re-authenticates and starts 2FA activation.
type AddTwoFactorRequest struct {
	Password string `json:"password" binding:"required"`
}

// AddTwoFactorResponse returns the enrollment material.
type AddTwoFactorResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// TwoFactorCodeRequest carries a single TOTP code.
type TwoFactorCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ConfirmTwoFactorResponse returns the one-time backup code set.
type ConfirmTwoFactorResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// BackupCodesRequest submits backup codes as proof of possession.
type BackupCodesRequest struct {
	Codes []string `json:"codes" binding:"required"`
}

func newTokenPairResponse(pair *usecase.TokenPair) *TokenPairResponse {
	if pair == nil {
		return nil
	}
	return &TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    pair.ExpiresAt,
	}
}
