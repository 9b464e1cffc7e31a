package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/transport/http/middleware"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

// AuthHandler exposes login, refresh, and logout endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login authenticates with identifier and password. Accounts with 2FA on
// get a security token for the challenge step instead of session tokens.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	var descriptor *usecase.ApplicationDescriptor
	if req.ApplicationName != "" {
		appType := domain.ApplicationType(req.ApplicationType)
		if appType != domain.ApplicationTypeWebBrowser && appType != domain.ApplicationTypeNativeApp {
			appType = domain.ApplicationTypeNativeApp
		}
		descriptor = &usecase.ApplicationDescriptor{
			Name:     req.ApplicationName,
			Type:     appType,
			Location: req.Location,
		}
	}

	result, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Password, descriptor)
	if err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		TwoFactorRequired: result.TwoFactorRequired,
		SecurityToken:     result.SecurityToken,
		Tokens:            newTokenPairResponse(result.Tokens),
	})
}

// CompleteTwoFactorLogin exchanges a login security token plus a TOTP code
// for session tokens.
func (h *AuthHandler) CompleteTwoFactorLogin(c *gin.Context) {
	var req TwoFactorLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid two-factor payload"))
		return
	}

	pair, err := h.auth.CompleteTwoFactorLogin(c.Request.Context(), req.SecurityToken, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "two-factor login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Tokens: newTokenPairResponse(pair)})
}

// Refresh rotates a refresh token into a fresh pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "refresh failed")
		return
	}

	c.JSON(http.StatusOK, newTokenPairResponse(pair))
}

// Logout revokes the presented session tokens.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid logout payload"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken, req.AccessToken); err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// LogoutAll revokes every live token of the authenticated account.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	if err := h.auth.LogoutAll(c.Request.Context(), userID); err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "all sessions revoked"})
}
