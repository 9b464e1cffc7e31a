package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/transport/http/middleware"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

// TwoFactorHandler exposes the TOTP lifecycle for authenticated accounts.
type TwoFactorHandler struct {
	twofactor *usecase.TwoFactorService
}

// NewTwoFactorHandler constructs a TwoFactorHandler.
func NewTwoFactorHandler(twofactor *usecase.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twofactor: twofactor}
}

// Add starts activation after a fresh password check.
func (h *TwoFactorHandler) Add(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req AddTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	enrollment, err := h.twofactor.Enable(c.Request.Context(), userID, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "activation failed")
		return
	}

	c.JSON(http.StatusOK, AddTwoFactorResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
	})
}

// ConfirmFirst completes activation and returns the backup codes.
func (h *TwoFactorHandler) ConfirmFirst(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req TwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	codes, err := h.twofactor.ConfirmFirst(c.Request.Context(), userID, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "confirmation failed")
		return
	}

	c.JSON(http.StatusOK, ConfirmTwoFactorResponse{BackupCodes: codes})
}

// Verify checks a TOTP code for an enabled account.
func (h *TwoFactorHandler) Verify(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req TwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	if err := h.twofactor.Verify(c.Request.Context(), userID, req.Code); err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "code accepted"})
}

// VerifyBackup consumes backup codes, disabling 2FA when enough match.
func (h *TwoFactorHandler) VerifyBackup(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req BackupCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	pair, err := h.twofactor.VerifyBackup(c.Request.Context(), userID, req.Codes)
	if err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "backup verification failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Tokens: newTokenPairResponse(pair)})
}

// Remove disables 2FA after a valid TOTP code.
func (h *TwoFactorHandler) Remove(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req TwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	if err := h.twofactor.Remove(c.Request.Context(), userID, req.Code); err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "removal failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor disabled"})
}
