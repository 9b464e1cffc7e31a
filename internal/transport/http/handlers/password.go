package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

// PasswordHandler exposes the forgot/reset password flow.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
}

// NewPasswordHandler constructs a PasswordHandler.
func NewPasswordHandler(reset *usecase.PasswordResetService) *PasswordHandler {
	return &PasswordHandler{reset: reset}
}

// Forgot starts a password reset and returns the flow's security token.
func (h *PasswordHandler) Forgot(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	token, err := h.reset.Forgot(c.Request.Context(), req.Identifier)
	if err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "reset request failed")
		return
	}

	c.JSON(http.StatusOK, ForgotPasswordResponse{SecurityToken: token})
}

// Reset completes the flow with the mailed code and the new password.
func (h *PasswordHandler) Reset(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	if err := h.reset.Reset(c.Request.Context(), req.SecurityToken, req.Code, req.NewPassword); err != nil {
		var pwErr *security.PasswordValidationError
		if errors.As(err, &pwErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, pwErr.Error()))
			return
		}
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "reset failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}
