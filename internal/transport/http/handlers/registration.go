package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

// RegistrationHandler exposes account creation and email verification.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(registration *usecase.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// Register creates an account and mails a verification code.
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	user, err := h.registration.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		var pwErr *security.PasswordValidationError
		if errors.As(err, &pwErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, pwErr.Error()))
			return
		}
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

// VerifyAccount confirms ownership of the registered email address.
func (h *RegistrationHandler) VerifyAccount(c *gin.Context) {
	var req VerifyAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	if err := h.registration.VerifyAccount(c.Request.Context(), req.Identifier, req.Code); err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account verified"})
}

// ResendVerification issues a fresh verification code.
func (h *RegistrationHandler) ResendVerification(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	if err := h.registration.ResendVerification(c.Request.Context(), req.Identifier); err != nil {
		RespondWithMappedError(c, err, securityErrorCases(), http.StatusInternalServerError, "resend failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "verification code sent"})
}
