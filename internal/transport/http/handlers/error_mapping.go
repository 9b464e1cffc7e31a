package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or
// falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// securityErrorCases covers the taxonomy shared by every credential-bearing
// endpoint. Warning and lock errors keep their own messages so clients see
// the strike count or the lock window.
func securityErrorCases() []ErrorCase {
	return []ErrorCase{
		{Err: usecase.ErrAccountLocked, Status: http.StatusForbidden},
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized},
		{Err: usecase.ErrAccountNotVerified, Status: http.StatusForbidden, Message: "account not verified"},
		{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "token expired"},
		{Err: usecase.ErrTokenRevoked, Status: http.StatusUnauthorized, Message: "token revoked"},
		{Err: usecase.ErrTokenMalformed, Status: http.StatusUnauthorized, Message: "token invalid"},
		{Err: usecase.ErrCapacityExceeded, Status: http.StatusConflict},
		{Err: usecase.ErrAlreadyInProgress, Status: http.StatusConflict, Message: "activation already in progress"},
		{Err: usecase.ErrConflictState, Status: http.StatusConflict, Message: "conflicting account state"},
		{Err: usecase.ErrUserExists, Status: http.StatusConflict, Message: "user already exists"},
		{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	}
}
