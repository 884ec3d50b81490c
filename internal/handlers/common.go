package handlers

import (
	"errors"
	"net/http"

	"github.com/utsavbhardwaj/secretroom/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// serviceError translates store sentinels into HTTP responses. Unknown
// errors are logged and surfaced as a generic 500, never swallowed.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, services.ErrRoomExpired),
		errors.Is(err, services.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrRoomFull),
		errors.Is(err, services.ErrNotMember),
		errors.Is(err, services.ErrAdminRequired),
		errors.Is(err, services.ErrCannotKickAdmin):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	default:
		logrus.WithError(err).Error("store call failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
