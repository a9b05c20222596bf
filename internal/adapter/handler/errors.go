package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "InvalidArgument"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthenticated"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "Unavailable"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}

// abortWithError writes the stable error shape. Storage details never reach the client.
func abortWithError(c *gin.Context, logger *zap.Logger, err error) {
	status, kind := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("request_id", requestIDFrom(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Kind: kind, Message: domain.PublicMessage(err)}})
}

func badRequest(c *gin.Context, logger *zap.Logger, message string) {
	abortWithError(c, logger, domain.InvalidArgument("%s", message))
}
