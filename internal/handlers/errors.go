package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/blob"
	"github.com/harentsoaR/onlyfix-api/internal/directory"
	"github.com/harentsoaR/onlyfix-api/internal/ledger"
	"github.com/harentsoaR/onlyfix-api/internal/middleware"
	"github.com/harentsoaR/onlyfix-api/internal/models"
	"github.com/harentsoaR/onlyfix-api/internal/report"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var validErr *directory.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{Error: "validation failed", Fields: validErr.Fields})
		return
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Request body too large"})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Access denied"})

	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Checkup not found"})
	case errors.Is(err, ledger.ErrDentistNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Dentist not found"})
	case errors.Is(err, directory.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "User not found"})
	case errors.Is(err, blob.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Image not found"})

	case errors.Is(err, ledger.ErrNotCompleted), errors.Is(err, report.ErrNotCompleted):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Checkup not completed yet"})
	case errors.Is(err, ledger.ErrInvalidStatus), errors.Is(err, ledger.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, directory.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "User already exists with this email"})
	case errors.Is(err, blob.ErrEmpty):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Uploaded file is empty"})

	case errors.Is(err, directory.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid credentials"})

	case errors.Is(err, ledger.ErrStaleWrite):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Checkup was modified concurrently, retry"})

	case errors.Is(err, blob.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Image exceeds the 10 MB limit"})
	case errors.Is(err, blob.ErrContentType):
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Error: "Only JPEG, PNG, GIF and WebP images are accepted"})

	default:
		h.Log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("requestId", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// requester reads the identity the auth middleware put on the context.
func requester(c *gin.Context) (ledger.Requester, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString(middleware.UserIDKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid token"})
		return ledger.Requester{}, false
	}
	role, _ := c.Get(middleware.UserRoleKey)
	r, _ := role.(models.Role)
	return ledger.Requester{ID: id, Role: r}, true
}

func parseObjectID(c *gin.Context, param, what string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: what + " not found"})
		return primitive.NilObjectID, false
	}
	return id, true
}
