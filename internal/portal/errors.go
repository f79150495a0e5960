package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kilimopesa/internal/domain"
	"github.com/kilimopesa/internal/session"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    string              `json:"code,omitempty"`
	Details string              `json:"details,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// statusFor maps a session error to the portal's HTTP status
func statusFor(err error) int {
	if errors.Is(err, session.ErrNoPendingVerification) {
		return http.StatusConflict
	}
	switch domain.CodeOf(err) {
	case domain.CodeValidationFailed:
		return http.StatusBadRequest
	case domain.CodeInvalidCredentials, domain.CodeAuthExpired:
		return http.StatusUnauthorized
	case domain.CodeOperationInProgress:
		return http.StatusConflict
	case domain.CodeNetworkUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err the way the auth forms display it
func (s *Server) respondError(c *gin.Context, operation string, err error) {
	status := statusFor(err)

	resp := ErrorResponse{
		Error:  domain.PublicMessage(err),
		Code:   domain.CodeOf(err),
		Fields: domain.FieldErrors(err),
	}
	if errors.Is(err, session.ErrNoPendingVerification) {
		resp.Error = "No verification in progress"
	}

	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), operation+" failed", "status", status, "error", err)
	} else {
		s.logger.WarnContext(c.Request.Context(), operation+" rejected", "status", status, "code", resp.Code)
	}

	c.JSON(status, resp)
}
