package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rentora/rentora/internal/domain"
)

var statusByCode = map[domain.Code]int{
	domain.CodeUnauthenticated:   http.StatusUnauthorized,
	domain.CodeValidation:        http.StatusBadRequest,
	domain.CodeNotFound:          http.StatusNotFound,
	domain.CodeInactive:          http.StatusBadRequest,
	domain.CodeConflict:          http.StatusConflict,
	domain.CodeBlackout:          http.StatusConflict,
	domain.CodeInvalidTransition: http.StatusBadRequest,
	domain.CodeForbidden:         http.StatusForbidden,
	domain.CodeUnavailable:       http.StatusServiceUnavailable,
	domain.CodeDeadlineExceeded:  http.StatusGatewayTimeout,
	domain.CodeInternal:          http.StatusInternalServerError,
}

func writeError(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := "internal server error"
	var de *domain.Error
	if errors.As(err, &de) && de.Code != domain.CodeInternal {
		message = de.Message
	}

	c.JSON(status, gin.H{"error": string(code), "message": message})
}

// callerID returns the identity established by the authentication
// collaborator in front of this service. The engine only ever sees a bare id.
func callerID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}
