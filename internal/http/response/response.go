package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eoty/eoty-backend/internal/platform/apierr"
)

// Envelope is the wire shape for every response:
// {success, data?, message?, error: {code, details?}}.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func RespondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

func RespondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message})
}

// RespondError maps any error to the stable status table; errors without
// a code surface as internal.
func RespondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	details := ""
	if ae.Err != nil {
		details = ae.Err.Error()
	}
	c.JSON(ae.Status(), Envelope{
		Success: false,
		Error:   &APIError{Code: ae.Code, Details: details},
	})
}

func AbortUnauthorized(c *gin.Context, details string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{
		Success: false,
		Error:   &APIError{Code: "unauthorized", Details: details},
	})
}
