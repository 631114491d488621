package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/exportd/internal/platform/apierr"
	"github.com/clipforge/exportd/internal/platform/ctxutil"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the error envelope, stamping the active trace id
// (set by middleware.TraceContext) when one is present so a client can
// hand it back to whoever operates the collector.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	var traceID string
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		traceID = td.TraceID
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
			TraceID: traceID,
		},
	})
}

// RespondErr unwraps a *apierr.Error for its intended status/code, falling
// back to fallbackStatus/fallbackCode for anything else (a plain repo or
// driver error that was never classified).
func RespondErr(c *gin.Context, err error, fallbackStatus int, fallbackCode string) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		RespondError(c, apiErr.Status, apiErr.Code, apiErr.Err)
		return
	}
	RespondError(c, fallbackStatus, fallbackCode, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
