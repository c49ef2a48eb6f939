package ginserver

import (
	"errors"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"stayengine/internal/app/commands"
	"stayengine/internal/domain/shared/domainerr"
)

type errorBody struct {
	Error    string     `json:"error"`
	Kind     string     `json:"kind"`
	Field    string     `json:"field,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		validation *domainerr.ValidationError
		conflict   *domainerr.ConflictError
		state      *domainerr.StateError
		policy     *domainerr.PolicyViolationError
		payment    *domainerr.PaymentError
		notFound   *domainerr.NotFoundError
	)
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status, body.Kind, body.Field = http.StatusBadRequest, "validation", validation.Field
	case errors.As(err, &notFound):
		status, body.Kind = http.StatusNotFound, "not_found"
	case errors.As(err, &conflict):
		status, body.Kind = http.StatusConflict, "conflict"
	case errors.As(err, &state):
		status, body.Kind = http.StatusConflict, "state"
	case errors.As(err, &policy):
		deadline := policy.Deadline
		status, body.Kind, body.Deadline = http.StatusUnprocessableEntity, "policy_violation", &deadline
	case errors.As(err, &payment):
		status, body.Kind = http.StatusBadGateway, "payment"
	case errors.Is(err, commands.ErrHandlerNotFound):
		status, body.Kind = http.StatusNotImplemented, "unsupported"
	default:
		body.Kind = "internal"
		body.Error = "internal error"
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "validation"})
}
