package serverutils

import (
	"context"
	"errors"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/pkg/emergency/directory"
	"emergency-dispatch-be/pkg/emergency/escalation"
	"emergency-dispatch-be/pkg/emergency/lifecycle"
	"emergency-dispatch-be/pkg/emergency/matcher"

	"github.com/gofiber/fiber/v2"
)

// StateError carries the current state of a resource whose change was rejected.
type StateError struct {
	Err   error
	State any
}

func (e *StateError) Error() string { return e.Err.Error() }

func (e *StateError) Unwrap() error { return e.Err }

func WithState(err error, state any) error {
	return &StateError{Err: err, State: state}
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var validationErr *ValidationError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, lifecycle.ErrInvalidInput),
		errors.Is(err, directory.ErrInvalidResponder):
		return fiber.StatusBadRequest
	case errors.Is(err, escalation.ErrSessionNotFound),
		errors.Is(err, lifecycle.ErrStepNotFound),
		errors.Is(err, directory.ErrResponderNotFound),
		errors.Is(err, entity.ErrAssignmentNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrSessionClosed),
		errors.Is(err, directory.ErrResponderUnavailable),
		errors.Is(err, entity.ErrInvalidAssignmentTransition),
		errors.Is(err, escalation.ErrNoLocation):
		return fiber.StatusConflict
	case errors.Is(err, matcher.ErrDispatchTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}

// ErrorHandlerMiddleware renders errors returned by handlers as ErrorResponse.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "internal server error"
		}
		res := ErrorResponse(code, message)
		var stateErr *StateError
		if errors.As(err, &stateErr) {
			res.Data = stateErr.State
		}
		return ctx.Status(code).JSON(res)
	}
}
