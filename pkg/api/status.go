package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
)

// Status is the Kubernetes-shaped error envelope returned for every
// non-2xx response. Reason is a machine-readable tag; Message is for
// humans and log lines, not for branching on.
type Status struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Code       int    `json:"code"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

func httpStatusAndReason(kind apierrors.Kind) (int, string) {
	switch kind {
	case apierrors.NotFound:
		return http.StatusNotFound, "NotFound"
	case apierrors.AlreadyExists:
		return http.StatusConflict, "AlreadyExists"
	case apierrors.Conflict:
		return http.StatusConflict, "Conflict"
	case apierrors.BadRequest:
		return http.StatusBadRequest, "BadRequest"
	case apierrors.ValidationFailed:
		return http.StatusUnprocessableEntity, "Invalid"
	case apierrors.Corruption:
		return http.StatusServiceUnavailable, "InternalError"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

// statusForError renders err as the HTTP status code and Status body it
// should produce. Any error is accepted; one that never passed through
// apierrors renders as a generic 500 InternalError, same as KindOf does.
func statusForError(err error) (int, Status) {
	kind := apierrors.KindOf(err)
	code, reason := httpStatusAndReason(kind)
	st := Status{
		APIVersion: "v1",
		Kind:       "Status",
		Status:     "Failure",
		Code:       code,
		Reason:     reason,
		Message:    err.Error(),
	}
	return code, st
}

// writeError renders err as the Status envelope and sends it as c's
// response. It never returns a non-nil error itself, so handlers can
// `return writeError(c, err)` as their final statement.
func writeError(c echo.Context, err error) error {
	code, st := statusForError(err)
	return c.JSON(code, st)
}
