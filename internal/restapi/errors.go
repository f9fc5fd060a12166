// Package restapi is the HTTP collaborator surface (spec §6): it turns
// orchestrator requests and rcerrors.Kind values into gin handlers and JSON
// responses, the way the teacher's internal/infrastructure/api/rest turns
// workflow requests into HTTP.
package restapi

import (
	"errors"
	"net/http"

	"github.com/reconciliation-rca/engine/pkg/rcerrors"
)

// APIError is the JSON error envelope returned on every non-2xx response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

var kindToAPIError = map[rcerrors.Kind]*APIError{
	rcerrors.KindMetadata:         NewAPIError("METADATA_NOT_FOUND", "referenced system, metric, or rule does not exist", http.StatusNotFound),
	rcerrors.KindAmbiguousIntent:  NewAPIError("AMBIGUOUS_INTENT", "the query did not resolve to two systems and a metric", http.StatusUnprocessableEntity),
	rcerrors.KindUnresolvablePath: NewAPIError("UNRESOLVABLE_PATH", "no lineage path connects the requested grains", http.StatusUnprocessableEntity),
	rcerrors.KindInvalidConstraint: NewAPIError("INVALID_CONSTRAINT", "a filter or derive referenced an unknown column", http.StatusBadRequest),
	rcerrors.KindDangerousPlan:    NewAPIError("DANGEROUS_PLAN", "the compiled plan's projected fan-out exceeds the configured ceiling", http.StatusUnprocessableEntity),
	rcerrors.KindDataTooLarge:     NewAPIError("DATA_TOO_LARGE", "the request exceeded the configured row or memory ceiling", http.StatusRequestEntityTooLarge),
	rcerrors.KindTimeout:          NewAPIError("TIMEOUT", "the request exceeded its wall-clock deadline", http.StatusGatewayTimeout),
	rcerrors.KindIdentity:         NewAPIError("IDENTITY_VIOLATION", "grain key columns were not unique where uniqueness was required", http.StatusUnprocessableEntity),
	rcerrors.KindExecution:        NewAPIError("EXECUTION_FAULT", "the tabular data layer reported a fault", http.StatusBadGateway),
	rcerrors.KindSafetyGuardrail:  NewAPIError("SAFETY_GUARDRAIL", "the request was rejected by a safety policy", http.StatusForbidden),
	rcerrors.KindUnknown:          NewAPIError("UNKNOWN", "unclassified failure", http.StatusInternalServerError),
}

// TranslateError maps any error from the orchestrator pipeline to the
// APIError it should produce, falling back to the rcerrors taxonomy kind
// when the error isn't already an *APIError.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	kind := rcerrors.Classify(err)
	if mapped, ok := kindToAPIError[kind]; ok {
		return &APIError{Code: mapped.Code, Message: mapped.Message + ": " + err.Error(), HTTPStatus: mapped.HTTPStatus}
	}
	return NewAPIError("INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}
