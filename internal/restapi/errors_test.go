package restapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/reconciliation-rca/engine/pkg/rcerrors"
)

func TestTranslateError_MapsKnownTaxonomyKind(t *testing.T) {
	err := fmt.Errorf("system %q: %w", "ledger", rcerrors.ErrMetadataNotFound)

	apiErr := TranslateError(err)

	if apiErr.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apiErr.HTTPStatus)
	}
	if apiErr.Code != "METADATA_NOT_FOUND" {
		t.Errorf("expected METADATA_NOT_FOUND, got %s", apiErr.Code)
	}
}

func TestTranslateError_PassesThroughExistingAPIError(t *testing.T) {
	original := NewAPIError("CUSTOM", "already classified", http.StatusTeapot)

	apiErr := TranslateError(original)

	if apiErr != original {
		t.Errorf("expected the same *APIError instance to pass through unchanged")
	}
}

func TestTranslateError_DefaultsUnclassifiedErrorsTo500(t *testing.T) {
	apiErr := TranslateError(errors.New("something nobody has seen before"))

	if apiErr.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", apiErr.HTTPStatus)
	}
	if apiErr.Code != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", apiErr.Code)
	}
}

func TestTranslateError_NilReturnsNil(t *testing.T) {
	if apiErr := TranslateError(nil); apiErr != nil {
		t.Errorf("expected nil, got %+v", apiErr)
	}
}

func TestTranslateError_EveryTaxonomyKindHasAMapping(t *testing.T) {
	sentinels := []error{
		rcerrors.ErrMetadataNotFound,
		rcerrors.ErrAmbiguousIntent,
		rcerrors.ErrUnresolvablePath,
		rcerrors.ErrInvalidConstraint,
		rcerrors.ErrDangerousPlan,
		rcerrors.ErrDataTooLarge,
		rcerrors.ErrTimeout,
		rcerrors.ErrIdentityNotUnique,
		rcerrors.ErrExecutionFault,
		rcerrors.ErrSafetyGuardrail,
	}
	for _, sentinel := range sentinels {
		apiErr := TranslateError(sentinel)
		if apiErr.HTTPStatus == http.StatusInternalServerError && apiErr.Code == "INTERNAL_ERROR" {
			t.Errorf("sentinel %v fell through to the unclassified default", sentinel)
		}
	}
}
