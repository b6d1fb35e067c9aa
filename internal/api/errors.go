package api

import (
	"errors"
	"net/http"

	"github.com/example/glam-checkout/internal/domain/order"
)

const genericFailure = "something went wrong, please try again"

type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
	Kind    string            `json:"kind"`
}

// StatusFor maps an error kind to the HTTP status it is reported with.
func StatusFor(kind order.Kind) int {
	switch kind {
	case order.KindValidation:
		return http.StatusBadRequest
	case order.KindCatalog, order.KindConflict:
		return http.StatusConflict
	case order.KindUnknownOrder:
		return http.StatusNotFound
	case order.KindVerificationFailed, order.KindAmountMismatch:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	kind := order.KindOf(err)
	body := errorResponse{
		Error:   genericFailure,
		Details: order.DetailsOf(err),
		Kind:    string(kind),
	}
	var e *order.Error
	if errors.As(err, &e) && e.Message != "" {
		body.Error = e.Message
	}
	if kind == order.KindInternal {
		h.logger.Error().Err(err).Msg("request failed")
	}
	respondJSON(w, StatusFor(kind), body)
}
