package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/freshbasket/freshbasket/internal/services"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// statusForKind maps a service error kind onto the HTTP status returned to clients.
func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindInvalidState, services.KindWindowExpired,
		services.KindInvalidStatus, services.KindInvalidTransition, services.KindOTPInvalid:
		return http.StatusBadRequest
	case services.KindUnauthenticated:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err and writes the matching status. Internal and
// storage errors are logged and answered with a generic message.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.KindOf(err)
	status := statusForKind(kind)
	logger := h.loggerFromContext(r.Context())

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "kind", kind)
		writeJSON(w, status, errorResponse{Message: "Something went wrong, please try again", Kind: kind})
		return
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		logger.Warn("request rejected", "error", err, "kind", kind)
	} else {
		logger.Info("request rejected", "error", err, "kind", kind)
	}
	writeJSON(w, status, errorResponse{Message: clientMessage(err), Kind: kind})
}

type errorResponse struct {
	Message string        `json:"message"`
	Kind    services.Kind `json:"error"`
}

// clientMessage capitalises the wrapped detail of a service error.
func clientMessage(err error) string {
	message := err.Error()
	if message == "" {
		return "Request failed"
	}
	return strings.ToUpper(message[:1]) + message[1:]
}

var errEmptyBody = errors.New("request body is required")

// decodeJSON reads a single JSON document into dst. Failures are reported as
// validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: %v", services.ErrValidation, errEmptyBody)
		case errors.As(err, &maxBytesErr):
			return fmt.Errorf("%w: request body must be at most %d bytes", services.ErrValidation, maxBytesErr.Limit)
		default:
			return fmt.Errorf("%w: malformed JSON body", services.ErrValidation)
		}
	}
	return nil
}
