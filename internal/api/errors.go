package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindWindow, domain.KindState, domain.KindSupply:
		return http.StatusConflict
	case domain.KindFunds:
		return http.StatusPaymentRequired
	case domain.KindInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError renders err. Presale errors expose their reason; anything else
// is logged and reported as an internal error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	if kind == "" && errors.Is(err, storage.ErrInvalidInput) {
		kind = domain.KindInput
	}
	if kind == "" {
		s.logger.Error("request failed",
			zap.String("request_id", w.Header().Get(RequestIDHeader)),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: "internal"})
		return
	}

	reason := domain.ReasonOf(err)
	if reason == "" {
		reason = err.Error()
	}
	writeJSON(w, statusFor(kind), errorResponse{Error: reason, Kind: string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
