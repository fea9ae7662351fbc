package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/domain"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps domain errors to HTTP responses. Validation maps to
// 400, ledger rule failures to 422, conflicts to 409. Invariant violations
// are bugs: logged at error severity and returned as 500.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var unbalanced *domain.ErrUnbalanced
	var noBankLine *domain.ErrNoBankLine
	var conflict *domain.ErrConflict
	var duplicate *domain.ErrDuplicateKey
	var alreadyReversed *domain.ErrAlreadyReversed
	var immutable *domain.ErrReconciledImmutable
	var invariant *domain.ErrInvariantViolation
	var unauthorized *domain.ErrUnauthorized

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unbalanced):
		logger.Warn("unbalanced transaction rejected",
			zap.Float64("debits", unbalanced.Debits),
			zap.Float64("credits", unbalanced.Credits),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &noBankLine):
		logger.Warn("missing bank line", zap.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &duplicate):
		logger.Debug("duplicate idempotency key", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &alreadyReversed):
		logger.Debug("already reversed", zap.String("payment_id", alreadyReversed.PaymentID))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &immutable):
		logger.Debug("reconciled history is immutable", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &invariant):
		logger.Error("ledger invariant violated", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
