package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vbonduro/sparx/internal/domain"
	"github.com/vbonduro/sparx/internal/workflow"
)

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorData `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string                    `json:"code"`
	Message string                    `json:"message"`
	Fields  workflow.ValidationErrors `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{Error: &ErrorData{Code: code, Message: message}})
}

// writeDomainError maps workflow errors to status codes. Anything it does
// not recognise is logged and reported as an internal error.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verrs workflow.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, Response{Error: &ErrorData{
			Code:    "VALIDATION_ERROR",
			Message: "invalid input",
			Fields:  verrs,
		}})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrAlreadyReserved):
		writeError(w, http.StatusConflict, "ALREADY_RESERVED", "spot is already reserved")
	case errors.Is(err, domain.ErrBusy):
		writeError(w, http.StatusConflict, "BUSY", "request already in progress")
	case errors.Is(err, domain.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "NO_SESSION", "sign in required")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
