package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stepacool/cursor-hackathon-submission/services"
)

// envelope - единый формат ответа API
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, code int, message string, data interface{}) {
	writeJSON(w, code, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Success: false, Error: message})
}

// writeServiceError отдает сообщение BankError со статусом по его классу
func writeServiceError(w http.ResponseWriter, err error) {
	var bankErr *services.BankError
	if !errors.As(err, &bankErr) {
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again later")
		return
	}
	writeError(w, statusForKind(bankErr.Kind), bankErr.Error())
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindBadRequest,
		services.KindInactiveAccount,
		services.KindSelfTransfer,
		services.KindCurrencyMismatch,
		services.KindInsufficientFunds,
		services.KindAlreadyClosed,
		services.KindInvalidTransition:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
