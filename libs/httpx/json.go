package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON error envelope. Reason is a stable machine code the
// mobile client maps to a localized message.
type ErrorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func WriteError(w http.ResponseWriter, status int, reason, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg, Reason: reason})
}
