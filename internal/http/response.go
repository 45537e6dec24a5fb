package http

import (
	"encoding/json"
	"net/http"
)

// ErrorBody é o corpo padrão de erro.
type ErrorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// WriteJSON escreve o payload como JSON.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError escreve {"ok":false,"error":...} mantendo formato consistente.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{OK: false, Error: message})
}
