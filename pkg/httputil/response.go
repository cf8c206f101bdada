package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response shape for all API endpoints
type Envelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// WriteData writes a success envelope with the given status code
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Data: data})
}

// WriteErrorMessage writes an error envelope with the given status code
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Error: message})
}

// WriteSuccess writes a 200 OK success envelope
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteData(w, http.StatusOK, data)
}

// WriteCreated writes a 201 Created success envelope
func WriteCreated(w http.ResponseWriter, data interface{}) {
	WriteData(w, http.StatusCreated, data)
}

// WriteValidationError writes a 400 validation error naming the offending
// field or count
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes a 401 authentication-required error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403 authorization-denied error
func WriteForbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "insufficient permissions"
	}
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a 404 not-found error
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteInternalError writes a generic 500 without leaking internal detail.
// The caller is responsible for logging the underlying error.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
