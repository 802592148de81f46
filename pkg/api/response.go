// Package api provides standardized helper functions for HTTP API responses.
package api

import (
	"encoding/json"
	"net/http"

	pkgerrors "rulechain-backend/pkg/errors"
)

// Success sends a successful HTTP response with optional JSON data
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error sends an error response with consistent JSON format
func Error(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// HandleError maps an application error onto the HTTP status space
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case pkgerrors.IsValidation(err):
		Error(w, http.StatusBadRequest, err.Error())
	case pkgerrors.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error())
	case pkgerrors.IsConflict(err):
		Error(w, http.StatusConflict, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
