package server

import (
	"encoding/json"
	"net/http"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeClassified answers with the status matching err's code.
func writeClassified(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.Classify(err) {
	case errors.ErrValidation:
		status = http.StatusBadRequest
	case errors.ErrNotFound:
		status = http.StatusNotFound
	case errors.ErrForbidden:
		status = http.StatusForbidden
	case errors.ErrTransient:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(errors.Classify(err)),
	})
}
