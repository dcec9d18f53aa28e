// Package control implements the HTTP Control Plane consumed by external
// orchestrators (spec §6.1): job lifecycle, product lookup, and health.
package control

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// envelope is the fixed response shape every endpoint returns.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	body.Timestamp = time.Now()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// isNotFound classifies a repository error as a 404 rather than a 500: both
// storage backends signal a missing row through the error string (Memory's
// "not found" sentinel, Postgres's wrapped pgx.ErrNoRows "no rows").
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no rows")
}

func queryInt(values map[string][]string, key string, fallback int) int {
	raw := values[key]
	if len(raw) == 0 || raw[0] == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw[0])
	if err != nil {
		return fallback
	}
	return n
}
