// backend/src/utils/utils.go
package utils

import (
	"encoding/json"
	"math"
	"net/http"
	"time"
)

const dayLayout = "2006-01-02"

// JSONErrorResponse is the standard error envelope returned by all handlers.
type JSONErrorResponse struct {
	Error string `json:"error"`
}

// SendJSONError writes a JSON error envelope with the given HTTP status.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(JSONErrorResponse{Error: message})
}

// SendJSONResponse writes an arbitrary payload as JSON with the given status.
func SendJSONResponse(w http.ResponseWriter, payload interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// RoundFloat rounds a float to the given number of decimal places.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// ParseDay parses a calendar day in YYYY-MM-DD format.
// Returns the zero time and false for empty or malformed values.
func ParseDay(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dayLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDay renders a time as a calendar day in YYYY-MM-DD format.
func FormatDay(t time.Time) string {
	return t.Format(dayLayout)
}

// DayDiff returns the absolute difference in calendar days between two days.
func DayDiff(a, b time.Time) int {
	diff := a.Sub(b).Hours() / 24
	return int(math.Abs(math.Round(diff)))
}
