package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// writeJSON writes v as JSON. HTML escaping is off: section values are HTML
// fragments and must stay readable.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeText(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	fmt.Fprint(w, msg)
}

func writeServerError(w http.ResponseWriter, err error) {
	writeText(w, http.StatusInternalServerError, "Server error: "+err.Error())
}
