// Package httpapi holds the small shared HTTP plumbing the domain handlers
// use: RFC 7807 problem responses and JSON encoding helpers.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs shared across the API surface.
const (
	ProblemTypeValidation = "https://channelpulse.io/problems/validation-error"
	ProblemTypeNotFound   = "https://channelpulse.io/problems/not-found"
	ProblemTypeConflict   = "https://channelpulse.io/problems/conflict"
	ProblemTypeForbidden  = "https://channelpulse.io/problems/forbidden"
	ProblemTypeInternal   = "https://channelpulse.io/problems/internal-error"
)

// ProblemDetails is an RFC 7807 error payload.
type ProblemDetails struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// WriteProblem renders the problem with the application/problem+json type.
func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteJSON renders a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON strictly decodes the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
