package backend

import (
	"encoding/json"
	"net/http"

	"mobiletracking/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

type requestError struct {
	code int
	msg  string
}

func (e requestError) Error() string   { return e.msg }
func (e requestError) StatusCode() int { return e.code }

func badRequest(msg string) error { return requestError{code: http.StatusBadRequest, msg: msg} }

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
