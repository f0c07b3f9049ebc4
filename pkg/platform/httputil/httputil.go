// Package httputil writes domain errors as JSON responses.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "biogate/pkg/domain-errors"
)

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError renders err using its domain code. Internal errors keep their
// message out of the response body.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorResponse{Error: string(code)}

	var domainErr *dErrors.Error
	if code != dErrors.CodeInternal && errors.As(err, &domainErr) {
		body.ErrorDescription = domainErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(err))
	_ = json.NewEncoder(w).Encode(body)
}
