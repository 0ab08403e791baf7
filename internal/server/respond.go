package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mcpgateway/internal/api"
	"mcpgateway/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("HTTPServer", "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := api.CodeOf(err).HTTPStatus()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusBadGateway {
		logging.Error("HTTPServer", err, "Request failed")
	}
	writeJSON(w, status, api.ToBody(err))
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return api.ErrValidation("invalid request body: %v", err)
	}
	return nil
}
