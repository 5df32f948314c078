package httputil

import (
	"encoding/json"
	"net/http"

	"furnidesk/internal/errors"
	"furnidesk/internal/tracing"

	"github.com/sirupsen/logrus"
)

// WriteJSON writes v with the given status. Encoding failures are logged
// because the header is already sent.
func WriteJSON(w http.ResponseWriter, logger logrus.FieldLogger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.WithError(err).Warn("Failed to encode response")
	}
}

// WriteError renders err as an HTTPErrorResponse with the status mapped from
// its code and the request id from r's context.
func WriteError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, err error) {
	status := errors.HTTPStatusCode(err)
	requestID := tracing.GetRequestID(r.Context())

	if logger != nil {
		errors.Log(logger, err, "Request failed", logrus.Fields{
			"request_id":  requestID,
			"status_code": status,
			"path":        r.URL.Path,
		})
	}
	WriteJSON(w, logger, status, errors.ToHTTPResponse(err, requestID))
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.NewValidationError("body", "invalid JSON body: "+err.Error())
	}
	return nil
}
