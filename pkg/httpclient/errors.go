package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
)

// ErrorBody is the failure half of the backend response envelope
// `{"success": false, "error": {"message": ..., "errors": {...}}}`.
// Code is optional; some backend views add one, most do not.
type ErrorBody struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type downstreamErrorResponse struct {
	Success *bool           `json:"success,omitempty"`
	Error   json.RawMessage `json:"error"`
	Detail  string          `json:"detail,omitempty"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. Envelope bodies keep their message and field errors;
// bare `{"detail": "..."}` bodies keep the detail; anything else is reported
// with the status code and raw body.
//
// The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	if body, ok := DecodeErrorBody(bodyBytes); ok {
		return mapDownstreamError(resp.StatusCode, body, serviceName)
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

// DecodeErrorBody extracts an ErrorBody from raw response bytes. The error
// member may be an object or a plain string.
func DecodeErrorBody(raw []byte) (ErrorBody, bool) {
	var downstream downstreamErrorResponse
	if json.Unmarshal(raw, &downstream) != nil {
		return ErrorBody{}, false
	}

	if len(downstream.Error) > 0 && string(downstream.Error) != "null" {
		var body ErrorBody
		if json.Unmarshal(downstream.Error, &body) == nil {
			return body, true
		}
		var msg string
		if json.Unmarshal(downstream.Error, &msg) == nil {
			return ErrorBody{Message: msg}, true
		}
	}

	if downstream.Detail != "" {
		return ErrorBody{Message: downstream.Detail}, true
	}

	return ErrorBody{}, false
}

// mapDownstreamError translates a backend status code and error body into an
// AppError that preserves the error semantics.
func mapDownstreamError(status int, body ErrorBody, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, body.Message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, body.Message)
	case status == http.StatusBadRequest:
		appErr := apperrors.InvalidInput(qualifiedMsg)
		appErr.Fields = body.Errors
		return appErr
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, body.Code, body.Message)
	default:
		return apperrors.Remote(qualifiedMsg, body.Errors)
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
