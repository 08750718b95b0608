package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// downstreamError accepts the error bodies services in front of us return:
// the envelope form {"error":{"code","message"}}, a bare {"error":"..."}
// string, or {"message":"..."}.
type downstreamError struct {
	Code    string
	Message string
}

func (d *downstreamError) UnmarshalJSON(b []byte) error {
	var raw struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	if len(raw.Error) > 0 && string(raw.Error) != "null" {
		var structured struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw.Error, &structured); err == nil {
			d.Code, d.Message = structured.Code, structured.Message
			return nil
		}
		var msg string
		if err := json.Unmarshal(raw.Error, &msg); err == nil {
			d.Message = msg
			return nil
		}
	}
	d.Message = raw.Message
	return nil
}

// ErrorMessage extracts a human-readable message from an error body, or ""
// when the body carries none.
func ErrorMessage(body []byte) string {
	var d downstreamError
	if json.Unmarshal(body, &d) != nil {
		return ""
	}
	return strings.TrimSpace(d.Message)
}

// ParseResponseError reads a non-2xx response and translates it into an
// AppError that keeps the downstream's status semantics and message. The
// body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}
	return StatusError(resp.StatusCode, body, serviceName)
}

// StatusError maps a status code and error body to an error.
func StatusError(status int, body []byte, serviceName string) error {
	var d downstreamError
	if json.Unmarshal(body, &d) != nil || (d.Message == "" && d.Code == "") {
		return mapDownstreamError(status, "", strings.TrimSpace(string(body)), serviceName)
	}
	return mapDownstreamError(status, d.Code, d.Message, serviceName)
}

// AsServerError unwraps a *ServerError produced by CircuitBreakerClient.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	ok := errors.As(err, &se)
	return se, ok
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusGone:
		return apperrors.Gone(qualified)
	case status == http.StatusPaymentRequired || status == http.StatusUnprocessableEntity:
		return apperrors.PaymentFailed(message)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualified)
	case status >= 500:
		if code == "" {
			code = "UPSTREAM_ERROR"
		}
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		if code == "" {
			code = "UPSTREAM_ERROR"
		}
		return &apperrors.AppError{Code: code, Message: qualified, Status: status}
	}
}
