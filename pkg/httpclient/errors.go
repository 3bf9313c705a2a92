package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
)

const maxBodyBytes = 4 << 20

// errorEnvelope covers the two error bodies the storefront services send:
// {"error":{"code","message"}} and the flat {"error":"...","message":"..."}.
type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads a non-2xx response and translates it into an
// AppError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, resp.StatusCode, err)
	}

	code, message := decodeErrorBody(raw)
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return mapDownstreamError(resp.StatusCode, code, message, service)
}

func decodeErrorBody(raw []byte) (code, message string) {
	var env errorEnvelope
	if json.Unmarshal(raw, &env) != nil {
		return "", ""
	}
	var nested errorBody
	if json.Unmarshal(env.Error, &nested) == nil && (nested.Code != "" || nested.Message != "") {
		return nested.Code, nested.Message
	}
	var flat string
	if json.Unmarshal(env.Error, &flat) == nil && flat != "" {
		if env.Message != "" {
			return "", flat + ": " + env.Message
		}
		return "", flat
	}
	return "", env.Message
}

func mapDownstreamError(status int, code, message, service string) error {
	qualified := fmt.Sprintf("%s: %s", service, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(service+" resource", message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return apperrors.ServiceUnavailable(qualified)
	case status >= 500:
		return fmt.Errorf("%s server error (%d%s): %s", service, status, codeSuffix(code), message)
	default:
		if code == "" {
			code = "DOWNSTREAM_ERROR"
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualified,
			Status:  status,
		}
	}
}

func codeSuffix(code string) string {
	if code == "" {
		return ""
	}
	return "/" + code
}
