package catalog

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned when the catalog has no entity for a key
var ErrNotFound = errors.New("entity not found")

// APIError is a non-2xx response from the catalog service
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// newAPIError decodes both the Atlas ({errorCode, errorMessage}) and the
// data-plane ({error: {code, message}}) error bodies
func newAPIError(method, path string, status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Method: method, Path: path}
	if gjson.ValidBytes(body) {
		e.ErrorCode = gjson.GetBytes(body, "errorCode").String()
		e.Message = gjson.GetBytes(body, "errorMessage").String()
		if e.ErrorCode == "" {
			e.ErrorCode = gjson.GetBytes(body, "error.code").String()
			e.Message = gjson.GetBytes(body, "error.message").String()
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

// IsAlreadyExists reports whether err is a conflict caused by an existing
// type, relationship or entity
func IsAlreadyExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 409 || strings.HasPrefix(apiErr.ErrorCode, "ATLAS-409-")
}

// IsNotFound reports whether err means the requested object does not exist
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 404 || strings.HasPrefix(apiErr.ErrorCode, "ATLAS-404-")
}

// IsRetryable reports whether a request that failed with err may succeed
// when repeated: throttling, server errors, timeouts and dropped
// connections. Token endpoint rejections are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}

	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return tokenErr.Response != nil && retryableStatus(tokenErr.Response.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
