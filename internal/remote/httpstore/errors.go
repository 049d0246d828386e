package httpstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/imroc/req/v3"

	"github.com/openmined/docsync/internal/remote"
)

// APIError is the error body returned by the document API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// classify turns a transport error or an error status into a *remote.Error.
func classify(resp *req.Response, requestErr error, op, key string) error {
	if requestErr != nil {
		switch {
		case errors.Is(requestErr, context.Canceled):
			return remote.NewError(remote.KindCancelled, op, key, requestErr)
		case errors.Is(requestErr, context.DeadlineExceeded):
			return remote.Transient(op, key, requestErr)
		case isConnectionError(requestErr):
			return remote.Connection(op, key, requestErr)
		default:
			return remote.Transient(op, key, fmt.Errorf("http request error: %w", requestErr))
		}
	}

	if resp == nil || !resp.IsErrorState() {
		return nil
	}

	var cause error
	if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
		cause = fmt.Errorf("%s: %w", resp.Status, apiErr)
	} else {
		cause = fmt.Errorf("unexpected status %s", resp.Status)
	}

	switch code := resp.StatusCode; {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return remote.Transient(op, key, cause)
	default:
		return remote.Client(op, key, cause)
	}
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
