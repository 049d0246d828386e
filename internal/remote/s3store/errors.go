package s3store

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/aws/smithy-go"

	"github.com/openmined/docsync/internal/remote"
)

// statusCoder is implemented by the SDK's HTTP response errors.
type statusCoder interface {
	HTTPStatusCode() int
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var sc statusCoder
	return errors.As(err, &sc) && sc.HTTPStatusCode() == http.StatusNotFound
}

func classify(err error, op, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return remote.NewError(remote.KindCancelled, op, key, err)
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() > 0 {
		switch code := sc.HTTPStatusCode(); {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
			return remote.Transient(op, key, err)
		case code >= 400:
			return remote.Client(op, key, err)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return remote.Transient(op, key, err)
		}
		if apiErr.ErrorFault() == smithy.FaultClient {
			return remote.Client(op, key, err)
		}
		return remote.Transient(op, key, err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return remote.Connection(op, key, err)
	}
	return remote.Transient(op, key, err)
}
