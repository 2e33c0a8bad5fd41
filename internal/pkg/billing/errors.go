package billing

import (
	"errors"
	"fmt"
)

// GatewayConfigError means gateway credentials or endpoints are missing.
// Fatal to the calling operation; never retried.
type GatewayConfigError struct {
	Missing string
}

func (e *GatewayConfigError) Error() string {
	return fmt.Sprintf("payment gateway is not configured: %s missing", e.Missing)
}

// GatewayRequestError is any network failure, timeout or non-2xx response
// from the payment gateway, carrying the gateway's own message when one
// was returned.
type GatewayRequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway request failed: %v", e.Err)
	}
	return fmt.Sprintf("gateway request failed: status=%d message=%s", e.StatusCode, e.Message)
}

func (e *GatewayRequestError) Unwrap() error {
	return e.Err
}

// ValidationError is a precondition violation surfaced to the caller with
// a human-readable message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError is a lookup miss on a plan, subscription or payment,
// distinct from "ambiguous/pending" so callers can render a clear
// "we don't know this order" message.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// IsValidation reports whether err is a precondition violation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
