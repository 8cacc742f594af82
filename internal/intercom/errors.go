package intercom

import (
	"errors"
	"fmt"
)

// UpstreamError reports a failed call to the provider. Status is zero when
// no HTTP response was received (network error, timeout, cancellation).
type UpstreamError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("intercom %s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("intercom %s %s: status %d: %v", e.Method, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("intercom %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AsUpstream reports whether err (or any error in its chain) is an
// UpstreamError and returns it.
func AsUpstream(err error) (*UpstreamError, bool) {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr, true
	}
	return nil, false
}
