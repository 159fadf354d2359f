// internal/clients/errors.go
package clients

import (
	"errors"
	"fmt"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// KindNotFound means the remote answered 404.
	KindNotFound Kind = iota + 1
	// KindRejected means the remote answered another 4xx or 5xx.
	KindRejected
	// KindUnavailable means no answer: timeout, refused connection or open circuit.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	case KindUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// RemoteError is returned by every Service call that did not succeed.
type RemoteError struct {
	Service string
	Kind    Kind
	// Status is the HTTP status for NotFound and Rejected, 0 otherwise.
	Status int
	// Message is the remote's {"message"} when it sent one.
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch e.Kind {
	case KindUnavailable:
		if e.Err != nil {
			return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
		}
		return e.Service + " unavailable"
	default:
		if e.Message != "" {
			return fmt.Sprintf("%s responded %d: %s", e.Service, e.Status, e.Message)
		}
		return fmt.Sprintf("%s responded %d", e.Service, e.Status)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Healthy reports whether the remote answered, i.e. the failure is a client
// error rather than a sign the remote is down.
func (e *RemoteError) Healthy() bool {
	return e.Kind != KindUnavailable && e.Status >= 400 && e.Status < 500
}

func kindOf(err error) (Kind, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsRejected reports whether the remote answered with a non-404 error status.
func IsRejected(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRejected
}

// IsUnavailable reports whether the remote could not be reached.
func IsUnavailable(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnavailable
}
