package dynect

import "fmt"

// TransportError folds all connection-level failures (dial, TLS, timeout,
// protocol violation) into one class, distinct from application failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports a login response that did not yield a session token.
type AuthError struct {
	StatusCode int
	Reason     string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// BadResponseError reports a report request answered with a status that is
// neither success nor redirect.
type BadResponseError struct {
	StatusCode int
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("unexpected status %d from metering API", e.StatusCode)
}

// RetryExhaustedError reports a redirect chain that never reached a final
// response within the attempt budget.
type RetryExhaustedError struct {
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("report not ready after %d redirect attempts", e.Attempts)
}
