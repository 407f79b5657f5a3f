// Package errs defines the error kinds used across the engine, per the
// error handling design: config errors are fatal at open, invalid
// arguments and illegal states are programmer errors, transient errors are
// retried by the caller, and abandoned failures are treated as acks for
// commit purposes.
package errs

import "fmt"

// Kind classifies an error for callers that need to branch on it (metrics,
// logging, retry policy) without string matching.
type Kind int

const (
	// KindConfigMissing means required configuration was absent when
	// constructing a component. Fatal at open.
	KindConfigMissing Kind = iota
	// KindInvalidArgument means a call received a value it cannot act on
	// (e.g. a MessageId of the wrong shape). Fatal to that call only.
	KindInvalidArgument
	// KindIllegalState means a component was used in a way that violates
	// its lifecycle (double open, offset outside the ending state).
	KindIllegalState
	// KindTransient means a collaborator (log client, deserializer,
	// persistence adapter) failed in a way that's worth retrying.
	KindTransient
	// KindAbandoned means a failed message will not be retried further
	// and is being treated as acked for commit purposes.
	KindAbandoned
)

func (k Kind) String() string {
	switch k {
	case KindConfigMissing:
		return "config-missing"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindIllegalState:
		return "illegal-state"
	case KindTransient:
		return "transient"
	case KindAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind for classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, errs.ConfigMissing("", "")) style checks via the
// constructors below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// ConfigMissing builds a KindConfigMissing error naming the missing key.
func ConfigMissing(op, key string) error {
	return &Error{Kind: KindConfigMissing, Op: op, Err: fmt.Errorf("missing required configuration %q", key)}
}

// InvalidArgument builds a KindInvalidArgument error.
func InvalidArgument(op string, err error) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Err: err}
}

// IllegalState builds a KindIllegalState error.
func IllegalState(op string, err error) error {
	return &Error{Kind: KindIllegalState, Op: op, Err: err}
}

// Transient builds a KindTransient error wrapping a collaborator failure.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Abandoned builds a KindAbandoned marker error; it carries no failure, it
// just records that a message was given up on rather than acked normally.
func Abandoned(op string) error {
	return &Error{Kind: KindAbandoned, Op: op}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
