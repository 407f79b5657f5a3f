package retry

import "fmt"

// Kind names one of the closed set of RetryManager variants. Selecting a
// variant by name from configuration (spec's retryManagerClass) is
// redesigned here as a match over this enum rather than reflection-based
// class loading.
type Kind int

const (
	NeverRetryKind Kind = iota
	FailedTuplesFirstKind
	ExponentialBackoffKind
)

func (k Kind) String() string {
	switch k {
	case NeverRetryKind:
		return "never"
	case FailedTuplesFirstKind:
		return "failed-tuples-first"
	case ExponentialBackoffKind:
		return "exponential-backoff"
	default:
		return "unknown"
	}
}

// NewFromConfig constructs the Manager variant named by kind. Open must
// still be called by the caller with the relevant Config before use.
func NewFromConfig(kind Kind) (Manager, error) {
	switch kind {
	case NeverRetryKind:
		return &NeverRetry{}, nil
	case FailedTuplesFirstKind:
		return NewFailedTuplesFirst(), nil
	case ExponentialBackoffKind:
		return NewExponentialBackoff(), nil
	default:
		return nil, fmt.Errorf("retry: unknown manager kind %v", kind)
	}
}
