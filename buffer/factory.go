package buffer

import "fmt"

// Kind names one of the closed set of Buffer variants, matching the
// spec's messageBufferClass configuration key.
type Kind int

const (
	FIFOKind Kind = iota
	RoundRobinKind
)

func (k Kind) String() string {
	switch k {
	case FIFOKind:
		return "FIFO"
	case RoundRobinKind:
		return "RoundRobin"
	default:
		return "unknown"
	}
}

// NewFromConfig constructs the Buffer variant named by kind. Open must
// still be called by the caller before use.
func NewFromConfig(kind Kind) (Buffer, error) {
	switch kind {
	case FIFOKind:
		return NewFIFO(), nil
	case RoundRobinKind:
		return NewRoundRobin(), nil
	default:
		return nil, fmt.Errorf("buffer: unknown buffer kind %v", kind)
	}
}
