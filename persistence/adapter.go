// Package persistence defines the coordination-service backed store for
// consumer commit state and sideline request metadata, and one concrete
// binding to etcd.
package persistence

import (
	"github.com/stanlemon/storm-dynamic-spout/filter"
	"github.com/stanlemon/storm-dynamic-spout/message"
)

// RequestID identifies a sideline request across its START/STOP lifecycle
// and survives process restarts.
type RequestID string

// PayloadType distinguishes a live sideline (START, still diverting the
// firehose) from a stopped one (STOP, now driving a replay consumer).
type PayloadType int

const (
	Start PayloadType = iota
	Stop
)

func (t PayloadType) String() string {
	if t == Stop {
		return "STOP"
	}
	return "START"
}

// SidelinePayload is the durable record of one sideline request.
type SidelinePayload struct {
	ID    RequestID
	Type  PayloadType
	Steps []filter.StepRecord

	// Negated records whether Steps have already been logically inverted
	// for replay. Set exactly once, at STOP time; RecoverOnOpen consults
	// it rather than re-deriving negation, so recovering twice never
	// double- or zero-negates the same request.
	Negated bool

	StartingState message.ConsumerState
	// EndingState is nil for a START payload; set at STOP time.
	EndingState message.ConsumerState
}

// Adapter is the coordination-service persistence boundary. Every method
// may fail transiently; callers wrap failures as errs.Transient.
type Adapter interface {
	Open() error
	Close() error

	PersistConsumerState(id message.VirtualConsumerID, state message.ConsumerState) error
	RetrieveConsumerState(id message.VirtualConsumerID) (message.ConsumerState, bool, error)
	ClearConsumerState(id message.VirtualConsumerID) error

	PersistSidelineRequest(payload SidelinePayload) error
	RetrieveSidelineRequest(id RequestID) (SidelinePayload, bool, error)
	ListSidelineRequests() ([]RequestID, error)
	// ClearSidelineRequest removes the persisted payload for id in its
	// entirety, across every partition the request's StartingState/
	// EndingState cover. It takes no partition argument: unlike
	// PersistConsumerState (scoped to one VirtualConsumerID, which is
	// itself partition-scoped), a SidelinePayload is the unit of a single
	// sideline request spanning all of a replay consumer's partitions at
	// once, so it is cleared as a whole when that replay completes. This
	// is a deliberate departure from a literal per-partition clear
	// operation; see DESIGN.md's Open Question resolutions.
	// It does not touch consumer state; callers clear the replay
	// consumer's state separately via ClearConsumerState if needed.
	ClearSidelineRequest(id RequestID) error
}
