package filter

import (
	"encoding/json"

	"github.com/stanlemon/storm-dynamic-spout/plugin"
)

// StepRecord is the persisted form of a Step: an opaque kind name plus
// opaque parameters, matching the spec's "filters are opaque predicates"
// non-goal — this package never inspects what a step actually tests, only
// that it can be rebuilt from its recorded form.
type StepRecord struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Steps is the process-wide registry of predicate kinds, populated by
// callers at startup and consulted when rehydrating a persisted
// StepRecord back into a live Step.
var Steps = plugin.NewRegistry[Step]()

// RecordOf serializes a live step to its persisted form. Steps that don't
// implement Recordable cannot be persisted; sideline requests built from
// such steps can be started but not durably recovered across restarts.
func RecordOf(s Step) (StepRecord, bool) {
	r, ok := s.(Recordable)
	if !ok {
		return StepRecord{}, false
	}
	return r.Record(), true
}

// Recordable is implemented by Step values that know how to serialize
// themselves for persistence.
type Recordable interface {
	Record() StepRecord
}

// Rebuild reconstructs a live Step from its persisted record using the
// process-wide Steps registry.
func Rebuild(rec StepRecord) (Step, error) {
	return Steps.Build(rec.Kind, rec.Params)
}

// RebuildAll rebuilds an ordered slice of steps, failing on the first
// record whose kind isn't registered.
func RebuildAll(recs []StepRecord) ([]Step, error) {
	out := make([]Step, len(recs))
	for i, r := range recs {
		s, err := Rebuild(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// RecordAll serializes every step in steps, returning false if any step is
// not Recordable.
func RecordAll(steps []Step) ([]StepRecord, bool) {
	out := make([]StepRecord, len(steps))
	for i, s := range steps {
		r, ok := RecordOf(s)
		if !ok {
			return nil, false
		}
		out[i] = r
	}
	return out, true
}
