package filter

import (
	"encoding/json"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// predicateFn is the shape every registered predicate name maps to. A
// Predicate step records only its name and (optional) parameters, never
// the function itself, so it can be rehydrated after a restart as long as
// the same name is registered again by whatever wired the process.
type predicateFn func(msg *message.Message, params json.RawMessage) bool

var predicateFns = make(map[string]predicateFn)

// RegisterPredicate installs fn under name so Predicate steps referencing
// that name can be evaluated and rehydrated from persistence.
func RegisterPredicate(name string, fn func(msg *message.Message, params json.RawMessage) bool) {
	predicateFns[name] = fn
}

// Predicate is a named, opaque Step: the engine never inspects what it
// tests, only its name and parameters, matching the "filters are opaque
// predicates" non-goal. Two Predicates are Equal when their name and raw
// parameter bytes match, which is what Chain.FindLabel needs to locate a
// sideline request's entry by value.
type Predicate struct {
	Name   string
	Params json.RawMessage
}

// NewPredicate builds a step around a name registered with
// RegisterPredicate, and JSON-marshaled parameters.
func NewPredicate(name string, params any) (*Predicate, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Predicate{Name: name, Params: raw}, nil
}

func (p *Predicate) Matches(msg *message.Message) bool {
	fn, ok := predicateFns[p.Name]
	if !ok {
		return false
	}
	return fn(msg, p.Params)
}

func (p *Predicate) Equal(other Step) bool {
	o, ok := other.(*Predicate)
	if !ok {
		return false
	}
	return p.Name == o.Name && string(p.Params) == string(o.Params)
}

func (p *Predicate) Record() StepRecord {
	params, _ := json.Marshal(p)
	return StepRecord{Kind: predicateKind, Params: params}
}

const predicateKind = "predicate"

func init() {
	Steps.Register(predicateKind, func(params json.RawMessage) (Step, error) {
		var p Predicate
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if string(p.Params) == "null" {
			p.Params = nil
		}
		return &p, nil
	})
}
