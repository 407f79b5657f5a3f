package filter

import (
	"encoding/json"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// negated wraps a Step and inverts its Matches result. It is how the
// sideline controller builds a replay filter chain that emits exactly the
// messages the original request would have dropped.
type negated struct {
	inner Step
}

func (n *negated) Matches(msg *message.Message) bool {
	return !n.inner.Matches(msg)
}

func (n *negated) Equal(other Step) bool {
	o, ok := other.(*negated)
	if !ok {
		return false
	}
	return n.inner.Equal(o.inner)
}

// Record implements Recordable, recursively recording the wrapped step so
// a negated chain can round-trip through persistence exactly once.
func (n *negated) Record() StepRecord {
	inner, ok := RecordOf(n.inner)
	if !ok {
		return StepRecord{Kind: negatedKind}
	}
	params, _ := json.Marshal(inner)
	return StepRecord{Kind: negatedKind, Params: params}
}

const negatedKind = "negated"

func init() {
	Steps.Register(negatedKind, func(params json.RawMessage) (Step, error) {
		var inner StepRecord
		if err := json.Unmarshal(params, &inner); err != nil {
			return nil, err
		}
		s, err := Rebuild(inner)
		if err != nil {
			return nil, err
		}
		return &negated{inner: s}, nil
	})
}

// Negate returns a new step slice whose predicates are the logical
// inversion of steps. Negating twice does not collapse back to the
// original step values (Negate(Negate(s)) wraps s in two negated
// decorators rather than unwrapping it) — callers must negate exactly
// once, which is why sideline.Controller stores an explicit Negated flag
// instead of re-deriving it at recovery time.
func Negate(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = &negated{inner: s}
	}
	return out
}
