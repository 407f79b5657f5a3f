package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

func init() {
	RegisterPredicate("test.always", func(*message.Message, json.RawMessage) bool { return true })
	RegisterPredicate("test.never", func(*message.Message, json.RawMessage) bool { return false })
}

func newTestMessage() *message.Message {
	return message.New(message.ID{Topic: "MyTopic", Partition: 3, Offset: 434323}, nil)
}

func TestChain_TestDropsWhenAnyStepMatches(t *testing.T) {
	c := New()
	always, err := NewPredicate("test.always", nil)
	require.NoError(t, err)
	c.AddSteps("r1", []Step{always})

	require.True(t, c.Test(newTestMessage()))
}

func TestChain_TestPassesWhenNoStepMatches(t *testing.T) {
	c := New()
	never, err := NewPredicate("test.never", nil)
	require.NoError(t, err)
	c.AddSteps("r1", []Step{never})

	require.False(t, c.Test(newTestMessage()))
}

func TestChain_FindLabelByStepValue(t *testing.T) {
	c := New()
	step, err := NewPredicate("test.never", map[string]int{"x": 1})
	require.NoError(t, err)
	c.AddSteps("r1", []Step{step})

	same, err := NewPredicate("test.never", map[string]int{"x": 1})
	require.NoError(t, err)

	label, ok := c.FindLabel([]Step{same})
	require.True(t, ok)
	require.Equal(t, Label("r1"), label)
}

func TestChain_FindLabelMissesOnDifferentParams(t *testing.T) {
	c := New()
	step, err := NewPredicate("test.never", map[string]int{"x": 1})
	require.NoError(t, err)
	c.AddSteps("r1", []Step{step})

	other, err := NewPredicate("test.never", map[string]int{"x": 2})
	require.NoError(t, err)

	_, ok := c.FindLabel([]Step{other})
	require.False(t, ok)
}

func TestChain_RemoveSteps(t *testing.T) {
	c := New()
	always, _ := NewPredicate("test.always", nil)
	c.AddSteps("r1", []Step{always})

	removed := c.RemoveSteps("r1")
	require.Len(t, removed, 1)
	require.False(t, c.Test(newTestMessage()))

	require.Nil(t, c.RemoveSteps("r1"))
}

func TestChain_InsertionOrderIsStable(t *testing.T) {
	c := New()
	a, _ := NewPredicate("test.never", 1)
	b, _ := NewPredicate("test.never", 2)
	c.AddSteps("first", []Step{a})
	c.AddSteps("second", []Step{b})

	steps1, ok := c.Steps("first")
	require.True(t, ok)
	require.Len(t, steps1, 1)

	label, ok := c.FindLabel([]Step{b})
	require.True(t, ok)
	require.Equal(t, Label("second"), label)
}

func TestNegate_InvertsMatchResult(t *testing.T) {
	always, _ := NewPredicate("test.always", nil)
	never, _ := NewPredicate("test.never", nil)

	negated := Negate([]Step{always, never})
	require.False(t, negated[0].Matches(newTestMessage()))
	require.True(t, negated[1].Matches(newTestMessage()))
}

func TestNegate_TwiceDoesNotCancelOut(t *testing.T) {
	always, _ := NewPredicate("test.always", nil)
	once := Negate([]Step{always})
	twice := Negate(once)

	// Double negation does not collapse back to the original predicate:
	// it wraps a second decorator around the first, so callers negate
	// exactly once and record whether they did. Logically the doubly
	// negated step matches whatever the original matches.
	require.False(t, once[0].Matches(newTestMessage()))
	require.IsType(t, &negated{}, twice[0])
	require.True(t, twice[0].Matches(newTestMessage()))
}

func TestStepRecord_RoundTripsThroughRegistry(t *testing.T) {
	step, err := NewPredicate("test.never", map[string]int{"x": 7})
	require.NoError(t, err)

	rec, ok := RecordOf(step)
	require.True(t, ok)

	rebuilt, err := Rebuild(rec)
	require.NoError(t, err)
	require.True(t, step.Equal(rebuilt))
}

func TestStepRecord_NegatedRoundTrips(t *testing.T) {
	step, err := NewPredicate("test.always", nil)
	require.NoError(t, err)
	negated := Negate([]Step{step})[0]

	rec, ok := RecordOf(negated)
	require.True(t, ok)

	rebuilt, err := Rebuild(rec)
	require.NoError(t, err)
	require.False(t, rebuilt.Matches(newTestMessage()))
}
