package logsource

import "encoding/json"

// jsonArrayDeserialize treats value as a JSON array and returns its
// elements as the message's field sequence. A malformed payload returns a
// nil slice with no error, which VirtualConsumer treats identically to an
// explicit error: unparseable, auto-commit, no emit.
func jsonArrayDeserialize(value []byte) ([]any, error) {
	var fields []any
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, nil
	}
	return fields, nil
}
