package logsource

import "fmt"

// deserializers is the process-wide registry of named Deserializer
// constructors, consulted when a Deserializer is selected by name from
// configuration (the spec's deserializerClass key) rather than built by
// the caller directly.
var deserializers = make(map[string]func() Deserializer)

// RegisterDeserializer installs ctor under name so NewDeserializer can
// later build a Deserializer by that name.
func RegisterDeserializer(name string, ctor func() Deserializer) {
	deserializers[name] = ctor
}

// NewDeserializer builds the Deserializer registered under name.
func NewDeserializer(name string) (Deserializer, error) {
	ctor, ok := deserializers[name]
	if !ok {
		return nil, fmt.Errorf("logsource: no deserializer registered under name %q", name)
	}
	return ctor(), nil
}

func init() {
	RegisterDeserializer("json-array", func() Deserializer {
		return DeserializerFunc(jsonArrayDeserialize)
	})
}
