package persistence

import "fmt"

// Kind names one of the closed set of Adapter variants, matching the
// spec's persistenceAdapterClass configuration key.
type Kind int

const (
	MemoryKind Kind = iota
	EtcdKind
)

func (k Kind) String() string {
	switch k {
	case MemoryKind:
		return "memory"
	case EtcdKind:
		return "etcd"
	default:
		return "unknown"
	}
}

// NewFromConfig constructs the Adapter variant named by kind. endpoints is
// consulted only for EtcdKind (persistence.zkServers in spec vocabulary,
// etcd endpoints here). Open must still be called by the caller before
// use.
func NewFromConfig(kind Kind, endpoints []string) (Adapter, error) {
	switch kind {
	case MemoryKind:
		return NewMemory(), nil
	case EtcdKind:
		return NewEtcdAdapter(endpoints, nil), nil
	default:
		return nil, fmt.Errorf("persistence: unknown adapter kind %v", kind)
	}
}
