package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/stanlemon/storm-dynamic-spout/errs"
	"github.com/stanlemon/storm-dynamic-spout/message"
)

const (
	consumersPrefix = "/consumers/"
	sidelinePrefix  = "/sideline/"
)

// KVS is the thin slice of clientv3 the adapter needs, narrowed for test
// substitution the way the teacher's consumer package narrows its own
// etcd client dependency.
type KVS interface {
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
}

// EtcdAdapter is the concrete coordination-service Adapter, storing
// consumer commit state and sideline payloads under the persisted layout
// described in the external interfaces design.
type EtcdAdapter struct {
	endpoints   []string
	dialTimeout time.Duration
	requestTimeout time.Duration
	kvs         KVS
	client      *clientv3.Client
}

// NewEtcdAdapter returns an adapter dialing endpoints on Open. Passing a
// pre-built KVS (e.g. an embedded server's client, or a fake in tests)
// skips dialing entirely.
func NewEtcdAdapter(endpoints []string, kvs KVS) *EtcdAdapter {
	return &EtcdAdapter{
		endpoints:      endpoints,
		dialTimeout:    5 * time.Second,
		requestTimeout: 5 * time.Second,
		kvs:            kvs,
	}
}

func (a *EtcdAdapter) Open() error {
	if a.kvs != nil {
		return nil
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   a.endpoints,
		DialTimeout: a.dialTimeout,
	})
	if err != nil {
		return errs.Transient("persistence.EtcdAdapter.Open", err)
	}
	a.client = cli
	a.kvs = cli
	return nil
}

func (a *EtcdAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *EtcdAdapter) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.requestTimeout)
}

func consumerPartitionKey(id message.VirtualConsumerID, tp message.TopicPartition) string {
	return fmt.Sprintf("%s%s/%s", consumersPrefix, id, tp.String())
}

func (a *EtcdAdapter) PersistConsumerState(id message.VirtualConsumerID, state message.ConsumerState) error {
	ctx, cancel := a.ctx()
	defer cancel()
	for tp, offset := range state {
		key := consumerPartitionKey(id, tp)
		if _, err := a.kvs.Put(ctx, key, strconv.FormatInt(offset, 10)); err != nil {
			return errs.Transient("persistence.EtcdAdapter.PersistConsumerState", err)
		}
	}
	return nil
}

func (a *EtcdAdapter) RetrieveConsumerState(id message.VirtualConsumerID) (message.ConsumerState, bool, error) {
	ctx, cancel := a.ctx()
	defer cancel()
	prefix := fmt.Sprintf("%s%s/", consumersPrefix, id)
	resp, err := a.kvs.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, false, errs.Transient("persistence.EtcdAdapter.RetrieveConsumerState", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}

	state := make(message.ConsumerState, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		partitionKey := strings.TrimPrefix(key, prefix)
		i := strings.LastIndex(partitionKey, "-")
		if i < 0 {
			continue
		}
		partitionNum, err := strconv.ParseInt(partitionKey[i+1:], 10, 32)
		if err != nil {
			continue
		}
		offset, err := strconv.ParseInt(string(kv.Value), 10, 64)
		if err != nil {
			continue
		}
		tp := message.TopicPartition{Topic: partitionKey[:i], Partition: int32(partitionNum)}
		state[tp] = offset
	}
	return state, true, nil
}

func (a *EtcdAdapter) ClearConsumerState(id message.VirtualConsumerID) error {
	ctx, cancel := a.ctx()
	defer cancel()
	prefix := fmt.Sprintf("%s%s/", consumersPrefix, id)
	if _, err := a.kvs.Delete(ctx, prefix, clientv3.WithPrefix()); err != nil {
		return errs.Transient("persistence.EtcdAdapter.ClearConsumerState", err)
	}
	return nil
}

func (a *EtcdAdapter) PersistSidelineRequest(payload SidelinePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.InvalidArgument("persistence.EtcdAdapter.PersistSidelineRequest", err)
	}
	ctx, cancel := a.ctx()
	defer cancel()
	key := sidelinePrefix + string(payload.ID)
	if _, err := a.kvs.Put(ctx, key, string(body)); err != nil {
		return errs.Transient("persistence.EtcdAdapter.PersistSidelineRequest", err)
	}
	return nil
}

func (a *EtcdAdapter) RetrieveSidelineRequest(id RequestID) (SidelinePayload, bool, error) {
	ctx, cancel := a.ctx()
	defer cancel()
	resp, err := a.kvs.Get(ctx, sidelinePrefix+string(id))
	if err != nil {
		return SidelinePayload{}, false, errs.Transient("persistence.EtcdAdapter.RetrieveSidelineRequest", err)
	}
	if len(resp.Kvs) == 0 {
		return SidelinePayload{}, false, nil
	}
	var payload SidelinePayload
	if err := json.Unmarshal(resp.Kvs[0].Value, &payload); err != nil {
		return SidelinePayload{}, false, errs.Transient("persistence.EtcdAdapter.RetrieveSidelineRequest", err)
	}
	return payload, true, nil
}

func (a *EtcdAdapter) ListSidelineRequests() ([]RequestID, error) {
	ctx, cancel := a.ctx()
	defer cancel()
	resp, err := a.kvs.Get(ctx, sidelinePrefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, errs.Transient("persistence.EtcdAdapter.ListSidelineRequests", err)
	}
	ids := make([]RequestID, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ids = append(ids, RequestID(strings.TrimPrefix(string(kv.Key), sidelinePrefix)))
	}
	return ids, nil
}

func (a *EtcdAdapter) ClearSidelineRequest(id RequestID) error {
	ctx, cancel := a.ctx()
	defer cancel()
	if _, err := a.kvs.Delete(ctx, sidelinePrefix+string(id)); err != nil {
		return errs.Transient("persistence.EtcdAdapter.ClearSidelineRequest", err)
	}
	return nil
}
