package persistence

import (
	"context"
	"sort"
	"testing"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"github.com/stretchr/testify/require"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// fakeKVS is a minimal in-memory stand-in for clientv3, enough to exercise
// EtcdAdapter's key layout without a real cluster.
type fakeKVS struct {
	data map[string]string
}

func newFakeKVS() *fakeKVS { return &fakeKVS{data: make(map[string]string)} }

func (f *fakeKVS) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.data[key] = val
	return &clientv3.PutResponse{}, nil
}

func (f *fakeKVS) Get(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	resp := &clientv3.GetResponse{}
	if clientv3.IsOptsWithPrefix(opts) {
		keys := make([]string, 0)
		for k := range f.data {
			if len(k) >= len(key) && k[:len(key)] == key {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(f.data[k])})
		}
		return resp, nil
	}

	if v, ok := f.data[key]; ok {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(key), Value: []byte(v)})
	}
	return resp, nil
}

func (f *fakeKVS) Delete(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	if clientv3.IsOptsWithPrefix(opts) {
		for k := range f.data {
			if len(k) >= len(key) && k[:len(key)] == key {
				delete(f.data, k)
			}
		}
		return &clientv3.DeleteResponse{}, nil
	}
	delete(f.data, key)
	return &clientv3.DeleteResponse{}, nil
}

func TestEtcdAdapter_ConsumerStateRoundTrips(t *testing.T) {
	kvs := newFakeKVS()
	a := NewEtcdAdapter(nil, kvs)
	require.NoError(t, a.Open())

	id := message.VirtualConsumerID("firehose:0")
	state := message.ConsumerState{
		{Topic: "T", Partition: 0}: 100,
		{Topic: "T", Partition: 1}: 200,
	}
	require.NoError(t, a.PersistConsumerState(id, state))

	got, ok, err := a.RetrieveConsumerState(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, state, got)

	require.NoError(t, a.ClearConsumerState(id))
	_, ok, err = a.RetrieveConsumerState(id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEtcdAdapter_SidelineRequestRoundTrips(t *testing.T) {
	kvs := newFakeKVS()
	a := NewEtcdAdapter(nil, kvs)
	require.NoError(t, a.Open())

	payload := SidelinePayload{
		ID:            "req-1",
		Type:          Stop,
		Negated:       true,
		StartingState: message.ConsumerState{{Topic: "T", Partition: 0}: 100},
		EndingState:   message.ConsumerState{{Topic: "T", Partition: 0}: 150},
	}
	require.NoError(t, a.PersistSidelineRequest(payload))

	got, ok, err := a.RetrieveSidelineRequest("req-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got)

	ids, err := a.ListSidelineRequests()
	require.NoError(t, err)
	require.Equal(t, []RequestID{"req-1"}, ids)

	require.NoError(t, a.ClearSidelineRequest("req-1"))
	_, ok, err = a.RetrieveSidelineRequest("req-1")
	require.NoError(t, err)
	require.False(t, ok)
}
