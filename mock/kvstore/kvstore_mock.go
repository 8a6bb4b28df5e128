// Copyright (c) 2019 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gogo/protobuf/proto"
	"github.com/ligato/cn-infra/datasync"
	"github.com/ligato/cn-infra/db/keyval"
	"github.com/pkg/errors"
)

// MockKVStore is an in-memory key-value store handing out brokers and
// watchers limited to a key prefix, the way the KVStore plugins do it.
// Watch notifications are delivered synchronously from Put/Delete.
type MockKVStore struct {
	sync.Mutex

	data     map[string]*protoData
	revision int64
	watches  []*watch
	failing  bool
}

type protoData struct {
	val []byte
	rev int64
}

type watch struct {
	keys     []string
	callback func(datasync.ProtoWatchResp)
	closed   bool
}

// NewMockKVStore is a constructor for MockKVStore.
func NewMockKVStore() *MockKVStore {
	return &MockKVStore{data: make(map[string]*protoData)}
}

// SetFailing makes every subsequent operation fail with ErrStoreFailure.
func (s *MockKVStore) SetFailing(failing bool) {
	s.Lock()
	defer s.Unlock()
	s.failing = failing
}

// Keys returns all keys of the store (including prefixes) in ascending order.
func (s *MockKVStore) Keys() []string {
	s.Lock()
	defer s.Unlock()
	var keys []string
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NewBroker returns broker operating on keys under the given prefix.
func (s *MockKVStore) NewBroker(keyPrefix string) keyval.ProtoBroker {
	return &mockBroker{store: s, prefix: keyPrefix}
}

// NewWatcher returns watcher operating on keys under the given prefix.
func (s *MockKVStore) NewWatcher(keyPrefix string) keyval.ProtoWatcher {
	return &mockWatcher{store: s, prefix: keyPrefix}
}

// ErrStoreFailure is returned by all operations of a failing store.
var ErrStoreFailure = errors.New("mock kvstore failure")

func (s *MockKVStore) put(key string, data proto.Message) error {
	return s.commit([]*txnOp{{key: key, data: data}})
}

func (s *MockKVStore) delete(key string) (existed bool, err error) {
	s.Lock()
	_, existed = s.data[key]
	s.Unlock()
	if err = s.commit([]*txnOp{{key: key, delete: true}}); err != nil {
		return false, err
	}
	return existed, nil
}

type txnOp struct {
	key    string
	data   proto.Message
	delete bool
}

// commit applies all operations under one lock. Watchers are notified only
// after the whole batch is visible.
func (s *MockKVStore) commit(ops []*txnOp) error {
	vals := make([][]byte, len(ops))
	for i, op := range ops {
		if op.delete {
			continue
		}
		val, err := proto.Marshal(op.data)
		if err != nil {
			return err
		}
		vals[i] = val
	}

	type notification struct {
		watches []*watch
		resp    *mockWatchResp
	}
	var notifications []notification

	s.Lock()
	if s.failing {
		s.Unlock()
		return ErrStoreFailure
	}
	for i, op := range ops {
		prev := s.data[op.key]
		if op.delete {
			if prev == nil {
				continue
			}
			delete(s.data, op.key)
			s.revision++
			notifications = append(notifications, notification{
				watches: s.matchingWatches(op.key),
				resp:    &mockWatchResp{op: datasync.Delete, key: op.key, prevVal: prev.val, rev: s.revision},
			})
			continue
		}
		s.revision++
		s.data[op.key] = &protoData{val: vals[i], rev: s.revision}
		resp := &mockWatchResp{op: datasync.Put, key: op.key, val: vals[i], rev: s.revision}
		if prev != nil {
			resp.prevVal = prev.val
		}
		notifications = append(notifications, notification{watches: s.matchingWatches(op.key), resp: resp})
	}
	s.Unlock()

	for _, n := range notifications {
		s.notify(n.watches, n.resp)
	}
	return nil
}

func (s *MockKVStore) matchingWatches(key string) (matching []*watch) {
	for _, w := range s.watches {
		if w.closed {
			continue
		}
		for _, prefix := range w.keys {
			if strings.HasPrefix(key, prefix) {
				matching = append(matching, w)
				break
			}
		}
	}
	return matching
}

func (s *MockKVStore) notify(watches []*watch, resp *mockWatchResp) {
	for _, w := range watches {
		w.callback(resp)
	}
}

//// Broker ////

type mockBroker struct {
	store  *MockKVStore
	prefix string
}

// Put stores the value under the prefixed key.
func (b *mockBroker) Put(key string, data proto.Message, opts ...datasync.PutOption) error {
	return b.store.put(b.prefix+key, data)
}

// Delete removes the prefixed key.
func (b *mockBroker) Delete(key string, opts ...datasync.DelOption) (existed bool, err error) {
	return b.store.delete(b.prefix + key)
}

// GetValue reads the value stored under the prefixed key.
func (b *mockBroker) GetValue(key string, val proto.Message) (found bool, rev int64, err error) {
	b.store.Lock()
	defer b.store.Unlock()
	if b.store.failing {
		return false, 0, ErrStoreFailure
	}
	data, found := b.store.data[b.prefix+key]
	if !found {
		return false, 0, nil
	}
	return true, data.rev, proto.Unmarshal(data.val, val)
}

// NewTxn returns a transaction committed atomically into the store.
func (b *mockBroker) NewTxn() keyval.ProtoTxn {
	return &mockTxn{broker: b}
}

// ListKeys returns keys (without the broker prefix) starting with the given prefix.
func (b *mockBroker) ListKeys(prefix string) (keyval.ProtoKeyIterator, error) {
	kvs, err := b.list(prefix)
	if err != nil {
		return nil, err
	}
	return &mockIt{kvs: kvs}, nil
}

// ListValues returns key-value pairs with keys starting with the given prefix.
func (b *mockBroker) ListValues(prefix string) (keyval.ProtoKeyValIterator, error) {
	kvs, err := b.list(prefix)
	if err != nil {
		return nil, err
	}
	return &mockValIt{kvs: kvs}, nil
}

func (b *mockBroker) list(prefix string) (kvs []*mockKv, err error) {
	b.store.Lock()
	defer b.store.Unlock()
	if b.store.failing {
		return nil, ErrStoreFailure
	}
	for key, data := range b.store.data {
		if strings.HasPrefix(key, b.prefix+prefix) {
			kvs = append(kvs, &mockKv{key: strings.TrimPrefix(key, b.prefix), val: data.val, rev: data.rev})
		}
	}
	sort.Slice(kvs, func(i, j int) bool {
		return kvs[i].key < kvs[j].key
	})
	return kvs, nil
}

type mockTxn struct {
	broker *mockBroker
	ops    []*txnOp
}

// Put adds put operation into the transaction.
func (t *mockTxn) Put(key string, data proto.Message) keyval.ProtoTxn {
	t.ops = append(t.ops, &txnOp{key: t.broker.prefix + key, data: data})
	return t
}

// Delete adds delete operation into the transaction.
func (t *mockTxn) Delete(key string) keyval.ProtoTxn {
	t.ops = append(t.ops, &txnOp{key: t.broker.prefix + key, delete: true})
	return t
}

// Commit applies all operations of the transaction or none of them.
func (t *mockTxn) Commit(ctx context.Context) error {
	return t.broker.store.commit(t.ops)
}

type mockIt struct {
	kvs   []*mockKv
	index int
}

// GetNext returns the next key for ProtoKeyIterator.
func (mi *mockIt) GetNext() (key string, rev int64, stop bool) {
	if mi.index >= len(mi.kvs) {
		return "", 0, true
	}
	kv := mi.kvs[mi.index]
	mi.index++
	return kv.key, kv.rev, false
}

// Close does nothing.
func (mi *mockIt) Close() error {
	return nil
}

type mockValIt struct {
	kvs   []*mockKv
	index int
}

// GetNext returns the next key-value pair for ProtoKeyValIterator.
func (mi *mockValIt) GetNext() (kv keyval.ProtoKeyVal, stop bool) {
	if mi.index >= len(mi.kvs) {
		return nil, true
	}
	kv = mi.kvs[mi.index]
	mi.index++
	return kv, false
}

// Close does nothing.
func (mi *mockValIt) Close() error {
	return nil
}

type mockKv struct {
	key string
	val []byte
	rev int64
}

func (mk *mockKv) GetValue(val proto.Message) error {
	return proto.Unmarshal(mk.val, val)
}

func (mk *mockKv) GetPrevValue(val proto.Message) (exists bool, err error) {
	return false, nil
}

func (mk *mockKv) GetKey() string {
	return mk.key
}

func (mk *mockKv) GetRevision() int64 {
	return mk.rev
}

//// Watcher ////

type mockWatcher struct {
	store  *MockKVStore
	prefix string
}

// Watch registers callback for changes of keys under the given prefixes.
// The watch is cancelled by closing closeChan.
func (w *mockWatcher) Watch(callback func(datasync.ProtoWatchResp), closeChan chan string, keys ...string) error {
	w.store.Lock()
	defer w.store.Unlock()
	if w.store.failing {
		return ErrStoreFailure
	}
	reg := &watch{
		callback: func(resp datasync.ProtoWatchResp) {
			r := *resp.(*mockWatchResp)
			r.key = strings.TrimPrefix(r.key, w.prefix)
			callback(&r)
		},
	}
	for _, key := range keys {
		reg.keys = append(reg.keys, w.prefix+key)
	}
	w.store.watches = append(w.store.watches, reg)
	go func() {
		<-closeChan
		w.store.Lock()
		reg.closed = true
		w.store.Unlock()
	}()
	return nil
}

type mockWatchResp struct {
	op      datasync.Op
	key     string
	val     []byte
	prevVal []byte
	rev     int64
}

func (r *mockWatchResp) GetChangeType() datasync.Op {
	return r.op
}

func (r *mockWatchResp) GetKey() string {
	return r.key
}

func (r *mockWatchResp) GetValue(val proto.Message) error {
	return proto.Unmarshal(r.val, val)
}

func (r *mockWatchResp) GetPrevValue(val proto.Message) (exists bool, err error) {
	if r.prevVal == nil {
		return false, nil
	}
	return true, proto.Unmarshal(r.prevVal, val)
}

func (r *mockWatchResp) GetRevision() int64 {
	return r.rev
}
