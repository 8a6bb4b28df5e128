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

package statedb

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/datasync"
	"github.com/ligato/cn-infra/db/keyval"
	"github.com/ligato/cn-infra/logging"
)

// KeyPrefix is the prefix under which all tables of the given database are
// stored in a key-value data store.
func KeyPrefix(dbName string) string {
	return "orchagent/" + dbName + "/"
}

// BrokerDB implements DB on top of a key-value data store plugin (e.g. etcd).
// Every value is stored under key "orchagent/<db>/<table>/<key>".
// Batches are committed as a single data store transaction.
type BrokerDB struct {
	name    string
	prefix  string
	log     logging.Logger
	broker  keyval.ProtoBroker
	watcher keyval.ProtoWatcher
}

// KVFactory creates brokers and watchers scoped to a key prefix. Implemented
// by key-value data store plugins as well as by kvproto.ProtoWrapper.
type KVFactory interface {
	NewBroker(keyPrefix string) keyval.ProtoBroker
	NewWatcher(keyPrefix string) keyval.ProtoWatcher
}

// NewBrokerDB is a constructor for BrokerDB.
func NewBrokerDB(name string, kvFactory KVFactory, log logging.Logger) *BrokerDB {
	prefix := KeyPrefix(name)
	return &BrokerDB{
		name:    name,
		prefix:  prefix,
		log:     log,
		broker:  kvFactory.NewBroker(prefix),
		watcher: kvFactory.NewWatcher(prefix),
	}
}

// Name returns the database name.
func (db *BrokerDB) Name() string {
	return db.name
}

// Get returns value stored under the key.
func (db *BrokerDB) Get(table, key string) (*FieldValues, bool, error) {
	values := &FieldValues{}
	found, _, err := db.broker.GetValue(db.dbKey(table, key), values)
	if err != nil {
		return nil, false, errors.Wrapf(ErrUnavailable, "%s: get %s|%s: %v", db.name, table, key, err)
	}
	if !found {
		return nil, false, nil
	}
	return values, true, nil
}

// Keys returns all keys of the table in ascending order.
func (db *BrokerDB) Keys(table string) ([]string, error) {
	tablePrefix := table + "/"
	it, err := db.broker.ListKeys(tablePrefix)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: list keys of %s: %v", db.name, table, err)
	}
	var keys []string
	for {
		key, _, stop := it.GetNext()
		if stop {
			break
		}
		keys = append(keys, strings.TrimPrefix(db.trimPrefix(key), tablePrefix))
	}
	it.Close()
	sort.Strings(keys)
	return keys, nil
}

// Tables returns names of all non-empty tables in ascending order.
func (db *BrokerDB) Tables() ([]string, error) {
	it, err := db.broker.ListKeys("")
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: list tables: %v", db.name, err)
	}
	tables := make(map[string]struct{})
	for {
		key, _, stop := it.GetNext()
		if stop {
			break
		}
		if table, _, ok := db.parseKey(key); ok {
			tables[table] = struct{}{}
		}
	}
	it.Close()
	var names []string
	for table := range tables {
		names = append(names, table)
	}
	sort.Strings(names)
	return names, nil
}

// Set creates or replaces the value stored under the key.
func (db *BrokerDB) Set(table, key string, values *FieldValues) error {
	if values == nil {
		return errors.Errorf("%s: set %s|%s without value", db.name, table, key)
	}
	if err := db.broker.Put(db.dbKey(table, key), values); err != nil {
		return errors.Wrapf(ErrUnavailable, "%s: set %s|%s: %v", db.name, table, key, err)
	}
	return nil
}

// Delete removes the key.
func (db *BrokerDB) Delete(table, key string) error {
	if _, err := db.broker.Delete(db.dbKey(table, key)); err != nil {
		return errors.Wrapf(ErrUnavailable, "%s: delete %s|%s: %v", db.name, table, key, err)
	}
	return nil
}

// Apply commits all operations in one transaction. Either every operation
// is applied or none of them.
func (db *BrokerDB) Apply(ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}
	txn := db.broker.NewTxn()
	for _, op := range ops {
		if op.Op == OpDel {
			txn.Delete(db.dbKey(op.Table, op.Key))
			continue
		}
		if op.Values == nil {
			return errors.Errorf("%s: set %s|%s without value", db.name, op.Table, op.Key)
		}
		txn.Put(db.dbKey(op.Table, op.Key), op.Values)
	}
	if err := txn.Commit(context.Background()); err != nil {
		return errors.Wrapf(ErrUnavailable, "%s: apply %d operations: %v", db.name, len(ops), err)
	}
	return nil
}

// Watch registers callback for changes in the given tables.
func (db *BrokerDB) Watch(onChange func(Change), tables ...string) (stop func(), err error) {
	var prefixes []string
	for _, table := range tables {
		prefixes = append(prefixes, table+"/")
	}
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	closeCh := make(chan string)
	err = db.watcher.Watch(func(resp datasync.ProtoWatchResp) {
		db.onWatchResp(resp, onChange)
	}, closeCh, prefixes...)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: watch: %v", db.name, err)
	}
	return func() { close(closeCh) }, nil
}

// onWatchResp converts watch response into Change.
func (db *BrokerDB) onWatchResp(resp datasync.ProtoWatchResp, onChange func(Change)) {
	table, key, ok := db.parseKey(resp.GetKey())
	if !ok {
		db.log.Warnf("Ignoring change of unexpected key: %s", resp.GetKey())
		return
	}
	change := Change{
		Table:    table,
		Key:      key,
		Op:       OpSet,
		Revision: resp.GetRevision(),
	}
	if resp.GetChangeType() == datasync.Delete {
		change.Op = OpDel
	} else {
		values := &FieldValues{}
		if err := resp.GetValue(values); err != nil {
			db.log.Warnf("Failed to de-serialize value for key %s: %v", resp.GetKey(), err)
			return
		}
		change.Values = values
	}
	prevValues := &FieldValues{}
	if withPrev, err := resp.GetPrevValue(prevValues); err == nil && withPrev {
		change.PrevValues = prevValues
	}
	onChange(change)
}

func (db *BrokerDB) dbKey(table, key string) string {
	return table + "/" + key
}

// trimPrefix removes the DB prefix if the broker returned the full key.
func (db *BrokerDB) trimPrefix(key string) string {
	return strings.TrimPrefix(key, db.prefix)
}

// parseKey splits data store key into table and key.
// Table names never contain '/', keys (e.g. route prefixes) can.
func (db *BrokerDB) parseKey(dsKey string) (table, key string, ok bool) {
	dsKey = db.trimPrefix(dsKey)
	idx := strings.Index(dsKey, "/")
	if idx <= 0 || idx == len(dsKey)-1 {
		return "", "", false
	}
	return dsKey[:idx], dsKey[idx+1:], true
}
