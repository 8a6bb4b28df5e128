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
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemDB is an in-memory implementation of DB.
// Batches passed to Apply become visible atomically. Watchers are notified
// asynchronously, each from its own go routine, in the order of the changes.
type MemDB struct {
	sync.RWMutex

	name        string
	tables      map[string]map[string]*FieldValues
	revision    int64
	unavailable bool

	watchers    map[int]*memWatcher
	nextWatchID int
}

// memWatcher queues changes for a single watch callback.
type memWatcher struct {
	sync.Mutex
	cond     *sync.Cond
	tables   map[string]struct{}
	onChange func(Change)
	queue    []Change
	stopped  bool
	done     chan struct{}
}

// NewMemDB is a constructor for MemDB.
func NewMemDB(name string) *MemDB {
	return &MemDB{
		name:     name,
		tables:   make(map[string]map[string]*FieldValues),
		watchers: make(map[int]*memWatcher),
	}
}

// Name returns the database name.
func (db *MemDB) Name() string {
	return db.name
}

// SetUnavailable makes every subsequent operation fail with ErrUnavailable
// until called again with false.
func (db *MemDB) SetUnavailable(unavailable bool) {
	db.Lock()
	defer db.Unlock()
	db.unavailable = unavailable
}

// Revision returns the revision of the last applied change.
func (db *MemDB) Revision() int64 {
	db.RLock()
	defer db.RUnlock()
	return db.revision
}

// Get returns value stored under the key.
func (db *MemDB) Get(table, key string) (*FieldValues, bool, error) {
	db.RLock()
	defer db.RUnlock()
	if db.unavailable {
		return nil, false, errors.Wrapf(ErrUnavailable, "%s: get %s|%s", db.name, table, key)
	}
	value, found := db.tables[table][key]
	if !found {
		return nil, false, nil
	}
	return value.Clone(), true, nil
}

// Keys returns all keys of the table in ascending order.
func (db *MemDB) Keys(table string) ([]string, error) {
	db.RLock()
	defer db.RUnlock()
	if db.unavailable {
		return nil, errors.Wrapf(ErrUnavailable, "%s: list keys of %s", db.name, table)
	}
	keys := make([]string, 0, len(db.tables[table]))
	for key := range db.tables[table] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Tables returns names of all non-empty tables in ascending order.
func (db *MemDB) Tables() ([]string, error) {
	db.RLock()
	defer db.RUnlock()
	if db.unavailable {
		return nil, errors.Wrapf(ErrUnavailable, "%s: list tables", db.name)
	}
	var tables []string
	for table, keys := range db.tables {
		if len(keys) > 0 {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// Set creates or replaces the value stored under the key.
func (db *MemDB) Set(table, key string, values *FieldValues) error {
	return db.Apply([]Operation{{Table: table, Key: key, Op: OpSet, Values: values}})
}

// Delete removes the key.
func (db *MemDB) Delete(table, key string) error {
	return db.Apply([]Operation{{Table: table, Key: key, Op: OpDel}})
}

// Apply executes all operations as one atomic batch.
func (db *MemDB) Apply(ops []Operation) error {
	for _, op := range ops {
		if op.Table == "" || op.Key == "" {
			return errors.Errorf("%s: operation with empty table or key: %+v", db.name, op)
		}
		if op.Op == OpSet && op.Values == nil {
			return errors.Errorf("%s: set %s|%s without value", db.name, op.Table, op.Key)
		}
	}

	db.Lock()
	defer db.Unlock()
	if db.unavailable {
		return errors.Wrapf(ErrUnavailable, "%s: apply %d operations", db.name, len(ops))
	}

	for _, op := range ops {
		prevValue, hasPrev := db.tables[op.Table][op.Key]
		change := Change{
			Table: op.Table,
			Key:   op.Key,
			Op:    op.Op,
		}
		if hasPrev {
			change.PrevValues = prevValue.Clone()
		}
		switch op.Op {
		case OpSet:
			if _, hasTable := db.tables[op.Table]; !hasTable {
				db.tables[op.Table] = make(map[string]*FieldValues)
			}
			db.tables[op.Table][op.Key] = op.Values.Clone()
			change.Values = op.Values.Clone()
		case OpDel:
			if !hasPrev {
				continue
			}
			delete(db.tables[op.Table], op.Key)
			if len(db.tables[op.Table]) == 0 {
				delete(db.tables, op.Table)
			}
		}
		db.revision++
		change.Revision = db.revision
		db.notify(change)
	}
	return nil
}

// Watch registers callback for changes in the given tables.
func (db *MemDB) Watch(onChange func(Change), tables ...string) (stop func(), err error) {
	db.Lock()
	defer db.Unlock()

	w := &memWatcher{
		tables:   make(map[string]struct{}),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.Mutex)
	for _, table := range tables {
		w.tables[table] = struct{}{}
	}
	watchID := db.nextWatchID
	db.nextWatchID++
	db.watchers[watchID] = w
	go w.run()

	return func() {
		db.Lock()
		delete(db.watchers, watchID)
		db.Unlock()
		w.stop()
	}, nil
}

// notify queues change for all interested watchers.
// The method assumes that MemDB is in the locked state.
func (db *MemDB) notify(change Change) {
	for _, w := range db.watchers {
		if len(w.tables) > 0 {
			if _, watched := w.tables[change.Table]; !watched {
				continue
			}
		}
		w.push(change)
	}
}

func (w *memWatcher) push(change Change) {
	w.Lock()
	defer w.Unlock()
	w.queue = append(w.queue, change)
	w.cond.Signal()
}

func (w *memWatcher) stop() {
	w.Lock()
	w.stopped = true
	w.cond.Signal()
	w.Unlock()
	<-w.done
}

// run delivers queued changes to the callback.
func (w *memWatcher) run() {
	defer close(w.done)
	for {
		w.Lock()
		for len(w.queue) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.Unlock()
			return
		}
		changes := w.queue
		w.queue = nil
		w.Unlock()

		for _, change := range changes {
			w.onChange(change)
		}
	}
}
