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
	"errors"
	"sort"
)

const (
	// IntentDBName is the name of the database with the desired state (intents)
	// written by controllers.
	IntentDBName = "APPL_DB"

	// DeviceDBName is the name of the database with the device-level object
	// graph, written only by the orchestrator.
	DeviceDBName = "ASIC_DB"
)

// ErrUnavailable is returned when the store cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// OpType distinguishes upsert from delete.
type OpType int

const (
	// OpSet creates or replaces the value under a key.
	OpSet OpType = iota

	// OpDel removes the key.
	OpDel
)

// String returns human-readable name of the operation.
func (op OpType) String() string {
	if op == OpDel {
		return "DEL"
	}
	return "SET"
}

// Operation is a single write into a table.
type Operation struct {
	Table  string
	Key    string
	Op     OpType
	Values *FieldValues // nil for OpDel
}

// Change is a notification about a single key being changed.
type Change struct {
	Table      string
	Key        string
	Op         OpType
	Values     *FieldValues // nil for OpDel
	PrevValues *FieldValues // nil if the key did not exist before
	Revision   int64
}

// DB is a set of ordered key-value tables, each value being a set of field/value
// pairs. Both the Intent Store and the Device State Store implement it.
type DB interface {
	// Name returns the database name.
	Name() string

	// Get returns value stored under the key.
	Get(table, key string) (values *FieldValues, found bool, err error)

	// Keys returns all keys of the table in ascending order.
	Keys(table string) ([]string, error)

	// Tables returns names of all non-empty tables in ascending order.
	Tables() ([]string, error)

	// Set creates or replaces the value stored under the key.
	Set(table, key string, values *FieldValues) error

	// Delete removes the key. Deleting non-existent key is not an error.
	Delete(table, key string) error

	// Apply executes the given operations in order. Implementations that
	// support it make the whole batch visible at once.
	Apply(ops []Operation) error

	// Watch registers callback for changes in the given tables (all tables if
	// none are given). Changes are delivered in the order they were applied.
	Watch(onChange func(Change), tables ...string) (stop func(), err error)
}

// Table is a view of a single table of a DB.
type Table struct {
	db   DB
	name string
}

// NewTable returns view of the table <name> inside <db>.
func NewTable(db DB, name string) *Table {
	return &Table{db: db, name: name}
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Get returns value stored under the key.
func (t *Table) Get(key string) (*FieldValues, bool, error) {
	return t.db.Get(t.name, key)
}

// Set creates or replaces value stored under the key.
func (t *Table) Set(key string, values *FieldValues) error {
	return t.db.Set(t.name, key, values)
}

// Delete removes the key.
func (t *Table) Delete(key string) error {
	return t.db.Delete(t.name, key)
}

// Keys lists keys of the table in ascending order.
func (t *Table) Keys() ([]string, error) {
	return t.db.Keys(t.name)
}

// Snapshot is a plain-map copy of DB content: table -> key -> field -> value.
type Snapshot map[string]map[string]map[string]string

// Dump reads the whole content of the given tables (all tables if none given).
func Dump(db DB, tables ...string) (Snapshot, error) {
	var err error
	if len(tables) == 0 {
		tables, err = db.Tables()
		if err != nil {
			return nil, err
		}
	}
	snapshot := make(Snapshot)
	for _, table := range tables {
		keys, err := db.Keys(table)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			values, found, err := db.Get(table, key)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			if _, has := snapshot[table]; !has {
				snapshot[table] = make(map[string]map[string]string)
			}
			snapshot[table][key] = FromMap(values.Fields).Fields
		}
	}
	return snapshot, nil
}

// SortedTables returns table names of the snapshot in ascending order.
func (s Snapshot) SortedTables() []string {
	var tables []string
	for table := range s {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// SortedKeys returns keys of the given table in ascending order.
func (s Snapshot) SortedKeys(table string) []string {
	var keys []string
	for key := range s[table] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
