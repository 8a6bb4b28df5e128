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

package api

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/contiv/orchagent/plugins/statedb"
)

// DBResource describes a table of the Intent Store watched by the controller.
type DBResource struct {
	// Keyword is the table name.
	Keyword string

	// Description is a human-readable description of the table content.
	Description string
}

// IntentID identifies a single intent: a key inside an Intent Store table.
type IntentID struct {
	Table string
	Key   string
}

// String returns "<table>|<key>".
func (id IntentID) String() string {
	return id.Table + "|" + id.Key
}

// IntentData are field/value sets of intents from one table, keyed by intent key.
type IntentData map[string]*statedb.FieldValues

// IntentSnapshot contains full content of the watched Intent Store tables.
type IntentSnapshot map[string]IntentData // table -> {(key, values)}

// SortedKeys returns keys of the given table in ascending order.
func (s IntentSnapshot) SortedKeys(table string) []string {
	var keys []string
	for key := range s[table] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

/******************************** DB Resync ***********************************/

// DBResync carries a full snapshot of the Intent Store.
type DBResync struct {
	Intents IntentSnapshot
}

func (ev *DBResync) GetName() string {
	return "Database Resync"
}

func (ev *DBResync) String() string {
	str := ev.GetName()
	var tables []string
	for table := range ev.Intents {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		keys := ev.Intents.SortedKeys(table)
		str += fmt.Sprintf("\n* %dx %s: %s", len(keys), table, strings.Join(keys, ", "))
	}
	return str
}

func (ev *DBResync) Method() EventMethodType {
	return Resync
}

func (ev *DBResync) IsBlocking() bool {
	return false
}

func (ev *DBResync) Done(error) {
	return
}

/******************************* Intent Change ********************************/

// IntentChange asks handlers to reconcile device state with the current desired
// value of a single intent. The controller coalesces consecutive changes of the
// same key, therefore PrevValues is the last value that was successfully
// applied, not necessarily the previous value in the Intent Store.
type IntentChange struct {
	IntentID
	Op         statedb.OpType
	Values     *statedb.FieldValues // nil for delete
	PrevValues *statedb.FieldValues // nil if nothing was applied yet
	Attempt    int                  // 1 for the first attempt
}

func (ev *IntentChange) GetName() string {
	return "Intent Change"
}

func (ev *IntentChange) String() string {
	str := fmt.Sprintf("%s %s %s", ev.GetName(), ev.Op, ev.IntentID)
	if ev.Attempt > 1 {
		str += fmt.Sprintf(" (attempt #%d)", ev.Attempt)
	}
	if ev.PrevValues != nil {
		str += fmt.Sprintf("\n* prev-value: %s", ev.PrevValues.Pretty())
	}
	if ev.Values != nil {
		str += fmt.Sprintf("\n* new-value: %s", ev.Values.Pretty())
	}
	return str
}

func (ev *IntentChange) Method() EventMethodType {
	return Update
}

// Direction is Reverse for removals so that dependent objects are handled
// before the objects they refer to.
func (ev *IntentChange) Direction() UpdateDirectionType {
	if ev.Op == statedb.OpDel {
		return Reverse
	}
	return Forward
}

func (ev *IntentChange) IsBlocking() bool {
	return false
}

func (ev *IntentChange) Done(error) {
	return
}

// IsDelete returns true if the intent was withdrawn.
func (ev *IntentChange) IsDelete() bool {
	return ev.Op == statedb.OpDel
}

/******************************* Intent Status ********************************/

// IntentState is the state of a single intent key in the convergence loop.
type IntentState int

const (
	// Absent: no desired value, nothing applied.
	Absent IntentState = iota

	// Pending: the desired value differs from what is applied, reconciliation
	// is in progress or waiting for retry.
	Pending

	// Applied: the desired value is reflected in the Device State Store.
	Applied

	// Halted: reconciliation hit an internal-consistency error; the key is
	// not mutated until the next database resync.
	Halted
)

// String returns human-readable name of the state.
func (s IntentState) String() string {
	switch s {
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	case Halted:
		return "halted"
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s IntentState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IntentStatus describes reconciliation status of one intent key.
type IntentStatus struct {
	IntentID
	State       IntentState
	Desired     map[string]string `json:",omitempty"`
	Applied     map[string]string `json:",omitempty"`
	Attempts    int               `json:",omitempty"`
	NextAttempt time.Time         `json:",omitempty"`
	LastError   string            `json:",omitempty"`
}

// IntentStateReader allows to read reconciliation status of intents.
type IntentStateReader interface {
	// GetIntentStates returns status of all known intent keys, ordered by
	// table dependencies and then by key.
	GetIntentStates() []*IntentStatus
}
