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

package controller

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

// transaction collects device object operations requested by event handlers
// and applies them into the Device State Store in one batch.
// Operations on the same key are merged, keeping the position of the first one.
type transaction struct {
	db     statedb.DB
	resync bool // remove all objects not put by this transaction

	ops   []statedb.Operation
	index map[string]int // table|key -> index in ops

	savedOps   []statedb.Operation
	savedIndex map[string]int
}

// newTransaction is a constructor for transaction.
func newTransaction(db statedb.DB, resync bool) *transaction {
	return &transaction{
		db:     db,
		resync: resync,
		index:  make(map[string]int),
	}
}

func opKey(table, key string) string {
	return table + "|" + key
}

// Put adds request to create or modify device object.
func (txn *transaction) Put(table, key string, values *statedb.FieldValues) {
	if values == nil {
		panic(fmt.Sprintf("Put nil value for key '%s'", opKey(table, key)))
	}
	txn.setOp(statedb.Operation{Table: table, Key: key, Op: statedb.OpSet, Values: values.Clone()})
}

// Delete adds request to remove device object.
func (txn *transaction) Delete(table, key string) {
	txn.setOp(statedb.Operation{Table: table, Key: key, Op: statedb.OpDel})
}

// Get returns value prepared to be applied by this transaction.
func (txn *transaction) Get(table, key string) *statedb.FieldValues {
	if idx, has := txn.index[opKey(table, key)]; has && txn.ops[idx].Op == statedb.OpSet {
		return txn.ops[idx].Values.Clone()
	}
	return nil
}

func (txn *transaction) setOp(op statedb.Operation) {
	key := opKey(op.Table, op.Key)
	if idx, has := txn.index[key]; has {
		txn.ops[idx] = op
		return
	}
	txn.index[key] = len(txn.ops)
	txn.ops = append(txn.ops, op)
}

// Checkpoint remembers the operations collected so far.
func (txn *transaction) Checkpoint() {
	txn.savedOps = append([]statedb.Operation{}, txn.ops...)
	txn.savedIndex = make(map[string]int, len(txn.index))
	for key, idx := range txn.index {
		txn.savedIndex[key] = idx
	}
}

// Rollback drops operations collected since the last Checkpoint.
func (txn *transaction) Rollback() {
	txn.ops = append([]statedb.Operation{}, txn.savedOps...)
	txn.index = make(map[string]int, len(txn.savedIndex))
	for key, idx := range txn.savedIndex {
		txn.index[key] = idx
	}
}

// isEmpty returns true if there is nothing to commit.
func (txn *transaction) isEmpty() bool {
	return len(txn.ops) == 0 && !txn.resync
}

// Commit applies the requested operations. Operations which would not change
// the current content of the store are skipped.
func (txn *transaction) Commit(ctx context.Context) error {
	if txn.isEmpty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		ops      []statedb.Operation
		opErrors []api.OperationError
	)

	// in resync mode remove everything not put
	if txn.resync {
		tables, err := txn.db.Tables()
		if err != nil {
			return api.NewTransactionError(errors.Wrap(err, "failed to list tables"), nil)
		}
		for _, table := range tables {
			keys, err := txn.db.Keys(table)
			if err != nil {
				return api.NewTransactionError(errors.Wrapf(err, "failed to list keys of %s", table), nil)
			}
			for _, key := range keys {
				if txn.Get(table, key) == nil {
					ops = append(ops, statedb.Operation{Table: table, Key: key, Op: statedb.OpDel})
				}
			}
		}
	}

	for _, op := range txn.ops {
		current, exists, err := txn.db.Get(op.Table, op.Key)
		if err != nil {
			opErrors = append(opErrors, api.OperationError{Table: op.Table, Key: op.Key, Op: op.Op, Error: err})
			continue
		}
		if op.Op == statedb.OpDel && !exists {
			continue
		}
		if op.Op == statedb.OpSet && exists && current.Equal(op.Values) {
			continue
		}
		if txn.resync && op.Op == statedb.OpDel {
			// already removed above if present
			continue
		}
		ops = append(ops, op)
	}
	if len(opErrors) > 0 {
		return api.NewTransactionError(nil, opErrors)
	}
	if len(ops) == 0 {
		return nil
	}
	if err := txn.db.Apply(ops); err != nil {
		return api.NewTransactionError(err, nil)
	}
	return nil
}
