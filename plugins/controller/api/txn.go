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
	"context"

	"github.com/contiv/orchagent/plugins/statedb"
)

// Transaction collects device-object changes produced for one event and
// applies them into the Device State Store at once.
type Transaction interface {
	UpdateOperations

	// Commit applies the requested transaction changes.
	Commit(ctx context.Context) error
}

type ResyncOperations interface {
	// Put add request to the transaction to add or modify a device object.
	// <values> cannot be nil.
	Put(table, key string, values *statedb.FieldValues)

	// Get is used to obtain value already prepared to be applied by this transaction.
	// Until the transaction is committed, provided values can still be changed.
	// Returns nil if the object is set to be deleted, or has not been set at all.
	Get(table, key string) *statedb.FieldValues
}

type UpdateOperations interface {
	ResyncOperations

	// Delete adds request to the transaction to delete an existing object.
	Delete(table, key string)
}

// DeviceObject identifies a single device object and carries its attributes.
type DeviceObject struct {
	Table  string
	Key    string
	Values *statedb.FieldValues
}

func PutAll(txn ResyncOperations, objects []DeviceObject) {
	for _, obj := range objects {
		txn.Put(obj.Table, obj.Key, obj.Values)
	}
}

// DeleteAll deletes objects in the reverse order, i.e. dependents first
// for a list ordered as created.
func DeleteAll(txn UpdateOperations, objects []DeviceObject) {
	for i := len(objects) - 1; i >= 0; i-- {
		txn.Delete(objects[i].Table, objects[i].Key)
	}
}
