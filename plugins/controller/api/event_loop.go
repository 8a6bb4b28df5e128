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

// EventLoop accepts events for processing by the single event loop.
type EventLoop interface {
	// PushEvent adds the given event into the queue for processing.
	PushEvent(event Event) error
}

// Event
type Event interface {
	// GetName returns name of the event type.
	GetName() string

	// String describes the event instance.
	String() string

	// Method
	Method() EventMethodType

	// IsBlocking returns true if the sender waits for the event to be processed.
	IsBlocking() bool

	// Done is called when the event processing has finalized.
	Done(error)
}

// UpdateEvent
type UpdateEvent interface {
	Event

	// Direction
	Direction() UpdateDirectionType
}

// EventHandler is implemented by reconcilers and other plugins reacting to events.
type EventHandler interface {
	String() string

	// HandlesEvent selects events the handler is interested in.
	HandlesEvent(event Event) bool

	// Resync rebuilds the handler's internal state from scratch. Device objects
	// required by the handler right away are put into the transaction.
	Resync(event Event, txn ResyncOperations, intents IntentSnapshot, resyncCount int) error

	// Update reacts to a change, producing the object delta into <txn>.
	Update(event Event, txn UpdateOperations) (changeDescription string, err error)
}

// Revertible is implemented by components with internal state that must be
// restored when a transaction they contributed to fails to commit.
type Revertible interface {
	// Checkpoint remembers the current state.
	Checkpoint()

	// Rollback restores the state remembered by the last Checkpoint.
	Rollback()
}

// EventMethodType
type EventMethodType int

const (
	// Resync
	Resync EventMethodType = iota

	// Update
	Update
)

// String returns human-readable name of the method.
func (m EventMethodType) String() string {
	if m == Resync {
		return "resync"
	}
	return "update"
}

// UpdateDirectionType
type UpdateDirectionType int

const (
	// Forward: handlers are called in the order of dependencies (creates).
	Forward UpdateDirectionType = iota

	// Reverse: handlers are called in the reverse order (removals).
	Reverse
)
