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

package refcount

// API defines methods provided by the reference tracker for use by reconcilers
// to share device objects.
// The tracker only counts: a reconciler acquires at most once per relationship
// it owns and releases exactly once when the relationship ends.
type API interface {
	// Acquire increments the reference count of the object and returns the new count.
	Acquire(objectKey string) (refs int)

	// Release decrements the reference count of the object. Returns true if the
	// count has dropped to zero, i.e. the caller is responsible for destroying
	// the object. Release of an object with zero count returns FatalError
	// wrapping ErrRefCountUnderflow.
	Release(objectKey string) (destroyed bool, err error)

	// Count returns the current reference count of the object.
	Count(objectKey string) int

	// Dump returns a copy of all non-zero reference counts.
	Dump() map[string]int

	// Reset forgets all references (used by full resync).
	Reset()
}
