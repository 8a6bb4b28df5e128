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

package idalloc

import (
	"reflect"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/infra"
)

// IDAllocator plugin implements allocation of numeric identifiers from bitmap pools.
type IDAllocator struct {
	Deps

	sync.Mutex
	pools map[string]*pool // pool name to pool data

	// pools as they were at the last Checkpoint, copied before their first
	// modification (nil for pools created since)
	saved        map[string]*pool
	checkpointed bool
}

// Deps lists dependencies of the IDAllocator plugin.
type Deps struct {
	infra.PluginDeps
}

// pool contains allocations of a single pool.
type pool struct {
	name   string
	rng    Range
	used   *bitset.BitSet    // bit (id - MinID) set for reserved and allocated IDs
	labels map[string]uint32 // label to id map

	// IDs released since the last Checkpoint, not allocated again until
	// the next one
	released map[uint]struct{}
}

// Init initializes plugin internals.
func (a *IDAllocator) Init() (err error) {
	a.Lock()
	defer a.Unlock()
	if a.pools == nil {
		a.pools = make(map[string]*pool)
	}
	return nil
}

// Close cleans up the resources.
func (a *IDAllocator) Close() error {
	return nil
}

// InitPool initializes ID allocation pool with given name and ID range.
func (a *IDAllocator) InitPool(name string, poolRange *Range) (err error) {
	a.Lock()
	defer a.Unlock()
	if a.pools == nil {
		a.pools = make(map[string]*pool)
	}

	if poolRange == nil || poolRange.MaxID < poolRange.MinID {
		return errors.Errorf("invalid range of ID pool %s: %+v", name, poolRange)
	}

	// if pool with given name already exists, check if their specifications are same
	if p, exists := a.pools[name]; exists {
		if reflect.DeepEqual(p.rng, *poolRange) {
			return nil
		}
		a.Log.Errorf("ID pool %s already exists with a different range: %+v", name, p.rng)
		return errors.Errorf("ID pool %s already exists with a different range", name)
	}

	a.save(name)
	p := &pool{
		name:   name,
		rng:    *poolRange,
		used:   bitset.New(uint(poolRange.MaxID-poolRange.MinID) + 1),
		labels: make(map[string]uint32),
	}
	for _, id := range poolRange.Reserved {
		if id >= poolRange.MinID && id <= poolRange.MaxID {
			p.used.Set(uint(id - poolRange.MinID))
		}
	}
	a.pools[name] = p

	a.Log.Debugf("Initialized ID allocation pool %s with range %d-%d", name, poolRange.MinID, poolRange.MaxID)
	return nil
}

// GetOrAllocateID returns allocated ID in given pool for given label. If the ID was
// not already allocated, allocates the lowest available ID.
func (a *IDAllocator) GetOrAllocateID(poolName string, idLabel string) (id uint32, err error) {
	a.Lock()
	defer a.Unlock()

	p := a.pools[poolName]
	if p == nil {
		err = errors.Errorf("ID pool %s does not exist", poolName)
		a.Log.Error(err)
		return 0, err
	}

	// try to get already allocated ID number
	if id, exists := p.labels[idLabel]; exists {
		return id, nil
	}

	// find a free ID number
	offset, found := p.nextFree()
	if !found {
		err = errors.Wrapf(ErrPoolExhausted, "pool %s", poolName)
		a.Log.Errorf("Error by allocating ID for label '%s': %v", idLabel, err)
		return 0, err
	}
	a.save(poolName)
	p.used.Set(offset)
	id = p.rng.MinID + uint32(offset)
	p.labels[idLabel] = id

	a.Log.Debugf("ID for label '%s' in pool %s: %d", idLabel, poolName, id)
	return id, nil
}

// GetID returns ID allocated for the given label.
func (a *IDAllocator) GetID(poolName string, idLabel string) (id uint32, exists bool) {
	a.Lock()
	defer a.Unlock()

	p := a.pools[poolName]
	if p == nil {
		return 0, false
	}
	id, exists = p.labels[idLabel]
	return id, exists
}

// ReleaseID releases existing allocation for given pool and label.
// NOOP if the pool or allocation does not exist.
func (a *IDAllocator) ReleaseID(poolName string, idLabel string) (err error) {
	a.Lock()
	defer a.Unlock()

	p := a.pools[poolName]
	if p == nil {
		return nil
	}
	id, exists := p.labels[idLabel]
	if !exists {
		// already released
		return nil
	}
	a.save(poolName)
	delete(p.labels, idLabel)
	offset := uint(id - p.rng.MinID)
	p.used.Clear(offset)
	if a.checkpointed {
		if p.released == nil {
			p.released = make(map[uint]struct{})
		}
		p.released[offset] = struct{}{}
	}

	a.Log.Debugf("Released ID for label '%s' in pool %s: %d", idLabel, poolName, id)
	return nil
}

// PoolUsage returns the number of allocated IDs in the pool.
func (a *IDAllocator) PoolUsage(poolName string) (allocated int, err error) {
	a.Lock()
	defer a.Unlock()

	p := a.pools[poolName]
	if p == nil {
		return 0, errors.Errorf("ID pool %s does not exist", poolName)
	}
	return len(p.labels), nil
}

// ResetPools releases all allocations of all pools.
func (a *IDAllocator) ResetPools() {
	a.Lock()
	defer a.Unlock()

	for name, p := range a.pools {
		a.save(name)
		a.pools[name] = newEmptyPool(p)
	}
}

// Checkpoint remembers the current allocations. IDs released before
// the checkpoint become available again.
func (a *IDAllocator) Checkpoint() {
	a.Lock()
	defer a.Unlock()

	a.checkpointed = true
	a.saved = make(map[string]*pool)
	for _, p := range a.pools {
		p.released = nil
	}
}

// Rollback restores allocations remembered by the last Checkpoint.
func (a *IDAllocator) Rollback() {
	a.Lock()
	defer a.Unlock()

	if !a.checkpointed {
		return
	}
	for name, p := range a.saved {
		if p == nil {
			delete(a.pools, name)
			continue
		}
		a.pools[name] = p
	}
	a.saved = nil
	a.checkpointed = false
}

// save copies the pool before its first modification since the last Checkpoint.
// The method assumes that IDAllocator is in the locked state.
func (a *IDAllocator) save(poolName string) {
	if !a.checkpointed {
		return
	}
	if _, saved := a.saved[poolName]; saved {
		return
	}
	if p, exists := a.pools[poolName]; exists {
		a.saved[poolName] = p.clone()
	} else {
		a.saved[poolName] = nil
	}
}

// Allocations returns label to ID map of the pool, labels sorted by ID.
func (a *IDAllocator) Allocations(poolName string) (labels []string, ids map[string]uint32) {
	a.Lock()
	defer a.Unlock()

	ids = make(map[string]uint32)
	p := a.pools[poolName]
	if p == nil {
		return nil, ids
	}
	for label, id := range p.labels {
		labels = append(labels, label)
		ids[label] = id
	}
	sort.Slice(labels, func(i, j int) bool {
		return ids[labels[i]] < ids[labels[j]]
	})
	return labels, ids
}

// nextFree returns offset of the lowest ID which is neither allocated nor
// released since the last Checkpoint.
func (p *pool) nextFree() (offset uint, found bool) {
	size := uint(p.rng.MaxID-p.rng.MinID) + 1
	for offset < size {
		offset, found = p.used.NextClear(offset)
		if !found || offset >= size {
			return 0, false
		}
		if _, released := p.released[offset]; !released {
			return offset, true
		}
		offset++
	}
	return 0, false
}

func (p *pool) clone() *pool {
	labels := make(map[string]uint32, len(p.labels))
	for label, id := range p.labels {
		labels[label] = id
	}
	return &pool{
		name:   p.name,
		rng:    p.rng,
		used:   p.used.Clone(),
		labels: labels,
	}
}

// newEmptyPool returns pool with the same range and reservations, without allocations.
func newEmptyPool(p *pool) *pool {
	empty := &pool{
		name:   p.name,
		rng:    p.rng,
		used:   bitset.New(uint(p.rng.MaxID-p.rng.MinID) + 1),
		labels: make(map[string]uint32),
	}
	for _, id := range p.rng.Reserved {
		if id >= p.rng.MinID && id <= p.rng.MaxID {
			empty.used.Set(uint(id - p.rng.MinID))
		}
	}
	return empty
}
