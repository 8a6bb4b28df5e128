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

import (
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/unrolled/render"

	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/rpc/rest"

	controller "github.com/contiv/orchagent/plugins/controller/api"
)

const (
	// refCountURL is URL used to dump all reference counts.
	refCountURL = "/refcount"
)

// RefCount plugin implements the reference tracker for shared device objects.
type RefCount struct {
	Deps

	sync.Mutex
	counts     map[string]int
	checkpoint map[string]int
}

// Deps lists dependencies of the RefCount plugin.
type Deps struct {
	infra.PluginDeps
	HTTPHandlers rest.HTTPHandlers
}

// Init initializes internal state and registers REST handler.
func (rc *RefCount) Init() error {
	rc.Lock()
	if rc.counts == nil {
		rc.counts = make(map[string]int)
	}
	rc.Unlock()
	if rc.HTTPHandlers != nil {
		rc.HTTPHandlers.RegisterHTTPHandler(refCountURL, rc.refCountGetHandler, "GET")
	}
	return nil
}

// Close does nothing.
func (rc *RefCount) Close() error {
	return nil
}

// Acquire increments the reference count of the object.
func (rc *RefCount) Acquire(objectKey string) int {
	rc.Lock()
	defer rc.Unlock()
	rc.init()
	rc.counts[objectKey]++
	refs := rc.counts[objectKey]
	rc.Log.Debugf("Acquired %s (refs=%d)", objectKey, refs)
	return refs
}

// Release decrements the reference count of the object.
func (rc *RefCount) Release(objectKey string) (destroyed bool, err error) {
	rc.Lock()
	defer rc.Unlock()
	rc.init()
	refs, has := rc.counts[objectKey]
	if !has || refs <= 0 {
		err = errors.Wrapf(controller.ErrRefCountUnderflow, "release of %s", objectKey)
		rc.Log.Error(err)
		return false, controller.NewFatalError(err)
	}
	refs--
	if refs == 0 {
		delete(rc.counts, objectKey)
		destroyed = true
	} else {
		rc.counts[objectKey] = refs
	}
	rc.Log.Debugf("Released %s (refs=%d)", objectKey, refs)
	return destroyed, nil
}

// Count returns the current reference count of the object.
func (rc *RefCount) Count(objectKey string) int {
	rc.Lock()
	defer rc.Unlock()
	return rc.counts[objectKey]
}

// Dump returns a copy of all non-zero reference counts.
func (rc *RefCount) Dump() map[string]int {
	rc.Lock()
	defer rc.Unlock()
	return copyCounts(rc.counts)
}

// Reset forgets all references.
func (rc *RefCount) Reset() {
	rc.Lock()
	defer rc.Unlock()
	rc.counts = make(map[string]int)
}

// Checkpoint remembers the current reference counts.
func (rc *RefCount) Checkpoint() {
	rc.Lock()
	defer rc.Unlock()
	rc.checkpoint = copyCounts(rc.counts)
}

// Rollback restores reference counts remembered by the last Checkpoint.
func (rc *RefCount) Rollback() {
	rc.Lock()
	defer rc.Unlock()
	if rc.checkpoint == nil {
		return
	}
	rc.counts = rc.checkpoint
	rc.checkpoint = nil
	rc.Log.Debug("Reference counts were rolled back")
}

// refCountGetHandler is the GET handler for "refcount" API.
func (rc *RefCount) refCountGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		formatter.JSON(w, http.StatusOK, rc.Dump())
	}
}

// init allocates the map if the plugin is used without Init (in tests).
// The method assumes that RefCount is in the locked state.
func (rc *RefCount) init() {
	if rc.counts == nil {
		rc.counts = make(map[string]int)
	}
}

func copyCounts(counts map[string]int) map[string]int {
	dup := make(map[string]int, len(counts))
	for key, refs := range counts {
		dup[key] = refs
	}
	return dup
}
