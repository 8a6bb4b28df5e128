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

package orchestrator

import (
	"time"

	"github.com/ligato/cn-infra/logging"

	"github.com/contiv/orchagent/plugins/asicdb"
	"github.com/contiv/orchagent/plugins/controller"
	"github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/dbresources"
	"github.com/contiv/orchagent/plugins/idalloc"
	"github.com/contiv/orchagent/plugins/orchconf"
	"github.com/contiv/orchagent/plugins/orchconf/config"
	"github.com/contiv/orchagent/plugins/refcount"
	"github.com/contiv/orchagent/plugins/statedb"
	"github.com/contiv/orchagent/plugins/switchinit"
)

// MockOrchestrator runs the controller with the given reconcilers over
// in-memory stores, without REST and status reporting.
type MockOrchestrator struct {
	Store      *statedb.MemStore
	OrchConf   *orchconf.OrchConf
	RefCount   *refcount.RefCount
	IDAlloc    *idalloc.IDAllocator
	SwitchInit *switchinit.SwitchInit
	Controller *controller.Controller
}

// Reconcilers builds event handlers on top of the base plugins.
// SwitchInit is always the first event handler and must not be returned.
type Reconcilers func(mo *MockOrchestrator) ([]api.EventHandler, error)

// NewMockOrchestrator initializes all plugins and starts the controller.
// The Intent Store content of <store> is applied by the startup resync.
func NewMockOrchestrator(store *statedb.MemStore, cfg *config.Config, reconcilers Reconcilers) (*MockOrchestrator, error) {
	mo := &MockOrchestrator{Store: store}
	if cfg == nil {
		cfg = &config.Config{}
	}

	mo.OrchConf = orchconf.NewPlugin(orchconf.UseDeps(func(deps *orchconf.Deps) {
		deps.UnitTestDeps = &orchconf.UnitTestDeps{Config: cfg}
	}))
	mo.RefCount = refcount.NewPlugin(refcount.UseDeps(func(deps *refcount.Deps) {
		deps.HTTPHandlers = nil
	}))
	mo.IDAlloc = idalloc.NewPlugin()
	mo.SwitchInit = switchinit.NewPlugin(switchinit.UseDeps(func(deps *switchinit.Deps) {
		deps.OrchConf = mo.OrchConf
		deps.RefCount = mo.RefCount
		deps.IDAlloc = mo.IDAlloc
	}))
	for _, plugin := range []interface{ Init() error }{mo.OrchConf, mo.RefCount, mo.IDAlloc, mo.SwitchInit} {
		if err := plugin.Init(); err != nil {
			return nil, err
		}
	}

	handlers, err := reconcilers(mo)
	if err != nil {
		return nil, err
	}
	mo.Controller = controller.NewPlugin(
		controller.UseDeps(func(deps *controller.Deps) {
			deps.StatusCheck = nil
			deps.HTTPHandlers = nil
			deps.StateDB = store
			deps.DBResources = dbresources.GetDBResources()
			deps.EventHandlers = append([]api.EventHandler{mo.SwitchInit}, handlers...)
			deps.Revertibles = []api.Revertible{mo.RefCount, mo.IDAlloc}
		}),
		controller.UseConfig(&controller.Config{
			EnableRetry:             true,
			DelayRetry:              10 * time.Millisecond,
			MaxDelayRetry:           100 * time.Millisecond,
			EnableExpBackoffRetry:   true,
			StartupResyncDeadline:   time.Minute,
			PeriodicHealingInterval: time.Minute,
			DelayAfterErrorHealing:  20 * time.Millisecond,
			StoreProbingInterval:    10 * time.Millisecond,
			ValidateDeviceState:     true,
			EventHistorySize:        100,
		}))
	mo.Controller.Log.SetLevel(logging.WarnLevel)
	if err = mo.Controller.Init(); err != nil {
		return nil, err
	}
	if err = mo.Controller.AfterInit(); err != nil {
		return nil, err
	}
	return mo, nil
}

// Close stops the controller.
func (mo *MockOrchestrator) Close() error {
	return mo.Controller.Close()
}

// SetIntent writes intent into the Intent Store.
func (mo *MockOrchestrator) SetIntent(table, key string, pairs ...string) error {
	return mo.Store.Intent.Set(table, key, statedb.NewFieldValues(pairs...))
}

// DeleteIntent removes intent from the Intent Store.
func (mo *MockOrchestrator) DeleteIntent(table, key string) error {
	return mo.Store.Intent.Delete(table, key)
}

// IntentState returns the state of the intent in the convergence loop.
func (mo *MockOrchestrator) IntentState(table, key string) api.IntentState {
	for _, status := range mo.Controller.GetIntentStates() {
		if status.Table == table && status.Key == key {
			return status.State
		}
	}
	return api.Absent
}

// Converged returns true if all intents are applied.
func (mo *MockOrchestrator) Converged() bool {
	for _, status := range mo.Controller.GetIntentStates() {
		if status.State != api.Applied {
			return false
		}
	}
	return true
}

// Objects returns all device objects of the given type (key -> field -> value).
func (mo *MockOrchestrator) Objects(objType asicdb.ObjectType) map[string]map[string]string {
	snapshot, err := statedb.Dump(mo.Store.Device, objType.Table())
	if err != nil {
		return nil
	}
	objects := snapshot[objType.Table()]
	if objects == nil {
		objects = make(map[string]map[string]string)
	}
	return objects
}

// DeviceState returns content of the whole Device State Store.
func (mo *MockOrchestrator) DeviceState() statedb.Snapshot {
	snapshot, _ := statedb.Dump(mo.Store.Device)
	return snapshot
}
