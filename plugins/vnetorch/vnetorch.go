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

package vnetorch

import (
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/rpc/rest"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/idalloc"
	"github.com/contiv/orchagent/plugins/orchconf"
	"github.com/contiv/orchagent/plugins/refcount"
	"github.com/contiv/orchagent/plugins/statedb"
	"github.com/contiv/orchagent/plugins/switchinit"
	"github.com/contiv/orchagent/plugins/vnetorch/model"
)

const (
	// pool of VNET bit slots of the bitmap representation
	vnetBitPool = "vnet/bits"
)

// VnetOrch plugin reconciles VXLAN tunnel, VNET, member interface, route
// and neighbor intents.
//
// VXLAN tunnel objects are created once the first VNET binds the tunnel and
// removed with the last VNET. Every VNET gets its own virtual router mapped
// to the VNET VNI. Forwarding entries are programmed either per route inside
// the VNET router (legacy) or as bitmap router entries shared across VNETs
// (bitmap), depending on the platform capability at the time of the VNET
// creation.
//
// Intents referring to a missing intent fail with ErrDependencyNotReady,
// removal of an intent with dependents fails with ErrInUse. Both are retried
// by the controller.
type VnetOrch struct {
	Deps

	sync.Mutex
	st    *state
	saved *state
}

// Deps lists dependencies of the VnetOrch plugin.
type Deps struct {
	infra.PluginDeps

	OrchConf     orchconf.API
	SwitchInit   switchinit.API
	RefCount     refcount.API
	IDAlloc      idalloc.API
	StateDB      statedb.API
	HTTPHandlers rest.HTTPHandlers
}

// Init initializes plugin internals and registers REST handlers.
func (o *VnetOrch) Init() error {
	o.st = newState()
	if err := o.initBitPool(); err != nil {
		return err
	}
	o.Log.Infof("VNETs will be programmed in the %s mode", o.newRepresentation())
	o.registerHandlers()
	return nil
}

// Close does nothing.
func (o *VnetOrch) Close() error {
	return nil
}

// HandlesEvent selects resync events and changes of VNET intents.
func (o *VnetOrch) HandlesEvent(event controller.Event) bool {
	if event.Method() == controller.Resync {
		return true
	}
	if change, isChange := event.(*controller.IntentChange); isChange {
		switch change.Table {
		case model.VxlanTunnelKeyword, model.VnetKeyword, model.VnetInterfaceKeyword,
			model.VnetRouteKeyword, model.VnetRouteTunnelKeyword, model.VnetNeighborKeyword:
			return true
		}
	}
	return false
}

// Resync forgets all programmed VNETs. Intents are then re-applied one by one
// through Update.
func (o *VnetOrch) Resync(event controller.Event, txn controller.ResyncOperations,
	intents controller.IntentSnapshot, resyncCount int) error {

	o.Lock()
	defer o.Unlock()
	o.st = newState()
	o.saved = nil
	return o.initBitPool()
}

// Update reconciles device objects with the changed intent.
func (o *VnetOrch) Update(event controller.Event, txn controller.UpdateOperations) (change string, err error) {
	intentChange, isChange := event.(*controller.IntentChange)
	if !isChange {
		return "", nil
	}

	o.Lock()
	defer o.Unlock()

	key, values := intentChange.Key, intentChange.Values
	switch intentChange.Table {
	case model.VxlanTunnelKeyword:
		if intentChange.IsDelete() {
			return o.deleteVxlanTunnel(key)
		}
		return o.setVxlanTunnel(key, values)
	case model.VnetKeyword:
		if intentChange.IsDelete() {
			return o.deleteVnet(key, txn)
		}
		return o.setVnet(key, values, txn)
	case model.VnetInterfaceKeyword:
		if intentChange.IsDelete() {
			return o.deleteMember(key, txn)
		}
		return o.setMember(key, values, txn)
	case model.VnetRouteKeyword, model.VnetRouteTunnelKeyword:
		if intentChange.IsDelete() {
			return o.deleteRoute(intentChange.Table, key, txn)
		}
		return o.setRoute(intentChange.Table, key, values, txn)
	case model.VnetNeighborKeyword:
		if intentChange.IsDelete() {
			return o.deleteNeighbor(key, txn)
		}
		return o.setNeighbor(key, values, txn)
	}
	return "", nil
}

// Checkpoint remembers the internal state.
func (o *VnetOrch) Checkpoint() {
	o.Lock()
	defer o.Unlock()
	o.saved = o.st.clone()
}

// Rollback restores the internal state remembered by the last Checkpoint.
func (o *VnetOrch) Rollback() {
	o.Lock()
	defer o.Unlock()
	if o.saved == nil {
		return
	}
	o.st = o.saved
	o.saved = nil
}

// GetVnets returns all programmed VNETs ordered by name.
func (o *VnetOrch) GetVnets() (vnets []*VnetInfo) {
	o.Lock()
	defer o.Unlock()
	for name := range o.st.vnets {
		vnets = append(vnets, o.vnetInfo(name))
	}
	sort.Slice(vnets, func(i, j int) bool {
		return vnets[i].Name < vnets[j].Name
	})
	return vnets
}

// GetVnet returns programmed VNET with the given name.
func (o *VnetOrch) GetVnet(name string) (vnet *VnetInfo, exists bool) {
	o.Lock()
	defer o.Unlock()
	if _, exists = o.st.vnets[name]; !exists {
		return nil, false
	}
	return o.vnetInfo(name), true
}

// ForwardingTable reads forwarding entries of the VNET from the Device State Store.
func (o *VnetOrch) ForwardingTable(vnetName string) ([]asicdb.Route, error) {
	o.Lock()
	v, exists := o.st.vnets[vnetName]
	o.Unlock()
	if !exists {
		return nil, errors.Wrapf(controller.ErrUnknownVnet, "VNET %s", vnetName)
	}
	return v.repr.routes(o.StateDB.DeviceDB(), v)
}

// Resolve returns the longest-prefix-match forwarding entry of the VNET.
func (o *VnetOrch) Resolve(vnetName string, ip net.IP) (route asicdb.Route, found bool, err error) {
	routes, err := o.ForwardingTable(vnetName)
	if err != nil {
		return route, false, err
	}
	route, found = asicdb.Lookup(routes, ip)
	return route, found, nil
}

// newRepresentation returns representation for a new VNET.
func (o *VnetOrch) newRepresentation() representation {
	if o.OrchConf.BitmapVnetSupported() {
		return bitmapRepr{o: o}
	}
	return legacyRepr{}
}

func (o *VnetOrch) initBitPool() error {
	size := o.OrchConf.GetVnetBitmapSize()
	if size == 0 {
		return nil
	}
	return o.IDAlloc.InitPool(vnetBitPool, &idalloc.Range{MinID: 0, MaxID: size - 1})
}

// vnetInfo assumes that VnetOrch is in the locked state.
func (o *VnetOrch) vnetInfo(name string) *VnetInfo {
	v := o.st.vnets[name]
	info := &VnetInfo{
		Name:          name,
		VxlanTunnel:   v.intent.VxlanTunnel,
		VNI:           v.intent.VNI,
		Mode:          v.repr.String(),
		VirtualRouter: v.vr,
	}
	if info.Mode == BitmapMode {
		info.Bit = v.bit
	}
	for ifName, m := range o.st.members {
		if m.intent.Vnet == name {
			info.Members = append(info.Members, ifName)
		}
	}
	for key, r := range o.st.routes {
		if r.vnet == name {
			info.Routes = append(info.Routes, key)
		}
	}
	sort.Strings(info.Members)
	sort.Strings(info.Routes)
	return info
}

// release drops one reference of the object and removes the object with
// the last reference. OID of a removed object is returned to the pool
// under <label>.
func (o *VnetOrch) release(oid asicdb.OID, label string, txn controller.UpdateOperations) (destroyed bool, err error) {
	destroyed, err = o.RefCount.Release(string(oid))
	if err != nil || !destroyed {
		return false, err
	}
	objType, _, err := asicdb.ParseOID(string(oid))
	if err != nil {
		return false, controller.NewFatalError(err)
	}
	txn.Delete(objType.Table(), string(oid))
	if label != "" {
		if err = o.SwitchInit.ReleaseOID(objType, label); err != nil {
			return false, err
		}
	}
	return true, nil
}

func notReady(format string, args ...interface{}) error {
	return errors.Wrapf(controller.ErrDependencyNotReady, format, args...)
}

func inUse(what string, dependents []string) error {
	sort.Strings(dependents)
	return errors.Wrapf(controller.ErrInUse, "%s is used by %s", what, strings.Join(dependents, ", "))
}
