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

package tunnelorch

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/rpc/rest"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/refcount"
	"github.com/contiv/orchagent/plugins/switchinit"
	"github.com/contiv/orchagent/plugins/tunnelorch/model"
)

// TunnelOrch plugin reconciles IP-in-IP tunnel intents into a tunnel object,
// its overlay router interface and one termination entry per destination.
//
// Every tunnel holds one reference of the default virtual router, of the
// underlay interface and of its own overlay interface. The tunnel object is
// referenced by the tunnel itself and by each of its termination entries,
// which are therefore always removed before the tunnel object.
type TunnelOrch struct {
	Deps

	sync.Mutex
	tunnels      map[string]*tunnel // tunnel name -> programmed tunnel
	savedTunnels map[string]*tunnel
}

// Deps lists dependencies of the TunnelOrch plugin.
type Deps struct {
	infra.PluginDeps

	SwitchInit   switchinit.API
	RefCount     refcount.API
	HTTPHandlers rest.HTTPHandlers
}

// tunnel is never changed once created, which allows to checkpoint
// the map of tunnels by a shallow copy.
type tunnel struct {
	intent      *model.Tunnel
	vr          asicdb.OID
	underlay    asicdb.OID
	overlay     asicdb.OID
	tunnel      asicdb.OID
	termEntries map[string]asicdb.OID // destination IP -> entry OID
}

// Init initializes plugin internals and registers REST handlers.
func (t *TunnelOrch) Init() error {
	t.tunnels = make(map[string]*tunnel)
	t.registerHandlers()
	return nil
}

// Close does nothing.
func (t *TunnelOrch) Close() error {
	return nil
}

// HandlesEvent selects resync events and changes of tunnel intents.
func (t *TunnelOrch) HandlesEvent(event controller.Event) bool {
	if event.Method() == controller.Resync {
		return true
	}
	if change, isChange := event.(*controller.IntentChange); isChange {
		return change.Table == model.Keyword
	}
	return false
}

// Resync forgets all programmed tunnels. Tunnel intents are then re-applied
// one by one through Update.
func (t *TunnelOrch) Resync(event controller.Event, txn controller.ResyncOperations,
	intents controller.IntentSnapshot, resyncCount int) error {

	t.Lock()
	defer t.Unlock()
	t.tunnels = make(map[string]*tunnel)
	t.savedTunnels = nil
	t.Log.Debugf("Tunnel intents to re-apply: %d", len(intents[model.Keyword]))
	return nil
}

// Update creates, re-creates or removes tunnel for the changed intent.
func (t *TunnelOrch) Update(event controller.Event, txn controller.UpdateOperations) (change string, err error) {
	intentChange, isChange := event.(*controller.IntentChange)
	if !isChange {
		return "", nil
	}

	t.Lock()
	defer t.Unlock()

	if intentChange.IsDelete() {
		return t.deleteTunnel(intentChange.Key, txn)
	}

	intent, err := model.Parse(intentChange.Key, intentChange.Values)
	if err != nil {
		t.Log.Warn(err)
		return "", err
	}
	if prev, exists := t.tunnels[intent.Name]; exists {
		if prev.intent.Equal(intent) {
			return "", nil
		}
		if _, err = t.deleteTunnel(intent.Name, txn); err != nil {
			return "", err
		}
		change, err = t.createTunnel(intent, txn)
		if err != nil {
			return "", err
		}
		return "re-" + change, nil
	}
	return t.createTunnel(intent, txn)
}

// Checkpoint remembers the programmed tunnels.
func (t *TunnelOrch) Checkpoint() {
	t.Lock()
	defer t.Unlock()
	t.savedTunnels = make(map[string]*tunnel, len(t.tunnels))
	for name, tun := range t.tunnels {
		t.savedTunnels[name] = tun
	}
}

// Rollback restores the tunnels remembered by the last Checkpoint.
func (t *TunnelOrch) Rollback() {
	t.Lock()
	defer t.Unlock()
	if t.savedTunnels == nil {
		return
	}
	t.tunnels = t.savedTunnels
	t.savedTunnels = nil
}

// GetTunnels returns all programmed tunnels ordered by name.
func (t *TunnelOrch) GetTunnels() (tunnels []*TunnelInfo) {
	t.Lock()
	defer t.Unlock()
	for _, tun := range t.tunnels {
		tunnels = append(tunnels, tun.info())
	}
	sort.Slice(tunnels, func(i, j int) bool {
		return tunnels[i].Name < tunnels[j].Name
	})
	return tunnels
}

// GetTunnel returns programmed tunnel with the given name.
func (t *TunnelOrch) GetTunnel(name string) (tunnel *TunnelInfo, exists bool) {
	t.Lock()
	defer t.Unlock()
	tun, exists := t.tunnels[name]
	if !exists {
		return nil, false
	}
	return tun.info(), true
}

// createTunnel programs device objects of a new tunnel.
// The method assumes that TunnelOrch is in the locked state.
func (t *TunnelOrch) createTunnel(intent *model.Tunnel, txn controller.UpdateOperations) (change string, err error) {
	owner := ownerLabel(intent.Name)

	// 1. claim destinations
	for _, dst := range intent.DstIPStrings() {
		if err = t.SwitchInit.ClaimDestination(dst, owner); err != nil {
			t.Log.Warnf("Tunnel %s rejected: %v", intent.Name, err)
			return "", err
		}
	}

	tun := &tunnel{
		intent:      intent,
		vr:          t.SwitchInit.DefaultVirtualRouter(),
		underlay:    t.SwitchInit.UnderlayInterface(),
		termEntries: make(map[string]asicdb.OID),
	}
	t.RefCount.Acquire(string(tun.vr))
	t.RefCount.Acquire(string(tun.underlay))

	// 2. overlay interface
	tun.overlay, err = t.SwitchInit.AllocateOID(asicdb.ObjectTypeRouterInterface, overlayLabel(intent.Name))
	if err != nil {
		return "", err
	}
	t.RefCount.Acquire(string(tun.overlay))
	txn.Put(asicdb.ObjectTypeRouterInterface.Table(), string(tun.overlay), overlayInterface(tun.vr))

	// 3. tunnel object
	tun.tunnel, err = t.SwitchInit.AllocateOID(asicdb.ObjectTypeTunnel, ownerLabel(intent.Name))
	if err != nil {
		return "", err
	}
	t.RefCount.Acquire(string(tun.tunnel))
	txn.Put(asicdb.ObjectTypeTunnel.Table(), string(tun.tunnel), tunnelObject(intent, tun.overlay, tun.underlay))

	// 4. one termination entry per destination
	for _, dst := range intent.DstIPStrings() {
		entry, err := t.SwitchInit.AllocateOID(asicdb.ObjectTypeTunnelTermTableEntry, termEntryLabel(intent.Name, dst))
		if err != nil {
			return "", err
		}
		t.RefCount.Acquire(string(tun.tunnel))
		tun.termEntries[dst] = entry
		txn.Put(asicdb.ObjectTypeTunnelTermTableEntry.Table(), string(entry),
			terminationEntry(tun.vr, tun.tunnel, dst))
	}

	t.tunnels[intent.Name] = tun
	kind := "decap-only"
	if intent.IsSymmetric() {
		kind = "symmetric"
	}
	return fmt.Sprintf("created %s tunnel %s (%s, destinations: %s)", kind, intent.Name, tun.tunnel,
		strings.Join(intent.DstIPStrings(), ",")), nil
}

// deleteTunnel removes device objects of a tunnel: termination entries first,
// then the tunnel object and finally its overlay interface.
// The method assumes that TunnelOrch is in the locked state.
func (t *TunnelOrch) deleteTunnel(name string, txn controller.UpdateOperations) (change string, err error) {
	tun, exists := t.tunnels[name]
	if !exists {
		return "", errors.Wrapf(controller.ErrUnknownTunnel, "tunnel %s", name)
	}
	owner := ownerLabel(name)

	// 1. termination entries
	for _, dst := range tun.sortedDestinations() {
		entry := tun.termEntries[dst]
		txn.Delete(asicdb.ObjectTypeTunnelTermTableEntry.Table(), string(entry))
		if err = t.SwitchInit.ReleaseOID(asicdb.ObjectTypeTunnelTermTableEntry, termEntryLabel(name, dst)); err != nil {
			return "", err
		}
		if _, err = t.release(tun.tunnel, txn); err != nil {
			return "", err
		}
		t.SwitchInit.ReleaseDestination(dst, owner)
	}

	// 2. tunnel object
	destroyed, err := t.release(tun.tunnel, txn)
	if err != nil {
		return "", err
	}
	if !destroyed {
		return "", controller.NewFatalError(
			errors.Errorf("tunnel object %s of %s still referenced after removal of all termination entries",
				tun.tunnel, name))
	}
	if err = t.SwitchInit.ReleaseOID(asicdb.ObjectTypeTunnel, owner); err != nil {
		return "", err
	}

	// 3. overlay interface
	if _, err = t.release(tun.overlay, txn); err != nil {
		return "", err
	}
	if err = t.SwitchInit.ReleaseOID(asicdb.ObjectTypeRouterInterface, overlayLabel(name)); err != nil {
		return "", err
	}

	// 4. shared objects
	if _, err = t.release(tun.vr, txn); err != nil {
		return "", err
	}
	if _, err = t.release(tun.underlay, txn); err != nil {
		return "", err
	}

	delete(t.tunnels, name)
	return fmt.Sprintf("removed tunnel %s (%s)", name, tun.tunnel), nil
}

// release drops one reference of the object and removes the object once
// the last reference is gone.
func (t *TunnelOrch) release(oid asicdb.OID, txn controller.UpdateOperations) (destroyed bool, err error) {
	destroyed, err = t.RefCount.Release(string(oid))
	if err != nil {
		return false, err
	}
	if destroyed {
		objType, _, err := asicdb.ParseOID(string(oid))
		if err != nil {
			return false, controller.NewFatalError(err)
		}
		txn.Delete(objType.Table(), string(oid))
	}
	return destroyed, nil
}

func (tun *tunnel) sortedDestinations() (dsts []string) {
	for dst := range tun.termEntries {
		dsts = append(dsts, dst)
	}
	sort.Strings(dsts)
	return dsts
}

func (tun *tunnel) info() *TunnelInfo {
	info := &TunnelInfo{
		Name:               tun.intent.Name,
		Symmetric:          tun.intent.IsSymmetric(),
		Tunnel:             tun.tunnel,
		OverlayInterface:   tun.overlay,
		VirtualRouter:      tun.vr,
		TerminationEntries: make(map[string]asicdb.OID, len(tun.termEntries)),
	}
	for dst, entry := range tun.termEntries {
		info.TerminationEntries[dst] = entry
	}
	return info
}

func ownerLabel(name string) string {
	return "tunnel/" + name
}

func overlayLabel(name string) string {
	return "tunnel/" + name + "/overlay"
}

func termEntryLabel(name, dst string) string {
	return "tunnel/" + name + "/term/" + dst
}
