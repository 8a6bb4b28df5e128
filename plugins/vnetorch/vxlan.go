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
	"fmt"

	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
	"github.com/contiv/orchagent/plugins/vnetorch/model"
)

/******************************* VXLAN tunnels ********************************/

// setVxlanTunnel registers VXLAN tunnel intent. Device objects are created
// later, by the first VNET bound to the tunnel.
// The method assumes that VnetOrch is in the locked state (applies to all
// methods below).
func (o *VnetOrch) setVxlanTunnel(name string, values *statedb.FieldValues) (change string, err error) {
	intent, err := model.ParseVxlanTunnel(name, values)
	if err != nil {
		o.Log.Warn(err)
		return "", err
	}
	if prev, exists := o.st.vxlanTunnels[name]; exists {
		if prev.intent.SrcIP.Equal(intent.SrcIP) {
			return "", nil
		}
		if vnets := o.st.vnetsOfTunnel(name); len(vnets) > 0 {
			return "", inUse("VXLAN tunnel "+name, vnets)
		}
	}
	o.st.vxlanTunnels[name] = &vxlanTunnel{intent: intent}
	return fmt.Sprintf("registered VXLAN tunnel %s (src %s)", name, intent.SrcIP), nil
}

func (o *VnetOrch) deleteVxlanTunnel(name string) (change string, err error) {
	if _, exists := o.st.vxlanTunnels[name]; !exists {
		return "", errors.Wrapf(controller.ErrUnknownTunnel, "VXLAN tunnel %s", name)
	}
	if vnets := o.st.vnetsOfTunnel(name); len(vnets) > 0 {
		return "", inUse("VXLAN tunnel "+name, vnets)
	}
	delete(o.st.vxlanTunnels, name)
	return "unregistered VXLAN tunnel " + name, nil
}

// bindVxlanTunnel acquires one reference of the VXLAN tunnel object for a VNET,
// creating the tunnel objects for the first VNET.
func (o *VnetOrch) bindVxlanTunnel(name string, txn controller.UpdateOperations) (*vxlanTunnel, error) {
	t, exists := o.st.vxlanTunnels[name]
	if !exists {
		return nil, notReady("VXLAN tunnel %s", name)
	}
	if t.tunnel == "" {
		programmed, err := o.createVxlanTunnel(t.intent, txn)
		if err != nil {
			return nil, err
		}
		o.st.vxlanTunnels[name] = programmed
		t = programmed
	}
	o.RefCount.Acquire(string(t.tunnel))
	return t, nil
}

// unbindVxlanTunnel releases reference of the VXLAN tunnel object held by a VNET,
// removing the tunnel objects with the last VNET.
func (o *VnetOrch) unbindVxlanTunnel(name string, txn controller.UpdateOperations) error {
	t, exists := o.st.vxlanTunnels[name]
	if !exists || t.tunnel == "" {
		return controller.NewFatalError(errors.Errorf("VXLAN tunnel %s is not programmed", name))
	}
	destroyed, err := o.RefCount.Release(string(t.tunnel))
	if err != nil || !destroyed {
		return err
	}
	label := vxlanLabel(name)

	// termination entry, tunnel object, tunnel maps
	txn.Delete(asicdb.ObjectTypeTunnelTermTableEntry.Table(), string(t.termEntry))
	if err = o.SwitchInit.ReleaseOID(asicdb.ObjectTypeTunnelTermTableEntry, label+"/term"); err != nil {
		return err
	}
	txn.Delete(asicdb.ObjectTypeTunnel.Table(), string(t.tunnel))
	if err = o.SwitchInit.ReleaseOID(asicdb.ObjectTypeTunnel, label); err != nil {
		return err
	}
	if _, err = o.release(t.encapMap, label+"/encap-map", txn); err != nil {
		return err
	}
	if _, err = o.release(t.decapMap, label+"/decap-map", txn); err != nil {
		return err
	}
	if _, err = o.release(t.vr, "", txn); err != nil {
		return err
	}
	if _, err = o.release(t.underlay, "", txn); err != nil {
		return err
	}
	o.SwitchInit.ReleaseDestination(t.intent.SrcIP.String(), label)

	o.st.vxlanTunnels[name] = &vxlanTunnel{intent: t.intent}
	return nil
}

func (o *VnetOrch) createVxlanTunnel(intent *model.VxlanTunnel, txn controller.UpdateOperations) (*vxlanTunnel, error) {
	label := vxlanLabel(intent.Name)
	srcIP := intent.SrcIP.String()
	if err := o.SwitchInit.ClaimDestination(srcIP, label); err != nil {
		return nil, err
	}

	t := &vxlanTunnel{
		intent:   intent,
		vr:       o.SwitchInit.DefaultVirtualRouter(),
		underlay: o.SwitchInit.UnderlayInterface(),
	}
	o.RefCount.Acquire(string(t.vr))
	o.RefCount.Acquire(string(t.underlay))

	var err error
	if t.encapMap, err = o.allocate(asicdb.ObjectTypeTunnelMap, label+"/encap-map"); err != nil {
		return nil, err
	}
	txn.Put(asicdb.ObjectTypeTunnelMap.Table(), string(t.encapMap), statedb.NewFieldValues(
		asicdb.TunnelMapAttrType, asicdb.TunnelMapTypeVRToVNI,
	))
	if t.decapMap, err = o.allocate(asicdb.ObjectTypeTunnelMap, label+"/decap-map"); err != nil {
		return nil, err
	}
	txn.Put(asicdb.ObjectTypeTunnelMap.Table(), string(t.decapMap), statedb.NewFieldValues(
		asicdb.TunnelMapAttrType, asicdb.TunnelMapTypeVNIToVR,
	))

	if t.tunnel, err = o.SwitchInit.AllocateOID(asicdb.ObjectTypeTunnel, label); err != nil {
		return nil, err
	}
	txn.Put(asicdb.ObjectTypeTunnel.Table(), string(t.tunnel), statedb.NewFieldValues(
		asicdb.TunnelAttrType, asicdb.TunnelTypeVXLAN,
		asicdb.TunnelAttrUnderlayInterface, string(t.underlay),
		asicdb.TunnelAttrEncapSrcIP, srcIP,
		asicdb.TunnelAttrEncapMappers, asicdb.FormatOIDList(t.encapMap),
		asicdb.TunnelAttrDecapMappers, asicdb.FormatOIDList(t.decapMap),
	))

	if t.termEntry, err = o.SwitchInit.AllocateOID(asicdb.ObjectTypeTunnelTermTableEntry, label+"/term"); err != nil {
		return nil, err
	}
	txn.Put(asicdb.ObjectTypeTunnelTermTableEntry.Table(), string(t.termEntry), statedb.NewFieldValues(
		asicdb.TunnelTermAttrVRID, string(t.vr),
		asicdb.TunnelTermAttrType, asicdb.TunnelTermTypeP2MP,
		asicdb.TunnelTermAttrTunnelType, asicdb.TunnelTypeVXLAN,
		asicdb.TunnelTermAttrActionTunnelID, string(t.tunnel),
		asicdb.TunnelTermAttrDstIP, srcIP,
	))
	return t, nil
}

/*********************************** VNETs ************************************/

func (o *VnetOrch) setVnet(name string, values *statedb.FieldValues, txn controller.UpdateOperations) (change string, err error) {
	intent, err := model.ParseVnet(name, values)
	if err != nil {
		o.Log.Warn(err)
		return "", err
	}
	if prev, exists := o.st.vnets[name]; exists {
		if *prev.intent == *intent {
			return "", nil
		}
		if dependents := o.st.vnetDependents(name); len(dependents) > 0 {
			return "", inUse("VNET "+name, dependents)
		}
		if _, err = o.deleteVnet(name, txn); err != nil {
			return "", err
		}
		if change, err = o.createVnet(intent, txn); err != nil {
			return "", err
		}
		return "re-" + change, nil
	}
	return o.createVnet(intent, txn)
}

func (o *VnetOrch) createVnet(intent *model.Vnet, txn controller.UpdateOperations) (change string, err error) {
	t, err := o.bindVxlanTunnel(intent.VxlanTunnel, txn)
	if err != nil {
		return "", err
	}

	v := &vnet{intent: intent, repr: o.newRepresentation()}
	if v.repr.String() == BitmapMode {
		if v.bit, err = o.IDAlloc.GetOrAllocateID(vnetBitPool, intent.Name); err != nil {
			return "", errors.Wrapf(err, "VNET %s", intent.Name)
		}
	}

	label := vnetLabel(intent.Name)
	if v.vr, err = o.allocate(asicdb.ObjectTypeVirtualRouter, label+"/vr"); err != nil {
		return "", err
	}
	txn.Put(asicdb.ObjectTypeVirtualRouter.Table(), string(v.vr), statedb.NewFieldValues(
		asicdb.VirtualRouterAttrAdminV4State, asicdb.True,
		asicdb.VirtualRouterAttrAdminV6State, asicdb.True,
		asicdb.VirtualRouterAttrSrcMACAddress, o.SwitchInit.RouterMAC(),
	))

	vni := fmt.Sprint(intent.VNI)
	if v.encapEntry, err = o.SwitchInit.AllocateOID(asicdb.ObjectTypeTunnelMapEntry, label+"/encap"); err != nil {
		return "", err
	}
	txn.Put(asicdb.ObjectTypeTunnelMapEntry.Table(), string(v.encapEntry), statedb.NewFieldValues(
		asicdb.TunnelMapEntryAttrType, asicdb.TunnelMapTypeVRToVNI,
		asicdb.TunnelMapEntryAttrMap, string(t.encapMap),
		asicdb.TunnelMapEntryAttrVRKey, string(v.vr),
		asicdb.TunnelMapEntryAttrVNIVal, vni,
	))
	if v.decapEntry, err = o.SwitchInit.AllocateOID(asicdb.ObjectTypeTunnelMapEntry, label+"/decap"); err != nil {
		return "", err
	}
	txn.Put(asicdb.ObjectTypeTunnelMapEntry.Table(), string(v.decapEntry), statedb.NewFieldValues(
		asicdb.TunnelMapEntryAttrType, asicdb.TunnelMapTypeVNIToVR,
		asicdb.TunnelMapEntryAttrMap, string(t.decapMap),
		asicdb.TunnelMapEntryAttrVNIKey, vni,
		asicdb.TunnelMapEntryAttrVRVal, string(v.vr),
	))

	o.st.vnets[intent.Name] = v
	return fmt.Sprintf("created %s VNET %s (VNI %d, VR %s)", v.repr, intent.Name, intent.VNI, v.vr), nil
}

func (o *VnetOrch) deleteVnet(name string, txn controller.UpdateOperations) (change string, err error) {
	v, exists := o.st.vnets[name]
	if !exists {
		return "", errors.Wrapf(controller.ErrUnknownVnet, "VNET %s", name)
	}
	if dependents := o.st.vnetDependents(name); len(dependents) > 0 {
		return "", inUse("VNET "+name, dependents)
	}
	label := vnetLabel(name)

	txn.Delete(asicdb.ObjectTypeTunnelMapEntry.Table(), string(v.encapEntry))
	if err = o.SwitchInit.ReleaseOID(asicdb.ObjectTypeTunnelMapEntry, label+"/encap"); err != nil {
		return "", err
	}
	txn.Delete(asicdb.ObjectTypeTunnelMapEntry.Table(), string(v.decapEntry))
	if err = o.SwitchInit.ReleaseOID(asicdb.ObjectTypeTunnelMapEntry, label+"/decap"); err != nil {
		return "", err
	}
	destroyed, err := o.release(v.vr, label+"/vr", txn)
	if err != nil {
		return "", err
	}
	if !destroyed {
		return "", controller.NewFatalError(
			errors.Errorf("virtual router %s of VNET %s still referenced after removal", v.vr, name))
	}
	if v.repr.String() == BitmapMode {
		if err = o.IDAlloc.ReleaseID(vnetBitPool, name); err != nil {
			return "", err
		}
	}
	if err = o.unbindVxlanTunnel(v.intent.VxlanTunnel, txn); err != nil {
		return "", err
	}

	delete(o.st.vnets, name)
	return fmt.Sprintf("removed VNET %s", name), nil
}

// allocate returns OID for a new object with one reference held by the caller.
func (o *VnetOrch) allocate(objType asicdb.ObjectType, label string) (asicdb.OID, error) {
	oid, err := o.SwitchInit.AllocateOID(objType, label)
	if err != nil {
		return asicdb.NullOID, err
	}
	o.RefCount.Acquire(string(oid))
	return oid, nil
}

func vxlanLabel(name string) string {
	return "vxlan/" + name
}

func vnetLabel(name string) string {
	return "vnet/" + name
}
