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

/****************************** Member interfaces *****************************/

func (o *VnetOrch) setMember(ifName string, values *statedb.FieldValues, txn controller.UpdateOperations) (change string, err error) {
	intent, err := model.ParseVnetInterface(ifName, values)
	if err != nil {
		o.Log.Warn(err)
		return "", err
	}
	if prev, exists := o.st.members[ifName]; exists {
		if *prev.intent == *intent {
			return "", nil
		}
		if dependents := o.st.memberDependents(ifName); len(dependents) > 0 {
			return "", inUse("interface "+ifName, dependents)
		}
		if _, err = o.deleteMember(ifName, txn); err != nil {
			return "", err
		}
		if change, err = o.createMember(intent, txn); err != nil {
			return "", err
		}
		return "re-" + change, nil
	}
	return o.createMember(intent, txn)
}

func (o *VnetOrch) createMember(intent *model.VnetInterface, txn controller.UpdateOperations) (change string, err error) {
	port, exists := o.SwitchInit.GetPortOID(intent.IfName)
	if !exists {
		return "", errors.Wrapf(controller.ErrInvalidConfig, "%s|%s: unknown port",
			model.VnetInterfaceKeyword, intent.IfName)
	}
	v, exists := o.st.vnets[intent.Vnet]
	if !exists {
		return "", notReady("VNET %s of interface %s", intent.Vnet, intent.IfName)
	}

	m := &member{intent: intent, port: port}
	if m.rif, err = o.allocate(asicdb.ObjectTypeRouterInterface, memberLabel(intent.IfName)); err != nil {
		return "", err
	}
	o.RefCount.Acquire(string(v.vr))
	o.RefCount.Acquire(string(port))
	txn.Put(asicdb.ObjectTypeRouterInterface.Table(), string(m.rif), statedb.NewFieldValues(
		asicdb.RouterInterfaceAttrVirtualRouterID, string(v.vr),
		asicdb.RouterInterfaceAttrType, asicdb.RouterInterfaceTypePort,
		asicdb.RouterInterfaceAttrPortID, string(port),
		asicdb.RouterInterfaceAttrSrcMACAddress, o.SwitchInit.RouterMAC(),
	))
	if err = v.repr.addMember(v, m, txn); err != nil {
		return "", err
	}

	o.st.members[intent.IfName] = m
	return fmt.Sprintf("bound interface %s to VNET %s (RIF %s)", intent.IfName, intent.Vnet, m.rif), nil
}

func (o *VnetOrch) deleteMember(ifName string, txn controller.UpdateOperations) (change string, err error) {
	m, exists := o.st.members[ifName]
	if !exists {
		return "", errors.Wrapf(controller.ErrUnknownVnet, "interface %s is not bound", ifName)
	}
	if dependents := o.st.memberDependents(ifName); len(dependents) > 0 {
		return "", inUse("interface "+ifName, dependents)
	}
	v, exists := o.st.vnets[m.intent.Vnet]
	if !exists {
		return "", controller.NewFatalError(
			errors.Errorf("VNET %s of interface %s not found", m.intent.Vnet, ifName))
	}

	if err = v.repr.delMember(v, m, txn); err != nil {
		return "", err
	}
	if _, err = o.release(m.rif, memberLabel(ifName), txn); err != nil {
		return "", err
	}
	if _, err = o.release(v.vr, "", txn); err != nil {
		return "", err
	}
	if _, err = o.release(m.port, "", txn); err != nil {
		return "", err
	}

	delete(o.st.members, ifName)
	return fmt.Sprintf("unbound interface %s from VNET %s", ifName, m.intent.Vnet), nil
}

/********************************* Neighbors **********************************/

func (o *VnetOrch) setNeighbor(key string, values *statedb.FieldValues, txn controller.UpdateOperations) (change string, err error) {
	intent, err := model.ParseVnetNeighbor(key, values)
	if err != nil {
		o.Log.Warn(err)
		return "", err
	}
	prev, exists := o.st.neighbors[key]
	if exists && prev.intent.MAC == intent.MAC {
		return "", nil
	}
	m, bound := o.st.members[intent.IfName]
	if !bound {
		return "", notReady("interface %s of neighbor %s", intent.IfName, key)
	}
	if exists {
		if _, err = o.deleteNeighbor(key, txn); err != nil {
			return "", err
		}
	}

	n := &neighbor{
		intent: intent,
		rif:    m.rif,
		entry:  asicdb.NeighborEntryKey{IP: intent.IP.String(), RIF: m.rif}.String(),
	}
	o.RefCount.Acquire(string(n.rif))
	txn.Put(asicdb.ObjectTypeNeighborEntry.Table(), n.entry, statedb.NewFieldValues(
		asicdb.NeighborEntryAttrDstMACAddress, intent.MAC,
	))

	o.st.neighbors[key] = n
	return fmt.Sprintf("added neighbor %s (%s) on %s", intent.IP, intent.MAC, intent.IfName), nil
}

func (o *VnetOrch) deleteNeighbor(key string, txn controller.UpdateOperations) (change string, err error) {
	n, exists := o.st.neighbors[key]
	if !exists {
		return "", errors.Wrapf(controller.ErrUnknownVnet, "neighbor %s", key)
	}
	txn.Delete(asicdb.ObjectTypeNeighborEntry.Table(), n.entry)
	if _, err = o.release(n.rif, "", txn); err != nil {
		return "", err
	}
	delete(o.st.neighbors, key)
	return "removed neighbor " + key, nil
}

func memberLabel(ifName string) string {
	return "member/" + ifName + "/rif"
}

func classEntryLabel(ifName string) string {
	return "member/" + ifName + "/class"
}
