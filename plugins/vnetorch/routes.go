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

func (o *VnetOrch) setRoute(table, key string, values *statedb.FieldValues, txn controller.UpdateOperations) (change string, err error) {
	r, err := parseRoute(table, key, values)
	if err != nil {
		o.Log.Warn(err)
		return "", err
	}
	routeKey := model.RouteKey(r.vnet, r.prefix.String())
	if prev, exists := o.st.routes[routeKey]; exists {
		if prev.table != table || prev.intentKey != key {
			return "", errors.Wrapf(controller.ErrInvalidConfig, "%s|%s: route already defined by %s|%s",
				table, key, prev.table, prev.intentKey)
		}
		if prev.equal(r) {
			return "", nil
		}
		if _, err = o.deleteRoute(table, key, txn); err != nil {
			return "", err
		}
		if change, err = o.createRoute(r, txn); err != nil {
			return "", err
		}
		return "re-" + change, nil
	}
	return o.createRoute(r, txn)
}

func parseRoute(table, key string, values *statedb.FieldValues) (*route, error) {
	if table == model.VnetRouteKeyword {
		intent, err := model.ParseVnetRoute(key, values)
		if err != nil {
			return nil, err
		}
		return &route{table: table, intentKey: key, vnet: intent.Vnet, prefix: intent.Prefix,
			ifName: intent.IfName}, nil
	}
	intent, err := model.ParseVnetTunnelRoute(key, values)
	if err != nil {
		return nil, err
	}
	return &route{table: table, intentKey: key, vnet: intent.Vnet, prefix: intent.Prefix,
		tunnelRoute: intent}, nil
}

func (o *VnetOrch) createRoute(r *route, txn controller.UpdateOperations) (change string, err error) {
	v, exists := o.st.vnets[r.vnet]
	if !exists {
		return "", notReady("VNET %s of route %s", r.vnet, r.intentKey)
	}

	var via string
	if r.tunnelRoute == nil {
		m, bound := o.st.members[r.ifName]
		if !bound || m.intent.Vnet != r.vnet {
			return "", notReady("interface %s of route %s", r.ifName, r.intentKey)
		}
		r.target = m.rif
		o.RefCount.Acquire(string(r.target))
		via = r.ifName
	} else {
		nh, err := o.acquireNextHop(v, r.tunnelRoute, txn)
		if err != nil {
			return "", err
		}
		r.target = nh.oid
		r.nextHop = nh.label
		via = "endpoint " + r.tunnelRoute.Endpoint.String()
	}
	if err = v.repr.addRoute(v, r, txn); err != nil {
		return "", err
	}

	o.st.routes[model.RouteKey(r.vnet, r.prefix.String())] = r
	return fmt.Sprintf("added route %s in VNET %s via %s", r.prefix, r.vnet, via), nil
}

func (o *VnetOrch) deleteRoute(table, key string, txn controller.UpdateOperations) (change string, err error) {
	vnetName, prefix, err := model.ParseRouteKey(key)
	if err != nil {
		return "", errors.Wrapf(controller.ErrUnknownVnet, "route %s", key)
	}
	routeKey := model.RouteKey(vnetName, prefix.String())
	r, exists := o.st.routes[routeKey]
	if !exists || r.table != table || r.intentKey != key {
		return "", errors.Wrapf(controller.ErrUnknownVnet, "route %s", key)
	}
	v, exists := o.st.vnets[r.vnet]
	if !exists {
		return "", controller.NewFatalError(errors.Errorf("VNET %s of route %s not found", r.vnet, key))
	}

	if err = v.repr.delRoute(v, r, txn); err != nil {
		return "", err
	}
	if r.tunnelRoute == nil {
		_, err = o.release(r.target, "", txn)
	} else {
		err = o.releaseNextHop(r.nextHop, txn)
	}
	if err != nil {
		return "", err
	}

	delete(o.st.routes, routeKey)
	return fmt.Sprintf("removed route %s from VNET %s", r.prefix, r.vnet), nil
}

// equal returns true if both routes forward the same prefix the same way.
func (r *route) equal(r2 *route) bool {
	if r.table != r2.table || r.vnet != r2.vnet || r.prefix.String() != r2.prefix.String() ||
		r.ifName != r2.ifName {
		return false
	}
	if r.tunnelRoute == nil || r2.tunnelRoute == nil {
		return r.tunnelRoute == r2.tunnelRoute
	}
	t1, t2 := r.tunnelRoute, r2.tunnelRoute
	return t1.Endpoint.Equal(t2.Endpoint) && t1.MAC == t2.MAC && t1.VNI == t2.VNI
}

/********************************* Next hops **********************************/

// acquireNextHop returns tunnel-encap next hop for the route, shared by all
// routes with the same VXLAN tunnel, endpoint, MAC and VNI.
func (o *VnetOrch) acquireNextHop(v *vnet, tr *model.VnetTunnelRoute, txn controller.UpdateOperations) (*nextHop, error) {
	t, exists := o.st.vxlanTunnels[v.intent.VxlanTunnel]
	if !exists || t.tunnel == "" {
		return nil, controller.NewFatalError(
			errors.Errorf("VXLAN tunnel %s of VNET %s is not programmed", v.intent.VxlanTunnel, v.intent.Name))
	}
	vni := tr.VNI
	if vni == 0 {
		vni = v.intent.VNI
	}
	label := nextHopLabel(t.intent.Name, tr.Endpoint.String(), tr.MAC, vni)

	nh, exists := o.st.nextHops[label]
	if !exists {
		oid, err := o.SwitchInit.AllocateOID(asicdb.ObjectTypeNextHop, label)
		if err != nil {
			return nil, err
		}
		values := statedb.NewFieldValues(
			asicdb.NextHopAttrType, asicdb.NextHopTypeTunnelEncap,
			asicdb.NextHopAttrIP, tr.Endpoint.String(),
			asicdb.NextHopAttrTunnelID, string(t.tunnel),
			asicdb.NextHopAttrTunnelVNI, fmt.Sprint(vni),
		)
		if tr.MAC != "" {
			values.Set(asicdb.NextHopAttrTunnelMAC, tr.MAC)
		}
		txn.Put(asicdb.ObjectTypeNextHop.Table(), string(oid), values)
		o.RefCount.Acquire(string(t.tunnel))
		nh = &nextHop{label: label, oid: oid, tunnel: t.tunnel}
		o.st.nextHops[label] = nh
	}
	o.RefCount.Acquire(string(nh.oid))
	return nh, nil
}

func (o *VnetOrch) releaseNextHop(label string, txn controller.UpdateOperations) error {
	nh, exists := o.st.nextHops[label]
	if !exists {
		return controller.NewFatalError(errors.Errorf("next hop %s not found", label))
	}
	destroyed, err := o.release(nh.oid, label, txn)
	if err != nil || !destroyed {
		return err
	}
	delete(o.st.nextHops, label)
	_, err = o.release(nh.tunnel, "", txn)
	return err
}

func nextHopLabel(tunnel, endpoint, mac string, vni uint32) string {
	return fmt.Sprintf("nexthop/%s/%s/%s/%d", tunnel, endpoint, mac, vni)
}

func bitmapEntryLabel(prefix string, target asicdb.OID) string {
	return "bitmap/" + prefix + "/" + string(target)
}
