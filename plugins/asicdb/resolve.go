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

package asicdb

import (
	"fmt"
	"net"
	"sort"

	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/statedb"
)

// Route is a representation-independent view of a forwarding entry.
type Route struct {
	Prefix string // canonical prefix
	Target string // description of the resolved next hop
}

// LegacyRoutes returns forwarding entries programmed as ROUTE_ENTRY objects
// inside the given virtual router.
func LegacyRoutes(db statedb.DB, vr OID) ([]Route, error) {
	table := ObjectTypeRouteEntry.Table()
	keys, err := db.Keys(table)
	if err != nil {
		return nil, err
	}
	var routes []Route
	for _, key := range keys {
		routeKey, err := ParseRouteEntryKey(key)
		if err != nil {
			return nil, err
		}
		if routeKey.VR != vr {
			continue
		}
		values, found, err := db.Get(table, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		target, err := describeTarget(db, values.GetOr(RouteEntryAttrNextHopID, ""))
		if err != nil {
			return nil, err
		}
		route, err := newRoute(routeKey.Dest, target)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	sortRoutes(routes)
	return routes, nil
}

// BitmapRoutes returns forwarding entries programmed as TABLE_BITMAP_ROUTER_ENTRY
// objects that match traffic tagged with the given VNET bit.
func BitmapRoutes(db statedb.DB, vnetBit uint) ([]Route, error) {
	table := ObjectTypeTableBitmapRouterEntry.Table()
	keys, err := db.Keys(table)
	if err != nil {
		return nil, err
	}
	var routes []Route
	for _, key := range keys {
		values, found, err := db.Get(table, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		metadata, _ := ParseBitmap(values.GetOr(BitmapRouterAttrInRIFMetadataKey, ""))
		mask, _ := ParseBitmap(values.GetOr(BitmapRouterAttrInRIFMetadataMask, ""))
		if metadata&mask&(1<<vnetBit) == 0 {
			continue
		}
		targetOID := values.GetOr(BitmapRouterAttrNextHop, "")
		if action, _ := values.Get(BitmapRouterAttrAction); action == BitmapRouterActionToLocal {
			targetOID = values.GetOr(BitmapRouterAttrRouterInterface, "")
		}
		target, err := describeTarget(db, targetOID)
		if err != nil {
			return nil, err
		}
		route, err := newRoute(values.GetOr(BitmapRouterAttrDstIPKey, ""), target)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	sortRoutes(routes)
	return routes, nil
}

// Lookup returns the longest-prefix match for the IP address.
func Lookup(routes []Route, ip net.IP) (match Route, found bool) {
	bestLen := -1
	for _, route := range routes {
		_, ipNet, err := net.ParseCIDR(route.Prefix)
		if err != nil || !ipNet.Contains(ip) {
			continue
		}
		if ones, _ := ipNet.Mask.Size(); ones > bestLen {
			bestLen = ones
			match = route
			found = true
		}
	}
	return match, found
}

func newRoute(prefix, target string) (Route, error) {
	ipNet, err := NormalizePrefix(prefix)
	if err != nil {
		return Route{}, err
	}
	return Route{Prefix: ipNet.String(), Target: target}, nil
}

// describeTarget resolves next-hop object into a description independent of OIDs
// allocated by the orchestrator (ports are created first, their OIDs are stable).
func describeTarget(db statedb.DB, oid string) (string, error) {
	objType, _, err := ParseOID(oid)
	if err != nil {
		return "", errors.Wrap(err, "invalid route target")
	}
	values, found, err := db.Get(objType.Table(), oid)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.Errorf("route target %s does not exist", oid)
	}
	switch objType {
	case ObjectTypeRouterInterface:
		return "port:" + values.GetOr(RouterInterfaceAttrPortID, ""), nil
	case ObjectTypeNextHop:
		if values.GetOr(NextHopAttrType, "") == NextHopTypeTunnelEncap {
			return fmt.Sprintf("tunnel:%s vni=%s mac=%s", values.GetOr(NextHopAttrIP, ""),
				values.GetOr(NextHopAttrTunnelVNI, "-"), values.GetOr(NextHopAttrTunnelMAC, "-")), nil
		}
		rifTarget, err := describeTarget(db, values.GetOr(NextHopAttrRouterInterface, ""))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ip:%s via %s", values.GetOr(NextHopAttrIP, ""), rifTarget), nil
	}
	return "", errors.Errorf("unexpected route target %s", oid)
}

func sortRoutes(routes []Route) {
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Prefix != routes[j].Prefix {
			return routes[i].Prefix < routes[j].Prefix
		}
		return routes[i].Target < routes[j].Target
	})
}
