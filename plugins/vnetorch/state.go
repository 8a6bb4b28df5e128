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

	"github.com/bits-and-blooms/bitset"

	"github.com/contiv/orchagent/plugins/asicdb"
	"github.com/contiv/orchagent/plugins/vnetorch/model"
)

// Entries of the internal state are never modified once inserted, an updated
// entry is always a new copy. The state can be therefore checkpointed by
// copying the maps.
type state struct {
	vxlanTunnels  map[string]*vxlanTunnel // tunnel name -> VXLAN tunnel
	vnets         map[string]*vnet        // VNET name -> VNET
	members       map[string]*member      // interface name -> member
	routes        map[string]*route       // "<vnet>:<prefix>" -> route
	neighbors     map[string]*neighbor    // "<ifname>:<ip>" -> neighbor
	nextHops      map[string]*nextHop     // next hop label -> tunnel next hop
	bitmapEntries map[string]*bitmapEntry // entry label -> shared bitmap router entry
}

// vxlanTunnel device objects are created when the first VNET binds the tunnel.
type vxlanTunnel struct {
	intent *model.VxlanTunnel

	tunnel    asicdb.OID
	encapMap  asicdb.OID
	decapMap  asicdb.OID
	termEntry asicdb.OID
	vr        asicdb.OID
	underlay  asicdb.OID
}

type vnet struct {
	intent *model.Vnet
	repr   representation

	vr         asicdb.OID
	encapEntry asicdb.OID
	decapEntry asicdb.OID
	bit        uint32 // bitmap representation only
}

type member struct {
	intent *model.VnetInterface

	port       asicdb.OID
	rif        asicdb.OID
	classEntry asicdb.OID // bitmap representation only
}

type route struct {
	table     string // VNET_ROUTE_TABLE or VNET_ROUTE_TUNNEL_TABLE
	intentKey string
	vnet      string
	prefix    *net.IPNet

	ifName      string                 // local route
	tunnelRoute *model.VnetTunnelRoute // tunnel route

	target  asicdb.OID // router interface or next hop
	nextHop string     // label of the shared next hop (tunnel route)
	entry   string     // key of the programmed forwarding entry
}

type neighbor struct {
	intent *model.VnetNeighbor
	rif    asicdb.OID
	entry  string
}

type nextHop struct {
	label  string
	oid    asicdb.OID
	tunnel asicdb.OID // VXLAN tunnel object
}

// bitmapEntry is TABLE_BITMAP_ROUTER_ENTRY shared by all VNETs routing
// the same prefix to the same target.
type bitmapEntry struct {
	label  string
	oid    asicdb.OID
	prefix *net.IPNet
	target asicdb.OID
	local  bool
	vnets  *bitset.BitSet // bits of VNETs using the entry
}

func newState() *state {
	return &state{
		vxlanTunnels:  make(map[string]*vxlanTunnel),
		vnets:         make(map[string]*vnet),
		members:       make(map[string]*member),
		routes:        make(map[string]*route),
		neighbors:     make(map[string]*neighbor),
		nextHops:      make(map[string]*nextHop),
		bitmapEntries: make(map[string]*bitmapEntry),
	}
}

func (s *state) clone() *state {
	dup := newState()
	for k, v := range s.vxlanTunnels {
		dup.vxlanTunnels[k] = v
	}
	for k, v := range s.vnets {
		dup.vnets[k] = v
	}
	for k, v := range s.members {
		dup.members[k] = v
	}
	for k, v := range s.routes {
		dup.routes[k] = v
	}
	for k, v := range s.neighbors {
		dup.neighbors[k] = v
	}
	for k, v := range s.nextHops {
		dup.nextHops[k] = v
	}
	for k, v := range s.bitmapEntries {
		dup.bitmapEntries[k] = v
	}
	return dup
}

// vnetsOfTunnel returns names of VNETs bound to the VXLAN tunnel.
func (s *state) vnetsOfTunnel(tunnel string) (vnets []string) {
	for name, v := range s.vnets {
		if v.intent.VxlanTunnel == tunnel {
			vnets = append(vnets, name)
		}
	}
	return vnets
}

// vnetDependents returns members and routes of the VNET.
func (s *state) vnetDependents(vnetName string) (dependents []string) {
	for ifName, m := range s.members {
		if m.intent.Vnet == vnetName {
			dependents = append(dependents, model.VnetInterfaceKeyword+"|"+ifName)
		}
	}
	for _, r := range s.routes {
		if r.vnet == vnetName {
			dependents = append(dependents, r.table+"|"+r.intentKey)
		}
	}
	return dependents
}

// memberDependents returns routes and neighbors using the member interface.
func (s *state) memberDependents(ifName string) (dependents []string) {
	for _, r := range s.routes {
		if r.ifName == ifName {
			dependents = append(dependents, r.table+"|"+r.intentKey)
		}
	}
	for key, n := range s.neighbors {
		if n.intent.IfName == ifName {
			dependents = append(dependents, model.VnetNeighborKeyword+"|"+key)
		}
	}
	return dependents
}
