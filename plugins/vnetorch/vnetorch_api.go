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

	"github.com/contiv/orchagent/plugins/asicdb"
)

// API defines methods provided by VnetOrch for use by other plugins.
type API interface {
	// GetVnets returns all programmed VNETs ordered by name.
	GetVnets() []*VnetInfo

	// GetVnet returns programmed VNET with the given name.
	GetVnet(name string) (vnet *VnetInfo, exists bool)

	// ForwardingTable reads forwarding entries of the VNET from the Device
	// State Store, independently of the VNET representation.
	ForwardingTable(vnet string) ([]asicdb.Route, error)

	// Resolve returns the longest-prefix-match forwarding entry of the VNET
	// for the given destination.
	Resolve(vnet string, ip net.IP) (route asicdb.Route, found bool, err error)
}

// VnetInfo describes device objects programmed for a VNET.
type VnetInfo struct {
	Name          string
	VxlanTunnel   string
	VNI           uint32
	Mode          string // "legacy" or "bitmap"
	Bit           uint32 `json:",omitempty"` // VNET bit slot in the bitmap mode
	VirtualRouter asicdb.OID
	Members       []string `json:",omitempty"`
	Routes        []string `json:",omitempty"`
}
