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

package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

// Intent Store tables with VNET intents.
const (
	VxlanTunnelKeyword     = "VXLAN_TUNNEL_TABLE"
	VnetKeyword            = "VNET_TABLE"
	VnetInterfaceKeyword   = "VNET_INTF_TABLE"
	VnetRouteKeyword       = "VNET_ROUTE_TABLE"
	VnetRouteTunnelKeyword = "VNET_ROUTE_TUNNEL_TABLE"
	VnetNeighborKeyword    = "VNET_NEIGH_TABLE"
)

// Fields of the VNET intents.
const (
	FieldSrcIP       = "src_ip"
	FieldVxlanTunnel = "vxlan_tunnel"
	FieldVNI         = "vni"
	FieldVnetName    = "vnet_name"
	FieldIfName      = "ifname"
	FieldEndpoint    = "endpoint"
	FieldMACAddress  = "mac_address"
	FieldNeigh       = "neigh"
)

// KeySeparator separates parts of composite intent keys (e.g. "Vnet_1:10.0.0.0/24").
const KeySeparator = ":"

const maxVNI = 1<<24 - 1

// VxlanTunnel is a parsed VXLAN_TUNNEL_TABLE intent.
type VxlanTunnel struct {
	Name  string
	SrcIP net.IP
}

// Vnet is a parsed VNET_TABLE intent.
type Vnet struct {
	Name        string
	VxlanTunnel string
	VNI         uint32
}

// VnetInterface is a parsed VNET_INTF_TABLE intent, binding interface to a VNET.
type VnetInterface struct {
	IfName string
	Vnet   string
}

// VnetRoute is a parsed VNET_ROUTE_TABLE intent: prefix reachable via a local
// member interface.
type VnetRoute struct {
	Vnet   string
	Prefix *net.IPNet
	IfName string
}

// VnetTunnelRoute is a parsed VNET_ROUTE_TUNNEL_TABLE intent: prefix reachable
// via a VXLAN tunnel endpoint.
type VnetTunnelRoute struct {
	Vnet     string
	Prefix   *net.IPNet
	Endpoint net.IP
	MAC      string // empty if not set
	VNI      uint32 // 0 if not set (VNET's VNI is used)
}

// VnetNeighbor is a parsed VNET_NEIGH_TABLE intent.
type VnetNeighbor struct {
	IfName string
	IP     net.IP
	MAC    string
}

func invalid(table, key, format string, args ...interface{}) error {
	return errors.Wrapf(controller.ErrInvalidConfig, "%s|%s: %s", table, key, fmt.Sprintf(format, args...))
}

func checkFields(table, key string, values *statedb.FieldValues, known ...string) error {
	for _, fv := range values.Sorted() {
		var isKnown bool
		for _, field := range known {
			if fv.Field == field {
				isKnown = true
				break
			}
		}
		if !isKnown {
			return invalid(table, key, "unknown field %q", fv.Field)
		}
	}
	return nil
}

// ParseVxlanTunnel parses VXLAN tunnel intent.
func ParseVxlanTunnel(name string, values *statedb.FieldValues) (*VxlanTunnel, error) {
	if err := checkFields(VxlanTunnelKeyword, name, values, FieldSrcIP); err != nil {
		return nil, err
	}
	srcIP := net.ParseIP(values.GetOr(FieldSrcIP, ""))
	if srcIP == nil {
		return nil, invalid(VxlanTunnelKeyword, name, "missing or malformed %s", FieldSrcIP)
	}
	return &VxlanTunnel{Name: name, SrcIP: srcIP}, nil
}

// ParseVnet parses VNET intent.
func ParseVnet(name string, values *statedb.FieldValues) (*Vnet, error) {
	if err := checkFields(VnetKeyword, name, values, FieldVxlanTunnel, FieldVNI); err != nil {
		return nil, err
	}
	if name == "" || strings.Contains(name, KeySeparator) {
		return nil, invalid(VnetKeyword, name, "invalid VNET name")
	}
	vnet := &Vnet{Name: name, VxlanTunnel: values.GetOr(FieldVxlanTunnel, "")}
	if vnet.VxlanTunnel == "" {
		return nil, invalid(VnetKeyword, name, "missing %s", FieldVxlanTunnel)
	}
	vni, err := parseVNI(values.GetOr(FieldVNI, ""))
	if err != nil || vni == 0 {
		return nil, invalid(VnetKeyword, name, "missing or malformed %s", FieldVNI)
	}
	vnet.VNI = vni
	return vnet, nil
}

// ParseVnetInterface parses member interface intent.
func ParseVnetInterface(ifName string, values *statedb.FieldValues) (*VnetInterface, error) {
	if err := checkFields(VnetInterfaceKeyword, ifName, values, FieldVnetName); err != nil {
		return nil, err
	}
	member := &VnetInterface{IfName: ifName, Vnet: values.GetOr(FieldVnetName, "")}
	if member.Vnet == "" {
		return nil, invalid(VnetInterfaceKeyword, ifName, "missing %s", FieldVnetName)
	}
	return member, nil
}

// ParseVnetRoute parses VNET route intent stored under "<vnet>:<prefix>".
func ParseVnetRoute(key string, values *statedb.FieldValues) (*VnetRoute, error) {
	if err := checkFields(VnetRouteKeyword, key, values, FieldIfName); err != nil {
		return nil, err
	}
	vnet, prefix, err := ParseRouteKey(key)
	if err != nil {
		return nil, invalid(VnetRouteKeyword, key, "%v", err)
	}
	route := &VnetRoute{Vnet: vnet, Prefix: prefix, IfName: values.GetOr(FieldIfName, "")}
	if route.IfName == "" {
		return nil, invalid(VnetRouteKeyword, key, "missing %s", FieldIfName)
	}
	return route, nil
}

// ParseVnetTunnelRoute parses VNET tunnel route intent stored under "<vnet>:<prefix>".
func ParseVnetTunnelRoute(key string, values *statedb.FieldValues) (*VnetTunnelRoute, error) {
	if err := checkFields(VnetRouteTunnelKeyword, key, values, FieldEndpoint, FieldMACAddress, FieldVNI); err != nil {
		return nil, err
	}
	vnet, prefix, err := ParseRouteKey(key)
	if err != nil {
		return nil, invalid(VnetRouteTunnelKeyword, key, "%v", err)
	}
	route := &VnetTunnelRoute{Vnet: vnet, Prefix: prefix}
	if route.Endpoint = net.ParseIP(values.GetOr(FieldEndpoint, "")); route.Endpoint == nil {
		return nil, invalid(VnetRouteTunnelKeyword, key, "missing or malformed %s", FieldEndpoint)
	}
	if mac, withMAC := values.Get(FieldMACAddress); withMAC {
		hwAddr, err := net.ParseMAC(mac)
		if err != nil {
			return nil, invalid(VnetRouteTunnelKeyword, key, "malformed %s", FieldMACAddress)
		}
		route.MAC = hwAddr.String()
	}
	if vni, withVNI := values.Get(FieldVNI); withVNI {
		if route.VNI, err = parseVNI(vni); err != nil {
			return nil, invalid(VnetRouteTunnelKeyword, key, "malformed %s", FieldVNI)
		}
	}
	return route, nil
}

// ParseVnetNeighbor parses neighbor intent stored under "<ifname>:<ip>".
func ParseVnetNeighbor(key string, values *statedb.FieldValues) (*VnetNeighbor, error) {
	if err := checkFields(VnetNeighborKeyword, key, values, FieldNeigh); err != nil {
		return nil, err
	}
	parts := strings.SplitN(key, KeySeparator, 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, invalid(VnetNeighborKeyword, key, "key must be <ifname>:<ip>")
	}
	neigh := &VnetNeighbor{IfName: parts[0], IP: net.ParseIP(parts[1])}
	if neigh.IP == nil {
		return nil, invalid(VnetNeighborKeyword, key, "malformed IP address")
	}
	hwAddr, err := net.ParseMAC(values.GetOr(FieldNeigh, ""))
	if err != nil {
		return nil, invalid(VnetNeighborKeyword, key, "missing or malformed %s", FieldNeigh)
	}
	neigh.MAC = hwAddr.String()
	return neigh, nil
}

// RouteKey returns key of a VNET route intent.
func RouteKey(vnet, prefix string) string {
	return vnet + KeySeparator + prefix
}

// ParseRouteKey splits VNET route key into VNET name and normalized prefix.
func ParseRouteKey(key string) (vnet string, prefix *net.IPNet, err error) {
	parts := strings.SplitN(key, KeySeparator, 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", nil, errors.New("key must be <vnet>:<prefix>")
	}
	prefix, err = asicdb.NormalizePrefix(parts[1])
	if err != nil {
		return "", nil, err
	}
	return parts[0], prefix, nil
}

func parseVNI(value string) (uint32, error) {
	vni, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, err
	}
	if vni > maxVNI {
		return 0, errors.Errorf("VNI %d out of range", vni)
	}
	return uint32(vni), nil
}
