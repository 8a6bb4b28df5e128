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
	"encoding/json"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pkg/errors"
)

// RouteEntryKey identifies ROUTE_ENTRY: destination prefix inside a virtual router.
type RouteEntryKey struct {
	Dest string `json:"dest"`
	VR   OID    `json:"vr"`
}

// String returns the JSON representation used as the table key.
func (k RouteEntryKey) String() string {
	return marshalKey(k)
}

// ParseRouteEntryKey parses key of ROUTE_ENTRY.
func ParseRouteEntryKey(key string) (k RouteEntryKey, err error) {
	if err = json.Unmarshal([]byte(key), &k); err != nil {
		return k, errors.Wrapf(err, "invalid route entry key %q", key)
	}
	if _, _, err = net.ParseCIDR(k.Dest); err != nil {
		return k, errors.Wrapf(err, "invalid route entry key %q", key)
	}
	return k, nil
}

// NeighborEntryKey identifies NEIGHBOR_ENTRY: IP address behind a router interface.
type NeighborEntryKey struct {
	IP  string `json:"ip"`
	RIF OID    `json:"rif"`
}

// String returns the JSON representation used as the table key.
func (k NeighborEntryKey) String() string {
	return marshalKey(k)
}

// ParseNeighborEntryKey parses key of NEIGHBOR_ENTRY.
func ParseNeighborEntryKey(key string) (k NeighborEntryKey, err error) {
	if err = json.Unmarshal([]byte(key), &k); err != nil {
		return k, errors.Wrapf(err, "invalid neighbor entry key %q", key)
	}
	if net.ParseIP(k.IP) == nil {
		return k, errors.Errorf("invalid neighbor entry key %q: bad IP", key)
	}
	return k, nil
}

func marshalKey(k interface{}) string {
	data, err := json.Marshal(k)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// NormalizePrefix returns canonical form of an IP prefix (host bits cleared).
// Bare IP addresses are turned into host prefixes (/32 or /128).
func NormalizePrefix(prefix string) (*net.IPNet, error) {
	if ip := net.ParseIP(prefix); ip != nil {
		bits := 128
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 32
		}
		return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
	}
	_, ipNet, err := net.ParseCIDR(prefix)
	if err != nil {
		return nil, errors.Errorf("invalid prefix %q", prefix)
	}
	first, _ := cidr.AddressRange(ipNet)
	if first.To4() != nil {
		first = first.To4()
	}
	return &net.IPNet{IP: first, Mask: ipNet.Mask}, nil
}

// IsHostPrefix returns true for /32 (IPv4) and /128 (IPv6) prefixes.
func IsHostPrefix(ipNet *net.IPNet) bool {
	ones, bits := ipNet.Mask.Size()
	return ones == bits
}
