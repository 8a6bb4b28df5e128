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
	"net"
	"sort"
	"strings"

	"github.com/pkg/errors"

	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

// Keyword defines the Intent Store table with IP-in-IP tunnel intents.
const Keyword = "TUNNEL_DECAP_TABLE"

// Fields of the tunnel intent.
const (
	FieldTunnelType = "tunnel_type"
	FieldDstIP      = "dst_ip"
	FieldSrcIP      = "src_ip"
	FieldDSCPMode   = "dscp_mode"
	FieldECNMode    = "ecn_mode"
	FieldTTLMode    = "ttl_mode"
)

// TunnelTypeIPinIP is the only supported tunnel type.
const TunnelTypeIPinIP = "IPINIP"

// Tunnel is a parsed tunnel intent.
type Tunnel struct {
	Name     string
	DstIPs   []net.IP // unique, ordered as in the intent
	SrcIP    net.IP   // nil for decap-only tunnel
	DSCPMode string
	ECNMode  string
	TTLMode  string
}

// IsSymmetric returns true if the tunnel also encapsulates.
func (t *Tunnel) IsSymmetric() bool {
	return t.SrcIP != nil
}

// Equal compares two tunnel intents. Destinations are compared as a set.
func (t *Tunnel) Equal(t2 *Tunnel) bool {
	if t == nil || t2 == nil {
		return t == t2
	}
	if t.Name != t2.Name || t.DSCPMode != t2.DSCPMode || t.ECNMode != t2.ECNMode ||
		t.TTLMode != t2.TTLMode || !t.SrcIP.Equal(t2.SrcIP) || len(t.DstIPs) != len(t2.DstIPs) {
		return false
	}
	dsts := make(map[string]struct{}, len(t.DstIPs))
	for _, dst := range t.DstIPStrings() {
		dsts[dst] = struct{}{}
	}
	for _, dst := range t2.DstIPStrings() {
		if _, has := dsts[dst]; !has {
			return false
		}
	}
	return true
}

// DstIPStrings returns destination IPs in canonical string form.
func (t *Tunnel) DstIPStrings() (ips []string) {
	for _, ip := range t.DstIPs {
		ips = append(ips, ip.String())
	}
	return ips
}

// Parse builds the tunnel intent from field/value set stored under <name>.
// Any malformed value results in an error wrapping ErrInvalidConfig.
func Parse(name string, values *statedb.FieldValues) (*Tunnel, error) {
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrapf(controller.ErrInvalidConfig, "tunnel %s: "+format, append([]interface{}{name}, args...)...)
	}
	if name == "" {
		return nil, errors.Wrap(controller.ErrInvalidConfig, "tunnel with empty name")
	}
	for _, field := range values.Sorted() {
		if !knownField(field.Field) {
			return nil, invalid("unknown field %q", field.Field)
		}
	}

	tunnel := &Tunnel{Name: name}
	if tunnelType := values.GetOr(FieldTunnelType, ""); tunnelType != TunnelTypeIPinIP {
		return nil, invalid("unsupported tunnel type %q", tunnelType)
	}

	seen := make(map[string]struct{})
	for _, dst := range strings.Split(values.GetOr(FieldDstIP, ""), ",") {
		dst = strings.TrimSpace(dst)
		if dst == "" {
			continue
		}
		ip := net.ParseIP(dst)
		if ip == nil {
			return nil, invalid("malformed destination IP %q", dst)
		}
		if _, duplicate := seen[ip.String()]; duplicate {
			continue
		}
		seen[ip.String()] = struct{}{}
		tunnel.DstIPs = append(tunnel.DstIPs, ip)
	}
	if len(tunnel.DstIPs) == 0 {
		return nil, invalid("empty destination IP list")
	}

	if srcIP, withSrc := values.Get(FieldSrcIP); withSrc {
		tunnel.SrcIP = net.ParseIP(srcIP)
		if tunnel.SrcIP == nil {
			return nil, invalid("malformed source IP %q", srcIP)
		}
	}

	var err error
	if tunnel.DSCPMode, err = parseMode(values, FieldDSCPMode, "pipe", "uniform"); err != nil {
		return nil, invalid("%v", err)
	}
	if tunnel.ECNMode, err = parseMode(values, FieldECNMode, "standard", "copy_from_outer"); err != nil {
		return nil, invalid("%v", err)
	}
	if tunnel.TTLMode, err = parseMode(values, FieldTTLMode, "pipe", "uniform"); err != nil {
		return nil, invalid("%v", err)
	}
	return tunnel, nil
}

func parseMode(values *statedb.FieldValues, field string, legal ...string) (string, error) {
	mode := values.GetOr(field, "")
	for _, l := range legal {
		if mode == l {
			return mode, nil
		}
	}
	sort.Strings(legal)
	return "", errors.Errorf("%s must be one of %v, got %q", field, legal, mode)
}

func knownField(field string) bool {
	switch field {
	case FieldTunnelType, FieldDstIP, FieldSrcIP, FieldDSCPMode, FieldECNMode, FieldTTLMode:
		return true
	}
	return false
}
