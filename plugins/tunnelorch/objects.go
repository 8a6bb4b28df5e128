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
	"github.com/contiv/orchagent/plugins/asicdb"
	"github.com/contiv/orchagent/plugins/statedb"
	"github.com/contiv/orchagent/plugins/tunnelorch/model"
)

// overlayInterface returns attributes of the loopback interface owned by a tunnel.
func overlayInterface(vr asicdb.OID) *statedb.FieldValues {
	return statedb.NewFieldValues(
		asicdb.RouterInterfaceAttrVirtualRouterID, string(vr),
		asicdb.RouterInterfaceAttrType, asicdb.RouterInterfaceTypeLoopback,
	)
}

// tunnelObject returns attributes of the IP-in-IP tunnel object: 6 for
// decap-only tunnel, 7 for symmetric tunnel (with ENCAP_SRC_IP).
func tunnelObject(intent *model.Tunnel, overlay, underlay asicdb.OID) *statedb.FieldValues {
	values := statedb.NewFieldValues(
		asicdb.TunnelAttrType, asicdb.TunnelTypeIPinIP,
		asicdb.TunnelAttrOverlayInterface, string(overlay),
		asicdb.TunnelAttrUnderlayInterface, string(underlay),
		asicdb.TunnelAttrDecapECNMode, asicdb.ECNModes[intent.ECNMode],
		asicdb.TunnelAttrDecapDSCPMode, asicdb.DSCPModes[intent.DSCPMode],
		asicdb.TunnelAttrDecapTTLMode, asicdb.TTLModes[intent.TTLMode],
	)
	if intent.IsSymmetric() {
		values.Set(asicdb.TunnelAttrEncapSrcIP, intent.SrcIP.String())
	}
	return values
}

// terminationEntry returns attributes of the entry terminating traffic
// destined to <dst> in the given tunnel.
func terminationEntry(vr, tunnel asicdb.OID, dst string) *statedb.FieldValues {
	return statedb.NewFieldValues(
		asicdb.TunnelTermAttrVRID, string(vr),
		asicdb.TunnelTermAttrType, asicdb.TunnelTermTypeP2MP,
		asicdb.TunnelTermAttrTunnelType, asicdb.TunnelTypeIPinIP,
		asicdb.TunnelTermAttrActionTunnelID, string(tunnel),
		asicdb.TunnelTermAttrDstIP, dst,
	)
}
