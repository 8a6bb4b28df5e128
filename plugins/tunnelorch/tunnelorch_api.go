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
)

// API defines methods provided by TunnelOrch for use by other plugins.
type API interface {
	// GetTunnels returns all programmed tunnels ordered by name.
	GetTunnels() []*TunnelInfo

	// GetTunnel returns programmed tunnel with the given name.
	GetTunnel(name string) (tunnel *TunnelInfo, exists bool)
}

// TunnelInfo describes device objects programmed for a tunnel intent.
type TunnelInfo struct {
	Name      string
	Symmetric bool

	Tunnel             asicdb.OID
	OverlayInterface   asicdb.OID
	VirtualRouter      asicdb.OID
	TerminationEntries map[string]asicdb.OID // destination IP -> entry OID
}
