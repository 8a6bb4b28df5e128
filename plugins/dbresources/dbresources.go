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

package dbresources

import (
	controller "github.com/contiv/orchagent/plugins/controller/api"
	tunnelmodel "github.com/contiv/orchagent/plugins/tunnelorch/model"
	vnetmodel "github.com/contiv/orchagent/plugins/vnetorch/model"
)

// GetDBResources returns metadata for all Intent Store tables watched by the
// orchestrator. The order of resources is the order of dependencies: intents
// of a table may only refer to intents of preceding tables.
func GetDBResources() []*controller.DBResource {
	return []*controller.DBResource{
		{
			Keyword:     vnetmodel.VxlanTunnelKeyword,
			Description: "VXLAN tunnels used by VNETs",
		},
		{
			Keyword:     vnetmodel.VnetKeyword,
			Description: "virtual networks",
		},
		{
			Keyword:     vnetmodel.VnetInterfaceKeyword,
			Description: "VNET member interfaces",
		},
		{
			Keyword:     vnetmodel.VnetRouteKeyword,
			Description: "VNET routes via member interfaces",
		},
		{
			Keyword:     vnetmodel.VnetRouteTunnelKeyword,
			Description: "VNET routes via VXLAN tunnel endpoints",
		},
		{
			Keyword:     vnetmodel.VnetNeighborKeyword,
			Description: "neighbors on VNET member interfaces",
		},
		{
			Keyword:     tunnelmodel.Keyword,
			Description: "IP-in-IP decapsulation tunnels",
		},
	}
}

// GetTableOrder returns table names in the order of dependencies.
func GetTableOrder() (tables []string) {
	for _, resource := range GetDBResources() {
		tables = append(tables, resource.Keyword)
	}
	return tables
}
