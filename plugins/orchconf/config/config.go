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

package config

import "time"

// Config represents configuration for the orchestration agent.
// The path to the configuration file can be specified in two ways:
//  - using the `-orchconf-config=<path to config>` argument, or
//  - using the `ORCHCONF_CONFIG=<path to config>` environment variable
type Config struct {
	// platform name, e.g. "mellanox"; when empty, the "platform" environment
	// variable is used
	Platform string `json:"platform,omitempty"`

	VnetConfig
	SwitchConfig

	// bound of the propagation delay between the Intent Store and the Device
	// State Store under normal operation
	SettleInterval time.Duration `json:"settleInterval,omitempty"`
}

// VnetConfig groups configuration options related to VNETs.
type VnetConfig struct {
	// "auto" (decided by the platform), "enabled" or "disabled"
	VnetBitmapMode string `json:"vnetBitmapMode,omitempty"`

	// number of VNET bit slots in the bitmap representation (at most 64)
	VnetBitmapSize uint32 `json:"vnetBitmapSize,omitempty"`
}

// SwitchConfig describes base switch objects.
type SwitchConfig struct {
	RouterMAC string       `json:"routerMAC,omitempty"`
	Ports     []PortConfig `json:"ports,omitempty"`
}

// PortConfig describes a front-panel port.
type PortConfig struct {
	Name  string `json:"name"`
	MTU   uint32 `json:"mtu,omitempty"`
	Speed uint32 `json:"speed,omitempty"`
}
