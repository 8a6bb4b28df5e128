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

package orchconf

import (
	"time"

	"github.com/contiv/orchagent/plugins/orchconf/config"
)

// API defines methods provided by OrchConf for use by other plugins to query
// the agent configuration and platform capabilities.
type API interface {
	// GetConfig returns the loaded configuration (with defaults filled in).
	GetConfig() *config.Config

	// GetPlatform returns the name of the platform.
	GetPlatform() string

	// BitmapVnetSupported returns true if VNETs should be programmed using
	// the bitmap representation. Read once at startup.
	BitmapVnetSupported() bool

	// GetVnetBitmapSize returns the number of VNET bit slots.
	GetVnetBitmapSize() uint32

	// GetSettleInterval returns the propagation-delay bound.
	GetSettleInterval() time.Duration

	// GetRouterMAC returns MAC address of the router.
	GetRouterMAC() string

	// GetPorts returns configured front-panel ports.
	GetPorts() []config.PortConfig
}
