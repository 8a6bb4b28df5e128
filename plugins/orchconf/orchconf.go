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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-errors/errors"

	"github.com/ligato/cn-infra/infra"

	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/orchconf/config"
)

const (
	// PlatformEnvVar is the environment variable with the platform name.
	PlatformEnvVar = "platform"

	defaultVnetBitmapMode = VnetBitmapAuto
	defaultVnetBitmapSize = 32
	maxVnetBitmapSize     = 64
	defaultSettleInterval = time.Second
	defaultRouterMAC      = "00:00:00:00:00:01"
	defaultPortMTU        = 9100
	defaultPortSpeed      = 100000
	defaultPortCount      = 32
)

// VNET bitmap modes.
const (
	VnetBitmapAuto     = "auto"
	VnetBitmapEnabled  = "enabled"
	VnetBitmapDisabled = "disabled"
)

// bitmapPlatforms lists platforms supporting the bitmap VNET representation.
var bitmapPlatforms = map[string]struct{}{
	"mellanox": {},
}

// OrchConf plugin loads the agent configuration and answers capability queries.
type OrchConf struct {
	Deps

	config *config.Config
	bitmap bool
}

// Deps lists dependencies of the OrchConf plugin.
type Deps struct {
	infra.PluginDeps

	// configuration injected by unit tests instead of loading from file
	UnitTestDeps *UnitTestDeps
}

// UnitTestDeps lists dependencies injected in unit tests.
type UnitTestDeps struct {
	Config *config.Config
}

// Init loads the configuration file and resolves platform capability.
func (c *OrchConf) Init() error {
	c.config = &config.Config{}
	if c.UnitTestDeps != nil && c.UnitTestDeps.Config != nil {
		*c.config = *c.UnitTestDeps.Config
	} else if c.Cfg != nil {
		found, err := c.Cfg.LoadValue(c.config)
		if err != nil {
			return controller.NewFatalError(err)
		}
		if !found {
			c.Log.Debugf("%v config not found", c.PluginName)
		}
	}
	if err := c.applyDefaults(); err != nil {
		return controller.NewFatalError(err)
	}

	c.bitmap = c.config.VnetBitmapMode == VnetBitmapEnabled
	if c.config.VnetBitmapMode == VnetBitmapAuto {
		_, c.bitmap = bitmapPlatforms[strings.ToLower(c.config.Platform)]
	}
	c.Log.Infof("Orchestrator configuration: %+v (bitmap VNET: %t)", *c.config, c.bitmap)
	return nil
}

// Close does nothing.
func (c *OrchConf) Close() error {
	return nil
}

// applyDefaults fills unset options with defaults and validates the rest.
func (c *OrchConf) applyDefaults() error {
	cfg := c.config
	if cfg.Platform == "" {
		cfg.Platform = os.Getenv(PlatformEnvVar)
	}
	switch cfg.VnetBitmapMode {
	case "":
		cfg.VnetBitmapMode = defaultVnetBitmapMode
	case VnetBitmapAuto, VnetBitmapEnabled, VnetBitmapDisabled:
	default:
		return errors.Errorf("invalid vnetBitmapMode: %q", cfg.VnetBitmapMode)
	}
	if cfg.VnetBitmapSize == 0 {
		cfg.VnetBitmapSize = defaultVnetBitmapSize
	}
	if cfg.VnetBitmapSize > maxVnetBitmapSize {
		return errors.Errorf("vnetBitmapSize %d exceeds %d", cfg.VnetBitmapSize, maxVnetBitmapSize)
	}
	if cfg.SettleInterval == 0 {
		cfg.SettleInterval = defaultSettleInterval
	}
	if cfg.RouterMAC == "" {
		cfg.RouterMAC = defaultRouterMAC
	}
	if len(cfg.Ports) == 0 {
		for i := 0; i < defaultPortCount; i++ {
			cfg.Ports = append(cfg.Ports, config.PortConfig{Name: fmt.Sprintf("Ethernet%d", i*4)})
		}
	}
	for i := range cfg.Ports {
		if cfg.Ports[i].Name == "" {
			return errors.Errorf("port #%d without name", i)
		}
		if cfg.Ports[i].MTU == 0 {
			cfg.Ports[i].MTU = defaultPortMTU
		}
		if cfg.Ports[i].Speed == 0 {
			cfg.Ports[i].Speed = defaultPortSpeed
		}
	}
	return nil
}

// GetConfig returns the loaded configuration.
func (c *OrchConf) GetConfig() *config.Config {
	return c.config
}

// GetPlatform returns the name of the platform.
func (c *OrchConf) GetPlatform() string {
	return c.config.Platform
}

// BitmapVnetSupported returns true if VNETs use the bitmap representation.
func (c *OrchConf) BitmapVnetSupported() bool {
	return c.bitmap
}

// GetVnetBitmapSize returns the number of VNET bit slots.
func (c *OrchConf) GetVnetBitmapSize() uint32 {
	return c.config.VnetBitmapSize
}

// GetSettleInterval returns the propagation-delay bound.
func (c *OrchConf) GetSettleInterval() time.Duration {
	return c.config.SettleInterval
}

// GetRouterMAC returns MAC address of the router.
func (c *OrchConf) GetRouterMAC() string {
	return c.config.RouterMAC
}

// GetPorts returns configured front-panel ports.
func (c *OrchConf) GetPorts() []config.PortConfig {
	return c.config.Ports
}
