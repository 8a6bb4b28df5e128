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

package main

import (
	"github.com/ligato/cn-infra/agent"
	"github.com/ligato/cn-infra/db/keyval/etcd"
	"github.com/ligato/cn-infra/health/probe"
	"github.com/ligato/cn-infra/health/statuscheck"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/ligato/cn-infra/servicelabel"

	"github.com/contiv/orchagent/plugins/controller"
	"github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/idalloc"
	"github.com/contiv/orchagent/plugins/orchconf"
	"github.com/contiv/orchagent/plugins/refcount"
	"github.com/contiv/orchagent/plugins/statedb"
	"github.com/contiv/orchagent/plugins/statscollector"
	"github.com/contiv/orchagent/plugins/switchinit"
	"github.com/contiv/orchagent/plugins/tunnelorch"
	"github.com/contiv/orchagent/plugins/vnetorch"
)

// OrchAgent reconciles tunnel and VNET intents into device objects.
type OrchAgent struct {
	ServiceLabel servicelabel.ReaderAPI
	HTTP         *rest.Plugin
	HealthProbe  *probe.Plugin
	Prometheus   *prometheus.Plugin
	StatusCheck  *statuscheck.Plugin

	StateDB        *statedb.StateDB
	OrchConf       *orchconf.OrchConf
	RefCount       *refcount.RefCount
	IDAlloc        *idalloc.IDAllocator
	SwitchInit     *switchinit.SwitchInit
	TunnelOrch     *tunnelorch.TunnelOrch
	VnetOrch       *vnetorch.VnetOrch
	Controller     *controller.Controller
	StatsCollector *statscollector.Plugin
}

func (a *OrchAgent) String() string {
	return "OrchAgent"
}

// Init is called at startup phase. Method added in order to implement Plugin interface.
func (a *OrchAgent) Init() error {
	return nil
}

// Close is called at cleanup phase. Method added in order to implement Plugin interface.
func (a *OrchAgent) Close() error {
	return nil
}

func main() {
	statedb.DefaultPlugin.KVStore = &etcd.DefaultPlugin

	controller.DefaultPlugin.EventHandlers = []api.EventHandler{
		&switchinit.DefaultPlugin,
		&tunnelorch.DefaultPlugin,
		&vnetorch.DefaultPlugin,
	}
	controller.DefaultPlugin.Revertibles = []api.Revertible{
		&refcount.DefaultPlugin,
		&idalloc.DefaultPlugin,
	}

	orchAgent := &OrchAgent{
		ServiceLabel:   &servicelabel.DefaultPlugin,
		HTTP:           &rest.DefaultPlugin,
		HealthProbe:    &probe.DefaultPlugin,
		Prometheus:     &prometheus.DefaultPlugin,
		StatusCheck:    &statuscheck.DefaultPlugin,
		StateDB:        &statedb.DefaultPlugin,
		OrchConf:       &orchconf.DefaultPlugin,
		RefCount:       &refcount.DefaultPlugin,
		IDAlloc:        &idalloc.DefaultPlugin,
		SwitchInit:     &switchinit.DefaultPlugin,
		TunnelOrch:     &tunnelorch.DefaultPlugin,
		VnetOrch:       &vnetorch.DefaultPlugin,
		Controller:     &controller.DefaultPlugin,
		StatsCollector: &statscollector.DefaultPlugin,
	}

	a := agent.NewAgent(agent.AllPlugins(orchAgent))
	if err := a.Run(); err != nil {
		logrus.DefaultLogger().Fatal(err)
	}
}
