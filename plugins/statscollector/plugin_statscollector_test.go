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

package statscollector

import (
	"fmt"
	"testing"

	"github.com/ligato/cn-infra/logging"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/refcount"
	"github.com/contiv/orchagent/plugins/statedb"
)

type mockPrometheus struct {
	statsPath        string
	newRegistryError error
	registerError    error
	collectors       []prometheus.Collector
	gaugeFuncs       map[string]func() float64
}

func (mp *mockPrometheus) NewRegistry(path string, opts promhttp.HandlerOpts) error {
	mp.statsPath = path
	return mp.newRegistryError
}

func (mp *mockPrometheus) Register(registryPath string, collector prometheus.Collector) error {
	if mp.registerError != nil {
		return mp.registerError
	}
	mp.collectors = append(mp.collectors, collector)
	return nil
}

func (mp *mockPrometheus) Unregister(registryPath string, collector prometheus.Collector) bool {
	return false
}

func (mp *mockPrometheus) RegisterGaugeFunc(registryPath string, namespace string, subsystem string,
	name string, help string, labels prometheus.Labels, valueFunc func() float64) error {
	if mp.gaugeFuncs == nil {
		mp.gaugeFuncs = make(map[string]func() float64)
	}
	mp.gaugeFuncs[name] = valueFunc
	return nil
}

type mockIntentReader struct {
	states []*controller.IntentStatus
}

func (m *mockIntentReader) GetIntentStates() []*controller.IntentStatus {
	return m.states
}

func newTestPlugin(prom *mockPrometheus, intents *mockIntentReader, refCount refcount.API,
	store statedb.API) *Plugin {
	return NewPlugin(UseDeps(func(deps *Deps) {
		deps.Log = logging.ForPlugin("statscollector-test")
		deps.ServiceLabel = nil
		deps.Prometheus = prom
		deps.Controller = intents
		deps.RefCount = refCount
		deps.StateDB = store
	}))
}

func gaugeValue(vec *prometheus.GaugeVec, labels ...string) float64 {
	metric := &dto.Metric{}
	Expect(vec.WithLabelValues(labels...).Write(metric)).To(Succeed())
	return metric.GetGauge().GetValue()
}

func TestInitErrors(t *testing.T) {
	RegisterTestingT(t)
	prom := &mockPrometheus{newRegistryError: fmt.Errorf("%s", "NewRegistry Error")}
	plugin := newTestPlugin(prom, &mockIntentReader{}, nil, nil)
	Expect(plugin.Init()).To(MatchError("NewRegistry Error"))

	prom = &mockPrometheus{registerError: fmt.Errorf("%s", "Register Error")}
	plugin = newTestPlugin(prom, &mockIntentReader{}, nil, nil)
	Expect(plugin.Init()).To(MatchError("Register Error"))

	prom = &mockPrometheus{}
	plugin = newTestPlugin(prom, &mockIntentReader{}, nil, nil)
	Expect(plugin.Init()).To(Succeed())
	defer plugin.Close()
	Expect(prom.statsPath).To(Equal(prometheusStatsPath))
	Expect(prom.collectors).To(HaveLen(5))
	Expect(prom.gaugeFuncs).To(HaveKey(convergedMetric))
}

func TestCollect(t *testing.T) {
	RegisterTestingT(t)

	intents := &mockIntentReader{states: []*controller.IntentStatus{
		{IntentID: controller.IntentID{Table: "TUNNEL_DECAP_TABLE", Key: "T1"}, State: controller.Applied},
		{IntentID: controller.IntentID{Table: "TUNNEL_DECAP_TABLE", Key: "T2"}, State: controller.Pending, Attempts: 3},
		{IntentID: controller.IntentID{Table: "VNET_TABLE", Key: "Vnet_1"}, State: controller.Pending, Attempts: 2},
		{IntentID: controller.IntentID{Table: "VNET_TABLE", Key: "Vnet_2"}, State: controller.Pending, Attempts: 1},
	}}

	refCount := refcount.NewPlugin(refcount.UseDeps(func(deps *refcount.Deps) {
		deps.HTTPHandlers = nil
	}))
	Expect(refCount.Init()).To(Succeed())
	vr := asicdb.FormatOID(asicdb.ObjectTypeVirtualRouter, 1)
	rif := asicdb.FormatOID(asicdb.ObjectTypeRouterInterface, 1)
	refCount.Acquire(string(vr))
	refCount.Acquire(string(vr))
	refCount.Acquire(string(rif))
	refCount.Acquire("not-an-oid")

	store := statedb.NewMemStore()
	Expect(store.Device.Set(asicdb.ObjectTypeVirtualRouter.Table(), string(vr), statedb.NewFieldValues(
		asicdb.VirtualRouterAttrAdminV4State, asicdb.True))).To(Succeed())
	Expect(store.Device.Set(asicdb.ObjectTypeRouterInterface.Table(), string(rif), statedb.NewFieldValues(
		asicdb.RouterInterfaceAttrType, asicdb.RouterInterfaceTypeLoopback))).To(Succeed())

	prom := &mockPrometheus{}
	plugin := newTestPlugin(prom, intents, refCount, store)
	Expect(plugin.Init()).To(Succeed())
	defer plugin.Close()

	st := plugin.collect()
	Expect(st.intents).To(Equal(map[[2]string]int{
		{"TUNNEL_DECAP_TABLE", controller.Applied.String()}: 1,
		{"TUNNEL_DECAP_TABLE", controller.Pending.String()}: 1,
		{"VNET_TABLE", controller.Pending.String()}:         2,
	}))
	Expect(st.intentAttempts).To(Equal(map[string]int{"TUNNEL_DECAP_TABLE": 3, "VNET_TABLE": 3}))
	Expect(st.deviceObjects).To(Equal(map[string]int{
		string(asicdb.ObjectTypeVirtualRouter):   1,
		string(asicdb.ObjectTypeRouterInterface): 1,
	}))
	Expect(st.referencedObjects).To(HaveKeyWithValue(string(asicdb.ObjectTypeVirtualRouter), 1))
	Expect(st.objectReferences).To(HaveKeyWithValue(string(asicdb.ObjectTypeVirtualRouter), 2))
	Expect(st.objectReferences).To(HaveKeyWithValue(string(asicdb.ObjectTypeRouterInterface), 1))
	Expect(st.objectReferences).To(HaveLen(2))

	plugin.updatePrometheusStats(st)
	Expect(gaugeValue(plugin.gaugeVecs[intentsMetric], "VNET_TABLE", controller.Pending.String())).To(Equal(2.0))
	Expect(gaugeValue(plugin.gaugeVecs[intentAttemptsMetric], "TUNNEL_DECAP_TABLE")).To(Equal(3.0))
	Expect(gaugeValue(plugin.gaugeVecs[objectReferencesMetric], string(asicdb.ObjectTypeVirtualRouter))).To(Equal(2.0))
	Expect(prom.gaugeFuncs[convergedMetric]()).To(Equal(0.0))

	// all applied
	for _, status := range intents.states {
		status.State = controller.Applied
	}
	Expect(prom.gaugeFuncs[convergedMetric]()).To(Equal(1.0))
	plugin.updatePrometheusStats(plugin.collect())
	Expect(gaugeValue(plugin.gaugeVecs[intentsMetric], "VNET_TABLE", controller.Applied.String())).To(Equal(2.0))
	// stale label combinations are dropped
	Expect(gaugeValue(plugin.gaugeVecs[intentsMetric], "VNET_TABLE", controller.Pending.String())).To(BeZero())
}
