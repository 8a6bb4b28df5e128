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
	"sync"
	"time"

	"github.com/ligato/cn-infra/infra"
	prometheusplugin "github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/ligato/cn-infra/servicelabel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/refcount"
	"github.com/contiv/orchagent/plugins/statedb"
)

const (
	// path where the statistics are exposed
	prometheusStatsPath = "/stats"

	// metrics update interval
	updatePeriod = 10 * time.Second

	metricNamespace = "orchagent"

	nodeLabel       = "node"
	tableLabel      = "table"
	stateLabel      = "state"
	objectTypeLabel = "objectType"

	intentsMetric           = "intents"
	intentAttemptsMetric    = "intentAttempts"
	deviceObjectsMetric     = "deviceObjects"
	referencedObjectsMetric = "referencedObjects"
	objectReferencesMetric  = "objectReferences"
	convergedMetric         = "converged"
)

// Plugin periodically publishes the state of the convergence loop, the Device
// State Store and the reference tracker into prometheus.
type Plugin struct {
	Deps

	sync.Mutex
	gaugeVecs map[string]*prometheus.GaugeVec
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// Deps groups the dependencies of the Plugin.
type Deps struct {
	infra.PluginDeps

	ServiceLabel servicelabel.ReaderAPI
	Controller   controller.IntentStateReader
	RefCount     refcount.API
	StateDB      statedb.API

	// Prometheus plugin used to stream statistics
	Prometheus prometheusplugin.API
}

// stats is one sample of all published values.
type stats struct {
	intents           map[[2]string]int // (table, state) -> count
	intentAttempts    map[string]int    // table -> failed attempts of pending intents
	deviceObjects     map[string]int    // object type -> count
	referencedObjects map[string]int    // object type -> count of objects with references
	objectReferences  map[string]int    // object type -> sum of references
}

// Init initializes the plugin resources
func (p *Plugin) Init() error {
	p.closeCh = make(chan struct{})
	p.gaugeVecs = make(map[string]*prometheus.GaugeVec)
	if p.Prometheus == nil {
		return nil
	}

	// create new registry for statistics
	err := p.Prometheus.NewRegistry(prometheusStatsPath,
		promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError, ErrorLog: p.Log})
	if err != nil {
		p.Log.Errorf("failed to create Prometheus registry for path '%s', error %s", prometheusStatsPath, err)
		return err
	}

	// initialize gauge vectors for statistics
	for _, statItem := range []struct {
		name   string
		help   string
		labels []string
	}{
		{intentsMetric, "Number of intent keys by table and reconciliation state", []string{tableLabel, stateLabel}},
		{intentAttemptsMetric, "Number of failed attempts of pending intents", []string{tableLabel}},
		{deviceObjectsMetric, "Number of objects in the Device State Store", []string{objectTypeLabel}},
		{referencedObjectsMetric, "Number of device objects with a non-zero reference count", []string{objectTypeLabel}},
		{objectReferencesMetric, "Total number of references held on device objects", []string{objectTypeLabel}},
	} {
		p.gaugeVecs[statItem.name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metricNamespace,
			Name:        statItem.name,
			Help:        statItem.help,
			ConstLabels: prometheus.Labels{nodeLabel: p.agentLabel()},
		}, statItem.labels)
	}

	// register created vectors to prometheus
	for name, metric := range p.gaugeVecs {
		err = p.Prometheus.Register(prometheusStatsPath, metric)
		if err != nil {
			p.Log.Errorf("failed to register %v metric %v", name, err)
			return err
		}
	}

	err = p.RegisterGaugeFunc(convergedMetric, "1 if all intents are applied, 0 otherwise", p.converged)
	if err != nil {
		return err
	}

	p.wg.Add(1)
	go p.periodicUpdates()
	return nil
}

// RegisterGaugeFunc registers a new gauge with specific name, help string and valueFunc to report status when invoked.
func (p *Plugin) RegisterGaugeFunc(name string, help string, valueFunc func() float64) error {
	return p.Prometheus.RegisterGaugeFunc(prometheusStatsPath, metricNamespace, "", name, help,
		prometheus.Labels{nodeLabel: p.agentLabel()}, valueFunc)
}

// Close stops the periodic updates.
func (p *Plugin) Close() error {
	close(p.closeCh)
	p.wg.Wait()
	return nil
}

// periodicUpdates refreshes the published statistics.
func (p *Plugin) periodicUpdates() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closeCh:
			return
		case <-time.After(updatePeriod):
			p.updatePrometheusStats(p.collect())
		}
	}
}

// collect samples the current statistics.
func (p *Plugin) collect() *stats {
	st := &stats{
		intents:           make(map[[2]string]int),
		intentAttempts:    make(map[string]int),
		deviceObjects:     make(map[string]int),
		referencedObjects: make(map[string]int),
		objectReferences:  make(map[string]int),
	}
	if p.Controller != nil {
		for _, status := range p.Controller.GetIntentStates() {
			st.intents[[2]string{status.Table, status.State.String()}]++
			if status.State == controller.Pending {
				st.intentAttempts[status.Table] += status.Attempts
			}
		}
	}
	if p.StateDB != nil {
		db := p.StateDB.DeviceDB()
		for _, objType := range asicdb.ObjectTypes() {
			keys, err := db.Keys(objType.Table())
			if err != nil {
				p.Log.Warnf("failed to count %s objects: %v", objType, err)
				continue
			}
			if len(keys) > 0 {
				st.deviceObjects[string(objType)] = len(keys)
			}
		}
	}
	if p.RefCount != nil {
		for key, count := range p.RefCount.Dump() {
			objType, _, err := asicdb.ParseOID(key)
			if err != nil {
				continue
			}
			st.referencedObjects[string(objType)]++
			st.objectReferences[string(objType)] += count
		}
	}
	return st
}

// updatePrometheusStats publishes the sampled statistics into prometheus.
func (p *Plugin) updatePrometheusStats(st *stats) {
	p.Lock()
	defer p.Unlock()

	if vec, found := p.gaugeVecs[intentsMetric]; found {
		vec.Reset()
		for labels, count := range st.intents {
			vec.WithLabelValues(labels[0], labels[1]).Set(float64(count))
		}
	}
	for name, values := range map[string]map[string]int{
		intentAttemptsMetric:    st.intentAttempts,
		deviceObjectsMetric:     st.deviceObjects,
		referencedObjectsMetric: st.referencedObjects,
		objectReferencesMetric:  st.objectReferences,
	} {
		vec, found := p.gaugeVecs[name]
		if !found {
			continue
		}
		vec.Reset()
		for label, value := range values {
			vec.WithLabelValues(label).Set(float64(value))
		}
	}
}

// converged returns 1 if all known intents are applied.
func (p *Plugin) converged() float64 {
	if p.Controller == nil {
		return 0
	}
	for _, status := range p.Controller.GetIntentStates() {
		if status.State != controller.Applied {
			return 0
		}
	}
	return 1
}

func (p *Plugin) agentLabel() string {
	if p.ServiceLabel == nil {
		return ""
	}
	return p.ServiceLabel.GetAgentLabel()
}
