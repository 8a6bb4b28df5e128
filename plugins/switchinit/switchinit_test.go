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

package switchinit

import (
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/idalloc"
	"github.com/contiv/orchagent/plugins/orchconf"
	"github.com/contiv/orchagent/plugins/orchconf/config"
	"github.com/contiv/orchagent/plugins/refcount"
	"github.com/contiv/orchagent/plugins/statedb"
)

type mockTxn map[string]*statedb.FieldValues

func (t mockTxn) Put(table, key string, values *statedb.FieldValues) {
	t[table+"|"+key] = values
}

func (t mockTxn) Get(table, key string) *statedb.FieldValues {
	return t[table+"|"+key]
}

func newTestSwitchInit() (*SwitchInit, *refcount.RefCount) {
	conf := orchconf.NewPlugin(orchconf.UseDeps(func(deps *orchconf.Deps) {
		deps.UnitTestDeps = &orchconf.UnitTestDeps{Config: &config.Config{
			SwitchConfig: config.SwitchConfig{
				RouterMAC: "00:11:22:33:44:55",
				Ports: []config.PortConfig{
					{Name: "Ethernet0"}, {Name: "Ethernet4", MTU: 1500},
				},
			},
		}}
	}))
	Expect(conf.Init()).To(Succeed())
	refCount := refcount.NewPlugin(refcount.UseDeps(func(deps *refcount.Deps) {
		deps.HTTPHandlers = nil
	}))
	Expect(refCount.Init()).To(Succeed())
	idAlloc := idalloc.NewPlugin()
	Expect(idAlloc.Init()).To(Succeed())

	plugin := NewPlugin(UseDeps(func(deps *Deps) {
		deps.OrchConf = conf
		deps.RefCount = refCount
		deps.IDAlloc = idAlloc
	}))
	Expect(plugin.Init()).To(Succeed())
	return plugin, refCount
}

func TestBaseObjects(t *testing.T) {
	RegisterTestingT(t)
	plugin, refCount := newTestSwitchInit()

	Expect(plugin.HandlesEvent(&controller.DBResync{})).To(BeTrue())
	Expect(plugin.HandlesEvent(&controller.IntentChange{})).To(BeFalse())

	txn := make(mockTxn)
	Expect(plugin.Resync(&controller.DBResync{}, txn, nil, 1)).To(Succeed())
	Expect(txn).To(HaveLen(4))

	port0, exists := plugin.GetPortOID("Ethernet0")
	Expect(exists).To(BeTrue())
	Expect(port0).To(Equal(asicdb.FormatOID(asicdb.ObjectTypePort, 1)))
	port4, _ := plugin.GetPortOID("Ethernet4")
	Expect(txn.Get(asicdb.ObjectTypePort.Table(), string(port4)).GetOr(asicdb.PortAttrMTU, "")).To(Equal("1500"))
	Expect(plugin.GetPortNames()).To(Equal([]string{"Ethernet0", "Ethernet4"}))

	vr := plugin.DefaultVirtualRouter()
	Expect(txn.Get(asicdb.ObjectTypeVirtualRouter.Table(), string(vr)).GetOr(
		asicdb.VirtualRouterAttrSrcMACAddress, "")).To(Equal("00:11:22:33:44:55"))
	underlay := txn.Get(asicdb.ObjectTypeRouterInterface.Table(), string(plugin.UnderlayInterface()))
	Expect(underlay.GetOr(asicdb.RouterInterfaceAttrVirtualRouterID, "")).To(Equal(string(vr)))

	// every base object passes the field contract
	for key, values := range txn {
		parts := strings.SplitN(key, "|", 2)
		table, objKey := parts[0], parts[1]
		Expect(asicdb.Validate(table, objKey, values)).To(BeEmpty(), key)
	}

	// base objects are held by the switch
	Expect(refCount.Count(string(vr))).To(Equal(1))
	Expect(refCount.Count(string(plugin.UnderlayInterface()))).To(Equal(1))

	// repeated resync yields the same OIDs and drops everything else
	refCount.Acquire("other")
	Expect(plugin.Resync(&controller.HealingResync{}, make(mockTxn), nil, 2)).To(Succeed())
	Expect(plugin.DefaultVirtualRouter()).To(Equal(vr))
	Expect(refCount.Count("other")).To(BeZero())
	Expect(refCount.Count(string(vr))).To(Equal(1))
}

func TestOIDAllocation(t *testing.T) {
	RegisterTestingT(t)
	plugin, _ := newTestSwitchInit()
	Expect(plugin.Resync(&controller.DBResync{}, make(mockTxn), nil, 1)).To(Succeed())

	tunnel, err := plugin.AllocateOID(asicdb.ObjectTypeTunnel, "tunnel/T1")
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnel).To(Equal(asicdb.FormatOID(asicdb.ObjectTypeTunnel, 1)))

	again, err := plugin.AllocateOID(asicdb.ObjectTypeTunnel, "tunnel/T1")
	Expect(err).ToNot(HaveOccurred())
	Expect(again).To(Equal(tunnel))
	oid, exists := plugin.GetOID(asicdb.ObjectTypeTunnel, "tunnel/T1")
	Expect(exists).To(BeTrue())
	Expect(oid).To(Equal(tunnel))

	other, _ := plugin.AllocateOID(asicdb.ObjectTypeTunnel, "tunnel/T2")
	Expect(other).To(Equal(asicdb.FormatOID(asicdb.ObjectTypeTunnel, 2)))

	// released OIDs are reused
	Expect(plugin.ReleaseOID(asicdb.ObjectTypeTunnel, "tunnel/T1")).To(Succeed())
	_, exists = plugin.GetOID(asicdb.ObjectTypeTunnel, "tunnel/T1")
	Expect(exists).To(BeFalse())
	reused, _ := plugin.AllocateOID(asicdb.ObjectTypeTunnel, "tunnel/T3")
	Expect(reused).To(Equal(tunnel))

	// entries are not identified by OIDs
	_, err = plugin.AllocateOID(asicdb.ObjectTypeRouteEntry, "route")
	Expect(controller.IsFatal(err)).To(BeTrue())
}

func TestDestinationClaims(t *testing.T) {
	RegisterTestingT(t)
	plugin, _ := newTestSwitchInit()
	Expect(plugin.Resync(&controller.DBResync{}, make(mockTxn), nil, 1)).To(Succeed())

	Expect(plugin.ClaimDestination("2.2.2.2", "tunnel/T1")).To(Succeed())
	Expect(plugin.ClaimDestination("2.2.2.2", "tunnel/T1")).To(Succeed())
	err := plugin.ClaimDestination("2.2.2.2", "tunnel/T2")
	Expect(errors.Cause(err)).To(Equal(controller.ErrDuplicateDestination))

	// IPv6 addresses are compared in the canonical form
	Expect(plugin.ClaimDestination("fc00::0:1", "tunnel/T1")).To(Succeed())
	owner, claimed := plugin.DestinationOwner("fc00::1")
	Expect(claimed).To(BeTrue())
	Expect(owner).To(Equal("tunnel/T1"))

	plugin.Checkpoint()
	plugin.ReleaseDestination("2.2.2.2", "tunnel/T2") // not the owner
	plugin.ReleaseDestination("2.2.2.2", "tunnel/T1")
	Expect(plugin.ClaimDestination("2.2.2.2", "tunnel/T2")).To(Succeed())
	plugin.Rollback()

	owner, _ = plugin.DestinationOwner("2.2.2.2")
	Expect(owner).To(Equal("tunnel/T1"))
}
