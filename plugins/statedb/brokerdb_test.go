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

package statedb

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/logging/logrus"

	"github.com/contiv/orchagent/mock/kvstore"
)

func TestBrokerDBBasicOperations(t *testing.T) {
	RegisterTestingT(t)

	kv := kvstore.NewMockKVStore()
	db := NewBrokerDB(IntentDBName, kv, logrus.DefaultLogger())
	Expect(db.Name()).To(Equal(IntentDBName))

	Expect(db.Set("VNET_TABLE", "Vnet_2", NewFieldValues("vni", "2000"))).To(Succeed())
	Expect(db.Set("VNET_TABLE", "Vnet_1", NewFieldValues("vni", "1000", "vxlan_tunnel", "tunnel_1"))).To(Succeed())
	Expect(db.Set("VNET_ROUTE_TABLE", "Vnet_1:10.0.0.0/24", NewFieldValues("ifname", "Ethernet0"))).To(Succeed())
	Expect(kv.Keys()).To(ContainElement(KeyPrefix(IntentDBName) + "VNET_ROUTE_TABLE/Vnet_1:10.0.0.0/24"))

	values, found, err := db.Get("VNET_TABLE", "Vnet_1")
	Expect(err).ToNot(HaveOccurred())
	Expect(found).To(BeTrue())
	Expect(values.Equal(NewFieldValues("vxlan_tunnel", "tunnel_1", "vni", "1000"))).To(BeTrue())

	_, found, err = db.Get("VNET_TABLE", "Vnet_3")
	Expect(err).ToNot(HaveOccurred())
	Expect(found).To(BeFalse())

	keys, err := db.Keys("VNET_TABLE")
	Expect(err).ToNot(HaveOccurred())
	Expect(keys).To(Equal([]string{"Vnet_1", "Vnet_2"}))

	// keys containing the separator survive the round trip
	keys, err = db.Keys("VNET_ROUTE_TABLE")
	Expect(err).ToNot(HaveOccurred())
	Expect(keys).To(Equal([]string{"Vnet_1:10.0.0.0/24"}))

	tables, err := db.Tables()
	Expect(err).ToNot(HaveOccurred())
	Expect(tables).To(Equal([]string{"VNET_ROUTE_TABLE", "VNET_TABLE"}))

	Expect(db.Apply([]Operation{
		{Table: "VNET_TABLE", Key: "Vnet_2", Op: OpDel},
		{Table: "VNET_TABLE", Key: "Vnet_3", Op: OpSet, Values: NewFieldValues("vni", "3000")},
	})).To(Succeed())
	keys, err = db.Keys("VNET_TABLE")
	Expect(err).ToNot(HaveOccurred())
	Expect(keys).To(Equal([]string{"Vnet_1", "Vnet_3"}))

	snapshot, err := Dump(db)
	Expect(err).ToNot(HaveOccurred())
	Expect(snapshot["VNET_TABLE"]["Vnet_3"]).To(Equal(map[string]string{"vni": "3000"}))

	// devices and intents do not share keys
	deviceDB := NewBrokerDB(DeviceDBName, kv, logrus.DefaultLogger())
	tables, err = deviceDB.Tables()
	Expect(err).ToNot(HaveOccurred())
	Expect(tables).To(BeEmpty())

	Expect(db.Set("VNET_TABLE", "Vnet_4", nil)).ToNot(Succeed())
}

func TestBrokerDBUnavailable(t *testing.T) {
	RegisterTestingT(t)

	kv := kvstore.NewMockKVStore()
	db := NewBrokerDB(DeviceDBName, kv, logrus.DefaultLogger())
	kv.SetFailing(true)

	err := db.Set("ASIC_STATE:SAI_OBJECT_TYPE_VIRTUAL_ROUTER", "oid:0x3000000000001", NewFieldValues("a", "b"))
	Expect(errors.Cause(err)).To(Equal(ErrUnavailable))
	_, _, err = db.Get("ASIC_STATE:SAI_OBJECT_TYPE_VIRTUAL_ROUTER", "oid:0x3000000000001")
	Expect(errors.Cause(err)).To(Equal(ErrUnavailable))
	_, err = db.Keys("ASIC_STATE:SAI_OBJECT_TYPE_VIRTUAL_ROUTER")
	Expect(errors.Cause(err)).To(Equal(ErrUnavailable))
	_, err = db.Tables()
	Expect(errors.Cause(err)).To(Equal(ErrUnavailable))
	_, err = db.Watch(func(Change) {})
	Expect(errors.Cause(err)).To(Equal(ErrUnavailable))
}

func TestBrokerDBWatch(t *testing.T) {
	RegisterTestingT(t)

	kv := kvstore.NewMockKVStore()
	db := NewBrokerDB(IntentDBName, kv, logrus.DefaultLogger())
	recorder := &changeRecorder{}
	stop, err := db.Watch(recorder.onChange, "VNET_TABLE")
	Expect(err).ToNot(HaveOccurred())
	defer stop()

	Expect(db.Set("VNET_TABLE", "Vnet1", NewFieldValues("vni", "1000"))).To(Succeed())
	Expect(db.Set("TUNNEL_DECAP_TABLE", "T1", NewFieldValues("tunnel_type", "IPINIP"))).To(Succeed())
	Expect(db.Set("VNET_TABLE", "Vnet1", NewFieldValues("vni", "2000"))).To(Succeed())
	Expect(db.Delete("VNET_TABLE", "Vnet1")).To(Succeed())

	changes := recorder.get()
	Expect(changes).To(HaveLen(3))
	Expect(changes[0].Table).To(Equal("VNET_TABLE"))
	Expect(changes[0].Key).To(Equal("Vnet1"))
	Expect(changes[0].Op).To(Equal(OpSet))
	Expect(changes[0].PrevValues).To(BeNil())
	Expect(changes[1].Values.GetOr("vni", "")).To(Equal("2000"))
	Expect(changes[1].PrevValues.GetOr("vni", "")).To(Equal("1000"))
	Expect(changes[2].Op).To(Equal(OpDel))
	Expect(changes[2].Values).To(BeNil())
	Expect(changes[2].PrevValues.GetOr("vni", "")).To(Equal("2000"))
	Expect(changes[2].Revision).To(BeNumerically(">", changes[1].Revision))
}

func TestBrokerDBApplyIsAtomic(t *testing.T) {
	RegisterTestingT(t)

	kv := kvstore.NewMockKVStore()
	db := NewBrokerDB(DeviceDBName, kv, logrus.DefaultLogger())

	// every reader woken up by the batch sees all of it
	var visible []int
	stop, err := db.Watch(func(Change) {
		snapshot, err := Dump(db)
		Expect(err).ToNot(HaveOccurred())
		count := 0
		for _, table := range snapshot {
			count += len(table)
		}
		visible = append(visible, count)
	})
	Expect(err).ToNot(HaveOccurred())
	defer stop()

	Expect(db.Apply([]Operation{
		{Table: "ASIC_STATE:SAI_OBJECT_TYPE_ROUTER_INTERFACE", Key: "oid:0x6000000000001", Op: OpSet,
			Values: NewFieldValues("SAI_ROUTER_INTERFACE_ATTR_TYPE", "SAI_ROUTER_INTERFACE_TYPE_LOOPBACK")},
		{Table: "ASIC_STATE:SAI_OBJECT_TYPE_TUNNEL", Key: "oid:0x2a000000000001", Op: OpSet,
			Values: NewFieldValues("SAI_TUNNEL_ATTR_OVERLAY_INTERFACE", "oid:0x6000000000001")},
		{Table: "ASIC_STATE:SAI_OBJECT_TYPE_TUNNEL_TERM_TABLE_ENTRY", Key: "oid:0x2b000000000001", Op: OpSet,
			Values: NewFieldValues("SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_ACTION_TUNNEL_ID", "oid:0x2a000000000001")},
	})).To(Succeed())
	Expect(visible).To(Equal([]int{3, 3, 3}))

	visible = nil
	Expect(db.Apply([]Operation{
		{Table: "ASIC_STATE:SAI_OBJECT_TYPE_TUNNEL_TERM_TABLE_ENTRY", Key: "oid:0x2b000000000001", Op: OpDel},
		{Table: "ASIC_STATE:SAI_OBJECT_TYPE_TUNNEL", Key: "oid:0x2a000000000001", Op: OpDel},
	})).To(Succeed())
	Expect(visible).To(Equal([]int{1, 1}))

	// a failed commit leaves the store untouched
	kv.SetFailing(true)
	err = db.Apply([]Operation{
		{Table: "ASIC_STATE:SAI_OBJECT_TYPE_ROUTER_INTERFACE", Key: "oid:0x6000000000001", Op: OpDel},
	})
	Expect(errors.Cause(err)).To(Equal(ErrUnavailable))
	kv.SetFailing(false)
	keys, err := db.Keys("ASIC_STATE:SAI_OBJECT_TYPE_ROUTER_INTERFACE")
	Expect(err).ToNot(HaveOccurred())
	Expect(keys).To(Equal([]string{"oid:0x6000000000001"}))
}
