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
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	. "github.com/onsi/gomega"
)

type changeRecorder struct {
	sync.Mutex
	changes []Change
}

func (r *changeRecorder) onChange(change Change) {
	r.Lock()
	defer r.Unlock()
	r.changes = append(r.changes, change)
}

func (r *changeRecorder) get() []Change {
	r.Lock()
	defer r.Unlock()
	return append([]Change{}, r.changes...)
}

func TestMemDBBasicOperations(t *testing.T) {
	RegisterTestingT(t)

	var db DB = NewMemDB(IntentDBName)
	Expect(db.Name()).To(Equal(IntentDBName))

	Expect(db.Set("TUNNEL_DECAP_TABLE", "T2", NewFieldValues("tunnel_type", "IPINIP"))).To(Succeed())
	Expect(db.Set("TUNNEL_DECAP_TABLE", "T1", NewFieldValues("tunnel_type", "IPINIP", "dst_ip", "2.2.2.2"))).To(Succeed())

	keys, err := db.Keys("TUNNEL_DECAP_TABLE")
	Expect(err).ToNot(HaveOccurred())
	Expect(keys).To(Equal([]string{"T1", "T2"}))

	value, found, err := db.Get("TUNNEL_DECAP_TABLE", "T1")
	Expect(err).ToNot(HaveOccurred())
	Expect(found).To(BeTrue())
	Expect(value.GetOr("dst_ip", "")).To(Equal("2.2.2.2"))

	// returned value is a copy
	value.Set("dst_ip", "9.9.9.9")
	value, _, _ = db.Get("TUNNEL_DECAP_TABLE", "T1")
	Expect(value.GetOr("dst_ip", "")).To(Equal("2.2.2.2"))

	Expect(db.Delete("TUNNEL_DECAP_TABLE", "T1")).To(Succeed())
	Expect(db.Delete("TUNNEL_DECAP_TABLE", "T1")).To(Succeed())
	_, found, err = db.Get("TUNNEL_DECAP_TABLE", "T1")
	Expect(err).ToNot(HaveOccurred())
	Expect(found).To(BeFalse())

	tables, err := db.Tables()
	Expect(err).ToNot(HaveOccurred())
	Expect(tables).To(Equal([]string{"TUNNEL_DECAP_TABLE"}))

	Expect(db.Delete("TUNNEL_DECAP_TABLE", "T2")).To(Succeed())
	tables, err = db.Tables()
	Expect(err).ToNot(HaveOccurred())
	Expect(tables).To(BeEmpty())
}

func TestMemDBApplyIsAtomic(t *testing.T) {
	RegisterTestingT(t)

	db := NewMemDB(DeviceDBName)
	err := db.Apply([]Operation{
		{Table: "A", Key: "1", Op: OpSet, Values: NewFieldValues("f", "v")},
		{Table: "A", Key: "", Op: OpSet, Values: NewFieldValues("f", "v")},
	})
	Expect(err).To(HaveOccurred())
	snapshot, err := Dump(db)
	Expect(err).ToNot(HaveOccurred())
	Expect(snapshot).To(BeEmpty())

	Expect(db.Apply([]Operation{
		{Table: "A", Key: "1", Op: OpSet, Values: NewFieldValues("f", "v")},
		{Table: "B", Key: "2", Op: OpSet, Values: NewFieldValues("g", "w")},
		{Table: "A", Key: "1", Op: OpDel},
	})).To(Succeed())
	snapshot, err = Dump(db)
	Expect(err).ToNot(HaveOccurred())
	Expect(snapshot).To(Equal(Snapshot{"B": {"2": {"g": "w"}}}))
}

func TestMemDBUnavailable(t *testing.T) {
	RegisterTestingT(t)

	db := NewMemDB(DeviceDBName)
	db.SetUnavailable(true)
	err := db.Set("A", "1", NewFieldValues("f", "v"))
	Expect(errors.Cause(err)).To(Equal(ErrUnavailable))
	_, _, err = db.Get("A", "1")
	Expect(errors.Cause(err)).To(Equal(ErrUnavailable))

	db.SetUnavailable(false)
	Expect(db.Set("A", "1", NewFieldValues("f", "v"))).To(Succeed())
	Expect(db.Revision()).To(BeEquivalentTo(1))
}

func TestMemDBWatch(t *testing.T) {
	RegisterTestingT(t)

	db := NewMemDB(IntentDBName)
	recorder := &changeRecorder{}
	stop, err := db.Watch(recorder.onChange, "VNET_TABLE")
	Expect(err).ToNot(HaveOccurred())

	Expect(db.Set("VNET_TABLE", "Vnet1", NewFieldValues("vni", "1000"))).To(Succeed())
	Expect(db.Set("TUNNEL_DECAP_TABLE", "T1", NewFieldValues("tunnel_type", "IPINIP"))).To(Succeed())
	Expect(db.Set("VNET_TABLE", "Vnet1", NewFieldValues("vni", "2000"))).To(Succeed())
	Expect(db.Delete("VNET_TABLE", "Vnet1")).To(Succeed())
	Expect(db.Delete("VNET_TABLE", "Vnet1")).To(Succeed()) // no change

	Eventually(func() int { return len(recorder.get()) }, time.Second).Should(Equal(3))
	changes := recorder.get()
	Expect(changes[0].Op).To(Equal(OpSet))
	Expect(changes[0].PrevValues).To(BeNil())
	Expect(changes[1].Values.GetOr("vni", "")).To(Equal("2000"))
	Expect(changes[1].PrevValues.GetOr("vni", "")).To(Equal("1000"))
	Expect(changes[2].Op).To(Equal(OpDel))
	Expect(changes[2].Values).To(BeNil())
	Expect(changes[2].PrevValues.GetOr("vni", "")).To(Equal("2000"))
	Expect(changes[2].Revision).To(BeNumerically(">", changes[1].Revision))

	stop()
	Expect(db.Set("VNET_TABLE", "Vnet2", NewFieldValues("vni", "3000"))).To(Succeed())
	Consistently(func() int { return len(recorder.get()) }, 100*time.Millisecond).Should(Equal(3))
}

func TestFieldValues(t *testing.T) {
	RegisterTestingT(t)

	fvs := NewFieldValues("b", "2", "a", "1", "dangling")
	Expect(fvs.Len()).To(Equal(2))
	Expect(fvs.Pretty()).To(Equal("{a=1, b=2}"))
	Expect(fvs.Equal(FromMap(map[string]string{"a": "1", "b": "2"}))).To(BeTrue())
	Expect(fvs.Equal(NewFieldValues("a", "1"))).To(BeFalse())

	var nilFvs *FieldValues
	Expect(nilFvs.Len()).To(BeZero())
	Expect(nilFvs.Clone()).To(BeNil())
	_, has := nilFvs.Get("a")
	Expect(has).To(BeFalse())
}
