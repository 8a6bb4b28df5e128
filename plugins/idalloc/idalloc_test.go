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

package idalloc

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/logging"
	. "github.com/onsi/gomega"
)

func newTestAllocator() *IDAllocator {
	a := &IDAllocator{
		Deps: Deps{
			PluginDeps: infra.PluginDeps{
				Log: logging.ForPlugin("idalloc"),
			},
		},
	}
	Expect(a.Init()).To(Succeed())
	return a
}

func TestInitPool(t *testing.T) {
	RegisterTestingT(t)
	a := newTestAllocator()

	Expect(a.InitPool("vnet-bits", &Range{MinID: 0, MaxID: 31})).To(Succeed())
	Expect(a.InitPool("vnet-bits", &Range{MinID: 0, MaxID: 31})).To(Succeed())
	Expect(a.InitPool("vnet-bits", &Range{MinID: 0, MaxID: 15})).ToNot(Succeed())
	Expect(a.InitPool("invalid", &Range{MinID: 10, MaxID: 1})).ToNot(Succeed())

	_, err := a.GetOrAllocateID("unknown", "x")
	Expect(err).To(HaveOccurred())
}

func TestAllocateLowestFreeAndReuse(t *testing.T) {
	RegisterTestingT(t)
	a := newTestAllocator()
	Expect(a.InitPool("pool", &Range{MinID: 1, MaxID: 4, Reserved: []uint32{2}})).To(Succeed())

	id, err := a.GetOrAllocateID("pool", "a")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(1))

	id, err = a.GetOrAllocateID("pool", "b")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(3))

	// same label -> same ID
	id, err = a.GetOrAllocateID("pool", "a")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(1))

	id, err = a.GetOrAllocateID("pool", "c")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(4))

	_, err = a.GetOrAllocateID("pool", "d")
	Expect(errors.Cause(err)).To(Equal(ErrPoolExhausted))

	Expect(a.ReleaseID("pool", "a")).To(Succeed())
	Expect(a.ReleaseID("pool", "a")).To(Succeed())
	id, err = a.GetOrAllocateID("pool", "d")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(1))

	labels, ids := a.Allocations("pool")
	Expect(labels).To(Equal([]string{"d", "b", "c"}))
	Expect(ids).To(HaveKeyWithValue("b", uint32(3)))
}

func TestNoLeakOverCycles(t *testing.T) {
	RegisterTestingT(t)
	a := newTestAllocator()
	Expect(a.InitPool("members", &Range{MinID: 0, MaxID: 7})).To(Succeed())

	for cycle := 0; cycle < 100; cycle++ {
		for i := 0; i < 8; i++ {
			_, err := a.GetOrAllocateID("members", fmt.Sprintf("Ethernet%d", i*4))
			Expect(err).ToNot(HaveOccurred())
		}
		for i := 0; i < 8; i++ {
			Expect(a.ReleaseID("members", fmt.Sprintf("Ethernet%d", i*4))).To(Succeed())
		}
	}
	usage, err := a.PoolUsage("members")
	Expect(err).ToNot(HaveOccurred())
	Expect(usage).To(BeZero())
}

func TestCheckpointRollbackAndReset(t *testing.T) {
	RegisterTestingT(t)
	a := newTestAllocator()
	Expect(a.InitPool("pool", &Range{MinID: 0, MaxID: 3, Reserved: []uint32{0}})).To(Succeed())

	_, err := a.GetOrAllocateID("pool", "a")
	Expect(err).ToNot(HaveOccurred())
	a.Checkpoint()
	Expect(a.ReleaseID("pool", "a")).To(Succeed())
	_, err = a.GetOrAllocateID("pool", "b")
	Expect(err).ToNot(HaveOccurred())
	a.Rollback()

	id, exists := a.GetID("pool", "a")
	Expect(exists).To(BeTrue())
	Expect(id).To(BeEquivalentTo(1))
	_, exists = a.GetID("pool", "b")
	Expect(exists).To(BeFalse())

	a.ResetPools()
	usage, err := a.PoolUsage("pool")
	Expect(err).ToNot(HaveOccurred())
	Expect(usage).To(BeZero())
	id, err = a.GetOrAllocateID("pool", "c")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(1)) // 0 stays reserved
}

func TestReleasedIDsWaitForNextCheckpoint(t *testing.T) {
	RegisterTestingT(t)
	a := newTestAllocator()
	Expect(a.InitPool("pool", &Range{MinID: 1, MaxID: 3})).To(Succeed())

	_, err := a.GetOrAllocateID("pool", "a")
	Expect(err).ToNot(HaveOccurred())

	// ID released within the transaction is not handed out again
	a.Checkpoint()
	Expect(a.ReleaseID("pool", "a")).To(Succeed())
	id, err := a.GetOrAllocateID("pool", "a")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(2))
	id, err = a.GetOrAllocateID("pool", "b")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(3))
	_, err = a.GetOrAllocateID("pool", "c")
	Expect(errors.Cause(err)).To(Equal(ErrPoolExhausted))

	// the next transaction can reuse it
	a.Checkpoint()
	id, err = a.GetOrAllocateID("pool", "c")
	Expect(err).ToNot(HaveOccurred())
	Expect(id).To(BeEquivalentTo(1))
}

func TestRollbackRestoresOnlyModifiedPools(t *testing.T) {
	RegisterTestingT(t)
	a := newTestAllocator()
	Expect(a.InitPool("touched", &Range{MinID: 1, MaxID: 10})).To(Succeed())
	Expect(a.InitPool("untouched", &Range{MinID: 1, MaxID: 10})).To(Succeed())
	_, err := a.GetOrAllocateID("untouched", "x")
	Expect(err).ToNot(HaveOccurred())

	a.Checkpoint()
	Expect(a.saved).To(BeEmpty())
	_, err = a.GetOrAllocateID("touched", "a")
	Expect(err).ToNot(HaveOccurred())
	Expect(a.InitPool("new", &Range{MinID: 1, MaxID: 10})).To(Succeed())
	Expect(a.saved).To(HaveLen(2))
	Expect(a.saved).ToNot(HaveKey("untouched"))
	a.Rollback()

	usage, err := a.PoolUsage("touched")
	Expect(err).ToNot(HaveOccurred())
	Expect(usage).To(BeZero())
	usage, err = a.PoolUsage("untouched")
	Expect(err).ToNot(HaveOccurred())
	Expect(usage).To(Equal(1))
	_, err = a.PoolUsage("new")
	Expect(err).To(HaveOccurred())
}
