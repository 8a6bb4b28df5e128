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

package refcount

import (
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/logging"
	. "github.com/onsi/gomega"

	controller "github.com/contiv/orchagent/plugins/controller/api"
)

func newTestTracker() *RefCount {
	rc := &RefCount{
		Deps: Deps{
			PluginDeps: infra.PluginDeps{
				Log: logging.ForPlugin("refcount"),
			},
		},
	}
	Expect(rc.Init()).To(Succeed())
	return rc
}

func TestAcquireRelease(t *testing.T) {
	RegisterTestingT(t)
	rc := newTestTracker()

	Expect(rc.Acquire("vr")).To(Equal(1))
	Expect(rc.Acquire("vr")).To(Equal(2))
	Expect(rc.Count("vr")).To(Equal(2))

	destroyed, err := rc.Release("vr")
	Expect(err).ToNot(HaveOccurred())
	Expect(destroyed).To(BeFalse())

	destroyed, err = rc.Release("vr")
	Expect(err).ToNot(HaveOccurred())
	Expect(destroyed).To(BeTrue())
	Expect(rc.Count("vr")).To(BeZero())
	Expect(rc.Dump()).To(BeEmpty())
}

func TestReleaseUnderflowIsFatal(t *testing.T) {
	RegisterTestingT(t)
	rc := newTestTracker()

	destroyed, err := rc.Release("rif")
	Expect(destroyed).To(BeFalse())
	Expect(err).To(HaveOccurred())
	Expect(controller.IsFatal(err)).To(BeTrue())
	Expect(errors.Cause(err)).To(Equal(controller.ErrRefCountUnderflow))
	Expect(controller.ErrorKind(err)).To(Equal(controller.ErrRefCountUnderflow))

	// count never goes negative
	rc.Acquire("rif")
	_, err = rc.Release("rif")
	Expect(err).ToNot(HaveOccurred())
	_, err = rc.Release("rif")
	Expect(controller.IsFatal(err)).To(BeTrue())
	Expect(rc.Count("rif")).To(BeZero())
}

func TestCheckpointRollback(t *testing.T) {
	RegisterTestingT(t)
	rc := newTestTracker()

	rc.Acquire("a")
	rc.Checkpoint()
	rc.Acquire("a")
	rc.Acquire("b")
	_, err := rc.Release("a")
	Expect(err).ToNot(HaveOccurred())
	_, err = rc.Release("a")
	Expect(err).ToNot(HaveOccurred())
	rc.Rollback()
	Expect(rc.Dump()).To(Equal(map[string]int{"a": 1}))

	// rollback without checkpoint keeps the state
	rc.Acquire("c")
	rc.Rollback()
	Expect(rc.Dump()).To(Equal(map[string]int{"a": 1, "c": 1}))

	rc.Reset()
	Expect(rc.Dump()).To(BeEmpty())
}

func TestConcurrentAcquireRelease(t *testing.T) {
	RegisterTestingT(t)
	rc := newTestTracker()

	const workers = 8
	const rounds = 500
	rc.Acquire("shared")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				rc.Acquire("shared")
				if destroyed, err := rc.Release("shared"); err != nil || destroyed {
					t.Errorf("unexpected release result: destroyed=%v err=%v", destroyed, err)
				}
			}
		}()
	}
	wg.Wait()
	Expect(rc.Count("shared")).To(Equal(1))
}
