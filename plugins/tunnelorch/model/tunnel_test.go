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

package model

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

func TestParseDecapOnly(t *testing.T) {
	RegisterTestingT(t)

	tunnel, err := Parse("IPINIPv4Decap", statedb.NewFieldValues(
		FieldTunnelType, TunnelTypeIPinIP,
		FieldDstIP, "2.2.2.2, 3.3.3.3,2.2.2.2",
		FieldDSCPMode, "uniform",
		FieldECNMode, "standard",
		FieldTTLMode, "pipe"))
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnel.Name).To(Equal("IPINIPv4Decap"))
	Expect(tunnel.DstIPStrings()).To(Equal([]string{"2.2.2.2", "3.3.3.3"}))
	Expect(tunnel.IsSymmetric()).To(BeFalse())
	Expect(tunnel.DSCPMode).To(Equal("uniform"))
}

func TestParseSymmetricV6(t *testing.T) {
	RegisterTestingT(t)

	values := statedb.NewFieldValues(
		FieldTunnelType, TunnelTypeIPinIP,
		FieldDstIP, "2::2,3::3",
		FieldSrcIP, "1::1",
		FieldDSCPMode, "pipe",
		FieldECNMode, "copy_from_outer",
		FieldTTLMode, "uniform")
	tunnel, err := Parse("IPINIPv6", values)
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnel.IsSymmetric()).To(BeTrue())
	Expect(tunnel.SrcIP.String()).To(Equal("1::1"))

	same, err := Parse("IPINIPv6", values.Clone())
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnel.Equal(same)).To(BeTrue())

	// the order of destinations does not matter
	reordered, err := Parse("IPINIPv6", values.Clone().Set(FieldDstIP, "3::3, 2::2"))
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnel.Equal(reordered)).To(BeTrue())

	other, err := Parse("IPINIPv6", values.Clone().Set(FieldDstIP, "3::3,4::4"))
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnel.Equal(other)).To(BeFalse())
	fewer, err := Parse("IPINIPv6", values.Clone().Set(FieldDstIP, "2::2"))
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnel.Equal(fewer)).To(BeFalse())
}

func TestParseInvalid(t *testing.T) {
	RegisterTestingT(t)

	valid := func() *statedb.FieldValues {
		return statedb.NewFieldValues(
			FieldTunnelType, TunnelTypeIPinIP,
			FieldDstIP, "2.2.2.2",
			FieldDSCPMode, "pipe",
			FieldECNMode, "standard",
			FieldTTLMode, "pipe")
	}
	invalid := []*statedb.FieldValues{
		valid().Set(FieldTunnelType, "VXLAN"),
		valid().Set(FieldDstIP, ""),
		valid().Set(FieldDstIP, " , "),
		valid().Set(FieldDstIP, "2.2.2.300"),
		valid().Set(FieldSrcIP, "one"),
		valid().Set(FieldDSCPMode, "short"),
		valid().Set(FieldECNMode, "copy_from_inner"),
		valid().Set(FieldTTLMode, ""),
		valid().Set("mtu", "9100"),
	}
	for _, values := range invalid {
		_, err := Parse("T", values)
		Expect(err).To(HaveOccurred(), values.Pretty())
		Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))
	}
	_, err := Parse("T", valid())
	Expect(err).ToNot(HaveOccurred())
}
