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

func TestParseVnet(t *testing.T) {
	RegisterTestingT(t)

	vnet, err := ParseVnet("Vnet_2000", statedb.NewFieldValues(FieldVxlanTunnel, "tunnel_1", FieldVNI, "2000"))
	Expect(err).ToNot(HaveOccurred())
	Expect(vnet.VxlanTunnel).To(Equal("tunnel_1"))
	Expect(vnet.VNI).To(BeEquivalentTo(2000))

	for _, values := range []*statedb.FieldValues{
		statedb.NewFieldValues(FieldVNI, "2000"),
		statedb.NewFieldValues(FieldVxlanTunnel, "tunnel_1"),
		statedb.NewFieldValues(FieldVxlanTunnel, "tunnel_1", FieldVNI, "0"),
		statedb.NewFieldValues(FieldVxlanTunnel, "tunnel_1", FieldVNI, "16777216"),
		statedb.NewFieldValues(FieldVxlanTunnel, "tunnel_1", FieldVNI, "1", "scope", "default"),
	} {
		_, err = ParseVnet("Vnet_2000", values)
		Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig), values.Pretty())
	}
	_, err = ParseVnet("Vnet:1", statedb.NewFieldValues(FieldVxlanTunnel, "tunnel_1", FieldVNI, "1"))
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))
}

func TestParseRoutes(t *testing.T) {
	RegisterTestingT(t)

	route, err := ParseVnetRoute("Vnet_1:10.1.1.7/24", statedb.NewFieldValues(FieldIfName, "Ethernet8"))
	Expect(err).ToNot(HaveOccurred())
	Expect(route.Vnet).To(Equal("Vnet_1"))
	Expect(route.Prefix.String()).To(Equal("10.1.1.0/24"))
	Expect(route.IfName).To(Equal("Ethernet8"))

	tunnelRoute, err := ParseVnetTunnelRoute("Vnet_1:fd:1::/64", statedb.NewFieldValues(
		FieldEndpoint, "10.10.10.1", FieldMACAddress, "00:AA:bb:cc:dd:ee", FieldVNI, "7"))
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnelRoute.Vnet).To(Equal("Vnet_1"))
	Expect(tunnelRoute.Prefix.String()).To(Equal("fd:1::/64"))
	Expect(tunnelRoute.Endpoint.String()).To(Equal("10.10.10.1"))
	Expect(tunnelRoute.MAC).To(Equal("00:aa:bb:cc:dd:ee"))
	Expect(tunnelRoute.VNI).To(BeEquivalentTo(7))

	tunnelRoute, err = ParseVnetTunnelRoute("Vnet_1:100.100.1.1", statedb.NewFieldValues(FieldEndpoint, "10.10.10.1"))
	Expect(err).ToNot(HaveOccurred())
	Expect(tunnelRoute.Prefix.String()).To(Equal("100.100.1.1/32"))
	Expect(tunnelRoute.MAC).To(BeEmpty())
	Expect(tunnelRoute.VNI).To(BeZero())

	_, err = ParseVnetRoute("10.1.1.0/24", statedb.NewFieldValues(FieldIfName, "Ethernet8"))
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))
	_, err = ParseVnetRoute("Vnet_1:10.1.1.0/24", statedb.NewFieldValues())
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))
	_, err = ParseVnetTunnelRoute("Vnet_1:10.1.1.0/24", statedb.NewFieldValues(FieldEndpoint, "x"))
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))
	_, err = ParseVnetTunnelRoute("Vnet_1:10.1.1.0/24", statedb.NewFieldValues(
		FieldEndpoint, "10.0.0.1", FieldMACAddress, "zz"))
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))
}

func TestParseMembersAndNeighbors(t *testing.T) {
	RegisterTestingT(t)

	member, err := ParseVnetInterface("Ethernet0", statedb.NewFieldValues(FieldVnetName, "Vnet_1"))
	Expect(err).ToNot(HaveOccurred())
	Expect(member.Vnet).To(Equal("Vnet_1"))
	_, err = ParseVnetInterface("Ethernet0", nil)
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))

	neigh, err := ParseVnetNeighbor("Ethernet0:fd::5", statedb.NewFieldValues(FieldNeigh, "00:00:00:00:00:05"))
	Expect(err).ToNot(HaveOccurred())
	Expect(neigh.IfName).To(Equal("Ethernet0"))
	Expect(neigh.IP.String()).To(Equal("fd::5"))
	_, err = ParseVnetNeighbor("Ethernet0", statedb.NewFieldValues(FieldNeigh, "00:00:00:00:00:05"))
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))
	_, err = ParseVnetNeighbor("Ethernet0:10.0.0.1", statedb.NewFieldValues(FieldNeigh, "-"))
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))

	_, err = ParseVxlanTunnel("tunnel_1", statedb.NewFieldValues(FieldSrcIP, "10.10.10.10"))
	Expect(err).ToNot(HaveOccurred())
	_, err = ParseVxlanTunnel("tunnel_1", statedb.NewFieldValues())
	Expect(errors.Cause(err)).To(Equal(controller.ErrInvalidConfig))
}
