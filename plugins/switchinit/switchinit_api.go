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
	"github.com/contiv/orchagent/plugins/asicdb"
)

// API defines methods provided by SwitchInit for use by reconcilers.
type API interface {
	// DefaultVirtualRouter returns OID of the default virtual router.
	DefaultVirtualRouter() asicdb.OID

	// UnderlayInterface returns OID of the underlay (loopback) router interface.
	UnderlayInterface() asicdb.OID

	// GetPortOID returns OID of the front-panel port with the given name.
	GetPortOID(portName string) (oid asicdb.OID, exists bool)

	// GetPortNames returns names of all configured ports.
	GetPortNames() []string

	// RouterMAC returns MAC address of the router.
	RouterMAC() string

	// AllocateOID returns OID of the object of the given type identified
	// by <label>. A new OID is allocated if the label has none yet.
	AllocateOID(objType asicdb.ObjectType, label string) (asicdb.OID, error)

	// GetOID returns OID allocated for the label.
	GetOID(objType asicdb.ObjectType, label string) (oid asicdb.OID, exists bool)

	// ReleaseOID returns OID of the label back to the pool.
	ReleaseOID(objType asicdb.ObjectType, label string) error

	// ClaimDestination registers <owner> as the only terminator of traffic
	// destined to <ip>. Returns error wrapping ErrDuplicateDestination if another
	// owner has already claimed the address.
	ClaimDestination(ip string, owner string) error

	// ReleaseDestination removes the claim of <owner> over <ip>.
	ReleaseDestination(ip string, owner string)

	// DestinationOwner returns owner of the claim over <ip>.
	DestinationOwner(ip string) (owner string, claimed bool)
}
