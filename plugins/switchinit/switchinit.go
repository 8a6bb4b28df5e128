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
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/infra"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/idalloc"
	"github.com/contiv/orchagent/plugins/orchconf"
	"github.com/contiv/orchagent/plugins/refcount"
	"github.com/contiv/orchagent/plugins/statedb"
)

const (
	// OIDs of every object type are allocated from a dedicated pool
	oidPoolPrefix = "oid/"
	oidPoolSize   = 1<<16 - 1

	defaultVRLabel  = "vr/default"
	underlayLabel   = "rif/underlay"
	portLabelPrefix = "port/"
)

// SwitchInit plugin creates the base switch objects (ports, default virtual
// router, underlay router interface) and allocates OIDs for all the other
// device objects.
type SwitchInit struct {
	Deps

	sync.Mutex
	ports     map[string]asicdb.OID // port name -> OID
	portNames []string
	defaultVR asicdb.OID
	underlay  asicdb.OID

	destinations      map[string]string // IP -> owner
	savedDestinations map[string]string
}

// Deps lists dependencies of the SwitchInit plugin.
type Deps struct {
	infra.PluginDeps

	OrchConf orchconf.API
	RefCount refcount.API
	IDAlloc  idalloc.API
}

// Init initializes internal maps.
func (s *SwitchInit) Init() error {
	s.ports = make(map[string]asicdb.OID)
	s.destinations = make(map[string]string)
	return nil
}

// Close does nothing.
func (s *SwitchInit) Close() error {
	return nil
}

// HandlesEvent selects resync events only, the base objects do not depend
// on any intent.
func (s *SwitchInit) HandlesEvent(event controller.Event) bool {
	return event.Method() == controller.Resync
}

// Resync starts allocations of OIDs and references from scratch and puts
// the base switch objects into the transaction.
// SwitchInit must be the first event handler: reconcilers re-acquire
// their references and OIDs only after the reset.
func (s *SwitchInit) Resync(event controller.Event, txn controller.ResyncOperations,
	intents controller.IntentSnapshot, resyncCount int) error {

	s.RefCount.Reset()
	s.IDAlloc.ResetPools()
	for _, objType := range asicdb.ObjectTypes() {
		if !objType.HasOID() {
			continue
		}
		err := s.IDAlloc.InitPool(oidPoolName(objType), &idalloc.Range{MinID: 1, MaxID: oidPoolSize})
		if err != nil {
			return controller.NewFatalError(err)
		}
	}

	s.Lock()
	defer s.Unlock()
	s.destinations = make(map[string]string)
	s.savedDestinations = nil
	s.ports = make(map[string]asicdb.OID)
	s.portNames = nil

	// ports go first to keep their OIDs stable
	for _, port := range s.OrchConf.GetPorts() {
		oid, err := s.AllocateOID(asicdb.ObjectTypePort, portLabelPrefix+port.Name)
		if err != nil {
			return controller.NewFatalError(err)
		}
		s.ports[port.Name] = oid
		s.portNames = append(s.portNames, port.Name)
		s.RefCount.Acquire(string(oid))
		txn.Put(asicdb.ObjectTypePort.Table(), string(oid), statedb.NewFieldValues(
			asicdb.PortAttrAdminState, asicdb.True,
			asicdb.PortAttrMTU, strconv.Itoa(int(port.MTU)),
			asicdb.PortAttrSpeed, strconv.Itoa(int(port.Speed)),
		))
	}

	// default virtual router
	var err error
	s.defaultVR, err = s.AllocateOID(asicdb.ObjectTypeVirtualRouter, defaultVRLabel)
	if err != nil {
		return controller.NewFatalError(err)
	}
	s.RefCount.Acquire(string(s.defaultVR))
	txn.Put(asicdb.ObjectTypeVirtualRouter.Table(), string(s.defaultVR), statedb.NewFieldValues(
		asicdb.VirtualRouterAttrAdminV4State, asicdb.True,
		asicdb.VirtualRouterAttrAdminV6State, asicdb.True,
		asicdb.VirtualRouterAttrSrcMACAddress, s.OrchConf.GetRouterMAC(),
	))

	// underlay loopback interface
	s.underlay, err = s.AllocateOID(asicdb.ObjectTypeRouterInterface, underlayLabel)
	if err != nil {
		return controller.NewFatalError(err)
	}
	s.RefCount.Acquire(string(s.underlay))
	txn.Put(asicdb.ObjectTypeRouterInterface.Table(), string(s.underlay), statedb.NewFieldValues(
		asicdb.RouterInterfaceAttrVirtualRouterID, string(s.defaultVR),
		asicdb.RouterInterfaceAttrType, asicdb.RouterInterfaceTypeLoopback,
	))

	s.Log.Infof("Base switch objects: %d ports, default VR %s, underlay RIF %s",
		len(s.portNames), s.defaultVR, s.underlay)
	return nil
}

// Update is never called, SwitchInit handles only resync events.
func (s *SwitchInit) Update(event controller.Event, txn controller.UpdateOperations) (change string, err error) {
	return "", nil
}

// Checkpoint remembers claims of destinations.
func (s *SwitchInit) Checkpoint() {
	s.Lock()
	defer s.Unlock()
	s.savedDestinations = copyClaims(s.destinations)
}

// Rollback restores claims of destinations remembered by the last Checkpoint.
func (s *SwitchInit) Rollback() {
	s.Lock()
	defer s.Unlock()
	if s.savedDestinations == nil {
		return
	}
	s.destinations = s.savedDestinations
	s.savedDestinations = nil
}

// DefaultVirtualRouter returns OID of the default virtual router.
func (s *SwitchInit) DefaultVirtualRouter() asicdb.OID {
	return s.defaultVR
}

// UnderlayInterface returns OID of the underlay router interface.
func (s *SwitchInit) UnderlayInterface() asicdb.OID {
	return s.underlay
}

// GetPortOID returns OID of the front-panel port with the given name.
func (s *SwitchInit) GetPortOID(portName string) (oid asicdb.OID, exists bool) {
	oid, exists = s.ports[portName]
	return oid, exists
}

// GetPortNames returns names of all configured ports.
func (s *SwitchInit) GetPortNames() []string {
	names := append([]string{}, s.portNames...)
	sort.Strings(names)
	return names
}

// RouterMAC returns MAC address of the router.
func (s *SwitchInit) RouterMAC() string {
	return s.OrchConf.GetRouterMAC()
}

// AllocateOID returns OID of the object identified by the label.
func (s *SwitchInit) AllocateOID(objType asicdb.ObjectType, label string) (asicdb.OID, error) {
	if !objType.HasOID() {
		return asicdb.NullOID, controller.NewFatalError(
			errors.Errorf("object type %s is not identified by OID", objType))
	}
	serial, err := s.IDAlloc.GetOrAllocateID(oidPoolName(objType), label)
	if err != nil {
		return asicdb.NullOID, err
	}
	return asicdb.FormatOID(objType, uint64(serial)), nil
}

// GetOID returns OID allocated for the label.
func (s *SwitchInit) GetOID(objType asicdb.ObjectType, label string) (oid asicdb.OID, exists bool) {
	serial, exists := s.IDAlloc.GetID(oidPoolName(objType), label)
	if !exists {
		return asicdb.NullOID, false
	}
	return asicdb.FormatOID(objType, uint64(serial)), true
}

// ReleaseOID returns OID of the label back to the pool.
func (s *SwitchInit) ReleaseOID(objType asicdb.ObjectType, label string) error {
	return s.IDAlloc.ReleaseID(oidPoolName(objType), label)
}

// ClaimDestination registers <owner> as the terminator of traffic destined to <ip>.
func (s *SwitchInit) ClaimDestination(ip string, owner string) error {
	s.Lock()
	defer s.Unlock()
	ip = normalizeIP(ip)
	if prevOwner, claimed := s.destinations[ip]; claimed && prevOwner != owner {
		return errors.Wrapf(controller.ErrDuplicateDestination,
			"destination %s of %s is already terminated by %s", ip, owner, prevOwner)
	}
	s.destinations[ip] = owner
	return nil
}

// ReleaseDestination removes the claim of <owner> over <ip>.
func (s *SwitchInit) ReleaseDestination(ip string, owner string) {
	s.Lock()
	defer s.Unlock()
	ip = normalizeIP(ip)
	if s.destinations[ip] == owner {
		delete(s.destinations, ip)
	}
}

// DestinationOwner returns owner of the claim over <ip>.
func (s *SwitchInit) DestinationOwner(ip string) (owner string, claimed bool) {
	s.Lock()
	defer s.Unlock()
	owner, claimed = s.destinations[normalizeIP(ip)]
	return owner, claimed
}

func oidPoolName(objType asicdb.ObjectType) string {
	return oidPoolPrefix + string(objType)
}

func normalizeIP(ip string) string {
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return ip
}

func copyClaims(claims map[string]string) map[string]string {
	dup := make(map[string]string, len(claims))
	for ip, owner := range claims {
		dup[ip] = owner
	}
	return dup
}
