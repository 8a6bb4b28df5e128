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

package vnetorch

import (
	"strconv"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/asicdb"
	controller "github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

// Names of the VNET representations.
const (
	LegacyMode = "legacy"
	BitmapMode = "bitmap"
)

// representation programs forwarding entries of a VNET. It is selected when
// the VNET is created and kept for the whole VNET lifetime.
type representation interface {
	String() string

	// addMember programs classification of traffic received on the member interface.
	addMember(v *vnet, m *member, txn controller.UpdateOperations) error
	delMember(v *vnet, m *member, txn controller.UpdateOperations) error

	// addRoute programs forwarding entry for the route and sets route.entry.
	addRoute(v *vnet, r *route, txn controller.UpdateOperations) error
	delRoute(v *vnet, r *route, txn controller.UpdateOperations) error

	// routes reads forwarding entries of the VNET from the Device State Store.
	routes(db statedb.DB, v *vnet) ([]asicdb.Route, error)
}

/********************************** Legacy ************************************/

// legacyRepr programs one ROUTE_ENTRY per route inside the VNET virtual router.
type legacyRepr struct{}

func (legacyRepr) String() string {
	return LegacyMode
}

func (legacyRepr) addMember(v *vnet, m *member, txn controller.UpdateOperations) error {
	return nil
}

func (legacyRepr) delMember(v *vnet, m *member, txn controller.UpdateOperations) error {
	return nil
}

func (legacyRepr) addRoute(v *vnet, r *route, txn controller.UpdateOperations) error {
	r.entry = asicdb.RouteEntryKey{Dest: r.prefix.String(), VR: v.vr}.String()
	txn.Put(asicdb.ObjectTypeRouteEntry.Table(), r.entry, statedb.NewFieldValues(
		asicdb.RouteEntryAttrNextHopID, string(r.target),
	))
	return nil
}

func (legacyRepr) delRoute(v *vnet, r *route, txn controller.UpdateOperations) error {
	txn.Delete(asicdb.ObjectTypeRouteEntry.Table(), r.entry)
	return nil
}

func (legacyRepr) routes(db statedb.DB, v *vnet) ([]asicdb.Route, error) {
	return asicdb.LegacyRoutes(db, v.vr)
}

/********************************** Bitmap ************************************/

// bitmapRepr tags traffic of member interfaces with the VNET bit and programs
// routes as TABLE_BITMAP_ROUTER_ENTRY objects shared by all VNETs with
// the same (prefix, target).
type bitmapRepr struct {
	o *VnetOrch
}

func (bitmapRepr) String() string {
	return BitmapMode
}

func (b bitmapRepr) addMember(v *vnet, m *member, txn controller.UpdateOperations) (err error) {
	m.classEntry, err = b.o.SwitchInit.AllocateOID(asicdb.ObjectTypeTableBitmapClassificationEntry,
		classEntryLabel(m.intent.IfName))
	if err != nil {
		return err
	}
	txn.Put(asicdb.ObjectTypeTableBitmapClassificationEntry.Table(), string(m.classEntry), statedb.NewFieldValues(
		asicdb.BitmapClassAttrAction, asicdb.BitmapClassActionSetMetadata,
		asicdb.BitmapClassAttrRouterInterface, string(m.rif),
		asicdb.BitmapClassAttrInRIFMetadata, asicdb.FormatBitmap(1<<v.bit),
	))
	return nil
}

func (b bitmapRepr) delMember(v *vnet, m *member, txn controller.UpdateOperations) error {
	txn.Delete(asicdb.ObjectTypeTableBitmapClassificationEntry.Table(), string(m.classEntry))
	return b.o.SwitchInit.ReleaseOID(asicdb.ObjectTypeTableBitmapClassificationEntry,
		classEntryLabel(m.intent.IfName))
}

func (b bitmapRepr) addRoute(v *vnet, r *route, txn controller.UpdateOperations) error {
	label := bitmapEntryLabel(r.prefix.String(), r.target)
	entry, shared := b.o.st.bitmapEntries[label]
	if shared {
		entry = entry.withVnet(v.bit, true)
	} else {
		oid, err := b.o.SwitchInit.AllocateOID(asicdb.ObjectTypeTableBitmapRouterEntry, label)
		if err != nil {
			return err
		}
		entry = &bitmapEntry{
			label:  label,
			oid:    oid,
			prefix: r.prefix,
			target: r.target,
			local:  r.tunnelRoute == nil,
			vnets:  bitset.New(uint(b.o.OrchConf.GetVnetBitmapSize())).Set(uint(v.bit)),
		}
	}
	b.o.st.bitmapEntries[label] = entry
	r.entry = label
	txn.Put(asicdb.ObjectTypeTableBitmapRouterEntry.Table(), string(entry.oid), entry.values())
	return nil
}

func (b bitmapRepr) delRoute(v *vnet, r *route, txn controller.UpdateOperations) error {
	entry, exists := b.o.st.bitmapEntries[r.entry]
	if !exists {
		return controller.NewFatalError(errors.Errorf("bitmap entry %s of route %s:%s not found",
			r.entry, r.vnet, r.prefix))
	}
	entry = entry.withVnet(v.bit, false)
	if entry.vnets.Any() {
		// other VNETs still use the entry
		b.o.st.bitmapEntries[r.entry] = entry
		txn.Put(asicdb.ObjectTypeTableBitmapRouterEntry.Table(), string(entry.oid), entry.values())
		return nil
	}
	delete(b.o.st.bitmapEntries, r.entry)
	txn.Delete(asicdb.ObjectTypeTableBitmapRouterEntry.Table(), string(entry.oid))
	return b.o.SwitchInit.ReleaseOID(asicdb.ObjectTypeTableBitmapRouterEntry, r.entry)
}

func (bitmapRepr) routes(db statedb.DB, v *vnet) ([]asicdb.Route, error) {
	return asicdb.BitmapRoutes(db, uint(v.bit))
}

// withVnet returns copy of the entry with the VNET bit set or cleared.
func (e *bitmapEntry) withVnet(bit uint32, set bool) *bitmapEntry {
	dup := *e
	dup.vnets = e.vnets.Clone().SetTo(uint(bit), set)
	return &dup
}

// metadata returns bitmap of VNETs using the entry.
func (e *bitmapEntry) metadata() uint64 {
	words := e.vnets.Bytes()
	if len(words) == 0 {
		return 0
	}
	return words[0]
}

func (e *bitmapEntry) values() *statedb.FieldValues {
	ones, _ := e.prefix.Mask.Size()
	values := statedb.NewFieldValues(
		asicdb.BitmapRouterAttrPriority, strconv.Itoa(ones),
		asicdb.BitmapRouterAttrInRIFMetadataKey, asicdb.FormatBitmap(e.metadata()),
		asicdb.BitmapRouterAttrInRIFMetadataMask, asicdb.FormatBitmap(e.metadata()),
		asicdb.BitmapRouterAttrDstIPKey, e.prefix.String(),
	)
	if e.local {
		values.Set(asicdb.BitmapRouterAttrAction, asicdb.BitmapRouterActionToLocal)
		values.Set(asicdb.BitmapRouterAttrRouterInterface, string(e.target))
	} else {
		values.Set(asicdb.BitmapRouterAttrAction, asicdb.BitmapRouterActionToNextHop)
		values.Set(asicdb.BitmapRouterAttrNextHop, string(e.target))
	}
	return values
}
