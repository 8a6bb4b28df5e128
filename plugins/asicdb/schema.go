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

package asicdb

// AttrKind describes the format of an attribute value.
type AttrKind int

const (
	// KindString is any non-empty string.
	KindString AttrKind = iota
	// KindEnum is one of the values listed in AttrSpec.Enum.
	KindEnum
	// KindBool is "true" or "false".
	KindBool
	// KindUint is a decimal unsigned integer.
	KindUint
	// KindIP is an IPv4 or IPv6 address.
	KindIP
	// KindPrefix is an IPv4 or IPv6 prefix.
	KindPrefix
	// KindMAC is a MAC address.
	KindMAC
	// KindOID is a reference to another object.
	KindOID
	// KindOIDList is "<count>:<oid>,<oid>,...".
	KindOIDList
	// KindBitmap is a hexadecimal bitmap ("0x...").
	KindBitmap
)

// AttrSpec describes constraints of an attribute value.
type AttrSpec struct {
	Kind AttrKind
	Enum []string
	Refs []ObjectType // allowed types of referenced objects for KindOID(List)
}

// KeyKind describes how objects of a type are keyed.
type KeyKind int

const (
	// KeyOID objects are keyed by OID.
	KeyOID KeyKind = iota
	// KeyRouteEntry objects are keyed by JSON RouteEntryKey.
	KeyRouteEntry
	// KeyNeighborEntry objects are keyed by JSON NeighborEntryKey.
	KeyNeighborEntry
)

// Variant lists mandatory and optional attributes.
type Variant struct {
	Mandatory []string
	Optional  []string
}

// ObjectSchema is the field contract of an object type.
// If Discriminator is set, the allowed attribute set is selected by its value
// from Variants, otherwise Base applies.
type ObjectSchema struct {
	Type          ObjectType
	KeyKind       KeyKind
	Attrs         map[string]AttrSpec
	Discriminator string
	Variants      map[string]Variant
	Base          Variant
}

func enum(values ...string) AttrSpec {
	return AttrSpec{Kind: KindEnum, Enum: values}
}

func ref(types ...ObjectType) AttrSpec {
	return AttrSpec{Kind: KindOID, Refs: types}
}

func refList(types ...ObjectType) AttrSpec {
	return AttrSpec{Kind: KindOIDList, Refs: types}
}

var (
	boolAttr   = AttrSpec{Kind: KindBool}
	uintAttr   = AttrSpec{Kind: KindUint}
	ipAttr     = AttrSpec{Kind: KindIP}
	prefixAttr = AttrSpec{Kind: KindPrefix}
	macAttr    = AttrSpec{Kind: KindMAC}
	bitmapAttr = AttrSpec{Kind: KindBitmap}
)

// schemas of all object types the orchestrator writes.
var schemas = map[ObjectType]*ObjectSchema{
	ObjectTypePort: {
		Attrs: map[string]AttrSpec{
			PortAttrAdminState: boolAttr,
			PortAttrMTU:        uintAttr,
			PortAttrSpeed:      uintAttr,
		},
		Base: Variant{
			Mandatory: []string{PortAttrAdminState, PortAttrMTU},
			Optional:  []string{PortAttrSpeed},
		},
	},
	ObjectTypeVirtualRouter: {
		Attrs: map[string]AttrSpec{
			VirtualRouterAttrAdminV4State:  boolAttr,
			VirtualRouterAttrAdminV6State:  boolAttr,
			VirtualRouterAttrSrcMACAddress: macAttr,
		},
		Base: Variant{
			Mandatory: []string{VirtualRouterAttrAdminV4State, VirtualRouterAttrAdminV6State},
			Optional:  []string{VirtualRouterAttrSrcMACAddress},
		},
	},
	ObjectTypeRouterInterface: {
		Attrs: map[string]AttrSpec{
			RouterInterfaceAttrVirtualRouterID: ref(ObjectTypeVirtualRouter),
			RouterInterfaceAttrType:            enum(RouterInterfaceTypeLoopback, RouterInterfaceTypePort),
			RouterInterfaceAttrPortID:          ref(ObjectTypePort),
			RouterInterfaceAttrSrcMACAddress:   macAttr,
			RouterInterfaceAttrMTU:             uintAttr,
		},
		Discriminator: RouterInterfaceAttrType,
		Variants: map[string]Variant{
			RouterInterfaceTypeLoopback: {
				Mandatory: []string{RouterInterfaceAttrVirtualRouterID, RouterInterfaceAttrType},
			},
			RouterInterfaceTypePort: {
				Mandatory: []string{RouterInterfaceAttrVirtualRouterID, RouterInterfaceAttrType,
					RouterInterfaceAttrPortID},
				Optional: []string{RouterInterfaceAttrSrcMACAddress, RouterInterfaceAttrMTU},
			},
		},
	},
	ObjectTypeTunnel: {
		Attrs: map[string]AttrSpec{
			TunnelAttrType:              enum(TunnelTypeIPinIP, TunnelTypeVXLAN),
			TunnelAttrUnderlayInterface: ref(ObjectTypeRouterInterface),
			TunnelAttrOverlayInterface:  ref(ObjectTypeRouterInterface),
			TunnelAttrEncapSrcIP:        ipAttr,
			TunnelAttrDecapECNMode:      enum(TunnelDecapECNModeStandard, TunnelDecapECNModeCopyFromOuter),
			TunnelAttrDecapTTLMode:      enum(TunnelTTLModePipe, TunnelTTLModeUniform),
			TunnelAttrDecapDSCPMode:     enum(TunnelDSCPModePipe, TunnelDSCPModeUniform),
			TunnelAttrEncapMappers:      refList(ObjectTypeTunnelMap),
			TunnelAttrDecapMappers:      refList(ObjectTypeTunnelMap),
		},
		Discriminator: TunnelAttrType,
		Variants: map[string]Variant{
			TunnelTypeIPinIP: {
				Mandatory: []string{TunnelAttrType, TunnelAttrUnderlayInterface, TunnelAttrOverlayInterface,
					TunnelAttrDecapECNMode, TunnelAttrDecapTTLMode, TunnelAttrDecapDSCPMode},
				Optional: []string{TunnelAttrEncapSrcIP},
			},
			TunnelTypeVXLAN: {
				Mandatory: []string{TunnelAttrType, TunnelAttrUnderlayInterface, TunnelAttrEncapSrcIP,
					TunnelAttrEncapMappers, TunnelAttrDecapMappers},
			},
		},
	},
	ObjectTypeTunnelTermTableEntry: {
		Attrs: map[string]AttrSpec{
			TunnelTermAttrVRID:           ref(ObjectTypeVirtualRouter),
			TunnelTermAttrType:           enum(TunnelTermTypeP2MP),
			TunnelTermAttrTunnelType:     enum(TunnelTypeIPinIP, TunnelTypeVXLAN),
			TunnelTermAttrActionTunnelID: ref(ObjectTypeTunnel),
			TunnelTermAttrDstIP:          ipAttr,
		},
		Base: Variant{
			Mandatory: []string{TunnelTermAttrVRID, TunnelTermAttrType, TunnelTermAttrTunnelType,
				TunnelTermAttrActionTunnelID, TunnelTermAttrDstIP},
		},
	},
	ObjectTypeTunnelMap: {
		Attrs: map[string]AttrSpec{
			TunnelMapAttrType: enum(TunnelMapTypeVRToVNI, TunnelMapTypeVNIToVR),
		},
		Base: Variant{
			Mandatory: []string{TunnelMapAttrType},
		},
	},
	ObjectTypeTunnelMapEntry: {
		Attrs: map[string]AttrSpec{
			TunnelMapEntryAttrType:   enum(TunnelMapTypeVRToVNI, TunnelMapTypeVNIToVR),
			TunnelMapEntryAttrMap:    ref(ObjectTypeTunnelMap),
			TunnelMapEntryAttrVRKey:  ref(ObjectTypeVirtualRouter),
			TunnelMapEntryAttrVNIVal: uintAttr,
			TunnelMapEntryAttrVNIKey: uintAttr,
			TunnelMapEntryAttrVRVal:  ref(ObjectTypeVirtualRouter),
		},
		Discriminator: TunnelMapEntryAttrType,
		Variants: map[string]Variant{
			TunnelMapTypeVRToVNI: {
				Mandatory: []string{TunnelMapEntryAttrType, TunnelMapEntryAttrMap,
					TunnelMapEntryAttrVRKey, TunnelMapEntryAttrVNIVal},
			},
			TunnelMapTypeVNIToVR: {
				Mandatory: []string{TunnelMapEntryAttrType, TunnelMapEntryAttrMap,
					TunnelMapEntryAttrVNIKey, TunnelMapEntryAttrVRVal},
			},
		},
	},
	ObjectTypeNextHop: {
		Attrs: map[string]AttrSpec{
			NextHopAttrType:            enum(NextHopTypeTunnelEncap, NextHopTypeIP),
			NextHopAttrIP:              ipAttr,
			NextHopAttrTunnelID:        ref(ObjectTypeTunnel),
			NextHopAttrTunnelVNI:       uintAttr,
			NextHopAttrTunnelMAC:       macAttr,
			NextHopAttrRouterInterface: ref(ObjectTypeRouterInterface),
		},
		Discriminator: NextHopAttrType,
		Variants: map[string]Variant{
			NextHopTypeTunnelEncap: {
				Mandatory: []string{NextHopAttrType, NextHopAttrIP, NextHopAttrTunnelID},
				Optional:  []string{NextHopAttrTunnelVNI, NextHopAttrTunnelMAC},
			},
			NextHopTypeIP: {
				Mandatory: []string{NextHopAttrType, NextHopAttrIP, NextHopAttrRouterInterface},
			},
		},
	},
	ObjectTypeRouteEntry: {
		KeyKind: KeyRouteEntry,
		Attrs: map[string]AttrSpec{
			RouteEntryAttrNextHopID:    ref(ObjectTypeNextHop, ObjectTypeRouterInterface),
			RouteEntryAttrPacketAction: enum(PacketActionForward, PacketActionDrop),
		},
		Base: Variant{
			Mandatory: []string{RouteEntryAttrNextHopID},
			Optional:  []string{RouteEntryAttrPacketAction},
		},
	},
	ObjectTypeNeighborEntry: {
		KeyKind: KeyNeighborEntry,
		Attrs: map[string]AttrSpec{
			NeighborEntryAttrDstMACAddress: macAttr,
		},
		Base: Variant{
			Mandatory: []string{NeighborEntryAttrDstMACAddress},
		},
	},
	ObjectTypeTableBitmapClassificationEntry: {
		Attrs: map[string]AttrSpec{
			BitmapClassAttrAction:          enum(BitmapClassActionSetMetadata),
			BitmapClassAttrRouterInterface: ref(ObjectTypeRouterInterface),
			BitmapClassAttrInRIFMetadata:   bitmapAttr,
		},
		Base: Variant{
			Mandatory: []string{BitmapClassAttrAction, BitmapClassAttrRouterInterface,
				BitmapClassAttrInRIFMetadata},
		},
	},
	ObjectTypeTableBitmapRouterEntry: {
		Attrs: map[string]AttrSpec{
			BitmapRouterAttrAction:            enum(BitmapRouterActionToNextHop, BitmapRouterActionToLocal),
			BitmapRouterAttrPriority:          uintAttr,
			BitmapRouterAttrInRIFMetadataKey:  bitmapAttr,
			BitmapRouterAttrInRIFMetadataMask: bitmapAttr,
			BitmapRouterAttrDstIPKey:          prefixAttr,
			BitmapRouterAttrNextHop:           ref(ObjectTypeNextHop),
			BitmapRouterAttrRouterInterface:   ref(ObjectTypeRouterInterface),
		},
		Discriminator: BitmapRouterAttrAction,
		Variants: map[string]Variant{
			BitmapRouterActionToNextHop: {
				Mandatory: []string{BitmapRouterAttrAction, BitmapRouterAttrPriority,
					BitmapRouterAttrInRIFMetadataKey, BitmapRouterAttrInRIFMetadataMask,
					BitmapRouterAttrDstIPKey, BitmapRouterAttrNextHop},
			},
			BitmapRouterActionToLocal: {
				Mandatory: []string{BitmapRouterAttrAction, BitmapRouterAttrPriority,
					BitmapRouterAttrInRIFMetadataKey, BitmapRouterAttrInRIFMetadataMask,
					BitmapRouterAttrDstIPKey, BitmapRouterAttrRouterInterface},
			},
		},
	},
}

func init() {
	for objType, schema := range schemas {
		schema.Type = objType
	}
}

// SchemaOf returns the field contract of the given object type.
func SchemaOf(objType ObjectType) (*ObjectSchema, bool) {
	schema, known := schemas[objType]
	return schema, known
}

// ObjectTypes returns all object types with a schema.
func ObjectTypes() []ObjectType {
	var types []ObjectType
	for objType := range schemas {
		types = append(types, objType)
	}
	return types
}
