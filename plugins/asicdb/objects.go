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

// ObjectType is a type of device object.
type ObjectType string

// Object types used by the orchestrator.
const (
	ObjectTypePort                           ObjectType = "SAI_OBJECT_TYPE_PORT"
	ObjectTypeVirtualRouter                  ObjectType = "SAI_OBJECT_TYPE_VIRTUAL_ROUTER"
	ObjectTypeNextHop                        ObjectType = "SAI_OBJECT_TYPE_NEXT_HOP"
	ObjectTypeRouterInterface                ObjectType = "SAI_OBJECT_TYPE_ROUTER_INTERFACE"
	ObjectTypeRouteEntry                     ObjectType = "SAI_OBJECT_TYPE_ROUTE_ENTRY"
	ObjectTypeNeighborEntry                  ObjectType = "SAI_OBJECT_TYPE_NEIGHBOR_ENTRY"
	ObjectTypeTunnelMap                      ObjectType = "SAI_OBJECT_TYPE_TUNNEL_MAP"
	ObjectTypeTunnel                         ObjectType = "SAI_OBJECT_TYPE_TUNNEL"
	ObjectTypeTunnelTermTableEntry           ObjectType = "SAI_OBJECT_TYPE_TUNNEL_TERM_TABLE_ENTRY"
	ObjectTypeTunnelMapEntry                 ObjectType = "SAI_OBJECT_TYPE_TUNNEL_MAP_ENTRY"
	ObjectTypeTableBitmapClassificationEntry ObjectType = "SAI_OBJECT_TYPE_TABLE_BITMAP_CLASSIFICATION_ENTRY"
	ObjectTypeTableBitmapRouterEntry         ObjectType = "SAI_OBJECT_TYPE_TABLE_BITMAP_ROUTER_ENTRY"
)

// TablePrefix is the prefix of all device-object table names.
const TablePrefix = "ASIC_STATE:"

// objectTypeCodes are encoded into the OIDs.
var objectTypeCodes = map[ObjectType]uint8{
	ObjectTypePort:                           0x01,
	ObjectTypeVirtualRouter:                  0x03,
	ObjectTypeNextHop:                        0x04,
	ObjectTypeRouterInterface:                0x06,
	ObjectTypeTunnelMap:                      0x29,
	ObjectTypeTunnel:                         0x2a,
	ObjectTypeTunnelTermTableEntry:           0x2b,
	ObjectTypeTunnelMapEntry:                 0x3b,
	ObjectTypeTableBitmapClassificationEntry: 0x50,
	ObjectTypeTableBitmapRouterEntry:         0x51,
}

// Table returns name of the table with objects of the type.
func (t ObjectType) Table() string {
	return TablePrefix + string(t)
}

// HasOID returns true for types whose objects are identified by OID
// (as opposed to entries identified by JSON keys).
func (t ObjectType) HasOID() bool {
	_, hasCode := objectTypeCodes[t]
	return hasCode
}

// ObjectTypeFromTable returns the object type stored in the given table.
func ObjectTypeFromTable(table string) (ObjectType, bool) {
	if len(table) <= len(TablePrefix) || table[:len(TablePrefix)] != TablePrefix {
		return "", false
	}
	t := ObjectType(table[len(TablePrefix):])
	_, known := schemas[t]
	return t, known
}

// Attribute values.
const (
	True  = "true"
	False = "false"

	// PORT
	PortAttrAdminState = "SAI_PORT_ATTR_ADMIN_STATE"
	PortAttrMTU        = "SAI_PORT_ATTR_MTU"
	PortAttrSpeed      = "SAI_PORT_ATTR_SPEED"

	// VIRTUAL_ROUTER
	VirtualRouterAttrAdminV4State  = "SAI_VIRTUAL_ROUTER_ATTR_ADMIN_V4_STATE"
	VirtualRouterAttrAdminV6State  = "SAI_VIRTUAL_ROUTER_ATTR_ADMIN_V6_STATE"
	VirtualRouterAttrSrcMACAddress = "SAI_VIRTUAL_ROUTER_ATTR_SRC_MAC_ADDRESS"

	// ROUTER_INTERFACE
	RouterInterfaceAttrVirtualRouterID = "SAI_ROUTER_INTERFACE_ATTR_VIRTUAL_ROUTER_ID"
	RouterInterfaceAttrType            = "SAI_ROUTER_INTERFACE_ATTR_TYPE"
	RouterInterfaceAttrPortID          = "SAI_ROUTER_INTERFACE_ATTR_PORT_ID"
	RouterInterfaceAttrSrcMACAddress   = "SAI_ROUTER_INTERFACE_ATTR_SRC_MAC_ADDRESS"
	RouterInterfaceAttrMTU             = "SAI_ROUTER_INTERFACE_ATTR_MTU"
	RouterInterfaceTypeLoopback        = "SAI_ROUTER_INTERFACE_TYPE_LOOPBACK"
	RouterInterfaceTypePort            = "SAI_ROUTER_INTERFACE_TYPE_PORT"

	// TUNNEL
	TunnelAttrType              = "SAI_TUNNEL_ATTR_TYPE"
	TunnelAttrUnderlayInterface = "SAI_TUNNEL_ATTR_UNDERLAY_INTERFACE"
	TunnelAttrOverlayInterface  = "SAI_TUNNEL_ATTR_OVERLAY_INTERFACE"
	TunnelAttrEncapSrcIP        = "SAI_TUNNEL_ATTR_ENCAP_SRC_IP"
	TunnelAttrDecapECNMode      = "SAI_TUNNEL_ATTR_DECAP_ECN_MODE"
	TunnelAttrDecapTTLMode      = "SAI_TUNNEL_ATTR_DECAP_TTL_MODE"
	TunnelAttrDecapDSCPMode     = "SAI_TUNNEL_ATTR_DECAP_DSCP_MODE"
	TunnelAttrEncapMappers      = "SAI_TUNNEL_ATTR_ENCAP_MAPPERS"
	TunnelAttrDecapMappers      = "SAI_TUNNEL_ATTR_DECAP_MAPPERS"
	TunnelTypeIPinIP            = "SAI_TUNNEL_TYPE_IPINIP"
	TunnelTypeVXLAN             = "SAI_TUNNEL_TYPE_VXLAN"

	TunnelDecapECNModeStandard      = "SAI_TUNNEL_DECAP_ECN_MODE_STANDARD"
	TunnelDecapECNModeCopyFromOuter = "SAI_TUNNEL_DECAP_ECN_MODE_COPY_FROM_OUTER"
	TunnelDSCPModePipe              = "SAI_TUNNEL_DSCP_MODE_PIPE_MODEL"
	TunnelDSCPModeUniform           = "SAI_TUNNEL_DSCP_MODE_UNIFORM_MODEL"
	TunnelTTLModePipe               = "SAI_TUNNEL_TTL_MODE_PIPE_MODEL"
	TunnelTTLModeUniform            = "SAI_TUNNEL_TTL_MODE_UNIFORM_MODEL"

	// TUNNEL_TERM_TABLE_ENTRY
	TunnelTermAttrVRID           = "SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_VR_ID"
	TunnelTermAttrType           = "SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_TYPE"
	TunnelTermAttrTunnelType     = "SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_TUNNEL_TYPE"
	TunnelTermAttrActionTunnelID = "SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_ACTION_TUNNEL_ID"
	TunnelTermAttrDstIP          = "SAI_TUNNEL_TERM_TABLE_ENTRY_ATTR_DST_IP"
	TunnelTermTypeP2MP           = "SAI_TUNNEL_TERM_TABLE_ENTRY_TYPE_P2MP"

	// TUNNEL_MAP
	TunnelMapAttrType        = "SAI_TUNNEL_MAP_ATTR_TYPE"
	TunnelMapTypeVRToVNI     = "SAI_TUNNEL_MAP_TYPE_VIRTUAL_ROUTER_ID_TO_VNI"
	TunnelMapTypeVNIToVR     = "SAI_TUNNEL_MAP_TYPE_VNI_TO_VIRTUAL_ROUTER_ID"
	TunnelMapEntryAttrType   = "SAI_TUNNEL_MAP_ENTRY_ATTR_TUNNEL_MAP_TYPE"
	TunnelMapEntryAttrMap    = "SAI_TUNNEL_MAP_ENTRY_ATTR_TUNNEL_MAP"
	TunnelMapEntryAttrVRKey  = "SAI_TUNNEL_MAP_ENTRY_ATTR_VIRTUAL_ROUTER_ID_KEY"
	TunnelMapEntryAttrVNIVal = "SAI_TUNNEL_MAP_ENTRY_ATTR_VNI_ID_VALUE"
	TunnelMapEntryAttrVNIKey = "SAI_TUNNEL_MAP_ENTRY_ATTR_VNI_ID_KEY"
	TunnelMapEntryAttrVRVal  = "SAI_TUNNEL_MAP_ENTRY_ATTR_VIRTUAL_ROUTER_ID_VALUE"

	// NEXT_HOP
	NextHopAttrType            = "SAI_NEXT_HOP_ATTR_TYPE"
	NextHopAttrIP              = "SAI_NEXT_HOP_ATTR_IP"
	NextHopAttrTunnelID        = "SAI_NEXT_HOP_ATTR_TUNNEL_ID"
	NextHopAttrTunnelVNI       = "SAI_NEXT_HOP_ATTR_TUNNEL_VNI"
	NextHopAttrTunnelMAC       = "SAI_NEXT_HOP_ATTR_TUNNEL_MAC"
	NextHopAttrRouterInterface = "SAI_NEXT_HOP_ATTR_ROUTER_INTERFACE_ID"
	NextHopTypeTunnelEncap     = "SAI_NEXT_HOP_TYPE_TUNNEL_ENCAP"
	NextHopTypeIP              = "SAI_NEXT_HOP_TYPE_IP"

	// ROUTE_ENTRY
	RouteEntryAttrNextHopID    = "SAI_ROUTE_ENTRY_ATTR_NEXT_HOP_ID"
	RouteEntryAttrPacketAction = "SAI_ROUTE_ENTRY_ATTR_PACKET_ACTION"
	PacketActionForward        = "SAI_PACKET_ACTION_FORWARD"
	PacketActionDrop           = "SAI_PACKET_ACTION_DROP"

	// NEIGHBOR_ENTRY
	NeighborEntryAttrDstMACAddress = "SAI_NEIGHBOR_ENTRY_ATTR_DST_MAC_ADDRESS"

	// TABLE_BITMAP_CLASSIFICATION_ENTRY
	BitmapClassAttrAction          = "SAI_TABLE_BITMAP_CLASSIFICATION_ENTRY_ATTR_ACTION"
	BitmapClassAttrRouterInterface = "SAI_TABLE_BITMAP_CLASSIFICATION_ENTRY_ATTR_ROUTER_INTERFACE_KEY"
	BitmapClassAttrInRIFMetadata   = "SAI_TABLE_BITMAP_CLASSIFICATION_ENTRY_ATTR_IN_RIF_METADATA"
	BitmapClassActionSetMetadata   = "SAI_TABLE_BITMAP_CLASSIFICATION_ENTRY_ACTION_SET_METADATA"

	// TABLE_BITMAP_ROUTER_ENTRY
	BitmapRouterAttrAction            = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ATTR_ACTION"
	BitmapRouterAttrPriority          = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ATTR_PRIORITY"
	BitmapRouterAttrInRIFMetadataKey  = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ATTR_IN_RIF_METADATA_KEY"
	BitmapRouterAttrInRIFMetadataMask = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ATTR_IN_RIF_METADATA_MASK"
	BitmapRouterAttrDstIPKey          = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ATTR_DST_IP_KEY"
	BitmapRouterAttrNextHop           = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ATTR_NEXT_HOP"
	BitmapRouterAttrRouterInterface   = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ATTR_ROUTER_INTERFACE"
	BitmapRouterActionToNextHop       = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ACTION_TO_NEXTHOP"
	BitmapRouterActionToLocal         = "SAI_TABLE_BITMAP_ROUTER_ENTRY_ACTION_TO_LOCAL"
)

// ECNModes maps intent ecn_mode to the device attribute value.
var ECNModes = map[string]string{
	"standard":        TunnelDecapECNModeStandard,
	"copy_from_outer": TunnelDecapECNModeCopyFromOuter,
}

// DSCPModes maps intent dscp_mode to the device attribute value.
var DSCPModes = map[string]string{
	"pipe":    TunnelDSCPModePipe,
	"uniform": TunnelDSCPModeUniform,
}

// TTLModes maps intent ttl_mode to the device attribute value.
var TTLModes = map[string]string{
	"pipe":    TunnelTTLModePipe,
	"uniform": TunnelTTLModeUniform,
}
