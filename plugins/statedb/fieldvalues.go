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
	"sort"
	"strings"

	"github.com/gogo/protobuf/proto"
)

// FieldValues is the value stored under every key of every table: an unordered
// set of field/value string pairs.
// It is a protobuf message so that it can be stored via keyval.ProtoBroker.
type FieldValues struct {
	Fields map[string]string `protobuf:"bytes,1,rep,name=fields,proto3" json:"fields,omitempty" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
}

func (m *FieldValues) Reset()         { *m = FieldValues{} }
func (m *FieldValues) String() string { return proto.CompactTextString(m) }
func (*FieldValues) ProtoMessage()    {}

func init() {
	proto.RegisterType((*FieldValues)(nil), "statedb.FieldValues")
}

// FieldValue is a single field/value pair.
type FieldValue struct {
	Field string
	Value string
}

// NewFieldValues builds field/value set from a flat list of field, value pairs.
// A trailing field without value is ignored.
func NewFieldValues(pairs ...string) *FieldValues {
	fvs := &FieldValues{Fields: make(map[string]string)}
	for i := 0; i+1 < len(pairs); i += 2 {
		fvs.Fields[pairs[i]] = pairs[i+1]
	}
	return fvs
}

// FromMap builds field/value set from a map (the map is copied).
func FromMap(fields map[string]string) *FieldValues {
	fvs := &FieldValues{Fields: make(map[string]string, len(fields))}
	for field, value := range fields {
		fvs.Fields[field] = value
	}
	return fvs
}

// Get returns value of the given field.
func (m *FieldValues) Get(field string) (value string, has bool) {
	if m == nil {
		return "", false
	}
	value, has = m.Fields[field]
	return value, has
}

// GetOr returns value of the given field or <def> if the field is not set.
func (m *FieldValues) GetOr(field, def string) string {
	if value, has := m.Get(field); has {
		return value
	}
	return def
}

// Set sets value of a field.
func (m *FieldValues) Set(field, value string) *FieldValues {
	if m.Fields == nil {
		m.Fields = make(map[string]string)
	}
	m.Fields[field] = value
	return m
}

// Len returns the number of fields.
func (m *FieldValues) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Fields)
}

// Equal compares two field/value sets.
func (m *FieldValues) Equal(other *FieldValues) bool {
	if m.Len() != other.Len() {
		return false
	}
	for field, value := range m.GetFields() {
		if otherValue, has := other.Get(field); !has || otherValue != value {
			return false
		}
	}
	return true
}

// GetFields returns the underlying map (nil-safe).
func (m *FieldValues) GetFields() map[string]string {
	if m == nil {
		return nil
	}
	return m.Fields
}

// Clone returns a deep copy.
func (m *FieldValues) Clone() *FieldValues {
	if m == nil {
		return nil
	}
	return FromMap(m.Fields)
}

// Sorted returns pairs ordered by field name.
func (m *FieldValues) Sorted() []FieldValue {
	var pairs []FieldValue
	for field, value := range m.GetFields() {
		pairs = append(pairs, FieldValue{Field: field, Value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Field < pairs[j].Field
	})
	return pairs
}

// Pretty returns human-readable representation with fields in alphabetical order.
func (m *FieldValues) Pretty() string {
	var strs []string
	for _, pair := range m.Sorted() {
		strs = append(strs, pair.Field+"="+pair.Value)
	}
	return "{" + strings.Join(strs, ", ") + "}"
}
