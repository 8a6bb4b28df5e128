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

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/contiv/orchagent/plugins/statedb"
)

const (
	absent  = "<absent>"
	present = "<present>"
)

// Violation is a single breach of the device-object field contract.
type Violation struct {
	Table    string
	Key      string
	Field    string
	Expected string
	Actual   string
}

// String returns human-readable description of the violation.
func (v Violation) String() string {
	return fmt.Sprintf("%s|%s: field %s: expected %s, actual %s", v.Table, v.Key, v.Field, v.Expected, v.Actual)
}

// Validate checks a single object against the schema of its table. Any field
// outside the schema, any missing mandatory field and any malformed value is
// reported.
func Validate(table, key string, values *statedb.FieldValues) (violations []Violation) {
	report := func(field, expected, actual string) {
		violations = append(violations, Violation{
			Table: table, Key: key, Field: field, Expected: expected, Actual: actual})
	}

	objType, known := ObjectTypeFromTable(table)
	if !known {
		report("", "known object type", table)
		return violations
	}
	schema := schemas[objType]

	// key
	switch schema.KeyKind {
	case KeyOID:
		keyType, _, err := ParseOID(key)
		if err != nil || keyType != objType {
			report("<key>", "OID of "+string(objType), key)
		}
	case KeyRouteEntry:
		if _, err := ParseRouteEntryKey(key); err != nil {
			report("<key>", `{"dest":<prefix>,"vr":<oid>}`, key)
		}
	case KeyNeighborEntry:
		if _, err := ParseNeighborEntryKey(key); err != nil {
			report("<key>", `{"ip":<ip>,"rif":<oid>}`, key)
		}
	}

	// select the attribute set
	variant := schema.Base
	if schema.Discriminator != "" {
		discriminator, has := values.Get(schema.Discriminator)
		if !has {
			report(schema.Discriminator, present, absent)
			return violations
		}
		if variant, has = schema.Variants[discriminator]; !has {
			report(schema.Discriminator, strings.Join(schema.Attrs[schema.Discriminator].Enum, "|"), discriminator)
			return violations
		}
	}
	allowed := make(map[string]struct{})
	for _, field := range append(append([]string{}, variant.Mandatory...), variant.Optional...) {
		allowed[field] = struct{}{}
	}

	// mandatory fields
	for _, field := range variant.Mandatory {
		if _, has := values.Get(field); !has {
			report(field, present, absent)
		}
	}

	// present fields
	for _, pair := range values.Sorted() {
		if _, isAllowed := allowed[pair.Field]; !isAllowed {
			report(pair.Field, absent, pair.Value)
			continue
		}
		if expected, ok := checkValue(schema.Attrs[pair.Field], pair.Value); !ok {
			report(pair.Field, expected, pair.Value)
		}
	}
	return violations
}

// ValidateDB checks every object of the Device State Store against the schema
// and verifies that every reference points to an existing object of an allowed type.
func ValidateDB(db statedb.DB) (violations []Violation, err error) {
	snapshot, err := statedb.Dump(db)
	if err != nil {
		return nil, err
	}
	exists := func(oid string) bool {
		objType, _, err := ParseOID(oid)
		if err != nil {
			return false
		}
		_, has := snapshot[objType.Table()][oid]
		return has
	}

	for _, table := range snapshot.SortedTables() {
		for _, key := range snapshot.SortedKeys(table) {
			values := statedb.FromMap(snapshot[table][key])
			objViolations := Validate(table, key, values)
			violations = append(violations, objViolations...)
			if len(objViolations) > 0 {
				continue
			}
			objType, _ := ObjectTypeFromTable(table)
			schema := schemas[objType]

			// references from the key
			switch schema.KeyKind {
			case KeyRouteEntry:
				routeKey, _ := ParseRouteEntryKey(key)
				if !exists(string(routeKey.VR)) {
					violations = append(violations, Violation{Table: table, Key: key, Field: "<key>.vr",
						Expected: "existing " + string(ObjectTypeVirtualRouter), Actual: string(routeKey.VR)})
				}
			case KeyNeighborEntry:
				neighKey, _ := ParseNeighborEntryKey(key)
				if !exists(string(neighKey.RIF)) {
					violations = append(violations, Violation{Table: table, Key: key, Field: "<key>.rif",
						Expected: "existing " + string(ObjectTypeRouterInterface), Actual: string(neighKey.RIF)})
				}
			}

			// references from attributes
			for _, pair := range values.Sorted() {
				for _, oid := range referencedOIDs(schema.Attrs[pair.Field], pair.Value) {
					if !exists(oid) {
						violations = append(violations, Violation{Table: table, Key: key, Field: pair.Field,
							Expected: "existing object", Actual: oid})
					}
				}
			}
		}
	}
	return violations, nil
}

// References returns OIDs referenced by attributes of the given object.
func References(table string, values *statedb.FieldValues) (oids []string) {
	objType, known := ObjectTypeFromTable(table)
	if !known {
		return nil
	}
	for _, pair := range values.Sorted() {
		oids = append(oids, referencedOIDs(schemas[objType].Attrs[pair.Field], pair.Value)...)
	}
	sort.Strings(oids)
	return oids
}

func referencedOIDs(spec AttrSpec, value string) []string {
	switch spec.Kind {
	case KindOID:
		if value == string(NullOID) {
			return nil
		}
		return []string{value}
	case KindOIDList:
		oids, _ := ParseOIDList(value)
		return oids
	}
	return nil
}

// FormatOIDList encodes a list of OIDs as "<count>:<oid>,<oid>,...".
func FormatOIDList(oids ...OID) string {
	var strs []string
	for _, oid := range oids {
		strs = append(strs, string(oid))
	}
	return strconv.Itoa(len(oids)) + ":" + strings.Join(strs, ",")
}

// ParseOIDList decodes list of OIDs encoded by FormatOIDList.
func ParseOIDList(value string) ([]string, bool) {
	idx := strings.Index(value, ":")
	if idx < 0 {
		return nil, false
	}
	count, err := strconv.Atoi(value[:idx])
	if err != nil || count < 0 {
		return nil, false
	}
	if count == 0 {
		return nil, value[idx+1:] == ""
	}
	oids := strings.Split(value[idx+1:], ",")
	return oids, len(oids) == count
}

// FormatBitmap encodes a bitmap as hexadecimal number.
func FormatBitmap(bits uint64) string {
	return fmt.Sprintf("0x%x", bits)
}

// ParseBitmap decodes a bitmap encoded by FormatBitmap.
func ParseBitmap(value string) (uint64, bool) {
	if !strings.HasPrefix(value, "0x") {
		return 0, false
	}
	bits, err := strconv.ParseUint(value[2:], 16, 64)
	return bits, err == nil
}

// checkValue verifies attribute value format. Returns description of the
// expected value if the check fails.
func checkValue(spec AttrSpec, value string) (expected string, ok bool) {
	switch spec.Kind {
	case KindString:
		return "non-empty string", value != ""
	case KindEnum:
		for _, allowed := range spec.Enum {
			if value == allowed {
				return "", true
			}
		}
		return strings.Join(spec.Enum, "|"), false
	case KindBool:
		return True + "|" + False, value == True || value == False
	case KindUint:
		_, err := strconv.ParseUint(value, 10, 32)
		return "unsigned integer", err == nil
	case KindIP:
		return "IP address", net.ParseIP(value) != nil
	case KindPrefix:
		_, _, err := net.ParseCIDR(value)
		return "IP prefix", err == nil
	case KindMAC:
		_, err := net.ParseMAC(value)
		return "MAC address", err == nil
	case KindOID:
		return "OID of " + refTypesToStr(spec.Refs), isRefOfType(value, spec.Refs)
	case KindOIDList:
		oids, ok := ParseOIDList(value)
		if !ok {
			return "OID list", false
		}
		for _, oid := range oids {
			if !isRefOfType(oid, spec.Refs) {
				return "OID list of " + refTypesToStr(spec.Refs), false
			}
		}
		return "", true
	case KindBitmap:
		_, ok := ParseBitmap(value)
		return "hexadecimal bitmap", ok
	}
	return "", true
}

func isRefOfType(oid string, types []ObjectType) bool {
	if oid == string(NullOID) {
		return false
	}
	objType, _, err := ParseOID(oid)
	if err != nil {
		return false
	}
	for _, t := range types {
		if t == objType {
			return true
		}
	}
	return false
}

func refTypesToStr(types []ObjectType) string {
	var strs []string
	for _, t := range types {
		strs = append(strs, string(t))
	}
	return strings.Join(strs, "|")
}
