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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	oidPrefix = "oid:0x"

	// 2 hex digits of object type followed by 12 hex digits of serial number
	oidTypeDigits   = 2
	oidSerialDigits = 12

	// MaxSerial is the largest serial number an OID can encode.
	MaxSerial = 1<<(4*oidSerialDigits) - 1
)

// OID is a device object identifier, e.g. "oid:0x2a000000000001".
type OID string

// NullOID refers to no object.
const NullOID OID = "oid:0x0"

// FormatOID builds OID for object of the given type and serial number.
func FormatOID(objType ObjectType, serial uint64) OID {
	return OID(fmt.Sprintf("%s%02x%012x", oidPrefix, objectTypeCodes[objType], serial))
}

// ParseOID returns object type and serial number encoded in the OID.
func ParseOID(oid string) (objType ObjectType, serial uint64, err error) {
	if !strings.HasPrefix(oid, oidPrefix) {
		return "", 0, errors.Errorf("OID %q without prefix %q", oid, oidPrefix)
	}
	digits := oid[len(oidPrefix):]
	if len(digits) != oidTypeDigits+oidSerialDigits {
		return "", 0, errors.Errorf("OID %q has invalid length", oid)
	}
	code, err := strconv.ParseUint(digits[:oidTypeDigits], 16, 8)
	if err != nil {
		return "", 0, errors.Wrapf(err, "OID %q", oid)
	}
	serial, err = strconv.ParseUint(digits[oidTypeDigits:], 16, 64)
	if err != nil {
		return "", 0, errors.Wrapf(err, "OID %q", oid)
	}
	for t, c := range objectTypeCodes {
		if uint64(c) == code {
			return t, serial, nil
		}
	}
	return "", 0, errors.Errorf("OID %q of unknown object type 0x%02x", oid, code)
}

// String returns the OID as string.
func (oid OID) String() string {
	return string(oid)
}
