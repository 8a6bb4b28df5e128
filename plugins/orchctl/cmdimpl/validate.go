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

package cmdimpl

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/asicdb"
	"github.com/contiv/orchagent/plugins/statedb"
)

// ValidateDevice checks every object of the Device State Store against its
// field contract and prints the violations. An error is returned when any
// violation is found.
func ValidateDevice(w io.Writer, db statedb.DB) error {
	violations, err := asicdb.ValidateDB(db)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		fmt.Fprintln(w, "device state is valid")
		return nil
	}
	tw := getWriter(w, "TABLE", "KEY", "FIELD", "EXPECTED", "ACTUAL")
	for _, v := range violations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", v.Table, v.Key, v.Field, v.Expected, v.Actual)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return errors.Errorf("%d violation(s) found", len(violations))
}
