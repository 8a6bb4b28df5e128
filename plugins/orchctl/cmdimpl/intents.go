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
	"io/ioutil"
	"sort"
	"text/tabwriter"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/dbresources"
	"github.com/contiv/orchagent/plugins/statedb"
)

// IntentFile is the content of an intent file: table -> key -> field -> value.
//
// Example:
//   VXLAN_TUNNEL_TABLE:
//     tunnel_1:
//       src_ip: 10.10.10.10
//   VNET_TABLE:
//     Vnet_1:
//       vxlan_tunnel: tunnel_1
//       vni: 1111
type IntentFile map[string]map[string]map[string]string

// ParseIntents parses YAML (or JSON) encoded intents. Only tables watched by
// the agent are accepted. Scalar values need not be quoted.
func ParseIntents(data []byte) (IntentFile, error) {
	raw := make(map[string]map[string]map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse intents")
	}
	intents := IntentFile{}
	for table, entries := range raw {
		intents[table] = make(map[string]map[string]string)
		for key, fields := range entries {
			intents[table][key] = make(map[string]string)
			for field, value := range fields {
				switch value.(type) {
				case map[string]interface{}, []interface{}, nil:
					return nil, errors.Errorf("intent %s|%s: field %s must be a scalar", table, key, field)
				}
				intents[table][key][field] = fmt.Sprint(value)
			}
		}
	}
	known := make(map[string]struct{})
	for _, table := range dbresources.GetTableOrder() {
		known[table] = struct{}{}
	}
	for table, entries := range intents {
		if _, isKnown := known[table]; !isKnown {
			return nil, errors.Errorf("unknown intent table %q", table)
		}
		for key, fields := range entries {
			if key == "" {
				return nil, errors.Errorf("empty key in table %s", table)
			}
			if len(fields) == 0 {
				return nil, errors.Errorf("intent %s|%s has no fields", table, key)
			}
		}
	}
	return intents, nil
}

// Operations returns Set operations for all intents, ordered by the table
// dependency order and then by key.
func (f IntentFile) Operations() (ops []statedb.Operation) {
	for _, table := range dbresources.GetTableOrder() {
		entries := f[table]
		var keys []string
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			ops = append(ops, statedb.Operation{
				Table:  table,
				Key:    key,
				Op:     statedb.OpSet,
				Values: statedb.FromMap(entries[key]),
			})
		}
	}
	return ops
}

// ApplyIntents writes intents from data into the Intent Store. Returns the
// number of written intents.
func ApplyIntents(db statedb.DB, data []byte) (int, error) {
	intents, err := ParseIntents(data)
	if err != nil {
		return 0, err
	}
	ops := intents.Operations()
	if err := db.Apply(ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

// ApplyFile writes intents from the given file into the Intent Store.
func ApplyFile(w io.Writer, db statedb.DB, path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	count, err := ApplyIntents(db, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d intent(s) applied\n", count)
	return nil
}

// DeleteIntent removes the intent from the Intent Store.
func DeleteIntent(w io.Writer, db statedb.DB, table, key string) error {
	_, found, err := db.Get(table, key)
	if err != nil {
		return err
	}
	if !found {
		return errors.Errorf("intent %s|%s not found", table, key)
	}
	if err := db.Delete(table, key); err != nil {
		return err
	}
	fmt.Fprintf(w, "intent %s|%s deleted\n", table, key)
	return nil
}

// DumpDB prints content of the given database, optionally limited to some
// tables.
func DumpDB(w io.Writer, db statedb.DB, tables ...string) error {
	snapshot, err := statedb.Dump(db, tables...)
	if err != nil {
		return err
	}
	tw := getWriter(w, "TABLE", "KEY", "FIELD", "VALUE")
	for _, table := range snapshot.SortedTables() {
		for _, key := range snapshot.SortedKeys(table) {
			values := statedb.FromMap(snapshot[table][key])
			for i, fv := range values.Sorted() {
				if i == 0 {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", table, key, fv.Field, fv.Value)
				} else {
					fmt.Fprintf(tw, "\t\t%s\t%s\t\n", fv.Field, fv.Value)
				}
			}
		}
	}
	return tw.Flush()
}

func getWriter(w io.Writer, columns ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, column := range columns {
		fmt.Fprintf(tw, "%s\t", column)
	}
	fmt.Fprintln(tw)
	return tw
}
