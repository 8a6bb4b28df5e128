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
	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/db/keyval"
	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/logging"
)

// Supported backends of the state databases.
const (
	MemoryBackend  = "memory"
	KVStoreBackend = "kvstore"
)

// API gives access to the two state databases.
type API interface {
	// IntentDB returns the Intent Store (APPL_DB).
	IntentDB() DB

	// DeviceDB returns the Device State Store (ASIC_DB).
	DeviceDB() DB
}

// StateDB plugin opens the Intent Store and the Device State Store, either
// in-memory or inside a key-value data store.
type StateDB struct {
	Deps

	config   *Config
	intentDB DB
	deviceDB DB
}

// Deps lists dependencies of the StateDB plugin.
type Deps struct {
	infra.PluginDeps

	// used with the kvstore backend
	KVStore keyval.KvProtoPlugin
}

// Config holds the StateDB configuration.
type Config struct {
	Backend string `json:"backend"`
}

// Init opens both databases.
func (p *StateDB) Init() error {
	p.config = &Config{Backend: MemoryBackend}
	if p.Cfg != nil {
		if _, err := p.Cfg.LoadValue(p.config); err != nil {
			return err
		}
	}
	p.Log.Infof("StateDB configuration: %+v", *p.config)

	switch p.config.Backend {
	case MemoryBackend:
		p.intentDB = NewMemDB(IntentDBName)
		p.deviceDB = NewMemDB(DeviceDBName)
	case KVStoreBackend:
		if p.KVStore == nil {
			return errors.New("kvstore backend selected but no KVStore plugin injected")
		}
		p.intentDB = NewBrokerDB(IntentDBName, p.KVStore, p.childLogger("intentdb"))
		p.deviceDB = NewBrokerDB(DeviceDBName, p.KVStore, p.childLogger("devicedb"))
	default:
		return errors.Errorf("unsupported statedb backend: %q", p.config.Backend)
	}
	return nil
}

// childLogger returns the named child logger, reusing one registered before.
func (p *StateDB) childLogger(name string) logging.Logger {
	if logger, found := logging.DefaultRegistry.Lookup(p.Log.GetName() + "." + name); found {
		return logger
	}
	return p.Log.NewLogger(name)
}

// Close does nothing.
func (p *StateDB) Close() error {
	return nil
}

// IntentDB returns the Intent Store.
func (p *StateDB) IntentDB() DB {
	return p.intentDB
}

// DeviceDB returns the Device State Store.
func (p *StateDB) DeviceDB() DB {
	return p.deviceDB
}

// MemStore is a pair of in-memory databases, used in unit tests.
type MemStore struct {
	Intent *MemDB
	Device *MemDB
}

// NewMemStore creates empty in-memory Intent and Device State Stores.
func NewMemStore() *MemStore {
	return &MemStore{
		Intent: NewMemDB(IntentDBName),
		Device: NewMemDB(DeviceDBName),
	}
}

// IntentDB returns the Intent Store.
func (s *MemStore) IntentDB() DB {
	return s.Intent
}

// DeviceDB returns the Device State Store.
func (s *MemStore) DeviceDB() DB {
	return s.Device
}
