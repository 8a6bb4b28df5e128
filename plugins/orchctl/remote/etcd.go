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

package remote

import (
	"os"

	"github.com/ligato/cn-infra/config"
	"github.com/ligato/cn-infra/db/keyval"
	"github.com/ligato/cn-infra/db/keyval/etcd"
	"github.com/ligato/cn-infra/db/keyval/kvproto"
	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/logging/logrus"

	"github.com/contiv/orchagent/plugins/statedb"
)

// CreateEtcdClient creates a connection to the etcd shared with the agent.
// The configuration file defaults to the value of the ETCD_CONFIG environment
// variable, endpoints (if any) override the configured ones.
func CreateEtcdClient(configFile string, endpoints ...string) (*etcd.BytesConnectionEtcd, error) {
	if configFile == "" {
		configFile = os.Getenv("ETCD_CONFIG")
	}

	cfg := &etcd.Config{}
	if configFile != "" {
		if err := config.ParseConfigFromYamlFile(configFile, cfg); err != nil {
			return nil, err
		}
	}
	if len(endpoints) > 0 {
		cfg.Endpoints = endpoints
	}

	etcdConfig, err := etcd.ConfigToClient(cfg)
	if err != nil {
		return nil, err
	}

	logger := logrus.DefaultLogger()
	logger.SetLevel(logging.ErrorLevel)
	return etcd.NewEtcdConnectionWithBytes(*etcdConfig, logger)
}

// Stores gives access to the databases of the agent kept in etcd.
type Stores struct {
	intentDB statedb.DB
	deviceDB statedb.DB
}

// NewStores opens Intent and Device State Stores over the given connection.
// Values are serialized the same way the agent's kvstore backend does it.
func NewStores(conn keyval.CoreBrokerWatcher) *Stores {
	kv := kvproto.NewProtoWrapperWithSerializer(conn, &keyval.SerializerJSON{})
	log := logrus.DefaultLogger()
	return &Stores{
		intentDB: statedb.NewBrokerDB(statedb.IntentDBName, kv, log),
		deviceDB: statedb.NewBrokerDB(statedb.DeviceDBName, kv, log),
	}
}

// IntentDB returns the Intent Store (APPL_DB).
func (s *Stores) IntentDB() statedb.DB {
	return s.intentDB
}

// DeviceDB returns the Device State Store (ASIC_DB).
func (s *Stores) DeviceDB() statedb.DB {
	return s.deviceDB
}
