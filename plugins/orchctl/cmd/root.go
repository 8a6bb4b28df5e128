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

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/contiv/orchagent/plugins/orchctl/cmdimpl"
	"github.com/contiv/orchagent/plugins/orchctl/remote"
	"github.com/contiv/orchagent/plugins/statedb"
)

var (
	etcdConfig     string
	etcdEndpoints  []string
	httpConfig     string
	agentHost      string
	intentFile     string
	waitTimeout    time.Duration
	settleInterval time.Duration
)

var cmdApply = &cobra.Command{
	Use:   "apply -f intents.yaml",
	Short: "Write intents from a YAML file into the Intent Store",
	Args:  cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *remote.Stores) error {
			return cmdimpl.ApplyFile(os.Stdout, stores.IntentDB(), intentFile)
		})
	},
}

var cmdDelete = &cobra.Command{
	Use:   "delete table key",
	Short: "Remove an intent from the Intent Store",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *remote.Stores) error {
			return cmdimpl.DeleteIntent(os.Stdout, stores.IntentDB(), args[0], args[1])
		})
	},
}

var cmdDump = &cobra.Command{
	Use:   "dump APPL_DB|ASIC_DB [table...]",
	Short: "Print content of the Intent or Device State Store",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *remote.Stores) error {
			switch args[0] {
			case statedb.IntentDBName:
				return cmdimpl.DumpDB(os.Stdout, stores.IntentDB(), args[1:]...)
			case statedb.DeviceDBName:
				return cmdimpl.DumpDB(os.Stdout, stores.DeviceDB(), args[1:]...)
			}
			return fmt.Errorf("unknown database %q", args[0])
		})
	},
}

var cmdValidate = &cobra.Command{
	Use:   "validate",
	Short: "Check Device State Store objects against their field contracts",
	Args:  cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *remote.Stores) error {
			return cmdimpl.ValidateDevice(os.Stdout, stores.DeviceDB())
		})
	},
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Show reconciliation status of intents known to the agent",
	Args:  cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		withAgent(func(client *remote.HTTPClient) error {
			return cmdimpl.PrintIntentStates(os.Stdout, client, agentHost)
		})
	},
}

var cmdResync = &cobra.Command{
	Use:   "resync",
	Short: "Ask the agent to reconcile the whole Intent Store again",
	Args:  cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		withAgent(func(client *remote.HTTPClient) error {
			return cmdimpl.Resync(os.Stdout, client, agentHost)
		})
	},
}

var cmdWait = &cobra.Command{
	Use:   "wait",
	Short: "Wait until the agent has no pending intents",
	Args:  cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		withAgent(func(client *remote.HTTPClient) error {
			return cmdimpl.WaitConverged(os.Stdout, client, agentHost, waitTimeout, settleInterval)
		})
	},
}

func withStores(run func(stores *remote.Stores) error) {
	conn, err := remote.CreateEtcdClient(etcdConfig, etcdEndpoints...)
	if err != nil {
		exitOnError(err)
	}
	err = run(remote.NewStores(conn))
	conn.Close()
	exitOnError(err)
}

func withAgent(run func(client *remote.HTTPClient) error) {
	client, err := remote.CreateHTTPClient(httpConfig)
	if err != nil {
		exitOnError(err)
	}
	exitOnError(run(client))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Execute will execute the command orchctl
func Execute() {
	var rootCmd = &cobra.Command{Use: "orchctl"}
	rootCmd.PersistentFlags().StringVar(&etcdConfig, "etcd-config", "", "etcd client configuration file (default $ETCD_CONFIG)")
	rootCmd.PersistentFlags().StringSliceVar(&etcdEndpoints, "endpoints", nil, "etcd endpoints, override the configuration file")
	rootCmd.PersistentFlags().StringVar(&httpConfig, "http-config", "", "agent REST client configuration file (default $HTTP_CLIENT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&agentHost, "agent", "localhost", "host of the agent REST API")

	cmdApply.Flags().StringVarP(&intentFile, "file", "f", "", "YAML file with intents")
	cmdApply.MarkFlagRequired("file")
	cmdWait.Flags().DurationVar(&waitTimeout, "timeout", 30*time.Second, "how long to wait for convergence")
	cmdWait.Flags().DurationVar(&settleInterval, "interval", time.Second, "polling interval")

	rootCmd.AddCommand(cmdApply)
	rootCmd.AddCommand(cmdDelete)
	rootCmd.AddCommand(cmdDump)
	rootCmd.AddCommand(cmdValidate)
	rootCmd.AddCommand(cmdStatus)
	rootCmd.AddCommand(cmdResync)
	rootCmd.AddCommand(cmdWait)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
