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
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const (
	getIntentsCmd = "controller/intents"
	resyncCmd     = "controller/resync"
)

// AgentClient is the subset of the REST client used to query the agent.
type AgentClient interface {
	Get(host string, cmd string) (*http.Response, error)
	Post(host string, cmd string, body string) (*http.Response, error)
}

// intentStatus is the reconciliation status of one intent as returned by the
// agent.
type intentStatus struct {
	Table     string
	Key       string
	State     string
	Attempts  int
	LastError string
}

func getIntentStates(client AgentClient, host string) ([]*intentStatus, error) {
	b, err := getNodeInfo(client, host, getIntentsCmd)
	if err != nil {
		return nil, err
	}
	var states []*intentStatus
	if err := json.Unmarshal(b, &states); err != nil {
		return nil, errors.Wrap(err, "failed to decode intent states")
	}
	return states, nil
}

// PrintIntentStates prints reconciliation status of all intents known to the
// agent.
func PrintIntentStates(w io.Writer, client AgentClient, host string) error {
	states, err := getIntentStates(client, host)
	if err != nil {
		return err
	}
	tw := getWriter(w, "TABLE", "KEY", "STATE", "ATTEMPTS", "ERROR")
	for _, s := range states {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t\n", s.Table, s.Key, s.State, s.Attempts, s.LastError)
	}
	return tw.Flush()
}

// Resync asks the agent to re-read the Intent Store and reconcile everything.
func Resync(w io.Writer, client AgentClient, host string) error {
	if err := setNodeInfo(client, host, resyncCmd, ""); err != nil {
		return err
	}
	fmt.Fprintln(w, "resync requested")
	return nil
}

// WaitConverged polls the agent until no intent is pending, or the timeout
// expires. Halted intents fail the wait immediately.
func WaitConverged(w io.Writer, client AgentClient, host string, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		states, err := getIntentStates(client, host)
		if err != nil {
			return err
		}
		var pending int
		for _, s := range states {
			switch s.State {
			case "halted":
				return errors.Errorf("intent %s|%s halted: %s", s.Table, s.Key, s.LastError)
			case "pending":
				pending++
			}
		}
		if pending == 0 {
			fmt.Fprintf(w, "converged (%d intent(s))\n", len(states))
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("%d intent(s) still pending after %v", pending, timeout)
		}
		time.Sleep(interval)
	}
}

func getNodeInfo(client AgentClient, host string, cmd string) ([]byte, error) {
	res, err := client.Get(host, cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s failed", cmd)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, errors.Errorf("GET %s returned status %s", cmd, res.Status)
	}
	return ioutil.ReadAll(res.Body)
}

func setNodeInfo(client AgentClient, host string, cmd string, body string) error {
	res, err := client.Post(host, cmd, body)
	if err != nil {
		return errors.Wrapf(err, "POST %s failed", cmd)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return errors.Errorf("POST %s returned status %s", cmd, res.Status)
	}
	return nil
}
