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
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ligato/cn-infra/config"
)

// DefaultPort is the port of the agent REST API if not configured otherwise.
const DefaultPort = "9191"

// HTTPClient talks to the REST API of the agent.
type HTTPClient struct {
	// Config for this client
	Config *HTTPClientConfig

	http *http.Client
}

// HTTPClientConfig configures HTTPClient.
type HTTPClientConfig struct {
	// Port the agent is listening on
	Port string `json:"port"`
	// Basic authorization for client
	BasicAuth string `json:"basic-auth"`
	// If https or http should be used
	UseHTTPS bool `json:"use-https"`
}

// CreateHTTPClient creates a client configured from the given file, or from
// the file referenced by HTTP_CLIENT_CONFIG.
func CreateHTTPClient(configFile string) (*HTTPClient, error) {
	if configFile == "" {
		configFile = os.Getenv("HTTP_CLIENT_CONFIG")
	}

	cfg := &HTTPClientConfig{Port: DefaultPort}
	if configFile != "" {
		if err := config.ParseConfigFromYamlFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	return &HTTPClient{
		Config: cfg,
		http: &http.Client{
			Transport: &http.Transport{},
			Timeout:   10 * time.Second,
		},
	}, nil
}

func (client *HTTPClient) createURL(host string, cmd string) string {
	url := "http://"
	if client.Config.UseHTTPS {
		url = "https://"
	}
	return url + host + ":" + client.Config.Port + "/" + strings.TrimPrefix(cmd, "/")
}

// Get sends GET request with the given command to the agent at host.
func (client *HTTPClient) Get(host string, cmd string) (*http.Response, error) {
	req, err := http.NewRequest("GET", client.createURL(host, cmd), nil)
	if err != nil {
		return nil, err
	}
	if err := client.setAuth(req); err != nil {
		return nil, err
	}
	return client.http.Do(req)
}

// Post sends POST request with JSON body to the agent at host.
func (client *HTTPClient) Post(host string, cmd string, body string) (*http.Response, error) {
	req, err := http.NewRequest("POST", client.createURL(host, cmd), bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := client.setAuth(req); err != nil {
		return nil, err
	}
	return client.http.Do(req)
}

func (client *HTTPClient) setAuth(req *http.Request) error {
	if len(client.Config.BasicAuth) == 0 {
		return nil
	}
	fields := strings.Split(client.Config.BasicAuth, ":")
	if len(fields) != 2 {
		return fmt.Errorf("invalid format of basic auth entry '%v' expected 'user:pass'", client.Config.BasicAuth)
	}
	req.SetBasicAuth(fields[0], fields[1])
	return nil
}
