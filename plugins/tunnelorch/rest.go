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

package tunnelorch

import (
	"net/http"

	"github.com/unrolled/render"
)

const (
	// tunnelsURL is URL used to dump programmed tunnels.
	tunnelsURL = "/tunnelorch/tunnels"

	// tunnel name to dump
	nameArg = "name"
)

// registerHandlers registers all supported REST APIs.
func (t *TunnelOrch) registerHandlers() {
	if t.HTTPHandlers == nil {
		t.Log.Warn("No http handler provided, skipping registration of REST handlers")
		return
	}
	t.HTTPHandlers.RegisterHTTPHandler(tunnelsURL, t.tunnelsGetHandler, "GET")
}

// tunnelsGetHandler is the GET handler for "tunnels" API.
func (t *TunnelOrch) tunnelsGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		args := req.URL.Query()
		if names, withName := args[nameArg]; withName && len(names) == 1 {
			tunnel, exists := t.GetTunnel(names[0])
			if !exists {
				formatter.JSON(w, http.StatusNotFound, struct{ Error string }{"tunnel not found"})
				return
			}
			formatter.JSON(w, http.StatusOK, tunnel)
			return
		}
		formatter.JSON(w, http.StatusOK, t.GetTunnels())
	}
}
