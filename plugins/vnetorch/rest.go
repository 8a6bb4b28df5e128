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

package vnetorch

import (
	"net"
	"net/http"

	"github.com/unrolled/render"
)

const (
	// vnetsURL is URL used to dump programmed VNETs.
	vnetsURL = "/vnetorch/vnets"

	// routesURL is URL used to dump forwarding table of a VNET as read back
	// from the Device State Store.
	routesURL = "/vnetorch/routes"

	// resolveURL is URL used to resolve destination IP inside a VNET.
	resolveURL = "/vnetorch/resolve"

	vnetArg = "vnet"
	ipArg   = "ip"
)

type errorResponse struct {
	Error string
}

// registerHandlers registers all supported REST APIs.
func (o *VnetOrch) registerHandlers() {
	if o.HTTPHandlers == nil {
		o.Log.Warn("No http handler provided, skipping registration of REST handlers")
		return
	}
	o.HTTPHandlers.RegisterHTTPHandler(vnetsURL, o.vnetsGetHandler, "GET")
	o.HTTPHandlers.RegisterHTTPHandler(routesURL, o.routesGetHandler, "GET")
	o.HTTPHandlers.RegisterHTTPHandler(resolveURL, o.resolveGetHandler, "GET")
}

// vnetsGetHandler is the GET handler for "vnets" API.
func (o *VnetOrch) vnetsGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if name := req.URL.Query().Get(vnetArg); name != "" {
			vnet, exists := o.GetVnet(name)
			if !exists {
				formatter.JSON(w, http.StatusNotFound, errorResponse{"VNET not found"})
				return
			}
			formatter.JSON(w, http.StatusOK, vnet)
			return
		}
		formatter.JSON(w, http.StatusOK, o.GetVnets())
	}
}

// routesGetHandler is the GET handler for "routes" API.
func (o *VnetOrch) routesGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		routes, err := o.ForwardingTable(req.URL.Query().Get(vnetArg))
		if err != nil {
			formatter.JSON(w, http.StatusNotFound, errorResponse{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK, routes)
	}
}

// resolveGetHandler is the GET handler for "resolve" API.
func (o *VnetOrch) resolveGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		args := req.URL.Query()
		ip := net.ParseIP(args.Get(ipArg))
		if ip == nil {
			formatter.JSON(w, http.StatusBadRequest, errorResponse{"missing or malformed IP address"})
			return
		}
		route, found, err := o.Resolve(args.Get(vnetArg), ip)
		if err != nil {
			formatter.JSON(w, http.StatusNotFound, errorResponse{err.Error()})
			return
		}
		if !found {
			formatter.JSON(w, http.StatusNotFound, errorResponse{"no route"})
			return
		}
		formatter.JSON(w, http.StatusOK, route)
	}
}
