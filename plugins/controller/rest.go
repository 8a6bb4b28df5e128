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

package controller

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/unrolled/render"

	"github.com/contiv/orchagent/plugins/controller/api"
)

const (
	// prefix used for REST urls of the controller.
	urlPrefix = "/controller/"

	// eventHistoryURL is URL used to obtain the event history.
	eventHistoryURL = urlPrefix + "event-history"

	// resyncURL is URL used to trigger DB resync.
	resyncURL = urlPrefix + "resync"

	// intentsURL is URL used to obtain reconciliation status of intents.
	intentsURL = urlPrefix + "intents"
)

// Arguments of the event-history API. Window arguments are evaluated by
// precedence: seq-num, since/until (Unix timestamps), from/to (sequence
// numbers), first, last. The intent argument (<table>|<key>) narrows any
// window down to events that reconciled the given intent.
const (
	seqNumArg = "seq-num"
	sinceArg  = "since"
	untilArg  = "until"
	fromArg   = "from"
	toArg     = "to"
	firstArg  = "first"
	lastArg   = "last"
	intentArg = "intent"
)

// Arguments of the intents API.
const (
	tableArg = "table"
	stateArg = "state"
)

// errorString wraps string representation of an error that, unlike the original
// error, can be marshalled.
type errorString struct {
	Error string
}

// historyQuery is a parsed event-history request.
type historyQuery struct {
	ints   map[string]uint64
	times  map[string]time.Time
	intent string
}

func parseHistoryQuery(args url.Values) (*historyQuery, error) {
	q := &historyQuery{
		ints:   make(map[string]uint64),
		times:  make(map[string]time.Time),
		intent: args.Get(intentArg),
	}
	for _, arg := range []string{seqNumArg, fromArg, toArg, firstArg, lastArg} {
		if value := args.Get(arg); value != "" {
			num, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid %s", arg)
			}
			q.ints[arg] = num
		}
	}
	for _, arg := range []string{sinceArg, untilArg} {
		if value := args.Get(arg); value != "" {
			sec, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid %s", arg)
			}
			q.times[arg] = time.Unix(sec, 0)
		}
	}
	return q, nil
}

// window selects records of the history the query is interested in.
func (q *historyQuery) window(c *Controller) []*EventRecord {
	history := c.eventHistory
	since, hasSince := q.times[sinceArg]
	until, hasUntil := q.times[untilArg]
	from, hasFrom := q.ints[fromArg]
	to, hasTo := q.ints[toArg]
	first, hasFirst := q.ints[firstArg]
	last, hasLast := q.ints[lastArg]

	switch {
	case hasSince || hasUntil:
		return c.getEventHistory(since, until)
	case hasFrom && hasTo:
		var selected []*EventRecord
		for _, event := range history {
			if event.SeqNum >= from && event.SeqNum <= to {
				selected = append(selected, event)
			}
		}
		return selected
	case hasFirst:
		if first > uint64(len(history)) {
			first = uint64(len(history))
		}
		return history[:first]
	case hasLast:
		if last > uint64(len(history)) {
			last = uint64(len(history))
		}
		return history[uint64(len(history))-last:]
	}
	return history
}

// touchesIntent returns true if the event reconciled the given intent.
func touchesIntent(event *EventRecord, intent string) bool {
	for _, record := range event.Intents {
		if record.Intent == intent {
			return true
		}
	}
	for _, record := range event.Handlers {
		if record.Intent == intent {
			return true
		}
	}
	return false
}

// registerHandlers registers all supported REST APIs.
func (c *Controller) registerHandlers() {
	if c.HTTPHandlers == nil {
		c.Log.Warn("No http handler provided, skipping registration of Controller REST handlers")
		return
	}
	c.HTTPHandlers.RegisterHTTPHandler(eventHistoryURL, c.eventHistoryGetHandler, "GET")
	c.HTTPHandlers.RegisterHTTPHandler(resyncURL, c.resyncReqHandler, "POST")
	c.HTTPHandlers.RegisterHTTPHandler(intentsURL, c.intentsGetHandler, "GET")
}

// eventHistoryGetHandler is the GET handler for "event-history" API.
func (c *Controller) eventHistoryGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q, err := parseHistoryQuery(req.URL.Query())
		if err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}

		c.historyLock.Lock()
		defer c.historyLock.Unlock()

		if seqNum, hasSeqNum := q.ints[seqNumArg]; hasSeqNum {
			for _, event := range c.eventHistory {
				if event.SeqNum == seqNum {
					formatter.JSON(w, http.StatusOK, event)
					return
				}
			}
			formatter.JSON(w, http.StatusNotFound, errorString{"event with such sequence number is not recorded"})
			return
		}

		history := q.window(c)
		if q.intent != "" {
			var filtered []*EventRecord
			for _, event := range history {
				if touchesIntent(event, q.intent) {
					filtered = append(filtered, event)
				}
			}
			history = filtered
		}
		formatter.JSON(w, http.StatusOK, history)
	}
}

// resyncReqHandler is the POST handler for "resync" API.
func (c *Controller) resyncReqHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if c.dbWatcher == nil {
			formatter.JSON(w, http.StatusServiceUnavailable, errorString{"DB watcher is not running"})
			return
		}
		if err := c.dbWatcher.requestResync(); err != nil {
			formatter.JSON(w, http.StatusInternalServerError, errorString{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK, "Resync request was successfully dispatched.")
	}
}

// intentsGetHandler is the GET handler for "intents" API, optionally filtered
// by table and state name (absent, pending, applied, halted).
func (c *Controller) intentsGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		args := req.URL.Query()
		table, state := args.Get(tableArg), strings.ToLower(args.Get(stateArg))
		states := []*api.IntentStatus{}
		for _, status := range c.GetIntentStates() {
			if table != "" && status.Table != table {
				continue
			}
			if state != "" && status.State.String() != state {
				continue
			}
			states = append(states, status)
		}
		formatter.JSON(w, http.StatusOK, states)
	}
}
