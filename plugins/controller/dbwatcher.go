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
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/logging"

	"github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

// dbWatcher watches the Intent Store for changes. Resync and data change events
// are pushed to the event loop as two different events:
//  * DBResync: full snapshot of all watched tables
//  * IntentChange: a change of a single intent
//
// When the Intent Store is not accessible (e.g. during early startup), the
// watcher keeps probing it. Once the connection is (re)gained, the watcher
// (re)starts watching and performs resync to catch up with changes it may
// have missed.
type dbWatcher struct {
	sync.Mutex
	*dbWatcherArgs

	isConnected bool
	resyncCount int
	resyncReqs  chan struct{}

	changeCh  chan statedb.Change
	stopWatch func()

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// dbWatcherArgs collects input arguments for dbWatcher.
type dbWatcherArgs struct {
	log       logging.Logger
	eventLoop api.EventLoop

	db        statedb.DB
	resources []*api.DBResource

	probingInterval time.Duration
}

var (
	// ErrClosedWatcher is returned when dbWatcher is used when it is already closed.
	ErrClosedWatcher = errors.New("dbWatcher was closed")
	// ErrResyncReqQueueFull is returned when queue for resync request is full.
	ErrResyncReqQueueFull = errors.New("queue with resync requests is full")
)

// newDBWatcher is the constructor for dbWatcher.
func newDBWatcher(args *dbWatcherArgs) *dbWatcher {
	watcher := &dbWatcher{
		dbWatcherArgs: args,
		resyncReqs:    make(chan struct{}, 10),
		changeCh:      make(chan statedb.Change, 1000),
	}
	watcher.ctx, watcher.cancel = context.WithCancel(context.Background())

	// start watching before the startup resync is requested so that no change
	// gets lost in between
	watcher.Lock()
	watcher.probeDB()
	watcher.Unlock()

	watcher.wg.Add(2)
	go watcher.watchDB()
	go watcher.periodicDBProbing()
	return watcher
}

// periodicDBProbing runs in a separate go routine a periodic probing
// of the connection to the Intent Store.
func (w *dbWatcher) periodicDBProbing() {
	defer w.wg.Done()

	for {
		select {
		case <-time.After(w.probingInterval):
			w.Lock()
			w.probeDB()
			w.Unlock()

		case <-w.ctx.Done():
			return
		}
	}
}

// probeDB checks if the connection to the Intent Store is functioning properly.
// The method assumes that dbWatcher is in the locked state.
func (w *dbWatcher) probeDB() {
	if _, err := w.db.Tables(); err != nil {
		if w.isConnected {
			w.isConnected = false
			w.log.Warnf("Lost connection to %s: %v", w.db.Name(), err)
		}
		return
	}

	if !w.isConnected {
		w.log.Infof("Connection to %s was (re-)established", w.db.Name())

		// restart watching (can be broken)
		if err := w.restartWatching(); err != nil {
			w.log.Warnf("Failed to watch %s: %v", w.db.Name(), err)
			return
		}
		w.isConnected = true

		// request resync to catch up
		if err := w.requestResync(); err != nil {
			w.log.Errorf("Failed to request resync against %s: %v", w.db.Name(), err)
		}
	}
}

// requestResync is used to request DB resync.
// The watcher loads a snapshot of the database, wraps it into the DBResync event
// and pushes it into the event loop.
func (w *dbWatcher) requestResync() error {
	select {
	case <-w.ctx.Done():
		return ErrClosedWatcher
	case w.resyncReqs <- struct{}{}:
		return nil
	default:
		return ErrResyncReqQueueFull
	}
}

// watchDB receives changes from the Intent Store and resync requests.
func (w *dbWatcher) watchDB() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-w.resyncReqs:
			w.runResync()

		case change := <-w.changeCh:
			w.processChange(change)
		}
	}
}

// restartWatching (re)starts watching for changes in the Intent Store.
// The method assumes that dbWatcher is in the locked state.
func (w *dbWatcher) restartWatching() error {
	w.stopWatching()
	var tables []string
	for _, resource := range w.resources {
		tables = append(tables, resource.Keyword)
	}
	stop, err := w.db.Watch(w.onDBChange, tables...)
	if err != nil {
		return err
	}
	w.stopWatch = stop
	return nil
}

// stopWatching stops watching of the Intent Store.
func (w *dbWatcher) stopWatching() {
	if w.stopWatch != nil {
		w.stopWatch()
		w.stopWatch = nil
	}
}

// onDBChange is callback triggered when change from the Intent Store is received.
func (w *dbWatcher) onDBChange(change statedb.Change) {
	select {
	case w.changeCh <- change:
		return
	default:
		// a resync request already waiting in the queue covers the change
		w.log.Error("Failed to enqueue Intent Store data change, requesting resync")
		if err := w.requestResync(); err != nil && err != ErrResyncReqQueueFull {
			w.log.Errorf("Failed to request resync: %v", err)
		}
	}
}

// runResync loads snapshot of all watched tables and sends it as DBResync.
func (w *dbWatcher) runResync() {
	w.Lock()
	defer w.Unlock()

	if !w.isConnected {
		w.log.Infof("Unable to resync against %s - connection is not available", w.db.Name())
		return
	}

	event := &api.DBResync{Intents: make(api.IntentSnapshot)}
	for _, resource := range w.resources {
		data, err := w.loadTable(resource.Keyword)
		if err != nil {
			// probing will request another resync once the connection is back
			w.log.Errorf("Resync from %s has failed: %v", w.db.Name(), err)
			w.isConnected = false
			return
		}
		if len(data) > 0 {
			event.Intents[resource.Keyword] = data
		}
	}

	if err := w.eventLoop.PushEvent(event); err != nil {
		w.log.Errorf("Failed to push resync event: %v, retrying in %v", err, w.probingInterval)
		w.retryResync()
		return
	}
	w.resyncCount++
}

// retryResync requests another resync once the probing interval elapses.
// A resync request already waiting in the queue makes the retry redundant.
func (w *dbWatcher) retryResync() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-w.ctx.Done():
		case <-time.After(w.probingInterval):
			if err := w.requestResync(); err != nil && err != ErrResyncReqQueueFull {
				w.log.Errorf("Failed to re-request resync: %v", err)
			}
		}
	}()
}

// loadTable loads all intents of a table.
func (w *dbWatcher) loadTable(table string) (api.IntentData, error) {
	keys, err := w.db.Keys(table)
	if err != nil {
		return nil, err
	}
	data := make(api.IntentData)
	for _, key := range keys {
		values, found, err := w.db.Get(table, key)
		if err != nil {
			return nil, err
		}
		if found {
			data[key] = values
		}
	}
	return data, nil
}

// processChange turns change received from the Intent Store into IntentChange.
func (w *dbWatcher) processChange(change statedb.Change) {
	event := &api.IntentChange{
		IntentID:   api.IntentID{Table: change.Table, Key: change.Key},
		Op:         change.Op,
		Values:     change.Values,
		PrevValues: change.PrevValues,
	}
	err := w.eventLoop.PushEvent(event)
	if err != nil {
		w.log.Errorf("Failed to push data change event: %v, requesting resync", err)
		if err := w.requestResync(); err != nil && err != ErrResyncReqQueueFull {
			w.log.Errorf("Failed to request resync: %v", err)
		}
	}
}

// close stops watching of the database.
func (w *dbWatcher) close() {
	w.cancel()
	w.wg.Wait()
	w.Lock()
	w.stopWatching()
	w.Unlock()
}
