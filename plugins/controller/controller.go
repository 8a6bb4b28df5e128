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
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ligato/cn-infra/health/statuscheck"
	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/rpc/rest"

	"github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

const (
	// how many events can be buffered at most
	eventQueueSize = 1000

	// by default, Controller will report error to status check if it does not
	// receive startup DBResync event within the first 30secs of runtime
	defaultStartupResyncDeadline = 30 * time.Second

	// by default, Intent Store connection is probed every 3 seconds
	defaultStoreProbingInterval = 3 * time.Second

	// by default, retry of failed reconciliations is enabled
	defaultEnableRetry = true

	// by default, retry is executed just 1sec after the failed reconciliation
	defaultDelayRetry = time.Second

	// by default, retry delay grows exponentially with each failed attempt
	defaultEnableExpBackoffRetry = true

	// retry delay never exceeds one minute by default
	defaultMaxDelayRetry = time.Minute

	// by default, periodic healing is disabled
	defaultEnablePeriodicHealing = false

	// by default, when enabled, periodic healing will run once every minute
	defaultPeriodicHealingInterval = time.Minute

	// by default, healing resync will start 5 seconds after a failed resync
	defaultDelayAfterErrorHealing = 5 * time.Second

	// by default, up to 1000 latest events are kept in the history
	defaultEventHistorySize = 1000
)

// Controller implements the convergence loop of the orchestrator.
//
// Events are represented by instances of the api.Event interface. A new event
// can be pushed into the loop for processing via the PushEvent method
// from the api.EventLoop interface, implemented by the Controller plugin.
// The DB watcher pushes DBResync with the full content of the Intent Store
// and IntentChange for every change of a single intent.
//
// Controller keeps the state of every intent key (Absent, Pending, Applied,
// Halted) with the desired and the applied value. For every key to reconcile,
// Controller builds IntentChange with both values and passes it to the event
// handlers (reconcilers) interested in the key's table. The order of event
// handlers in the array matters: creates flow through the handlers in the
// forward order, removals in the reverse order.
//
// Device objects requested by the handlers for one intent are committed into
// the Device State Store in one transaction. If a handler or the commit fails,
// the internal state of all handlers and api.Revertible dependencies is rolled
// back to the checkpoint taken before the reconciliation and the key stays
// Pending, to be retried with an exponential back-off. Keys waiting for other
// keys (api.ErrDependencyNotReady, api.ErrInUse) are additionally retried right
// after any successful reconciliation. Error wrapped with api.FatalError halts
// the key until the next database resync and is reported to the status check.
//
// Resync events (DBResync, HealingResync) rebuild the state of all handlers from
// scratch and re-apply all intents in the order of table dependencies inside
// a single transaction; device objects not re-created are removed from the
// Device State Store.
type Controller struct {
	Deps

	config *Config

	dbWatcher   *dbWatcher
	tableOrder  map[string]int
	revertibles []api.Revertible

	intentsLock  sync.RWMutex
	intents      map[api.IntentID]*intentRecord
	resyncFailed bool // intents wait for healing resync

	evLoopGID          string // ID of the go routine running the event loop
	revEventHandlers   []api.EventHandler
	delayedEvents      []*QueuedEvent // events delayed until after the first resync
	eventQueue         chan *QueuedEvent
	followUpEventQueue chan *QueuedEvent // events sent from within the event loop
	startupResyncCheck chan struct{}

	healingScheduled bool
	retryScheduledAt time.Time
	resyncCount      int
	evSeqNum         uint64

	historyLock  sync.Mutex
	eventHistory []*EventRecord

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Deps lists dependencies of the Controller.
type Deps struct {
	infra.PluginDeps

	StatusCheck  statuscheck.PluginStatusWriter
	HTTPHandlers rest.HTTPHandlers
	StateDB      statedb.API

	// Intent Store tables in the order of dependencies
	DBResources []*api.DBResource

	EventHandlers []api.EventHandler

	// internal state to checkpoint and roll back together with event handlers
	// (handlers implementing api.Revertible are included automatically)
	Revertibles []api.Revertible
}

// Config holds the Controller configuration.
type Config struct {
	// retry
	EnableRetry           bool          `json:"enable-retry"`
	DelayRetry            time.Duration `json:"delay-retry"`
	MaxDelayRetry         time.Duration `json:"max-delay-retry"`
	EnableExpBackoffRetry bool          `json:"enable-exp-backoff-retry"`

	// startup resync
	StartupResyncDeadline time.Duration `json:"startup-resync-deadline"`

	// healing
	EnablePeriodicHealing   bool          `json:"enable-periodic-healing"`
	PeriodicHealingInterval time.Duration `json:"periodic-healing-interval"`
	DelayAfterErrorHealing  time.Duration `json:"delay-after-error-healing"`

	// Intent Store status
	StoreProbingInterval time.Duration `json:"store-probing-interval"`

	// check the Device State Store against the object schema after every commit
	ValidateDeviceState bool `json:"validate-device-state"`

	// max. number of events kept in the history
	EventHistorySize int `json:"event-history-size"`

	// print new and finalized events to stdout
	PrintEvents bool `json:"print-events"`
}

// EventRecord is a record of a processed event, added into the history of events,
// available via REST interface.
type EventRecord struct {
	SeqNum          uint64
	ProcessingStart time.Time
	ProcessingEnd   time.Time
	IsFollowUp      bool
	FollowUpTo      uint64
	Name            string
	Description     string
	Method          api.EventMethodType
	Handlers        []*EventHandlingRecord
	Intents         []*IntentRecord
	TxnError        error
	TxnErrorStr     string
}

// EventHandlingRecord is a record of an event being handled by a given handler.
type EventHandlingRecord struct {
	Handler  string
	Intent   string // intent key the handler was asked to reconcile
	Change   string // change description for update events
	Error    error  // nil if none
	ErrorStr string // string representation of the error (if any)
}

// IntentRecord is a record of the outcome of an intent reconciliation.
type IntentRecord struct {
	Intent   string
	Op       string
	Attempt  int
	NewState api.IntentState
	Error    string
}

// QueuedEvent wraps event for the event queue.
type QueuedEvent struct {
	event           api.Event
	isFollowUp      bool
	followUpToEvent uint64 // event sequence number
}

var (
	// ErrClosedController is returned when Controller is used when it is already closed.
	ErrClosedController = errors.New("controller was closed")
	// ErrEventQueueFull is returned when queue for events is full.
	ErrEventQueueFull = errors.New("queue with events is full")
)

// Init loads config file and starts the event loop.
func (c *Controller) Init() error {
	// initialize attributes
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.eventQueue = make(chan *QueuedEvent, eventQueueSize)
	c.followUpEventQueue = make(chan *QueuedEvent, eventQueueSize)
	c.startupResyncCheck = make(chan struct{}, 1)
	c.intents = make(map[api.IntentID]*intentRecord)
	c.tableOrder = make(map[string]int)
	for idx, resource := range c.DBResources {
		c.tableOrder[resource.Keyword] = idx
	}
	for i := len(c.EventHandlers) - 1; i >= 0; i-- {
		c.revEventHandlers = append(c.revEventHandlers, c.EventHandlers[i])
	}
	c.revertibles = append(c.revertibles, c.Revertibles...)
	for _, handler := range c.EventHandlers {
		if revertible, isRevertible := handler.(api.Revertible); isRevertible {
			c.revertibles = append(c.revertibles, revertible)
		}
	}

	// load configuration (unless injected with UseConfig)
	if c.config == nil {
		c.config = c.defaultConfig()
		if err := c.loadConfig(c.config); err != nil {
			c.Log.Error(err)
		}
	}
	c.Log.Infof("Controller configuration: %+v", *c.config)

	// register controller with status check
	if c.StatusCheck != nil {
		c.StatusCheck.Register(c.PluginName, nil)
	}

	// start event loop
	c.wg.Add(1)
	go c.eventLoop()

	// start go routine that will send signal to check for status of startup
	// resync when timeout expires
	c.wg.Add(1)
	go c.signalStartupResyncCheck()

	// register REST API handlers
	c.registerHandlers()
	return nil
}

// AfterInit starts the DB watcher.
func (c *Controller) AfterInit() error {
	c.dbWatcher = newDBWatcher(&dbWatcherArgs{
		log:             childLogger(c.Log, "dbwatcher"),
		eventLoop:       c,
		db:              c.StateDB.IntentDB(),
		resources:       c.DBResources,
		probingInterval: c.config.StoreProbingInterval,
	})
	return nil
}

// childLogger returns child logger of the plugin. Logger registered by
// a previous instance of the plugin is reused.
func childLogger(log logging.PluginLogger, name string) logging.Logger {
	if logger, found := logging.DefaultRegistry.Lookup(log.GetName() + "." + name); found {
		return logger
	}
	return log.NewLogger(name)
}

// defaultConfig returns the default configuration.
func (c *Controller) defaultConfig() *Config {
	return &Config{
		StartupResyncDeadline:   defaultStartupResyncDeadline,
		StoreProbingInterval:    defaultStoreProbingInterval,
		EnableRetry:             defaultEnableRetry,
		DelayRetry:              defaultDelayRetry,
		MaxDelayRetry:           defaultMaxDelayRetry,
		EnableExpBackoffRetry:   defaultEnableExpBackoffRetry,
		EnablePeriodicHealing:   defaultEnablePeriodicHealing,
		PeriodicHealingInterval: defaultPeriodicHealingInterval,
		DelayAfterErrorHealing:  defaultDelayAfterErrorHealing,
		EventHistorySize:        defaultEventHistorySize,
		PrintEvents:             true,
	}
}

// PushEvent adds the given event into the queue for processing.
func (c *Controller) PushEvent(event api.Event) error {
	callerGID := getGID()
	if callerGID == c.evLoopGID {
		// follow up events (sent from within the event loop) should not be blocking
		// and will be prioritized (won't be overtaken by non-follow-up events)
		if event.IsBlocking() {
			panic("deadlock detected - blocking event sent from within the event loop")
		}
		select {
		case <-c.ctx.Done():
			return ErrClosedController
		case c.followUpEventQueue <- &QueuedEvent{
			event:           event,
			isFollowUp:      true,
			followUpToEvent: c.evSeqNum - 1}:
			return nil
		default:
			return ErrEventQueueFull
		}
	}

	select {
	case <-c.ctx.Done():
		return ErrClosedController
	case c.eventQueue <- &QueuedEvent{event: event}:
		return nil
	default:
		return ErrEventQueueFull
	}
}

// signalStartupResyncCheck sends signal after StartupResyncDeadline to check for
// status of the startup resync (it blocks other events).
func (c *Controller) signalStartupResyncCheck() {
	defer c.wg.Done()

	select {
	case <-c.ctx.Done():
		return
	case <-time.After(c.config.StartupResyncDeadline):
		c.startupResyncCheck <- struct{}{}
		return
	}
}

// periodicHealing triggers periodic resync from a separate go routine.
func (c *Controller) periodicHealing() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.config.PeriodicHealingInterval):
			err := c.PushEvent(&api.HealingResync{Type: api.Periodic})
			if err != nil {
				c.Log.Warnf("Failed to trigger periodic healing resync: %v", err)
			}
		}
	}
}

// eventLoop implements the main event loop.
func (c *Controller) eventLoop() {
	defer c.wg.Done()
	c.evLoopGID = getGID()

	for {
		select {
		case <-c.ctx.Done():
			return

		case event := <-c.followUpEventQueue:
			c.receiveEvent(event)

		case event := <-c.eventQueue:
			c.receiveEvent(event)

		case <-c.startupResyncCheck:
			// check that startup resync was performed
			if c.resyncCount == 0 {
				err := fmt.Errorf("startup resync has not executed within the first %d seconds",
					c.config.StartupResyncDeadline/time.Second)
				c.reportError(err)
			}
		}
	}
}

// receiveEvent receives event from the event queue.
func (c *Controller) receiveEvent(qe *QueuedEvent) {
	// handle startup resync
	if c.resyncCount == 0 {
		// DBResync must be the first event to process
		if _, isDBResync := qe.event.(*api.DBResync); isDBResync {
			// once the startup resync is received,
			// periodic resync - if enabled - can be started
			if c.config.EnablePeriodicHealing {
				c.wg.Add(1)
				go c.periodicHealing()
			}
		} else {
			// events received before the first DBResync will be replayed afterwards
			c.delayedEvents = append(c.delayedEvents, qe)
			return // wait until DBResync
		}
	}

	// process the received event + all the delayed events
	events := append([]*QueuedEvent{qe}, c.delayedEvents...)
	for len(events) > 0 {
		// check if there is any follow-up event
		if !qe.isFollowUp {
			select {
			case followUpEvent := <-c.followUpEventQueue:
				events = append([]*QueuedEvent{followUpEvent}, events...)
			default:
				// NOOP
			}
		}
		// pop and process the first event
		event := events[0]
		events = events[1:]
		c.processEvent(event)
	}
	c.delayedEvents = []*QueuedEvent{}
}

// processEvent processes the next event.
func (c *Controller) processEvent(qe *QueuedEvent) {
	var (
		wasErr          error
		isResync        bool
		healingAfterErr error
	)
	event := qe.event

	// 1. prepare record of the event for the history
	evRecord := &EventRecord{
		SeqNum:          c.evSeqNum,
		ProcessingStart: time.Now(),
		IsFollowUp:      qe.isFollowUp,
		FollowUpTo:      qe.followUpToEvent,
		Name:            event.GetName(),
		Description:     event.String(),
		Method:          event.Method(),
	}
	c.evSeqNum++

	// 2. print information about the new event
	c.printNewEvent(evRecord, c.handlersForEvent(event))

	// 3. process the event
	c.intentsLock.Lock()
	switch ev := event.(type) {
	case *api.DBResync:
		isResync = true
		c.resyncCount++ // first resync has resyncCount == 1
		wasErr = c.resync(ev, ev.Intents, true, evRecord)

	case *api.HealingResync:
		isResync = true
		c.resyncCount++
		if ev.Type == api.AfterError {
			c.healingScheduled = false
			healingAfterErr = ev.Error
		}
		wasErr = c.resync(ev, c.cachedIntents(), false, evRecord)

	case *api.IntentChange:
		c.updateDesiredValue(ev)
		if !c.resyncFailed {
			c.reconcileIntents([]*intentRecord{c.intents[ev.IntentID]}, evRecord)
		}

	case *api.RetryTick:
		c.retryScheduledAt = time.Time{}
		if !c.resyncFailed {
			c.reconcileIntents(c.dueIntents(time.Now()), evRecord)
		}

	default:
		wasErr = fmt.Errorf("unsupported event: %s", event.GetName())
		c.Log.Error(wasErr)
	}
	c.intentsLock.Unlock()

	// 4. finalize event processing
	evRecord.ProcessingEnd = time.Now()
	c.printFinalizedEvent(evRecord)
	c.recordEvent(evRecord)
	event.Done(wasErr)

	// 5. schedule retry of failed reconciliations
	c.scheduleRetry()

	// 6. report the outcome of resync to status check
	if isResync {
		if wasErr == nil {
			c.reportOK()
		} else {
			if healingAfterErr != nil {
				wasErr = fmt.Errorf("healing has not been successful (prev error: %v, healing error: %v)",
					healingAfterErr, wasErr)
			}
			c.reportError(wasErr)
		}
	}

	// 7. if resync failed, trigger healing resync
	if wasErr != nil && isResync && !c.healingScheduled {
		c.wg.Add(1)
		go c.scheduleHealing(wasErr)
		c.healingScheduled = true
	}
}

// handlersForEvent returns handlers interested in the event, in the order
// given by the event direction.
func (c *Controller) handlersForEvent(event api.Event) []api.EventHandler {
	eventHandlers := c.EventHandlers
	if updateEvent, isUpdate := event.(api.UpdateEvent); isUpdate && event.Method() == api.Update {
		if updateEvent.Direction() == api.Reverse {
			eventHandlers = c.revEventHandlers
		}
	}
	return filterHandlersForEvent(event, eventHandlers)
}

// checkpoint remembers the state of all revertible components.
func (c *Controller) checkpoint(txn *transaction) {
	txn.Checkpoint()
	for _, revertible := range c.revertibles {
		revertible.Checkpoint()
	}
}

// rollback restores the state of all revertible components from the last checkpoint.
func (c *Controller) rollback(txn *transaction) {
	txn.Rollback()
	for _, revertible := range c.revertibles {
		revertible.Rollback()
	}
}

// commit applies the transaction into the Device State Store.
func (c *Controller) commit(txn *transaction, evRecord *EventRecord) error {
	err := txn.Commit(c.ctx)
	if err != nil {
		evRecord.TxnError = err
		evRecord.TxnErrorStr = err.Error()
		return err
	}
	if c.config.ValidateDeviceState {
		c.validateDeviceState()
	}
	return nil
}

// recordEvent adds event record into the history.
func (c *Controller) recordEvent(evRecord *EventRecord) {
	c.historyLock.Lock()
	defer c.historyLock.Unlock()

	c.eventHistory = append(c.eventHistory, evRecord)
	if limit := c.config.EventHistorySize; limit > 0 && len(c.eventHistory) > limit {
		c.eventHistory = c.eventHistory[len(c.eventHistory)-limit:]
	}
}

// getEventHistory returns records of events processed within the given time
// window (zero time means unbounded).
func (c *Controller) getEventHistory(since, until time.Time) (history []*EventRecord) {
	for _, event := range c.eventHistory {
		if !since.IsZero() && event.ProcessingEnd.Before(since) {
			continue
		}
		if !until.IsZero() && event.ProcessingStart.After(until) {
			continue
		}
		history = append(history, event)
	}
	return history
}

// Close stops event loop and database watching.
func (c *Controller) Close() error {
	if c.dbWatcher != nil {
		c.dbWatcher.close()
	}
	c.cancel()
	c.wg.Wait()
	return nil
}

// loadConfig loads configuration file.
func (c *Controller) loadConfig(config *Config) error {
	if c.Cfg == nil {
		return nil
	}
	found, err := c.Cfg.LoadValue(config)
	if err != nil {
		return err
	} else if !found {
		c.Log.Debugf("%v config not found", c.PluginName)
		return nil
	}
	c.Log.Debugf("%v config found: %+v", c.PluginName, config)

	return err
}

// scheduleHealing is triggered to schedule Healing resync to run after a configurable
// time period.
func (c *Controller) scheduleHealing(afterErr error) {
	defer c.wg.Done()

	select {
	case <-c.ctx.Done():
		return

	case <-time.After(c.config.DelayAfterErrorHealing):
		err := c.PushEvent(&api.HealingResync{Type: api.AfterError, Error: afterErr})
		if err != nil {
			c.reportError(fmt.Errorf("failed to trigger Healing resync: %v", err))
		}
	}
}

// reportError reports error state to the status check.
func (c *Controller) reportError(err error) {
	c.Log.Error(err)
	if c.StatusCheck != nil {
		c.StatusCheck.ReportStateChange(c.PluginName, statuscheck.Error, err)
	}
}

// reportOK reports OK state to the status check.
func (c *Controller) reportOK() {
	if c.StatusCheck != nil {
		c.StatusCheck.ReportStateChange(c.PluginName, statuscheck.OK, nil)
	}
}

// getGID returns the current go routine ID as string.
func getGID() string {
	goroutineLabel := []byte("goroutine ")
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	if !bytes.HasPrefix(b, goroutineLabel) {
		return "unknown"
	}
	b = bytes.TrimPrefix(b, goroutineLabel)
	b = b[:bytes.IndexByte(b, ' ')]
	return string(b)
}
