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
	"fmt"
	"sort"
	"time"

	"github.com/contiv/orchagent/plugins/asicdb"
	"github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

// intentRecord is the convergence state of one intent key.
type intentRecord struct {
	id          api.IntentID
	state       api.IntentState
	desired     *statedb.FieldValues // nil = intent removed
	applied     *statedb.FieldValues // nil = nothing applied
	attempts    int                  // failed attempts since the last change
	nextAttempt time.Time
	lastErr     error
}

// updateDesiredValue updates the desired value of the intent changed
// in the Intent Store.
func (c *Controller) updateDesiredValue(change *api.IntentChange) {
	rec, known := c.intents[change.IntentID]
	if !known {
		rec = &intentRecord{id: change.IntentID, state: api.Absent}
		c.intents[change.IntentID] = rec
	}
	if change.IsDelete() {
		rec.desired = nil
	} else {
		rec.desired = change.Values.Clone()
	}
	rec.attempts = 0
	rec.nextAttempt = time.Time{}
	if rec.state != api.Halted {
		rec.state = api.Pending
	}
}

// reconcileIntents reconciles the given intents, each in a separate transaction.
// Afterwards, intents waiting for other intents are retried for as long as
// there is a progress.
func (c *Controller) reconcileIntents(recs []*intentRecord, evRecord *EventRecord) {
	var progress bool
	for _, rec := range recs {
		if c.reconcileIntent(rec, evRecord) {
			progress = true
		}
	}
	for progress {
		progress = false
		for _, rec := range c.waitingIntents() {
			if c.reconcileIntent(rec, evRecord) {
				progress = true
			}
		}
	}
}

// reconcileIntent brings one intent key from Pending to Applied (or Absent)
// with its own transaction. Returns true if the reconciliation succeeded.
func (c *Controller) reconcileIntent(rec *intentRecord, evRecord *EventRecord) (success bool) {
	if rec == nil || rec.state != api.Pending {
		return false
	}
	if rec.desired != nil && rec.applied != nil && rec.desired.Equal(rec.applied) {
		// coalesced into no-op
		c.finalizeIntent(rec, nil, evRecord)
		return true
	}

	txn := newTransaction(c.StateDB.DeviceDB(), false)
	c.checkpoint(txn)
	err := c.applyIntent(rec, rec.desired, rec.applied, txn, evRecord)
	if err == nil {
		err = c.commit(txn, evRecord)
	}
	if err != nil {
		c.rollback(txn)
	}
	c.finalizeIntent(rec, err, evRecord)
	return err == nil
}

// applyIntent asks the handlers to turn the intent change into device object
// operations added into <txn>.
func (c *Controller) applyIntent(rec *intentRecord, value, prevValue *statedb.FieldValues,
	txn *transaction, evRecord *EventRecord) error {

	change := &api.IntentChange{
		IntentID:   rec.id,
		Op:         statedb.OpSet,
		Values:     value,
		PrevValues: prevValue,
		Attempt:    rec.attempts + 1,
	}
	if value == nil {
		change.Op = statedb.OpDel
	}

	for _, handler := range c.handlersForEvent(change) {
		description, err := handler.Update(change, txn)
		if err != nil && change.IsDelete() && api.IsUnknownObject(err) {
			// nothing to remove
			c.Log.Infof("Removal of %s ignored: %v", rec.id, err)
			err = nil
		}
		evRecord.Handlers = append(evRecord.Handlers,
			newHandlingRecord(handler, rec.id.String(), description, err))
		if err != nil {
			return err
		}
	}
	return nil
}

// finalizeIntent updates the intent state based on the outcome of its reconciliation.
func (c *Controller) finalizeIntent(rec *intentRecord, err error, evRecord *EventRecord) {
	intentRec := &IntentRecord{
		Intent:  rec.id.String(),
		Op:      statedb.OpSet.String(),
		Attempt: rec.attempts + 1,
	}
	if rec.desired == nil {
		intentRec.Op = statedb.OpDel.String()
	}

	switch {
	case err == nil:
		rec.applied = rec.desired
		rec.attempts = 0
		rec.nextAttempt = time.Time{}
		rec.lastErr = nil
		if rec.desired == nil {
			rec.state = api.Absent
			delete(c.intents, rec.id)
		} else {
			rec.state = api.Applied
		}

	case api.IsFatal(err):
		rec.state = api.Halted
		rec.lastErr = err
		intentRec.Error = err.Error()
		c.reportError(fmt.Errorf("reconciliation of %s halted: %v", rec.id, err))

	default:
		rec.state = api.Pending
		rec.lastErr = err
		rec.attempts++
		rec.nextAttempt = time.Now().Add(c.retryDelay(rec.attempts))
		intentRec.Error = err.Error()
		if api.IsWaitingForOthers(err) {
			c.Log.Debugf("Reconciliation of %s postponed: %v", rec.id, err)
		} else {
			c.Log.Warnf("Reconciliation of %s failed (attempt #%d): %v", rec.id, rec.attempts, err)
		}
	}
	intentRec.NewState = rec.state
	evRecord.Intents = append(evRecord.Intents, intentRec)
}

// resync rebuilds the state of all handlers and re-applies all intents inside
// a single transaction. With <explicit> (DB resync), halted intents are
// re-attempted, otherwise their last applied value is preserved.
func (c *Controller) resync(event api.Event, intents api.IntentSnapshot, explicit bool,
	evRecord *EventRecord) error {

	txn := newTransaction(c.StateDB.DeviceDB(), true)

	// 1. rebuild internal state of the handlers
	for _, handler := range c.handlersForEvent(event) {
		err := handler.Resync(event, txn, intents, c.resyncCount)
		evRecord.Handlers = append(evRecord.Handlers, newHandlingRecord(handler, "", "", err))
		if err != nil {
			c.markAllPending(err)
			return err
		}
	}

	// 2. reset intent states
	prevIntents := c.intents
	c.intents = make(map[api.IntentID]*intentRecord)
	for table, data := range intents {
		for key, value := range data {
			id := api.IntentID{Table: table, Key: key}
			rec := &intentRecord{id: id, state: api.Pending, desired: value}
			if prevRec, hasPrev := prevIntents[id]; hasPrev && prevRec.state == api.Halted && !explicit {
				rec.state = api.Halted
				rec.applied = prevRec.applied
				rec.lastErr = prevRec.lastErr
			}
			c.intents[id] = rec
		}
	}

	// 3. re-apply intents in the order of dependencies
	for _, rec := range c.sortedIntents(nil) {
		value := rec.desired
		if rec.state == api.Halted {
			value = rec.applied
			if value == nil {
				continue
			}
		}
		c.checkpoint(txn)
		err := c.applyIntent(rec, value, nil, txn, evRecord)
		if err != nil {
			c.rollback(txn)
		}
		if rec.state == api.Halted {
			rec.applied = nil
			if err == nil {
				rec.applied = value
			}
			continue
		}
		c.finalizeIntent(rec, err, evRecord)
	}

	// 4. commit (resync mode removes all obsolete device objects)
	if err := c.commit(txn, evRecord); err != nil {
		c.markAllPending(err)
		return err
	}
	c.resyncFailed = false

	// 5. retry intents which could not be applied in the table order
	c.reconcileIntents(nil, evRecord)
	return nil
}

// markAllPending marks all intents as Pending with nothing applied after
// failed resync. Intents then wait for healing resync.
func (c *Controller) markAllPending(err error) {
	c.resyncFailed = true
	for _, rec := range c.intents {
		rec.applied = nil
		rec.lastErr = err
		if rec.state != api.Halted {
			rec.state = api.Pending
		}
	}
}

// cachedIntents returns the desired values of all known intents.
func (c *Controller) cachedIntents() api.IntentSnapshot {
	snapshot := make(api.IntentSnapshot)
	for id, rec := range c.intents {
		if rec.desired == nil {
			continue
		}
		if _, hasTable := snapshot[id.Table]; !hasTable {
			snapshot[id.Table] = make(api.IntentData)
		}
		snapshot[id.Table][id.Key] = rec.desired
	}
	return snapshot
}

// dueIntents returns pending intents with expired retry delay.
func (c *Controller) dueIntents(now time.Time) []*intentRecord {
	return c.sortedIntents(func(rec *intentRecord) bool {
		return rec.state == api.Pending && !rec.nextAttempt.After(now)
	})
}

// waitingIntents returns pending intents waiting for other intents.
func (c *Controller) waitingIntents() []*intentRecord {
	return c.sortedIntents(func(rec *intentRecord) bool {
		return rec.state == api.Pending && api.IsWaitingForOthers(rec.lastErr)
	})
}

// sortedIntents returns intents selected by the filter (all if nil), ordered
// by table dependencies and then by key.
func (c *Controller) sortedIntents(filter func(rec *intentRecord) bool) (recs []*intentRecord) {
	for _, rec := range c.intents {
		if filter == nil || filter(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return c.lessIntent(recs[i].id, recs[j].id)
	})
	return recs
}

func (c *Controller) lessIntent(id1, id2 api.IntentID) bool {
	order1, known1 := c.tableOrder[id1.Table]
	order2, known2 := c.tableOrder[id2.Table]
	if known1 != known2 {
		return known1
	}
	if order1 != order2 {
		return order1 < order2
	}
	if id1.Table != id2.Table {
		return id1.Table < id2.Table
	}
	return id1.Key < id2.Key
}

// retryDelay returns the delay before the next attempt.
func (c *Controller) retryDelay(attempts int) time.Duration {
	delay := c.config.DelayRetry
	if c.config.EnableExpBackoffRetry {
		for i := 1; i < attempts && delay < c.config.MaxDelayRetry; i++ {
			delay *= 2
		}
	}
	if c.config.MaxDelayRetry > 0 && delay > c.config.MaxDelayRetry {
		delay = c.config.MaxDelayRetry
	}
	return delay
}

// scheduleRetry schedules RetryTick for the earliest pending retry.
func (c *Controller) scheduleRetry() {
	if !c.config.EnableRetry {
		return
	}
	c.intentsLock.RLock()
	var earliest time.Time
	for _, rec := range c.intents {
		if rec.state != api.Pending || rec.lastErr == nil {
			continue
		}
		if earliest.IsZero() || rec.nextAttempt.Before(earliest) {
			earliest = rec.nextAttempt
		}
	}
	c.intentsLock.RUnlock()

	if earliest.IsZero() {
		return
	}
	if !c.retryScheduledAt.IsZero() && !c.retryScheduledAt.After(earliest) {
		// already scheduled
		return
	}
	c.retryScheduledAt = earliest
	c.wg.Add(1)
	go c.delayRetry(time.Until(earliest))
}

// delayRetry pushes RetryTick after the given delay.
func (c *Controller) delayRetry(delay time.Duration) {
	defer c.wg.Done()

	select {
	case <-c.ctx.Done():
		return
	case <-time.After(delay):
		if err := c.PushEvent(&api.RetryTick{}); err != nil {
			c.Log.Warnf("Failed to trigger retry: %v", err)
		}
	}
}

// validateDeviceState checks the Device State Store against the object schema.
func (c *Controller) validateDeviceState() {
	violations, err := asicdb.ValidateDB(c.StateDB.DeviceDB())
	if err != nil {
		c.Log.Warnf("Failed to validate device state: %v", err)
		return
	}
	for _, violation := range violations {
		c.Log.Warnf("Device state violation: %v", violation)
	}
}

// GetIntentStates returns status of all known intent keys.
func (c *Controller) GetIntentStates() (states []*api.IntentStatus) {
	c.intentsLock.RLock()
	defer c.intentsLock.RUnlock()

	for _, rec := range c.sortedIntents(nil) {
		status := &api.IntentStatus{
			IntentID:    rec.id,
			State:       rec.state,
			Desired:     rec.desired.Clone().GetFields(),
			Applied:     rec.applied.Clone().GetFields(),
			Attempts:    rec.attempts,
			NextAttempt: rec.nextAttempt,
		}
		if rec.lastErr != nil {
			status.LastError = rec.lastErr.Error()
		}
		states = append(states, status)
	}
	return states
}

func newHandlingRecord(handler api.EventHandler, intent, change string, err error) *EventHandlingRecord {
	record := &EventHandlingRecord{
		Handler: handler.String(),
		Intent:  intent,
		Change:  change,
		Error:   err,
	}
	if err != nil {
		record.ErrorStr = err.Error()
	}
	return record
}
