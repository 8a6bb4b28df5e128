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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/unrolled/render"

	"github.com/contiv/orchagent/plugins/controller/api"
	"github.com/contiv/orchagent/plugins/statedb"
)

const (
	testTable   = "TEST_TABLE"
	objectTable = "OBJECT"

	requiresField = "requires"
	valueField    = "value"
)

// testHandler turns every intent into one device object. Intent with the
// "requires" field waits for the referenced intent to be applied first.
type testHandler struct {
	sync.Mutex
	failures map[string]error

	objects map[string]string // intent key -> value
	saved   map[string]string
}

func newTestHandler() *testHandler {
	return &testHandler{
		failures: make(map[string]error),
		objects:  make(map[string]string),
	}
}

func (h *testHandler) String() string {
	return "test-handler"
}

func (h *testHandler) HandlesEvent(event api.Event) bool {
	switch ev := event.(type) {
	case *api.DBResync, *api.HealingResync:
		return true
	case *api.IntentChange:
		return ev.Table == testTable
	}
	return false
}

func (h *testHandler) Resync(event api.Event, txn api.ResyncOperations, intents api.IntentSnapshot, resyncCount int) error {
	h.objects = make(map[string]string)
	return nil
}

func (h *testHandler) Update(event api.Event, txn api.UpdateOperations) (string, error) {
	change := event.(*api.IntentChange)
	if change.IsDelete() {
		if _, exists := h.objects[change.Key]; !exists {
			return "", errors.Wrapf(api.ErrUnknownVnet, "object %s", change.Key)
		}
		for key, value := range h.objects {
			if value == "requires:"+change.Key {
				return "", errors.Wrapf(api.ErrInUse, "object %s is required by %s", change.Key, key)
			}
		}
		txn.Delete(objectTable, change.Key)
		delete(h.objects, change.Key)
		return "removed " + change.Key, nil
	}

	h.Lock()
	err := h.failures[change.Key]
	h.Unlock()
	if err != nil {
		return "", err
	}

	value := change.Values.GetOr(valueField, "")
	if required, withReq := change.Values.Get(requiresField); withReq {
		if _, ready := h.objects[required]; !ready {
			return "", errors.Wrapf(api.ErrDependencyNotReady, "object %s", required)
		}
		value = "requires:" + required
	}
	txn.Put(objectTable, change.Key, statedb.NewFieldValues(valueField, value))
	h.objects[change.Key] = value
	return "configured " + change.Key, nil
}

func (h *testHandler) Checkpoint() {
	h.saved = make(map[string]string)
	for key, value := range h.objects {
		h.saved[key] = value
	}
}

func (h *testHandler) Rollback() {
	h.objects = h.saved
}

func (h *testHandler) setFailure(key string, err error) {
	h.Lock()
	defer h.Unlock()
	if err == nil {
		delete(h.failures, key)
	} else {
		h.failures[key] = err
	}
}

type fixture struct {
	store      *statedb.MemStore
	handler    *testHandler
	controller *Controller
}

func newFixture(store *statedb.MemStore) *fixture {
	f := &fixture{store: store, handler: newTestHandler()}
	f.controller = NewPlugin(
		UseDeps(func(deps *Deps) {
			deps.StatusCheck = nil
			deps.HTTPHandlers = nil
			deps.StateDB = store
			deps.DBResources = []*api.DBResource{{Keyword: testTable}}
			deps.EventHandlers = []api.EventHandler{f.handler}
		}),
		UseConfig(&Config{
			EnableRetry:             true,
			DelayRetry:              10 * time.Millisecond,
			MaxDelayRetry:           50 * time.Millisecond,
			EnableExpBackoffRetry:   true,
			StartupResyncDeadline:   time.Minute,
			PeriodicHealingInterval: time.Minute,
			DelayAfterErrorHealing:  20 * time.Millisecond,
			StoreProbingInterval:    10 * time.Millisecond,
			EventHistorySize:        100,
		}))
	Expect(f.controller.Init()).To(Succeed())
	Expect(f.controller.AfterInit()).To(Succeed())
	return f
}

func (f *fixture) close() {
	Expect(f.controller.Close()).To(Succeed())
}

func (f *fixture) objects() func() map[string]string {
	return func() map[string]string {
		objects := make(map[string]string)
		keys, err := f.store.Device.Keys(objectTable)
		Expect(err).ToNot(HaveOccurred())
		for _, key := range keys {
			values, _, err := f.store.Device.Get(objectTable, key)
			Expect(err).ToNot(HaveOccurred())
			objects[key] = values.GetOr(valueField, "")
		}
		return objects
	}
}

func (f *fixture) state(key string) func() api.IntentState {
	return func() api.IntentState {
		for _, status := range f.controller.GetIntentStates() {
			if status.Table == testTable && status.Key == key {
				return status.State
			}
		}
		return api.Absent
	}
}

func (f *fixture) setIntent(key string, pairs ...string) {
	Expect(f.store.Intent.Set(testTable, key, statedb.NewFieldValues(pairs...))).To(Succeed())
}

func (f *fixture) deleteIntent(key string) {
	Expect(f.store.Intent.Delete(testTable, key)).To(Succeed())
}

func TestCreateUpdateDelete(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	f.setIntent("a", valueField, "1")
	Eventually(f.objects()).Should(Equal(map[string]string{"a": "1"}))
	Eventually(f.state("a")).Should(Equal(api.Applied))

	f.setIntent("a", valueField, "2")
	Eventually(f.objects()).Should(Equal(map[string]string{"a": "2"}))

	f.deleteIntent("a")
	Eventually(f.objects()).Should(BeEmpty())
	Eventually(f.controller.GetIntentStates).Should(BeEmpty())
}

func TestRepeatedInstances(t *testing.T) {
	RegisterTestingT(t)

	// every instance of the plugin shares the same child loggers
	for i := 0; i < 3; i++ {
		f := newFixture(statedb.NewMemStore())
		f.setIntent("a", valueField, "1")
		Eventually(f.state("a")).Should(Equal(api.Applied))
		f.close()
	}
	Expect(childLogger(NewPlugin().Log, "dbwatcher").GetName()).To(Equal("controller.dbwatcher"))
}

func TestStartupResync(t *testing.T) {
	RegisterTestingT(t)
	store := statedb.NewMemStore()
	Expect(store.Intent.Set(testTable, "a", statedb.NewFieldValues(valueField, "1"))).To(Succeed())
	Expect(store.Intent.Set(testTable, "b", statedb.NewFieldValues(requiresField, "a"))).To(Succeed())
	Expect(store.Device.Set(objectTable, "stale", statedb.NewFieldValues(valueField, "x"))).To(Succeed())

	f := newFixture(store)
	defer f.close()

	Eventually(f.objects()).Should(Equal(map[string]string{"a": "1", "b": "requires:a"}))
	Expect(f.state("a")()).To(Equal(api.Applied))
	Expect(f.state("b")()).To(Equal(api.Applied))
}

func TestDependencyOrdering(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	// dependent intent first
	f.setIntent("b", requiresField, "a")
	Eventually(f.state("b")).Should(Equal(api.Pending))
	Consistently(f.objects(), 50*time.Millisecond).Should(BeEmpty())

	f.setIntent("a", valueField, "1")
	Eventually(f.objects()).Should(Equal(map[string]string{"a": "1", "b": "requires:a"}))

	// the required intent cannot go before the dependent one
	f.deleteIntent("a")
	Eventually(f.state("a")).Should(Equal(api.Pending))
	Consistently(f.objects(), 50*time.Millisecond).Should(HaveKey("a"))

	f.deleteIntent("b")
	Eventually(f.objects()).Should(BeEmpty())
	Eventually(f.controller.GetIntentStates).Should(BeEmpty())
}

func TestRetryAfterStoreOutage(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	f.store.Device.SetUnavailable(true)
	f.setIntent("a", valueField, "1")
	Eventually(func() string {
		for _, status := range f.controller.GetIntentStates() {
			if status.Key == "a" {
				return status.LastError
			}
		}
		return ""
	}).Should(ContainSubstring("store unavailable"))
	Expect(f.state("a")()).To(Equal(api.Pending))

	f.store.Device.SetUnavailable(false)
	Eventually(f.state("a")).Should(Equal(api.Applied))
	Expect(f.objects()()).To(Equal(map[string]string{"a": "1"}))
}

func TestValidationErrorStaysPending(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	f.handler.setFailure("bad", errors.Wrap(api.ErrInvalidConfig, "bad value"))
	f.setIntent("bad", valueField, "x")
	f.setIntent("good", valueField, "1")

	Eventually(f.state("good")).Should(Equal(api.Applied))
	Eventually(f.state("bad")).Should(Equal(api.Pending))
	Consistently(f.objects(), 50*time.Millisecond).Should(Equal(map[string]string{"good": "1"}))

	// fixed by a retry
	f.handler.setFailure("bad", nil)
	Eventually(f.state("bad")).Should(Equal(api.Applied))

	// removal of a never applied intent is a no-op
	f.handler.setFailure("never", errors.Wrap(api.ErrInvalidConfig, "bad value"))
	f.setIntent("never", valueField, "x")
	Eventually(f.state("never")).Should(Equal(api.Pending))
	f.deleteIntent("never")
	Eventually(f.state("never")).Should(Equal(api.Absent))
	Expect(f.objects()()).To(Equal(map[string]string{"good": "1", "bad": "x"}))
}

func TestFatalErrorHaltsKey(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	f.setIntent("a", valueField, "1")
	Eventually(f.state("a")).Should(Equal(api.Applied))

	f.handler.setFailure("a", api.NewFatalError(errors.New("internal bug")))
	f.setIntent("a", valueField, "2")
	Eventually(f.state("a")).Should(Equal(api.Halted))

	// other keys continue to converge
	f.setIntent("b", valueField, "1")
	Eventually(f.state("b")).Should(Equal(api.Applied))

	// halted key is not mutated
	f.handler.setFailure("a", nil)
	f.setIntent("a", valueField, "3")
	Consistently(f.objects(), 50*time.Millisecond).Should(Equal(map[string]string{"a": "1", "b": "1"}))

	// healing resync preserves what was applied
	Expect(f.controller.PushEvent(&api.HealingResync{Type: api.Periodic})).To(Succeed())
	Consistently(f.objects(), 50*time.Millisecond).Should(Equal(map[string]string{"a": "1", "b": "1"}))
	Expect(f.state("a")()).To(Equal(api.Halted))

	// DB resync re-attempts the halted key
	Expect(f.controller.dbWatcher.requestResync()).To(Succeed())
	Eventually(f.state("a")).Should(Equal(api.Applied))
	Expect(f.objects()()).To(Equal(map[string]string{"a": "3", "b": "1"}))
}

func TestDeleteWhilePending(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	f.setIntent("b", requiresField, "a")
	f.deleteIntent("b")
	f.setIntent("c", valueField, "1")
	f.deleteIntent("c")
	Eventually(f.controller.GetIntentStates).Should(BeEmpty())

	f.setIntent("a", valueField, "1")
	Eventually(f.objects()).Should(Equal(map[string]string{"a": "1"}))
}

func TestEventHistory(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	history := func() []*EventRecord {
		f.controller.historyLock.Lock()
		defer f.controller.historyLock.Unlock()
		return f.controller.getEventHistory(time.Time{}, time.Time{})
	}
	Eventually(history).Should(HaveLen(1))

	f.setIntent("a", valueField, "1")
	Eventually(f.state("a")).Should(Equal(api.Applied))
	Eventually(history).Should(HaveLen(2))

	f.controller.historyLock.Lock()
	defer f.controller.historyLock.Unlock()
	resync := f.controller.eventHistory[0]
	Expect(resync.Name).To(Equal("Database Resync"))
	change := f.controller.eventHistory[1]
	Expect(change.Name).To(Equal("Intent Change"))
	Expect(change.Intents).To(HaveLen(1))
	Expect(change.Intents[0].NewState).To(Equal(api.Applied))
	Expect(change.Handlers[0].Change).To(Equal("configured a"))
	Expect(f.controller.getEventHistory(time.Now().Add(time.Hour), time.Time{})).To(BeEmpty())
}

func TestRESTHandlers(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	f.setIntent("a", valueField, "1")
	f.setIntent("b", requiresField, "x")
	Eventually(f.state("a")).Should(Equal(api.Applied))
	Eventually(f.state("b")).Should(Equal(api.Pending))

	formatter := render.New()
	serve := func(handler func(*render.Render) http.HandlerFunc, method, url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler(formatter)(rec, httptest.NewRequest(method, url, nil))
		return rec
	}

	// event history filtered by intent
	rec := serve(f.controller.eventHistoryGetHandler, "GET", eventHistoryURL+"?intent=TEST_TABLE|a")
	Expect(rec.Code).To(Equal(http.StatusOK))
	var records []map[string]interface{}
	Expect(json.Unmarshal(rec.Body.Bytes(), &records)).To(Succeed())
	Expect(records).ToNot(BeEmpty())
	// startup resync may have applied the intent already
	for _, record := range records {
		encoded, err := json.Marshal(record)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(encoded)).To(ContainSubstring("TEST_TABLE|a"))
	}
	rec = serve(f.controller.eventHistoryGetHandler, "GET", eventHistoryURL+"?intent=TEST_TABLE|unknown")
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(json.Unmarshal(rec.Body.Bytes(), &records)).To(Succeed())
	Expect(records).To(BeEmpty())

	rec = serve(f.controller.eventHistoryGetHandler, "GET", eventHistoryURL+"?first=1")
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(json.Unmarshal(rec.Body.Bytes(), &records)).To(Succeed())
	Expect(records).To(HaveLen(1))
	Expect(records[0]["SeqNum"]).To(BeEquivalentTo(0))

	rec = serve(f.controller.eventHistoryGetHandler, "GET", eventHistoryURL+"?seq-num=0")
	Expect(rec.Code).To(Equal(http.StatusOK))
	rec = serve(f.controller.eventHistoryGetHandler, "GET", eventHistoryURL+"?seq-num=1000")
	Expect(rec.Code).To(Equal(http.StatusNotFound))
	rec = serve(f.controller.eventHistoryGetHandler, "GET", eventHistoryURL+"?last=abc")
	Expect(rec.Code).To(Equal(http.StatusBadRequest))

	// intents filtered by state
	var states []map[string]interface{}
	rec = serve(f.controller.intentsGetHandler, "GET", intentsURL+"?state=pending")
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(json.Unmarshal(rec.Body.Bytes(), &states)).To(Succeed())
	Expect(states).To(HaveLen(1))
	Expect(states[0]["Key"]).To(Equal("b"))
	Expect(states[0]["State"]).To(Equal("pending"))

	rec = serve(f.controller.intentsGetHandler, "GET", intentsURL+"?table=OTHER_TABLE")
	Expect(json.Unmarshal(rec.Body.Bytes(), &states)).To(Succeed())
	Expect(states).To(BeEmpty())

	rec = serve(f.controller.resyncReqHandler, "POST", resyncURL)
	Expect(rec.Code).To(Equal(http.StatusOK))
}

// unknownEvent is not handled by the controller.
type unknownEvent struct {
	sync.Mutex
	done bool
	err  error
}

func (ev *unknownEvent) GetName() string { return "Unknown Event" }
func (ev *unknownEvent) String() string { return ev.GetName() }
func (ev *unknownEvent) Method() api.EventMethodType { return api.Update }
func (ev *unknownEvent) IsBlocking() bool { return false }

func (ev *unknownEvent) Done(err error) {
	ev.Lock()
	defer ev.Unlock()
	ev.done, ev.err = true, err
}

func (ev *unknownEvent) result() error {
	ev.Lock()
	defer ev.Unlock()
	if !ev.done {
		return nil
	}
	return ev.err
}

func TestUnsupportedEvent(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture(statedb.NewMemStore())
	defer f.close()

	event := &unknownEvent{}
	Expect(f.controller.PushEvent(event)).To(Succeed())
	Eventually(event.result).Should(MatchError("unsupported event: Unknown Event"))

	// the loop keeps running
	f.setIntent("a", valueField, "1")
	Eventually(f.state("a")).Should(Equal(api.Applied))
}

func TestSplitLongLines(t *testing.T) {
	RegisterTestingT(t)

	lines := splitLongLines([]string{"short", "this line is too long"}, 10, 2)
	Expect(lines).To(Equal([]string{"short", "this line", "  is too", "  long"}))
}

func TestEventBanners(t *testing.T) {
	RegisterTestingT(t)

	start := time.Now()
	record := &EventRecord{
		SeqNum:          7,
		ProcessingStart: start,
		ProcessingEnd:   start.Add(3 * time.Millisecond),
		Description:     "Intent Change: TEST_TABLE|b",
		Handlers: []*EventHandlingRecord{
			newHandlingRecord(newTestHandler(), "TEST_TABLE|b", "", api.ErrDependencyNotReady),
		},
		Intents: []*IntentRecord{
			{Intent: "TEST_TABLE|b", Op: "SET", Attempt: 2, NewState: api.Pending},
		},
	}

	banner := formatFinalizedEvent(record)
	lines := strings.Split(strings.TrimSuffix(banner, "\n"), "\n")
	for _, line := range lines {
		Expect(line).To(HaveLen(bannerWidth))
	}
	Expect(banner).To(ContainSubstring("FINALIZED EVENT: Intent Change: TEST_TABLE|b"))
	Expect(banner).To(ContainSubstring("#7"))
	Expect(banner).To(ContainSubstring("took 3ms"))
	Expect(banner).To(ContainSubstring("SET TEST_TABLE|b -> pending (attempt #2)"))
	Expect(banner).To(ContainSubstring("ERRORS:"))

	banner = formatNewEvent(&EventRecord{SeqNum: 8, IsFollowUp: true, FollowUpTo: 7,
		Description: "Intent Change"}, nil)
	Expect(banner).To(ContainSubstring("NEW EVENT (follow-up to #7): Intent Change"))
	Expect(banner).ToNot(ContainSubstring("EVENT HANDLERS"))
}
