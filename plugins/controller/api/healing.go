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

package api

import "fmt"

type HealingResyncType int

const (
	// Periodic healing resync, when enabled in the configuration, is run periodically
	// to rebuild the Device State Store from the cached intents.
	Periodic HealingResyncType = iota

	// AfterError healing resync is triggered after a resync has failed.
	AfterError
)

// HealingResync re-applies all cached intents from scratch.
type HealingResync struct {
	Type  HealingResyncType
	Error error // non-nil if the resync is of type AfterError
}

func (ev *HealingResync) GetName() string {
	return "Healing Resync"
}

func (ev *HealingResync) String() string {
	str := ev.GetName()
	if ev.Type == AfterError {
		str += fmt.Sprintf(" (After error: %v)", ev.Error)
	} else {
		str += " (Periodic)"
	}
	return str
}

func (ev *HealingResync) Method() EventMethodType {
	return Resync
}

func (ev *HealingResync) IsBlocking() bool {
	return false
}

func (ev *HealingResync) Done(error) {
	return
}

/********************************* Retry Tick *********************************/

// RetryTick asks the controller to re-attempt reconciliation of pending intents
// whose retry delay has elapsed.
type RetryTick struct{}

func (ev *RetryTick) GetName() string {
	return "Retry Tick"
}

func (ev *RetryTick) String() string {
	return ev.GetName()
}

func (ev *RetryTick) Method() EventMethodType {
	return Update
}

func (ev *RetryTick) Direction() UpdateDirectionType {
	return Forward
}

func (ev *RetryTick) IsBlocking() bool {
	return false
}

func (ev *RetryTick) Done(error) {
	return
}
