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

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/contiv/orchagent/plugins/statedb"
)

/********************************* Error kinds ********************************/

var (
	// ErrInvalidConfig is returned for malformed or out-of-enum intent fields.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrDuplicateDestination is returned when a destination IP is already
	// terminated by another live tunnel.
	ErrDuplicateDestination = errors.New("duplicate destination")

	// ErrUnknownTunnel is returned on delete of a tunnel that does not exist.
	ErrUnknownTunnel = errors.New("unknown tunnel")

	// ErrUnknownVnet is returned on delete of a VNET (or of its member, route
	// or neighbor) that does not exist.
	ErrUnknownVnet = errors.New("unknown vnet")

	// ErrRefCountUnderflow is returned when a reference is released more times
	// than it was acquired.
	ErrRefCountUnderflow = errors.New("reference count underflow")

	// ErrStoreUnavailable is returned when a store cannot be reached.
	ErrStoreUnavailable = statedb.ErrUnavailable

	// ErrDependencyNotReady is returned when an intent refers to another intent
	// which has not been applied yet.
	ErrDependencyNotReady = errors.New("dependency not ready")

	// ErrInUse is returned on delete of an object that still has dependents.
	ErrInUse = errors.New("object in use")
)

// causer is implemented by errors wrapping another error.
type causer interface {
	Cause() error
}

// ErrorKind returns one of the sentinel errors defined above that <err> wraps,
// or nil if <err> is of none of the known kinds.
func ErrorKind(err error) error {
	if err == nil {
		return nil
	}
	cause := errors.Cause(err)
	for _, kind := range []error{ErrInvalidConfig, ErrDuplicateDestination, ErrUnknownTunnel,
		ErrUnknownVnet, ErrRefCountUnderflow, ErrStoreUnavailable, ErrDependencyNotReady, ErrInUse} {
		if cause == kind {
			return kind
		}
	}
	return nil
}

// IsFatal returns true if <err> is or wraps FatalError.
func IsFatal(err error) bool {
	for err != nil {
		if _, isFatal := err.(*FatalError); isFatal {
			return true
		}
		cause, ok := err.(causer)
		if !ok {
			break
		}
		err = cause.Cause()
	}
	return false
}

// IsUnknownObject returns true for errors signaling removal of a non-existent
// entity. Such removals are treated as successful no-ops.
func IsUnknownObject(err error) bool {
	kind := ErrorKind(err)
	return kind == ErrUnknownTunnel || kind == ErrUnknownVnet
}

// IsWaitingForOthers returns true if the error is expected to clear as soon
// as some other intent gets applied.
func IsWaitingForOthers(err error) bool {
	kind := ErrorKind(err)
	return kind == ErrDependencyNotReady || kind == ErrInUse
}

/********************************* Fatal Error ********************************/

// FatalError marks an internal-consistency error. The affected intent is
// halted, other intents continue to converge.
type FatalError struct {
	origErr error
}

func NewFatalError(origErr error) error {
	return &FatalError{origErr: origErr}
}

func (e *FatalError) Error() string {
	return e.origErr.Error()
}

func (e *FatalError) GetOriginalError() error {
	return e.origErr
}

func (e *FatalError) Cause() error {
	return e.origErr
}

/****************************** Abort Event Error *****************************/

// AbortEventError stops processing of the event by the remaining handlers.
type AbortEventError struct {
	origErr error
}

func NewAbortEventError(origErr error) error {
	return &AbortEventError{origErr: origErr}
}

func (e *AbortEventError) Error() string {
	return e.origErr.Error()
}

func (e *AbortEventError) GetOriginalError() error {
	return e.origErr
}

func (e *AbortEventError) Cause() error {
	return e.origErr
}

/****************************** Transaction Error *****************************/

// OperationError is a failed operation of a transaction.
type OperationError struct {
	Table string
	Key   string
	Op    statedb.OpType
	Error error
}

// TransactionError is returned by Commit.
type TransactionError struct {
	txnError error
	opErrors []OperationError
}

func NewTransactionError(txnError error, opErrors []OperationError) *TransactionError {
	return &TransactionError{txnError: txnError, opErrors: opErrors}
}

func (e *TransactionError) Error() string {
	if e == nil {
		return ""
	}
	if e.txnError != nil {
		return e.txnError.Error()
	}
	if len(e.opErrors) > 0 {
		var opErrMsgs []string
		for _, opError := range e.opErrors {
			opErrMsgs = append(opErrMsgs,
				fmt.Sprintf("%s|%s (%v): %v", opError.Table, opError.Key, opError.Op, opError.Error))
		}
		return fmt.Sprintf("failed operations: [%s]", strings.Join(opErrMsgs, ", "))
	}
	return ""
}

// Cause returns the transaction-level error, or the first operation error.
func (e *TransactionError) Cause() error {
	if e == nil {
		return nil
	}
	if e.txnError != nil {
		return e.txnError
	}
	if len(e.opErrors) > 0 {
		return e.opErrors[0].Error
	}
	return nil
}

func (e *TransactionError) GetOperationErrors() (opErrors []OperationError) {
	if e == nil {
		return opErrors
	}
	return e.opErrors
}

func (e *TransactionError) GetTxnError() error {
	if e == nil {
		return nil
	}
	return e.txnError
}
