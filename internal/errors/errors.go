// Package errors defines the typed error kinds the stream core raises or
// propagates (spec §7). Each kind carries the detail that identifies the
// failure (FlavorStopError also wraps its cause) and classifies whether the
// error is fatal to the actor (terminates it) or scoped to a
// single request/client (the actor survives).
package errors

import (
	stdErrors "errors"
	"fmt"
)

// fatalMarker is implemented by error kinds that terminate the owning actor.
type fatalMarker interface {
	error
	isFatal()
}

// UnknownRequestError indicates a synchronous request with an unrecognized
// shape reached the actor's mailbox. Fatal to the actor (spec §7).
type UnknownRequestError struct {
	Request string
}

func (e *UnknownRequestError) Error() string {
	return fmt.Sprintf("unknown_request: %s", e.Request)
}
func (e *UnknownRequestError) isFatal() {}

// BadInfoKeysError indicates info(keys) was called with one or more keys not
// in the allowed set. Local to the call; the actor survives.
type BadInfoKeysError struct {
	Keys []string
}

func (e *BadInfoKeysError) Error() string {
	return fmt.Sprintf("badarg:info_keys: %v", e.Keys)
}

// TimeshiftAndStorageError indicates init options configured both a
// pre-installed format and a timeshift buffer. Fatal at init (spec §7).
type TimeshiftAndStorageError struct{}

func (e *TimeshiftAndStorageError) Error() string {
	return "initialized_timeshift_and_storage"
}
func (e *TimeshiftAndStorageError) isFatal() {}

// NoStorageError indicates read_frame/seek was called against a stream with
// no storage adapter configured. Local; the actor survives.
type NoStorageError struct {
	Op string
}

func (e *NoStorageError) Error() string {
	return fmt.Sprintf("no_storage: %s", e.Op)
}

// SourceLostError is dispatched through the source-loss state machine; it is
// not itself fatal (the state machine decides), but callers that observe it
// outside that machinery (e.g. info() reporting) treat it as informational.
type SourceLostError struct {
	Source string
}

func (e *SourceLostError) Error() string {
	return fmt.Sprintf("source_lost: %s", e.Source)
}

// FlavorStopError wraps a flavor adapter's {stop, Reason} return. It always
// terminates the actor (spec §7).
type FlavorStopError struct {
	Reason error
}

func (e *FlavorStopError) Error() string {
	if e.Reason == nil {
		return "flavor_stop"
	}
	return fmt.Sprintf("flavor_stop: %v", e.Reason)
}
func (e *FlavorStopError) Unwrap() error { return e.Reason }
func (e *FlavorStopError) isFatal()      {}

// AlreadySubscribedError indicates a second subscribe() arrived from a caller
// already present in the client registry. Local to that caller.
type AlreadySubscribedError struct {
	ClientID string
}

func (e *AlreadySubscribedError) Error() string {
	return fmt.Sprintf("already_subscribed: %s", e.ClientID)
}

// NotPassiveError indicates seek() was attempted against a client that has no
// storage-backed ticker (active clients cannot seek).
type NotPassiveError struct {
	ClientID string
}

func (e *NotPassiveError) Error() string {
	return fmt.Sprintf("not_passive: %s", e.ClientID)
}

// IsFatal reports whether err (or a wrapped cause) terminates the actor.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fm fatalMarker
	return stdErrors.As(err, &fm)
}

// New constructors, mirroring the teacher's Newxxx convention so call sites
// read the same way ("errors.NewXxx(detail)") regardless of which error
// family is in play.
func NewUnknownRequest(request string) error         { return &UnknownRequestError{Request: request} }
func NewBadInfoKeys(keys []string) error             { return &BadInfoKeysError{Keys: keys} }
func NewTimeshiftAndStorage() error                  { return &TimeshiftAndStorageError{} }
func NewNoStorage(op string) error                   { return &NoStorageError{Op: op} }
func NewSourceLost(source string) error               { return &SourceLostError{Source: source} }
func NewFlavorStop(reason error) error                { return &FlavorStopError{Reason: reason} }
func NewAlreadySubscribed(clientID string) error      { return &AlreadySubscribedError{ClientID: clientID} }
func NewNotPassive(clientID string) error             { return &NotPassiveError{ClientID: clientID} }

// Is/As re-exports so callers don't need to also import the standard errors
// package alongside this one.
var (
	Is = stdErrors.Is
	As = stdErrors.As
)
