// Copyright 2017 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package status defines the status codes and error taxonomy surfaced
// by the collective runtime to its callers.
package status

import "fmt"

// Code is one of the status codes a collective operation can report.
type Code int

const (
	OK Code = iota
	InProgress
	NoMemory
	NoResource
	InvalidParam
	NotFound
	NotImplemented
	NoMessage
	TransportError
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InProgress:
		return "INPROGRESS"
	case NoMemory:
		return "NO_MEMORY"
	case NoResource:
		return "NO_RESOURCE"
	case InvalidParam:
		return "INVALID_PARAM"
	case NotFound:
		return "NOT_FOUND"
	case NotImplemented:
		return "NOT_IMPLEMENTED"
	case NoMessage:
		return "NO_MESSAGE"
	case TransportError:
		return "TRANSPORT_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Class groups a Code into the error taxonomy of spec §7.
type Class int

const (
	// ClassNone is not an error.
	ClassNone Class = iota
	TransportFatal
	AllocationFatal
	ProtocolViolation
	UserError
)

// Status is an error carrying a Code, an error Class, and an optional
// wrapped cause. It is terminal for the task that produced it: the
// task is never retried, per spec §7.
type Status struct {
	Code  Code
	Class Class
	Msg   string
	Cause error
}

func New(code Code, class Class, msg string) *Status {
	return &Status{Code: code, Class: class, Msg: msg}
}

func Wrap(code Code, class Class, msg string, cause error) *Status {
	return &Status{Code: code, Class: class, Msg: msg, Cause: cause}
}

func (s *Status) Error() string {
	if s.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", s.Code, s.Msg, s.Cause)
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Msg)
}

func (s *Status) Unwrap() error { return s.Cause }

// Is reports whether err carries the given Code, so callers can write
// status.Is(err, status.InProgress) instead of type-asserting.
func Is(err error, code Code) bool {
	s, ok := err.(*Status)
	if !ok {
		return false
	}
	return s.Code == code
}

// ErrInProgress is the sentinel non-error value the progress/knomial/oob
// state machines return from a suspension point.
var ErrInProgress = New(InProgress, ClassNone, "operation has not completed")
