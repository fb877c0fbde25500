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

package status

import (
	"errors"
	"testing"
)

func TestIsMatchesCode(t *testing.T) {
	err := New(NoResource, AllocationFatal, "out of buffers")
	if !Is(err, NoResource) {
		t.Errorf("expected Is(err, NoResource) to be true")
	}
	if Is(err, InvalidParam) {
		t.Errorf("expected Is(err, InvalidParam) to be false")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), OK) {
		t.Errorf("expected Is to be false for a non-Status error")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	s := Wrap(TransportError, TransportFatal, "send failed", cause)
	if errors.Unwrap(s) != cause {
		t.Errorf("expected Unwrap to return the wrapped cause")
	}
	if s.Error() == "" {
		t.Errorf("expected non-empty Error() string")
	}
}

func TestErrInProgressIsInProgress(t *testing.T) {
	if !Is(ErrInProgress, InProgress) {
		t.Errorf("expected ErrInProgress to carry code InProgress")
	}
}
