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

package config

import "testing"

func TestDefaultContextConfig(t *testing.T) {
	cfg := DefaultContextConfig()
	if cfg.TeamIDsPoolSize != 32 {
		t.Errorf("TeamIDsPoolSize = %d, want 32", cfg.TeamIDsPoolSize)
	}
	if cfg.InternalOOB != InternalOOBTry {
		t.Errorf("InternalOOB = %v, want InternalOOBTry", cfg.InternalOOB)
	}
	if cfg.LockFreeProgressQ {
		t.Errorf("LockFreeProgressQ = true, want false")
	}
}

func TestTeamIDCapacity(t *testing.T) {
	cfg := DefaultContextConfig()
	if got, want := cfg.TeamIDCapacity(), 32*64; got != want {
		t.Errorf("TeamIDCapacity() = %d, want %d", got, want)
	}
}

func TestOverrideKnownOptions(t *testing.T) {
	cfg := DefaultContextConfig()
	if err := cfg.Override("ESTIMATED_NUM_EPS", "16"); err != nil {
		t.Fatalf("Override(ESTIMATED_NUM_EPS): %v", err)
	}
	if cfg.EstimatedNumEPs != 16 {
		t.Errorf("EstimatedNumEPs = %d, want 16", cfg.EstimatedNumEPs)
	}

	if err := cfg.Override("LOCK_FREE_PROGRESS_Q", "1"); err != nil {
		t.Fatalf("Override(LOCK_FREE_PROGRESS_Q): %v", err)
	}
	if !cfg.LockFreeProgressQ {
		t.Errorf("expected LockFreeProgressQ == true after override")
	}

	if err := cfg.Override("INTERNAL_OOB", "2"); err != nil {
		t.Fatalf("Override(INTERNAL_OOB): %v", err)
	}
	if cfg.InternalOOB != InternalOOBForce {
		t.Errorf("InternalOOB = %v, want InternalOOBForce", cfg.InternalOOB)
	}
}

func TestOverrideUnknownOption(t *testing.T) {
	cfg := DefaultContextConfig()
	if err := cfg.Override("NOT_A_REAL_OPTION", "1"); err == nil {
		t.Errorf("expected error for unknown option")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.toml"); err == nil {
		t.Errorf("expected error loading a missing config file")
	}
}
