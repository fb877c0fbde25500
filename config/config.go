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

// Package config parses the context configuration table of spec §4.F
// from TOML, the way cmd/gprobe parses node configuration.
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// InternalOOB is the tri-state governing whether the context stands
// up a service team to serve as OOB transport for later team
// creation.
type InternalOOB int

const (
	InternalOOBOff InternalOOB = iota
	InternalOOBTry
	InternalOOBForce
)

// ContextConfig mirrors original_source's ucc_context_config_table:
// ESTIMATED_NUM_EPS, LOCK_FREE_PROGRESS_Q, ESTIMATED_NUM_PPN,
// TEAM_IDS_POOL_SIZE, INTERNAL_OOB.
type ContextConfig struct {
	EstimatedNumEPs   int         `toml:",omitempty"`
	EstimatedNumPPN   int         `toml:",omitempty"`
	TeamIDsPoolSize   int         `toml:",omitempty"`
	InternalOOB       InternalOOB `toml:",omitempty"`
	LockFreeProgressQ bool        `toml:",omitempty"`
}

// DefaultContextConfig matches the defaults in the original config
// table ("0", "32", "1", "0").
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		EstimatedNumEPs:   0,
		EstimatedNumPPN:   0,
		TeamIDsPoolSize:   32,
		InternalOOB:       InternalOOBTry,
		LockFreeProgressQ: false,
	}
}

// tomlSettings mirrors cmd/gprobe/config.go: keep TOML keys identical
// to the Go struct field names instead of lower-casing them.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Load reads a TOML file into a ContextConfig seeded with defaults,
// the same load-then-overlay shape as cmd/gprobe's loadConfig.
func Load(path string) (ContextConfig, error) {
	cfg := DefaultContextConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*os.PathError); ok {
		return cfg, err
	}
	return cfg, err
}

// TeamIDCapacity is the number of concurrent unique team ids this
// config supports: size * 64, per spec §4.F.
func (c ContextConfig) TeamIDCapacity() int {
	return c.TeamIDsPoolSize * 64
}

// Override applies a single named option at runtime, mirroring
// original_source's ucc_context_config_modify for the core (non-CL)
// table.
func (c *ContextConfig) Override(name, value string) error {
	switch name {
	case "ESTIMATED_NUM_EPS":
		return scanInt(value, &c.EstimatedNumEPs)
	case "ESTIMATED_NUM_PPN":
		return scanInt(value, &c.EstimatedNumPPN)
	case "TEAM_IDS_POOL_SIZE":
		return scanInt(value, &c.TeamIDsPoolSize)
	case "LOCK_FREE_PROGRESS_Q":
		var v int
		if err := scanInt(value, &v); err != nil {
			return err
		}
		c.LockFreeProgressQ = v != 0
		return nil
	case "INTERNAL_OOB":
		var v int
		if err := scanInt(value, &v); err != nil {
			return err
		}
		c.InternalOOB = InternalOOB(v)
		return nil
	default:
		return fmt.Errorf("config: unknown option %q", name)
	}
}

func scanInt(value string, dst *int) error {
	_, err := fmt.Sscanf(value, "%d", dst)
	return err
}
