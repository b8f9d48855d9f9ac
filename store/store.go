/*
battery-arbiter - Battery source arbitration for Zigbee devices
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package store keeps learned battery parameters across restarts.
package store

import (
	"fmt"
	"strings"

	"github.com/TheCacophonyProject/battery-arbiter/arbiter"
)

// Kinds of store.
const (
	KindFile = "file"
	KindBolt = "bolt"
)

// Store hands out per device storage.
type Store interface {
	Device(id string) arbiter.Store
	Devices() ([]string, error)
	Close() error
}

// Open opens a store of the given kind in dir.
func Open(kind, dir string) (Store, error) {
	switch strings.ToLower(kind) {
	case "", KindFile:
		return NewFileStore(dir)
	case KindBolt:
		return NewBoltStore(dir)
	}
	return nil, fmt.Errorf("unknown store kind %q", kind)
}
