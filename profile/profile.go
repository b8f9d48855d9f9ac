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

// Package profile holds the static knowledge of how known devices report
// their battery.
package profile

import (
	"strings"

	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/curve"
)

// Battery chemistries.
const (
	ChemistryUnknown     = ""
	ChemistryCR2032      = "cr2032"
	ChemistryCR2450      = "cr2450"
	ChemistryCR123A      = "cr123a"
	ChemistryAAAAlkaline = "aaa_alk"
	ChemistryAAALithium  = "aaa_lith"
	ChemistryAAAlkaline  = "aa_alk"
	ChemistryAALithium   = "aa_lith"
	ChemistryLiPo        = "lipo_3v7"
	ChemistryUSB         = "usb"
	ChemistryMains       = "mains"
)

// Identity is the manufacturer and model a device announces when it joins.
type Identity struct {
	Manufacturer string
	Model        string
}

// Profile describes how a device is expected to report its battery.
type Profile struct {
	Chemistry string
	Channel   channel.Kind
	Algorithm curve.Algorithm

	// Voltage bounds used for linear interpolation. Zero means not set.
	VoltageMin float64
	VoltageMax float64

	// SkipSecondaryPolling is set for devices that time out or return errors
	// when the standard power configuration attributes are read.
	SkipSecondaryPolling bool

	// Vendor datapoint ids carrying the battery percentage and the
	// low/medium/high state. Zero means not used.
	Datapoint      uint8
	StateDatapoint uint8

	Notes string
}

// NoBattery reports whether the device is mains or USB powered.
func (p Profile) NoBattery() bool {
	return p.Chemistry == ChemistryMains || p.Chemistry == ChemistryUSB
}

// HasVoltageBounds reports whether usable linear bounds are set.
func (p Profile) HasVoltageBounds() bool {
	return p.VoltageMax > p.VoltageMin && p.VoltageMin > 0
}

// MatchedBy records which table a profile came from.
type MatchedBy int

const (
	MatchedByIdentity MatchedBy = iota + 1
	MatchedByModelPrefix
)

func (m MatchedBy) String() string {
	switch m {
	case MatchedByIdentity:
		return "identity"
	case MatchedByModelPrefix:
		return "modelPrefix"
	}
	return "none"
}

// Match is the result of a successful lookup.
type Match struct {
	Profile
	MatchedBy MatchedBy
	// Key is the manufacturer name or model prefix that matched.
	Key string
}

// Lookuper finds the profile for a device.
type Lookuper interface {
	Lookup(id Identity) (Match, bool)
}

// PrefixProfile is a profile shared by every model starting with Prefix.
type PrefixProfile struct {
	Prefix  string
	Profile Profile
}

// Database is an immutable profile table. It is safe for concurrent use.
type Database struct {
	manufacturers map[string]Profile
	prefixes      []PrefixProfile
}

// New builds a database. Prefixes are matched in the given order.
func New(manufacturers map[string]Profile, prefixes []PrefixProfile) *Database {
	db := &Database{
		manufacturers: make(map[string]Profile, len(manufacturers)),
		prefixes:      make([]PrefixProfile, 0, len(prefixes)),
	}
	for name, p := range manufacturers {
		db.manufacturers[name] = p
	}
	for _, pp := range prefixes {
		pp.Prefix = strings.ToUpper(pp.Prefix)
		db.prefixes = append(db.prefixes, pp)
	}
	return db
}

// Lookup matches the manufacturer exactly, then the model by case-insensitive
// prefix. The first matching prefix wins.
func (db *Database) Lookup(id Identity) (Match, bool) {
	if id.Manufacturer != "" {
		if p, ok := db.manufacturers[id.Manufacturer]; ok {
			return Match{Profile: p, MatchedBy: MatchedByIdentity, Key: id.Manufacturer}, true
		}
	}
	if id.Model != "" {
		model := strings.ToUpper(id.Model)
		for _, pp := range db.prefixes {
			if strings.HasPrefix(model, pp.Prefix) {
				return Match{Profile: pp.Profile, MatchedBy: MatchedByModelPrefix, Key: pp.Prefix}, true
			}
		}
	}
	return Match{}, false
}

// Len returns the number of manufacturer and prefix entries.
func (db *Database) Len() (manufacturers, prefixes int) {
	return len(db.manufacturers), len(db.prefixes)
}

// Default is the built in database.
var Default = New(manufacturerProfiles, modelPrefixProfiles)

// Lookup searches the built in database.
func Lookup(id Identity) (Match, bool) {
	return Default.Lookup(id)
}
