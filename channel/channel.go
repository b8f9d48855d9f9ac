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

// Package channel enumerates the ways a device can report battery state.
package channel

import (
	"fmt"
	"strings"
)

// Kind is one battery reporting channel. The declaration order is significant,
// it is used to break ties when choosing between channels.
type Kind int

const (
	// VendorDatapointPercent is a vendor specific datapoint carrying a number
	// with an unknown scaling (percent, percent*2 or percent/2).
	VendorDatapointPercent Kind = iota
	// VendorDatapointTriState is a vendor enum of low/medium/high.
	VendorDatapointTriState
	// StandardPercent is the standard remaining percentage attribute in half percent units.
	StandardPercent
	// StandardVoltage is the standard battery voltage attribute in tenths of a volt.
	StandardVoltage
)

// Count is the number of channel kinds.
const Count = 4

// All lists every kind in declaration order.
var All = [Count]Kind{
	VendorDatapointPercent,
	VendorDatapointTriState,
	StandardPercent,
	StandardVoltage,
}

var names = [Count]string{
	"vendor_dp_percent",
	"vendor_dp_state",
	"standard_percent",
	"standard_voltage",
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < Count
}

// IsVendor reports whether the channel is vendor specific rather than standards based.
func (k Kind) IsVendor() bool {
	return k == VendorDatapointPercent || k == VendorDatapointTriState
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("channel(%d)", int(k))
	}
	return names[k]
}

// Parse returns the kind with the given name.
func Parse(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown battery channel %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid battery channel %d", int(k))
	}
	return []byte(names[k]), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
