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

package arbiter

import (
	"encoding/json"

	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/curve"
)

// LearnedParameters is the decision the engine reaches for a device. The host
// persists it so a restarted engine can resume without learning again.
type LearnedParameters struct {
	PreferredSource *channel.Kind
	Algorithm       curve.Algorithm
	VoltageMin      *float64
	VoltageMax      *float64
	Decided         bool

	// DisabledChannels are the channels the engine stopped listening to.
	DisabledChannels []channel.Kind
}

type learnedJSON struct {
	PreferredSource  *channel.Kind  `json:"preferredSource"`
	Algorithm        *string        `json:"algorithm"`
	VoltageMin       *float64       `json:"voltageMin"`
	VoltageMax       *float64       `json:"voltageMax"`
	Decided          bool           `json:"decided"`
	DisabledChannels []channel.Kind `json:"disabledChannels,omitempty"`
}

func (p LearnedParameters) MarshalJSON() ([]byte, error) {
	out := learnedJSON{
		PreferredSource:  p.PreferredSource,
		VoltageMin:       p.VoltageMin,
		VoltageMax:       p.VoltageMax,
		Decided:          p.Decided,
		DisabledChannels: p.DisabledChannels,
	}
	if p.Algorithm != curve.Unset {
		text, err := p.Algorithm.MarshalText()
		if err != nil {
			return nil, err
		}
		alg := string(text)
		out.Algorithm = &alg
	}
	return json.Marshal(out)
}

func (p *LearnedParameters) UnmarshalJSON(data []byte) error {
	var in learnedJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	alg := curve.Unset
	if in.Algorithm != nil {
		if err := alg.UnmarshalText([]byte(*in.Algorithm)); err != nil {
			return err
		}
	}
	*p = LearnedParameters{
		PreferredSource:  in.PreferredSource,
		Algorithm:        alg,
		VoltageMin:       in.VoltageMin,
		VoltageMax:       in.VoltageMax,
		Decided:          in.Decided,
		DisabledChannels: in.DisabledChannels,
	}
	return nil
}

// Clone returns a deep copy.
func (p LearnedParameters) Clone() LearnedParameters {
	out := p
	if p.PreferredSource != nil {
		k := *p.PreferredSource
		out.PreferredSource = &k
	}
	if p.VoltageMin != nil {
		v := *p.VoltageMin
		out.VoltageMin = &v
	}
	if p.VoltageMax != nil {
		v := *p.VoltageMax
		out.VoltageMax = &v
	}
	if p.DisabledChannels != nil {
		out.DisabledChannels = append([]channel.Kind(nil), p.DisabledChannels...)
	}
	return out
}

// Preferred returns the preferred channel if one has been chosen.
func (p LearnedParameters) Preferred() (channel.Kind, bool) {
	if p.PreferredSource == nil {
		return 0, false
	}
	return *p.PreferredSource, true
}
