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
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/channel"
)

// HistorySize is how many observations are kept per channel.
const HistorySize = 10

// Observation is a single raw reading from one channel.
type Observation struct {
	Channel channel.Kind
	Raw     float64
	At      time.Time
}

// ChannelStatistics aggregates what has been seen on one channel.
type ChannelStatistics struct {
	Enabled   bool
	Received  int
	LastValue float64
	LastAt    time.Time

	history [HistorySize]Observation
	start   int
	size    int
}

func (s *ChannelStatistics) add(o Observation) {
	if s.size < HistorySize {
		s.history[(s.start+s.size)%HistorySize] = o
		s.size++
	} else {
		s.history[s.start] = o
		s.start = (s.start + 1) % HistorySize
	}
	s.Received++
	s.LastValue = o.Raw
	s.LastAt = o.At
}

// History returns the retained observations, oldest first.
func (s ChannelStatistics) History() []Observation {
	out := make([]Observation, 0, s.size)
	for i := 0; i < s.size; i++ {
		out = append(out, s.history[(s.start+i)%HistorySize])
	}
	return out
}

// HasValue reports whether at least one observation was received.
func (s ChannelStatistics) HasValue() bool {
	return s.Received > 0
}

// rawRange returns the smallest and largest retained raw values.
func (s ChannelStatistics) rawRange() (min, max float64) {
	for i, o := range s.History() {
		if i == 0 || o.Raw < min {
			min = o.Raw
		}
		if i == 0 || o.Raw > max {
			max = o.Raw
		}
	}
	return min, max
}
