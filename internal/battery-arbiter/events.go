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

package batteryd

import (
	"github.com/TheCacophonyProject/battery-arbiter/curve"
	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/sirupsen/logrus"
)

const (
	sourceDecidedEvent = "batterySourceDecided"
	batteryEvent       = "zigbeeBattery"
)

// eventReporter reports decisions and significant estimate changes to the
// event reporter.
type eventReporter struct {
	log           *logrus.Entry
	changePercent int
	lastReported  map[string]int
	addEvent      func(eventclient.Event) error
}

func newEventReporter(changePercent int, log *logrus.Entry) *eventReporter {
	return &eventReporter{
		log:           log,
		changePercent: changePercent,
		lastReported:  make(map[string]int),
		addEvent:      eventclient.AddEvent,
	}
}

func (r *eventReporter) SourceDecided(e Estimate) {
	r.send(eventclient.Event{
		Timestamp: e.Time,
		Type:      sourceDecidedEvent,
		Details: map[string]interface{}{
			"device":    e.Device,
			"source":    e.Source,
			"algorithm": e.Algorithm,
			"battery":   e.Percent,
		},
	})
}

func (r *eventReporter) EstimateChanged(e Estimate) {
	if !r.shouldReport(e) {
		return
	}
	r.send(eventclient.Event{
		Timestamp: e.Time,
		Type:      batteryEvent,
		Details: map[string]interface{}{
			"device":  e.Device,
			"battery": e.Percent,
			"source":  e.Source,
		},
	})
}

// shouldReport is true for the first known estimate of a device and then
// whenever it moves by at least changePercent points.
func (r *eventReporter) shouldReport(e Estimate) bool {
	if !curve.Percent(e.Percent).Known() {
		return false
	}
	last, ok := r.lastReported[e.Device]
	if ok && abs(e.Percent-last) < r.changePercent {
		return false
	}
	r.lastReported[e.Device] = e.Percent
	return true
}

func (r *eventReporter) send(event eventclient.Event) {
	if err := r.addEvent(event); err != nil {
		r.log.Error("Error sending battery event:", err)
		return
	}
	r.log.Infof("Reported %s event for %v", event.Type, event.Details["device"])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
