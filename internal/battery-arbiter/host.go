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
	"context"
	"errors"
	"sort"
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/arbiter"
	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/curve"
	"github.com/TheCacophonyProject/battery-arbiter/profile"
	"github.com/sirupsen/logrus"
)

var errStopped = errors.New("battery arbiter is not running")

var errUnknownDevice = errors.New("unknown device")

// Estimate is what the daemon tells the outside world about a device.
type Estimate struct {
	Device    string    `json:"device"`
	Percent   int       `json:"percent"`
	Source    string    `json:"source,omitempty"`
	Algorithm string    `json:"algorithm,omitempty"`
	Decided   bool      `json:"decided"`
	Time      time.Time `json:"time"`
}

// Listener is told about changes to device estimates. Listeners are called
// from the event loop and must not block.
type Listener interface {
	EstimateChanged(e Estimate)
	SourceDecided(e Estimate)
}

// Poller asks a device to report its standard battery attributes.
type Poller interface {
	PollBattery(device string)
}

// Storage hands out per device persistence.
type Storage interface {
	Device(id string) arbiter.Store
}

type device struct {
	id       string
	engine   *arbiter.Engine
	timer    *commitTimer
	last     curve.Percent
	decided  bool
	lastSeen time.Time
}

// Host owns one engine per device and feeds them from a single goroutine.
type Host struct {
	config    *Config
	profiles  profile.Lookuper
	storage   Storage
	log       *logrus.Entry
	listeners []Listener
	poller    Poller
	readings  *readingsLog
	now       func() time.Time

	events  chan func()
	done    chan struct{}
	devices map[string]*device
}

func NewHost(config *Config, storage Storage, log *logrus.Entry) *Host {
	return &Host{
		config:   config,
		profiles: profile.Default,
		storage:  storage,
		log:      log,
		now:      time.Now,
		events:   make(chan func(), 256),
		done:     make(chan struct{}),
		devices:  make(map[string]*device),
	}
}

func (h *Host) AddListener(l Listener) {
	h.listeners = append(h.listeners, l)
}

func (h *Host) SetPoller(p Poller) {
	h.poller = p
}

// Run processes events until ctx is cancelled.
func (h *Host) Run(ctx context.Context) {
	var poll <-chan time.Time
	if h.config.PollInterval > 0 {
		ticker := time.NewTicker(h.config.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}
	var trim <-chan time.Time
	if h.readings != nil {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		trim = ticker.C
	}

	for {
		select {
		case fn := <-h.events:
			fn()
		case <-poll:
			h.pollDevices()
		case <-trim:
			if err := h.readings.trim(); err != nil {
				h.log.Warnf("Failed to trim readings file: %v", err)
			}
		case <-ctx.Done():
			close(h.done)
			for _, d := range h.devices {
				d.engine.Cancel()
			}
			return
		}
	}
}

func (h *Host) post(fn func()) bool {
	select {
	case h.events <- fn:
		return true
	case <-h.done:
		return false
	}
}

// call runs fn on the event loop and waits for it.
func (h *Host) call(fn func()) error {
	finished := make(chan struct{})
	if !h.post(func() {
		fn()
		close(finished)
	}) {
		return errStopped
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return errStopped
	}
}

// Identify (re)initializes a device, typically after it joins the network.
func (h *Host) Identify(id string, identity profile.Identity) {
	h.post(func() { h.handleIdentity(id, identity) })
}

func (h *Host) Observe(id string, kind channel.Kind, raw float64) {
	h.post(func() { h.handleObservation(id, kind, raw) })
}

func (h *Host) Datapoint(id string, dp uint8, value float64) {
	h.post(func() { h.handleDatapoint(id, dp, value) })
}

func (h *Host) Remove(id string) {
	h.post(func() { h.handleRemove(id) })
}

func (h *Host) Devices() ([]string, error) {
	var ids []string
	err := h.call(func() {
		for id := range h.devices {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids, err
}

func (h *Host) Estimate(id string) (Estimate, error) {
	var e Estimate
	var found bool
	err := h.call(func() {
		var d *device
		if d, found = h.devices[id]; found {
			e = h.estimateFor(d)
		}
	})
	if err == nil && !found {
		err = errUnknownDevice
	}
	return e, err
}

func (h *Host) Learned(id string) (arbiter.LearnedParameters, error) {
	var p arbiter.LearnedParameters
	var found bool
	err := h.call(func() {
		var d *device
		if d, found = h.devices[id]; found {
			p = d.engine.Learned()
		}
	})
	if err == nil && !found {
		err = errUnknownDevice
	}
	return p, err
}

func (h *Host) ShouldSkipSecondaryPolling(id string) (bool, error) {
	var skip, found bool
	err := h.call(func() {
		var d *device
		if d, found = h.devices[id]; found {
			skip = d.engine.ShouldSkipSecondaryPolling()
		}
	})
	if err == nil && !found {
		err = errUnknownDevice
	}
	return skip, err
}

// CommitNow ends the learning window of a device early.
func (h *Host) CommitNow(id string) error {
	var found bool
	err := h.call(func() {
		if _, found = h.devices[id]; found {
			h.handleCommit(id)
		}
	})
	if err == nil && !found {
		err = errUnknownDevice
	}
	return err
}

func (h *Host) device(id string) *device {
	if d, ok := h.devices[id]; ok {
		return d
	}
	d := &device{id: id, last: curve.Unknown}
	d.timer = &commitTimer{host: h, id: id}
	d.engine = arbiter.New(arbiter.Config{
		Profiles:       h.profiles,
		Scheduler:      d.timer,
		Store:          h.storage.Device(id),
		LearningWindow: h.config.LearningWindow,
		Now:            h.now,
		Log:            h.log.WithField("device", id),
	})
	h.devices[id] = d
	return d
}

func (h *Host) handleIdentity(id string, identity profile.Identity) {
	d := h.device(id)
	d.engine.Initialize(identity.Manufacturer, identity.Model)
	d.decided = d.engine.State() == arbiter.Decided
	if m, ok := d.engine.Match(); ok {
		h.log.Infof("Device %s (%s %s) matched profile by %s: %s",
			id, identity.Manufacturer, identity.Model, m.MatchedBy, m.Chemistry)
	} else {
		h.log.Infof("Device %s (%s %s) has no battery profile, learning", id, identity.Manufacturer, identity.Model)
	}
	h.refresh(d)
}

func (h *Host) handleObservation(id string, kind channel.Kind, raw float64) {
	d := h.device(id)
	d.lastSeen = h.now()
	p := d.engine.ObserveChannel(kind, raw)
	h.log.Debugf("Device %s %s raw %v -> %s", id, kind, raw, p)
	if h.readings != nil {
		if err := h.readings.append(d.lastSeen, id, kind, raw, p); err != nil {
			h.log.Warnf("Failed to log battery reading: %v", err)
		}
	}
	h.refresh(d)
}

// defaultBatteryDatapoint is the usual Tuya battery percentage datapoint, used
// when the profile does not name one.
const defaultBatteryDatapoint = 15

// handleDatapoint maps a vendor datapoint onto its channel using the device
// profile. Datapoints from devices that have not identified themselves, and
// datapoints that are not battery related, are ignored.
func (h *Host) handleDatapoint(id string, dp uint8, value float64) {
	d, ok := h.devices[id]
	if !ok {
		h.log.Debugf("Device %s datapoint %d dropped, device not identified", id, dp)
		return
	}
	m, _ := d.engine.Match()
	kind, ok := datapointChannel(m.Profile, dp)
	if !ok {
		h.log.Debugf("Device %s datapoint %d is not a battery datapoint", id, dp)
		return
	}
	h.handleObservation(id, kind, value)
}

func datapointChannel(p profile.Profile, dp uint8) (channel.Kind, bool) {
	percentDP := p.Datapoint
	if percentDP == 0 {
		percentDP = defaultBatteryDatapoint
	}
	switch {
	case dp == percentDP:
		return channel.VendorDatapointPercent, true
	case p.StateDatapoint != 0 && dp == p.StateDatapoint:
		return channel.VendorDatapointTriState, true
	}
	return 0, false
}

func (h *Host) handleCommit(id string) {
	d, ok := h.devices[id]
	if !ok {
		return
	}
	d.engine.Commit()
	h.refresh(d)
}

func (h *Host) handleRemove(id string) {
	d, ok := h.devices[id]
	if !ok {
		return
	}
	d.engine.Cancel()
	delete(h.devices, id)
	h.log.Infof("Device %s removed", id)
}

func (h *Host) pollDevices() {
	if h.poller == nil {
		return
	}
	for id, d := range h.devices {
		if d.engine.ShouldSkipSecondaryPolling() {
			continue
		}
		h.poller.PollBattery(id)
	}
}

// refresh tells the listeners about a new decision or estimate.
func (h *Host) refresh(d *device) {
	e := h.estimateFor(d)
	if e.Decided && !d.decided {
		d.decided = true
		for _, l := range h.listeners {
			l.SourceDecided(e)
		}
	}
	if p := curve.Percent(e.Percent); p != d.last {
		d.last = p
		for _, l := range h.listeners {
			l.EstimateChanged(e)
		}
	}
}

func (h *Host) estimateFor(d *device) Estimate {
	learned := d.engine.Learned()
	e := Estimate{
		Device:  d.id,
		Percent: int(d.engine.BestEstimate()),
		Decided: learned.Decided,
		Time:    h.now(),
	}
	if src, ok := d.engine.BestSource(); ok {
		e.Source = src.String()
	}
	if learned.Algorithm != curve.Unset {
		e.Algorithm = learned.Algorithm.String()
	}
	return e
}

// commitTimer schedules engine commits onto the event loop.
type commitTimer struct {
	host  *Host
	id    string
	timer *time.Timer
	gen   int
}

func (t *commitTimer) ScheduleCommit(delay time.Duration) {
	t.CancelCommit()
	gen := t.gen
	t.timer = time.AfterFunc(delay, func() {
		t.host.post(func() {
			// A timer that fired after being cancelled or replaced is stale.
			if gen != t.gen || t.host.devices[t.id] == nil || t.host.devices[t.id].timer != t {
				return
			}
			t.host.handleCommit(t.id)
		})
	})
}

func (t *commitTimer) CancelCommit() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
