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

// Package arbiter decides, per device, which battery channel to trust and how
// to interpret its raw values.
//
// A device whose profile is unknown starts with every channel enabled. Each
// observation returns an instant best effort percentage. When the learning
// window ends the host calls Commit, which keeps the channels that delivered
// data, picks one preferred channel and infers the scaling of vendor
// datapoints from the values seen so far.
package arbiter

import (
	"math"
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/curve"
	"github.com/TheCacophonyProject/battery-arbiter/percent"
	"github.com/TheCacophonyProject/battery-arbiter/profile"
	"github.com/sirupsen/logrus"
)

// DefaultLearningWindow is long enough for slow sensors to report once.
const DefaultLearningWindow = 15 * time.Minute

// Thresholds used to infer how a vendor datapoint is scaled. They were found
// empirically for Tuya style devices and are not known to hold for others.
const (
	// MinInferenceSamples is the fewest observations inference will use.
	MinInferenceSamples = 2
	// MultiplyMaxRaw is the largest maximum that still means percent/2.
	MultiplyMaxRaw = 50
	// DivideMinRaw and DivideMaxRaw bound maximums that mean percent*2.
	DivideMinRaw = 100
	DivideMaxRaw = 200
)

// Tri-state datapoint values and the percentages they stand for.
var triStatePercent = map[float64]curve.Percent{
	0: 10,
	1: 50,
	2: 100,
}

// State of an engine.
type State int

const (
	Uninitialized State = iota
	Observing
	Decided
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Observing:
		return "observing"
	case Decided:
		return "decided"
	}
	return "invalid"
}

// Scheduler is the host's timer facility. ScheduleCommit asks the host to call
// Commit once after delay, replacing any commit already pending.
type Scheduler interface {
	ScheduleCommit(delay time.Duration)
	CancelCommit()
}

// Store is the host's durable storage for one device. Persist should hand the
// write off and return quickly, an error is only logged.
type Store interface {
	Persist(p LearnedParameters) error
	Restore() (*LearnedParameters, error)
}

// Config holds the collaborators of an engine. Every field is optional.
type Config struct {
	Profiles       profile.Lookuper
	Scheduler      Scheduler
	Store          Store
	LearningWindow time.Duration
	Now            func() time.Time
	Log            *logrus.Entry
}

// Engine arbitrates the battery channels of one device. It is not safe for
// concurrent use, the host must deliver observations and commits serially.
type Engine struct {
	cfg Config
	log *logrus.Entry

	state    State
	identity profile.Identity
	match    *profile.Match
	stats    [channel.Count]ChannelStatistics
	learned  LearnedParameters
}

// New creates an uninitialized engine.
func New(cfg Config) *Engine {
	if cfg.Profiles == nil {
		cfg.Profiles = profile.Default
	}
	if cfg.LearningWindow <= 0 {
		cfg.LearningWindow = DefaultLearningWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{cfg: cfg, log: cfg.Log}
}

// Initialize looks up what is known about the device and prepares the channels.
// Calling it again re-pairs the device and forgets everything learned in memory.
func (e *Engine) Initialize(manufacturer, model string) {
	e.reset()
	e.identity = profile.Identity{Manufacturer: manufacturer, Model: model}
	e.state = Observing
	for i := range e.stats {
		e.stats[i].Enabled = true
	}

	m, ok := e.cfg.Profiles.Lookup(e.identity)
	if ok {
		e.match = &m
		e.log.Infof("Battery profile found by %s (%s): %s %s", m.MatchedBy, m.Key, m.Chemistry, m.Notes)
	} else {
		e.log.Infof("No battery profile for %q %q, learning", manufacturer, model)
	}

	if ok && m.NoBattery() {
		for i := range e.stats {
			e.stats[i].Enabled = false
		}
		e.learned.Decided = true
		e.learned.DisabledChannels = e.disabledChannels()
		e.state = Decided
		e.log.Infof("Device is %s powered, battery reporting disabled", m.Chemistry)
		return
	}

	if e.restore() {
		return
	}

	if ok {
		ch := m.Channel
		e.learned.PreferredSource = &ch
		e.learned.Algorithm = m.Algorithm
		if m.HasVoltageBounds() {
			vmin, vmax := m.VoltageMin, m.VoltageMax
			e.learned.VoltageMin = &vmin
			e.learned.VoltageMax = &vmax
		}
		e.enableChannels()
	}

	e.armLearningWindow()
}

// enableChannels turns every channel back on, apart from the standard channels
// a profile says must not be polled.
func (e *Engine) enableChannels() {
	for i := range e.stats {
		e.stats[i].Enabled = true
	}
	if e.match == nil || !e.match.SkipSecondaryPolling {
		return
	}
	for _, k := range channel.All {
		if !k.IsVendor() && k != e.match.Channel {
			e.stats[k].Enabled = false
		}
	}
}

func (e *Engine) reset() {
	if e.cfg.Scheduler != nil {
		e.cfg.Scheduler.CancelCommit()
	}
	e.state = Uninitialized
	e.identity = profile.Identity{}
	e.match = nil
	e.stats = [channel.Count]ChannelStatistics{}
	e.learned = LearnedParameters{}
}

func (e *Engine) restore() bool {
	if e.cfg.Store == nil {
		return false
	}
	p, err := e.cfg.Store.Restore()
	if err != nil {
		e.log.Warnf("Could not restore learned battery parameters: %v", err)
		return false
	}
	if p == nil || !p.Decided {
		return false
	}
	if preferred, ok := p.Preferred(); ok && !preferred.Valid() {
		e.log.Warnf("Ignoring stored battery parameters with invalid channel %d", int(preferred))
		return false
	}
	e.learned = p.Clone()
	for _, k := range e.learned.DisabledChannels {
		if k.Valid() {
			e.stats[k].Enabled = false
		}
	}
	e.state = Decided
	preferred, _ := e.learned.Preferred()
	e.log.Infof("Restored battery decision: %s using %s", preferred, e.learned.Algorithm)
	return true
}

func (e *Engine) armLearningWindow() {
	if e.cfg.Scheduler == nil {
		return
	}
	e.log.Debugf("Battery learning window ends in %s", e.cfg.LearningWindow)
	e.cfg.Scheduler.ScheduleCommit(e.cfg.LearningWindow)
}

// Cancel drops the pending commit, for example when the device is removed.
func (e *Engine) Cancel() {
	if e.cfg.Scheduler != nil {
		e.cfg.Scheduler.CancelCommit()
	}
}

// ObserveChannel records a raw reading and returns the percentage it implies
// on its own. Readings on disabled channels are ignored.
func (e *Engine) ObserveChannel(kind channel.Kind, raw float64) curve.Percent {
	if !kind.Valid() {
		return curve.Unknown
	}
	if e.state == Uninitialized {
		e.log.Warn("Battery observation before initialization, treating device as unknown")
		e.Initialize("", "")
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return curve.Unknown
	}
	s := &e.stats[kind]
	if !s.Enabled {
		return curve.Unknown
	}
	s.add(Observation{Channel: kind, Raw: raw, At: e.cfg.Now()})
	return e.estimate(kind, raw)
}

func (e *Engine) estimate(kind channel.Kind, raw float64) curve.Percent {
	switch kind {
	case channel.VendorDatapointTriState:
		if p, ok := triStatePercent[raw]; ok {
			return p
		}
		return curve.Unknown
	case channel.StandardPercent:
		return curve.ApplyScalar(raw, curve.Divide2)
	case channel.StandardVoltage:
		vmin, vmax := e.voltageBounds()
		return percent.Calculate(raw/10, e.voltageAlgorithm(), vmin, vmax)
	case channel.VendorDatapointPercent:
		return percent.Calculate(raw, e.scalarAlgorithm(), 0, 0)
	}
	return curve.Unknown
}

// voltageAlgorithm falls back to the coin cell curve, the most common battery
// among voltage reporting devices.
func (e *Engine) voltageAlgorithm() curve.Algorithm {
	if e.learned.Algorithm.IsVoltage() {
		return e.learned.Algorithm
	}
	return curve.CoinCell
}

func (e *Engine) scalarAlgorithm() curve.Algorithm {
	if e.learned.Algorithm.IsScalar() {
		return e.learned.Algorithm
	}
	return curve.Direct
}

func (e *Engine) voltageBounds() (float64, float64) {
	vmin, vmax := percent.DefaultVoltageMin, percent.DefaultVoltageMax
	if e.learned.VoltageMin != nil && e.learned.VoltageMax != nil {
		vmin, vmax = *e.learned.VoltageMin, *e.learned.VoltageMax
	}
	return vmin, vmax
}

// Commit ends the learning window. It does nothing once a decision exists.
// If nothing was received the window is armed again rather than concluding
// that the device has no battery.
func (e *Engine) Commit() {
	if e.state == Uninitialized {
		e.Initialize("", "")
	}
	if e.learned.Decided {
		return
	}

	received := 0
	for _, k := range channel.All {
		if e.stats[k].HasValue() {
			received++
		}
	}
	if received == 0 {
		e.log.Info("No battery data received during learning window, listening again")
		e.enableChannels()
		e.armLearningWindow()
		return
	}

	for _, k := range channel.All {
		if !e.stats[k].HasValue() {
			e.stats[k].Enabled = false
		}
	}

	preferred := e.selectPreferred()
	e.learned.PreferredSource = &preferred
	switch preferred {
	case channel.VendorDatapointPercent:
		e.learned.Algorithm = e.inferAlgorithm(e.stats[preferred])
	case channel.StandardVoltage:
		e.learned.Algorithm = e.voltageAlgorithm()
		if e.learned.VoltageMin == nil || e.learned.VoltageMax == nil {
			vmin, vmax := e.voltageBounds()
			e.learned.VoltageMin = &vmin
			e.learned.VoltageMax = &vmax
		}
	}
	e.learned.Decided = true
	e.learned.DisabledChannels = e.disabledChannels()
	e.state = Decided

	e.log.Infof("Battery source decided: %s using %s (%d reports)",
		preferred, e.learned.Algorithm, e.stats[preferred].Received)
	e.persist()
}

// selectPreferred prefers vendor channels over standard ones, then the channel
// with more reports, then declaration order.
func (e *Engine) selectPreferred() channel.Kind {
	best := channel.Kind(-1)
	for _, k := range channel.All {
		s := e.stats[k]
		if !s.HasValue() {
			continue
		}
		if best < 0 {
			best = k
			continue
		}
		if k.IsVendor() != best.IsVendor() {
			if k.IsVendor() {
				best = k
			}
			continue
		}
		if s.Received > e.stats[best].Received {
			best = k
		}
	}
	return best
}

// inferAlgorithm guesses the scaling of a vendor percentage from its range.
func (e *Engine) inferAlgorithm(s ChannelStatistics) curve.Algorithm {
	if len(s.History()) < MinInferenceSamples {
		return e.scalarAlgorithm()
	}
	min, max := s.rawRange()
	var alg curve.Algorithm
	switch {
	case max <= MultiplyMaxRaw:
		alg = curve.Multiply2
	case max > DivideMinRaw && max <= DivideMaxRaw:
		alg = curve.Divide2
	default:
		alg = curve.Direct
	}
	e.log.Debugf("Vendor battery values range %.0f-%.0f, inferred %s", min, max, alg)
	return alg
}

func (e *Engine) persist() {
	if e.cfg.Store == nil {
		return
	}
	if err := e.cfg.Store.Persist(e.learned.Clone()); err != nil {
		e.log.Warnf("Failed to persist learned battery parameters: %v", err)
	}
}

func (e *Engine) disabledChannels() []channel.Kind {
	var out []channel.Kind
	for _, k := range channel.All {
		if !e.stats[k].Enabled {
			out = append(out, k)
		}
	}
	return out
}

// BestEstimate returns the percentage from the preferred channel once decided,
// otherwise from the first enabled channel with a value.
func (e *Engine) BestEstimate() curve.Percent {
	if e.state == Uninitialized {
		return curve.Unknown
	}
	if preferred, ok := e.learned.Preferred(); ok && e.learned.Decided {
		if s := e.stats[preferred]; s.HasValue() {
			return e.estimate(preferred, s.LastValue)
		}
	}
	for _, k := range channel.All {
		if s := e.stats[k]; s.Enabled && s.HasValue() {
			return e.estimate(k, s.LastValue)
		}
	}
	return curve.Unknown
}

// BestSource returns the channel BestEstimate reads from.
func (e *Engine) BestSource() (channel.Kind, bool) {
	if e.state == Uninitialized {
		return 0, false
	}
	if preferred, ok := e.learned.Preferred(); ok && e.learned.Decided && e.stats[preferred].HasValue() {
		return preferred, true
	}
	for _, k := range channel.All {
		if s := e.stats[k]; s.Enabled && s.HasValue() {
			return k, true
		}
	}
	return 0, false
}

// ShouldSkipSecondaryPolling reports whether the host should avoid actively
// reading the standard battery attributes.
func (e *Engine) ShouldSkipSecondaryPolling() bool {
	if e.state == Uninitialized {
		return false
	}
	if e.match != nil && e.match.SkipSecondaryPolling {
		return true
	}
	preferred, hasPreferred := e.learned.Preferred()
	for _, k := range channel.All {
		if k.IsVendor() || (hasPreferred && k == preferred) {
			continue
		}
		if e.stats[k].Enabled {
			return false
		}
	}
	return true
}

// State returns the engine state.
func (e *Engine) State() State {
	return e.state
}

// Identity returns the identity given to Initialize.
func (e *Engine) Identity() profile.Identity {
	return e.identity
}

// Match returns the profile the device matched, if any.
func (e *Engine) Match() (profile.Match, bool) {
	if e.match == nil {
		return profile.Match{}, false
	}
	return *e.match, true
}

// Learned returns a copy of the current parameters.
func (e *Engine) Learned() LearnedParameters {
	return e.learned.Clone()
}

// Statistics returns a copy of the statistics for one channel.
func (e *Engine) Statistics(kind channel.Kind) ChannelStatistics {
	if !kind.Valid() {
		return ChannelStatistics{}
	}
	return e.stats[kind]
}
