package arbiter

import (
	"errors"
	"testing"
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/curve"
	"github.com/TheCacophonyProject/battery-arbiter/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	scheduled []time.Duration
	cancels   int
}

func (f *fakeScheduler) ScheduleCommit(delay time.Duration) {
	f.scheduled = append(f.scheduled, delay)
}

func (f *fakeScheduler) CancelCommit() {
	f.cancels++
}

type fakeStore struct {
	persisted  []LearnedParameters
	stored     *LearnedParameters
	persistErr error
	restoreErr error
}

func (f *fakeStore) Persist(p LearnedParameters) error {
	f.persisted = append(f.persisted, p)
	if f.persistErr != nil {
		return f.persistErr
	}
	f.stored = &p
	return nil
}

func (f *fakeStore) Restore() (*LearnedParameters, error) {
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return f.stored, nil
}

var testProfiles = profile.New(
	map[string]profile.Profile{
		"VendorX": {Chemistry: profile.ChemistryMains, Notes: "MainsPlugModel"},
		"VendorSOS": {
			Chemistry:            profile.ChemistryCR2032,
			Channel:              channel.VendorDatapointPercent,
			Algorithm:            curve.Direct,
			VoltageMin:           2.5,
			VoltageMax:           3.0,
			SkipSecondaryPolling: true,
			Datapoint:            101,
		},
		"VendorClimate": {
			Chemistry: profile.ChemistryCR2032,
			Channel:   channel.VendorDatapointPercent,
			Algorithm: curve.Multiply2,
			Datapoint: 4,
		},
		"VendorPIR": {
			Chemistry:  profile.ChemistryAAAAlkaline,
			Channel:    channel.StandardVoltage,
			Algorithm:  curve.Alkaline,
			VoltageMin: 2.0,
			VoltageMax: 3.0,
		},
	},
	[]profile.PrefixProfile{
		{Prefix: "TS0201", Profile: profile.Profile{
			Chemistry: profile.ChemistryCR2032,
			Channel:   channel.StandardVoltage,
			Algorithm: curve.CoinCell,
		}},
	},
)

type testEngine struct {
	*Engine
	scheduler *fakeScheduler
	store     *fakeStore
	now       time.Time
}

func newTestEngine() *testEngine {
	te := &testEngine{
		scheduler: &fakeScheduler{},
		store:     &fakeStore{},
		now:       time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
	te.Engine = New(Config{
		Profiles:  testProfiles,
		Scheduler: te.scheduler,
		Store:     te.store,
		Now: func() time.Time {
			te.now = te.now.Add(time.Second)
			return te.now
		},
	})
	return te
}

func TestUnknownDeviceStartsObserving(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")

	assert.Equal(t, Observing, e.State())
	assert.Equal(t, []time.Duration{DefaultLearningWindow}, e.scheduler.scheduled)
	for _, k := range channel.All {
		assert.True(t, e.Statistics(k).Enabled, k.String())
	}
	_, hasPreferred := e.Learned().Preferred()
	assert.False(t, hasPreferred)
	assert.Equal(t, curve.Unknown, e.BestEstimate())
	assert.False(t, e.ShouldSkipSecondaryPolling())
}

func TestKnownProfileNoBatteryFastPath(t *testing.T) {
	e := newTestEngine()
	e.Initialize("VendorX", "MainsPlugModel")

	assert.Equal(t, Decided, e.State())
	assert.True(t, e.Learned().Decided)
	assert.Empty(t, e.scheduler.scheduled, "no learning window for mains devices")
	assert.Equal(t, curve.Unknown, e.BestEstimate())
	for _, k := range channel.All {
		assert.False(t, e.Statistics(k).Enabled)
		assert.Equal(t, curve.Unknown, e.ObserveChannel(k, 50))
	}
	assert.Equal(t, curve.Unknown, e.BestEstimate())
	assert.True(t, e.ShouldSkipSecondaryPolling())
}

func TestMainsPrefixFastPath(t *testing.T) {
	e := New(Config{Scheduler: &fakeScheduler{}})
	e.Initialize("_TZ9999_plug", "TS011F")
	assert.Equal(t, Decided, e.State())
	assert.Equal(t, curve.Unknown, e.BestEstimate())
}

func TestProfilePreseedsParameters(t *testing.T) {
	e := newTestEngine()
	e.Initialize("VendorPIR", "")

	learned := e.Learned()
	preferred, ok := learned.Preferred()
	require.True(t, ok)
	assert.Equal(t, channel.StandardVoltage, preferred)
	assert.Equal(t, curve.Alkaline, learned.Algorithm)
	require.NotNil(t, learned.VoltageMin)
	assert.Equal(t, 2.0, *learned.VoltageMin)
	assert.False(t, learned.Decided)
	assert.Equal(t, Observing, e.State())
	assert.Len(t, e.scheduler.scheduled, 1)

	// 2.9V on the alkaline curve.
	assert.Equal(t, curve.Percent(70), e.ObserveChannel(channel.StandardVoltage, 29))
}

func TestSkipPollingProfile(t *testing.T) {
	e := newTestEngine()
	e.Initialize("VendorSOS", "TS0215A")

	assert.True(t, e.ShouldSkipSecondaryPolling())
	assert.False(t, e.Statistics(channel.StandardPercent).Enabled)
	assert.False(t, e.Statistics(channel.StandardVoltage).Enabled)
	assert.True(t, e.Statistics(channel.VendorDatapointPercent).Enabled)
	assert.True(t, e.Statistics(channel.VendorDatapointTriState).Enabled)

	assert.Equal(t, curve.Unknown, e.ObserveChannel(channel.StandardVoltage, 29))
	assert.Equal(t, 0, e.Statistics(channel.StandardVoltage).Received)
}

func TestTriStateMapping(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")

	assert.Equal(t, curve.Percent(10), e.ObserveChannel(channel.VendorDatapointTriState, 0))
	assert.Equal(t, curve.Percent(50), e.ObserveChannel(channel.VendorDatapointTriState, 1))
	assert.Equal(t, curve.Percent(100), e.ObserveChannel(channel.VendorDatapointTriState, 2))
	assert.Equal(t, curve.Unknown, e.ObserveChannel(channel.VendorDatapointTriState, 9))
	assert.Equal(t, curve.Unknown, e.ObserveChannel(channel.VendorDatapointTriState, 1.5))
}

func TestStandardChannelDecoding(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")

	assert.Equal(t, curve.Percent(87), e.ObserveChannel(channel.StandardPercent, 174))
	assert.Equal(t, curve.Percent(100), e.ObserveChannel(channel.StandardPercent, 255))
	assert.Equal(t, curve.Percent(90), e.ObserveChannel(channel.StandardVoltage, 29))
	assert.Equal(t, curve.Percent(100), e.ObserveChannel(channel.StandardVoltage, 33))
	assert.Equal(t, curve.Percent(0), e.ObserveChannel(channel.StandardVoltage, 18))
}

func TestEndToEndVoltageDevice(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")

	instant := e.ObserveChannel(channel.StandardVoltage, 29)
	assert.InDelta(t, 90, int(instant), 2)

	e.Commit()

	learned := e.Learned()
	assert.True(t, learned.Decided)
	preferred, ok := learned.Preferred()
	require.True(t, ok)
	assert.Equal(t, channel.StandardVoltage, preferred)
	assert.Equal(t, Decided, e.State())
	assert.Equal(t, instant, e.BestEstimate())
	source, ok := e.BestSource()
	require.True(t, ok)
	assert.Equal(t, channel.StandardVoltage, source)

	// Silent channels are dropped for good.
	assert.False(t, e.Statistics(channel.VendorDatapointPercent).Enabled)
	assert.False(t, e.Statistics(channel.StandardPercent).Enabled)
	assert.ElementsMatch(t,
		[]channel.Kind{channel.VendorDatapointPercent, channel.VendorDatapointTriState, channel.StandardPercent},
		learned.DisabledChannels)
	assert.True(t, e.ShouldSkipSecondaryPolling())

	require.Len(t, e.store.persisted, 1)
	assert.Equal(t, learned, e.store.persisted[0])
}

func TestNoDataDoesNotCommit(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")

	e.Commit()

	assert.False(t, e.Learned().Decided)
	assert.Equal(t, Observing, e.State())
	for _, k := range channel.All {
		assert.True(t, e.Statistics(k).Enabled, k.String())
	}
	assert.Len(t, e.scheduler.scheduled, 2, "learning window is armed again")
	assert.Empty(t, e.store.persisted)

	// A later report still gets a decision.
	e.ObserveChannel(channel.StandardPercent, 120)
	e.Commit()
	assert.True(t, e.Learned().Decided)
	assert.Equal(t, curve.Percent(60), e.BestEstimate())
}

func TestEmptyWindowKeepsPollingSkip(t *testing.T) {
	e := newTestEngine()
	e.Initialize("VendorSOS", "TS0215A")

	e.Commit()

	assert.Equal(t, Observing, e.State())
	assert.True(t, e.Statistics(channel.VendorDatapointPercent).Enabled)
	assert.True(t, e.Statistics(channel.VendorDatapointTriState).Enabled)
	assert.False(t, e.Statistics(channel.StandardPercent).Enabled)
	assert.False(t, e.Statistics(channel.StandardVoltage).Enabled)
	assert.True(t, e.ShouldSkipSecondaryPolling())
	assert.Len(t, e.scheduler.scheduled, 2)

	e.ObserveChannel(channel.VendorDatapointPercent, 64)
	e.Commit()
	assert.True(t, e.Learned().Decided)
	assert.Equal(t, curve.Percent(64), e.BestEstimate())
}

func TestCommitIsIdempotent(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")
	e.ObserveChannel(channel.VendorDatapointPercent, 150)
	e.ObserveChannel(channel.VendorDatapointPercent, 160)
	e.ObserveChannel(channel.StandardVoltage, 28)

	e.Commit()
	first := e.Learned()
	e.Commit()
	assert.Equal(t, first, e.Learned())
	assert.Len(t, e.store.persisted, 1)

	// Data arriving after the decision does not reopen it.
	e.ObserveChannel(channel.VendorDatapointPercent, 20)
	e.ObserveChannel(channel.VendorDatapointPercent, 22)
	e.Commit()
	assert.Equal(t, first, e.Learned())
}

func TestScaleDisambiguation(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected curve.Algorithm
		estimate curve.Percent
	}{
		{"half scale", []float64{18, 22, 25}, curve.Multiply2, 50},
		{"double scale", []float64{150, 160, 180}, curve.Divide2, 90},
		{"direct", []float64{60, 70, 80}, curve.Direct, 80},
		{"boundary 50", []float64{40, 50}, curve.Multiply2, 100},
		{"boundary 100 is direct", []float64{90, 100}, curve.Direct, 100},
		{"above 200 is direct", []float64{190, 210}, curve.Direct, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine()
			e.Initialize("Acme", "Widget")
			for _, v := range tc.values {
				e.ObserveChannel(channel.VendorDatapointPercent, v)
			}
			e.Commit()

			learned := e.Learned()
			preferred, ok := learned.Preferred()
			require.True(t, ok)
			assert.Equal(t, channel.VendorDatapointPercent, preferred)
			assert.Equal(t, tc.expected, learned.Algorithm)
			assert.Equal(t, tc.estimate, e.BestEstimate())
		})
	}
}

func TestSingleSampleKeepsPreseededAlgorithm(t *testing.T) {
	e := newTestEngine()
	e.Initialize("VendorClimate", "TS0601")
	assert.Equal(t, curve.Percent(44), e.ObserveChannel(channel.VendorDatapointPercent, 22))

	e.Commit()
	assert.Equal(t, curve.Multiply2, e.Learned().Algorithm)

	e2 := newTestEngine()
	e2.Initialize("Acme", "Widget")
	e2.ObserveChannel(channel.VendorDatapointPercent, 22)
	e2.Commit()
	assert.Equal(t, curve.Direct, e2.Learned().Algorithm)
}

func TestVendorBeatsStandard(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")
	for i := 0; i < 8; i++ {
		e.ObserveChannel(channel.StandardVoltage, 29)
		e.ObserveChannel(channel.StandardPercent, 180)
	}
	e.ObserveChannel(channel.VendorDatapointTriState, 2)

	e.Commit()

	preferred, ok := e.Learned().Preferred()
	require.True(t, ok)
	assert.Equal(t, channel.VendorDatapointTriState, preferred)
	assert.Equal(t, curve.Percent(100), e.BestEstimate())
	assert.False(t, e.ShouldSkipSecondaryPolling(), "standard channels kept reporting")
}

func TestVendorTieBreaks(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")
	e.ObserveChannel(channel.VendorDatapointPercent, 80)
	e.ObserveChannel(channel.VendorDatapointTriState, 1)
	e.ObserveChannel(channel.VendorDatapointTriState, 1)
	e.Commit()
	preferred, _ := e.Learned().Preferred()
	assert.Equal(t, channel.VendorDatapointTriState, preferred, "more reports wins")

	e = newTestEngine()
	e.Initialize("Acme", "Widget")
	e.ObserveChannel(channel.VendorDatapointTriState, 1)
	e.ObserveChannel(channel.VendorDatapointPercent, 80)
	e.Commit()
	preferred, _ = e.Learned().Preferred()
	assert.Equal(t, channel.VendorDatapointPercent, preferred, "declaration order breaks a tie")
}

func TestStandardOnlyTieBreaks(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")
	e.ObserveChannel(channel.StandardVoltage, 29)
	e.ObserveChannel(channel.StandardPercent, 180)
	e.Commit()
	preferred, _ := e.Learned().Preferred()
	assert.Equal(t, channel.StandardPercent, preferred)
}

func TestHistoryIsCapped(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")
	for i := 1; i <= 25; i++ {
		e.ObserveChannel(channel.VendorDatapointPercent, float64(i))
	}

	s := e.Statistics(channel.VendorDatapointPercent)
	assert.Equal(t, 25, s.Received)
	assert.Equal(t, 25.0, s.LastValue)
	history := s.History()
	require.Len(t, history, HistorySize)
	for i, o := range history {
		assert.Equal(t, float64(16+i), o.Raw)
		if i > 0 {
			assert.True(t, o.At.After(history[i-1].At))
		}
	}
}

func TestObserveBeforeInitialize(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, curve.Unknown, e.BestEstimate())
	assert.False(t, e.ShouldSkipSecondaryPolling())

	assert.NotPanics(t, func() {
		assert.Equal(t, curve.Percent(60), e.ObserveChannel(channel.VendorDatapointPercent, 60))
	})
	assert.Equal(t, Observing, e.State())
	assert.Equal(t, profile.Identity{}, e.Identity())
	assert.Equal(t, curve.Percent(60), e.BestEstimate())
}

func TestCommitBeforeInitialize(t *testing.T) {
	e := newTestEngine()
	assert.NotPanics(t, e.Commit)
	assert.False(t, e.Learned().Decided)
}

func TestBadInputIsAbsorbed(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")

	assert.Equal(t, curve.Unknown, e.ObserveChannel(channel.Kind(42), 10))
	assert.Equal(t, curve.Unknown, e.ObserveChannel(channel.StandardVoltage, -3))
	assert.Equal(t, curve.Unknown, e.ObserveChannel(channel.VendorDatapointPercent, 0))
	assert.Equal(t, ChannelStatistics{}, e.Statistics(channel.Kind(-1)))
}

func TestRestoreSkipsLearning(t *testing.T) {
	preferred := channel.VendorDatapointPercent
	stored := &LearnedParameters{
		PreferredSource:  &preferred,
		Algorithm:        curve.Divide2,
		Decided:          true,
		DisabledChannels: []channel.Kind{channel.StandardPercent, channel.StandardVoltage},
	}

	e := newTestEngine()
	e.store.stored = stored
	e.Initialize("Acme", "Widget")

	assert.Equal(t, Decided, e.State())
	assert.Empty(t, e.scheduler.scheduled)
	assert.True(t, e.ShouldSkipSecondaryPolling())
	assert.Equal(t, curve.Percent(80), e.ObserveChannel(channel.VendorDatapointPercent, 160))
	assert.Equal(t, curve.Percent(80), e.BestEstimate())

	e.Commit()
	assert.Empty(t, e.store.persisted, "a restored decision is not written again")
}

func TestRestoreFailureFallsBackToLearning(t *testing.T) {
	e := newTestEngine()
	e.store.restoreErr = errors.New("disk on fire")
	e.Initialize("Acme", "Widget")

	assert.Equal(t, Observing, e.State())
	assert.Len(t, e.scheduler.scheduled, 1)
}

func TestUndecidedStoredParametersAreIgnored(t *testing.T) {
	e := newTestEngine()
	e.store.stored = &LearnedParameters{Algorithm: curve.Multiply2}
	e.Initialize("Acme", "Widget")

	assert.Equal(t, Observing, e.State())
	assert.Equal(t, curve.Unset, e.Learned().Algorithm)
}

func TestPersistFailureKeepsDecision(t *testing.T) {
	e := newTestEngine()
	e.store.persistErr = errors.New("read-only file system")
	e.Initialize("Acme", "Widget")
	e.ObserveChannel(channel.StandardVoltage, 27)

	assert.NotPanics(t, e.Commit)
	assert.True(t, e.Learned().Decided)
	assert.Equal(t, curve.Percent(50), e.BestEstimate())
}

func TestCancelLeavesStateAlone(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")
	e.ObserveChannel(channel.StandardVoltage, 29)
	before := e.Learned()
	cancels := e.scheduler.cancels

	e.Cancel()

	assert.Equal(t, cancels+1, e.scheduler.cancels)
	assert.Equal(t, before, e.Learned())
	assert.Equal(t, Observing, e.State())
	assert.Equal(t, 1, e.Statistics(channel.StandardVoltage).Received)
}

func TestReinitializeResets(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")
	e.ObserveChannel(channel.StandardVoltage, 29)
	e.Commit()
	require.True(t, e.Learned().Decided)

	e.store.stored = nil
	e.Initialize("Acme", "Widget2")

	assert.Equal(t, Observing, e.State())
	assert.False(t, e.Learned().Decided)
	assert.Equal(t, 0, e.Statistics(channel.StandardVoltage).Received)
	assert.Equal(t, curve.Unknown, e.BestEstimate())
}

func TestUndecidedEstimateUsesFirstChannelWithData(t *testing.T) {
	e := newTestEngine()
	e.Initialize("Acme", "Widget")
	e.ObserveChannel(channel.StandardVoltage, 29)
	e.ObserveChannel(channel.StandardPercent, 100)

	assert.Equal(t, curve.Percent(50), e.BestEstimate())
	source, ok := e.BestSource()
	require.True(t, ok)
	assert.Equal(t, channel.StandardPercent, source)
}

func TestModelPrefixProfile(t *testing.T) {
	e := newTestEngine()
	e.Initialize("_TZ3000_other", "ts0201")

	m, ok := e.Match()
	require.True(t, ok)
	assert.Equal(t, profile.MatchedByModelPrefix, m.MatchedBy)

	e.ObserveChannel(channel.StandardVoltage, 26)
	e.Commit()

	learned := e.Learned()
	assert.Equal(t, curve.CoinCell, learned.Algorithm)
	require.NotNil(t, learned.VoltageMin)
	assert.Equal(t, 2.5, *learned.VoltageMin)
	assert.Equal(t, curve.Percent(30), e.BestEstimate())
}
