package effects

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kblight/internal/core"
	"kblight/internal/keyboard"
)

const waitFor = 2 * time.Second

func newTestManager(t *testing.T, kb *recorder, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{
		WithPollInterval(5 * time.Millisecond),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	}, opts...)
	m, err := New(kb.open, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)
	return m
}

// blockingDriver runs until cancelled and reports when it starts and stops.
func blockingDriver(started, finished chan<- struct{}) Driver {
	return DriverFunc(func(dev *Device, tok *Token, p core.Profile) {
		started <- struct{}{}
		for !tok.Sleep(time.Hour) {
		}
		finished <- struct{}{}
	})
}

func TestNewReturnsOpenError(t *testing.T) {
	_, err := New(func(keyboard.StopFlag) (Keyboard, error) {
		return nil, keyboard.ErrDeviceNotFound
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, keyboard.ErrDeviceNotFound))
}

func TestStaticProfileCallSequence(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	red := core.Uniform(255, 0, 0)
	require.NoError(t, m.SetProfile(core.Profile{
		Effect:     core.Effect{Kind: core.Static},
		RGB:        red,
		Speed:      2,
		Brightness: 1,
	}))

	want := []string{"effect:static", "speed:2", "brightness:1", colorsCall(red), "effect:static"}
	require.Eventually(t, func() bool { return len(kb.Calls()) >= len(want) }, waitFor, time.Millisecond)
	assert.Equal(t, want, kb.Calls())
}

func TestStaticProfilePassesValuesThrough(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	rgb := core.RGBArray{255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 255, 255}
	require.NoError(t, m.SetProfile(core.Profile{
		Effect:     core.Effect{Kind: core.Static},
		RGB:        rgb,
		Speed:      1,
		Brightness: 100,
	}))

	want := []string{"effect:static", "speed:1", "brightness:100", colorsCall(rgb), "effect:static"}
	require.Eventually(t, func() bool { return len(kb.Calls()) >= len(want) }, waitFor, time.Millisecond)
	assert.Equal(t, want, kb.Calls())
}

func TestConcurrentSubmitsNeverStrandACommand(t *testing.T) {
	kb := &recorder{}
	looping := DriverFunc(func(dev *Device, tok *Token, p core.Profile) {
		for !tok.Sleep(time.Hour) {
		}
	})
	m := newTestManager(t, kb, WithDriver(core.Disco, looping))

	disco := core.Profile{Name: "disco", Effect: core.Effect{Kind: core.Disco}, Speed: 1, Brightness: 1}
	static := core.Profile{Name: "static", Effect: core.Effect{Kind: core.Static}, RGB: core.Uniform(0, 9, 0), Speed: 1, Brightness: 1}

	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.SetProfile(disco))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, m.SetProfile(static))
		}()
		wg.Wait()

		require.Eventually(t, func() bool { return m.inbox.len() == 0 }, waitFor, time.Millisecond,
			"round %d: a command is stuck behind a looping driver", i)
	}
}

func TestWaveProfileDirection(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	require.NoError(t, m.SetProfile(core.Profile{Effect: core.WaveEffect(core.Right), Speed: 3, Brightness: 2}))
	want := []string{"effect:static", "speed:3", "brightness:2", "effect:right_wave"}
	require.Eventually(t, func() bool { return len(kb.Calls()) >= len(want) }, waitFor, time.Millisecond)
	assert.Equal(t, want, kb.Calls())
}

func TestSmoothWaveUsesFixedPalette(t *testing.T) {
	kb := &recorder{}
	got := make(chan core.RGBArray, 1)
	m := newTestManager(t, kb, WithDriver(core.Swipe, DriverFunc(func(dev *Device, tok *Token, p core.Profile) {
		got <- p.RGB
	})))

	require.NoError(t, m.SetProfile(core.Profile{
		Effect:     core.Effect{Kind: core.SmoothWave},
		RGB:        core.Uniform(1, 2, 3),
		Speed:      1,
		Brightness: 1,
	}))

	select {
	case rgb := <-got:
		assert.Equal(t, core.SmoothWavePalette, rgb)
	case <-time.After(waitFor):
		t.Fatal("swipe driver never ran")
	}
	assert.Equal(t, core.Uniform(1, 2, 3), m.LastProfile().RGB)
}

func TestLastProfileWins(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	first := core.Profile{Name: "a", Effect: core.Effect{Kind: core.Static}, RGB: core.Uniform(10, 0, 0), Speed: 1, Brightness: 1}
	second := core.Profile{Name: "b", Effect: core.Effect{Kind: core.Static}, RGB: core.Uniform(0, 20, 0), Speed: 1, Brightness: 1}
	require.NoError(t, m.SetProfile(first))
	require.NoError(t, m.SetProfile(second))

	require.Eventually(t, func() bool {
		colors := kb.Colors()
		return len(colors) > 0 && colors[len(colors)-1] == second.RGB
	}, waitFor, time.Millisecond)
	assert.Equal(t, "b", m.LastProfile().Name)
}

func TestRefreshWithoutProfileAppliesDefault(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	require.NoError(t, m.Refresh())
	white := core.DefaultProfile().RGB
	require.Eventually(t, func() bool { return len(kb.Calls()) >= 5 }, waitFor, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []core.RGBArray{white}, kb.Colors())
}

func TestRefreshReplaysLastProfileAfterCustom(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	blue := core.Uniform(0, 0, 255)
	require.NoError(t, m.SetProfile(core.Profile{Effect: core.Effect{Kind: core.Static}, RGB: blue, Speed: 1, Brightness: 1}))
	require.NoError(t, m.CustomEffect(core.CustomEffect{Name: "flash", Steps: []core.Step{
		{Type: core.StepSet, RGB: core.Uniform(255, 255, 255), Speed: 1, Brightness: 1},
	}}))
	require.NoError(t, m.Refresh())

	require.Eventually(t, func() bool {
		colors := kb.Colors()
		return len(colors) == 3 && colors[2] == blue
	}, waitFor, time.Millisecond)
}

func TestStopCancelsWithinOneSleep(t *testing.T) {
	kb := &recorder{}
	started, finished := make(chan struct{}, 1), make(chan struct{}, 1)
	m := newTestManager(t, kb, WithDriver(core.Disco, blockingDriver(started, finished)))

	require.NoError(t, m.SetProfile(core.Profile{Effect: core.Effect{Kind: core.Disco}, Speed: 1, Brightness: 1}))
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("driver never started")
	}

	m.Stop()
	select {
	case <-finished:
	case <-time.After(waitFor):
		t.Fatal("driver ignored stop")
	}
}

func TestNewCommandSupersedesRunningDriver(t *testing.T) {
	kb := &recorder{}
	started, finished := make(chan struct{}, 1), make(chan struct{}, 1)
	m := newTestManager(t, kb, WithDriver(core.Ripple, blockingDriver(started, finished)))

	require.NoError(t, m.SetProfile(core.Profile{Effect: core.Effect{Kind: core.Ripple}, Speed: 1, Brightness: 1}))
	<-started

	green := core.Uniform(0, 255, 0)
	require.NoError(t, m.SetProfile(core.Profile{Effect: core.Effect{Kind: core.Static}, RGB: green, Speed: 1, Brightness: 1}))
	<-finished

	require.Eventually(t, func() bool {
		colors := kb.Colors()
		return len(colors) > 0 && colors[len(colors)-1] == green
	}, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return !m.Signals().WorkerStopped() }, waitFor, time.Millisecond)
}

func TestCustomEffectRunsStepsOnceInOrder(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	a, b, c := core.Uniform(1, 0, 0), core.Uniform(0, 2, 0), core.Uniform(0, 0, 3)
	require.NoError(t, m.CustomEffect(core.CustomEffect{
		Name: "three",
		Steps: []core.Step{
			{Type: core.StepSet, RGB: a, Speed: 1, Brightness: 1},
			{Type: core.StepTransition, RGB: b, Speed: 2, Brightness: 2, Steps: 10, DelayBetweenSteps: time.Millisecond},
			{Type: core.StepSet, RGB: c, Speed: 3, Brightness: 1, Sleep: time.Millisecond},
		},
	}))

	require.Eventually(t, func() bool { return len(kb.Colors()) >= 3 }, waitFor, time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, []core.RGBArray{a, b, c}, kb.Colors())
	assert.Equal(t, []string{
		"speed:1", "brightness:1", colorsCall(a),
		"speed:2", "brightness:2", "transition:" + colorsCall(b)[len("colors:"):] + "/10/1ms",
		"speed:3", "brightness:1", colorsCall(c),
	}, kb.Calls())
}

func TestEmptyCustomEffectIsNoop(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	require.NoError(t, m.CustomEffect(core.CustomEffect{Name: "empty", ShouldLoop: true}))
	require.NoError(t, m.Refresh())

	require.Eventually(t, func() bool { return len(kb.Colors()) == 1 }, waitFor, time.Millisecond)
}

func TestLoopingCustomEffectStops(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb)

	require.NoError(t, m.CustomEffect(core.CustomEffect{
		Name:       "blink",
		ShouldLoop: true,
		Steps: []core.Step{
			{Type: core.StepSet, RGB: core.Uniform(255, 0, 0), Speed: 1, Brightness: 1, Sleep: 2 * time.Millisecond},
			{Type: core.StepSet, RGB: core.Uniform(0, 0, 0), Speed: 1, Brightness: 1, Sleep: 2 * time.Millisecond},
		},
	}))
	require.Eventually(t, func() bool { return len(kb.Colors()) > 4 }, waitFor, time.Millisecond)

	m.Stop()
	time.Sleep(20 * time.Millisecond)
	n := len(kb.Calls())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(kb.Calls()))
}

func TestPanickingDriverDoesNotKillWorker(t *testing.T) {
	kb := &recorder{}
	m := newTestManager(t, kb, WithDriver(core.Lightning, DriverFunc(func(*Device, *Token, core.Profile) {
		panic("boom")
	})))

	require.NoError(t, m.SetProfile(core.Profile{Effect: core.Effect{Kind: core.Lightning}, Speed: 1, Brightness: 1}))
	purple := core.Uniform(128, 0, 128)
	require.NoError(t, m.SetProfile(core.Profile{Effect: core.Effect{Kind: core.Static}, RGB: purple, Speed: 1, Brightness: 1}))

	require.Eventually(t, func() bool {
		colors := kb.Colors()
		return len(colors) > 0 && colors[len(colors)-1] == purple
	}, waitFor, time.Millisecond)
}

func TestDeviceErrorsSkipFrames(t *testing.T) {
	kb := &recorder{fail: errors.New("unplugged")}
	m := newTestManager(t, kb)

	require.NoError(t, m.SetProfile(core.DefaultProfile()))
	require.NoError(t, m.Refresh())
	require.Eventually(t, func() bool { return len(kb.Calls()) >= 10 }, waitFor, time.Millisecond)
}

func TestShutdownInterruptsDriver(t *testing.T) {
	kb := &recorder{}
	started, finished := make(chan struct{}, 1), make(chan struct{}, 1)
	m, err := New(kb.open, WithPollInterval(5*time.Millisecond), WithDriver(core.Christmas, blockingDriver(started, finished)))
	require.NoError(t, err)

	require.NoError(t, m.SetProfile(core.Profile{Effect: core.Effect{Kind: core.Christmas}, Speed: 1, Brightness: 1}))
	<-started

	shut := make(chan struct{})
	go func() {
		m.Shutdown()
		close(shut)
	}()
	select {
	case <-shut:
	case <-time.After(waitFor):
		t.Fatal("shutdown hung")
	}

	<-m.Done()
	assert.ErrorIs(t, m.Refresh(), ErrWorkerStopped)
	m.Shutdown()
}

func TestEventsPublished(t *testing.T) {
	kb := &recorder{}
	bus := core.NewEventBus()
	sub := bus.Subscribe(core.EffectChangedEvent)
	m := newTestManager(t, kb, WithEventBus(bus))

	require.NoError(t, m.CustomEffect(core.CustomEffect{Name: "once", Steps: []core.Step{
		{Type: core.StepSet, RGB: core.Uniform(1, 2, 3), Speed: 1, Brightness: 1},
	}}))

	var changes []core.EffectChange
	for len(changes) < 2 {
		select {
		case ev := <-sub:
			changes = append(changes, ev.Payload.(core.EffectChange))
		case <-time.After(waitFor):
			t.Fatalf("got %d events", len(changes))
		}
	}
	assert.Equal(t, core.EffectChange{Running: "custom", Custom: "once"}, changes[0])
	assert.Equal(t, core.EffectChange{}, changes[1])
}
