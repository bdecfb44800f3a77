package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyoverlay/internal/bars"
	"keyoverlay/internal/config"
	"keyoverlay/internal/input"
	"keyoverlay/internal/logging"
	"keyoverlay/internal/metrics"
	"keyoverlay/internal/monitor"
	"keyoverlay/internal/notify"
)

const epsilon = 1e-3

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig(keys ...input.KeyID) *config.Config {
	cfg := config.Default()
	cfg.Keys = nil
	for _, k := range keys {
		cfg.Keys = append(cfg.Keys, config.KeyConfig{
			Key:   k,
			Name:  string(k),
			Color: config.Color{R: 255, A: 255},
			Size:  1,
		})
	}
	return cfg
}

type harness struct {
	c     *Coordinator
	src   *input.Scripted
	clock *fakeClock
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{src: input.NewScripted(), clock: newFakeClock()}
	opts = append([]Option{WithClock(h.clock.Now), WithLogger(logging.Discard().Logger)}, opts...)
	h.c = New(cfg, h.src, opts...)
	require.NoError(t, h.c.Start())
	t.Cleanup(func() { h.c.Shutdown() })
	return h
}

func (h *harness) push(t *testing.T, events ...input.Event) {
	t.Helper()
	for _, ev := range events {
		require.True(t, h.src.Push(ev), "push %s", ev)
	}
}

func press(k input.KeyID) input.Event   { return input.Event{Kind: input.Pressed, Key: k} }
func release(k input.KeyID) input.Event { return input.Event{Kind: input.Released, Key: k} }

func TestPressGrowsOnFollowingTick(t *testing.T) {
	h := newHarness(t, testConfig("A", "B"))

	h.push(t, press("A"))
	require.NoError(t, h.c.Tick())
	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, h.c.Tick())

	snap := h.c.Snapshot()
	a, ok := snap.Column("A")
	require.True(t, ok)
	require.Len(t, a.Bars, 1)
	assert.InDelta(t, config.DefaultMinBarLength+60, a.Bars[0].Length, epsilon)
	assert.InDelta(t, 60, a.Bars[0].Offset, epsilon)
	assert.True(t, a.Held)

	b, _ := snap.Column("B")
	assert.Empty(t, b.Bars)
}

func TestReleaseStopsGrowth(t *testing.T) {
	h := newHarness(t, testConfig("A"))

	h.push(t, press("A"))
	require.NoError(t, h.c.Tick())
	h.clock.Advance(500 * time.Millisecond)
	h.push(t, release("A"))
	require.NoError(t, h.c.Tick())
	h.clock.Advance(500 * time.Millisecond)
	require.NoError(t, h.c.Tick())

	a, _ := h.c.Snapshot().Column("A")
	require.Len(t, a.Bars, 1)
	assert.InDelta(t, config.DefaultMinBarLength+300, a.Bars[0].Length, epsilon)
	assert.InDelta(t, 600, a.Bars[0].Offset, epsilon)
	assert.False(t, a.Held)
	assert.Equal(t, uint64(1), a.Presses)
}

func TestTickWithoutTimeIsNoop(t *testing.T) {
	h := newHarness(t, testConfig("A"))
	h.push(t, press("A"))
	require.NoError(t, h.c.Tick())
	h.clock.Advance(50 * time.Millisecond)
	require.NoError(t, h.c.Tick())

	before := h.c.Snapshot()
	require.NoError(t, h.c.Tick())
	assert.True(t, before.Equal(h.c.Snapshot()))
}

func TestRejectedReloadKeepsState(t *testing.T) {
	reloads := make(chan monitor.Outcome, 1)
	h := newHarness(t, testConfig("A"), WithReloads(reloads))

	h.push(t, press("A"))
	require.NoError(t, h.c.Tick())
	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, h.c.Tick())
	before := h.c.Snapshot()
	cfg := h.c.Config()

	reloads <- monitor.Outcome{Err: errors.New("bad color")}
	require.NoError(t, h.c.Tick())

	assert.True(t, before.Equal(h.c.Snapshot()))
	assert.Same(t, cfg, h.c.Config())
	assert.Equal(t, uint64(1), h.c.Metrics().ReloadsRejected.Value())

	at, err := h.c.LastReload()
	assert.False(t, at.IsZero())
	assert.EqualError(t, err, "bad color")

	reloads <- monitor.Outcome{Config: testConfig("A")}
	require.NoError(t, h.c.Tick())
	_, err = h.c.LastReload()
	assert.NoError(t, err)
}

func TestMalformedFileKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.Save(testConfig("A"), path))

	mon, err := monitor.New(path, monitor.WithDebounce(20*time.Millisecond),
		monitor.WithLogger(logging.Discard().Logger))
	require.NoError(t, err)
	require.NoError(t, mon.Start())
	t.Cleanup(func() { mon.Stop() })

	h := newHarness(t, testConfig("A"), WithReloads(mon.Outcomes()))
	h.push(t, press("A"))
	require.NoError(t, h.c.Tick())
	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, h.c.Tick())
	before := h.c.Snapshot()

	require.NoError(t, os.WriteFile(path, []byte("[general\nbarSpeed = \"fast\"\n"), 0644))

	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, h.c.Tick())
		if _, err := h.c.LastReload(); err != nil {
			break
		}
		require.True(t, time.Now().Before(deadline), "malformed file was never reported")
		time.Sleep(5 * time.Millisecond)
	}

	assert.True(t, before.Equal(h.c.Snapshot()))
	assert.Equal(t, uint64(1), h.c.Metrics().ReloadsRejected.Value())
}

func TestFramePairsConfigAndSnapshot(t *testing.T) {
	reloads := make(chan monitor.Outcome, 1)
	h := newHarness(t, testConfig("A"), WithReloads(reloads))

	next := testConfig("B", "C")
	reloads <- monitor.Outcome{Config: next}
	require.NoError(t, h.c.Tick())

	cfg, snap := h.c.Frame()
	assert.Same(t, next, cfg)
	assert.Equal(t, next.KeyIDs(), keysOf(snap))
}

func TestAppliedReloadEqualsFreshField(t *testing.T) {
	reloads := make(chan monitor.Outcome, 1)
	h := newHarness(t, testConfig("A", "B"), WithReloads(reloads))

	h.push(t, press("A"), press("B"))
	require.NoError(t, h.c.Tick())
	h.clock.Advance(200 * time.Millisecond)
	require.NoError(t, h.c.Tick())

	next := testConfig("C", "A")
	next.BarSpeed = 300
	next.TickRate = 60
	reloads <- monitor.Outcome{Config: next}
	require.NoError(t, h.c.Tick())

	want := bars.FromConfig(next).Snapshot()
	assert.True(t, want.Equal(h.c.Snapshot()), "reload must reset every column")
	assert.Same(t, next, h.c.Config())
	assert.Equal(t, 60, h.c.TickRate())
	assert.Equal(t, uint64(1), h.c.Metrics().ReloadsApplied.Value())

	h.push(t, press("C"))
	require.NoError(t, h.c.Tick())
	h.clock.Advance(100 * time.Millisecond)
	require.NoError(t, h.c.Tick())
	c, _ := h.c.Snapshot().Column("C")
	require.Len(t, c.Bars, 1)
	assert.InDelta(t, 30, c.Bars[0].Offset, epsilon)
}

func TestFixedTickRateSurvivesReload(t *testing.T) {
	reloads := make(chan monitor.Outcome, 1)
	h := newHarness(t, testConfig("A"), WithReloads(reloads), WithTickRate(240))

	next := testConfig("A")
	next.TickRate = 30
	reloads <- monitor.Outcome{Config: next}
	require.NoError(t, h.c.Tick())
	assert.Equal(t, 240, h.c.TickRate())
}

func TestOneReloadPerTick(t *testing.T) {
	reloads := make(chan monitor.Outcome, 2)
	h := newHarness(t, testConfig("A"), WithReloads(reloads))

	first, second := testConfig("B"), testConfig("C")
	reloads <- monitor.Outcome{Config: first}
	reloads <- monitor.Outcome{Config: second}

	require.NoError(t, h.c.Tick())
	assert.Same(t, first, h.c.Config())
	require.NoError(t, h.c.Tick())
	assert.Same(t, second, h.c.Config())
}

func TestClosedReloadsIgnored(t *testing.T) {
	reloads := make(chan monitor.Outcome)
	close(reloads)
	h := newHarness(t, testConfig("A"), WithReloads(reloads))

	require.NoError(t, h.c.Tick())
	require.NoError(t, h.c.Tick())
	assert.Equal(t, uint64(0), h.c.Metrics().ReloadsRejected.Value())
}

func TestUnknownKeysCounted(t *testing.T) {
	reg := metrics.NewRegistry("test", "")
	h := newHarness(t, testConfig("A"), WithMetrics(reg))

	h.push(t, press("Q"), release("Q"), press("A"))
	require.NoError(t, h.c.Tick())

	p := h.c.Metrics()
	assert.Equal(t, uint64(1), p.EventsTotal.Value())
	assert.Equal(t, uint64(2), p.EventsDropped.Value())
	assert.Equal(t, uint64(1), p.Ticks.Value())
	assert.Equal(t, int64(1), p.VisibleBars.Value())
	assert.NotNil(t, reg.GetCounter("ticks_total"))
}

func TestConcurrentProducers(t *testing.T) {
	const producers = 8
	const pairs = 250
	keys := []input.KeyID{"A", "B", "C", "D", "E", "F", "G", "H"}

	h := newHarness(t, testConfig(keys...), WithEventBuffer(64))

	stop := make(chan struct{})
	ticking := make(chan struct{})
	go func() {
		defer close(ticking)
		for {
			select {
			case <-stop:
				return
			default:
				h.c.Tick()
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(k input.KeyID) {
			defer wg.Done()
			for j := 0; j < pairs; j++ {
				h.src.Push(press(k))
				h.src.Push(release(k))
			}
		}(keys[i])
	}

	wg.Wait()
	close(stop)
	<-ticking
	require.NoError(t, h.c.Tick())

	snap := h.c.Snapshot()
	for _, k := range keys {
		col, ok := snap.Column(k)
		require.True(t, ok)
		assert.Equal(t, uint64(pairs), col.Presses, "key %s", k)
		assert.False(t, col.Held, "key %s", k)
	}
}

func TestSnapshotReadableWhileTicking(t *testing.T) {
	h := newHarness(t, testConfig("A"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = h.c.Snapshot().TotalBars()
			_ = h.c.Config()
		}
	}()
	for i := 0; i < 500; i++ {
		if i%2 == 0 {
			h.src.Push(press("A"))
		} else {
			h.src.Push(release("A"))
		}
		h.clock.Advance(time.Millisecond)
		require.NoError(t, h.c.Tick())
	}
	<-done
}

func escapeAt(kind input.EventKind, at time.Time) input.Event {
	return input.Event{Kind: kind, Key: input.KeyEscape, Time: at}
}

func TestDoubleEscapeExit(t *testing.T) {
	h := newHarness(t, testConfig("A"), WithDoubleEscapeExit(0))
	t0 := h.clock.Now()

	h.push(t, escapeAt(input.Pressed, t0), escapeAt(input.Released, t0))
	require.NoError(t, h.c.Tick())

	h.push(t, escapeAt(input.Pressed, t0.Add(time.Second)), escapeAt(input.Released, t0.Add(time.Second)))
	require.NoError(t, h.c.Tick(), "presses further apart than the window")

	h.push(t, escapeAt(input.Pressed, t0.Add(time.Second+100*time.Millisecond)))
	assert.ErrorIs(t, h.c.Tick(), ErrExitRequested)
}

func TestHeldEscapeIsOnePress(t *testing.T) {
	h := newHarness(t, testConfig("A"), WithDoubleEscapeExit(0))
	t0 := h.clock.Now()

	h.push(t, escapeAt(input.Pressed, t0), escapeAt(input.Pressed, t0.Add(50*time.Millisecond)))
	assert.NoError(t, h.c.Tick(), "second press without a release")

	h.push(t, escapeAt(input.Released, t0.Add(60*time.Millisecond)),
		escapeAt(input.Pressed, t0.Add(100*time.Millisecond)))
	assert.ErrorIs(t, h.c.Tick(), ErrExitRequested)
}

func TestDoubleEscapeRequiresFocus(t *testing.T) {
	var focused atomic.Bool
	h := newHarness(t, testConfig("Z", "X"), WithDoubleEscapeExit(0), WithFocus(focused.Load))
	t0 := h.clock.Now()

	h.push(t,
		escapeAt(input.Pressed, t0),
		escapeAt(input.Released, t0.Add(50*time.Millisecond)),
		escapeAt(input.Pressed, t0.Add(200*time.Millisecond)),
		escapeAt(input.Released, t0.Add(250*time.Millisecond)),
	)
	require.NoError(t, h.c.Tick(), "unfocused presses must not exit")

	focused.Store(true)
	h.push(t,
		escapeAt(input.Pressed, t0.Add(300*time.Millisecond)),
		escapeAt(input.Released, t0.Add(350*time.Millisecond)),
		escapeAt(input.Pressed, t0.Add(500*time.Millisecond)),
	)
	assert.ErrorIs(t, h.c.Tick(), ErrExitRequested)
}

func TestEscapeIgnoredWithoutOption(t *testing.T) {
	h := newHarness(t, testConfig("A"))
	h.push(t, press(input.KeyEscape), press(input.KeyEscape))
	assert.NoError(t, h.c.Tick())
}

func TestRunStartError(t *testing.T) {
	src := input.NewScripted().WithStartError(input.ErrPermissionDenied)
	c := New(testConfig("A"), src, WithLogger(logging.Discard().Logger))

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrCaptureStart)
	assert.ErrorIs(t, err, input.ErrPermissionDenied)
	assert.NoError(t, c.Shutdown())
}

func TestRunCaptureLost(t *testing.T) {
	cause := errors.New("device unplugged")
	src := input.NewScripted(press("A")).WithFailure(cause)
	rec := notify.NewRecorder()
	c := New(testConfig("A"), src, WithNotifier(rec), WithLogger(logging.Discard().Logger))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, ErrCaptureLost)
	assert.ErrorIs(t, err, cause)
	require.Len(t, rec.Messages(), 1)
	assert.Contains(t, rec.Messages()[0].Body, "device unplugged")
}

func TestRunStopsOnCancel(t *testing.T) {
	src := input.NewScripted(press("A"), release("A"))
	c := New(testConfig("A"), src, WithTickRate(500), WithLogger(logging.Discard().Logger))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		col, _ := c.Snapshot().Column("A")
		return col.Presses == 1 && !col.Held
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, src.Started(), "source must be stopped when Run returns")
	assert.Error(t, c.Start())
}

func TestRunDoubleEscape(t *testing.T) {
	src := input.NewScripted(press(input.KeyEscape), release(input.KeyEscape), press(input.KeyEscape))
	c := New(testConfig("A"), src, WithDoubleEscapeExit(time.Minute), WithTickRate(500),
		WithLogger(logging.Discard().Logger))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), ErrExitRequested)
	assert.False(t, src.Started())
}

func TestNewDefaults(t *testing.T) {
	c := New(nil, input.NewScripted(), WithLogger(logging.Discard().Logger))
	assert.Equal(t, config.DefaultTickRate, c.TickRate())
	assert.False(t, c.LastTick().IsZero())
	at, err := c.LastReload()
	assert.True(t, at.IsZero())
	assert.NoError(t, err)
	assert.Equal(t, config.Default().KeyIDs(), keysOf(c.Snapshot()))
	assert.NoError(t, c.Shutdown())
}

func keysOf(s bars.Snapshot) []input.KeyID {
	out := make([]input.KeyID, 0, len(s.Columns))
	for _, col := range s.Columns {
		out = append(out, col.Key)
	}
	return out
}
