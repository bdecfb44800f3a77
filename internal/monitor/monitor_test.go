package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyoverlay/internal/config"
	"keyoverlay/internal/logging"
	"keyoverlay/internal/notify"
)

const waitTimeout = 3 * time.Second

func writeConfig(t *testing.T, dir string, speed float32) string {
	t.Helper()
	cfg := config.Default()
	cfg.BarSpeed = speed
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.Save(cfg, path))
	return path
}

func newMonitor(t *testing.T, path string, opts ...Option) *Monitor {
	t.Helper()
	t.Setenv("KEYOVERLAY_BAR_SPEED", "")
	opts = append([]Option{WithDebounce(30 * time.Millisecond), WithLogger(logging.Discard().Logger)}, opts...)
	m, err := New(path, opts...)
	require.NoError(t, err)
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Stop() })
	return m
}

func next(t *testing.T, m *Monitor) Outcome {
	t.Helper()
	select {
	case out, ok := <-m.Outcomes():
		require.True(t, ok, "outcomes closed")
		return out
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for reload")
		return Outcome{}
	}
}

func TestNewRequiresExistingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = New(t.TempDir())
	assert.Error(t, err)
}

func TestChangeProducesApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, 600)
	m := newMonitor(t, path)
	assert.Equal(t, path, m.Path())

	writeConfig(t, dir, 300)

	out := next(t, m)
	require.True(t, out.Applied(), "unexpected error: %v", out.Err)
	assert.Equal(t, float32(300), out.Config.BarSpeed)
	assert.False(t, out.At.IsZero())
}

func TestInvalidProducesRejectedAndNotifies(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, 600)
	rec := notify.NewRecorder()
	m := newMonitor(t, path, WithNotifier(rec))

	require.NoError(t, os.WriteFile(path, []byte("[general]\nheight = -5\n"), 0644))

	out := next(t, m)
	assert.False(t, out.Applied())
	assert.Nil(t, out.Config)
	assert.ErrorIs(t, out.Err, config.ErrSchema)

	select {
	case <-rec.Notified():
	case <-time.After(waitTimeout):
		t.Fatal("no notification for rejected config")
	}
	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "height")
}

func TestBurstIsDebounced(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, 600)

	var loads atomic.Int32
	loader := func(p string) (*config.Config, error) {
		loads.Add(1)
		return config.Load(p)
	}
	m := newMonitor(t, path, WithDebounce(200*time.Millisecond), WithLoader(loader))

	for i := 1; i <= 5; i++ {
		writeConfig(t, dir, float32(100*i))
	}

	out := next(t, m)
	require.True(t, out.Applied())
	assert.Equal(t, float32(500), out.Config.BarSpeed)

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), loads.Load())
}

func TestUnrelatedFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, 600)

	var loads atomic.Int32
	loader := func(p string) (*config.Config, error) {
		loads.Add(1)
		return config.Load(p)
	}
	newMonitor(t, path, WithLoader(loader))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), loads.Load())
}

func TestTrigger(t *testing.T) {
	path := writeConfig(t, t.TempDir(), 450)
	m := newMonitor(t, path)

	m.Trigger()
	out := next(t, m)
	require.True(t, out.Applied())
	assert.Equal(t, float32(450), out.Config.BarSpeed)
}

func TestNewestOutcomeWins(t *testing.T) {
	path := writeConfig(t, t.TempDir(), 600)

	var calls atomic.Int32
	loader := func(string) (*config.Config, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("first")
		}
		return config.Default(), nil
	}
	m := newMonitor(t, path, WithLoader(loader))

	m.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitTimeout, 5*time.Millisecond)
	m.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitTimeout, 5*time.Millisecond)
	// Let the second outcome be published behind the unread first one.
	time.Sleep(100 * time.Millisecond)

	out := next(t, m)
	assert.True(t, out.Applied(), "stale rejected outcome should have been replaced")
}

func TestStopIsIdempotentAndClosesOutcomes(t *testing.T) {
	path := writeConfig(t, t.TempDir(), 600)
	m, err := New(path, WithLogger(logging.Discard().Logger))
	require.NoError(t, err)
	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrAlreadyStarted)

	require.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Start(), ErrStopped)

	for range m.Outcomes() {
	}
}

func TestStopWithoutStart(t *testing.T) {
	path := writeConfig(t, t.TempDir(), 600)
	m, err := New(path)
	require.NoError(t, err)
	assert.NoError(t, m.Stop())
	_, ok := <-m.Outcomes()
	assert.False(t, ok)
}
