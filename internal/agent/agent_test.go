package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kblight/internal/config"
	"kblight/internal/core"
	"kblight/internal/keyboard"
	"kblight/internal/library"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KBLIGHT_TRANSPORT", "log")
	cfg, err := config.Load(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	cfg.Server.Port = "0"
	cfg.Server.WebFilesDir = ""
	cfg.PatternsDir = filepath.Join(dir, "patterns")
	cfg.SchedulesFile = filepath.Join(dir, "schedules.json")
	cfg.ProfilesFile = filepath.Join(dir, "profiles.yaml")

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

func lastReport(a *Agent) []byte {
	return keyboard.Report(a.device.Keyboard.State())
}

func TestApplyLibraryProfile(t *testing.T) {
	a := newTestAgent(t)

	assert.ErrorIs(t, a.ApplyProfile("night"), library.ErrUnknownProfile)

	night := core.Profile{Effect: core.Effect{Kind: core.Breath}, RGB: core.Uniform(0, 0, 40), Speed: 1, Brightness: 1}
	require.NoError(t, a.profiles.Put("night", night))
	require.NoError(t, a.ApplyProfile("night"))

	require.Eventually(t, func() bool {
		st := a.device.Keyboard.State()
		return st.Effect == keyboard.Breath && st.RGB == night.RGB
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, byte(0x03), lastReport(a)[2])
}

func TestSetProfileValidates(t *testing.T) {
	a := newTestAgent(t)
	bad := core.DefaultProfile()
	bad.Brightness = 0
	assert.Error(t, a.SetProfile(bad))
}

func TestRunCustomFromScript(t *testing.T) {
	a := newTestAgent(t)

	assert.Error(t, a.RunCustom("missing"))

	require.NoError(t, os.MkdirAll(a.config.PatternsDir, 0o755))
	require.NoError(t, a.scripts.Save("red", `set(rgb(255, 0, 0), {brightness = 2})`))
	require.NoError(t, a.RunCustom("red"))

	require.Eventually(t, func() bool {
		st := a.device.Keyboard.State()
		return st.RGB == core.Uniform(255, 0, 0) && st.Brightness == 2
	}, 2*time.Second, time.Millisecond)
}

func TestShutdownRejectsLaterCommands(t *testing.T) {
	a := newTestAgent(t)
	a.Shutdown()
	assert.Error(t, a.Refresh())
	a.Shutdown()
}
