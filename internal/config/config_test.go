package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(Flags())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"db_path: /tmp/study.db\ndesired_retention: 0.85\nsources:\n  - /notes\n  - git@github.com:user/notes.git\n"), 0o644))

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--config", path}))
	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/study.db", cfg.DBPath)
	assert.Equal(t, 0.85, cfg.DesiredRetention)
	assert.Equal(t, []string{"/notes", "git@github.com:user/notes.git"}, cfg.Sources)
	// untouched keys keep defaults
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
}

func TestFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: :9999\n"), 0o644))

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--config", path, "--listen_addr", ":7777"}))
	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RECALL_LEECH_THRESHOLD", "7")
	cfg, err := Load(Flags())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.LeechThreshold)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--desired_retention", "1.5"}))
	_, err := Load(flags)
	assert.Error(t, err)

	flags = Flags()
	require.NoError(t, flags.Parse([]string{"--easy_days", "someday"}))
	_, err = Load(flags)
	assert.Error(t, err)
}
