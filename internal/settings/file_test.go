package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cybertrainer/internal/observability"
)

func writeSettingsFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func lookup(t *testing.T, source Source, key string) (string, bool) {
	t.Helper()
	value, ok, err := source.Lookup(context.Background(), key)
	require.NoError(t, err)
	return value, ok
}

func TestFileSourceLoadsScalars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeSettingsFile(t, path, "[settings]\nmaxLoginAttempts = 3\nsiteName = \"Range\"\n")

	source, err := NewFileSource(path, observability.Discard())
	require.NoError(t, err)

	value, ok := lookup(t, source, KeyMaxLoginAttempts)
	assert.True(t, ok)
	assert.Equal(t, "3", value)

	value, _ = lookup(t, source, KeySiteName)
	assert.Equal(t, "Range", value)

	_, ok = lookup(t, source, KeySessionTimeoutDays)
	assert.False(t, ok)
}

func TestFileSourceRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileSource(filepath.Join(dir, "missing.toml"), observability.Discard())
	assert.Error(t, err)

	path := filepath.Join(dir, "nested.toml")
	writeSettingsFile(t, path, "[settings.inner]\nx = 1\n")
	_, err = NewFileSource(path, observability.Discard())
	assert.Error(t, err)
}

func TestFileSourceReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeSettingsFile(t, path, "[settings]\nmaxLoginAttempts = 3\n")

	source, err := NewFileSource(path, observability.Discard())
	require.NoError(t, err)

	writeSettingsFile(t, path, "[settings\n")
	assert.Error(t, source.Reload())
	value, _ := lookup(t, source, KeyMaxLoginAttempts)
	assert.Equal(t, "3", value)

	writeSettingsFile(t, path, "[settings]\nmaxLoginAttempts = 8\n")
	require.NoError(t, source.Reload())
	value, _ = lookup(t, source, KeyMaxLoginAttempts)
	assert.Equal(t, "8", value)
}

func TestFileSourceWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeSettingsFile(t, path, "[settings]\nsessionTimeoutDays = 7\n")

	source, err := NewFileSource(path, observability.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, source.Watch(ctx))

	writeSettingsFile(t, path, "[settings]\nsessionTimeoutDays = 30\n")

	provider := NewProvider(observability.Discard(), source)
	assert.Eventually(t, func() bool {
		return provider.Int(context.Background(), KeySessionTimeoutDays, 7) == 30
	}, 5*time.Second, 20*time.Millisecond)
}
