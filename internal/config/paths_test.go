package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHome = "/home/testuser"

func TestDefaultConfigDir_NonEmpty(t *testing.T) {
	dir := DefaultConfigDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, "config.toml"))
}

func TestDefaultConfigDir_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	assert.Contains(t, DefaultConfigDir(), "Library/Application Support")
}

func TestLinuxConfigDir_XDGOverride(t *testing.T) {
	xdgDir := "/custom/config"

	t.Setenv("XDG_CONFIG_HOME", xdgDir)
	assert.Equal(t, filepath.Join(xdgDir, appName), linuxConfigDir(testHome))
}

func TestLinuxConfigDir_DefaultFallback(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	os.Unsetenv("XDG_CONFIG_HOME")
	assert.Equal(t, filepath.Join(testHome, ".config", appName), linuxConfigDir(testHome))
}

func TestExpandHome(t *testing.T) {
	expanded, err := ExpandHome("~/.gfolderrc")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(expanded))
	assert.True(t, strings.HasSuffix(expanded, ".gfolderrc"))
	assert.NotContains(t, expanded, "~")

	unchanged, err := ExpandHome("/etc/gfolderrc")
	require.NoError(t, err)
	assert.Equal(t, "/etc/gfolderrc", unchanged)
}
