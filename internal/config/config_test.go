package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, "tap0", cfg.TapName)
	require.Empty(t, cfg.StatusAddr)
	require.False(t, cfg.Trace)
	require.False(t, cfg.LegacyMSIX)
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"-r", "10.0.0.1",
		"-l", "10.0.0.2",
		"-R", "10.0.0.3",
		"-i", "tap7",
		"-a", "0xdeadbeef",
		"-legacy-msix",
		"-status-addr", ":8090",
	})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", cfg.RemoteAddr)
	require.Equal(t, "10.0.0.2", cfg.LocalAddr)
	require.Equal(t, "10.0.0.3", cfg.OOBAddr)
	require.Equal(t, "tap7", cfg.TapName)
	require.Equal(t, uint64(0xdeadbeef), cfg.LegacyBAR4)
	require.True(t, cfg.LegacyMSIX)
	require.Equal(t, ":8090", cfg.StatusAddr)
}

func TestParseEnvOverride(t *testing.T) {
	t.Setenv("SNIC_TAP_NAME", "tapenv")
	cfg, err := Parse([]string{"-i", "tapflag"})
	require.NoError(t, err)
	require.Equal(t, "tapenv", cfg.TapName, "env must win over flag")
}

func TestParseInvalidLegacyBAR4(t *testing.T) {
	_, err := Parse([]string{"-a", "not-hex"})
	require.Error(t, err)
}

func TestParseLegacyBDF(t *testing.T) {
	cfg, err := Parse([]string{"-b", "01:02"})
	require.NoError(t, err)
	require.Equal(t, "01:02", cfg.LegacyBDF)
	require.Equal(t, uint16(0x0102), cfg.LegacyDeviceID)
}

func TestParseInvalidLegacyBDF(t *testing.T) {
	_, err := Parse([]string{"-b", "not-a-bdf"})
	require.Error(t, err)
}
